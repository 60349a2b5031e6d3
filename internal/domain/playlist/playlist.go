// Package playlist provides the ordered track collection owned by the
// library store. A playlist carries no locking of its own; the owning store
// serializes all mutation.
package playlist

import (
	"time"

	"github.com/google/uuid"

	"github.com/resonata-audio/resonata/internal/domain/track"
)

// Playlist is an ordered sequence of tracks. Insertion order is playback
// order; duplicate content is allowed (tracks are identified by ID).
type Playlist struct {
	ID        string
	Name      string
	CreatedAt time.Time
	Tracks    []track.Track
}

// New creates an empty playlist with a fresh identity.
func New(name string) *Playlist {
	return &Playlist{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now(),
	}
}

// Append adds tracks to the end of the playlist in the given order.
func (p *Playlist) Append(tracks ...track.Track) {
	p.Tracks = append(p.Tracks, tracks...)
}

// RemoveByID removes the first track with the given ID. Returns false if no
// track matched.
func (p *Playlist) RemoveByID(id string) bool {
	idx := p.IndexOfID(id)
	if idx < 0 {
		return false
	}
	p.Tracks = append(p.Tracks[:idx], p.Tracks[idx+1:]...)
	return true
}

// Move relocates the track at from to position to. Returns false if either
// index is out of bounds.
func (p *Playlist) Move(from, to int) bool {
	if from < 0 || from >= len(p.Tracks) || to < 0 || to >= len(p.Tracks) {
		return false
	}
	if from == to {
		return true
	}
	t := p.Tracks[from]
	p.Tracks = append(p.Tracks[:from], p.Tracks[from+1:]...)
	p.Tracks = append(p.Tracks[:to], append([]track.Track{t}, p.Tracks[to:]...)...)
	return true
}

// IndexOfID returns the position of the track with the given ID, or -1.
func (p *Playlist) IndexOfID(id string) int {
	for i, t := range p.Tracks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// TrackAt returns the track at index, or nil if out of bounds.
func (p *Playlist) TrackAt(index int) *track.Track {
	if index < 0 || index >= len(p.Tracks) {
		return nil
	}
	return &p.Tracks[index]
}

// Len returns the number of tracks.
func (p *Playlist) Len() int {
	return len(p.Tracks)
}
