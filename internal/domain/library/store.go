// Package library owns the playlist collection: CRUD, selection, and
// debounced persistence to the on-disk library document.
package library

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/resonata-audio/resonata/internal/domain/playlist"
	"github.com/resonata-audio/resonata/internal/domain/track"
	"github.com/resonata-audio/resonata/internal/events"
	"github.com/resonata-audio/resonata/internal/infra/access"
	"github.com/resonata-audio/resonata/internal/infra/persist"
)

const (
	// DefaultPlaylistName is synthesized when the store loads empty.
	DefaultPlaylistName = "My Music"

	// DefaultSaveDebounce is the delay before a scheduled save runs.
	DefaultSaveDebounce = 100 * time.Millisecond
)

// Sink is the persistence surface the store writes through.
type Sink interface {
	Save([]persist.PlaylistRecord) error
	Load() ([]persist.PlaylistRecord, error)
}

// Store owns the ordered playlist collection and the current selection.
// All mutation is serialized by an internal mutex; the debounced write runs
// on a timer goroutine and serializes a snapshot taken at fire time.
type Store struct {
	mu       sync.RWMutex
	sink     Sink
	access   access.Provider
	bus      *events.Bus
	deb      *SaveDebouncer
	lists    []*playlist.Playlist
	selected *playlist.Playlist
}

// Option configures a Store.
type Option func(*storeConfig)

type storeConfig struct {
	debounce time.Duration
}

// WithSaveDebounce overrides the debounce delay.
func WithSaveDebounce(d time.Duration) Option {
	return func(c *storeConfig) {
		c.debounce = d
	}
}

// NewStore loads the library document and returns a ready store. Load
// failures degrade to an empty collection; an empty collection synthesizes
// one default playlist and persists it immediately.
func NewStore(sink Sink, provider access.Provider, bus *events.Bus, opts ...Option) *Store {
	cfg := storeConfig{debounce: DefaultSaveDebounce}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Store{
		sink:   sink,
		access: provider,
		bus:    bus,
	}
	s.deb = NewSaveDebouncer(cfg.debounce, s.writeSnapshot)

	s.load()

	if len(s.lists) == 0 {
		def := playlist.New(DefaultPlaylistName)
		s.lists = append(s.lists, def)
		s.selected = def
		if err := s.sink.Save(s.snapshot()); err != nil {
			log.Warn().Err(err).Msg("Failed to persist default playlist")
		}
		log.Info().Str("name", DefaultPlaylistName).Msg("Synthesized default playlist")
	}

	return s
}

// CreatePlaylist appends a new empty playlist, selects it, and schedules
// persistence. Names need not be unique.
func (s *Store) CreatePlaylist(name string) *playlist.Playlist {
	s.mu.Lock()
	p := playlist.New(name)
	s.lists = append(s.lists, p)
	s.selected = p
	s.mu.Unlock()

	log.Info().Str("name", name).Str("id", p.ID).Msg("Playlist created")
	s.SavePlaylists()
	s.notify()
	return p
}

// DeletePlaylist removes a playlist by identity. Deleting the selected
// playlist re-selects the first remaining one, or none if the collection
// becomes empty.
func (s *Store) DeletePlaylist(id string) bool {
	s.mu.Lock()
	idx := -1
	for i, p := range s.lists {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}

	removed := s.lists[idx]
	s.lists = append(s.lists[:idx], s.lists[idx+1:]...)
	if s.selected == removed {
		if len(s.lists) > 0 {
			s.selected = s.lists[0]
		} else {
			s.selected = nil
		}
	}
	s.mu.Unlock()

	log.Info().Str("name", removed.Name).Str("id", id).Msg("Playlist deleted")
	s.SavePlaylists()
	s.notify()
	return true
}

// RenamePlaylist updates a playlist's name in place.
func (s *Store) RenamePlaylist(id, newName string) bool {
	s.mu.Lock()
	p := s.byIDLocked(id)
	if p == nil {
		s.mu.Unlock()
		return false
	}
	p.Name = newName
	s.mu.Unlock()

	s.SavePlaylists()
	s.notify()
	return true
}

// SelectPlaylist changes the selection. Selection is not persisted.
func (s *Store) SelectPlaylist(id string) bool {
	s.mu.Lock()
	p := s.byIDLocked(id)
	if p == nil {
		s.mu.Unlock()
		return false
	}
	s.selected = p
	s.mu.Unlock()

	s.notify()
	return true
}

// MovePlaylist reorders the collection, moving the playlist at from to
// position to.
func (s *Store) MovePlaylist(from, to int) bool {
	s.mu.Lock()
	if from < 0 || from >= len(s.lists) || to < 0 || to >= len(s.lists) {
		s.mu.Unlock()
		return false
	}
	p := s.lists[from]
	s.lists = append(s.lists[:from], s.lists[from+1:]...)
	s.lists = append(s.lists[:to], append([]*playlist.Playlist{p}, s.lists[to:]...)...)
	s.mu.Unlock()

	s.SavePlaylists()
	s.notify()
	return true
}

// AppendTracks adds tracks to a playlist in order and schedules persistence.
func (s *Store) AppendTracks(playlistID string, tracks []track.Track) bool {
	if len(tracks) == 0 {
		return true
	}

	s.mu.Lock()
	p := s.byIDLocked(playlistID)
	if p == nil {
		s.mu.Unlock()
		return false
	}
	p.Append(tracks...)
	s.mu.Unlock()

	s.SavePlaylists()
	s.notify()
	return true
}

// RemoveTrack removes a track from a playlist by identity.
func (s *Store) RemoveTrack(playlistID, trackID string) bool {
	s.mu.Lock()
	p := s.byIDLocked(playlistID)
	if p == nil || !p.RemoveByID(trackID) {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	s.SavePlaylists()
	s.notify()
	return true
}

// MoveTrack reorders a track inside a playlist.
func (s *Store) MoveTrack(playlistID string, from, to int) bool {
	s.mu.Lock()
	p := s.byIDLocked(playlistID)
	if p == nil || !p.Move(from, to) {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	s.SavePlaylists()
	s.notify()
	return true
}

// Playlists returns the current collection order.
func (s *Store) Playlists() []*playlist.Playlist {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*playlist.Playlist, len(s.lists))
	copy(out, s.lists)
	return out
}

// Selected returns the selected playlist, or nil.
func (s *Store) Selected() *playlist.Playlist {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// ByID returns the playlist with the given ID, or nil.
func (s *Store) ByID(id string) *playlist.Playlist {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byIDLocked(id)
}

// SavePlaylists schedules a debounced write. Bursts of calls within the
// debounce window coalesce into one write of the final state.
func (s *Store) SavePlaylists() {
	s.deb.Trigger()
}

// SavePlaylistsNow cancels any pending debounced write and writes
// synchronously. Used at process termination.
func (s *Store) SavePlaylistsNow() error {
	s.deb.Cancel()
	if err := s.sink.Save(s.snapshot()); err != nil {
		log.Error().Err(err).Msg("Immediate library save failed")
		return err
	}
	return nil
}

// Close stops the debouncer and flushes state to disk.
func (s *Store) Close() error {
	err := s.SavePlaylistsNow()
	s.deb.Stop()
	return err
}

func (s *Store) byIDLocked(id string) *playlist.Playlist {
	for _, p := range s.lists {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// writeSnapshot is the debounce callback: it serializes the state at fire
// time, so the write reflects whatever the burst settled on. Write failures
// leave memory as the source of truth; the next trigger retries.
func (s *Store) writeSnapshot() {
	if err := s.sink.Save(s.snapshot()); err != nil {
		log.Error().Err(err).Msg("Library save failed")
	}
}

// snapshot converts the in-memory collection to its serialized form.
func (s *Store) snapshot() []persist.PlaylistRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]persist.PlaylistRecord, 0, len(s.lists))
	for _, p := range s.lists {
		rec := persist.PlaylistRecord{
			ID:        p.ID,
			Name:      p.Name,
			CreatedAt: p.CreatedAt,
			Tracks:    make([]persist.TrackRecord, 0, len(p.Tracks)),
		}
		for _, t := range p.Tracks {
			rec.Tracks = append(rec.Tracks, persist.TrackRecord{
				ID:           t.ID,
				URL:          t.Locator.Path,
				Title:        t.Title,
				Artist:       t.Artist,
				Album:        t.Album,
				Duration:     t.Duration,
				TrackNumber:  t.TrackNumber,
				ArtworkData:  t.Artwork,
				BookmarkData: t.Locator.Token.Data,
				FileFormat:   t.FileFormat,
				Bitrate:      t.BitrateKbps,
			})
		}
		records = append(records, rec)
	}
	return records
}

// load reads the persisted document. Any failure degrades to an empty
// collection. Stale access tokens are refreshed against the recorded path
// and the refreshed document is scheduled for persistence.
func (s *Store) load() {
	records, err := s.sink.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Library load failed, starting empty")
		return
	}
	if records == nil {
		return
	}

	refreshed := false
	for _, rec := range records {
		p := &playlist.Playlist{
			ID:        rec.ID,
			Name:      rec.Name,
			CreatedAt: rec.CreatedAt,
			Tracks:    make([]track.Track, 0, len(rec.Tracks)),
		}
		for _, tr := range rec.Tracks {
			loc := track.Locator{
				Path:  tr.URL,
				Token: access.Token{Data: tr.BookmarkData},
			}
			if !loc.Token.IsZero() {
				if _, err := s.access.Resolve(loc.Token); errors.Is(err, access.ErrStale) {
					// Fall back to the recorded path and refresh the token so
					// staleness does not recur on every launch.
					if fresh, err := s.access.Acquire(tr.URL); err == nil {
						loc.Token = fresh
						refreshed = true
					}
				}
			}
			p.Tracks = append(p.Tracks, track.Track{
				ID:          tr.ID,
				Locator:     loc,
				Title:       tr.Title,
				Artist:      tr.Artist,
				Album:       tr.Album,
				TrackNumber: tr.TrackNumber,
				Duration:    track.NormalizeDuration(tr.Duration),
				FileFormat:  tr.FileFormat,
				BitrateKbps: tr.Bitrate,
				Artwork:     tr.ArtworkData,
			})
		}
		s.lists = append(s.lists, p)
	}

	if len(s.lists) > 0 {
		s.selected = s.lists[0]
	}

	log.Info().Int("playlists", len(s.lists)).Msg("Library loaded")

	if refreshed {
		s.SavePlaylists()
	}
}

// notify publishes a library-changed event if a bus is attached.
func (s *Store) notify() {
	if s.bus != nil {
		s.bus.Publish(events.Event{Kind: events.KindLibraryChanged})
	}
}
