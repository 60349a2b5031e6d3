// Package persist implements the on-disk library document: a single JSON
// array of playlist records at a fixed path, written atomically.
package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// TrackRecord is the serialized form of a track.
type TrackRecord struct {
	ID           string  `json:"id"`
	URL          string  `json:"url"`
	Title        string  `json:"title"`
	Artist       string  `json:"artist,omitempty"`
	Album        string  `json:"album,omitempty"`
	Duration     float64 `json:"duration"`
	TrackNumber  int     `json:"trackNumber,omitempty"`
	ArtworkData  []byte  `json:"artworkData,omitempty"`
	BookmarkData string  `json:"bookmarkData,omitempty"`
	FileFormat   string  `json:"fileFormat"`
	Bitrate      int     `json:"bitrate,omitempty"`
}

// PlaylistRecord is the serialized form of a playlist.
type PlaylistRecord struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Tracks    []TrackRecord `json:"tracks"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Store reads and writes the library document at a fixed path.
type Store struct {
	path string
}

// NewStore creates a store for the given document path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the document path.
func (s *Store) Path() string {
	return s.path
}

// Save writes the playlist records atomically: the document is written to a
// temporary file in the same directory and renamed over the target, so a
// crash mid-write never corrupts the previous document.
func (s *Store) Save(playlists []PlaylistRecord) error {
	data, err := json.MarshalIndent(playlists, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode library document: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create library directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".playlists-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write library document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace library document: %w", err)
	}

	log.Debug().Str("path", s.path).Int("playlists", len(playlists)).Msg("Library document saved")
	return nil
}

// Load reads the document. A missing file returns an empty collection with
// no error; a corrupt file returns an error for the caller to degrade on.
func (s *Store) Load() ([]PlaylistRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read library document: %w", err)
	}

	var playlists []PlaylistRecord
	if err := json.Unmarshal(data, &playlists); err != nil {
		return nil, fmt.Errorf("failed to parse library document: %w", err)
	}

	return playlists, nil
}
