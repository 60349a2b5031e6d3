// Package track defines the track entity and its metadata extraction pipeline.
package track

import (
	"math"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/resonata-audio/resonata/internal/infra/access"
)

// Locator references a track's underlying file: the recorded path plus an
// optional persistent-access token.
type Locator struct {
	Path  string
	Token access.Token
}

// Track is an immutable description of one audio file. Two tracks are equal
// iff their IDs are equal; content is irrelevant to identity.
type Track struct {
	ID          string
	Locator     Locator
	Title       string
	Artist      string
	Album       string
	TrackNumber int // 0 when unknown
	Duration    float64
	FileFormat  string
	BitrateKbps int
	Artwork     []byte
}

// New creates a track for the given locator with a fresh identity and the
// filename as a provisional title.
func New(loc Locator) Track {
	title, artist := ParseFilename(baseName(loc.Path))
	return Track{
		ID:         newTrackID(),
		Locator:    loc,
		Title:      title,
		Artist:     artist,
		FileFormat: FileFormatFor(loc.Path),
	}
}

// Equal reports identity equality.
func (t Track) Equal(other Track) bool {
	return t.ID == other.ID
}

// WithNewID returns a copy of the track under a fresh identity. Used when
// cached metadata is reused for a new import.
func (t Track) WithNewID() Track {
	t.ID = newTrackID()
	return t
}

// FileFormatFor returns the uppercase extension for a path, e.g. "FLAC".
func FileFormatFor(path string) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	return strings.ToUpper(ext)
}

// NormalizeDuration clamps a duration to a finite non-negative value.
func NormalizeDuration(seconds float64) float64 {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return 0
	}
	return seconds
}

// ParseFilename derives display metadata from a filename without extension.
// Two patterns are tried in order: "Artist - Title" split on the first " - "
// separator, then "Title by Artist" split on " by " (case-insensitive). If
// neither yields two non-empty trimmed parts, the whole name becomes the
// title and the artist stays empty.
func ParseFilename(name string) (title, artist string) {
	if idx := strings.Index(name, " - "); idx >= 0 {
		a := strings.TrimSpace(name[:idx])
		t := strings.TrimSpace(name[idx+len(" - "):])
		if a != "" && t != "" {
			return t, a
		}
	}

	if idx := strings.Index(strings.ToLower(name), " by "); idx >= 0 {
		t := strings.TrimSpace(name[:idx])
		a := strings.TrimSpace(name[idx+len(" by "):])
		if t != "" && a != "" {
			return t, a
		}
	}

	return name, ""
}

// baseName returns the filename without directory or extension.
func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func newTrackID() string {
	return uuid.New().String()
}
