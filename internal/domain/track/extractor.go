package track

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"github.com/rs/zerolog/log"

	"github.com/resonata-audio/resonata/internal/infra/access"
)

// Prober reports container-level duration and bitrate for an audio file.
type Prober interface {
	Probe(path string) (durationSeconds float64, bitrateKbps int, err error)
}

// FrameGrabber extracts the first video frame of a container as a compressed
// image. Some containers encode cover art as a secondary video stream.
type FrameGrabber interface {
	FirstFrame(path string) ([]byte, error)
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithFrameGrabber enables artwork-as-video-frame extraction as the last
// artwork fallback.
func WithFrameGrabber(g FrameGrabber) ExtractorOption {
	return func(e *Extractor) {
		e.frames = g
	}
}

// Extractor builds Track entities from files. Every stage degrades
// gracefully: a failure leaves the affected fields empty and is logged, never
// returned to the caller.
type Extractor struct {
	access access.Provider
	probe  Prober
	frames FrameGrabber
}

// NewExtractor creates an extractor using the given access provider and
// duration/bitrate prober.
func NewExtractor(provider access.Provider, probe Prober, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		access: provider,
		probe:  probe,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateTrack extracts metadata for the file at path and returns a fully
// populated Track. Missing tags fall back to filename heuristics; missing
// artwork stays empty.
func (e *Extractor) CreateTrack(path string) Track {
	loc := Locator{Path: path}

	// Token acquisition is non-fatal: playback falls back to the raw path.
	if tok, err := e.access.Acquire(path); err == nil {
		loc.Token = tok
	} else {
		log.Debug().Err(err).Str("path", path).Msg("Access token acquisition failed")
	}

	t := Track{
		ID:         newTrackID(),
		Locator:    loc,
		FileFormat: FileFormatFor(path),
	}

	// FLAC carries artwork in a well-known picture block; the dedicated
	// parse runs first and its artwork wins over the general tag reader.
	if strings.EqualFold(filepath.Ext(path), ".flac") {
		if data, err := readFLACPicture(path); err == nil {
			t.Artwork = data
		}
	}

	e.readTags(path, &t)

	if len(t.Artwork) == 0 && e.frames != nil {
		if data, err := e.frames.FirstFrame(path); err == nil && len(data) > 0 {
			t.Artwork = data
		}
	}

	if t.Title == "" {
		title, artist := ParseFilename(baseName(path))
		t.Title = title
		if t.Artist == "" {
			t.Artist = artist
		}
	}

	// Duration and bitrate come from the container, independent of tags.
	if dur, kbps, err := e.probe.Probe(path); err == nil {
		t.Duration = NormalizeDuration(dur)
		t.BitrateKbps = kbps
	} else {
		log.Debug().Err(err).Str("path", path).Msg("Duration probe failed")
	}

	return t
}

// readTags runs the general metadata engine, filling only fields that are
// still missing.
func (e *Extractor) readTags(path string, t *Track) {
	f, err := os.Open(path)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("Cannot open file for tag read")
		return
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("Tag read failed")
		return
	}

	if t.Title == "" {
		t.Title = strings.TrimSpace(m.Title())
	}
	if t.Artist == "" {
		t.Artist = strings.TrimSpace(m.Artist())
	}
	if t.Album == "" {
		t.Album = strings.TrimSpace(m.Album())
	}
	if t.TrackNumber == 0 {
		num, _ := m.Track()
		t.TrackNumber = num
	}
	if len(t.Artwork) == 0 {
		if pic := m.Picture(); pic != nil {
			t.Artwork = pic.Data
		}
	}
}
