// Package importer runs background file and folder imports: scanning,
// metadata extraction and batched playlist insertion, with throttled
// progress reporting for whatever front end is attached.
package importer

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/resonata-audio/resonata/internal/domain/track"
	"github.com/resonata-audio/resonata/internal/events"
	"github.com/resonata-audio/resonata/internal/infra/access"
)

const (
	// DefaultBatchSize is how many tracks are inserted per batch on folder
	// imports.
	DefaultBatchSize = 10

	// DefaultBatchPause is the yield between insertion batches.
	DefaultBatchPause = 50 * time.Millisecond

	// DefaultCompletionHold keeps the finished progress state visible before
	// the importing flag drops.
	DefaultCompletionHold = 800 * time.Millisecond

	// progressEvery throttles per-file progress publication on folder scans.
	progressEvery = 5
)

// ErrImportInProgress is returned when an import is started while another one
// is still running.
var ErrImportInProgress = errors.New("importer: import already in progress")

// Progress is the read-only snapshot exposed to observers. Fraction is in
// [0,1] and monotonically non-decreasing within one import operation.
type Progress struct {
	Importing        bool
	Fraction         float64
	CurrentFileLabel string
	TotalFiles       int
	ProcessedFiles   int
}

// Completion is the payload of the import-completed event.
type Completion struct {
	Message   string
	Processed int
	Added     int
}

// TrackCreator builds a Track from a file path.
type TrackCreator interface {
	CreateTrack(path string) track.Track
}

// Library is the slice of the playlist store the importer needs.
type Library interface {
	AppendTracks(playlistID string, tracks []track.Track) bool
}

// MetadataCache serves previously extracted metadata for unchanged files.
// Implementations key on path plus file identity (mtime, size) internally.
type MetadataCache interface {
	Lookup(path string) (track.Track, bool)
	Store(path string, t track.Track)
}

// Pipeline coordinates scan, extraction and batched insertion. At most one
// import runs at a time; starting a second returns ErrImportInProgress.
type Pipeline struct {
	creator TrackCreator
	library Library
	access  access.Provider
	bus     *events.Bus
	cache   MetadataCache

	batchSize      int
	batchPause     time.Duration
	completionHold time.Duration

	mu        sync.Mutex
	importing bool
	prog      Progress
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithBatchSize overrides the folder-import insertion batch size.
func WithBatchSize(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithBatchPause overrides the pause between insertion batches.
func WithBatchPause(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.batchPause = d
	}
}

// WithCompletionHold overrides how long the finished state stays visible.
func WithCompletionHold(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.completionHold = d
	}
}

// WithMetadataCache attaches a scan cache consulted before extraction.
func WithMetadataCache(c MetadataCache) PipelineOption {
	return func(p *Pipeline) {
		p.cache = c
	}
}

// NewPipeline creates an import pipeline.
func NewPipeline(creator TrackCreator, library Library, provider access.Provider, bus *events.Bus, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		creator:        creator,
		library:        library,
		access:         provider,
		bus:            bus,
		batchSize:      DefaultBatchSize,
		batchPause:     DefaultBatchPause,
		completionHold: DefaultCompletionHold,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Progress returns the current progress snapshot.
func (p *Pipeline) Progress() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prog
}

// ImportFiles imports an explicit file list into the target playlist, in
// input order, on a background goroutine. A file whose access token cannot
// be acquired is skipped but still advances the processed counter.
func (p *Pipeline) ImportFiles(paths []string, playlistID string) error {
	if err := p.begin(); err != nil {
		return err
	}
	go p.runFiles(paths, playlistID)
	return nil
}

// ImportFolder recursively imports the audio files under root into the
// target playlist on a background goroutine. Resulting tracks are sorted by
// title before insertion so the playlist order is independent of filesystem
// enumeration order.
func (p *Pipeline) ImportFolder(root, playlistID string) error {
	if err := p.begin(); err != nil {
		return err
	}
	go p.runFolder(root, playlistID, true)
	return nil
}

// ImportDroppedFolder is ImportFolder without access-token acquisition, for
// paths the platform has already granted temporary access to.
func (p *Pipeline) ImportDroppedFolder(root, playlistID string) error {
	if err := p.begin(); err != nil {
		return err
	}
	go p.runFolder(root, playlistID, false)
	return nil
}

func (p *Pipeline) begin() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.importing {
		return ErrImportInProgress
	}
	p.importing = true
	p.prog = Progress{}
	return nil
}

func (p *Pipeline) runFiles(paths []string, playlistID string) {
	total := len(paths)
	p.publish(Progress{Importing: true, TotalFiles: total})

	tracks := make([]track.Track, 0, total)
	for i, path := range paths {
		tok, err := p.access.Acquire(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Skipping file, access denied")
			p.publish(p.stepped(i+1, total, filepath.Base(path)))
			continue
		}

		t := p.extract(path)
		if t.Locator.Token.IsZero() {
			t.Locator.Token = tok
		}
		p.access.Release(tok)

		tracks = append(tracks, t)
		p.publish(p.stepped(i+1, total, filepath.Base(path)))
	}

	p.library.AppendTracks(playlistID, tracks)
	p.finish(total, len(tracks))
}

func (p *Pipeline) runFolder(root, playlistID string, acquireRoot bool) {
	p.publish(Progress{Importing: true, CurrentFileLabel: "Scanning folder..."})

	if acquireRoot {
		tok, err := p.access.Acquire(root)
		if err != nil {
			log.Warn().Err(err).Str("root", root).Msg("Folder import aborted, access denied")
			p.publish(Progress{})
			p.end()
			return
		}
		defer p.access.Release(tok)
	}

	files, err := ScanFolder(root)
	if err != nil {
		log.Warn().Err(err).Str("root", root).Msg("Folder scan failed")
		p.publish(Progress{})
		p.end()
		return
	}
	total := len(files)
	if total == 0 {
		log.Info().Str("root", root).Msg("No audio files found")
		p.publish(Progress{})
		p.end()
		return
	}

	p.publish(Progress{Importing: true, TotalFiles: total, CurrentFileLabel: "Scanning folder..."})

	tracks := make([]track.Track, 0, total)
	for i, path := range files {
		tracks = append(tracks, p.extract(path))
		if (i+1)%progressEvery == 0 || i+1 == total {
			p.publish(p.stepped(i+1, total, filepath.Base(path)))
		}
	}

	sort.Slice(tracks, func(i, j int) bool {
		return tracks[i].Title < tracks[j].Title
	})

	for start := 0; start < len(tracks); start += p.batchSize {
		end := start + p.batchSize
		if end > len(tracks) {
			end = len(tracks)
		}
		batch := tracks[start:end]
		p.library.AppendTracks(playlistID, batch)
		p.publish(p.stepped(total, total, batch[len(batch)-1].Title))
		if end < len(tracks) && p.batchPause > 0 {
			time.Sleep(p.batchPause)
		}
	}

	p.finish(total, len(tracks))
}

// extract consults the metadata cache before running full extraction. Cache
// hits are re-identified so every import yields distinct track identities.
func (p *Pipeline) extract(path string) track.Track {
	if p.cache != nil {
		if cached, ok := p.cache.Lookup(path); ok {
			return cached.WithNewID()
		}
	}
	t := p.creator.CreateTrack(path)
	if p.cache != nil {
		p.cache.Store(path, t)
	}
	return t
}

// stepped derives the next snapshot from the current one, keeping the
// fraction monotonic within the operation.
func (p *Pipeline) stepped(processed, total int, label string) Progress {
	next := Progress{
		Importing:        true,
		CurrentFileLabel: label,
		TotalFiles:       total,
		ProcessedFiles:   processed,
	}
	if total > 0 {
		next.Fraction = float64(processed) / float64(total)
	}
	return next
}

func (p *Pipeline) finish(processed, added int) {
	final := Progress{
		Importing:      true,
		Fraction:       1.0,
		TotalFiles:     processed,
		ProcessedFiles: processed,
	}
	p.publish(final)

	if p.completionHold > 0 {
		time.Sleep(p.completionHold)
	}

	p.publish(Progress{})
	p.end()

	msg := fmt.Sprintf("%d files imported successfully", added)
	if added == 1 {
		msg = "1 file imported successfully"
	}
	log.Info().Int("processed", processed).Int("added", added).Msg("Import completed")
	if p.bus != nil {
		p.bus.Publish(events.Event{
			Kind:    events.KindImportCompleted,
			Payload: Completion{Message: msg, Processed: processed, Added: added},
		})
	}
}

func (p *Pipeline) end() {
	p.mu.Lock()
	p.importing = false
	p.mu.Unlock()
}

// publish stores the snapshot and announces it on the bus.
func (p *Pipeline) publish(prog Progress) {
	p.mu.Lock()
	p.prog = prog
	p.mu.Unlock()

	if p.bus != nil {
		p.bus.Publish(events.Event{Kind: events.KindImportProgress, Payload: prog})
	}
}
