package importer

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/resonata-audio/resonata/internal/domain/track"
	"github.com/resonata-audio/resonata/internal/events"
	"github.com/resonata-audio/resonata/internal/infra/access"
)

// StubCreator derives tracks from the filename alone.
type StubCreator struct {
	mu    sync.Mutex
	calls int
}

func (c *StubCreator) CreateTrack(path string) track.Track {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return track.New(track.Locator{Path: path})
}

func (c *StubCreator) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// RecordingLibrary captures every appended batch.
type RecordingLibrary struct {
	mu      sync.Mutex
	tracks  []track.Track
	batches int
}

func (l *RecordingLibrary) AppendTracks(playlistID string, tracks []track.Track) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tracks = append(l.tracks, tracks...)
	l.batches++
	return true
}

func (l *RecordingLibrary) Tracks() []track.Track {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]track.Track, len(l.tracks))
	copy(out, l.tracks)
	return out
}

func (l *RecordingLibrary) Batches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.batches
}

// DenyingProvider fails acquisition for one path.
type DenyingProvider struct {
	access.Passthrough
	Deny string
}

func (p *DenyingProvider) Acquire(path string) (access.Token, error) {
	if path == p.Deny {
		return access.Token{}, errors.New("access denied")
	}
	return p.Passthrough.Acquire(path)
}

// collectEvents subscribes to the bus and returns channels signalling
// completion plus an accessor for the observed progress snapshots.
func collectEvents(t *testing.T, bus *events.Bus) (<-chan Completion, func() []Progress) {
	t.Helper()

	done := make(chan Completion, 1)
	var mu sync.Mutex
	var snapshots []Progress

	cancel := bus.Subscribe(func(ev events.Event) {
		switch ev.Kind {
		case events.KindImportProgress:
			mu.Lock()
			snapshots = append(snapshots, ev.Payload.(Progress))
			mu.Unlock()
		case events.KindImportCompleted:
			done <- ev.Payload.(Completion)
		}
	})
	t.Cleanup(cancel)

	return done, func() []Progress {
		mu.Lock()
		defer mu.Unlock()
		out := make([]Progress, len(snapshots))
		copy(out, snapshots)
		return out
	}
}

func waitCompletion(t *testing.T, done <-chan Completion) Completion {
	t.Helper()
	select {
	case c := <-done:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("import did not complete")
		return Completion{}
	}
}

func fastPipeline(creator TrackCreator, lib Library, provider access.Provider, bus *events.Bus, opts ...PipelineOption) *Pipeline {
	base := []PipelineOption{
		WithCompletionHold(0),
		WithBatchPause(0),
	}
	return NewPipeline(creator, lib, provider, bus, append(base, opts...)...)
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestScanFolderSkipsHiddenAndNonAudio(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir,
		"a.mp3", "b.FLAC", "notes.txt", ".hidden.mp3",
		filepath.Join(".secret", "c.mp3"),
		filepath.Join("sub", "d.wav"),
	)

	files, err := ScanFolder(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 audio files, got %d: %v", len(files), files)
	}
	for _, f := range files {
		base := filepath.Base(f)
		if base == ".hidden.mp3" || base == "c.mp3" || base == "notes.txt" {
			t.Errorf("unexpected file in scan result: %s", f)
		}
	}
}

func TestImportFolderInsertsTitleSorted(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "zeta.mp3", "alpha.mp3", "mid.mp3")

	bus := events.NewBus()
	lib := &RecordingLibrary{}
	done, _ := collectEvents(t, bus)

	p := fastPipeline(&StubCreator{}, lib, access.Passthrough{}, bus)
	if err := p.ImportFolder(dir, "p1"); err != nil {
		t.Fatal(err)
	}
	waitCompletion(t, done)

	got := lib.Tracks()
	if len(got) != 3 {
		t.Fatalf("expected 3 tracks, got %d", len(got))
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, w := range want {
		if got[i].Title != w {
			t.Errorf("position %d: expected %q, got %q", i, w, got[i].Title)
		}
	}
}

func TestImportFolderReRunProducesSameOrder(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "c.mp3", "a.mp3", "b.mp3")

	bus := events.NewBus()
	done, _ := collectEvents(t, bus)

	var orders [][]string
	for run := 0; run < 2; run++ {
		lib := &RecordingLibrary{}
		p := fastPipeline(&StubCreator{}, lib, access.Passthrough{}, bus)
		if err := p.ImportFolder(dir, "p1"); err != nil {
			t.Fatal(err)
		}
		waitCompletion(t, done)

		var titles []string
		for _, tr := range lib.Tracks() {
			titles = append(titles, tr.Title)
		}
		orders = append(orders, titles)
	}

	for i := range orders[0] {
		if orders[0][i] != orders[1][i] {
			t.Fatalf("re-run order diverged: %v vs %v", orders[0], orders[1])
		}
	}
}

func TestImportFolderBatchesInsertions(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.mp3", "b.mp3", "c.mp3", "d.mp3", "e.mp3")

	bus := events.NewBus()
	lib := &RecordingLibrary{}
	done, _ := collectEvents(t, bus)

	p := fastPipeline(&StubCreator{}, lib, access.Passthrough{}, bus, WithBatchSize(2))
	if err := p.ImportFolder(dir, "p1"); err != nil {
		t.Fatal(err)
	}
	waitCompletion(t, done)

	if lib.Batches() != 3 {
		t.Errorf("expected 3 batches of size 2 for 5 tracks, got %d", lib.Batches())
	}
	if len(lib.Tracks()) != 5 {
		t.Errorf("expected 5 tracks inserted, got %d", len(lib.Tracks()))
	}
}

func TestImportFolderEmptyMatchEndsQuietly(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "readme.txt")

	bus := events.NewBus()
	lib := &RecordingLibrary{}
	done, _ := collectEvents(t, bus)

	p := fastPipeline(&StubCreator{}, lib, access.Passthrough{}, bus)
	if err := p.ImportFolder(dir, "p1"); err != nil {
		t.Fatal(err)
	}

	// begin() has already marked the pipeline busy, so polling the flag is
	// race-free: it only drops once the background goroutine ends.
	deadline := time.Now().Add(2 * time.Second)
	for {
		p.mu.Lock()
		busy := p.importing
		p.mu.Unlock()
		if !busy {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("import flag never cleared")
		}
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case <-done:
		t.Error("expected no completion notification for an empty match")
	default:
	}
	if len(lib.Tracks()) != 0 {
		t.Errorf("expected no insertions, got %d", len(lib.Tracks()))
	}
}

func TestImportFilesSkipsDeniedButCountsThem(t *testing.T) {
	bus := events.NewBus()
	lib := &RecordingLibrary{}
	done, snapshots := collectEvents(t, bus)

	provider := &DenyingProvider{Deny: "/music/blocked.mp3"}
	p := fastPipeline(&StubCreator{}, lib, provider, bus)

	paths := []string{"/music/one.mp3", "/music/blocked.mp3", "/music/two.mp3"}
	if err := p.ImportFiles(paths, "p1"); err != nil {
		t.Fatal(err)
	}
	c := waitCompletion(t, done)

	if c.Processed != 3 {
		t.Errorf("expected 3 processed, got %d", c.Processed)
	}
	if c.Added != 2 {
		t.Errorf("expected 2 added, got %d", c.Added)
	}
	if c.Message != "2 files imported successfully" {
		t.Errorf("unexpected message %q", c.Message)
	}

	got := lib.Tracks()
	if len(got) != 2 || got[0].Title != "one" || got[1].Title != "two" {
		t.Errorf("expected input-order insertion of the two allowed files, got %+v", got)
	}

	last := Progress{}
	for _, s := range snapshots() {
		if s.Importing && s.Fraction < last.Fraction {
			t.Errorf("progress regressed from %v to %v", last.Fraction, s.Fraction)
		}
		if s.ProcessedFiles > s.TotalFiles {
			t.Errorf("processed %d exceeds total %d", s.ProcessedFiles, s.TotalFiles)
		}
		if s.Importing {
			last = s
		}
	}
}

func TestImportFilesSingleFileMessage(t *testing.T) {
	bus := events.NewBus()
	lib := &RecordingLibrary{}
	done, _ := collectEvents(t, bus)

	p := fastPipeline(&StubCreator{}, lib, access.Passthrough{}, bus)
	if err := p.ImportFiles([]string{"/music/solo.flac"}, "p1"); err != nil {
		t.Fatal(err)
	}
	c := waitCompletion(t, done)

	if c.Message != "1 file imported successfully" {
		t.Errorf("unexpected message %q", c.Message)
	}
}

func TestSecondImportRejectedWhileRunning(t *testing.T) {
	bus := events.NewBus()
	lib := &RecordingLibrary{}
	done, _ := collectEvents(t, bus)

	p := NewPipeline(&StubCreator{}, lib, access.Passthrough{}, bus,
		WithCompletionHold(200*time.Millisecond), WithBatchPause(0))

	if err := p.ImportFiles([]string{"/music/a.mp3"}, "p1"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := p.ImportFiles([]string{"/music/b.mp3"}, "p1"); !errors.Is(err, ErrImportInProgress) {
		t.Errorf("expected ErrImportInProgress, got %v", err)
	}
	waitCompletion(t, done)
}

// CannedCache always hits with a fixed track.
type CannedCache struct {
	hit    track.Track
	stored int
	mu     sync.Mutex
}

func (c *CannedCache) Lookup(path string) (track.Track, bool) {
	return c.hit, true
}

func (c *CannedCache) Store(path string, t track.Track) {
	c.mu.Lock()
	c.stored++
	c.mu.Unlock()
}

func TestMetadataCacheHitSkipsExtraction(t *testing.T) {
	bus := events.NewBus()
	lib := &RecordingLibrary{}
	done, _ := collectEvents(t, bus)

	cached := track.New(track.Locator{Path: "/music/a.mp3"})
	cached.Title = "Cached Title"
	cache := &CannedCache{hit: cached}

	creator := &StubCreator{}
	p := fastPipeline(creator, lib, access.Passthrough{}, bus, WithMetadataCache(cache))
	if err := p.ImportFiles([]string{"/music/a.mp3"}, "p1"); err != nil {
		t.Fatal(err)
	}
	waitCompletion(t, done)

	if creator.Calls() != 0 {
		t.Errorf("expected extraction to be skipped on cache hit, got %d calls", creator.Calls())
	}
	got := lib.Tracks()
	if len(got) != 1 || got[0].Title != "Cached Title" {
		t.Fatalf("expected the cached metadata to be used, got %+v", got)
	}
	if got[0].ID == cached.ID {
		t.Error("expected a fresh track identity for a cache hit")
	}
}
