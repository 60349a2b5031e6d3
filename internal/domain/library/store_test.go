package library

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/resonata-audio/resonata/internal/domain/track"
	"github.com/resonata-audio/resonata/internal/events"
	"github.com/resonata-audio/resonata/internal/infra/access"
	"github.com/resonata-audio/resonata/internal/infra/persist"
)

// MockSink records every Save and serves a canned Load.
type MockSink struct {
	mu           sync.Mutex
	saves        int
	lastSaved    []persist.PlaylistRecord
	SaveError    error
	LoadResponse []persist.PlaylistRecord
	LoadError    error
}

func (m *MockSink) Save(records []persist.PlaylistRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.lastSaved = records
	return m.SaveError
}

func (m *MockSink) Load() ([]persist.PlaylistRecord, error) {
	return m.LoadResponse, m.LoadError
}

func (m *MockSink) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *MockSink) LastSaved() []persist.PlaylistRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSaved
}

// StaleProvider reports every non-zero token as stale and issues fresh ones.
type StaleProvider struct {
	mu       sync.Mutex
	acquired []string
}

func (p *StaleProvider) Acquire(path string) (access.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acquired = append(p.acquired, path)
	return access.Token{Data: "fresh:" + path}, nil
}

func (p *StaleProvider) Resolve(tok access.Token) (string, error) {
	return "", access.ErrStale
}

func (p *StaleProvider) Release(access.Token) {}

func newTestStore(t *testing.T, sink *MockSink) *Store {
	t.Helper()
	s := NewStore(sink, access.Passthrough{}, events.NewBus(), WithSaveDebounce(30*time.Millisecond))
	t.Cleanup(func() { s.deb.Stop() })
	return s
}

func TestNewStoreSynthesizesDefaultPlaylist(t *testing.T) {
	sink := &MockSink{}
	s := newTestStore(t, sink)

	lists := s.Playlists()
	if len(lists) != 1 {
		t.Fatalf("expected 1 playlist, got %d", len(lists))
	}
	if lists[0].Name != DefaultPlaylistName {
		t.Errorf("expected default name %q, got %q", DefaultPlaylistName, lists[0].Name)
	}
	if s.Selected() != lists[0] {
		t.Error("expected the default playlist to be selected")
	}
	if sink.Saves() != 1 {
		t.Errorf("expected the default playlist to be persisted immediately, got %d saves", sink.Saves())
	}
}

func TestNewStoreLoadsPersistedDocument(t *testing.T) {
	sink := &MockSink{
		LoadResponse: []persist.PlaylistRecord{
			{ID: "p1", Name: "Jazz", Tracks: []persist.TrackRecord{
				{ID: "t1", URL: "/music/a.flac", Title: "Alpha", Duration: 180},
			}},
			{ID: "p2", Name: "Rock"},
		},
	}
	s := newTestStore(t, sink)

	lists := s.Playlists()
	if len(lists) != 2 {
		t.Fatalf("expected 2 playlists, got %d", len(lists))
	}
	if lists[0].Name != "Jazz" || lists[1].Name != "Rock" {
		t.Errorf("unexpected order: %q, %q", lists[0].Name, lists[1].Name)
	}
	if s.Selected() == nil || s.Selected().ID != "p1" {
		t.Error("expected the first playlist to be selected after load")
	}
	if got := lists[0].Tracks[0].Title; got != "Alpha" {
		t.Errorf("expected track title Alpha, got %q", got)
	}
	if sink.Saves() != 0 {
		t.Errorf("expected no save after a clean load, got %d", sink.Saves())
	}
}

func TestNewStoreDegradesToDefaultOnLoadError(t *testing.T) {
	sink := &MockSink{LoadError: errors.New("corrupt document")}
	s := newTestStore(t, sink)

	lists := s.Playlists()
	if len(lists) != 1 || lists[0].Name != DefaultPlaylistName {
		t.Fatalf("expected a fresh default playlist, got %d playlists", len(lists))
	}
}

func TestDeleteSelectedReselectsFirstRemaining(t *testing.T) {
	sink := &MockSink{}
	s := newTestStore(t, sink)

	first := s.Playlists()[0]
	second := s.CreatePlaylist("Second")

	if s.Selected() != second {
		t.Fatal("expected the created playlist to be selected")
	}
	if !s.DeletePlaylist(second.ID) {
		t.Fatal("delete failed")
	}
	if s.Selected() != first {
		t.Error("expected selection to fall back to the first remaining playlist")
	}

	if !s.DeletePlaylist(first.ID) {
		t.Fatal("delete failed")
	}
	if s.Selected() != nil {
		t.Error("expected no selection after deleting the last playlist")
	}
	if len(s.Playlists()) != 0 {
		t.Error("expected an empty collection")
	}
}

func TestDeleteUnselectedKeepsSelection(t *testing.T) {
	sink := &MockSink{}
	s := newTestStore(t, sink)

	second := s.CreatePlaylist("Second")
	first := s.Playlists()[0]

	if !s.DeletePlaylist(first.ID) {
		t.Fatal("delete failed")
	}
	if s.Selected() != second {
		t.Error("expected selection to survive deleting another playlist")
	}
}

func TestRapidMutationsCoalesceIntoOneSave(t *testing.T) {
	sink := &MockSink{}
	s := newTestStore(t, sink)
	base := sink.Saves()

	p := s.Playlists()[0]
	for i := 0; i < 20; i++ {
		tr := track.New(track.Locator{Path: "/music/x.mp3"})
		tr.Title = "X"
		s.AppendTracks(p.ID, []track.Track{tr})
	}

	time.Sleep(100 * time.Millisecond)

	if got := sink.Saves() - base; got != 1 {
		t.Errorf("expected 1 coalesced save, got %d", got)
	}
	saved := sink.LastSaved()
	if len(saved) != 1 || len(saved[0].Tracks) != 20 {
		t.Errorf("expected the save to reflect the final state of 20 tracks")
	}
}

func TestSavePlaylistsNowCancelsPendingWrite(t *testing.T) {
	sink := &MockSink{}
	s := newTestStore(t, sink)
	base := sink.Saves()

	s.CreatePlaylist("Pending")
	if err := s.SavePlaylistsNow(); err != nil {
		t.Fatalf("immediate save failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if got := sink.Saves() - base; got != 1 {
		t.Errorf("expected exactly one write after an immediate save, got %d", got)
	}
}

func TestMovePlaylistReordersCollection(t *testing.T) {
	sink := &MockSink{}
	s := newTestStore(t, sink)
	s.CreatePlaylist("B")
	s.CreatePlaylist("C")

	if !s.MovePlaylist(2, 0) {
		t.Fatal("move failed")
	}
	lists := s.Playlists()
	if lists[0].Name != "C" || lists[1].Name != DefaultPlaylistName || lists[2].Name != "B" {
		t.Errorf("unexpected order: %q, %q, %q", lists[0].Name, lists[1].Name, lists[2].Name)
	}

	if s.MovePlaylist(0, 5) {
		t.Error("expected out-of-range move to fail")
	}
}

func TestRenamePlaylist(t *testing.T) {
	sink := &MockSink{}
	s := newTestStore(t, sink)

	p := s.Playlists()[0]
	if !s.RenamePlaylist(p.ID, "Evening") {
		t.Fatal("rename failed")
	}
	if s.ByID(p.ID).Name != "Evening" {
		t.Error("rename did not stick")
	}
	if s.RenamePlaylist("missing", "X") {
		t.Error("expected rename of unknown playlist to fail")
	}
}

func TestStaleTokenRefreshedOnLoad(t *testing.T) {
	sink := &MockSink{
		LoadResponse: []persist.PlaylistRecord{
			{ID: "p1", Name: "Jazz", Tracks: []persist.TrackRecord{
				{ID: "t1", URL: "/music/a.flac", Title: "Alpha", BookmarkData: "old-token"},
			}},
		},
	}
	provider := &StaleProvider{}
	s := NewStore(sink, provider, events.NewBus(), WithSaveDebounce(30*time.Millisecond))
	defer s.deb.Stop()

	tr := s.Playlists()[0].Tracks[0]
	if tr.Locator.Token.Data != "fresh:/music/a.flac" {
		t.Errorf("expected a refreshed token, got %q", tr.Locator.Token.Data)
	}

	// The refreshed document is scheduled for persistence.
	time.Sleep(100 * time.Millisecond)
	if sink.Saves() != 1 {
		t.Errorf("expected one save after token refresh, got %d", sink.Saves())
	}
	saved := sink.LastSaved()
	if saved[0].Tracks[0].BookmarkData != "fresh:/music/a.flac" {
		t.Errorf("expected the refreshed token to be persisted, got %q", saved[0].Tracks[0].BookmarkData)
	}
}

func TestLibraryChangedEventPublished(t *testing.T) {
	sink := &MockSink{}
	bus := events.NewBus()
	s := NewStore(sink, access.Passthrough{}, bus, WithSaveDebounce(30*time.Millisecond))
	defer s.deb.Stop()

	var mu sync.Mutex
	var seen int
	cancel := bus.Subscribe(func(ev events.Event) {
		if ev.Kind == events.KindLibraryChanged {
			mu.Lock()
			seen++
			mu.Unlock()
		}
	})
	defer cancel()

	s.CreatePlaylist("New")

	mu.Lock()
	defer mu.Unlock()
	if seen != 1 {
		t.Errorf("expected 1 library-changed event, got %d", seen)
	}
}
