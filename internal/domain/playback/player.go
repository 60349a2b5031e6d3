// Package playback implements the player state machine: track sequencing
// with shuffle and repeat, the progress timer and now-playing publication.
package playback

import (
	"errors"
	"image"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/resonata-audio/resonata/internal/domain/playlist"
	"github.com/resonata-audio/resonata/internal/domain/track"
	"github.com/resonata-audio/resonata/internal/events"
	"github.com/resonata-audio/resonata/internal/infra/access"
	"github.com/resonata-audio/resonata/internal/infra/nowplaying"
)

// State is the player lifecycle state.
type State string

// Player states.
const (
	StateStopped State = "stopped"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
)

// ShuffleMode selects the sequencing order.
type ShuffleMode string

// Shuffle modes.
const (
	ShuffleOff    ShuffleMode = "off"
	ShuffleTracks ShuffleMode = "tracks"
)

// RepeatMode selects the wrap behavior at playlist boundaries.
type RepeatMode string

// Repeat modes.
const (
	RepeatOff      RepeatMode = "off"
	RepeatPlaylist RepeatMode = "playlist"
	RepeatTrack    RepeatMode = "track"
)

const (
	// nowPlayingThrottle bounds how often the timer pushes media-surface
	// updates. Explicit operations (seek, pause) push immediately.
	nowPlayingThrottle = time.Second

	minTickInterval = 100 * time.Millisecond
	maxTickInterval = time.Second
)

// Handle is an open decoder session for one file.
type Handle interface {
	Play()
	Pause()
	Resume()
	Stop()
	SeekSeconds(sec float64) error
	SetVolume(v float64)
	Position() float64
	Duration() float64
	Finished() bool
	Close() error
}

// Engine opens media files for playback.
type Engine interface {
	Open(path string) (Handle, error)
}

// ArtworkSource decodes track artwork. Satisfied by the artwork cache.
type ArtworkSource interface {
	Image(t track.Track) image.Image
}

// Status is the payload of playback-changed events.
type Status struct {
	State      State
	TrackID    string
	TrackTitle string
	Position   float64
}

// Player owns the playback state machine. All public methods are safe for
// concurrent use; the progress timer runs on its own goroutine and checks a
// generation counter so a superseded timer exits instead of touching a torn
// down handle.
type Player struct {
	engine  Engine
	access  access.Provider
	artwork ArtworkSource
	surface nowplaying.Surface
	bus     *events.Bus

	mu          sync.Mutex
	handle      Handle
	state       State
	current     track.Track
	hasCurrent  bool
	playlist    *playlist.Playlist
	currentTime float64
	duration    float64
	volume      float64

	shuffleMode   ShuffleMode
	repeatMode    RepeatMode
	shuffleOrder  []int
	shuffleCursor int

	timerGen int
	lastPush time.Time
}

// NewPlayer creates a stopped player at full volume.
func NewPlayer(engine Engine, provider access.Provider, artwork ArtworkSource, surface nowplaying.Surface, bus *events.Bus) *Player {
	return &Player{
		engine:      engine,
		access:      provider,
		artwork:     artwork,
		surface:     surface,
		bus:         bus,
		state:       StateStopped,
		volume:      1.0,
		shuffleMode: ShuffleOff,
		repeatMode:  RepeatOff,
	}
}

// Play starts playback of the given track from the given playlist, replacing
// whatever was playing. On decoder failure the previous state is kept and
// the track is not set.
func (p *Player) Play(tr track.Track, pl *playlist.Playlist) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playLocked(tr, pl)
}

// Pause pauses playback. Valid only while playing.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StatePlaying || p.handle == nil {
		return
	}
	p.timerGen++
	p.handle.Pause()
	p.state = StatePaused
	p.pushNowPlayingLocked(0)
	p.publishLocked()
}

// Resume resumes playback. Valid only while paused.
func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StatePaused || p.handle == nil {
		return
	}
	p.handle.Resume()
	p.state = StatePlaying
	p.startTimerLocked()
	p.pushNowPlayingLocked(1)
	p.publishLocked()
}

// Stop halts playback, releases the decoder and clears the now-playing
// surface. Valid from any state.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// Seek jumps to the given position in seconds and pushes an immediate
// now-playing update.
func (p *Player) Seek(sec float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if sec < 0 {
		sec = 0
	}
	if p.handle != nil {
		if err := p.handle.SeekSeconds(sec); err != nil {
			log.Warn().Err(err).Float64("sec", sec).Msg("Seek failed")
			return
		}
	}
	p.currentTime = sec
	rate := 0.0
	if p.state == StatePlaying {
		rate = 1
	}
	p.pushNowPlayingLocked(rate)
}

// SetVolume clamps v to [0,1], stores it and forwards it to the decoder if
// one is loaded.
func (p *Player) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	p.volume = v
	if p.handle != nil {
		p.handle.SetVolume(v)
	}
}

// NextTrack advances to the next track per the active repeat and shuffle
// policy.
func (p *Player) NextTrack() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advanceLocked(1, false)
}

// PreviousTrack retreats to the previous track per the active repeat and
// shuffle policy.
func (p *Player) PreviousTrack() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advanceLocked(-1, false)
}

// PlayFirstTrack starts the playlist from its first position, or from the
// first shuffled position when shuffle is active. No-op on an empty playlist.
func (p *Player) PlayFirstTrack(pl *playlist.Playlist) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pl == nil || pl.Len() == 0 {
		return
	}

	idx := 0
	if p.shuffleMode == ShuffleTracks {
		p.shuffleOrder = newShuffleOrder(pl.Len())
		p.shuffleCursor = 0
		p.playlist = pl
		idx = p.shuffleOrder[0]
	}
	if t := pl.TrackAt(idx); t != nil {
		if err := p.playLocked(*t, pl); err != nil {
			log.Error().Err(err).Msg("Failed to start playlist")
		}
	}
}

// ToggleShuffle flips shuffle on or off. Turning it on regenerates the order
// and locates the current track within it; turning it off discards the order.
func (p *Player) ToggleShuffle() ShuffleMode {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shuffleMode == ShuffleOff {
		p.shuffleMode = ShuffleTracks
		if p.playlist != nil && p.playlist.Len() > 0 {
			p.shuffleOrder = newShuffleOrder(p.playlist.Len())
			if p.hasCurrent {
				p.shuffleCursor = cursorFor(p.shuffleOrder, p.playlist.IndexOfID(p.current.ID))
			} else {
				p.shuffleCursor = 0
			}
		}
	} else {
		p.shuffleMode = ShuffleOff
		p.shuffleOrder = nil
		p.shuffleCursor = 0
	}

	log.Info().Str("mode", string(p.shuffleMode)).Msg("Shuffle toggled")
	p.publishLocked()
	return p.shuffleMode
}

// ToggleRepeat cycles off, playlist, track.
func (p *Player) ToggleRepeat() RepeatMode {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.repeatMode {
	case RepeatOff:
		p.repeatMode = RepeatPlaylist
	case RepeatPlaylist:
		p.repeatMode = RepeatTrack
	default:
		p.repeatMode = RepeatOff
	}

	log.Info().Str("mode", string(p.repeatMode)).Msg("Repeat toggled")
	p.publishLocked()
	return p.repeatMode
}

// HandleBackgrounded clears the now-playing surface only if nothing is
// playing, so losing foreground focus never tears down the live session.
func (p *Player) HandleBackgrounded() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateStopped && p.surface != nil {
		p.surface.Clear()
	}
}

// State returns the current lifecycle state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// CurrentTrack returns the active track, if any.
func (p *Player) CurrentTrack() (track.Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.hasCurrent
}

// CurrentTime returns the playback position in seconds.
func (p *Player) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentTime
}

// Volume returns the stored volume.
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Shuffle returns the active shuffle mode.
func (p *Player) Shuffle() ShuffleMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shuffleMode
}

// Repeat returns the active repeat mode.
func (p *Player) Repeat() RepeatMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.repeatMode
}

func (p *Player) playLocked(tr track.Track, pl *playlist.Playlist) error {
	p.teardownLocked()

	if p.artwork != nil {
		p.artwork.Image(tr)
	}

	if p.shuffleMode == ShuffleTracks && pl != nil {
		if len(p.shuffleOrder) == 0 || p.playlist != pl {
			p.shuffleOrder = newShuffleOrder(pl.Len())
		}
		p.shuffleCursor = cursorFor(p.shuffleOrder, pl.IndexOfID(tr.ID))
	}

	path := tr.Locator.Path
	if !tr.Locator.Token.IsZero() {
		resolved, err := p.access.Resolve(tr.Locator.Token)
		switch {
		case err == nil:
			path = resolved
		case errors.Is(err, access.ErrStale):
			log.Warn().Str("path", path).Msg("Stale access token, using recorded path")
		default:
			log.Error().Err(err).Str("path", path).Msg("Access resolution failed")
			return err
		}
	}

	h, err := p.engine.Open(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to open track")
		return err
	}

	p.handle = h
	p.current = tr
	p.hasCurrent = true
	p.playlist = pl
	p.state = StatePlaying
	p.currentTime = 0
	p.duration = h.Duration()
	if p.duration <= 0 {
		p.duration = tr.Duration
	}

	h.SetVolume(p.volume)
	h.Play()
	p.startTimerLocked()

	log.Info().Str("title", tr.Title).Str("format", tr.FileFormat).Msg("Playing track")
	p.pushNowPlayingLocked(1)
	p.publishLocked()
	return nil
}

// advanceLocked applies the sequencing precedence: repeat-track replays the
// current track regardless of shuffle; shuffle walks its cursor; otherwise
// playlist order applies. Boundary overflow wraps only under repeat-playlist.
// A natural end with no successor stops playback; a manual skip is a no-op.
func (p *Player) advanceLocked(dir int, natural bool) {
	if p.playlist == nil || p.playlist.Len() == 0 {
		return
	}

	if p.repeatMode == RepeatTrack && p.hasCurrent {
		if err := p.playLocked(p.current, p.playlist); err != nil {
			log.Error().Err(err).Msg("Repeat replay failed")
		}
		return
	}

	var idx int
	if p.shuffleMode == ShuffleTracks && len(p.shuffleOrder) > 0 {
		next := p.shuffleCursor + dir
		switch {
		case next >= len(p.shuffleOrder):
			if p.repeatMode != RepeatPlaylist {
				if natural {
					p.stopLocked()
				}
				return
			}
			next = 0
		case next < 0:
			if p.repeatMode != RepeatPlaylist {
				if natural {
					p.stopLocked()
				}
				return
			}
			next = len(p.shuffleOrder) - 1
		}
		p.shuffleCursor = next
		idx = p.shuffleOrder[next]
	} else {
		next := p.playlist.IndexOfID(p.current.ID) + dir
		switch {
		case next >= p.playlist.Len():
			if p.repeatMode != RepeatPlaylist {
				if natural {
					p.stopLocked()
				}
				return
			}
			next = 0
		case next < 0:
			if p.repeatMode != RepeatPlaylist {
				if natural {
					p.stopLocked()
				}
				return
			}
			next = p.playlist.Len() - 1
		}
		idx = next
	}

	if t := p.playlist.TrackAt(idx); t != nil {
		if err := p.playLocked(*t, p.playlist); err != nil {
			log.Error().Err(err).Msg("Track advance failed")
		}
	}
}

// stopLocked tears the timer down before the handle so a late tick cannot
// race a released decoder.
func (p *Player) stopLocked() {
	p.teardownLocked()
	p.state = StateStopped
	p.currentTime = 0
	if p.surface != nil {
		p.surface.Clear()
	}
	p.publishLocked()
}

func (p *Player) teardownLocked() {
	p.timerGen++
	if p.handle != nil {
		p.handle.Stop()
		if err := p.handle.Close(); err != nil {
			log.Warn().Err(err).Msg("Decoder close failed")
		}
		p.handle = nil
	}
}

// startTimerLocked spawns the progress timer at an interval adaptive to the
// track length: roughly 100 updates per track, clamped so short tracks stay
// responsive and long tracks stay cheap.
func (p *Player) startTimerLocked() {
	p.timerGen++
	gen := p.timerGen
	interval := progressInterval(p.duration)
	go p.runTimer(gen, interval)
}

func (p *Player) runTimer(gen int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		p.mu.Lock()
		if gen != p.timerGen || p.state != StatePlaying || p.handle == nil {
			p.mu.Unlock()
			return
		}

		p.currentTime = p.handle.Position()
		if time.Since(p.lastPush) >= nowPlayingThrottle {
			p.pushNowPlayingLocked(1)
		}

		if p.handle.Finished() {
			p.advanceLocked(1, true)
		}
		p.mu.Unlock()
	}
}

func progressInterval(duration float64) time.Duration {
	if duration <= 0 {
		return maxTickInterval
	}
	interval := time.Duration(duration / 100 * float64(time.Second))
	if interval < minTickInterval {
		return minTickInterval
	}
	if interval > maxTickInterval {
		return maxTickInterval
	}
	return interval
}

func (p *Player) pushNowPlayingLocked(rate float64) {
	if p.surface == nil || !p.hasCurrent {
		return
	}
	p.surface.Publish(nowplaying.Snapshot{
		Title:    p.current.Title,
		Artist:   p.current.Artist,
		Album:    p.current.Album,
		Duration: p.duration,
		Elapsed:  p.currentTime,
		Rate:     rate,
		Artwork:  p.current.Artwork,
	})
	p.lastPush = time.Now()
}

func (p *Player) publishLocked() {
	if p.bus == nil {
		return
	}
	st := Status{
		State:    p.state,
		Position: p.currentTime,
	}
	if p.hasCurrent {
		st.TrackID = p.current.ID
		st.TrackTitle = p.current.Title
	}
	p.bus.Publish(events.Event{Kind: events.KindPlaybackChanged, Payload: st})
}
