// Package audio implements the decoder engine on top of the beep streaming
// library, with one shared speaker output at a fixed sample rate.
package audio

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/flac"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"

	"github.com/resonata-audio/resonata/internal/domain/playback"
)

// outputRate is the fixed speaker rate; every stream is resampled to it so
// the speaker is initialized exactly once.
const outputRate beep.SampleRate = 44100

var (
	speakerOnce sync.Once
	speakerErr  error
)

func initSpeaker() error {
	speakerOnce.Do(func() {
		speakerErr = speaker.Init(outputRate, outputRate.N(100*time.Millisecond))
	})
	return speakerErr
}

// BeepEngine opens local media files through the beep decoder family.
type BeepEngine struct{}

// NewBeepEngine creates the decoder engine.
func NewBeepEngine() *BeepEngine {
	return &BeepEngine{}
}

// Open decodes the file by extension and returns a playable handle. The
// speaker is initialized lazily on the first open.
func (e *BeepEngine) Open(path string) (playback.Handle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	streamer, format, err := decode(path, f)
	if err != nil {
		f.Close()
		return nil, err
	}

	if err := initSpeaker(); err != nil {
		streamer.Close()
		return nil, err
	}

	h := &handle{
		streamer: streamer,
		format:   format,
	}
	h.ctrl = &beep.Ctrl{Streamer: beep.Resample(4, format.SampleRate, outputRate, streamer)}
	h.volume = &effects.Volume{Streamer: h.ctrl, Base: 2}
	return h, nil
}

func decode(path string, f *os.File) (beep.StreamSeekCloser, beep.Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return mp3.Decode(f)
	case ".flac":
		return flac.Decode(f)
	case ".wav":
		return wav.Decode(f)
	case ".ogg", ".oga":
		return vorbis.Decode(f)
	default:
		return nil, beep.Format{}, fmt.Errorf("audio: unsupported format %q", filepath.Ext(path))
	}
}

// handle is one open decoder session. Stream state is guarded by the speaker
// lock; the finished flag has its own mutex because the completion callback
// runs on the speaker goroutine.
type handle struct {
	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	volume   *effects.Volume

	mu       sync.Mutex
	finished bool
}

func (h *handle) Play() {
	speaker.Play(beep.Seq(h.volume, beep.Callback(func() {
		h.mu.Lock()
		h.finished = true
		h.mu.Unlock()
	})))
}

func (h *handle) Pause() {
	speaker.Lock()
	h.ctrl.Paused = true
	speaker.Unlock()
}

func (h *handle) Resume() {
	speaker.Lock()
	h.ctrl.Paused = false
	speaker.Unlock()
}

func (h *handle) Stop() {
	speaker.Clear()
}

func (h *handle) SeekSeconds(sec float64) error {
	speaker.Lock()
	defer speaker.Unlock()

	n := h.format.SampleRate.N(time.Duration(sec * float64(time.Second)))
	if max := h.streamer.Len() - 1; n > max {
		n = max
	}
	if n < 0 {
		n = 0
	}
	return h.streamer.Seek(n)
}

// SetVolume maps the linear [0,1] range onto the effect's exponential scale.
// Zero mutes outright since log2(0) is undefined.
func (h *handle) SetVolume(v float64) {
	speaker.Lock()
	defer speaker.Unlock()

	if v <= 0 {
		h.volume.Silent = true
		return
	}
	h.volume.Silent = false
	h.volume.Volume = math.Log2(v)
}

func (h *handle) Position() float64 {
	speaker.Lock()
	defer speaker.Unlock()
	return float64(h.streamer.Position()) / float64(h.format.SampleRate)
}

func (h *handle) Duration() float64 {
	speaker.Lock()
	defer speaker.Unlock()
	return float64(h.streamer.Len()) / float64(h.format.SampleRate)
}

func (h *handle) Finished() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.finished
}

func (h *handle) Close() error {
	speaker.Clear()
	return h.streamer.Close()
}
