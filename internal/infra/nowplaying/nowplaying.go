// Package nowplaying pushes playback state to the system media surface.
package nowplaying

import "github.com/rs/zerolog/log"

// Snapshot is the state pushed to the media surface. Rate is 1 while playing
// and 0 while paused.
type Snapshot struct {
	Title    string
	Artist   string
	Album    string
	Duration float64
	Elapsed  float64
	Rate     float64
	Artwork  []byte
}

// Surface receives now-playing updates.
type Surface interface {
	Publish(s Snapshot)
	Clear()
}

// LogSurface writes now-playing updates to the log. It stands in on targets
// without a system media-control integration.
type LogSurface struct{}

// Publish logs the snapshot.
func (LogSurface) Publish(s Snapshot) {
	log.Debug().
		Str("title", s.Title).
		Str("artist", s.Artist).
		Float64("elapsed", s.Elapsed).
		Float64("rate", s.Rate).
		Msg("Now playing updated")
}

// Clear logs the teardown.
func (LogSurface) Clear() {
	log.Debug().Msg("Now playing cleared")
}
