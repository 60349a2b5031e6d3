// Package frameextract grabs the first video frame of a media container via
// ffmpeg. Some containers ship cover art as a secondary video stream instead
// of an embedded tag picture.
package frameextract

import (
	"bytes"
	"fmt"
	"os/exec"
)

// Grabber shells out to ffmpeg for frame extraction.
type Grabber struct {
	FFmpegPath string
}

// NewGrabber creates a grabber using ffmpeg from PATH.
func NewGrabber() *Grabber {
	return &Grabber{FFmpegPath: "ffmpeg"}
}

// FirstFrame decodes the first frame of the first video stream and returns
// it re-encoded as JPEG.
func (g *Grabber) FirstFrame(path string) ([]byte, error) {
	args := []string{
		"-v", "error",
		"-i", path,
		"-map", "0:v:0",
		"-frames:v", "1",
		"-f", "image2",
		"-c:v", "mjpeg",
		"pipe:1",
	}

	cmd := exec.Command(g.FFmpegPath, args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg frame extraction failed for %s: %w: %s", path, err, stderr.String())
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("no video frame in %s", path)
	}
	return out.Bytes(), nil
}
