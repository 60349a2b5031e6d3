package audio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// Prober reports container duration and average bitrate. Formats the beep
// decoders understand are measured directly; everything else falls back to
// ffprobe when it is installed.
type Prober struct {
	FFprobePath string
}

// NewProber creates a prober using ffprobe from PATH as the fallback.
func NewProber() *Prober {
	return &Prober{FFprobePath: "ffprobe"}
}

// Probe returns the duration in seconds and the average bitrate in kbps.
func (p *Prober) Probe(path string) (float64, int, error) {
	if dur, err := decodedDuration(path); err == nil {
		return dur, averageBitrate(path, dur), nil
	}

	dur, err := p.ffprobeDuration(path)
	if err != nil {
		return 0, 0, err
	}
	return dur, averageBitrate(path, dur), nil
}

func decodedDuration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	streamer, format, err := decode(path, f)
	if err != nil {
		return 0, err
	}
	defer streamer.Close()

	return float64(streamer.Len()) / float64(format.SampleRate), nil
}

func (p *Prober) ffprobeDuration(path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	}

	cmd := exec.Command(p.FFprobePath, args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w: %s", path, err, stderr.String())
	}

	var probeData struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out.Bytes(), &probeData); err != nil {
		return 0, fmt.Errorf("ffprobe output for %s: %w", path, err)
	}
	if probeData.Format.Duration == "" {
		return 0, fmt.Errorf("no duration in ffprobe output for %s", path)
	}

	return strconv.ParseFloat(probeData.Format.Duration, 64)
}

// averageBitrate derives kbps from file size and duration. Zero when either
// is unknown.
func averageBitrate(path string, duration float64) int {
	if duration <= 0 {
		return 0
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return int(float64(info.Size()) * 8 / duration / 1000)
}
