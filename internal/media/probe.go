package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// ProbeResult holds the stream facts stored on a clip.
type ProbeResult struct {
	DurationSecs float64 `json:"durationSecs"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
}

// Prober reads duration and resolution from a video file.
type Prober interface {
	Probe(ctx context.Context, path string) (ProbeResult, error)
}

// FFprobe is a Prober backed by the ffprobe binary.
type FFprobe struct {
	Path string
}

// Probe runs ffprobe with JSON output.
func (p FFprobe) Probe(ctx context.Context, path string) (ProbeResult, error) {
	out, err := run(ctx, p.Path,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe error: %w", err)
	}
	return parseProbeOutput(out)
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// parseProbeOutput takes the duration from the container and the size from
// the first video stream. Missing values are zero.
func parseProbeOutput(data []byte) (ProbeResult, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return ProbeResult{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var res ProbeResult
	if out.Format.Duration != "" {
		if d, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil {
			res.DurationSecs = d
		}
	}
	for _, s := range out.Streams {
		if s.CodecType == "video" {
			res.Width, res.Height = s.Width, s.Height
			break
		}
	}
	return res, nil
}
