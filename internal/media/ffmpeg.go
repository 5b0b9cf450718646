package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"clip-catalog/internal/logging"
)

// maxStderr caps how much tool output ends up in an error message.
const maxStderr = 300

// Tools locates the ffmpeg and ffprobe binaries.
type Tools struct {
	FFmpeg  string
	FFprobe string
}

// FindTools resolves configured binary names or paths through PATH. Empty
// values default to "ffmpeg" and "ffprobe". Binaries that cannot be found
// are returned unresolved so the error surfaces when they are first run.
func FindTools(ffmpeg, ffprobe string) Tools {
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	return Tools{FFmpeg: lookPath(ffmpeg), FFprobe: lookPath(ffprobe)}
}

func lookPath(name string) string {
	path, err := exec.LookPath(name)
	if err != nil {
		logging.Debug("%s not found in PATH: %v", name, err)
		return name
	}
	return path
}

// Available reports whether ffmpeg runs.
func (t Tools) Available(ctx context.Context) bool {
	_, err := run(ctx, t.FFmpeg, "-version")
	return err == nil
}

// run executes a tool and returns its stdout. Failures carry a trimmed
// stderr excerpt.
func run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderr {
			msg = msg[:maxStderr]
		}
		if msg == "" {
			return nil, fmt.Errorf("%s: %w", bin, err)
		}
		return nil, fmt.Errorf("%s: %w - %s", bin, err, msg)
	}
	return stdout.Bytes(), nil
}
