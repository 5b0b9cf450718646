package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"

	"clip-catalog/internal/logging"

	_ "image/png"

	"github.com/disintegration/imaging"
)

// DefaultThumbWidth is the width thumbnails are scaled to.
const DefaultThumbWidth = 320

// Processor derives a thumbnail for a clip and returns where it was written.
type Processor interface {
	Thumbnail(ctx context.Context, clipID, path string) (string, error)
}

// FFmpegThumbnailer grabs a frame with ffmpeg and scales it with imaging.
type FFmpegThumbnailer struct {
	ffmpeg string
	dir    string
	width  int
}

// NewFFmpegThumbnailer writes thumbnails into dir, creating it if needed.
func NewFFmpegThumbnailer(ffmpeg, dir string) *FFmpegThumbnailer {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logging.Warn("Thumbnailer: failed to create thumbs dir: %v", err)
	}
	return &FFmpegThumbnailer{ffmpeg: ffmpeg, dir: dir, width: DefaultThumbWidth}
}

// Dir returns the thumbnail directory.
func (t *FFmpegThumbnailer) Dir() string {
	return t.dir
}

// Thumbnail extracts the frame at 2s, or the first frame for clips shorter
// than that, and saves it as <clipID>.jpg.
func (t *FFmpegThumbnailer) Thumbnail(ctx context.Context, clipID, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("file not accessible: %w", err)
	}

	img, err := t.extractFrame(ctx, path)
	if err != nil {
		return "", err
	}

	data, err := encodeThumbnail(img, t.width)
	if err != nil {
		return "", err
	}

	dest := filepath.Join(t.dir, clipID+".jpg")
	if err := writeFileAtomic(dest, data); err != nil {
		return "", fmt.Errorf("failed to save thumbnail: %w", err)
	}
	logging.Debug("Thumbnail saved: %s", dest)
	return dest, nil
}

func (t *FFmpegThumbnailer) extractFrame(ctx context.Context, path string) (image.Image, error) {
	out, err := run(ctx, t.ffmpeg, frameArgs(path, "2")...)
	if err != nil || len(out) == 0 {
		logging.Debug("Frame at 2s failed for %s, retrying at 0s: %v", path, err)
		out, err = run(ctx, t.ffmpeg, frameArgs(path, "0")...)
		if err != nil {
			return nil, fmt.Errorf("ffmpeg failed to extract frame: %w", err)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output for %s", path)
	}

	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("failed to decode ffmpeg output: %w", err)
	}
	return img, nil
}

func frameArgs(path, offset string) []string {
	return []string{
		"-ss", offset,
		"-i", path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	}
}

// encodeThumbnail scales img down to width, keeping the aspect ratio, and
// encodes it as JPEG. Narrower frames are not enlarged.
func encodeThumbnail(img image.Image, width int) ([]byte, error) {
	if img.Bounds().Dx() > width {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".thumb-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		logging.Debug("chmod %s: %v", tmp.Name(), err)
	}
	return os.Rename(tmp.Name(), path)
}
