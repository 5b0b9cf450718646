package media

import (
	"context"
	"fmt"
	"math"

	"clip-catalog/internal/database"
	"clip-catalog/internal/logging"
)

// DefaultWaveformBars is the number of peaks returned for a clip. Only this
// resolution is cached.
const DefaultWaveformBars = 200

// MaxWaveformBars bounds a requested resolution.
const MaxWaveformBars = 2000

// Waveform decodes a clip's audio to mono 8 kHz float samples and reduces it
// to bars peak values normalised to 0..1.
func (t Tools) Waveform(ctx context.Context, path string, bars int) ([]float32, error) {
	out, err := run(ctx, t.FFmpeg, "-i", path, "-ac", "1", "-ar", "8000", "-f", "f32le", "-")
	if err != nil {
		return nil, fmt.Errorf("waveform failed: %w", err)
	}
	return Peaks(database.DecodeFloat32s(out), bars), nil
}

// Peaks splits samples into n buckets and returns each bucket's absolute
// peak, scaled so the loudest bucket is 1. Silence yields all zeros.
func Peaks(samples []float32, n int) []float32 {
	if n <= 0 {
		return nil
	}
	bars := make([]float32, n)
	if len(samples) == 0 {
		return bars
	}

	bucket := math.Max(float64(len(samples))/float64(n), 1)
	var loudest float32
	for i := range bars {
		start := int(float64(i) * bucket)
		end := min(int(float64(i+1)*bucket), len(samples))
		var peak float32
		for _, s := range samples[min(start, end):end] {
			if s < 0 {
				s = -s
			}
			peak = max(peak, s)
		}
		bars[i] = peak
		loudest = max(loudest, peak)
	}

	if loudest > 0 {
		for i := range bars {
			bars[i] /= loudest
		}
	}
	return bars
}

// Waveformer produces waveform bars for a file.
type Waveformer interface {
	Waveform(ctx context.Context, path string, bars int) ([]float32, error)
}

// WaveformStore caches computed waveforms.
type WaveformStore interface {
	GetWaveform(ctx context.Context, clipID string) (*database.Waveform, error)
	SaveWaveform(ctx context.Context, clipID string, samples []byte, sampleCount int) error
}

// CachedWaveform returns bars peaks for a clip. At DefaultWaveformBars the
// stored waveform is used, computed and stored on first use; any other
// resolution is computed each time and never cached. A failure to cache is
// logged, not returned.
func CachedWaveform(ctx context.Context, store WaveformStore, gen Waveformer, clipID, path string, bars int) ([]float32, error) {
	if bars != DefaultWaveformBars {
		return gen.Waveform(ctx, path, bars)
	}

	wf, err := store.GetWaveform(ctx, clipID)
	if err != nil {
		return nil, err
	}
	if wf != nil && wf.SampleCount == bars {
		return database.DecodeFloat32s(wf.Samples), nil
	}

	peaks, err := gen.Waveform(ctx, path, bars)
	if err != nil {
		return nil, err
	}
	if err := store.SaveWaveform(ctx, clipID, database.EncodeFloat32s(peaks), len(peaks)); err != nil {
		logging.Warn("Failed to cache waveform for %s: %v", clipID, err)
	}
	return peaks, nil
}
