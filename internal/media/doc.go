// Package media wraps the external ffmpeg tools used to enrich catalogued
// clips.
//
// FFprobe reads duration and resolution, FFmpegThumbnailer grabs a frame and
// scales it with imaging, and Tools.Waveform reduces a clip's audio to
// normalised peaks. Backfiller runs the first two over every clip that still
// lacks them using a bounded worker pool. None of this is required for a
// scan to succeed; a clip without a thumbnail is simply picked up again on
// the next backfill.
package media
