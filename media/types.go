// Package media wraps ffmpeg/ffprobe behind the primitive operations the
// assembly engine needs. Every operation is synchronous, bounded by its own
// timeout, and converts a non-zero exit into a ProcessingError.
package media

import "context"

// Executor is the media-processing collaborator boundary.
type Executor interface {
	// Available reports whether the backing binaries are installed.
	Available() bool

	// ProbeDuration returns a file's duration in seconds.
	ProbeDuration(path string) (float64, error)

	// CombineVideoAudio merges a video track and an audio track into one clip,
	// reconciling their lengths; the audio duration is authoritative.
	CombineVideoAudio(ctx context.Context, videoPath, audioPath, outputPath string) error

	// ImageToVideo converts a still image into a fixed-duration clip,
	// optionally with a slow zoom.
	ImageToVideo(ctx context.Context, imagePath, outputPath string, duration float64, zoomEffect bool) error

	// Concatenate joins clips in the given order using stream copy.
	Concatenate(ctx context.Context, videoPaths []string, outputPath string) error

	// MixBackgroundMusic ducks the music under the existing audio and fades it
	// out at the very end. Music is mixed additively, never replacing narration.
	MixBackgroundMusic(ctx context.Context, videoPath, musicPath, outputPath string, musicVolume, fadeOut float64) error
}
