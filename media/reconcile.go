package media

import "fmt"

// Narration audio cannot be resynthesized to a target length, while video is
// cheap to loop or trim. Reconciliation therefore always defers to the audio
// duration; the output clip length equals the audio length in every mode.

const (
	// durationTolerance is the mismatch below which video and audio are
	// combined directly.
	durationTolerance = 0.5

	// fadeDuration is the fade applied wherever a loop cut or trim would
	// otherwise be audible or visible.
	fadeDuration = 0.5
)

type reconcileMode int

const (
	// combineDirect: durations agree; mux as-is, clamped to the audio length.
	combineDirect reconcileMode = iota
	// loopVideo: video is shorter; loop it and cut at the audio length with an
	// audio fade-out over the cut.
	loopVideo
	// trimVideo: video is longer; trim at the audio length with a matching
	// fade-out on both tracks.
	trimVideo
)

func (m reconcileMode) String() string {
	switch m {
	case loopVideo:
		return "loop-video"
	case trimVideo:
		return "trim-video"
	default:
		return "direct"
	}
}

func reconcile(videoDur, audioDur float64) reconcileMode {
	diff := videoDur - audioDur
	switch {
	case diff < -durationTolerance:
		return loopVideo
	case diff > durationTolerance:
		return trimVideo
	default:
		return combineDirect
	}
}

// buildCombineArgs assembles the ffmpeg argument list for one scene clip.
// Every mode pins the output length to the audio duration with -t.
func buildCombineArgs(mode reconcileMode, videoPath, audioPath, outputPath string, audioDur float64) []string {
	fadeStart := audioDur - fadeDuration
	if fadeStart < 0 {
		fadeStart = 0
	}
	afade := fmt.Sprintf("afade=t=out:st=%.3f:d=%.3f", fadeStart, fadeDuration)

	switch mode {
	case loopVideo:
		return []string{
			"-stream_loop", "-1", "-i", videoPath,
			"-i", audioPath,
			"-map", "0:v:0", "-map", "1:a:0",
			"-t", fmt.Sprintf("%.3f", audioDur),
			"-af", afade,
			"-c:v", "libx264", "-pix_fmt", "yuv420p",
			"-c:a", "aac", "-b:a", "192k",
			"-y", outputPath,
		}
	case trimVideo:
		vfade := fmt.Sprintf("fade=t=out:st=%.3f:d=%.3f", fadeStart, fadeDuration)
		return []string{
			"-i", videoPath,
			"-i", audioPath,
			"-map", "0:v:0", "-map", "1:a:0",
			"-t", fmt.Sprintf("%.3f", audioDur),
			"-vf", vfade,
			"-af", afade,
			"-c:v", "libx264", "-pix_fmt", "yuv420p",
			"-c:a", "aac", "-b:a", "192k",
			"-y", outputPath,
		}
	default:
		return []string{
			"-i", videoPath,
			"-i", audioPath,
			"-map", "0:v:0", "-map", "1:a:0",
			"-t", fmt.Sprintf("%.3f", audioDur),
			"-c:v", "copy",
			"-c:a", "aac", "-b:a", "192k",
			"-y", outputPath,
		}
	}
}
