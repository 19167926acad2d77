package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/storyreel/storyreel/config"
	"github.com/storyreel/storyreel/producer"
)

// FFmpegExecutor implements Executor on top of the ffmpeg and ffprobe
// binaries.
type FFmpegExecutor struct {
	logger    *slog.Logger
	width     int
	height    int
	fps       int
	timeout   time.Duration
	available bool
}

func NewFFmpegExecutor(cfg *config.Config, logger *slog.Logger) *FFmpegExecutor {
	_, err := exec.LookPath("ffmpeg")
	return &FFmpegExecutor{
		logger:    logger,
		width:     cfg.VideoWidth,
		height:    cfg.VideoHeight,
		fps:       cfg.VideoFPS,
		timeout:   cfg.FFmpegTimeout,
		available: err == nil,
	}
}

func (fe *FFmpegExecutor) Available() bool { return fe.available }

// ProbeDuration gets the duration of a media file using ffprobe.
func (fe *FFmpegExecutor) ProbeDuration(path string) (float64, error) {
	cmd := exec.Command("ffprobe", "-i", path,
		"-show_entries", "format=duration", "-v", "quiet", "-of", "csv=p=0")
	output, err := cmd.Output()
	if err != nil {
		return 0, &producer.ProcessingError{Tool: "ffprobe", Err: fmt.Errorf("execution failed: %w", err)}
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, &producer.ProcessingError{Tool: "ffprobe", Err: fmt.Errorf("failed to parse duration: %w", err)}
	}
	return duration, nil
}

// CombineVideoAudio merges one scene's video and narration. Both durations
// are measured exactly; the mismatch decides between a direct mux, looping
// the video, or trimming it. In all cases the output length is the audio
// length.
func (fe *FFmpegExecutor) CombineVideoAudio(ctx context.Context, videoPath, audioPath, outputPath string) error {
	videoDur, err := fe.ProbeDuration(videoPath)
	if err != nil {
		return err
	}
	audioDur, err := fe.ProbeDuration(audioPath)
	if err != nil {
		return err
	}

	mode := reconcile(videoDur, audioDur)
	fe.logger.Debug("Combining scene clip",
		slog.Float64("video_duration", videoDur),
		slog.Float64("audio_duration", audioDur),
		slog.String("mode", mode.String()))

	args := buildCombineArgs(mode, videoPath, audioPath, outputPath, audioDur)
	return fe.run(ctx, args, "combine video+audio")
}

// ImageToVideo converts a still image into a clip, with an optional slow
// zoom so static scenes do not read as freeze-frames.
func (fe *FFmpegExecutor) ImageToVideo(ctx context.Context, imagePath, outputPath string, duration float64, zoomEffect bool) error {
	var filter string
	if zoomEffect {
		// Upscale first so the zoom window never runs out of pixels.
		filter = fmt.Sprintf(
			"scale=8000:-1,zoompan=z='min(zoom+0.0015,1.5)':x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':d=%d:s=%dx%d:fps=%d",
			int(math.Round(duration*float64(fe.fps))), fe.width, fe.height, fe.fps)
	} else {
		filter = fmt.Sprintf(
			"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
			fe.width, fe.height, fe.width, fe.height)
	}

	args := []string{
		"-loop", "1",
		"-i", imagePath,
		"-vf", filter,
		"-c:v", "libx264",
		"-t", fmt.Sprintf("%.3f", duration),
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(fe.fps),
		"-y", outputPath,
	}
	return fe.run(ctx, args, "image to video")
}

// Concatenate joins clips in order via the concat demuxer with stream copy,
// so per-scene encodes are not re-encoded again.
func (fe *FFmpegExecutor) Concatenate(ctx context.Context, videoPaths []string, outputPath string) error {
	if len(videoPaths) == 0 {
		return &producer.ProcessingError{Tool: "ffmpeg", Err: fmt.Errorf("no clips to concatenate")}
	}

	listPath := filepath.Join(filepath.Dir(outputPath), "concat_list.txt")
	if err := os.WriteFile(listPath, []byte(concatList(videoPaths)), 0644); err != nil {
		return fmt.Errorf("writing concat list: %w", err)
	}
	defer os.Remove(listPath)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-y", outputPath,
	}
	return fe.run(ctx, args, fmt.Sprintf("concatenate %d clips", len(videoPaths)))
}

// MixBackgroundMusic lowers the music to musicVolume, fades it out over the
// last fadeOut seconds, and mixes it under the narration track.
func (fe *FFmpegExecutor) MixBackgroundMusic(ctx context.Context, videoPath, musicPath, outputPath string, musicVolume, fadeOut float64) error {
	videoDur, err := fe.ProbeDuration(videoPath)
	if err != nil {
		return err
	}
	fadeStart := videoDur - fadeOut
	if fadeStart < 0 {
		fadeStart = 0
	}

	filter := fmt.Sprintf(
		"[1:a]volume=%.2f,afade=t=out:st=%.3f:d=%.3f[bgm];[0:a][bgm]amix=inputs=2:duration=first[aout]",
		musicVolume, fadeStart, fadeOut)

	args := []string{
		"-i", videoPath,
		"-stream_loop", "-1", "-i", musicPath,
		"-filter_complex", filter,
		"-map", "0:v",
		"-map", "[aout]",
		"-c:v", "copy",
		"-c:a", "aac",
		"-t", fmt.Sprintf("%.3f", videoDur),
		"-y", outputPath,
	}
	return fe.run(ctx, args, "mix background music")
}

func (fe *FFmpegExecutor) run(ctx context.Context, args []string, description string) error {
	if !fe.available {
		return &producer.ProcessingError{Tool: "ffmpeg", Err: fmt.Errorf("ffmpeg not installed")}
	}

	ctx, cancel := context.WithTimeout(ctx, fe.timeout)
	defer cancel()

	fe.logger.Debug("Executing FFmpeg command",
		slog.String("description", description),
		slog.Any("args", args))

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start FFmpeg: %w", err)
	}

	stderrOutput, _ := io.ReadAll(stderr)

	if err := cmd.Wait(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return &producer.TimeoutError{Producer: "ffmpeg", Err: ctx.Err()}
		}
		fe.logger.Error("FFmpeg execution failed",
			slog.String("description", description),
			slog.String("error", err.Error()))
		return &producer.ProcessingError{
			Tool:   "ffmpeg",
			Stderr: lastN(string(stderrOutput), 500),
			Err:    err,
		}
	}

	return nil
}

// concatList renders the concat demuxer input file, escaping single quotes
// the way the demuxer expects.
func concatList(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		escaped := strings.ReplaceAll(p, "'", `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", escaped)
	}
	return b.String()
}

func lastN(s string, n int) string {
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}
