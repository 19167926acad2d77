// Package assembler turns per-scene assets into the final video: narration
// synthesis, per-scene clip assembly, concatenation, and background music.
package assembler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/storyreel/storyreel/config"
	"github.com/storyreel/storyreel/media"
	"github.com/storyreel/storyreel/story"
	"github.com/storyreel/storyreel/tts"
)

const (
	defaultMusicVolume = 0.18
	musicFadeSeconds   = 3.0
)

// Assembler drives the assembly engine. Scene failures are isolated; the
// final video is built from whatever scenes survived, in scene order.
type Assembler struct {
	exec   media.Executor
	voice  tts.Service
	cfg    *config.Config
	logger *slog.Logger
}

// New fails when the media tooling is missing: nothing downstream can run
// without it.
func New(cfg *config.Config, exec media.Executor, voice tts.Service, logger *slog.Logger) (*Assembler, error) {
	if !exec.Available() {
		return nil, fmt.Errorf("ffmpeg not available: install ffmpeg and ffprobe")
	}
	return &Assembler{exec: exec, voice: voice, cfg: cfg, logger: logger}, nil
}

// Options adjusts a single assembly run.
type Options struct {
	BGMPath string // explicit background track; empty picks the default
	NoBGM   bool
}

// Assemble builds one video from a story and its visual manifest under
// outputDir. It returns an error only when no scene at all could be
// assembled.
func (a *Assembler) Assemble(ctx context.Context, s *story.Story, manifest *story.Manifest, outputDir string, opts Options) (*story.FinalVideo, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating assembly directory: %w", err)
	}

	scenes := s.AllScenes()
	assets := assetsByScene(manifest)

	var clips []sceneClip
	for _, sc := range scenes {
		clip, err := a.assembleScene(ctx, sc, assets[sc.SceneID], outputDir)
		if err != nil {
			a.logger.Warn("Scene dropped from final video",
				slog.Int("scene_id", sc.SceneID),
				slog.String("error", err.Error()))
			continue
		}
		clips = append(clips, clip)
	}

	if len(clips) == 0 {
		return nil, fmt.Errorf("no scene could be assembled")
	}
	if len(clips) < len(scenes) {
		a.logger.Warn("Final video is missing scenes",
			slog.Int("assembled", len(clips)),
			slog.Int("total", len(scenes)))
	}

	sort.Slice(clips, func(i, j int) bool { return clips[i].sceneID < clips[j].sceneID })

	paths := make([]string, len(clips))
	audioAssets := make([]story.AudioAsset, len(clips))
	for i, c := range clips {
		paths[i] = c.path
		audioAssets[i] = story.AudioAsset{
			SceneID:         c.sceneID,
			AudioPath:       c.audioPath,
			DurationSeconds: c.duration,
		}
	}
	if err := story.SaveAudioAssets(audioAssets, filepath.Join(outputDir, "audio_manifest.json")); err != nil {
		a.logger.Warn("Could not persist audio manifest", slog.String("error", err.Error()))
	}

	finalPath := filepath.Join(outputDir, "final_video.mp4")
	concatPath := finalPath
	if !opts.NoBGM {
		concatPath = filepath.Join(outputDir, "concat_no_bgm.mp4")
	}
	if err := a.exec.Concatenate(ctx, paths, concatPath); err != nil {
		return nil, fmt.Errorf("concatenating scenes: %w", err)
	}

	if !opts.NoBGM {
		musicPath := opts.BGMPath
		if musicPath == "" {
			musicPath = a.defaultMusic()
		}
		if musicPath == "" {
			a.logger.Info("No background music available, keeping narration-only mix")
			if err := os.Rename(concatPath, finalPath); err != nil {
				return nil, fmt.Errorf("finalizing video: %w", err)
			}
		} else {
			if err := a.exec.MixBackgroundMusic(ctx, concatPath, musicPath, finalPath, defaultMusicVolume, musicFadeSeconds); err != nil {
				a.logger.Warn("Background music mix failed, keeping narration-only video",
					slog.String("error", err.Error()))
				if err := os.Rename(concatPath, finalPath); err != nil {
					return nil, fmt.Errorf("finalizing video: %w", err)
				}
			} else {
				os.Remove(concatPath)
			}
		}
	}

	duration, err := a.exec.ProbeDuration(finalPath)
	if err != nil {
		a.logger.Warn("Could not probe final duration", slog.String("error", err.Error()))
	}

	return &story.FinalVideo{
		OutputPath:      finalPath,
		DurationSeconds: duration,
		Resolution:      a.cfg.Resolution(),
		Title:           s.Title,
	}, nil
}

type sceneClip struct {
	sceneID   int
	path      string
	audioPath string
	duration  float64
}

// assembleScene synthesizes the scene's narration, picks its best visual
// source, and muxes the two with the narration length as the clip length.
func (a *Assembler) assembleScene(ctx context.Context, sc story.Scene, asset *story.VisualAsset, outputDir string) (sceneClip, error) {
	if asset == nil {
		return sceneClip{}, fmt.Errorf("no visual asset")
	}

	sceneDir := filepath.Join(outputDir, fmt.Sprintf("scene_%03d", sc.SceneID))
	if err := os.MkdirAll(sceneDir, 0755); err != nil {
		return sceneClip{}, err
	}

	audioPath, err := a.voice.Synthesize(ctx, sc.Narration, filepath.Join(sceneDir, "narration.wav"))
	if err != nil {
		return sceneClip{}, fmt.Errorf("narration synthesis: %w", err)
	}
	audioDur, err := a.exec.ProbeDuration(audioPath)
	if err != nil {
		return sceneClip{}, fmt.Errorf("probing narration: %w", err)
	}

	videoPath, err := a.sceneVideoSource(ctx, sc, asset, sceneDir, audioDur)
	if err != nil {
		return sceneClip{}, err
	}

	clipPath := filepath.Join(sceneDir, "assembled.mp4")
	if err := a.exec.CombineVideoAudio(ctx, videoPath, audioPath, clipPath); err != nil {
		return sceneClip{}, fmt.Errorf("combining video and narration: %w", err)
	}

	return sceneClip{sceneID: sc.SceneID, path: clipPath, audioPath: audioPath, duration: audioDur}, nil
}

// sceneVideoSource resolves the best visual in priority order: generated
// clip, then consistency-edited image, then base image. The stills are
// animated to the narration length.
func (a *Assembler) sceneVideoSource(ctx context.Context, sc story.Scene, asset *story.VisualAsset, sceneDir string, audioDur float64) (string, error) {
	if asset.VideoClipPath != "" && fileExists(asset.VideoClipPath) {
		return asset.VideoClipPath, nil
	}

	imagePath := asset.ConsistentImagePath
	if imagePath == "" || !fileExists(imagePath) {
		imagePath = asset.BaseImagePath
	}
	if imagePath == "" || !fileExists(imagePath) {
		return "", fmt.Errorf("no usable visual for scene %d", sc.SceneID)
	}

	stillClip := filepath.Join(sceneDir, "still_clip.mp4")
	if err := a.exec.ImageToVideo(ctx, imagePath, stillClip, audioDur, true); err != nil {
		return "", fmt.Errorf("animating still image: %w", err)
	}
	return stillClip, nil
}

// ConcatenateParts joins already-assembled part videos into one long-form
// video and computes its chapter markers from the measured part durations.
func (a *Assembler) ConcatenateParts(ctx context.Context, s *story.Story, partVideos []string, outputPath string) (*story.FinalVideo, error) {
	if len(partVideos) == 0 {
		return nil, fmt.Errorf("no part videos to concatenate")
	}

	var chapters []story.Chapter
	offset := 0.0
	for i, pv := range partVideos {
		title := fmt.Sprintf("Part %d", i+1)
		if i < len(s.Parts) {
			title = s.Parts[i].PartTitle
		}
		chapters = append(chapters, story.Chapter{Title: title, StartSeconds: offset})
		dur, err := a.exec.ProbeDuration(pv)
		if err != nil {
			return nil, fmt.Errorf("probing part video %s: %w", pv, err)
		}
		offset += dur
	}

	if err := a.exec.Concatenate(ctx, partVideos, outputPath); err != nil {
		return nil, fmt.Errorf("concatenating parts: %w", err)
	}

	return &story.FinalVideo{
		OutputPath:      outputPath,
		DurationSeconds: offset,
		Resolution:      a.cfg.Resolution(),
		Title:           s.Title,
		Chapters:        chapters,
	}, nil
}

// defaultMusic picks the first audio file from the configured music
// directory.
func (a *Assembler) defaultMusic() string {
	entries, err := os.ReadDir(a.cfg.BGMDir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".mp3", ".wav", ".m4a", ".ogg", ".flac":
			return filepath.Join(a.cfg.BGMDir, e.Name())
		}
	}
	return ""
}

func assetsByScene(m *story.Manifest) map[int]*story.VisualAsset {
	byID := make(map[int]*story.VisualAsset, len(m.Assets))
	for i := range m.Assets {
		byID[m.Assets[i].SceneID] = &m.Assets[i]
	}
	return byID
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
