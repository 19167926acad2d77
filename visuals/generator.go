package visuals

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/storyreel/storyreel/config"
	"github.com/storyreel/storyreel/imagegen"
	"github.com/storyreel/storyreel/producer"
	"github.com/storyreel/storyreel/story"
)

const styleSuffix = "cinematic lighting, high detail, film still"

// ImageProducer is the text-to-image collaborator boundary.
type ImageProducer interface {
	producer.Producer
	GenerateToFile(ctx context.Context, prompt, outputPath string) error
}

// EditProducer applies character-consistency edits. It degrades internally
// and never fails a scene on its own.
type EditProducer interface {
	ApplyToFile(ctx context.Context, sourceImage, referenceImage, outputPath, prompt, characterDescription string) (imagegen.EditResult, error)
}

// MotionProducer turns a still image into a short video clip.
type MotionProducer interface {
	producer.Producer
	GenerateToFile(ctx context.Context, imagePath, prompt, outputPath string) error
}

// Generator runs the per-scene visual chain: base image, consistency edit,
// motion clip. Scene failures are isolated; the manifest always carries one
// asset record per scene, with empty paths for the steps that failed.
type Generator struct {
	images ImageProducer
	edits  EditProducer
	motion MotionProducer
	cfg    *config.Config
	logger *slog.Logger
}

func NewGenerator(cfg *config.Config, images ImageProducer, edits EditProducer, motion MotionProducer, logger *slog.Logger) *Generator {
	return &Generator{
		images: images,
		edits:  edits,
		motion: motion,
		cfg:    cfg,
		logger: logger,
	}
}

// Generate produces visuals for every scene of s under outputDir. The first
// scene that yields a base image also establishes the character reference
// used for consistency edits on the rest.
func (g *Generator) Generate(ctx context.Context, s *story.Story, outputDir string) (*story.Manifest, error) {
	scenes := s.AllScenes()
	manifest := &story.Manifest{TotalScenes: len(scenes)}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating visuals directory: %w", err)
	}

	referencePath := ""
	motionReady := g.motion != nil && g.motion.Probe(ctx)
	if !motionReady {
		g.logger.Info("Video producer unavailable, scenes will fall back to still images")
	}

	for _, sc := range scenes {
		asset := g.generateScene(ctx, sc, s, outputDir, &referencePath)
		manifest.Assets = append(manifest.Assets, asset)
	}
	manifest.CharacterReference = referencePath

	// Motion is a second pass so the image model can be released first on
	// constrained GPUs.
	if motionReady {
		g.releaseImageProducer(ctx)
		g.generateMotion(ctx, scenes, manifest, outputDir)
	}

	if err := story.SaveManifest(manifest, filepath.Join(outputDir, "manifest.json")); err != nil {
		return nil, err
	}
	return manifest, nil
}

func (g *Generator) generateScene(ctx context.Context, sc story.Scene, s *story.Story, outputDir string, referencePath *string) story.VisualAsset {
	asset := story.VisualAsset{SceneID: sc.SceneID}
	sceneDir := filepath.Join(outputDir, fmt.Sprintf("scene_%03d", sc.SceneID))
	if err := os.MkdirAll(sceneDir, 0755); err != nil {
		g.logger.Error("Failed to create scene directory",
			slog.Int("scene_id", sc.SceneID),
			slog.String("error", err.Error()))
		return asset
	}

	prompt := g.enhancePrompt(sc, s)
	basePath := filepath.Join(sceneDir, "base_image.png")
	if err := g.images.GenerateToFile(ctx, prompt, basePath); err != nil {
		g.logger.Error("Base image generation failed, scene will be skipped downstream",
			slog.Int("scene_id", sc.SceneID),
			slog.String("error", err.Error()))
		return asset
	}
	asset.BaseImagePath = basePath

	if *referencePath == "" {
		refPath := filepath.Join(outputDir, "character_reference.png")
		if err := copyFile(basePath, refPath); err != nil {
			g.logger.Warn("Failed to capture character reference",
				slog.String("error", err.Error()))
		} else {
			*referencePath = refPath
			g.logger.Info("Character reference established",
				slog.Int("scene_id", sc.SceneID))
		}
		return asset
	}

	if g.edits != nil {
		consistentPath := filepath.Join(sceneDir, "consistent_image.png")
		result, err := g.edits.ApplyToFile(ctx, basePath, *referencePath, consistentPath, prompt, sc.CharacterDescription)
		if err != nil {
			g.logger.Warn("Consistency pass failed entirely, keeping base image",
				slog.Int("scene_id", sc.SceneID),
				slog.String("error", err.Error()))
			return asset
		}
		asset.ConsistentImagePath = result.Path
		if !result.Edited {
			g.logger.Info("Consistency edit skipped",
				slog.Int("scene_id", sc.SceneID),
				slog.String("reason", result.SkipReason))
		}
	}

	return asset
}

// generateMotion animates each scene's best available image. A failed clip
// leaves VideoClipPath empty; assembly falls back to the still.
func (g *Generator) generateMotion(ctx context.Context, scenes []story.Scene, manifest *story.Manifest, outputDir string) {
	for i := range manifest.Assets {
		asset := &manifest.Assets[i]
		source := asset.ConsistentImagePath
		if source == "" {
			source = asset.BaseImagePath
		}
		if source == "" {
			continue
		}

		clipPath := filepath.Join(outputDir, fmt.Sprintf("scene_%03d", asset.SceneID), "video_clip.mp4")
		motionPrompt := buildMotionPrompt(scenes[i].VisualPrompt)
		if err := g.motion.GenerateToFile(ctx, source, motionPrompt, clipPath); err != nil {
			g.logger.Warn("Video clip generation failed, scene keeps its still image",
				slog.Int("scene_id", asset.SceneID),
				slog.String("error", err.Error()))
			continue
		}
		asset.VideoClipPath = clipPath
	}
}

// releaseImageProducer unloads the image model before video generation when
// the deployment cannot hold both at once.
func (g *Generator) releaseImageProducer(ctx context.Context) {
	if !g.cfg.LowVRAM {
		return
	}
	if loadable, ok := g.images.(producer.Loadable); ok {
		if err := loadable.Unload(ctx); err != nil {
			g.logger.Warn("Failed to unload image producer",
				slog.String("error", err.Error()))
		}
	}
}

func (g *Generator) enhancePrompt(sc story.Scene, s *story.Story) string {
	parts := []string{sc.VisualPrompt}
	if sc.CharacterDescription != "" {
		parts = append(parts, sc.CharacterDescription)
	} else if s.CharacterReference != "" {
		parts = append(parts, s.CharacterReference)
	}
	parts = append(parts, styleSuffix)
	return strings.Join(parts, ", ")
}

// buildMotionPrompt picks a camera move matching the framing implied by the
// visual prompt.
func buildMotionPrompt(visualPrompt string) string {
	lower := strings.ToLower(visualPrompt)
	switch {
	case strings.Contains(lower, "close-up"), strings.Contains(lower, "close up"):
		return "slow zoom out revealing the surroundings"
	case strings.Contains(lower, "wide shot"), strings.Contains(lower, "landscape"):
		return "slow horizontal pan across the scene"
	case strings.Contains(lower, "dramatic"), strings.Contains(lower, "action"):
		return "dynamic cinematic camera movement"
	default:
		return "gentle camera motion, subtle natural movement"
	}
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}
