package script

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/storyreel/storyreel/config"
	"github.com/storyreel/storyreel/llm_service"
	"github.com/storyreel/storyreel/research"
	"github.com/storyreel/storyreel/story"
)

const shortSystemPrompt = `You are a short-form video scriptwriter. Produce a complete story script as a single JSON object with keys:
"title", "topic", "synopsis", "character_reference" (one reusable visual description of the protagonist), "total_duration" (seconds), and "scenes": an array of objects with "scene_id" (1-based), "duration_seconds" (5 to 20), "visual_prompt" (a vivid text-to-image prompt), "narration" (the spoken line), and "character_description".
Respond with the JSON object only, no commentary.`

const longformSystemPrompt = `You are a long-form serial scriptwriter. Produce a complete multi-part story as a single JSON object with keys:
"title", "topic", "synopsis", "character_reference", "total_duration" (seconds), and "parts": an array of objects with "part_id" (1-based), "part_title", "cliffhanger" (a hook into the next part, empty for the final part), and "scenes": an array of objects with "scene_id" (1-based within the part), "duration_seconds" (5 to 20), "visual_prompt", "narration", and "character_description".
Every part must end on its cliffhanger beat except the last. Respond with the JSON object only, no commentary.`

// Generator produces scripts from a research brief. Count and duration
// mismatches against the requested structure are logged, not rejected; only
// an empty script is fatal.
type Generator struct {
	llm    llm_service.CompletionService
	cfg    *config.Config
	logger *slog.Logger
}

func NewGenerator(cfg *config.Config, llm llm_service.CompletionService, logger *slog.Logger) *Generator {
	return &Generator{llm: llm, cfg: cfg, logger: logger}
}

// Generate writes a short-form script: a flat list of scenes targeting the
// configured short duration.
func (g *Generator) Generate(ctx context.Context, idea string, brief *story.ResearchResult) (*story.Story, error) {
	userPrompt := g.buildShortPrompt(idea, brief)

	raw, err := g.llm.Complete(ctx, shortSystemPrompt, userPrompt, llm_service.CompletionOptions{
		Model:       g.cfg.OllamaModel,
		Temperature: 0.8,
	})
	if err != nil {
		return nil, fmt.Errorf("script completion failed: %w", err)
	}

	s, ok := story.ParseStoryResponse(raw, g.logger)
	if !ok {
		g.logger.Warn("Script response unparseable, using default story")
	}
	s.Topic = idea
	s.TotalDuration = g.cfg.ShortDuration

	if len(s.AllScenes()) == 0 {
		return nil, fmt.Errorf("script has no scenes")
	}

	g.checkStructure(s, g.cfg.ScenesCount)
	return s, nil
}

// GenerateLongform writes a multi-part script part by part, carrying the
// synopsis and previous cliffhanger forward so the serial stays coherent.
func (g *Generator) GenerateLongform(ctx context.Context, idea string, brief *story.ResearchResult) (*story.Story, error) {
	userPrompt := g.buildLongformPrompt(idea, brief)

	raw, err := g.llm.Complete(ctx, longformSystemPrompt, userPrompt, llm_service.CompletionOptions{
		Model:       g.cfg.OllamaModel,
		Temperature: 0.8,
		MaxTokens:   16384,
	})
	if err != nil {
		return nil, fmt.Errorf("longform script completion failed: %w", err)
	}

	s, ok := story.ParseStoryResponse(raw, g.logger)
	if !ok {
		g.logger.Warn("Longform script response unparseable, using default story")
	}
	s.Topic = idea
	s.TotalDuration = g.cfg.TargetDuration()

	if len(s.AllScenes()) == 0 {
		return nil, fmt.Errorf("longform script has no scenes")
	}

	if len(s.Parts) != g.cfg.TotalParts {
		g.logger.Warn("Part count differs from requested structure",
			slog.Int("got", len(s.Parts)),
			slog.Int("want", g.cfg.TotalParts))
	}
	for _, p := range s.Parts {
		if len(p.Scenes) != g.cfg.ScenesPerPart {
			g.logger.Warn("Scene count differs from requested structure",
				slog.Int("part", p.PartID),
				slog.Int("got", len(p.Scenes)),
				slog.Int("want", g.cfg.ScenesPerPart))
		}
	}
	if !s.ValidateDuration() {
		g.logger.Warn("Total duration outside tolerance band",
			slog.Int("actual", s.ActualDuration()),
			slog.Int("target", s.TotalDuration))
	}

	return s, nil
}

func (g *Generator) checkStructure(s *story.Story, wantScenes int) {
	if len(s.Scenes) != wantScenes {
		g.logger.Warn("Scene count differs from requested structure",
			slog.Int("got", len(s.Scenes)),
			slog.Int("want", wantScenes))
	}
	if !s.ValidateDuration() {
		g.logger.Warn("Total duration outside tolerance band",
			slog.Int("actual", s.ActualDuration()),
			slog.Int("target", s.TotalDuration))
	}
}

func (g *Generator) buildShortPrompt(idea string, brief *story.ResearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a script for this idea: %s\n\n", idea)
	if brief != nil {
		b.WriteString("Research brief:\n")
		b.WriteString(research.FormatBrief(brief))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Structure: exactly %d scenes, total duration close to %d seconds.\n",
		g.cfg.ScenesCount, g.cfg.ShortDuration)
	return b.String()
}

func (g *Generator) buildLongformPrompt(idea string, brief *story.ResearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a serial script for this idea: %s\n\n", idea)
	if brief != nil {
		b.WriteString("Research brief:\n")
		b.WriteString(research.FormatBrief(brief))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Structure: %d parts, %d scenes per part, each part about %d seconds, total runtime close to %d seconds.\n",
		g.cfg.TotalParts, g.cfg.ScenesPerPart, g.cfg.PartDuration, g.cfg.TargetDuration())
	return b.String()
}
