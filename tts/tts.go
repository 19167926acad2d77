// Package tts wraps the text-to-speech backends. Backends are tried in
// preference order at construction time; having no usable backend at all is
// the one TTS condition that is fatal to a run.
package tts

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/storyreel/storyreel/config"
)

// Service synthesizes narration for one scene. The returned path may differ
// from the requested one in extension, depending on the backend's native
// container format.
type Service interface {
	Name() string
	Probe(ctx context.Context) bool
	Synthesize(ctx context.Context, text, outputPath string) (string, error)
}

// Choose probes the ranked backend list (chatterbox, then edge) and returns
// the first available one. An explicit engine in the configuration restricts
// the choice to that engine.
func Choose(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Service, error) {
	candidates := []Service{
		NewChatterboxService(cfg, logger),
		NewEdgeService(cfg, logger),
	}

	if cfg.TTSEngine != "" {
		for _, c := range candidates {
			if c.Name() == cfg.TTSEngine {
				if !c.Probe(ctx) {
					logger.Warn("Configured TTS engine unavailable, probing fallbacks",
						slog.String("engine", cfg.TTSEngine))
					break
				}
				return c, nil
			}
		}
	}

	for _, c := range candidates {
		if c.Probe(ctx) {
			logger.Info("Selected TTS backend", slog.String("backend", c.Name()))
			return c, nil
		}
	}

	return nil, fmt.Errorf("no TTS backend available: install chatterbox-tts or edge-tts")
}
