// Package llm_service wraps the completion model backends used by the
// research and script stages. Backends are independent strategy objects tried
// in preference order; the first one whose probe answers wins.
package llm_service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/storyreel/storyreel/config"
)

// CompletionOptions carries per-call generation parameters. Model may be empty
// to use the backend's configured default.
type CompletionOptions struct {
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// CompletionService is the completion producer boundary: one blocking call,
// raw text out, failures surfaced through the producer error taxonomy.
type CompletionService interface {
	Name() string
	Probe(ctx context.Context) bool
	Complete(ctx context.Context, systemPrompt, userPrompt string, opts CompletionOptions) (string, error)
}

// Choose picks a completion backend. An explicit backend in the configuration
// is honored without probing siblings; otherwise the ranked list
// ollama, openai, gemini is probed and the first available backend returned.
func Choose(ctx context.Context, cfg *config.Config, logger *slog.Logger) (CompletionService, error) {
	candidates := rankedCandidates(cfg, logger)

	if cfg.CompletionBackend != "" {
		for _, c := range candidates {
			if c.Name() == cfg.CompletionBackend {
				return c, nil
			}
		}
		return nil, fmt.Errorf("unknown completion backend: %s", cfg.CompletionBackend)
	}

	for _, c := range candidates {
		if c.Probe(ctx) {
			logger.Info("Selected completion backend", slog.String("backend", c.Name()))
			return c, nil
		}
		logger.Debug("Completion backend unavailable", slog.String("backend", c.Name()))
	}

	return nil, fmt.Errorf("no completion backend available (is Ollama running?)")
}

func rankedCandidates(cfg *config.Config, logger *slog.Logger) []CompletionService {
	candidates := []CompletionService{NewOllamaService(cfg, logger)}
	if cfg.OpenAIAPIKey != "" {
		candidates = append(candidates, NewOpenAIService(cfg, logger))
	}
	if cfg.GeminiAPIKey != "" {
		candidates = append(candidates, NewGeminiService(cfg, logger))
	}
	return candidates
}
