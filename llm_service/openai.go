package llm_service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/storyreel/storyreel/config"
	"github.com/storyreel/storyreel/producer"
)

// OpenAIService covers OpenAI and any OpenAI-compatible endpoint reachable
// through a custom base URL.
type OpenAIService struct {
	client       *openai.Client
	defaultModel string
	logger       *slog.Logger

	probeOnce sync.Once
	probed    bool
}

func NewOpenAIService(cfg *config.Config, logger *slog.Logger) *OpenAIService {
	clientConfig := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientConfig.BaseURL = cfg.OpenAIBaseURL
	}
	return &OpenAIService{
		client:       openai.NewClientWithConfig(clientConfig),
		defaultModel: cfg.OpenAIModel,
		logger:       logger,
	}
}

func (s *OpenAIService) Name() string { return "openai" }

func (s *OpenAIService) Probe(ctx context.Context) bool {
	s.probeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		_, err := s.client.ListModels(ctx)
		s.probed = err == nil
	})
	return s.probed
}

func (s *OpenAIService) Complete(ctx context.Context, systemPrompt, userPrompt string, opts CompletionOptions) (string, error) {
	maxRetries := 3
	retryDelay := 5 * time.Second

	model := opts.Model
	if model == "" {
		model = s.defaultModel
	}

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	}
	if opts.Temperature > 0 {
		req.Temperature = float32(opts.Temperature)
	}
	if opts.TopP > 0 {
		req.TopP = float32(opts.TopP)
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		resp, err := s.client.CreateChatCompletion(ctx, req)
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", &producer.ProducerError{Producer: s.Name(), Err: fmt.Errorf("empty choices in response")}
			}
			return resp.Choices[0].Message.Content, nil
		}

		if errors.Is(err, context.DeadlineExceeded) {
			return "", &producer.TimeoutError{Producer: s.Name(), Err: err}
		}
		lastErr = err

		if attempt < maxRetries {
			s.logger.Warn("OpenAI attempt failed, retrying",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			time.Sleep(retryDelay)
		}
	}

	return "", fmt.Errorf("failed to call OpenAI after %d attempts: %w", maxRetries, lastErr)
}
