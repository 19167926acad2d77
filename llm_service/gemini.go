package llm_service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/storyreel/storyreel/config"
	"github.com/storyreel/storyreel/producer"
)

// GeminiService is the hosted fallback backend. The client is created lazily
// because construction needs a context.
type GeminiService struct {
	apiKey       string
	defaultModel string
	logger       *slog.Logger

	mu     sync.Mutex
	client *genai.Client
}

func NewGeminiService(cfg *config.Config, logger *slog.Logger) *GeminiService {
	return &GeminiService{
		apiKey:       cfg.GeminiAPIKey,
		defaultModel: cfg.GeminiModel,
		logger:       logger,
	}
}

func (s *GeminiService) Name() string { return "gemini" }

func (s *GeminiService) Probe(ctx context.Context) bool {
	if s.apiKey == "" {
		return false
	}
	_, err := s.getClient(ctx)
	return err == nil
}

func (s *GeminiService) getClient(ctx context.Context) (*genai.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(s.apiKey))
	if err != nil {
		return nil, &producer.ConnectivityError{Producer: s.Name(), Err: err}
	}
	s.client = client
	return client, nil
}

func (s *GeminiService) Complete(ctx context.Context, systemPrompt, userPrompt string, opts CompletionOptions) (string, error) {
	client, err := s.getClient(ctx)
	if err != nil {
		return "", err
	}

	modelName := opts.Model
	if modelName == "" {
		modelName = s.defaultModel
	}

	model := client.GenerativeModel(modelName)
	if systemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	}
	if opts.Temperature > 0 {
		model.SetTemperature(float32(opts.Temperature))
	}
	if opts.TopP > 0 {
		model.SetTopP(float32(opts.TopP))
	}
	if opts.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(opts.MaxTokens))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &producer.TimeoutError{Producer: s.Name(), Err: err}
		}
		return "", &producer.ProducerError{Producer: s.Name(), Err: err}
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", &producer.ProducerError{Producer: s.Name(), Err: fmt.Errorf("empty candidates in response")}
	}

	var out string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out += string(text)
		}
	}
	return out, nil
}
