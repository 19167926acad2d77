package llm_service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/storyreel/storyreel/config"
	"github.com/storyreel/storyreel/producer"
)

// OllamaService talks to a local Ollama server. Long-form story generation can
// legitimately take several minutes, hence the generous client timeout.
type OllamaService struct {
	baseURL      string
	defaultModel string
	httpClient   *http.Client
	retryDelay   time.Duration
	logger       *slog.Logger

	probeOnce sync.Once
	probed    bool
}

func NewOllamaService(cfg *config.Config, logger *slog.Logger) *OllamaService {
	return &OllamaService{
		baseURL:      cfg.OllamaBaseURL,
		defaultModel: cfg.OllamaModel,
		httpClient:   &http.Client{Timeout: 10 * time.Minute},
		retryDelay:   5 * time.Second,
		logger:       logger,
	}
}

func (s *OllamaService) Name() string { return "ollama" }

// Probe checks the server's tag listing once and caches the answer.
func (s *OllamaService) Probe(ctx context.Context) bool {
	s.probeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, "GET", s.baseURL+"/api/tags", nil)
		if err != nil {
			return
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return
		}
		defer resp.Body.Close()
		s.probed = resp.StatusCode == http.StatusOK
	})
	return s.probed
}

func (s *OllamaService) Complete(ctx context.Context, systemPrompt, userPrompt string, opts CompletionOptions) (string, error) {
	maxRetries := 3

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		response, err := s.callOllama(ctx, systemPrompt, userPrompt, opts)
		if err == nil {
			return response, nil
		}
		lastErr = err

		// Connectivity and timeout failures are not transient model hiccups;
		// retrying them only delays the unit's failure report.
		var connErr *producer.ConnectivityError
		var toErr *producer.TimeoutError
		if errors.As(err, &connErr) || errors.As(err, &toErr) {
			return "", err
		}

		if attempt < maxRetries {
			s.logger.Warn("Ollama attempt failed, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("retry_delay", s.retryDelay),
				slog.String("error", err.Error()))
			time.Sleep(s.retryDelay)
		}
	}

	s.logger.Error("Error calling Ollama after multiple attempts",
		slog.Int("attempts", maxRetries),
		slog.String("error", lastErr.Error()))
	return "", fmt.Errorf("failed to call Ollama after %d attempts: %w", maxRetries, lastErr)
}

func (s *OllamaService) callOllama(ctx context.Context, systemPrompt, userPrompt string, opts CompletionOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = s.defaultModel
	}

	options := map[string]interface{}{}
	if opts.Temperature > 0 {
		options["temperature"] = opts.Temperature
	}
	if opts.TopP > 0 {
		options["top_p"] = opts.TopP
	}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}

	requestBody, err := json.Marshal(map[string]interface{}{
		"model":   model,
		"prompt":  userPrompt,
		"system":  systemPrompt,
		"stream":  false,
		"options": options,
	})
	if err != nil {
		return "", fmt.Errorf("error marshaling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/api/generate", bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", s.classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &producer.ProducerError{
			Producer: s.Name(),
			Err:      fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200)),
		}
	}

	var result struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("error unmarshaling response: %w", err)
	}

	return result.Response, nil
}

func (s *OllamaService) classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &producer.TimeoutError{Producer: s.Name(), Err: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return &producer.TimeoutError{Producer: s.Name(), Err: err}
		}
		var opErr *net.OpError
		if errors.As(urlErr.Err, &opErr) {
			return &producer.ConnectivityError{Producer: s.Name(), Err: err}
		}
	}
	return &producer.ConnectivityError{Producer: s.Name(), Err: err}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
