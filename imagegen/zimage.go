// Package imagegen wraps the two local image producers: the Z-Image
// text-to-image server and the Qwen-Image-Edit consistency server.
package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/storyreel/storyreel/config"
	"github.com/storyreel/storyreel/producer"
)

// ImageService generates base images through a local Z-Image inference server.
// The model is a heavy accelerator-memory consumer, so the orchestrator drives
// Load/Unload explicitly under constrained memory.
type ImageService struct {
	baseURL    string
	width      int
	height     int
	httpClient *http.Client
	logger     *slog.Logger

	probeOnce sync.Once
	probed    bool
	loaded    bool
}

func NewImageService(cfg *config.Config, logger *slog.Logger) *ImageService {
	return &ImageService{
		baseURL:    cfg.ZImageURL,
		width:      cfg.VideoWidth,
		height:     cfg.VideoHeight,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		logger:     logger,
	}
}

func (s *ImageService) Name() string { return "zimage" }

func (s *ImageService) Probe(ctx context.Context) bool {
	s.probeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, "GET", s.baseURL+"/health", nil)
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

// Load asks the server to bring the diffusion weights into memory.
func (s *ImageService) Load(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	if err := s.post(ctx, "/load", nil, nil); err != nil {
		return err
	}
	s.loaded = true
	s.logger.Info("Image model loaded")
	return nil
}

// Unload frees accelerator memory so the video model can take its place.
func (s *ImageService) Unload(ctx context.Context) error {
	if !s.loaded {
		return nil
	}
	if err := s.post(ctx, "/unload", nil, nil); err != nil {
		return err
	}
	s.loaded = false
	s.logger.Info("Image model unloaded")
	return nil
}

type txt2imgRequest struct {
	Prompt   string  `json:"prompt"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Steps    int     `json:"steps"`
	Guidance float64 `json:"guidance"`
	Seed     int64   `json:"seed,omitempty"`
}

type imageResponse struct {
	Image string `json:"image"`
	Error string `json:"error,omitempty"`
}

// GenerateToFile synthesizes an image for the prompt and writes it as PNG.
func (s *ImageService) GenerateToFile(ctx context.Context, prompt, outputPath string) error {
	reqBody := txt2imgRequest{
		Prompt:   prompt,
		Width:    s.width,
		Height:   s.height,
		Steps:    8,
		Guidance: 3.5,
	}

	var resp imageResponse
	if err := s.post(ctx, "/txt2img", reqBody, &resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return &producer.ProducerError{Producer: s.Name(), Err: errors.New(resp.Error)}
	}

	return writeBase64Image(resp.Image, outputPath, s.Name())
}

func (s *ImageService) post(ctx context.Context, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &producer.TimeoutError{Producer: s.Name(), Err: err}
		}
		return &producer.ConnectivityError{Producer: s.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return &producer.ProducerError{
			Producer: s.Name(),
			Err:      fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(data)),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &producer.ProducerError{Producer: s.Name(), Err: fmt.Errorf("decoding response: %w", err)}
		}
	}
	return nil
}

func writeBase64Image(encoded, outputPath, producerName string) error {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return &producer.ProducerError{Producer: producerName, Err: fmt.Errorf("decoding image payload: %w", err)}
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("creating image directory: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("writing image: %w", err)
	}
	return nil
}
