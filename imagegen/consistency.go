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
	"sync"
	"time"

	"github.com/storyreel/storyreel/config"
)

// EditResult distinguishes "edited successfully" from "skipped, used the
// original"; callers and tests should not have to compare file bytes to know
// which happened.
type EditResult struct {
	Path       string
	Edited     bool
	SkipReason string
}

// ConsistencyService re-edits a scene image against the character reference
// image using a local Qwen-Image-Edit server. Consistency editing is a
// non-critical producer: every failure degrades to the unedited source image.
type ConsistencyService struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	probeOnce sync.Once
	probed    bool
}

func NewConsistencyService(cfg *config.Config, logger *slog.Logger) *ConsistencyService {
	return &ConsistencyService{
		baseURL:    cfg.QwenEditURL,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		logger:     logger,
	}
}

func (s *ConsistencyService) Name() string { return "qwen-image-edit" }

func (s *ConsistencyService) Probe(ctx context.Context) bool {
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

type editRequest struct {
	SourceImage          string `json:"source_image"`
	ReferenceImage       string `json:"reference_image"`
	Prompt               string `json:"prompt"`
	CharacterDescription string `json:"character_description"`
}

// ApplyToFile edits sourceImage to match referenceImage's character and writes
// the result to outputPath. On any failure the source image bytes are copied
// to outputPath unchanged and the returned EditResult carries the skip reason;
// the error return is reserved for the copy itself failing.
func (s *ConsistencyService) ApplyToFile(ctx context.Context, sourceImage, referenceImage, outputPath, prompt, characterDescription string) (EditResult, error) {
	edited, err := s.edit(ctx, sourceImage, referenceImage, outputPath, prompt, characterDescription)
	if err == nil && edited {
		return EditResult{Path: outputPath, Edited: true}, nil
	}

	reason := "producer unavailable"
	if err != nil {
		reason = err.Error()
		s.logger.Warn("Consistency edit failed, keeping source image",
			slog.String("source", sourceImage),
			slog.String("error", reason))
	}

	src, copyErr := os.ReadFile(sourceImage)
	if copyErr != nil {
		return EditResult{}, fmt.Errorf("reading source image for fallback: %w", copyErr)
	}
	if copyErr := os.WriteFile(outputPath, src, 0644); copyErr != nil {
		return EditResult{}, fmt.Errorf("writing fallback image: %w", copyErr)
	}

	return EditResult{Path: outputPath, Edited: false, SkipReason: reason}, nil
}

func (s *ConsistencyService) edit(ctx context.Context, sourceImage, referenceImage, outputPath, prompt, characterDescription string) (bool, error) {
	if !s.Probe(ctx) {
		return false, nil
	}

	srcData, err := os.ReadFile(sourceImage)
	if err != nil {
		return false, fmt.Errorf("reading source image: %w", err)
	}
	refData, err := os.ReadFile(referenceImage)
	if err != nil {
		return false, fmt.Errorf("reading reference image: %w", err)
	}

	reqBody, err := json.Marshal(editRequest{
		SourceImage:          base64.StdEncoding.EncodeToString(srcData),
		ReferenceImage:       base64.StdEncoding.EncodeToString(refData),
		Prompt:               prompt,
		CharacterDescription: characterDescription,
	})
	if err != nil {
		return false, fmt.Errorf("marshaling edit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/edit", bytes.NewReader(reqBody))
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(data))
	}

	var editResp imageResponse
	if err := json.NewDecoder(resp.Body).Decode(&editResp); err != nil {
		return false, fmt.Errorf("decoding edit response: %w", err)
	}
	if editResp.Error != "" {
		return false, errors.New(editResp.Error)
	}

	if err := writeBase64Image(editResp.Image, outputPath, s.Name()); err != nil {
		return false, err
	}
	return true, nil
}
