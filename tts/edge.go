package tts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/storyreel/storyreel/config"
	"github.com/storyreel/storyreel/producer"
)

const edgeTimeout = 2 * time.Minute

// EdgeService shells out to the edge-tts CLI. Fallback backend: no GPU,
// works anywhere the CLI is installed, network required.
type EdgeService struct {
	voice  string
	logger *slog.Logger
}

func NewEdgeService(cfg *config.Config, logger *slog.Logger) *EdgeService {
	return &EdgeService{
		voice:  cfg.EdgeVoice,
		logger: logger,
	}
}

func (s *EdgeService) Name() string { return "edge" }

func (s *EdgeService) Probe(ctx context.Context) bool {
	_, err := exec.LookPath("edge-tts")
	return err == nil
}

func (s *EdgeService) Synthesize(ctx context.Context, text, outputPath string) (string, error) {
	outputPath = withExtension(outputPath, ".mp3")
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return "", fmt.Errorf("creating audio directory: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, edgeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "edge-tts",
		"--voice", s.voice,
		"--text", text,
		"--write-media", outputPath)

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", &producer.TimeoutError{Producer: s.Name(), Err: ctx.Err()}
		}
		return "", &producer.ProducerError{
			Producer: s.Name(),
			Err:      fmt.Errorf("edge-tts failed: %w: %s", err, tail(string(output), 300)),
		}
	}

	return outputPath, nil
}
