package tts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/storyreel/storyreel/config"
	"github.com/storyreel/storyreel/producer"
)

const chatterboxTimeout = 3 * time.Minute

// ChatterboxService runs the ChatterBox synthesis script as a subprocess.
// Preferred backend: best quality, needs a GPU and a local installation.
type ChatterboxService struct {
	scriptPath string
	device     string
	voiceRef   string
	logger     *slog.Logger
}

func NewChatterboxService(cfg *config.Config, logger *slog.Logger) *ChatterboxService {
	return &ChatterboxService{
		scriptPath: cfg.ChatterboxScript,
		device:     cfg.ChatterboxDevice,
		voiceRef:   cfg.ChatterboxVoiceRef,
		logger:     logger,
	}
}

func (s *ChatterboxService) Name() string { return "chatterbox" }

func (s *ChatterboxService) Probe(ctx context.Context) bool {
	if _, err := os.Stat(s.scriptPath); err != nil {
		return false
	}
	_, err := exec.LookPath("python3")
	return err == nil
}

func (s *ChatterboxService) Synthesize(ctx context.Context, text, outputPath string) (string, error) {
	outputPath = withExtension(outputPath, ".wav")
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return "", fmt.Errorf("creating audio directory: %w", err)
	}

	// The narration text goes through a file: scene narration routinely
	// contains quotes and newlines that are hostile to argv.
	textFile := outputPath + ".txt"
	if err := os.WriteFile(textFile, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("writing narration text: %w", err)
	}
	defer os.Remove(textFile)

	ctx, cancel := context.WithTimeout(ctx, chatterboxTimeout)
	defer cancel()

	args := []string{
		s.scriptPath,
		"--text-file", textFile,
		"--output", outputPath,
		"--device", s.device,
	}
	if s.voiceRef != "" {
		args = append(args, "--voice-ref", s.voiceRef)
	}

	cmd := exec.CommandContext(ctx, "python3", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", &producer.TimeoutError{Producer: s.Name(), Err: ctx.Err()}
		}
		return "", &producer.ProducerError{
			Producer: s.Name(),
			Err:      fmt.Errorf("synthesis failed: %w: %s", err, tail(string(output), 300)),
		}
	}

	if _, err := os.Stat(outputPath); err != nil {
		return "", &producer.ProducerError{Producer: s.Name(), Err: fmt.Errorf("no output file produced")}
	}

	return outputPath, nil
}

func withExtension(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

func tail(s string, n int) string {
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}
