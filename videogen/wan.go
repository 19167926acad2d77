// Package videogen wraps the local Wan 2.2 image-to-video model, which is
// invoked through its repository's generate script.
package videogen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/storyreel/storyreel/config"
	"github.com/storyreel/storyreel/producer"
)

// Motion synthesis runs for tens of minutes per clip on consumer hardware.
const generateTimeout = 30 * time.Minute

type WanService struct {
	repoPath    string
	modelPath   string
	size        string
	sampleSteps int
	logger      *slog.Logger
	available   bool
}

func NewWanService(cfg *config.Config, logger *slog.Logger) *WanService {
	s := &WanService{
		repoPath:    cfg.WanRepoPath,
		modelPath:   cfg.WanModelPath,
		size:        cfg.WanVideoSize,
		sampleSteps: cfg.WanSampleSteps,
		logger:      logger,
	}
	s.checkInstallation()
	return s
}

func (s *WanService) Name() string { return "wan2.2" }

func (s *WanService) checkInstallation() {
	if _, err := os.Stat(filepath.Join(s.repoPath, "generate.py")); err != nil {
		s.logger.Info("Wan 2.2 repo not found, motion synthesis disabled",
			slog.String("repo_path", s.repoPath))
		return
	}
	if _, err := os.Stat(s.modelPath); err != nil {
		s.logger.Info("Wan 2.2 weights not found, motion synthesis disabled",
			slog.String("model_path", s.modelPath))
		return
	}
	s.available = true
}

// Probe reports whether the backing installation exists. Checked at
// construction; the filesystem does not change mid-run.
func (s *WanService) Probe(ctx context.Context) bool {
	return s.available
}

// GenerateToFile converts a still image into a short video clip driven by the
// motion prompt.
func (s *WanService) GenerateToFile(ctx context.Context, imagePath, prompt, outputPath string) error {
	if !s.available {
		return &producer.ProducerError{
			Producer: s.Name(),
			Err:      errors.New("installation not available"),
		}
	}

	absImage, err := filepath.Abs(imagePath)
	if err != nil {
		return fmt.Errorf("resolving image path: %w", err)
	}
	if _, err := os.Stat(absImage); err != nil {
		return fmt.Errorf("input image not found: %w", err)
	}
	absOutput, err := filepath.Abs(outputPath)
	if err != nil {
		return fmt.Errorf("resolving output path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absOutput), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	args := []string{
		filepath.Join(s.repoPath, "generate.py"),
		"--task", "i2v-A14B",
		"--size", s.size,
		"--ckpt_dir", s.modelPath,
		"--image", absImage,
		"--prompt", prompt,
		"--save_file", absOutput,
		"--offload_model", "True",
		"--t5_cpu",
		"--convert_model_dtype",
		"--sample_steps", strconv.Itoa(s.sampleSteps),
	}

	s.logger.Info("Generating video clip",
		slog.String("image", absImage),
		slog.String("prompt", prompt))

	cmd := exec.CommandContext(ctx, "python3", args...)
	cmd.Dir = s.repoPath

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return &producer.TimeoutError{Producer: s.Name(), Err: ctx.Err()}
		}
		return &producer.ProducerError{
			Producer: s.Name(),
			Err:      fmt.Errorf("generate script failed: %w: %s", err, tail(string(output), 500)),
		}
	}

	if _, err := os.Stat(absOutput); err != nil {
		return &producer.ProducerError{
			Producer: s.Name(),
			Err:      errors.New("generate script produced no output file"),
		}
	}

	return nil
}

func tail(s string, n int) string {
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}
