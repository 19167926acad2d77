package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/storyreel/storyreel/assembler"
	"github.com/storyreel/storyreel/config"
	"github.com/storyreel/storyreel/imagegen"
	"github.com/storyreel/storyreel/llm_service"
	"github.com/storyreel/storyreel/logging"
	"github.com/storyreel/storyreel/media"
	"github.com/storyreel/storyreel/notify"
	"github.com/storyreel/storyreel/pipeline"
	"github.com/storyreel/storyreel/research"
	"github.com/storyreel/storyreel/script"
	"github.com/storyreel/storyreel/search"
	"github.com/storyreel/storyreel/server"
	"github.com/storyreel/storyreel/tts"
	"github.com/storyreel/storyreel/upload"
	"github.com/storyreel/storyreel/videogen"
	"github.com/storyreel/storyreel/visuals"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := config.Load()
	logger, err := setupLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logging:", err)
		os.Exit(1)
	}

	var runErr error
	switch os.Args[1] {
	case "generate":
		runErr = runGenerate(cfg, logger, os.Args[2:], false)
	case "longform":
		runErr = runGenerate(cfg, logger, os.Args[2:], true)
	case "serve":
		runErr = runServe(cfg, logger, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if runErr != nil {
		logger.Error("Command failed", slog.String("error", runErr.Error()))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: storyreel <command> [flags]

commands:
  generate   produce a short-form video from an idea
  longform   produce a multi-part long-form video from an idea
  serve      serve finished runs over HTTP`)
}

func setupLogger(cfg *config.Config) (*slog.Logger, error) {
	handler, err := logging.NewDailyFileHandler(cfg.LogDir, &slog.HandlerOptions{Level: slog.LevelDebug})
	if err != nil {
		return nil, err
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}

func runGenerate(cfg *config.Config, logger *slog.Logger, args []string, longform bool) error {
	name := "generate"
	if longform {
		name = "longform"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	idea := fs.String("idea", "", "story idea to develop (required)")
	outputDir := fs.String("output", "", "run directory (default: a fresh directory under the configured output root)")
	configFile := fs.String("config", "", "YAML project file overlaid on the environment configuration")
	skipResearch := fs.Bool("skip-research", false, "reuse or default the research brief instead of regenerating it")
	skipVisuals := fs.Bool("skip-visuals", false, "reuse the persisted visual manifest instead of regenerating")
	skipVideo := fs.Bool("skip-video", false, "skip motion synthesis, animate stills instead")
	storyOnly := fs.Bool("story-only", false, "stop after writing the script")
	imagesOnly := fs.Bool("images-only", false, "stop after generating visuals")
	noBGM := fs.Bool("no-bgm", false, "skip background music")
	bgmPath := fs.String("bgm", "", "background music file (default: first track in the music directory)")
	doUpload := fs.Bool("upload", false, "upload the final video to YouTube")
	doNotify := fs.Bool("notify", false, "send an SMS when the run finishes")
	var parts string
	if longform {
		fs.StringVar(&parts, "parts", "", "part range to process, e.g. 3-7 or 5 (default: all)")
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	startPart, endPart, err := parsePartRange(parts)
	if err != nil {
		return err
	}
	if *idea == "" && *outputDir == "" {
		return fmt.Errorf("either -idea or -output (for a resumed run) is required")
	}
	if *configFile != "" {
		if err := cfg.ApplyFile(*configFile); err != nil {
			return err
		}
	}

	ctx := context.Background()
	orch, err := buildOrchestrator(ctx, cfg, logger, *skipVideo)
	if err != nil {
		return err
	}

	summary, err := orch.Run(ctx, pipeline.Options{
		Idea:         *idea,
		OutputDir:    *outputDir,
		Longform:     longform,
		SkipResearch: *skipResearch,
		SkipVisuals:  *skipVisuals,
		StoryOnly:    *storyOnly,
		ImagesOnly:   *imagesOnly,
		NoBGM:        *noBGM,
		BGMPath:      *bgmPath,
		StartPart:    startPart,
		EndPart:      endPart,
		Upload:       *doUpload,
		Notify:       *doNotify,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Run %s finished: %d/%d scenes", summary.RunID, summary.ScenesCompleted, summary.ScenesExpected)
	if summary.FinalVideoPath != "" {
		fmt.Printf(", final video at %s", summary.FinalVideoPath)
	}
	fmt.Println()
	return nil
}

// parsePartRange accepts "3-7" or a single "5"; an empty string means the
// full range.
func parsePartRange(s string) (int, int, error) {
	if s == "" {
		return 0, 0, nil
	}
	var start, end int
	if n, err := fmt.Sscanf(s, "%d-%d", &start, &end); err == nil && n == 2 {
		if start < 1 || end < start {
			return 0, 0, fmt.Errorf("invalid part range %q", s)
		}
		return start, end, nil
	}
	if n, err := fmt.Sscanf(s, "%d", &start); err == nil && n == 1 {
		if start < 1 {
			return 0, 0, fmt.Errorf("invalid part %q", s)
		}
		return start, start, nil
	}
	return 0, 0, fmt.Errorf("invalid part range %q, expected N or N-M", s)
}

// buildOrchestrator wires the concrete producers behind the pipeline's stage
// boundaries. Backend selection probes run here, once, before any stage.
func buildOrchestrator(ctx context.Context, cfg *config.Config, logger *slog.Logger, stillsOnly bool) (*pipeline.Orchestrator, error) {
	llm, err := llm_service.Choose(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	voice, err := tts.Choose(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	searcher := search.NewSearxNGService(cfg, logger)
	researcher := research.NewAgent(cfg, llm, searcher, logger)
	scripter := script.NewGenerator(cfg, llm, logger)

	var motion visuals.MotionProducer
	if !stillsOnly {
		motion = videogen.NewWanService(cfg, logger)
	}
	visualGen := visuals.NewGenerator(cfg,
		imagegen.NewImageService(cfg, logger),
		imagegen.NewConsistencyService(cfg, logger),
		motion,
		logger)

	exec := media.NewFFmpegExecutor(cfg, logger)
	asm, err := assembler.New(cfg, exec, voice, logger)
	if err != nil {
		return nil, err
	}

	orch := pipeline.New(cfg, researcher, scripter, visualGen, asm, logger).
		WithUploader(upload.New(cfg, logger))
	if notifier := notify.New(cfg, logger); notifier != nil {
		orch.WithNotifier(notifier)
	}
	return orch, nil
}

func runServe(cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	fs.StringVar(&cfg.HTTPPort, "port", cfg.HTTPPort, "HTTP port for development mode")
	if err := fs.Parse(args); err != nil {
		return err
	}

	h := server.NewHandler(cfg, logger)
	n := server.SetupNegroni(server.SetupRoutes(h))

	if cfg.Environment == "production" {
		server.ServeProduction(cfg, n)
	} else {
		logger.Info("Serving runs", slog.String("port", cfg.HTTPPort))
		srv := &http.Server{
			Addr:         ":" + cfg.HTTPPort,
			Handler:      n,
			IdleTimeout:  time.Minute,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 30 * time.Second,
		}
		server.ServeDevelopment(srv)
	}
	return nil
}
