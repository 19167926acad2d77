// Package pipeline sequences the generation stages: research, script,
// visuals, assembly, and the optional publish steps. Stages run strictly in
// order; concurrency lives inside stages, never between them.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/storyreel/storyreel/assembler"
	"github.com/storyreel/storyreel/config"
	"github.com/storyreel/storyreel/research"
	"github.com/storyreel/storyreel/story"
)

// Researcher produces the research brief for an idea.
type Researcher interface {
	Research(ctx context.Context, idea string) *story.ResearchResult
}

// Scripter turns an idea plus brief into a story script.
type Scripter interface {
	Generate(ctx context.Context, idea string, brief *story.ResearchResult) (*story.Story, error)
	GenerateLongform(ctx context.Context, idea string, brief *story.ResearchResult) (*story.Story, error)
}

// Visualizer produces per-scene visual assets.
type Visualizer interface {
	Generate(ctx context.Context, s *story.Story, outputDir string) (*story.Manifest, error)
}

// VideoAssembler builds final videos from assets.
type VideoAssembler interface {
	Assemble(ctx context.Context, s *story.Story, m *story.Manifest, outputDir string, opts assembler.Options) (*story.FinalVideo, error)
	ConcatenateParts(ctx context.Context, s *story.Story, partVideos []string, outputPath string) (*story.FinalVideo, error)
}

// Uploader publishes a finished video and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, video *story.FinalVideo, s *story.Story) (string, error)
}

// Notifier sends a short out-of-band status message.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Options selects what a single run does. Zero values mean the full
// short-form pipeline.
type Options struct {
	Idea      string
	OutputDir string // run directory; empty derives one from the run ID
	Longform  bool

	SkipResearch bool
	SkipVisuals  bool // reuse the persisted manifest instead of regenerating
	StoryOnly    bool // stop after the script is written
	ImagesOnly   bool // stop after visuals, skip assembly

	NoBGM   bool
	BGMPath string

	// Long-form part range, 1-based inclusive. Zero means the full range.
	StartPart int
	EndPart   int

	Upload bool
	Notify bool
}

// Summary is the run's terminal record, persisted as summary.json.
type Summary struct {
	RunID           string    `json:"run_id"`
	Idea            string    `json:"idea"`
	Longform        bool      `json:"longform"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	ScenesExpected  int       `json:"scenes_expected"`
	ScenesCompleted int       `json:"scenes_completed"`
	PartsExpected   int       `json:"parts_expected,omitempty"`
	PartsCompleted  int       `json:"parts_completed,omitempty"`
	FinalVideoPath  string    `json:"final_video_path,omitempty"`
	UploadURL       string    `json:"upload_url,omitempty"`
	Warnings        []string  `json:"warnings,omitempty"`
}

// Orchestrator owns the stage sequence for one or more runs.
type Orchestrator struct {
	cfg        *config.Config
	researcher Researcher
	scripter   Scripter
	visuals    Visualizer
	assembler  VideoAssembler
	uploader   Uploader
	notifier   Notifier
	logger     *slog.Logger
}

func New(cfg *config.Config, r Researcher, s Scripter, v Visualizer, a VideoAssembler, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		researcher: r,
		scripter:   s,
		visuals:    v,
		assembler:  a,
		logger:     logger,
	}
}

// WithUploader attaches an optional publish step.
func (o *Orchestrator) WithUploader(u Uploader) *Orchestrator {
	o.uploader = u
	return o
}

// WithNotifier attaches an optional notification step.
func (o *Orchestrator) WithNotifier(n Notifier) *Orchestrator {
	o.notifier = n
	return o
}

// Run executes one pipeline run end to end. Stage artifacts already present
// in the run directory are reused instead of regenerated, which is what makes
// part-range resumption work.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Summary, error) {
	summary := &Summary{
		RunID:     uuid.New().String(),
		Idea:      opts.Idea,
		Longform:  opts.Longform,
		StartedAt: time.Now().UTC(),
	}

	runDir := opts.OutputDir
	if runDir == "" {
		runDir = filepath.Join(o.cfg.OutputDir, summary.RunID)
	}
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("creating run directory: %w", err)
	}

	o.logger.Info("Pipeline run starting",
		slog.String("run_id", summary.RunID),
		slog.String("idea", opts.Idea),
		slog.Bool("longform", opts.Longform),
		slog.String("dir", runDir))

	s, err := o.prepareStory(ctx, opts, runDir, summary)
	if err != nil {
		return o.finish(ctx, summary, runDir, opts.Notify, err)
	}
	summary.ScenesExpected = len(s.AllScenes())
	summary.PartsExpected = len(s.Parts)

	if opts.StoryOnly {
		return o.finish(ctx, summary, runDir, opts.Notify, nil)
	}

	if opts.Longform || s.IsLongform() {
		err = o.runLongform(ctx, s, opts, runDir, summary)
	} else {
		err = o.runShortform(ctx, s, opts, runDir, summary)
	}
	return o.finish(ctx, summary, runDir, opts.Notify, err)
}

// prepareStory loads a checkpointed script when one exists, otherwise runs
// research and script generation and checkpoints the results.
func (o *Orchestrator) prepareStory(ctx context.Context, opts Options, runDir string, summary *Summary) (*story.Story, error) {
	storyPath := filepath.Join(runDir, "story.json")
	if s, err := story.LoadStory(storyPath); err == nil {
		o.logger.Info("Reusing checkpointed story", slog.String("path", storyPath))
		return s, nil
	}

	var brief *story.ResearchResult
	researchPath := filepath.Join(runDir, "research.json")
	if opts.SkipResearch {
		if loaded, err := research.LoadResearch(researchPath); err == nil {
			brief = loaded
		} else {
			brief = story.DefaultResearch(opts.Idea)
		}
	} else {
		brief = o.researcher.Research(ctx, opts.Idea)
		if err := research.SaveResearch(brief, researchPath); err != nil {
			o.warn(summary, fmt.Sprintf("failed to persist research: %v", err))
		}
	}

	var s *story.Story
	var err error
	if opts.Longform {
		s, err = o.scripter.GenerateLongform(ctx, opts.Idea, brief)
	} else {
		s, err = o.scripter.Generate(ctx, opts.Idea, brief)
	}
	if err != nil {
		return nil, fmt.Errorf("script generation: %w", err)
	}

	if err := s.Save(storyPath); err != nil {
		o.warn(summary, fmt.Sprintf("failed to checkpoint story: %v", err))
	}
	return s, nil
}

func (o *Orchestrator) runShortform(ctx context.Context, s *story.Story, opts Options, runDir string, summary *Summary) error {
	manifest, err := o.sceneVisuals(ctx, s, opts, filepath.Join(runDir, "visuals"))
	if err != nil {
		return fmt.Errorf("visual generation: %w", err)
	}
	summary.ScenesCompleted = completedScenes(manifest)
	if summary.ScenesCompleted < summary.ScenesExpected {
		o.warn(summary, fmt.Sprintf("visuals completed for %d of %d scenes",
			summary.ScenesCompleted, summary.ScenesExpected))
	}

	if opts.ImagesOnly {
		return nil
	}

	fv, err := o.assembler.Assemble(ctx, s, manifest, filepath.Join(runDir, "assembly"),
		assembler.Options{NoBGM: opts.NoBGM, BGMPath: opts.BGMPath})
	if err != nil {
		return fmt.Errorf("assembly: %w", err)
	}
	summary.FinalVideoPath = fv.OutputPath
	return o.publish(ctx, fv, s, opts, summary)
}

// runLongform processes the selected part range. A failed part is skipped
// with a warning; the full-story concatenation only happens once every part
// video exists on disk, possibly across multiple invocations.
func (o *Orchestrator) runLongform(ctx context.Context, s *story.Story, opts Options, runDir string, summary *Summary) error {
	start, end := partRange(opts, len(s.Parts))
	if start > end {
		return fmt.Errorf("invalid part range %d-%d for %d parts", opts.StartPart, opts.EndPart, len(s.Parts))
	}

	for _, p := range s.Parts {
		if p.PartID < start || p.PartID > end {
			continue
		}
		if err := o.runPart(ctx, s, p, opts, runDir, summary); err != nil {
			o.warn(summary, fmt.Sprintf("part %d failed: %v", p.PartID, err))
			continue
		}
		summary.PartsCompleted++
	}

	if opts.ImagesOnly {
		return nil
	}

	partVideos := make([]string, 0, len(s.Parts))
	for _, p := range s.Parts {
		pv := partVideoPath(runDir, p.PartID)
		if !fileExists(pv) {
			o.logger.Info("Full-story concatenation deferred, part video missing",
				slog.Int("part", p.PartID))
			return nil
		}
		partVideos = append(partVideos, pv)
	}

	fv, err := o.assembler.ConcatenateParts(ctx, s, partVideos, filepath.Join(runDir, "full_story.mp4"))
	if err != nil {
		return fmt.Errorf("concatenating parts: %w", err)
	}
	summary.FinalVideoPath = fv.OutputPath
	return o.publish(ctx, fv, s, opts, summary)
}

func (o *Orchestrator) runPart(ctx context.Context, s *story.Story, p story.Part, opts Options, runDir string, summary *Summary) error {
	partDir := filepath.Join(runDir, fmt.Sprintf("part_%02d", p.PartID))
	partStory := s.PartStory(p)

	o.logger.Info("Processing part",
		slog.Int("part", p.PartID),
		slog.String("title", p.PartTitle))

	manifest, err := o.sceneVisuals(ctx, partStory, opts, filepath.Join(partDir, "visuals"))
	if err != nil {
		return fmt.Errorf("visual generation: %w", err)
	}
	summary.ScenesCompleted += completedScenes(manifest)

	if opts.ImagesOnly {
		return nil
	}

	fv, err := o.assembler.Assemble(ctx, partStory, manifest, filepath.Join(partDir, "assembly"),
		assembler.Options{NoBGM: opts.NoBGM, BGMPath: opts.BGMPath})
	if err != nil {
		return fmt.Errorf("assembly: %w", err)
	}

	return os.Rename(fv.OutputPath, partVideoPath(runDir, p.PartID))
}

// sceneVisuals generates the stage's assets, or reuses the persisted manifest
// when the caller opted out of regeneration.
func (o *Orchestrator) sceneVisuals(ctx context.Context, s *story.Story, opts Options, visualsDir string) (*story.Manifest, error) {
	if opts.SkipVisuals {
		manifest, err := story.LoadManifest(filepath.Join(visualsDir, "manifest.json"))
		if err != nil {
			return nil, fmt.Errorf("skip-visuals needs an existing manifest: %w", err)
		}
		o.logger.Info("Reusing persisted visual manifest", slog.String("dir", visualsDir))
		return manifest, nil
	}
	return o.visuals.Generate(ctx, s, visualsDir)
}

func (o *Orchestrator) publish(ctx context.Context, fv *story.FinalVideo, s *story.Story, opts Options, summary *Summary) error {
	recordPath := filepath.Join(filepath.Dir(fv.OutputPath), "final_video.json")
	if err := fv.Save(recordPath); err != nil {
		o.warn(summary, fmt.Sprintf("final video record not persisted: %v", err))
	}

	if opts.Upload && o.uploader != nil {
		url, err := o.uploader.Upload(ctx, fv, s)
		if err != nil {
			o.warn(summary, fmt.Sprintf("upload failed: %v", err))
		} else {
			summary.UploadURL = url
		}
	}
	return nil
}

// finish persists the summary and fires the notification. The run error, if
// any, passes through unchanged.
func (o *Orchestrator) finish(ctx context.Context, summary *Summary, runDir string, notify bool, runErr error) (*Summary, error) {
	summary.FinishedAt = time.Now().UTC()

	data, err := json.MarshalIndent(summary, "", "  ")
	if err == nil {
		if werr := os.WriteFile(filepath.Join(runDir, "summary.json"), data, 0644); werr != nil {
			o.logger.Warn("Failed to persist run summary", slog.String("error", werr.Error()))
		}
	}

	if notify && o.notifier != nil {
		msg := fmt.Sprintf("Run %s finished: %d/%d scenes", summary.RunID,
			summary.ScenesCompleted, summary.ScenesExpected)
		if runErr != nil {
			msg = fmt.Sprintf("Run %s failed: %v", summary.RunID, runErr)
		}
		if nerr := o.notifier.Notify(ctx, msg); nerr != nil {
			o.logger.Warn("Notification failed", slog.String("error", nerr.Error()))
		}
	}

	if runErr != nil {
		o.logger.Error("Pipeline run failed",
			slog.String("run_id", summary.RunID),
			slog.String("error", runErr.Error()))
		return summary, runErr
	}

	o.logger.Info("Pipeline run finished",
		slog.String("run_id", summary.RunID),
		slog.Int("scenes_completed", summary.ScenesCompleted),
		slog.String("final_video", summary.FinalVideoPath))
	return summary, nil
}

func (o *Orchestrator) warn(summary *Summary, msg string) {
	summary.Warnings = append(summary.Warnings, msg)
	o.logger.Warn(msg)
}

func partRange(opts Options, totalParts int) (int, int) {
	start, end := opts.StartPart, opts.EndPart
	if start <= 0 {
		start = 1
	}
	if end <= 0 || end > totalParts {
		end = totalParts
	}
	return start, end
}

func partVideoPath(runDir string, partID int) string {
	return filepath.Join(runDir, fmt.Sprintf("part_%02d.mp4", partID))
}

func completedScenes(m *story.Manifest) int {
	n := 0
	for _, a := range m.Assets {
		if a.BaseImagePath != "" {
			n++
		}
	}
	return n
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
