package assembler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/storyreel/storyreel/config"
	"github.com/storyreel/storyreel/story"
)

// fakeExecutor records operations and writes placeholder outputs.
type fakeExecutor struct {
	available    bool
	durations    map[string]float64
	combineFails map[string]bool // keyed by video path
	concatenated [][]string
	mixedMusic   []string
	mixFails     bool
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		available:    true,
		durations:    map[string]float64{},
		combineFails: map[string]bool{},
	}
}

func (f *fakeExecutor) Available() bool { return f.available }

func (f *fakeExecutor) ProbeDuration(path string) (float64, error) {
	if d, ok := f.durations[path]; ok {
		return d, nil
	}
	return 10.0, nil
}

func (f *fakeExecutor) CombineVideoAudio(_ context.Context, videoPath, _, outputPath string) error {
	if f.combineFails[videoPath] {
		return errors.New("combine failed")
	}
	return os.WriteFile(outputPath, []byte("clip"), 0644)
}

func (f *fakeExecutor) ImageToVideo(_ context.Context, _, outputPath string, _ float64, _ bool) error {
	return os.WriteFile(outputPath, []byte("still clip"), 0644)
}

func (f *fakeExecutor) Concatenate(_ context.Context, videoPaths []string, outputPath string) error {
	f.concatenated = append(f.concatenated, videoPaths)
	return os.WriteFile(outputPath, []byte("final"), 0644)
}

func (f *fakeExecutor) MixBackgroundMusic(_ context.Context, _, musicPath, outputPath string, _, _ float64) error {
	if f.mixFails {
		return errors.New("mix failed")
	}
	f.mixedMusic = append(f.mixedMusic, musicPath)
	return os.WriteFile(outputPath, []byte("final with music"), 0644)
}

type fakeVoice struct {
	failOnText string
}

func (f *fakeVoice) Name() string               { return "fake-voice" }
func (f *fakeVoice) Probe(context.Context) bool { return true }
func (f *fakeVoice) Synthesize(_ context.Context, text, outputPath string) (string, error) {
	if f.failOnText != "" && strings.Contains(text, f.failOnText) {
		return "", errors.New("synthesis failed")
	}
	if err := os.WriteFile(outputPath, []byte("audio"), 0644); err != nil {
		return "", err
	}
	return outputPath, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sixSceneFixture builds a story plus manifest with images for every scene.
func sixSceneFixture(t *testing.T, dir string) (*story.Story, *story.Manifest) {
	t.Helper()
	s := &story.Story{Title: "The Last Keeper"}
	m := &story.Manifest{TotalScenes: 6}
	for i := 1; i <= 6; i++ {
		s.Scenes = append(s.Scenes, story.Scene{
			SceneID:         i,
			DurationSeconds: 10,
			VisualPrompt:    fmt.Sprintf("scene %d", i),
			Narration:       fmt.Sprintf("narration %d", i),
		})
		imgPath := filepath.Join(dir, fmt.Sprintf("base_%d.png", i))
		if err := os.WriteFile(imgPath, []byte("img"), 0644); err != nil {
			t.Fatal(err)
		}
		m.Assets = append(m.Assets, story.VisualAsset{SceneID: i, BaseImagePath: imgPath})
	}
	return s, m
}

func newTestAssembler(t *testing.T, exec *fakeExecutor, voice *fakeVoice, bgmDir string) *Assembler {
	t.Helper()
	cfg := &config.Config{VideoWidth: 1280, VideoHeight: 720, BGMDir: bgmDir}
	a, err := New(cfg, exec, voice, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestNewFailsWithoutFFmpeg(t *testing.T) {
	exec := newFakeExecutor()
	exec.available = false
	if _, err := New(&config.Config{}, exec, &fakeVoice{}, testLogger()); err == nil {
		t.Fatal("expected error when ffmpeg is missing")
	}
}

func TestAssembleAllScenes(t *testing.T) {
	dir := t.TempDir()
	s, m := sixSceneFixture(t, dir)
	exec := newFakeExecutor()
	a := newTestAssembler(t, exec, &fakeVoice{}, "")

	fv, err := a.Assemble(context.Background(), s, m, dir, Options{NoBGM: true})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if len(exec.concatenated) != 1 {
		t.Fatalf("expected one concatenation, got %d", len(exec.concatenated))
	}
	if got := len(exec.concatenated[0]); got != 6 {
		t.Errorf("expected 6 clips concatenated, got %d", got)
	}
	if fv.Title != "The Last Keeper" {
		t.Errorf("Title = %q", fv.Title)
	}
	if !fileExists(fv.OutputPath) {
		t.Error("final video file missing")
	}
}

func TestAssembleSkipsFailedScene(t *testing.T) {
	dir := t.TempDir()
	s, m := sixSceneFixture(t, dir)
	exec := newFakeExecutor()
	// Scene 3's narration fails to synthesize.
	a := newTestAssembler(t, exec, &fakeVoice{failOnText: "narration 3"}, "")

	_, err := a.Assemble(context.Background(), s, m, dir, Options{NoBGM: true})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	clips := exec.concatenated[0]
	if len(clips) != 5 {
		t.Fatalf("expected 5 surviving clips, got %d", len(clips))
	}
	for _, c := range clips {
		if strings.Contains(c, "scene_003") {
			t.Error("failed scene should not appear in the final video")
		}
	}
	// Order preserved: 1, 2, 4, 5, 6.
	if !strings.Contains(clips[0], "scene_001") || !strings.Contains(clips[2], "scene_004") {
		t.Errorf("scene order broken: %v", clips)
	}
}

func TestAssembleWritesAudioManifest(t *testing.T) {
	dir := t.TempDir()
	s, m := sixSceneFixture(t, dir)
	exec := newFakeExecutor()
	exec.durations[filepath.Join(dir, "scene_002", "narration.wav")] = 7.25
	// Scene 5's narration fails; its record must not appear.
	a := newTestAssembler(t, exec, &fakeVoice{failOnText: "narration 5"}, "")

	if _, err := a.Assemble(context.Background(), s, m, dir, Options{NoBGM: true}); err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	assets, err := story.LoadAudioAssets(filepath.Join(dir, "audio_manifest.json"))
	if err != nil {
		t.Fatalf("LoadAudioAssets: %v", err)
	}
	if len(assets) != 5 {
		t.Fatalf("expected 5 narration records, got %d", len(assets))
	}
	for _, asset := range assets {
		if asset.SceneID == 5 {
			t.Error("failed scene should have no narration record")
		}
		if asset.AudioPath == "" {
			t.Errorf("scene %d record missing audio path", asset.SceneID)
		}
	}
	if assets[1].SceneID != 2 || assets[1].DurationSeconds != 7.25 {
		t.Errorf("scene 2 record = %+v, want measured duration 7.25", assets[1])
	}
}

func TestAssembleFailsWhenNoSceneSurvives(t *testing.T) {
	dir := t.TempDir()
	s, m := sixSceneFixture(t, dir)
	exec := newFakeExecutor()
	a := newTestAssembler(t, exec, &fakeVoice{failOnText: "narration"}, "")

	if _, err := a.Assemble(context.Background(), s, m, dir, Options{NoBGM: true}); err == nil {
		t.Fatal("expected error when every scene fails")
	}
}

func TestAssemblePrefersVideoClipOverStill(t *testing.T) {
	dir := t.TempDir()
	s := &story.Story{Title: "T", Scenes: []story.Scene{
		{SceneID: 1, DurationSeconds: 10, VisualPrompt: "a", Narration: "x"},
	}}
	clipPath := filepath.Join(dir, "wan_clip.mp4")
	imgPath := filepath.Join(dir, "base.png")
	for _, p := range []string{clipPath, imgPath} {
		if err := os.WriteFile(p, []byte("v"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	m := &story.Manifest{TotalScenes: 1, Assets: []story.VisualAsset{
		{SceneID: 1, BaseImagePath: imgPath, VideoClipPath: clipPath},
	}}

	exec := newFakeExecutor()
	a := newTestAssembler(t, exec, &fakeVoice{}, "")
	if _, err := a.Assemble(context.Background(), s, m, dir, Options{NoBGM: true}); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	// A generated clip means no still animation should be produced.
	if fileExists(filepath.Join(dir, "scene_001", "still_clip.mp4")) {
		t.Error("still clip produced despite an available video clip")
	}
}

func TestAssembleMixesBackgroundMusic(t *testing.T) {
	dir := t.TempDir()
	bgmDir := filepath.Join(dir, "bgm")
	if err := os.MkdirAll(bgmDir, 0755); err != nil {
		t.Fatal(err)
	}
	trackPath := filepath.Join(bgmDir, "ambient.mp3")
	if err := os.WriteFile(trackPath, []byte("music"), 0644); err != nil {
		t.Fatal(err)
	}

	s, m := sixSceneFixture(t, dir)
	exec := newFakeExecutor()
	a := newTestAssembler(t, exec, &fakeVoice{}, bgmDir)

	if _, err := a.Assemble(context.Background(), s, m, dir, Options{}); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(exec.mixedMusic) != 1 || exec.mixedMusic[0] != trackPath {
		t.Errorf("expected default track mixed, got %v", exec.mixedMusic)
	}
}

func TestAssembleSurvivesMusicFailure(t *testing.T) {
	dir := t.TempDir()
	s, m := sixSceneFixture(t, dir)
	exec := newFakeExecutor()
	exec.mixFails = true
	a := newTestAssembler(t, exec, &fakeVoice{}, "")

	fv, err := a.Assemble(context.Background(), s, m, dir, Options{BGMPath: filepath.Join(dir, "track.mp3")})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !fileExists(fv.OutputPath) {
		t.Error("narration-only video should survive a music mix failure")
	}
}

func TestConcatenatePartsComputesChapters(t *testing.T) {
	dir := t.TempDir()
	s := &story.Story{Title: "Serial", Parts: []story.Part{
		{PartID: 1, PartTitle: "Arrival"},
		{PartID: 2, PartTitle: "The Door"},
	}}

	exec := newFakeExecutor()
	p1 := filepath.Join(dir, "part_01.mp4")
	p2 := filepath.Join(dir, "part_02.mp4")
	exec.durations[p1] = 60.0
	exec.durations[p2] = 58.5

	a := newTestAssembler(t, exec, &fakeVoice{}, "")
	fv, err := a.ConcatenateParts(context.Background(), s, []string{p1, p2}, filepath.Join(dir, "full.mp4"))
	if err != nil {
		t.Fatalf("ConcatenateParts: %v", err)
	}

	if len(fv.Chapters) != 2 {
		t.Fatalf("expected 2 chapters, got %d", len(fv.Chapters))
	}
	if fv.Chapters[0].StartSeconds != 0 || fv.Chapters[0].Title != "Arrival" {
		t.Errorf("chapter 1 = %+v", fv.Chapters[0])
	}
	if fv.Chapters[1].StartSeconds != 60.0 || fv.Chapters[1].Title != "The Door" {
		t.Errorf("chapter 2 = %+v", fv.Chapters[1])
	}
	if fv.DurationSeconds != 118.5 {
		t.Errorf("DurationSeconds = %v", fv.DurationSeconds)
	}
}
