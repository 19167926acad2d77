package script

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/storyreel/storyreel/config"
	"github.com/storyreel/storyreel/llm_service"
	"github.com/storyreel/storyreel/story"
)

type fakeCompletion struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeCompletion) Name() string               { return "fake" }
func (f *fakeCompletion) Probe(context.Context) bool { return true }
func (f *fakeCompletion) Complete(_ context.Context, _, userPrompt string, _ llm_service.CompletionOptions) (string, error) {
	f.prompts = append(f.prompts, userPrompt)
	return f.response, f.err
}

func testConfig() *config.Config {
	return &config.Config{
		ScenesCount:   2,
		ShortDuration: 30,
		TotalParts:    2,
		ScenesPerPart: 2,
		PartDuration:  20,
		OllamaModel:   "test-model",
	}
}

func testGenerator(llm *fakeCompletion) *Generator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewGenerator(testConfig(), llm, logger)
}

func TestGenerateShortForm(t *testing.T) {
	llm := &fakeCompletion{response: `{
		"title": "The Last Keeper",
		"synopsis": "A keeper faces the storm.",
		"character_reference": "weathered man in an oilskin coat",
		"scenes": [
			{"scene_id": 1, "duration_seconds": 15, "visual_prompt": "lighthouse at dusk", "narration": "The light must not go out."},
			{"scene_id": 2, "duration_seconds": 15, "visual_prompt": "waves on rocks", "narration": "And it never did."}
		]
	}`}

	s, err := testGenerator(llm).Generate(context.Background(), "a lighthouse keeper", nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if s.Title != "The Last Keeper" {
		t.Errorf("Title = %q", s.Title)
	}
	if len(s.Scenes) != 2 {
		t.Fatalf("expected 2 scenes, got %d", len(s.Scenes))
	}
	if s.Topic != "a lighthouse keeper" {
		t.Errorf("Topic = %q", s.Topic)
	}
	if s.TotalDuration != 30 {
		t.Errorf("TotalDuration = %d", s.TotalDuration)
	}
}

func TestGenerateToleratesCountMismatch(t *testing.T) {
	// Three scenes delivered where two were requested: usable, not fatal.
	llm := &fakeCompletion{response: `{
		"title": "T",
		"scenes": [
			{"scene_id": 1, "duration_seconds": 10, "visual_prompt": "a", "narration": "x"},
			{"scene_id": 2, "duration_seconds": 10, "visual_prompt": "b", "narration": "y"},
			{"scene_id": 3, "duration_seconds": 10, "visual_prompt": "c", "narration": "z"}
		]
	}`}

	s, err := testGenerator(llm).Generate(context.Background(), "idea", nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(s.Scenes) != 3 {
		t.Errorf("expected delivered scenes kept, got %d", len(s.Scenes))
	}
}

func TestGenerateFailsOnCompletionError(t *testing.T) {
	llm := &fakeCompletion{err: errors.New("backend down")}
	if _, err := testGenerator(llm).Generate(context.Background(), "idea", nil); err == nil {
		t.Fatal("expected error when completion fails")
	}
}

func TestGenerateLongform(t *testing.T) {
	llm := &fakeCompletion{response: `{
		"title": "The Serial",
		"parts": [
			{"part_id": 1, "part_title": "Arrival", "cliffhanger": "a knock at the door", "scenes": [
				{"scene_id": 1, "duration_seconds": 10, "visual_prompt": "a", "narration": "x"},
				{"scene_id": 2, "duration_seconds": 10, "visual_prompt": "b", "narration": "y"}
			]},
			{"part_id": 2, "part_title": "The Door", "scenes": [
				{"scene_id": 1, "duration_seconds": 10, "visual_prompt": "c", "narration": "z"},
				{"scene_id": 2, "duration_seconds": 10, "visual_prompt": "d", "narration": "w"}
			]}
		]
	}`}

	s, err := testGenerator(llm).GenerateLongform(context.Background(), "idea", nil)
	if err != nil {
		t.Fatalf("GenerateLongform: %v", err)
	}
	if !s.IsLongform() {
		t.Error("expected a long-form story")
	}
	if len(s.Parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(s.Parts))
	}
	if s.Parts[0].Cliffhanger == "" {
		t.Error("first part should keep its cliffhanger")
	}
	if s.TotalDuration != 40 {
		t.Errorf("TotalDuration = %d, want 40", s.TotalDuration)
	}
}

func TestGenerateLongformPromptCarriesStructure(t *testing.T) {
	llm := &fakeCompletion{response: `{
		"parts": [{"part_id": 1, "scenes": [{"scene_id": 1, "duration_seconds": 10, "visual_prompt": "a", "narration": "x"}]}]
	}`}

	if _, err := testGenerator(llm).GenerateLongform(context.Background(), "idea", &story.ResearchResult{RefinedTopic: "topic"}); err != nil {
		t.Fatalf("GenerateLongform: %v", err)
	}
	prompt := llm.prompts[0]
	for _, want := range []string{"2 parts", "2 scenes per part", "topic"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}
