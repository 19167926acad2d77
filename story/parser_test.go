package story

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseStoryResponse(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantParsed bool
		wantTitle  string
		wantScenes int
	}{
		{
			name:       "plain JSON",
			raw:        `{"title":"The Keeper","topic":"sea","scenes":[{"scene_id":1,"duration_seconds":10,"visual_prompt":"a lighthouse","narration":"Once..."}],"total_duration":60}`,
			wantParsed: true,
			wantTitle:  "The Keeper",
			wantScenes: 1,
		},
		{
			name: "fenced JSON with language tag",
			raw: "```json\n" +
				`{"title":"Fenced","topic":"t","scenes":[{"scene_id":1,"duration_seconds":8,"visual_prompt":"x","narration":"y"}]}` +
				"\n```",
			wantParsed: true,
			wantTitle:  "Fenced",
			wantScenes: 1,
		},
		{
			name:       "empty input",
			raw:        "",
			wantParsed: false,
			wantTitle:  "Untitled Story",
			wantScenes: 0,
		},
		{
			name:       "prose only",
			raw:        "Here is your story! I hope you like it.",
			wantParsed: false,
			wantTitle:  "Untitled Story",
			wantScenes: 0,
		},
		{
			name:       "fenced block with invalid content",
			raw:        "```json\n{not valid json\n```",
			wantParsed: false,
			wantTitle:  "Untitled Story",
			wantScenes: 0,
		},
		{
			name:       "missing title gets default",
			raw:        `{"topic":"t","scenes":[]}`,
			wantParsed: true,
			wantTitle:  "Untitled Story",
			wantScenes: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, parsed := ParseStoryResponse(tt.raw, discardLogger())
			if parsed != tt.wantParsed {
				t.Errorf("parsed = %v, want %v", parsed, tt.wantParsed)
			}
			if s == nil {
				t.Fatal("ParseStoryResponse returned nil story")
			}
			if s.Title != tt.wantTitle {
				t.Errorf("title = %q, want %q", s.Title, tt.wantTitle)
			}
			if len(s.Scenes) != tt.wantScenes {
				t.Errorf("scenes = %d, want %d", len(s.Scenes), tt.wantScenes)
			}
			if s.Scenes == nil {
				t.Error("scenes slice must never be nil")
			}
		})
	}
}

func TestParseStoryResponseClampsDurations(t *testing.T) {
	raw := `{"title":"T","topic":"t","scenes":[
		{"scene_id":1,"duration_seconds":2,"visual_prompt":"a","narration":"n"},
		{"scene_id":2,"duration_seconds":90,"visual_prompt":"b","narration":"n"}]}`

	s, parsed := ParseStoryResponse(raw, discardLogger())
	if !parsed {
		t.Fatal("expected parse success")
	}
	if got := s.Scenes[0].DurationSeconds; got != 10 {
		t.Errorf("undersized duration = %d, want default 10", got)
	}
	if got := s.Scenes[1].DurationSeconds; got != 20 {
		t.Errorf("oversized duration = %d, want clamp 20", got)
	}
}

func TestParseStoryResponseRenumbersScenes(t *testing.T) {
	// Duplicate and gapped ids would collide in anything keyed by scene_id.
	raw := `{"title":"T","topic":"t","scenes":[
		{"scene_id":1,"duration_seconds":10,"visual_prompt":"a","narration":"n"},
		{"scene_id":1,"duration_seconds":10,"visual_prompt":"b","narration":"n"},
		{"scene_id":7,"duration_seconds":10,"visual_prompt":"c","narration":"n"}]}`

	s, parsed := ParseStoryResponse(raw, discardLogger())
	if !parsed {
		t.Fatal("expected parse success")
	}
	for i, sc := range s.Scenes {
		if sc.SceneID != i+1 {
			t.Errorf("scene %d id = %d, want %d", i, sc.SceneID, i+1)
		}
	}
	if s.Scenes[1].VisualPrompt != "b" {
		t.Error("renumbering must preserve document order")
	}
}

func TestParseStoryResponseRenumbersParts(t *testing.T) {
	raw := `{"title":"T","topic":"t","parts":[
		{"part_id":3,"part_title":"One","scenes":[
			{"scene_id":5,"duration_seconds":10,"visual_prompt":"a","narration":"n"},
			{"scene_id":5,"duration_seconds":10,"visual_prompt":"b","narration":"n"}]},
		{"part_id":3,"part_title":"Two","scenes":[
			{"scene_id":1,"duration_seconds":10,"visual_prompt":"c","narration":"n"}]}]}`

	s, parsed := ParseStoryResponse(raw, discardLogger())
	if !parsed {
		t.Fatal("expected parse success")
	}
	if s.Parts[0].PartID != 1 || s.Parts[1].PartID != 2 {
		t.Errorf("part ids = %d, %d, want 1, 2", s.Parts[0].PartID, s.Parts[1].PartID)
	}
	// Scene ids run densely across parts.
	want := 1
	for _, p := range s.Parts {
		for _, sc := range p.Scenes {
			if sc.SceneID != want {
				t.Errorf("scene id = %d, want %d", sc.SceneID, want)
			}
			want++
		}
	}
}

func TestParseResearchResponse(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantParsed bool
		wantTopic  string
	}{
		{
			name:       "valid research",
			raw:        `{"refined_topic":"Deep sea mysteries","key_themes":["isolation"],"target_audience":"documentary fans"}`,
			wantParsed: true,
			wantTopic:  "Deep sea mysteries",
		},
		{
			name:       "garbage falls back to idea",
			raw:        "sorry, I can't do that",
			wantParsed: false,
			wantTopic:  "the deep sea",
		},
		{
			name:       "empty refined topic falls back to idea",
			raw:        `{"key_themes":["a"]}`,
			wantParsed: true,
			wantTopic:  "the deep sea",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, parsed := ParseResearchResponse(tt.raw, "the deep sea", discardLogger())
			if parsed != tt.wantParsed {
				t.Errorf("parsed = %v, want %v", parsed, tt.wantParsed)
			}
			if r.RefinedTopic != tt.wantTopic {
				t.Errorf("refined topic = %q, want %q", r.RefinedTopic, tt.wantTopic)
			}
			if r.KeyThemes == nil || r.PlotSuggestions == nil || r.CharacterArchetypes == nil || r.TrendingAngles == nil {
				t.Error("all list fields must be non-nil")
			}
			if r.OriginalIdea != "the deep sea" {
				t.Errorf("original idea = %q", r.OriginalIdea)
			}
		})
	}
}

func TestParseFailureDiagnosticsCarrySample(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	if _, parsed := ParseStoryResponse("here is your story: oops", logger); parsed {
		t.Fatal("expected parse failure")
	}
	logged := buf.String()
	if !strings.Contains(logged, "story: unparseable response") {
		t.Errorf("diagnostic missing the parse failure source:\n%s", logged)
	}
	if !strings.Contains(logged, "oops") {
		t.Errorf("diagnostic missing the offending sample:\n%s", logged)
	}

	buf.Reset()
	if _, parsed := ParseResearchResponse("not json", "idea", logger); parsed {
		t.Fatal("expected parse failure")
	}
	if !strings.Contains(buf.String(), "research: unparseable response") {
		t.Errorf("diagnostic missing the parse failure source:\n%s", buf.String())
	}
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fences", `{"a":1}`, `{"a":1}`},
		{"plain fences", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"json fences", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  \n```\nhello\n```\n ", "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripCodeFences(tt.in); got != tt.want {
				t.Errorf("StripCodeFences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
