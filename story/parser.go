package story

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/storyreel/storyreel/producer"
)

// Model responses are expected to be JSON but routinely arrive wrapped in
// markdown fences or surrounded by prose. The parsers here strip the wrapping
// and, on any parse failure, hand back a minimal default record instead of an
// error: the pipeline keeps going with a degraded-but-valid result rather than
// crashing the whole run on one malformed response.

// StripCodeFences removes markdown fence lines from a raw model response.
func StripCodeFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	lines := strings.Split(cleaned, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "```") {
			continue
		}
		kept = append(kept, l)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// ParseStoryResponse extracts a Story from a raw model response. The second
// return value reports whether the payload actually parsed; when false the
// returned story is the safe default and the failure has been logged.
func ParseStoryResponse(raw string, logger *slog.Logger) (*Story, bool) {
	cleaned := StripCodeFences(raw)

	var s Story
	if err := json.Unmarshal([]byte(cleaned), &s); err != nil {
		perr := &producer.ParseError{Source: "story", Sample: sample(raw, 200), Err: err}
		logger.Warn("Story response not parseable, using default record",
			slog.String("error", perr.Error()),
			slog.String("sample", perr.Sample))
		return defaultStory(), false
	}

	if s.Title == "" {
		s.Title = "Untitled Story"
	}
	if s.Scenes == nil && s.Parts == nil {
		s.Scenes = []Scene{}
	}
	// Model-assigned ids arrive duplicated or gapped often enough that
	// downstream keying by scene_id cannot trust them; renumber densely in
	// document order, the same way durations are clamped.
	for i := range s.Scenes {
		s.Scenes[i].SceneID = i + 1
		normalizeScene(&s.Scenes[i])
	}
	sceneID := 0
	for pi := range s.Parts {
		s.Parts[pi].PartID = pi + 1
		for si := range s.Parts[pi].Scenes {
			sceneID++
			s.Parts[pi].Scenes[si].SceneID = sceneID
			normalizeScene(&s.Parts[pi].Scenes[si])
		}
	}

	return &s, true
}

// ParseResearchResponse extracts a ResearchResult from a raw model response,
// falling back to an empty-but-complete record on failure.
func ParseResearchResponse(raw, idea string, logger *slog.Logger) (*ResearchResult, bool) {
	cleaned := StripCodeFences(raw)

	var r ResearchResult
	if err := json.Unmarshal([]byte(cleaned), &r); err != nil {
		perr := &producer.ParseError{Source: "research", Sample: sample(raw, 200), Err: err}
		logger.Warn("Research response not parseable, using default record",
			slog.String("error", perr.Error()),
			slog.String("sample", perr.Sample))
		return DefaultResearch(idea), false
	}

	r.OriginalIdea = idea
	if r.RefinedTopic == "" {
		r.RefinedTopic = idea
	}
	if r.TargetAudience == "" {
		r.TargetAudience = "General audience"
	}
	if r.KeyThemes == nil {
		r.KeyThemes = []string{}
	}
	if r.PlotSuggestions == nil {
		r.PlotSuggestions = []string{}
	}
	if r.CharacterArchetypes == nil {
		r.CharacterArchetypes = []string{}
	}
	if r.TrendingAngles == nil {
		r.TrendingAngles = []string{}
	}

	return &r, true
}

// DefaultResearch is the safe research record used when the model response is
// unusable or the research producer is unavailable.
func DefaultResearch(idea string) *ResearchResult {
	return &ResearchResult{
		OriginalIdea:        idea,
		RefinedTopic:        idea,
		KeyThemes:           []string{},
		PlotSuggestions:     []string{},
		CharacterArchetypes: []string{},
		TrendingAngles:      []string{},
		TargetAudience:      "General audience",
		EmotionalJourney:    "",
	}
}

func defaultStory() *Story {
	return &Story{
		Title:  "Untitled Story",
		Topic:  "unknown",
		Scenes: []Scene{},
	}
}

func normalizeScene(sc *Scene) {
	if sc.DurationSeconds < 5 {
		sc.DurationSeconds = 10
	}
	if sc.DurationSeconds > 20 {
		sc.DurationSeconds = 20
	}
}

func sample(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
