package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/storyreel/storyreel/config"
	"github.com/storyreel/storyreel/llm_service"
	"github.com/storyreel/storyreel/search"
	"github.com/storyreel/storyreel/story"
)

const researchSystemPrompt = `You are a story development researcher. Given a raw story idea and optional web context, produce a research brief as a single JSON object with these exact keys:
"original_idea", "refined_topic", "key_themes" (array), "plot_suggestions" (array), "character_archetypes" (array), "trending_angles" (array), "target_audience", "emotional_journey".
Respond with the JSON object only, no commentary.`

// ContentExpander is implemented by search backends that can pull a result
// page's main text beyond the snippet.
type ContentExpander interface {
	ExpandContent(ctx context.Context, pageURL string) string
}

// Agent turns a raw idea into a structured research brief. Web search is a
// soft dependency; when it yields nothing the model works from the idea alone.
type Agent struct {
	llm    llm_service.CompletionService
	search search.Service
	model  string
	logger *slog.Logger
}

func NewAgent(cfg *config.Config, llm llm_service.CompletionService, searcher search.Service, logger *slog.Logger) *Agent {
	return &Agent{
		llm:    llm,
		search: searcher,
		model:  cfg.ResearchModel,
		logger: logger,
	}
}

// Research runs the full research pass. It never fails the pipeline: an
// unparseable or missing model response degrades to a minimal brief built
// from the idea itself.
func (a *Agent) Research(ctx context.Context, idea string) *story.ResearchResult {
	webContext, sources := a.gatherWebContext(ctx, idea)

	userPrompt := a.buildPrompt(idea, webContext)
	raw, err := a.llm.Complete(ctx, researchSystemPrompt, userPrompt, llm_service.CompletionOptions{
		Model:       a.model,
		Temperature: 0.7,
	})
	if err != nil {
		a.logger.Warn("Research completion failed, using minimal brief",
			slog.String("error", err.Error()))
		result := story.DefaultResearch(idea)
		result.Sources = sources
		return result
	}

	result, ok := story.ParseResearchResponse(raw, idea, a.logger)
	if !ok {
		a.logger.Warn("Research response unparseable, using minimal brief")
	}
	result.Sources = append(result.Sources, sources...)
	return result
}

// gatherWebContext collects search snippets for a handful of angles on the
// idea. Empty results are normal when no search backend is running.
func (a *Agent) gatherWebContext(ctx context.Context, idea string) (string, []story.ResearchSource) {
	if a.search == nil {
		return "", nil
	}

	queries := []string{
		idea,
		idea + " story ideas",
		idea + " trending",
	}

	expander, _ := a.search.(ContentExpander)

	var b strings.Builder
	var sources []story.ResearchSource
	expanded := false
	for _, q := range queries {
		for _, r := range a.search.Search(ctx, q, 3) {
			fmt.Fprintf(&b, "- %s: %s\n", r.Title, r.Snippet)
			sources = append(sources, story.ResearchSource{Type: "web_search", URL: r.URL})

			// Pull one page's full text so the brief has real substance,
			// not just snippets.
			if !expanded && expander != nil {
				if body := expander.ExpandContent(ctx, r.URL); body != "" {
					fmt.Fprintf(&b, "\nPage content from %s:\n%s\n\n", r.URL, body)
					expanded = true
				}
			}
		}
	}

	if len(sources) == 0 {
		a.logger.Info("No web context gathered, researching from idea alone")
	}
	return b.String(), sources
}

func (a *Agent) buildPrompt(idea, webContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Story idea: %s\n", idea)
	if webContext != "" {
		fmt.Fprintf(&b, "\nWeb context:\n%s", webContext)
	}
	return b.String()
}

// SaveResearch persists the brief alongside the run's other artifacts.
func SaveResearch(r *story.ResearchResult, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating research directory: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling research: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// LoadResearch reads a brief written by a previous run.
func LoadResearch(path string) (*story.ResearchResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading research: %w", err)
	}
	var r story.ResearchResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing research %s: %w", path, err)
	}
	return &r, nil
}

// FormatBrief renders the research as prompt context for script generation.
func FormatBrief(r *story.ResearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Refined topic: %s\n", r.RefinedTopic)
	if len(r.KeyThemes) > 0 {
		fmt.Fprintf(&b, "Key themes: %s\n", strings.Join(r.KeyThemes, ", "))
	}
	if len(r.PlotSuggestions) > 0 {
		b.WriteString("Plot suggestions:\n")
		for _, p := range r.PlotSuggestions {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}
	if len(r.CharacterArchetypes) > 0 {
		fmt.Fprintf(&b, "Character archetypes: %s\n", strings.Join(r.CharacterArchetypes, ", "))
	}
	if r.TargetAudience != "" {
		fmt.Fprintf(&b, "Target audience: %s\n", r.TargetAudience)
	}
	if r.EmotionalJourney != "" {
		fmt.Fprintf(&b, "Emotional journey: %s\n", r.EmotionalJourney)
	}
	return b.String()
}
