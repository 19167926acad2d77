// Package story holds the pipeline's data model: the Story aggregate produced
// by the script stage and the per-scene asset records produced downstream.
// Each record type has exactly one producing stage; everything else reads.
package story

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Scene is the atomic narration+visual unit and the finest granularity of
// generation and failure isolation.
type Scene struct {
	SceneID              int    `json:"scene_id"`
	DurationSeconds      int    `json:"duration_seconds"`
	VisualPrompt         string `json:"visual_prompt"`
	Narration            string `json:"narration"`
	CharacterDescription string `json:"character_description,omitempty"`
}

// Part is a chaptering group of scenes for long-form output.
type Part struct {
	PartID      int     `json:"part_id"`
	PartTitle   string  `json:"part_title"`
	Scenes      []Scene `json:"scenes"`
	Cliffhanger string  `json:"cliffhanger,omitempty"`
}

// DurationSeconds is the sum of the part's scene durations.
func (p *Part) DurationSeconds() int {
	total := 0
	for _, s := range p.Scenes {
		total += s.DurationSeconds
	}
	return total
}

// Story is the root aggregate. Short-form stories carry a flat Scenes slice;
// long-form stories carry Parts instead. The two are mutually exclusive.
type Story struct {
	Title              string  `json:"title"`
	Topic              string  `json:"topic"`
	Scenes             []Scene `json:"scenes,omitempty"`
	Parts              []Part  `json:"parts,omitempty"`
	TotalDuration      int     `json:"total_duration"`
	CharacterReference string  `json:"character_reference,omitempty"`
	Synopsis           string  `json:"synopsis,omitempty"`
}

// IsLongform reports whether the story is chaptered into parts.
func (s *Story) IsLongform() bool {
	return len(s.Parts) > 0
}

// AllScenes flattens the story into a single ordered scene sequence, part
// order then scene order for long-form.
func (s *Story) AllScenes() []Scene {
	if !s.IsLongform() {
		return s.Scenes
	}
	var all []Scene
	for _, p := range s.Parts {
		all = append(all, p.Scenes...)
	}
	return all
}

// ActualDuration is the sum of all leaf scene durations.
func (s *Story) ActualDuration() int {
	total := 0
	for _, sc := range s.AllScenes() {
		total += sc.DurationSeconds
	}
	return total
}

// ValidateDuration checks that the scene durations land within 10% of the
// total duration target. A miss is a warning condition, never a hard failure;
// model output is unreliable in count and pacing.
func (s *Story) ValidateDuration() bool {
	if s.TotalDuration <= 0 {
		return false
	}
	tolerance := s.TotalDuration / 10
	diff := s.ActualDuration() - s.TotalDuration
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}

// PartStory derives a single-part story so the visual and assembly stages can
// treat a long-form part exactly like a short-form story.
func (s *Story) PartStory(p Part) *Story {
	return &Story{
		Title:              fmt.Sprintf("%s - %s", s.Title, p.PartTitle),
		Topic:              s.Topic,
		Scenes:             p.Scenes,
		TotalDuration:      p.DurationSeconds(),
		CharacterReference: s.CharacterReference,
	}
}

// Save persists the story as the pipeline's checkpoint artifact, letting a
// later invocation resume without re-invoking the LLM.
func (s *Story) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating story directory: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling story: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing story: %w", err)
	}
	return nil
}

// LoadStory reads a previously persisted story.
func LoadStory(path string) (*Story, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading story: %w", err)
	}
	var s Story
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing story %s: %w", path, err)
	}
	return &s, nil
}

// VisualAsset records what the visual stage managed to produce for one scene.
// Optional paths are empty when the corresponding step failed or was skipped.
type VisualAsset struct {
	SceneID             int    `json:"scene_id"`
	PartID              int    `json:"part_id,omitempty"`
	BaseImagePath       string `json:"base_image_path"`
	ConsistentImagePath string `json:"consistent_image_path,omitempty"`
	VideoClipPath       string `json:"video_clip_path,omitempty"`
}

// AudioAsset records one scene's narration clip. DurationSeconds is the
// measured duration, not the scene's nominal target.
type AudioAsset struct {
	SceneID         int     `json:"scene_id"`
	PartID          int     `json:"part_id,omitempty"`
	AudioPath       string  `json:"audio_path"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// SaveAudioAssets writes the narration records produced during assembly next
// to the scene clips they describe.
func SaveAudioAssets(assets []AudioAsset, path string) error {
	data, err := json.MarshalIndent(assets, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling audio assets: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// LoadAudioAssets reads the narration records from a previous assembly.
func LoadAudioAssets(path string) ([]AudioAsset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading audio assets: %w", err)
	}
	var assets []AudioAsset
	if err := json.Unmarshal(data, &assets); err != nil {
		return nil, fmt.Errorf("parsing audio assets %s: %w", path, err)
	}
	return assets, nil
}

// Chapter marks a part boundary in the final long-form video.
type Chapter struct {
	Title        string  `json:"title"`
	StartSeconds float64 `json:"start_seconds"`
}

// FinalVideo is the pipeline's terminal artifact metadata.
type FinalVideo struct {
	OutputPath      string    `json:"output_path"`
	DurationSeconds float64   `json:"duration_seconds"`
	Resolution      string    `json:"resolution"`
	Title           string    `json:"title"`
	Chapters        []Chapter `json:"chapters,omitempty"`
}

// Save persists the video metadata next to the video it describes.
func (v *FinalVideo) Save(path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling final video record: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// ResearchSource names where a piece of research context came from.
type ResearchSource struct {
	Type  string `json:"type"`
	Model string `json:"model,omitempty"`
	URL   string `json:"url,omitempty"`
}

// ResearchResult is the research stage's structured output.
type ResearchResult struct {
	OriginalIdea        string           `json:"original_idea"`
	RefinedTopic        string           `json:"refined_topic"`
	KeyThemes           []string         `json:"key_themes"`
	PlotSuggestions     []string         `json:"plot_suggestions"`
	CharacterArchetypes []string         `json:"character_archetypes"`
	TrendingAngles      []string         `json:"trending_angles"`
	TargetAudience      string           `json:"target_audience"`
	EmotionalJourney    string           `json:"emotional_journey"`
	Sources             []ResearchSource `json:"research_sources,omitempty"`
}

// Manifest is the visual stage's per-directory output record.
type Manifest struct {
	Assets             []VisualAsset `json:"assets"`
	TotalScenes        int           `json:"total_scenes"`
	CharacterReference string        `json:"character_reference,omitempty"`
}

// SaveManifest writes the asset manifest next to the visuals it describes.
func SaveManifest(m *Manifest, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating manifest directory: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// LoadManifest reads a manifest written by a previous run.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return &m, nil
}
