package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/toonsmith/backend/internal/llm"
	"github.com/toonsmith/backend/internal/models"
)

// MaxCharacters is the most characters story analysis returns.
const MaxCharacters = 6

// MinStoryLength is the shortest story Analyze and Split accept, in characters.
const MinStoryLength = 100

var (
	// ErrStoryTooShort is returned when the story is under MinStoryLength.
	ErrStoryTooShort = fmt.Errorf("story must be at least %d characters", MinStoryLength)
	// ErrSceneCountMismatch is returned when total_scenes disagrees with the scenes map.
	ErrSceneCountMismatch = errors.New("total_scenes does not match the number of scenes")
	// ErrInsertIndex is returned for an insertAfterIndex outside [0, len(scenes)].
	ErrInsertIndex = errors.New("insertAfterIndex out of range")
	// ErrBadSceneKey is returned when a scenes map key is not a positive integer.
	ErrBadSceneKey = errors.New("scene keys must be positive integers")
)

// Completer sends one system/user prompt pair and returns the reply text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// CharacterDraft is a character proposed by story analysis.
type CharacterDraft struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type characterDoc struct {
	Characters []CharacterDraft `json:"characters"`
}

// SceneSet is the storyboard document exchanged with clients:
// {"total_scenes": N, "scenes": {"1": {...}, ...}}.
type SceneSet struct {
	TotalScenes int                          `json:"total_scenes"`
	Scenes      map[string]models.SceneDraft `json:"scenes"`
}

// Storyboard turns story text into characters and scenes with the LLM.
type Storyboard struct {
	llm       Completer
	validator *Validator
	log       *slog.Logger
}

func NewStoryboard(c Completer, v *Validator, log *slog.Logger) *Storyboard {
	if log == nil {
		log = slog.Default()
	}
	return &Storyboard{llm: c, validator: v, log: log}
}

// Analyze extracts up to MaxCharacters characters from the story.
func (s *Storyboard) Analyze(ctx context.Context, story, artStyle string) ([]CharacterDraft, error) {
	story = strings.TrimSpace(story)
	if len([]rune(story)) < MinStoryLength {
		return nil, ErrStoryTooShort
	}
	prompt, err := llm.Render("analyze", map[string]any{
		"Story": story, "ArtStyle": artStyle, "MaxCharacters": MaxCharacters,
	})
	if err != nil {
		return nil, err
	}
	reply, err := s.llm.Complete(ctx, prompt.System, prompt.User)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := llm.DecodeJSON(reply, &raw); err != nil {
		return nil, err
	}
	doc := characterDoc{Characters: normalizeCharacters(raw)}
	if len(doc.Characters) > MaxCharacters {
		doc.Characters = doc.Characters[:MaxCharacters]
	}
	if err := s.validator.Validate(SchemaCharacters, doc); err != nil {
		return nil, err
	}
	return doc.Characters, nil
}

// normalizeCharacters accepts the field spellings models tend to use and
// drops entries without a name or description. Names are deduplicated
// case-insensitively, first one wins.
func normalizeCharacters(raw map[string]any) []CharacterDraft {
	list, _ := firstOf(raw, "characters", "Characters").([]any)
	out := make([]CharacterDraft, 0, len(list))
	seen := make(map[string]bool)
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name := strings.TrimSpace(stringOf(firstOf(m, "name", "Name", "character_name")))
		desc := strings.TrimSpace(stringOf(firstOf(m, "description", "Description", "appearance")))
		if name == "" || desc == "" || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true
		out = append(out, CharacterDraft{Name: name, Description: desc})
	}
	return out
}

func firstOf(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

// Split breaks the story into scenes. targetScenes <= 0 lets the model choose.
func (s *Storyboard) Split(ctx context.Context, story, artStyle string, targetScenes int) (*SceneSet, error) {
	story = strings.TrimSpace(story)
	if len([]rune(story)) < MinStoryLength {
		return nil, ErrStoryTooShort
	}
	prompt, err := llm.Render("split", map[string]any{
		"Story": story, "ArtStyle": artStyle, "TargetScenes": targetScenes,
	})
	if err != nil {
		return nil, err
	}
	reply, err := s.llm.Complete(ctx, prompt.System, prompt.User)
	if err != nil {
		return nil, err
	}

	var set SceneSet
	if err := llm.DecodeJSON(reply, &set); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(SchemaScenes, set); err != nil {
		return nil, err
	}
	if set.TotalScenes != len(set.Scenes) {
		return nil, fmt.Errorf("%w: total_scenes=%d, scenes=%d", ErrSceneCountMismatch, set.TotalScenes, len(set.Scenes))
	}
	drafts, err := OrderedDrafts(set.Scenes)
	if err != nil {
		return nil, err
	}
	return NewSceneSet(drafts), nil
}

// Insert writes a new scene after position after (0 = before the first
// scene) and returns the renumbered storyboard.
func (s *Storyboard) Insert(ctx context.Context, scenes map[string]models.SceneDraft, after int, story string) (*SceneSet, error) {
	drafts, err := OrderedDrafts(scenes)
	if err != nil {
		return nil, err
	}
	if after < 0 || after > len(drafts) {
		return nil, ErrInsertIndex
	}
	data := map[string]any{"Story": strings.TrimSpace(story), "After": after, "Before": after + 1}
	if after > 0 {
		data["Previous"] = drafts[after-1]
	}
	if after < len(drafts) {
		data["Next"] = drafts[after]
	}
	prompt, err := llm.Render("insert", data)
	if err != nil {
		return nil, err
	}
	reply, err := s.llm.Complete(ctx, prompt.System, prompt.User)
	if err != nil {
		return nil, err
	}

	var scene models.SceneDraft
	if err := llm.DecodeJSON(reply, &scene); err != nil {
		return nil, err
	}
	scene.StoryText = strings.TrimSpace(scene.StoryText)
	scene.SceneDescription = strings.TrimSpace(scene.SceneDescription)
	if err := s.validator.Validate(SchemaScene, scene); err != nil {
		return nil, err
	}

	out := make([]models.SceneDraft, 0, len(drafts)+1)
	out = append(out, drafts[:after]...)
	out = append(out, scene)
	out = append(out, drafts[after:]...)
	return NewSceneSet(out), nil
}

// OrderedDrafts returns the scenes of a {"1": ..., "2": ...} map in numeric
// key order. Gaps are closed; the result is always numbered 1..n.
func OrderedDrafts(scenes map[string]models.SceneDraft) ([]models.SceneDraft, error) {
	type numbered struct {
		n int
		d models.SceneDraft
	}
	list := make([]numbered, 0, len(scenes))
	seen := make(map[int]bool, len(scenes))
	for k, d := range scenes {
		n, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || n < 1 || seen[n] {
			return nil, fmt.Errorf("%w: %q", ErrBadSceneKey, k)
		}
		seen[n] = true
		list = append(list, numbered{n: n, d: d})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].n < list[j].n })
	out := make([]models.SceneDraft, len(list))
	for i, e := range list {
		out[i] = e.d
	}
	return out, nil
}

// NewSceneSet numbers drafts from 1.
func NewSceneSet(drafts []models.SceneDraft) *SceneSet {
	set := &SceneSet{TotalScenes: len(drafts), Scenes: make(map[string]models.SceneDraft, len(drafts))}
	for i, d := range drafts {
		set.Scenes[strconv.Itoa(i+1)] = d
	}
	return set
}
