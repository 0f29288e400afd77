package services

import (
	"errors"
	"testing"

	"github.com/toonsmith/backend/internal/models"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return v
}

func TestValidate_Characters(t *testing.T) {
	v := newTestValidator(t)

	ok := characterDoc{Characters: []CharacterDraft{{Name: "Mira", Description: "a courier"}}}
	if err := v.Validate(SchemaCharacters, ok); err != nil {
		t.Fatalf("expected valid characters, got: %v", err)
	}

	cases := []struct {
		name string
		doc  characterDoc
	}{
		{"empty list", characterDoc{Characters: []CharacterDraft{}}},
		{"empty name", characterDoc{Characters: []CharacterDraft{{Name: "", Description: "x"}}}},
		{"empty description", characterDoc{Characters: []CharacterDraft{{Name: "x", Description: ""}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(SchemaCharacters, tc.doc)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got: %v", err)
			}
		})
	}
}

func TestValidate_Scenes(t *testing.T) {
	v := newTestValidator(t)

	good := SceneSet{TotalScenes: 1, Scenes: map[string]models.SceneDraft{
		"1": {StoryText: "It rained.", SceneDescription: "A wet street at night."},
	}}
	if err := v.Validate(SchemaScenes, good); err != nil {
		t.Fatalf("expected valid scenes, got: %v", err)
	}

	cases := []struct {
		name string
		doc  SceneSet
	}{
		{"non-numeric key", SceneSet{TotalScenes: 1, Scenes: map[string]models.SceneDraft{"one": {StoryText: "a", SceneDescription: "b"}}}},
		{"zero key", SceneSet{TotalScenes: 1, Scenes: map[string]models.SceneDraft{"0": {StoryText: "a", SceneDescription: "b"}}}},
		{"blank description", SceneSet{TotalScenes: 1, Scenes: map[string]models.SceneDraft{"1": {StoryText: "a"}}}},
		{"no scenes", SceneSet{TotalScenes: 1, Scenes: map[string]models.SceneDraft{}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := v.Validate(SchemaScenes, tc.doc); !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got: %v", err)
			}
		})
	}
}

func TestValidate_UnknownKind(t *testing.T) {
	v := newTestValidator(t)
	if err := v.Validate("nope", map[string]any{}); err == nil || errors.Is(err, ErrValidation) {
		t.Fatalf("expected unknown-schema error, got %v", err)
	}
}
