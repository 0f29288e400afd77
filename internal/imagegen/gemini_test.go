package imagegen

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type stubModels struct {
	resp     *genai.GenerateContentResponse
	err      error
	contents []*genai.Content
}

func (s *stubModels) GenerateContent(_ context.Context, _ string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	s.contents = contents
	return s.resp, s.err
}

func TestGemini_NotConfigured(t *testing.T) {
	g, err := NewGemini(context.Background(), "", "m", nil)
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), Request{Prompt: "p"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestGemini_ReturnsInlineImage(t *testing.T) {
	stub := &stubModels{resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{
			{Text: "here is your panel"},
			{InlineData: &genai.Blob{MIMEType: "image/png", Data: []byte{1, 2, 3}}},
		}},
	}}}}
	g := &Gemini{models: stub, model: "m"}

	img, err := g.Generate(context.Background(), Request{
		Prompt:     "draw",
		References: []Reference{{Data: []byte{9}, MIMEType: "image/jpeg"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, img.Data)

	require.Len(t, stub.contents, 1)
	parts := stub.contents[0].Parts
	require.Len(t, parts, 2)
	assert.Equal(t, "draw", parts[0].Text)
	assert.Equal(t, "image/jpeg", parts[1].InlineData.MIMEType)
}

func TestGemini_NoImage(t *testing.T) {
	cases := []*genai.GenerateContentResponse{
		nil,
		{},
		{Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: "sorry"}}}}}},
		{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}},
	}
	for i, resp := range cases {
		g := &Gemini{models: &stubModels{resp: resp}, model: "m"}
		_, err := g.Generate(context.Background(), Request{})
		assert.ErrorIs(t, err, ErrNoImage, "case %d", i)
	}
}

func TestGemini_APIErrorStatus(t *testing.T) {
	g := &Gemini{models: &stubModels{err: genai.APIError{Code: 429, Message: "quota"}}, model: "m"}
	_, err := g.Generate(context.Background(), Request{})
	assert.Equal(t, http.StatusTooManyRequests, StatusOf(err))

	g = &Gemini{models: &stubModels{err: errors.New("dial tcp: timeout")}, model: "m"}
	_, err = g.Generate(context.Background(), Request{})
	assert.Equal(t, http.StatusBadGateway, StatusOf(err))
}
