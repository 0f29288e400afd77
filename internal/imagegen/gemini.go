package imagegen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/genai"
)

var (
	imageRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "image_requests_total",
		Help: "Image model calls by outcome.",
	}, []string{"model", "status"})
	imageRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "image_request_duration_seconds",
		Help:    "Image model call latency.",
		Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120},
	}, []string{"model"})
)

// contentGenerator is the subset of *genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini generates images through the Gemini API.
type Gemini struct {
	models contentGenerator
	model  string
	log    *slog.Logger
}

// NewGemini creates a client. An empty apiKey yields a generator whose calls
// fail with ErrNotConfigured.
func NewGemini(ctx context.Context, apiKey, model string, log *slog.Logger) (*Gemini, error) {
	if log == nil {
		log = slog.Default()
	}
	g := &Gemini{model: model, log: log}
	if apiKey == "" {
		return g, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	g.models = client.Models
	return g, nil
}

var _ Generator = (*Gemini)(nil)

func (g *Gemini) Generate(ctx context.Context, req Request) (*Image, error) {
	if g.models == nil {
		return nil, ErrNotConfigured
	}
	parts := []*genai.Part{{Text: req.Prompt}}
	for _, ref := range req.References {
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: ref.MIMEType, Data: ref.Data}})
	}

	start := time.Now()
	resp, err := g.models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Role: "user", Parts: parts}},
		&genai.GenerateContentConfig{ResponseModalities: []string{"IMAGE", "TEXT"}},
	)
	imageRequestDuration.WithLabelValues(g.model).Observe(time.Since(start).Seconds())
	if err != nil {
		status := apiStatus(err)
		imageRequestsTotal.WithLabelValues(g.model, fmt.Sprintf("%d", status)).Inc()
		return nil, &UpstreamError{Status: status, Err: err}
	}

	img, err := firstImage(resp)
	if err != nil {
		imageRequestsTotal.WithLabelValues(g.model, "no_image").Inc()
		return nil, err
	}
	imageRequestsTotal.WithLabelValues(g.model, "success").Inc()
	return img, nil
}

// firstImage returns the first inline image of the first candidate.
func firstImage(resp *genai.GenerateContentResponse) (*Image, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, ErrNoImage
	}
	cand := resp.Candidates[0]
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mt := part.InlineData.MIMEType
				if mt == "" {
					mt = http.DetectContentType(part.InlineData.Data)
				}
				return &Image{Data: part.InlineData.Data, MIMEType: mt}, nil
			}
		}
	}
	if cand.FinishReason != genai.FinishReasonUnspecified && cand.FinishReason != genai.FinishReasonStop {
		return nil, fmt.Errorf("%w (finish reason %s)", ErrNoImage, cand.FinishReason)
	}
	return nil, ErrNoImage
}

// apiStatus maps a genai error to an HTTP status; transport failures count as 502.
func apiStatus(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code != 0 {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr.Code != 0 {
		return apiErrPtr.Code
	}
	return http.StatusBadGateway
}
