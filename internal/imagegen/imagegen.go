// Package imagegen wraps the generative image model: prompt plus inline
// reference images in, one image out.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotConfigured is returned when no image model API key is set.
	ErrNotConfigured = errors.New("imagegen: api key not configured")
	// ErrNoImage is returned when the model answers without image data.
	ErrNoImage = errors.New("imagegen: no image in response")
)

// Reference is an inline image sent along with the prompt.
type Reference struct {
	Data     []byte
	MIMEType string
}

type Request struct {
	Prompt     string
	References []Reference
}

type Image struct {
	Data     []byte
	MIMEType string
}

// Generator produces one image for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Image, error)
}

// UpstreamError carries the HTTP status the image API failed with.
type UpstreamError struct {
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("image api status %d: %v", e.Status, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is a rate limit or a server error.
func (e *UpstreamError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// StatusOf returns the upstream HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var up *UpstreamError
	if errors.As(err, &up) {
		return up.Status
	}
	return 0
}
