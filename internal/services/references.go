package services

import (
	"context"
	"encoding/base64"
	"log/slog"

	"github.com/toonsmith/backend/internal/imagegen"
	"github.com/toonsmith/backend/internal/models"
)

// ObjectReader loads stored objects.
type ObjectReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// referenceCandidate is one character image considered for a request.
type referenceCandidate struct {
	character *models.Character
	data      []byte
	encoded   int // base64 size on the wire
}

// ReferencePicker loads character images, compresses them to JPEG and keeps
// at most maxCount of them within the byte budget.
type ReferencePicker struct {
	store    ObjectReader
	budget   int
	maxCount int
	quality  int
	log      *slog.Logger
}

// NewReferencePicker builds a picker. A budget or maxCount of 0 means no limit.
func NewReferencePicker(store ObjectReader, budget, maxCount, quality int, log *slog.Logger) *ReferencePicker {
	if log == nil {
		log = slog.Default()
	}
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	return &ReferencePicker{store: store, budget: budget, maxCount: maxCount, quality: quality, log: log}
}

// Pick returns references for the given characters, in their given order.
// Characters without an image, or whose image cannot be loaded, are skipped.
// Selection is greedy: each candidate that still fits the remaining budget
// is taken, so a large image does not block smaller ones after it, until
// maxCount references are selected.
func (p *ReferencePicker) Pick(ctx context.Context, characters []*models.Character) []imagegen.Reference {
	candidates := make([]referenceCandidate, 0, len(characters))
	for _, c := range characters {
		if c.ImagePath == nil || *c.ImagePath == "" {
			continue
		}
		raw, err := p.store.Get(ctx, *c.ImagePath)
		if err != nil {
			p.log.Warn("reference image unavailable, skipping", "character_id", c.ID, "path", *c.ImagePath, "error", err)
			continue
		}
		data, err := imagegen.CompressToJPEG(raw, p.quality)
		if err != nil {
			p.log.Warn("reference image not decodable, skipping", "character_id", c.ID, "error", err)
			continue
		}
		candidates = append(candidates, referenceCandidate{
			character: c,
			data:      data,
			encoded:   base64.StdEncoding.EncodedLen(len(data)),
		})
	}
	return selectWithinBudget(candidates, p.budget, p.maxCount)
}

func selectWithinBudget(candidates []referenceCandidate, budget, maxCount int) []imagegen.Reference {
	used := 0
	out := make([]imagegen.Reference, 0, len(candidates))
	for _, c := range candidates {
		if maxCount > 0 && len(out) == maxCount {
			break
		}
		if budget > 0 && used+c.encoded > budget {
			continue
		}
		used += c.encoded
		out = append(out, imagegen.Reference{Data: c.data, MIMEType: "image/jpeg"})
	}
	return out
}
