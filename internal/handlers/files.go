package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/toonsmith/backend/internal/apierror"
	"github.com/toonsmith/backend/internal/export"
	"github.com/toonsmith/backend/internal/textextract"
)

// MaxUploadSize is the largest story file extract-text accepts.
const MaxUploadSize = 10 << 20

// Exporter loads a project for archiving.
type Exporter interface {
	Load(ctx context.Context, userID, projectID uuid.UUID) (*export.Bundle, error)
}

// FileHandler serves file upload and download endpoints.
type FileHandler struct {
	exporter Exporter
	log      *slog.Logger
}

func NewFileHandler(exporter Exporter, log *slog.Logger) *FileHandler {
	if log == nil {
		log = slog.Default()
	}
	return &FileHandler{exporter: exporter, log: log}
}

// ExtractText handles POST /api/extract-text (multipart field "file").
func (h *FileHandler) ExtractText(w http.ResponseWriter, r *http.Request) {
	if requireUser(w, r, h.log) == nil {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apierror.Write(w, h.log, apierror.BadRequest("file exceeds 10 MiB"))
			return
		}
		apierror.Write(w, h.log, apierror.BadRequest("file is required"))
		return
	}
	defer file.Close()
	if header.Size > MaxUploadSize {
		apierror.Write(w, h.log, apierror.BadRequest("file exceeds 10 MiB"))
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, MaxUploadSize+1))
	if err != nil {
		fail(w, h.log, fmt.Errorf("read upload: %w", err))
		return
	}
	if len(data) > MaxUploadSize {
		apierror.Write(w, h.log, apierror.BadRequest("file exceeds 10 MiB"))
		return
	}
	text, err := textextract.Extract(header.Filename, data)
	if err != nil {
		fail(w, h.log, err)
		return
	}
	apierror.WriteJSON(w, http.StatusOK, map[string]string{"text": text, "filename": header.Filename})
}

// Export handles GET /api/projects/{id}/export.
func (h *FileHandler) Export(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r, h.log)
	if user == nil {
		return
	}
	projectID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		apierror.Write(w, h.log, apierror.BadRequest("invalid project id"))
		return
	}
	bundle, err := h.exporter.Load(r.Context(), user.UserID, projectID)
	if err != nil {
		fail(w, h.log, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", bundle.Filename()))
	w.WriteHeader(http.StatusOK)
	if err := bundle.WriteZip(r.Context(), w); err != nil {
		// headers are already sent; the client sees a truncated archive
		h.log.Error("write export archive", "project_id", projectID, "error", err)
	}
}
