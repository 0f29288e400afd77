package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/toonsmith/backend/internal/apierror"
	"github.com/toonsmith/backend/internal/imagegen"
	"github.com/toonsmith/backend/internal/ledger"
	"github.com/toonsmith/backend/internal/llm"
	"github.com/toonsmith/backend/internal/middleware"
	"github.com/toonsmith/backend/internal/models"
	"github.com/toonsmith/backend/internal/repository"
	"github.com/toonsmith/backend/internal/services"
	"github.com/toonsmith/backend/internal/textextract"
)

// maxJSONBody bounds request bodies; image edits carry base64 data URLs.
const maxJSONBody = 32 << 20

// classify maps domain errors onto the API error taxonomy. It returns nil
// for errors it does not recognise.
func classify(err error) *apierror.Error {
	var apiErr *apierror.Error
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, repository.ErrNotFound):
		return apierror.NotFound("not found")
	case errors.Is(err, repository.ErrConflict):
		return apierror.Conflict("already exists")
	case errors.Is(err, ledger.ErrLimitReached):
		return apierror.TooManyRequests("monthly credit limit reached")

	case errors.Is(err, services.ErrStoryTooShort),
		errors.Is(err, services.ErrInsertIndex),
		errors.Is(err, services.ErrBadSceneKey),
		errors.Is(err, services.ErrNoSourceImage),
		errors.Is(err, imagegen.ErrBadDataURL):
		return apierror.BadRequest(err.Error())

	case errors.Is(err, llm.ErrNotConfigured):
		return apierror.Internal("language model not configured", err)
	case errors.Is(err, imagegen.ErrNotConfigured):
		return apierror.Internal("image model not configured", err)
	case errors.Is(err, llm.ErrQuota), imagegen.StatusOf(err) == http.StatusTooManyRequests:
		return apierror.TooManyRequests("upstream quota exceeded")

	case errors.Is(err, llm.ErrUnparsable):
		return apierror.BadGateway("model returned unparsable output", err).WithDetails(err.Error())
	case errors.Is(err, services.ErrValidation):
		return apierror.BadGateway("model returned invalid output", err).WithDetails(err.Error())
	case errors.Is(err, services.ErrSceneCountMismatch):
		return apierror.BadGateway("model returned inconsistent scene count", err).WithDetails(err.Error())
	case errors.Is(err, llm.ErrEmptyResponse):
		return apierror.BadGateway("model returned an empty response", err)
	case errors.Is(err, imagegen.ErrNoImage):
		return apierror.BadGateway("model returned no image", err)
	case imagegen.StatusOf(err) != 0:
		return apierror.BadGateway("image model request failed", err)

	case errors.Is(err, textextract.ErrUnsupportedType):
		return apierror.UnsupportedMedia("only .txt and .docx files are supported")
	case errors.Is(err, textextract.ErrMalformed):
		return apierror.Internal("could not read document", err)
	}
	return nil
}

// fail writes err using the taxonomy, or a 500 when it is not classified.
func fail(w http.ResponseWriter, log *slog.Logger, err error) {
	if e := classify(err); e != nil {
		apierror.Write(w, log, e)
		return
	}
	apierror.Write(w, log, apierror.Internal("internal error", err))
}

// failUpstream is fail for calls into a model provider: unclassified errors
// are the provider's and become a 502.
func failUpstream(w http.ResponseWriter, log *slog.Logger, err error) {
	if e := classify(err); e != nil {
		apierror.Write(w, log, e)
		return
	}
	apierror.Write(w, log, apierror.BadGateway("upstream model request failed", err))
}

// requireUser returns the caller or writes a 401.
func requireUser(w http.ResponseWriter, r *http.Request, log *slog.Logger) *models.Identity {
	u := middleware.UserFromCtx(r.Context())
	if u == nil {
		apierror.Write(w, log, apierror.Unauthorized())
	}
	return u
}

// decodeJSON reads the request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, log *slog.Logger, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		apierror.Write(w, log, apierror.BadRequest("request body too large"))
	case errors.Is(err, io.EOF):
		apierror.Write(w, log, apierror.BadRequest("request body is required"))
	default:
		apierror.Write(w, log, apierror.BadRequest("invalid request body").WithDetails(err.Error()))
	}
	return false
}

// queryUUID parses a required uuid query parameter, writing a 400 on failure.
func queryUUID(w http.ResponseWriter, r *http.Request, log *slog.Logger, name string) (uuid.UUID, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		apierror.Write(w, log, apierror.BadRequest(name+" is required"))
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		apierror.Write(w, log, apierror.BadRequest("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

func decodeImage(dataURL string) (services.SourceImage, error) {
	if dataURL == "" {
		return services.SourceImage{}, nil
	}
	data, mime, err := imagegen.DecodeDataURL(dataURL)
	if err != nil {
		return services.SourceImage{}, err
	}
	return services.SourceImage{Data: data, MIMEType: mime}, nil
}
