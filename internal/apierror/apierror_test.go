package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestWrite_TypedError(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, nil, NotFound("project not found"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decode(t, rec)
	assert.Equal(t, "project not found", body["error"])
	_, hasDetails := body["details"]
	assert.False(t, hasDetails)
}

func TestWrite_WrappedTypedErrorWithDetails(t *testing.T) {
	inner := BadGateway("model returned unparsable output", errors.New("eof")).WithDetails("no JSON object found")
	rec := httptest.NewRecorder()
	Write(rec, nil, fmt.Errorf("analyze: %w", inner))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "model returned unparsable output", body["error"])
	assert.Equal(t, "no JSON object found", body["details"])
}

func TestWrite_UntypedErrorIsInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, nil, errors.New("connection reset"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decode(t, rec)["error"])
}

func TestError_Unwrap(t *testing.T) {
	root := errors.New("root")
	err := Internal("upload failed", root)
	assert.ErrorIs(t, err, root)
	assert.Equal(t, "upload failed: root", err.Error())
}
