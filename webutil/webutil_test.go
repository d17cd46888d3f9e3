package webutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreybb/qcdash/qcclient"
)

func serve(h AppHandler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	MakeHandler(h)(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestMakeHandlerMapsErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"http error", ErrBadRequest("Invalid delivery id"), http.StatusBadRequest, "Invalid delivery id"},
		{"wrapped http error", fmt.Errorf("handler: %w", ErrConflict("")), http.StatusConflict, "Conflict"},
		{"upstream not found", &qcclient.Error{StatusCode: http.StatusNotFound, Message: "Not Found"}, http.StatusNotFound, "Resource not found"},
		{"upstream failure", &qcclient.Error{StatusCode: http.StatusInternalServerError, Message: "Server Error (500)"}, http.StatusBadGateway, "Server Error (500)"},
		{"internal", errors.New("boom"), http.StatusInternalServerError, "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(func(http.ResponseWriter, *http.Request) error { return tt.err },
				httptest.NewRequest(http.MethodGet, "/api/deliveries", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, ContentTypeJSONUTF8, rec.Header().Get(HeaderContentType))
			assert.Equal(t, tt.wantMsg, errorBody(t, rec))
		})
	}
}

func TestMakeHandlerDoesNotOverwriteWrittenResponse(t *testing.T) {
	rec := serve(func(w http.ResponseWriter, _ *http.Request) error {
		w.WriteHeader(http.StatusAccepted)
		return errors.New("too late")
	}, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestRespondWithETag(t *testing.T) {
	payload := map[string]int{"total": 3}
	h := func(w http.ResponseWriter, r *http.Request) error {
		return RespondWithETag(w, r, payload)
	}

	first := serve(h, httptest.NewRequest(http.MethodGet, "/api/deliveries", nil))
	require.Equal(t, http.StatusOK, first.Code)
	etag := first.Header().Get(HeaderETag)
	require.NotEmpty(t, etag)
	assert.JSONEq(t, `{"total": 3}`, first.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/api/deliveries", nil)
	req.Header.Set(HeaderIfNoneMatch, etag)
	second := serve(h, req)
	assert.Equal(t, http.StatusNotModified, second.Code)
	assert.Empty(t, second.Body.String())

	payload["total"] = 4
	req = httptest.NewRequest(http.MethodGet, "/api/deliveries", nil)
	req.Header.Set(HeaderIfNoneMatch, etag)
	third := serve(h, req)
	assert.Equal(t, http.StatusOK, third.Code)
	assert.NotEqual(t, etag, third.Header().Get(HeaderETag))
}

func TestGenerateHash(t *testing.T) {
	h, err := GenerateHash("abc")
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", h)
}
