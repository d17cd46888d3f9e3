package webutil

import (
	"encoding/json"
	"log"
	"net/http"
)

func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, map[string]string{"error": message})
}

func RespondWithJSON(w http.ResponseWriter, status int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ERROR: Failed to marshal JSON response: %v", err)
		w.Header().Set(HeaderContentType, ContentTypeJSONUTF8)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Internal Server Error"}`))
		return
	}

	w.Header().Set(HeaderContentType, ContentTypeJSONUTF8)
	w.WriteHeader(status)
	_, _ = w.Write(response)
}

// RespondWithETag writes payload as JSON with a content hash ETag. When the
// request already carries that tag in If-None-Match, 304 is sent instead
// so polling pages do not redraw an unchanged table.
func RespondWithETag(w http.ResponseWriter, r *http.Request, payload any) error {
	response, err := json.Marshal(payload)
	if err != nil {
		return ErrInternalServerWrap("failed to marshal response", err)
	}
	hash, err := GenerateHash(string(response))
	if err != nil {
		return ErrInternalServerWrap("failed to hash response", err)
	}
	etag := `"` + hash[:32] + `"`

	w.Header().Set(HeaderETag, etag)
	w.Header().Set(HeaderCacheControl, "no-cache")
	if r.Header.Get(HeaderIfNoneMatch) == etag {
		w.WriteHeader(http.StatusNotModified)
		return nil
	}

	w.Header().Set(HeaderContentType, ContentTypeJSONUTF8)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(response)
	return nil
}
