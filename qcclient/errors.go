package qcclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jaytaylor/html2text"
)

const maxMessageLength = 300

// Error is a non-2xx answer from the QC server.
type Error struct {
	Method     string
	Path       string
	StatusCode int
	// Message is what the server said, suitable for a dialog.
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the QC server.
func IsNotFound(err error) bool {
	var qe *Error
	return errors.As(err, &qe) && qe.StatusCode == http.StatusNotFound
}

// ServerMessage extracts the server-supplied message from err, if any.
func ServerMessage(err error) (string, bool) {
	var qe *Error
	if errors.As(err, &qe) && qe.Message != "" {
		return qe.Message, true
	}
	return "", false
}

func newError(req *http.Request, resp *http.Response, body []byte) *Error {
	return &Error{
		Method:     req.Method,
		Path:       req.URL.Path,
		StatusCode: resp.StatusCode,
		Message:    errorMessage(resp, body),
	}
}

// errorMessage prefers the {"message": ...} envelope, then flattens an
// HTML error page to text, then falls back to the status text.
func errorMessage(resp *http.Response, body []byte) string {
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		if envelope.Message != "" {
			return envelope.Message
		}
		if envelope.Error != "" {
			return envelope.Error
		}
	}

	text := strings.TrimSpace(string(body))
	if strings.Contains(resp.Header.Get("Content-Type"), "html") || strings.HasPrefix(text, "<") {
		if plain, err := html2text.FromString(text, html2text.Options{TextOnly: true}); err == nil {
			text = plain
		}
	}
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return http.StatusText(resp.StatusCode)
	}
	if len(text) > maxMessageLength {
		text = text[:maxMessageLength] + "..."
	}
	return text
}
