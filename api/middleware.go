package api

import (
	"net/http"

	"github.com/coreybb/qcdash/webutil"
)

// SetHeader is a middleware to set a response header.
func SetHeader(key, value string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(key, value)
			next.ServeHTTP(w, r)
		})
	}
}

// NoCache keeps browsers and proxies from storing dashboard responses.
// Handlers that send an ETag replace it with no-cache so revalidation works.
func NoCache(next http.Handler) http.Handler {
	return SetHeader(webutil.HeaderCacheControl, "no-store")(next)
}
