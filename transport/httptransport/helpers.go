package httptransport

import (
	"encoding/json"
	"net/http"
	"strings"
)

// respondWithJSON writes payload as JSON, gzipped when the client accepts it
// and the body reaches the compression threshold.
func respondWithJSON(w http.ResponseWriter, r *http.Request, code int, payload any, options *ServerOptions) {
	response, err := json.Marshal(payload)
	if err != nil {
		respondWithError(w, r, http.StatusInternalServerError, "failed to marshal response", options)
		return
	}

	useCompression := options != nil && options.CompressionEnabled &&
		int64(len(response)) >= options.CompressionThreshold &&
		strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")

	w.Header().Set("Content-Type", "application/json")
	w.Header().Add("Vary", "Accept-Encoding")

	if useCompression {
		if compressed, err := gzipBytes(response); err == nil {
			w.Header().Set("Content-Encoding", "gzip")
			w.WriteHeader(code)
			_, _ = w.Write(compressed)
			return
		}
	}
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// respondWithError responds to an HTTP request with an error message
func respondWithError(w http.ResponseWriter, r *http.Request, code int, message string, options *ServerOptions) {
	respondWithJSON(w, r, code, map[string]string{"error": message}, options)
}
