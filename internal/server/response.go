package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ResponseMeta contains metadata for API responses.
type ResponseMeta struct {
	RequestID string `json:"request_id"`
	LatencyMS int64  `json:"latency_ms"`
	Timestamp string `json:"timestamp"`
}

// WrappedResponse wraps API responses with data and metadata.
type WrappedResponse struct {
	Data interface{}  `json:"data"`
	Meta ResponseMeta `json:"meta"`
}

// unwrapped paths reply with their bare body.
var unwrapped = map[string]bool{
	"/v1/version": true,
	"/v1/health":  true,
}

// bufferedWriter holds the reply until the handler returns.
type bufferedWriter struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (bw *bufferedWriter) WriteHeader(code int) {
	bw.status = code
}

func (bw *bufferedWriter) Write(b []byte) (int, error) {
	return bw.body.Write(b)
}

// ResponseWrapperMiddleware wraps successful JSON replies under /v1 in a
// data/meta envelope. Errors pass through unchanged.
func ResponseWrapperMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v1/") || unwrapped[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		requestID := GenerateRequestID()
		w.Header().Set("X-Request-ID", requestID)

		bw := &bufferedWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(bw, r)

		var data interface{}
		if bw.status >= 400 || bw.body.Len() == 0 || json.Unmarshal(bw.body.Bytes(), &data) != nil {
			w.WriteHeader(bw.status)
			_, _ = w.Write(bw.body.Bytes())
			return
		}

		writeJSON(w, bw.status, WrappedResponse{
			Data: data,
			Meta: ResponseMeta{
				RequestID: requestID,
				LatencyMS: time.Since(start).Milliseconds(),
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			},
		})
	})
}

// GenerateRequestID returns a short random request ID.
func GenerateRequestID() string {
	return uuid.NewString()[:8]
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
