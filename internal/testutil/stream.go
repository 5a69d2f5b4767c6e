// Package testutil provides helpers shared by chatkit tests.
package testutil

import (
	"net/http"
	"strings"
	"testing"
)

// FramePayloads builds a framed event-stream body from raw payloads,
// terminated by the [DONE] sentinel. Useful with plain readers.
func FramePayloads(payloads ...string) string {
	var b strings.Builder
	for _, p := range payloads {
		b.WriteString("data: ")
		b.WriteString(p)
		b.WriteString("\n")
	}
	b.WriteString("data: [DONE]\n")
	return b.String()
}

// StreamHandler returns a handler that serves the payloads as a framed
// event stream, flushing after every frame so each one arrives as its own
// chunk, the way a real assistant backend trickles them out.
func StreamHandler(t *testing.T, payloads ...string) http.HandlerFunc {
	t.Helper()

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)

		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Error("response writer does not support flushing")
			return
		}

		for _, p := range payloads {
			if _, err := w.Write([]byte("data: " + p + "\n")); err != nil {
				return // client went away
			}
			flusher.Flush()
		}
		_, _ = w.Write([]byte("data: [DONE]\n"))
		flusher.Flush()
	}
}
