package profiling

import (
	"log"
	"net/http"
	"strconv"
	"time"
)

// Middleware times HTTP handlers when profiling is enabled
type Middleware struct {
	enableProfiling bool
}

// NewMiddleware creates a new profiling middleware
func NewMiddleware(enableProfiling bool) *Middleware {
	return &Middleware{enableProfiling: enableProfiling}
}

// ProfiledHandler wraps handler, adding an X-Handler-Name header and logging
// the status and duration of each request
func (m *Middleware) ProfiledHandler(name string, handler http.Handler) http.Handler {
	if !m.enableProfiling {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		w.Header().Set("X-Handler-Name", name)
		w.Header().Set("X-Start-Time", start.Format(time.RFC3339Nano))

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler.ServeHTTP(wrapped, r)

		log.Printf("⏱️  %s %s -> %s in %.3fms", name, r.Method, strconv.Itoa(wrapped.statusCode), ms(time.Since(start)))
	})
}

// responseWriter captures the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
