package api

import (
	"net/http"
	"time"

	"github.com/AryanVBW/CommonsProxy-sub000/internal/config"
	"github.com/AryanVBW/CommonsProxy-sub000/internal/utils"
)

// ConfigurableCORS adds CORS headers based on environment configuration
// (CORS_ENABLED, CORS_ALLOW_ORIGIN, CORS_ALLOW_METHODS, CORS_ALLOW_HEADERS,
// CORS_MAX_AGE). The default origin is "*"; production deployments should
// narrow it.
func ConfigurableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corsConfig := config.GetCORSConfig()
		if !corsConfig.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", corsConfig.AllowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", corsConfig.AllowMethods)
		w.Header().Set("Access-Control-Allow-Headers", corsConfig.AllowHeaders)
		w.Header().Set("Access-Control-Max-Age", corsConfig.MaxAge)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// BodyLimit caps the request body size so a runaway client cannot exhaust
// memory on the JSON decode.
func BodyLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, config.RequestBodyLimit)
		}
		next.ServeHTTP(w, r)
	})
}

// Logger logs incoming requests and their duration. Health checks are only
// logged in debug mode.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		if r.URL.Path == "/health" && !utils.IsDebugEnabled() {
			return
		}

		utils.Info("[%s] %s %s %d %s",
			r.Method,
			r.URL.Path,
			r.RemoteAddr,
			rw.statusCode,
			time.Since(start).Truncate(time.Millisecond))
	})
}

// Recovery recovers from handler panics and returns a 500 error.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				utils.Error("[Panic] %v", err)
				http.Error(w, `{"type":"error","error":{"type":"api_error","message":"Internal server error"}}`, http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// responseWriter captures the status code for request logging while keeping
// Flush available for SSE.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
