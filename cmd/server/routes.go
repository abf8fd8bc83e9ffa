package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/beatok/backend/pkg/logger"
)

// setupRoutes registers all HTTP routes and middleware
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)

	// Health endpoints
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/health/metrics", s.handleMetrics)

	// Beat endpoints
	mux.HandleFunc("GET /api/beats", s.handleListBeats)
	mux.HandleFunc("POST /api/beats", s.handleCreateBeat)
	mux.HandleFunc("GET /api/beats/{id}", s.handleGetBeat)
	mux.HandleFunc("DELETE /api/beats/{id}", s.handleDeleteBeat)
	mux.HandleFunc("POST /api/beats/{id}/approve", s.handleApproveBeat)
	mux.HandleFunc("POST /api/beats/{id}/deny", s.handleDenyBeat)

	// Fingerprint diagnostics
	mux.HandleFunc("POST /api/fingerprint", s.handleFingerprint)
	mux.HandleFunc("POST /api/fingerprint/compare", s.handleCompare)

	return corsMiddleware(s.config.AllowedOrigins)(loggingMiddleware(mux))
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			if len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*") {
				w.Header().Set("Access-Control-Allow-Origin", "*")
				allowed = true
			} else {
				for _, allowedOrigin := range allowedOrigins {
					if allowedOrigin == origin {
						w.Header().Set("Access-Control-Allow-Origin", origin)
						w.Header().Add("Vary", "Origin")
						allowed = true
						break
					}
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
				w.Header().Set("Access-Control-Max-Age", "3600")
			}

			// Handle preflight requests
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// loggingMiddleware logs all HTTP requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		log := logger.GetLogger()
		log.Debugf("%s %s from %s", r.Method, r.URL.Path, getClientIP(r))

		next.ServeHTTP(wrapped, r)

		log.Infof("%s %s -> %d", r.Method, r.URL.Path, wrapped.statusCode)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For can contain multiple IPs, take the first one
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// Start starts the HTTP server
func (s *Server) Start() error {
	handler := s.setupRoutes()

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.log.Infof("Beatok server starting on %s", addr)
	s.log.Infof("   Database: %s", s.config.DBPath)
	s.log.Infof("   Storage: %s", s.config.StorageType)
	s.log.Infof("   Max upload: %s", humanize.Bytes(uint64(s.config.MaxUploadBytes)))
	s.log.Infof("   CORS Origins: %v", s.config.AllowedOrigins)
	s.log.Infof("Endpoints:")
	s.log.Infof("   GET    /health                    - Health check")
	s.log.Infof("   GET    /api/health/metrics        - Beat counts and settings")
	s.log.Infof("   GET    /api/beats                 - List beats")
	s.log.Infof("   POST   /api/beats                 - Upload a beat")
	s.log.Infof("   GET    /api/beats/{id}            - Get beat by ID")
	s.log.Infof("   DELETE /api/beats/{id}            - Delete beat by ID")
	s.log.Infof("   POST   /api/beats/{id}/approve    - Publish a moderated beat")
	s.log.Infof("   POST   /api/beats/{id}/deny       - Deny a moderated beat")
	s.log.Infof("   POST   /api/fingerprint           - Fingerprint an audio file")
	s.log.Infof("   POST   /api/fingerprint/compare   - Compare two fingerprints")

	return http.ListenAndServe(addr, handler)
}
