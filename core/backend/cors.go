package backend

import (
	"net/http"

	"github.com/projekt-software-engineering/ticket-backend/core/logger"
)

// corsHeaders sets the CORS headers carried by every response.
func (b *Backend) corsHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", b.allowedOrigin)
	w.Header().Set("Access-Control-Allow-Credentials", "true")
}

func (b *Backend) handleCORS() {
	// Preflight requests for any path are answered without authentication.
	// The preflight response is cached for an hour.
	b.router.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, POST, DELETE")
			w.Header().Set("Access-Control-Allow-Origin", b.allowedOrigin)
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Max-Age", "3600")
			logger.FromContext(r.Context()).Debugln("preflight request for", r.URL)
			w.WriteHeader(http.StatusNoContent)
		})

	corsMiddleware := func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b.corsHeaders(w)
			// the handling verb is echoed back per request
			w.Header().Set("Access-Control-Allow-Methods", r.Method)
			h.ServeHTTP(w, r)
		})
	}
	b.router.Use(corsMiddleware)
}
