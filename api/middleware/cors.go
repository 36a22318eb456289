package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

var devCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
}

// CORS returns middleware that applies the API's allowed origin policy. Dev
// environments always accept the local storefront origins; with no origins
// configured cross-origin requests get no CORS headers.
func CORS(origins []string, dev bool) func(http.Handler) http.Handler {
	allowed := append([]string(nil), origins...)
	if dev {
		allowed = append(allowed, devCORSOrigins...)
	}
	if len(allowed) == 0 {
		// go-chi/cors treats an empty list as "*".
		return func(next http.Handler) http.Handler { return next }
	}
	return cors.New(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
