package httpapi

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// CorrelationMiddleware tags each request with a correlation ID: the client's
// X-Correlation-ID when it sent one, a fresh UUID otherwise. The ID is echoed
// on the response and stamped onto the request-scoped logger, so a field
// device's logs and the server's logs line up on one field.
func CorrelationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		w.Header().Set("X-Correlation-ID", correlationID)

		logger := log.With().Str("correlation_id", correlationID).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
	})
}
