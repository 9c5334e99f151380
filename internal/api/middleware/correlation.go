package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	clientIDKey      contextKey = "client_id"
)

// Identity reads X-Correlation-ID and X-Client-ID from the incoming request
// and stores both on the context. A missing correlation id gets a fresh UUID
// and is echoed back in the response header so callers can trace their
// request through logs; the client id identifies the participant behind
// player and DM submissions and stays empty for anonymous calls.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		ctx := context.WithValue(r.Context(), correlationIDKey, correlationID)
		if clientID := r.Header.Get("X-Client-ID"); clientID != "" {
			ctx = context.WithValue(ctx, clientIDKey, clientID)
		}
		w.Header().Set("X-Correlation-ID", correlationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetCorrelationID retrieves the correlation id stored by Identity.
// Returns an empty string if the middleware was not applied.
func GetCorrelationID(ctx context.Context) string {
	v, _ := ctx.Value(correlationIDKey).(string)
	return v
}

// GetClientID retrieves the caller's client id stored by Identity.
func GetClientID(ctx context.Context) string {
	v, _ := ctx.Value(clientIDKey).(string)
	return v
}
