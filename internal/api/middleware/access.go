package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/eshaffer321/ledgerbook/internal/api/dto"
)

// Authorizer decides whether an email may use the API.
type Authorizer interface {
	Allowed(ctx context.Context, email string) (bool, error)
}

// RequireAllowed reads the authenticated email from header, which the auth
// proxy in front of the API sets, and refuses callers the policy does not
// allow. A failing lookup refuses too.
func RequireAllowed(policy Authorizer, header string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := Logger(r.Context(), logger)
			email := r.Header.Get(header)

			ok, err := policy.Allowed(r.Context(), email)
			if err != nil {
				log.Error("access check failed", "email", email, "error", err)
				writeError(w, http.StatusServiceUnavailable, dto.UnavailableError("access check unavailable"))
				return
			}
			if !ok {
				log.Warn("access denied", "email", email, "path", r.URL.Path)
				writeError(w, http.StatusForbidden, dto.ForbiddenError())
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), emailKey, email)))
		})
	}
}

// Email returns the caller's email once RequireAllowed has admitted it.
func Email(ctx context.Context) string {
	e, _ := ctx.Value(emailKey).(string)
	return e
}

func writeError(w http.ResponseWriter, status int, apiErr dto.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiErr)
}
