package middleware

import (
	"net/http"
	"strings"

	"roomres/pkg/auth"
	apperrors "roomres/pkg/errors"
	"roomres/pkg/logger"
)

// Authenticate resolves the bearer token into a caller and stores it in the
// request context. Requests without an Authorization header pass through
// anonymously so that each operation can decide whether it needs a caller.
// A header that is present but unusable is rejected with 401.
func Authenticate(authn auth.Authenticator, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			scheme, token, found := strings.Cut(header, " ")
			if !found || !strings.EqualFold(scheme, "Bearer") {
				rejectUnauthenticated(w, log, r, apperrors.Unauthorized("Authorization header must use the Bearer scheme"))
				return
			}

			caller, err := authn.Authenticate(r.Context(), strings.TrimSpace(token))
			if err != nil {
				rejectUnauthenticated(w, log, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithCaller(r.Context(), caller)))
		})
	}
}

func rejectUnauthenticated(w http.ResponseWriter, log *logger.Logger, r *http.Request, err error) {
	log.Warn("Authentication failed",
		"request_id", RequestIDFromContext(r.Context()),
		"path", r.URL.Path,
		"error", err,
	)
	_ = apperrors.WriteError(w, err)
}
