package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/karthikgk97/notion-llm/internal/logging"
)

// Rejection reasons, used as the "reason" label of the rejected-requests counter.
const (
	rejectUnauthorized = "unauthorized"
	rejectInvalidToken = "invalid_token"
	rejectRateLimited  = "rate_limited"
)

// authMiddleware requires "Authorization: Bearer <apiKey>" on the wrapped
// routes. An empty apiKey disables auth; Start warns about that once.
// Tokens are compared in constant time and never logged. reject, when set,
// is called with the rejection reason.
func authMiddleware(apiKey string, reject func(reason string), next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	want := []byte(apiKey)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logging.FromContext(r.Context())

		token := bearerToken(r)
		reason := ""
		switch {
		case token == "":
			reason = rejectUnauthorized
			w.Header().Set("WWW-Authenticate", `Bearer realm="notion-llm"`)
		case subtle.ConstantTimeCompare([]byte(token), want) != 1:
			reason = rejectInvalidToken
			w.Header().Set("WWW-Authenticate", `Bearer realm="notion-llm", error="invalid_token"`)
		}
		if reason == "" {
			next.ServeHTTP(w, r)
			return
		}

		log.Warn("auth: request rejected", slog.String("reason", reason))
		if reject != nil {
			reject(reason)
		}
		msg := "authorization required"
		if reason == rejectInvalidToken {
			msg = "invalid token"
		}
		writeError(r.Context(), w, http.StatusUnauthorized, msg)
	})
}

// bearerToken returns the token of an "Authorization: Bearer <token>" header,
// or "" when the header is absent or uses another scheme.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
