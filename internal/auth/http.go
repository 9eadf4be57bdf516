// ABOUTME: HTTP middleware for JWT authentication on inbox API endpoints
// ABOUTME: Extracts the bearer token, checks the viewer still exists and adds it to context

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/coven-inbox/internal/store"
)

// ParticipantStore looks up the participant behind a token.
type ParticipantStore interface {
	GetParticipant(ctx context.Context, id string) (*store.Participant, error)
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// HTTPAuthMiddleware rejects requests without a valid bearer token for an
// active participant and attaches the AuthContext otherwise. A token for
// a deactivated participant is refused with 403.
func HTTPAuthMiddleware(participants ParticipantStore, verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				writeAuthError(w, errMsg, http.StatusUnauthorized)
				return
			}

			viewerID, err := verifier.Verify(token)
			if err != nil {
				logger.Debug("rejected token", "path", r.URL.Path, "error", err)
				msg := "invalid token"
				if errors.Is(err, ErrExpiredToken) {
					msg = "token expired"
				}
				writeAuthError(w, msg, http.StatusUnauthorized)
				return
			}

			participant, err := participants.GetParticipant(r.Context(), viewerID)
			if errors.Is(err, store.ErrNotFound) {
				writeAuthError(w, "viewer not found", http.StatusUnauthorized)
				return
			}
			if err != nil {
				logger.Error("looking up viewer", "viewer_id", viewerID, "error", err)
				writeAuthError(w, "internal error", http.StatusInternalServerError)
				return
			}
			if participant.Deactivated {
				writeAuthError(w, "viewer has been deactivated", http.StatusForbidden)
				return
			}

			authCtx := &AuthContext{
				ViewerID:    participant.ID,
				DisplayName: participant.DisplayName,
			}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}

func writeAuthError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
