package middleware

import (
	"context"
	"errors"
	"net/http"

	"challenge_gateway/internal/common"
	"challenge_gateway/internal/common/security"

	"github.com/go-chi/jwtauth/v5"
)

type contextKey string

const (
	SessionIDCtxKey contextKey = "sessionID"
	DeviceIDCtxKey  contextKey = "deviceID"
)

// SessionLookup reports whether a session id is still held by the server.
type SessionLookup interface {
	DeviceID(sessionID string) (string, error)
}

// Authenticator accepts a verified session token whose session is still
// live and whose device matches the one the session was started for.
func Authenticator(sessions SessionLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, claims, err := jwtauth.FromContext(r.Context())
			if err != nil || token == nil {
				if err == nil || errors.Is(err, jwtauth.ErrNoTokenFound) {
					common.RespondWithError(w, http.StatusUnauthorized, "Authorization token required")
				} else {
					common.RespondWithError(w, http.StatusUnauthorized, "Invalid token: "+err.Error())
				}
				return
			}

			sessionID, err := security.GetSessionIDFromClaims(claims)
			if err != nil {
				common.RespondWithError(w, http.StatusUnauthorized, "Invalid token claims: "+err.Error())
				return
			}
			deviceID, err := security.GetDeviceIDFromClaims(claims)
			if err != nil {
				common.RespondWithError(w, http.StatusUnauthorized, "Invalid token claims: "+err.Error())
				return
			}

			owner, err := sessions.DeviceID(sessionID)
			if err != nil {
				common.RespondWithError(w, http.StatusUnauthorized, common.ErrorMessage(err))
				return
			}
			if owner != deviceID {
				common.RespondWithError(w, http.StatusUnauthorized, "Session does not belong to this device")
				return
			}

			ctx := context.WithValue(r.Context(), SessionIDCtxKey, sessionID)
			ctx = context.WithValue(ctx, DeviceIDCtxKey, deviceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetSessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(SessionIDCtxKey).(string)
	return id, ok
}

func GetDeviceIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(DeviceIDCtxKey).(string)
	return id, ok
}
