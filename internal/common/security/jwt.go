package security

import (
	"errors"
	"time"

	"challenge_gateway/internal/platform/config"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
)

var TokenAuth *jwtauth.JWTAuth

func InitJWT() {
	TokenAuth = jwtauth.New("HS256", config.AppConfig.JWTKey, nil)
}

// GenerateSessionToken issues the bearer token a browser uses for its session.
func GenerateSessionToken(sessionID, deviceID string, challengeID int64) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"session_id":   sessionID,
		"device_id":    deviceID,
		"challenge_id": challengeID,
		"exp":          now.Add(config.AppConfig.JWTExp).Unix(),
		"iat":          now.Unix(),
	}
	_, tokenString, err := TokenAuth.Encode(claims)
	return tokenString, err
}

func GetSessionIDFromClaims(claims jwt.MapClaims) (string, error) {
	id, ok := claims["session_id"].(string)
	if !ok || id == "" {
		return "", errors.New("session_id claim is missing or not a string")
	}
	return id, nil
}

func GetDeviceIDFromClaims(claims jwt.MapClaims) (string, error) {
	id, ok := claims["device_id"].(string)
	if !ok || id == "" {
		return "", errors.New("device_id claim is missing or not a string")
	}
	return id, nil
}
