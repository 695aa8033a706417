package security

import (
	"context"
	"testing"
	"time"

	"challenge_gateway/internal/platform/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	config.AppConfig = &config.Config{JWTKey: []byte("test-secret"), JWTExp: time.Hour}
	InitJWT()

	tokenString, err := GenerateSessionToken("sess-1", "dev-1", 42)
	require.NoError(t, err)

	token, err := TokenAuth.Decode(tokenString)
	require.NoError(t, err)
	claims, err := token.AsMap(context.Background())
	require.NoError(t, err)

	sessionID, err := GetSessionIDFromClaims(claims)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", sessionID)

	deviceID, err := GetDeviceIDFromClaims(claims)
	require.NoError(t, err)
	assert.Equal(t, "dev-1", deviceID)
}

func TestClaimsMissing(t *testing.T) {
	_, err := GetSessionIDFromClaims(map[string]interface{}{})
	assert.Error(t, err)
	_, err = GetDeviceIDFromClaims(map[string]interface{}{"device_id": 7})
	assert.Error(t, err)
}

func TestPhoneDigest(t *testing.T) {
	a := PhoneDigest("+919876543210")
	assert.Len(t, a, 32)
	assert.Equal(t, a, PhoneDigest("+919876543210"))
	assert.NotEqual(t, a, PhoneDigest("+919876543211"))
}
