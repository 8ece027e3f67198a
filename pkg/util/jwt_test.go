package util

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT(7, "admin", "secret")
	require.NoError(t, err)

	userID, role, err := ParseJWT(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, int64(7), userID)
	assert.Equal(t, "admin", role)
}

func TestParseJWTRejectsWrongSecret(t *testing.T) {
	token, err := GenerateJWT(7, "admin", "secret")
	require.NoError(t, err)

	_, _, err = ParseJWT(token, "other-secret")
	assert.Error(t, err)
}

func TestParseJWTRejectsGarbage(t *testing.T) {
	_, _, err := ParseJWT("not.a.token", "secret")
	assert.Error(t, err)
}

func TestExtractToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	assert.Empty(t, ExtractToken(r))

	r.Header.Set("Authorization", "Bearer abc123")
	assert.Equal(t, "abc123", ExtractToken(r))

	r.Header.Set("Authorization", "Basic abc123")
	assert.Empty(t, ExtractToken(r))

	r.Header.Set("Authorization", "abc123")
	assert.Empty(t, ExtractToken(r))
}
