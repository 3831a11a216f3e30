package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-service/internal/models"
)

var testSecret = []byte("test-secret")

func testIdentity() models.Identity {
	ref := "sso-42"
	return models.Identity{
		ID:          "user-1",
		Username:    "ada",
		DisplayName: "Ada Lovelace",
		Email:       "ada@example.com",
		AvatarColor: "#10b981",
		Role:        models.RoleAdmin,
		ExternalRef: &ref,
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	id := testIdentity()
	token, err := SignToken(testSecret, id, time.Hour)
	require.NoError(t, err)

	v := NewVerifier(testSecret, nil)
	got, err := v.Verify(context.Background(), token)
	require.NoError(t, err)

	assert.Equal(t, id.ID, got.ID)
	assert.Equal(t, id.Username, got.Username)
	assert.Equal(t, id.DisplayName, got.DisplayName)
	assert.Equal(t, id.Email, got.Email)
	assert.Equal(t, id.AvatarColor, got.AvatarColor)
	assert.Equal(t, models.RoleAdmin, got.Role)
	require.NotNil(t, got.ExternalRef)
	assert.Equal(t, "sso-42", *got.ExternalRef)
}

func TestVerifyAcceptsBearerPrefix(t *testing.T) {
	token, err := SignToken(testSecret, testIdentity(), time.Hour)
	require.NoError(t, err)

	v := NewVerifier(testSecret, nil)
	_, err = v.Verify(context.Background(), "Bearer "+token)
	assert.NoError(t, err)
}

func TestVerifyFailures(t *testing.T) {
	expired, err := SignToken(testSecret, testIdentity(), -time.Minute)
	require.NoError(t, err)
	wrongKey, err := SignToken([]byte("other-secret"), testIdentity(), time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty token", token: ""},
		{name: "garbage", token: "not.a.token"},
		{name: "expired", token: expired},
		{name: "wrong secret", token: wrongKey},
	}

	v := NewVerifier(testSecret, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

type stubRevocation struct {
	revoked map[string]bool
}

func (s *stubRevocation) IsRevoked(_ context.Context, identityID string) (bool, error) {
	return s.revoked[identityID], nil
}

func TestVerifyRevoked(t *testing.T) {
	token, err := SignToken(testSecret, testIdentity(), time.Hour)
	require.NoError(t, err)

	v := NewVerifier(testSecret, &stubRevocation{revoked: map[string]bool{"user-1": true}})
	_, err = v.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrRevoked)
}

func TestVerifyUnknownRoleFallsBackToMember(t *testing.T) {
	id := testIdentity()
	id.Role = "superuser"
	token, err := SignToken(testSecret, id, time.Hour)
	require.NoError(t, err)

	v := NewVerifier(testSecret, nil)
	got, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, got.Role)
}
