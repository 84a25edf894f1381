package auth

import (
	"context"
	"testing"
	"time"

	"subject-choices/internal/model"
	"subject-choices/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	m, err := NewTokenManager("secret", "subject-choices", time.Hour)
	require.NoError(t, err)

	token, err := m.Sign("teacher-1", "Ms Teacher")
	require.NoError(t, err)

	actor, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, Actor{ID: "teacher-1", Name: "Ms Teacher"}, actor)
}

func TestVerifyRejects(t *testing.T) {
	m, err := NewTokenManager("secret", "subject-choices", time.Hour)
	require.NoError(t, err)

	other, err := NewTokenManager("other-secret", "subject-choices", time.Hour)
	require.NoError(t, err)
	forged, err := other.Sign("teacher-1", "")
	require.NoError(t, err)

	expiredManager, err := NewTokenManager("secret", "subject-choices", -time.Minute)
	require.NoError(t, err)
	expired, err := expiredManager.Sign("teacher-1", "")
	require.NoError(t, err)

	wrongIssuer, err := NewTokenManager("secret", "someone-else", time.Hour)
	require.NoError(t, err)
	foreign, err := wrongIssuer.Sign("teacher-1", "")
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "subject-choices"},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":      "not-a-token",
		"forged":       forged,
		"expired":      expired,
		"wrong issuer": foreign,
		"no subject":   noSubject,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := m.Verify(token)
			assert.ErrorIs(t, err, errors.ErrUnauthenticated)
		})
	}
}

func TestNewTokenManagerRequiresSecret(t *testing.T) {
	_, err := NewTokenManager("", "", time.Hour)
	assert.Error(t, err)
}

func TestActorContext(t *testing.T) {
	_, ok := ActorFrom(context.Background())
	assert.False(t, ok)

	ctx := WithActor(context.Background(), Actor{ID: "teacher-1"})
	actor, ok := ActorFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "teacher-1", actor.ID)
}

func TestRequireOwner(t *testing.T) {
	upload := &model.Upload{ID: 3, OwnerID: "teacher-1"}

	assert.NoError(t, RequireOwner(Actor{ID: "teacher-1"}, upload))

	var unauthorized errors.UnauthorizedError
	require.ErrorAs(t, RequireOwner(Actor{ID: "teacher-2"}, upload), &unauthorized)
	assert.Equal(t, "teacher-2", unauthorized.ActorID)
	assert.Error(t, RequireOwner(Actor{}, &model.Upload{ID: 4}))
}
