package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", time.Minute)
	staff := &domain.StaffMember{ID: "staff-1", Email: "alice@x", Role: domain.StaffRoleAdmin}

	token, exp, err := tm.GenerateToken(staff)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), exp, 5*time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "staff-1", claims.Subject)
	assert.Equal(t, "alice@x", claims.Email)
	assert.Equal(t, domain.StaffRoleAdmin, claims.Role)
}

func TestParseTokenRejectsForeignSecretAndExpiry(t *testing.T) {
	staff := &domain.StaffMember{ID: "staff-1", Role: domain.StaffRoleStaff}

	token, _, err := NewTokenManager("one", time.Minute).GenerateToken(staff)
	require.NoError(t, err)
	_, err = NewTokenManager("two", time.Minute).ParseToken(token)
	assert.Error(t, err)

	expired := NewTokenManager("one", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, _, err = expired.GenerateToken(staff)
	require.NoError(t, err)
	_, err = NewTokenManager("one", time.Minute).ParseToken(token)
	assert.Error(t, err)
}

func TestHashPassword(t *testing.T) {
	_, err := HashPassword("short", bcrypt.MinCost)
	assert.ErrorIs(t, err, ErrWeakPassword)

	hash, err := HashPassword("correct horse", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NoError(t, ComparePassword(hash, "correct horse"))
	assert.Error(t, ComparePassword(hash, "wrong horse"))
}
