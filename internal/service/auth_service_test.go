package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/openprep/testprep-backend/internal/config"
)

func TestPasswordHashRoundtrip(t *testing.T) {
	s := NewAuthService(&config.Config{BcryptCost: bcrypt.MinCost}, nil, nil)

	hash, err := s.HashPassword("sup3rsecret")
	require.NoError(t, err)
	assert.NotEqual(t, "sup3rsecret", hash)

	assert.NoError(t, s.CheckPassword(hash, "sup3rsecret"))
	assert.ErrorIs(t, s.CheckPassword(hash, "wrong"), ErrInvalidCredentials)
}

func TestValidateToken_RejectsGarbage(t *testing.T) {
	s := NewAuthService(&config.Config{JWTSecret: "test-secret"}, nil, nil)

	_, err := s.ValidateToken("not-a-jwt")
	assert.Error(t, err)
}
