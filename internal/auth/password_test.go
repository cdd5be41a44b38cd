package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mrlokans/librarian/internal/config"
)

func TestNewPasswordPolicy(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Auth
		want PasswordPolicy
	}{
		{"unset", config.Auth{}, PasswordPolicy{MinLength: DefaultMinPasswordLength, Cost: bcrypt.DefaultCost}},
		{"configured", config.Auth{MinPasswordLength: 16, BcryptCost: 4}, PasswordPolicy{MinLength: 16, Cost: 4}},
		{"minimum beyond bcrypt limit", config.Auth{MinPasswordLength: 100, BcryptCost: 12}, PasswordPolicy{MinLength: DefaultMinPasswordLength, Cost: 12}},
		{"cost out of range", config.Auth{BcryptCost: 99}, PasswordPolicy{MinLength: DefaultMinPasswordLength, Cost: bcrypt.DefaultCost}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewPasswordPolicy(tt.cfg))
		})
	}
}

func TestPasswordPolicy_Hash(t *testing.T) {
	policy := NewPasswordPolicy(config.Auth{MinPasswordLength: 14, BcryptCost: 4})

	tests := []struct {
		name     string
		password string
		wantErr  error
		wantMsg  string
	}{
		{"below configured minimum", strings.Repeat("a", 13), ErrPasswordTooShort, "at least 14 characters"},
		{"at configured minimum", strings.Repeat("a", 14), nil, ""},
		{"at bcrypt limit", strings.Repeat("a", 72), nil, ""},
		{"past bcrypt limit", strings.Repeat("a", 73), ErrPasswordTooLong, "at most 72 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := policy.Hash(tt.password)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Contains(t, err.Error(), tt.wantMsg)
				assert.Empty(t, hash)
				return
			}
			require.NoError(t, err)

			cost, err := bcrypt.Cost([]byte(hash))
			require.NoError(t, err)
			assert.Equal(t, 4, cost)
			assert.NoError(t, verifyPassword(tt.password, hash))
		})
	}
}

func TestVerifyPassword(t *testing.T) {
	hash, err := NewPasswordPolicy(config.Auth{BcryptCost: 4}).Hash("correct-horse-battery")
	require.NoError(t, err)

	assert.NoError(t, verifyPassword("correct-horse-battery", hash))
	assert.ErrorIs(t, verifyPassword("Correct-horse-battery", hash), ErrInvalidPassword)
	assert.ErrorIs(t, verifyPassword("", hash), ErrInvalidPassword)

	err = verifyPassword("correct-horse-battery", "not-a-bcrypt-hash")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidPassword)
}

func TestNewAPIToken(t *testing.T) {
	first, err := newAPIToken()
	require.NoError(t, err)
	second, err := newAPIToken()
	require.NoError(t, err)

	assert.Len(t, first.Plain, 2*tokenBytes)
	assert.Len(t, first.Hash, 64)
	assert.Equal(t, hashAPIToken(first.Plain), first.Hash)
	assert.NotEqual(t, first.Plain, first.Hash)
	assert.NotEqual(t, first.Plain, second.Plain)
}

func TestNewSessionSecret(t *testing.T) {
	first, err := NewSessionSecret()
	require.NoError(t, err)
	second, err := NewSessionSecret()
	require.NoError(t, err)

	assert.Len(t, first, tokenBytes)
	assert.NotEqual(t, first, second)
}
