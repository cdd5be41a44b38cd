package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/mrlokans/librarian/internal/config"
)

const (
	// DefaultMinPasswordLength applies when AUTH_MIN_PASSWORD_LENGTH is unset.
	DefaultMinPasswordLength = 12
	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72
	tokenBytes       = 32
)

var (
	ErrInvalidPassword  = errors.New("invalid password")
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
)

// PasswordPolicy hashes member passwords with the configured bcrypt cost and
// length bounds.
type PasswordPolicy struct {
	MinLength int
	Cost      int
}

// NewPasswordPolicy reads AUTH_BCRYPT_COST and AUTH_MIN_PASSWORD_LENGTH.
// Out-of-range values fall back to the defaults.
func NewPasswordPolicy(cfg config.Auth) PasswordPolicy {
	p := PasswordPolicy{MinLength: cfg.MinPasswordLength, Cost: cfg.BcryptCost}
	if p.MinLength <= 0 || p.MinLength > maxPasswordBytes {
		p.MinLength = DefaultMinPasswordLength
	}
	if p.Cost < bcrypt.MinCost || p.Cost > bcrypt.MaxCost {
		p.Cost = bcrypt.DefaultCost
	}
	return p
}

// Validate reports whether password fits the length bounds. The returned
// error wraps ErrPasswordTooShort or ErrPasswordTooLong and is safe to show
// to the client.
func (p PasswordPolicy) Validate(password string) error {
	if len(password) < p.MinLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrPasswordTooShort, p.MinLength)
	}
	if len(password) > maxPasswordBytes {
		return fmt.Errorf("%w: must be at most %d bytes", ErrPasswordTooLong, maxPasswordBytes)
	}
	return nil
}

// Hash validates password and returns its bcrypt hash.
func (p PasswordPolicy) Hash(password string) (string, error) {
	if err := p.Validate(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.Cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// verifyPassword compares password against a stored bcrypt hash.
func verifyPassword(password, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrInvalidPassword
	}
	return err
}

// apiToken is a freshly minted bearer token. Only Hash is persisted; Plain is
// shown to the member once.
type apiToken struct {
	Plain string
	Hash  string
}

func newAPIToken() (apiToken, error) {
	raw, err := randomBytes(tokenBytes)
	if err != nil {
		return apiToken{}, err
	}
	plain := hex.EncodeToString(raw)
	return apiToken{Plain: plain, Hash: hashAPIToken(plain)}, nil
}

// hashAPIToken is the lookup key stored in users.token_hash.
func hashAPIToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// NewSessionSecret returns random key material for CSRF token signing.
func NewSessionSecret() ([]byte, error) {
	return randomBytes(tokenBytes)
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return b, nil
}
