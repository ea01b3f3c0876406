package server

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"winerp/message"
)

// Authenticator decides whether a peer may take an identity.
type Authenticator interface {
	Authenticate(name, secret string) error
}

// AllowAll accepts every peer. It is used when no shared secret is configured.
type AllowAll struct{}

func (AllowAll) Authenticate(string, string) error { return nil }

// SecretAuthenticator checks the presented secret against a bcrypt hash.
// Only the hash is kept in memory.
type SecretAuthenticator struct {
	hash []byte
}

// NewSecretAuthenticator hashes a plain shared secret.
func NewSecretAuthenticator(secret string) (*SecretAuthenticator, error) {
	if secret == "" {
		return nil, errors.New("server: empty secret")
	}
	hash, err := HashSecret(secret)
	if err != nil {
		return nil, err
	}
	return &SecretAuthenticator{hash: []byte(hash)}, nil
}

// NewHashedSecretAuthenticator uses a hash produced by HashSecret (or any bcrypt tool).
func NewHashedSecretAuthenticator(hash string) (*SecretAuthenticator, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("server: invalid secret hash: %w", err)
	}
	return &SecretAuthenticator{hash: []byte(hash)}, nil
}

func (a *SecretAuthenticator) Authenticate(name, secret string) error {
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(secret)); err != nil {
		return fmt.Errorf("%w: bad secret for %q", message.ErrUnauthorized, name)
	}
	return nil
}

// HashSecret returns the bcrypt hash of secret at the default cost.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("server: hash secret: %w", err)
	}
	return string(hash), nil
}
