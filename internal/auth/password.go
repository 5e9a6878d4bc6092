package auth

import (
	"errors"
	"fmt"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/bcrypt"

	"github.com/tastykitchen/server/internal/model"
)

const (
	SchemeBcrypt   = "bcrypt"
	SchemeArgon2id = "argon2id"

	bcryptCost = 10
)

// PasswordHasher produces and checks one-way digests for a single scheme
type PasswordHasher interface {
	Scheme() string
	Hash(plaintext string) (string, error)
	// Compare reports whether plaintext matches digest. A mismatch is (false, nil).
	Compare(plaintext, digest string) (bool, error)
}

// BcryptHasher hashes with bcrypt at cost 10
type BcryptHasher struct{}

func (BcryptHasher) Scheme() string { return SchemeBcrypt }

func (BcryptHasher) Hash(plaintext string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash: %w", err)
	}
	return string(b), nil
}

func (BcryptHasher) Compare(plaintext, digest string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("bcrypt compare: %w", err)
}

// Argon2idHasher hashes with argon2id using the library defaults
type Argon2idHasher struct {
	Params *argon2id.Params
}

func (Argon2idHasher) Scheme() string { return SchemeArgon2id }

func (h Argon2idHasher) Hash(plaintext string) (string, error) {
	params := h.Params
	if params == nil {
		params = argon2id.DefaultParams
	}
	digest, err := argon2id.CreateHash(plaintext, params)
	if err != nil {
		return "", fmt.Errorf("argon2id hash: %w", err)
	}
	return digest, nil
}

func (Argon2idHasher) Compare(plaintext, digest string) (bool, error) {
	ok, err := argon2id.ComparePasswordAndHash(plaintext, digest)
	if err != nil {
		return false, fmt.Errorf("argon2id compare: %w", err)
	}
	return ok, nil
}

// Passwords hashes new secrets with the active scheme and verifies stored
// secrets with whichever scheme they were tagged with.
type Passwords struct {
	active  PasswordHasher
	hashers map[string]PasswordHasher
}

// NewPasswords creates a registry of bcrypt and argon2id with the given active scheme.
// An empty scheme selects bcrypt.
func NewPasswords(scheme string) (*Passwords, error) {
	p := &Passwords{hashers: map[string]PasswordHasher{
		SchemeBcrypt:   BcryptHasher{},
		SchemeArgon2id: Argon2idHasher{},
	}}
	if scheme == "" {
		scheme = SchemeBcrypt
	}
	active, ok := p.hashers[scheme]
	if !ok {
		return nil, fmt.Errorf("unknown password scheme %q", scheme)
	}
	p.active = active
	return p, nil
}

// Scheme returns the active scheme name
func (p *Passwords) Scheme() string {
	return p.active.Scheme()
}

// Hash produces a tagged secret with the active scheme
func (p *Passwords) Hash(plaintext string) (*model.Secret, error) {
	digest, err := p.active.Hash(plaintext)
	if err != nil {
		return nil, err
	}
	return &model.Secret{Digest: digest, Scheme: p.active.Scheme()}, nil
}

// Compare checks plaintext against a stored secret. A nil secret never matches.
func (p *Passwords) Compare(plaintext string, secret *model.Secret) (bool, error) {
	if secret == nil || secret.Digest == "" {
		return false, nil
	}
	scheme := secret.Scheme
	if scheme == "" {
		scheme = SchemeBcrypt
	}
	h, ok := p.hashers[scheme]
	if !ok {
		return false, fmt.Errorf("unknown password scheme %q", scheme)
	}
	return h.Compare(plaintext, secret.Digest)
}
