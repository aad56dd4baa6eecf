// Package password hashes and verifies account passwords with bcrypt.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrCorrupted reports a stored hash that bcrypt cannot parse. It is never a
// stand-in for a wrong password.
var ErrCorrupted = errors.New("stored password hash is corrupted")

// Hasher produces salted bcrypt hashes at a fixed cost.
type Hasher struct {
	cost int
}

// NewHasher builds a Hasher. A cost outside bcrypt's accepted range falls back
// to bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns an opaque hash of pw. Each call uses a fresh salt.
func (h *Hasher) Hash(pw string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pw), h.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// Verify reports whether pw matches hash. A malformed hash yields ErrCorrupted
// rather than false.
func (h *Hasher) Verify(pw string, hash []byte) (bool, error) {
	err := bcrypt.CompareHashAndPassword(hash, []byte(pw))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %v", ErrCorrupted, err)
}
