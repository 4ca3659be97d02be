package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

var (
	// ErrMismatch means the password does not match the operator hash.
	ErrMismatch = errors.New("password: mismatch")
	// ErrInvalidHash means the configured operator hash is not a bcrypt hash.
	ErrInvalidHash = errors.New("password: invalid operator hash")
)

// Hasher defines password hashing contract.
type Hasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// BcryptHasher hashes and checks the operator password with bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher using cost, or bcrypt.DefaultCost when cost is
// zero or outside bcrypt's accepted range.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Cost is the work factor new hashes are generated with.
func (h *BcryptHasher) Cost() int { return h.cost }

// Hash produces a value suitable for OPERATOR_PASSWORD_HASH.
func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password: empty password")
	}
	if len(password) > maxPasswordBytes {
		return "", fmt.Errorf("password: longer than %d bytes", maxPasswordBytes)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Compare checks password against the stored hash. It returns ErrMismatch for a wrong
// password and ErrInvalidHash when hash itself is unusable.
func (h *BcryptHasher) Compare(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrMismatch
	default:
		return fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
}

// Weak reports whether hash was generated with a lower cost than the hasher's.
func (h *BcryptHasher) Weak(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	return err == nil && cost < h.cost
}
