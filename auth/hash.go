package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Argon2Params are the argon2id cost parameters. Memory is in KiB.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params is the RFC 9106 low-memory profile.
var DefaultArgon2Params = Argon2Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 4,
	SaltLength:  16,
	KeyLength:   32,
}

func (p Argon2Params) withDefaults() Argon2Params {
	if p.Memory == 0 {
		p.Memory = DefaultArgon2Params.Memory
	}
	if p.Iterations == 0 {
		p.Iterations = DefaultArgon2Params.Iterations
	}
	if p.Parallelism == 0 {
		p.Parallelism = DefaultArgon2Params.Parallelism
	}
	if p.SaltLength == 0 {
		p.SaltLength = DefaultArgon2Params.SaltLength
	}
	if p.KeyLength == 0 {
		p.KeyLength = DefaultArgon2Params.KeyLength
	}
	return p
}

var errMalformedHash = errors.New("malformed hash")

// hashScheme is one supported algorithm. Schemes are consulted in order and
// the first that recognizes the encoded hash verifies it.
type hashScheme interface {
	identify(encoded string) bool
	// verify reports whether password matches and whether the hash should be
	// replaced with a fresh primary one.
	verify(password, encoded string) (ok, rehash bool)
}

// PasswordHasher hashes with argon2id and still verifies legacy bcrypt hashes.
type PasswordHasher struct {
	mu      sync.RWMutex
	params  Argon2Params
	dummy   string // primary hash at params, for the no-such-user path
	schemes []hashScheme
}

// NewPasswordHasher returns a hasher using p (zero fields take defaults).
func NewPasswordHasher(p Argon2Params) (*PasswordHasher, error) {
	p = p.withDefaults()
	if err := validateArgon2Params(p); err != nil {
		return nil, err
	}
	dummy, err := newDummyHash(p)
	if err != nil {
		return nil, err
	}
	h := &PasswordHasher{params: p, dummy: dummy}
	h.schemes = []hashScheme{argon2idScheme{h: h}, bcryptScheme{}}
	return h, nil
}

// SetArgon2Params changes the cost of future hashes. Existing hashes with
// other parameters are upgraded on their next successful verification.
func (h *PasswordHasher) SetArgon2Params(p Argon2Params) error {
	p = p.withDefaults()
	if err := validateArgon2Params(p); err != nil {
		return err
	}
	dummy, err := newDummyHash(p)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.params = p
	h.dummy = dummy
	h.mu.Unlock()
	return nil
}

// Params returns the parameters used for new hashes.
func (h *PasswordHasher) Params() Argon2Params {
	return h.currentParams()
}

func (h *PasswordHasher) currentParams() Argon2Params {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.params
}

// Hash produces a PHC-formatted argon2id hash:
//
//	$argon2id$v=19$m=65536,t=3,p=4$<salt>$<key>
func (h *PasswordHasher) Hash(password string) (string, error) {
	return hashArgon2id(password, h.currentParams())
}

func hashArgon2id(password string, p Argon2Params) (string, error) {
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Iterations, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks password against encoded. When the match came from a legacy
// scheme or outdated parameters, upgraded holds a fresh primary hash the
// caller should persist; otherwise it is empty. Unknown or malformed hashes
// never verify.
func (h *PasswordHasher) Verify(password, encoded string) (ok bool, upgraded string) {
	for _, s := range h.schemes {
		if !s.identify(encoded) {
			continue
		}
		ok, rehash := s.verify(password, encoded)
		if !ok {
			return false, ""
		}
		if rehash {
			if fresh, err := h.Hash(password); err == nil {
				upgraded = fresh
			}
		}
		return true, upgraded
	}
	return false, ""
}

// VerifyDummy spends the same work as verifying a real primary hash and
// always fails. It keeps "no such user" as slow as "wrong password".
func (h *PasswordHasher) VerifyDummy(password string) {
	h.mu.RLock()
	dummy := h.dummy
	h.mu.RUnlock()
	_, _ = h.Verify(password, dummy)
}

// newDummyHash hashes a random secret at p. It is rebuilt whenever the
// parameters change so its cost tracks real hashes.
func newDummyHash(p Argon2Params) (string, error) {
	seed := make([]byte, 16)
	if _, err := rand.Read(seed); err != nil {
		return "", fmt.Errorf("read dummy seed: %w", err)
	}
	return hashArgon2id(base64.RawURLEncoding.EncodeToString(seed), p)
}

type argon2idScheme struct{ h *PasswordHasher }

func (argon2idScheme) identify(encoded string) bool {
	return strings.HasPrefix(encoded, "$argon2id$")
}

func (s argon2idScheme) verify(password, encoded string) (bool, bool) {
	p, salt, key, err := decodeArgon2id(encoded)
	if err != nil {
		return false, false
	}
	got := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, uint32(len(key)))
	if subtle.ConstantTimeCompare(got, key) != 1 {
		return false, false
	}
	cur := s.h.currentParams()
	stale := p.Memory != cur.Memory || p.Iterations != cur.Iterations ||
		p.Parallelism != cur.Parallelism || uint32(len(key)) != cur.KeyLength ||
		uint32(len(salt)) != cur.SaltLength
	return true, stale
}

func decodeArgon2id(encoded string) (Argon2Params, []byte, []byte, error) {
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return Argon2Params{}, nil, nil, errMalformedHash
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return Argon2Params{}, nil, nil, errMalformedHash
	}
	var p Argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return Argon2Params{}, nil, nil, errMalformedHash
	}
	if p.Iterations == 0 || p.Parallelism == 0 {
		return Argon2Params{}, nil, nil, errMalformedHash
	}
	salt, err := base64.RawStdEncoding.Strict().DecodeString(parts[4])
	if err != nil {
		return Argon2Params{}, nil, nil, errMalformedHash
	}
	key, err := base64.RawStdEncoding.Strict().DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return Argon2Params{}, nil, nil, errMalformedHash
	}
	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(key))
	return p, salt, key, nil
}

// bcryptScheme recognizes hashes written before the switch to argon2id.
// A match always asks for an upgrade.
type bcryptScheme struct{}

func (bcryptScheme) identify(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

func (bcryptScheme) verify(password, encoded string) (bool, bool) {
	if err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password)); err != nil {
		return false, false
	}
	return true, true
}
