package service

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	argon2KeyLen  = 32
	argon2SaltLen = 16
)

// Argon2Params is the Argon2id work factor. Memory is in KiB.
type Argon2Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
}

// DefaultArgon2Params is t=1, m=64MiB, p=4.
var DefaultArgon2Params = Argon2Params{Time: 1, Memory: 64 * 1024, Threads: 4}

// Argon2Hasher implements ports.PasswordHasher using Argon2id.
// Digests produced by bcrypt are accepted by Verify so that accounts imported
// from older systems can still log in; NeedsRehash flags them for upgrade.
type Argon2Hasher struct {
	params Argon2Params
}

// NewArgon2Hasher creates a hasher with the given work factor.
func NewArgon2Hasher(params Argon2Params) (*Argon2Hasher, error) {
	if params.Time == 0 || params.Memory == 0 || params.Threads == 0 {
		return nil, errors.New("argon2 parameters must be positive")
	}
	return &Argon2Hasher{params: params}, nil
}

// Hash generates an Argon2id hash of the password.
// Returns format: $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
func (h *Argon2Hasher) Hash(password string) (string, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, argon2KeyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory, h.params.Time, h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks a password against an Argon2id or bcrypt digest.
// A mismatch is (false, nil); a digest that cannot be parsed is an error.
func (h *Argon2Hasher) Verify(password string, digest string) (bool, error) {
	if isBcrypt(digest) {
		err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("bcrypt digest: %w", err)
		}
		return true, nil
	}

	salt, key, params, err := decodeArgon2Hash(digest)
	if err != nil {
		return false, err
	}

	otherKey := argon2.IDKey([]byte(password), salt, params.time, params.memory, params.threads, params.keyLen)

	return subtle.ConstantTimeCompare(key, otherKey) == 1, nil
}

// NeedsRehash reports whether digest should be replaced by a fresh Hash.
func (h *Argon2Hasher) NeedsRehash(digest string) bool {
	if isBcrypt(digest) {
		return true
	}
	_, _, params, err := decodeArgon2Hash(digest)
	if err != nil {
		return true
	}
	return params.time < h.params.Time ||
		params.memory < h.params.Memory ||
		params.threads < h.params.Threads ||
		params.keyLen != argon2KeyLen
}

func isBcrypt(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") ||
		strings.HasPrefix(digest, "$2b$") ||
		strings.HasPrefix(digest, "$2y$")
}

type argon2Params struct {
	memory  uint32
	time    uint32
	threads uint8
	keyLen  uint32
}

// decodeArgon2Hash parses the encoded hash string.
func decodeArgon2Hash(encodedHash string) (salt, key []byte, params argon2Params, err error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return nil, nil, params, fmt.Errorf("invalid hash format: expected 6 parts, got %d", len(parts))
	}

	if parts[1] != "argon2id" {
		return nil, nil, params, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}

	var version int
	if _, err = fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, params, fmt.Errorf("parsing version: %w", err)
	}
	if version != argon2.Version {
		return nil, nil, params, fmt.Errorf("unsupported argon2 version: %d", version)
	}

	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.time, &params.threads); err != nil {
		return nil, nil, params, fmt.Errorf("parsing params: %w", err)
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding salt: %w", err)
	}

	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding hash: %w", err)
	}
	if len(key) == 0 {
		return nil, nil, params, errors.New("decoding hash: empty key")
	}

	params.keyLen = uint32(len(key))

	return salt, key, params, nil
}
