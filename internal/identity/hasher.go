package identity

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/sync/semaphore"

	"rexcards.org/internal/obs"
)

// HashParams tunes the Argon2id cost and operational limits.
type HashParams struct {
	MemoryKiB      uint32
	Iterations     uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MaxPasswordLen int
	MaxConcurrent  int64
}

// DefaultHashParams follows the RFC 9106 second recommended option
// (64 MiB, 3 passes).
func DefaultHashParams() HashParams {
	return HashParams{
		MemoryKiB:      64 * 1024,
		Iterations:     3,
		Parallelism:    4,
		SaltLength:     16,
		KeyLength:      32,
		MaxPasswordLen: 512,
		MaxConcurrent:  4,
	}
}

// Hasher derives and verifies Argon2id password hashes in the PHC string
// format. Concurrency is bounded because each computation pins MemoryKiB of
// RAM for its duration.
type Hasher struct {
	params HashParams
	sem    *semaphore.Weighted
}

func NewHasher(params HashParams) (*Hasher, error) {
	if params.MemoryKiB == 0 || params.Iterations == 0 || params.Parallelism == 0 {
		return nil, fmt.Errorf("%w: argon2 costs must be positive", ErrInvalidInput)
	}
	if params.SaltLength == 0 {
		params.SaltLength = 16
	}
	if params.KeyLength == 0 {
		params.KeyLength = 32
	}
	if params.MaxPasswordLen <= 0 {
		params.MaxPasswordLen = 512
	}
	if params.MaxConcurrent <= 0 {
		params.MaxConcurrent = 1
	}
	return &Hasher{
		params: params,
		sem:    semaphore.NewWeighted(params.MaxConcurrent),
	}, nil
}

// GenerateSalt produces a fresh security stamp. The stamp doubles as the
// hashing salt, so rotating it invalidates the stored hash.
func (h *Hasher) GenerateSalt() (string, error) {
	buf := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return base64.RawStdEncoding.EncodeToString(buf), nil
}

// Hash derives the PHC-encoded Argon2id hash of password under salt. The
// result is deterministic for a given (password, salt, params) triple.
func (h *Hasher) Hash(ctx context.Context, password, salt string) (string, error) {
	if err := h.checkPassword(password); err != nil {
		return "", err
	}
	if salt == "" {
		return "", fmt.Errorf("%w: empty salt", ErrInvalidInput)
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("acquire hash slot: %w", err)
	}
	obs.HashStarted()
	defer func() {
		obs.HashFinished()
		h.sem.Release(1)
	}()

	saltBytes := []byte(salt)
	digest := argon2.IDKey([]byte(password), saltBytes,
		h.params.Iterations, h.params.MemoryKiB, h.params.Parallelism, h.params.KeyLength)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.MemoryKiB, h.params.Iterations, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(saltBytes),
		base64.RawStdEncoding.EncodeToString(digest))
	return encoded, nil
}

// Verify recomputes the hash with the parameters embedded in encoded and
// compares in constant time. Parameter drift in config does not break
// previously stored hashes.
func (h *Hasher) Verify(ctx context.Context, password, encoded string) error {
	if err := h.checkPassword(password); err != nil {
		return err
	}
	memory, iterations, parallelism, saltBytes, digest, err := decodePHC(encoded)
	if err != nil {
		return err
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire hash slot: %w", err)
	}
	obs.HashStarted()
	defer func() {
		obs.HashFinished()
		h.sem.Release(1)
	}()

	other := argon2.IDKey([]byte(password), saltBytes,
		iterations, memory, parallelism, uint32(len(digest)))
	if subtle.ConstantTimeCompare(digest, other) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

func (h *Hasher) checkPassword(password string) error {
	if password == "" {
		return fmt.Errorf("%w: empty password", ErrInvalidInput)
	}
	if len(password) > h.params.MaxPasswordLen {
		return fmt.Errorf("%w: password too long", ErrInvalidInput)
	}
	return nil
}

func decodePHC(encoded string) (memory, iterations uint32, parallelism uint8, salt, digest []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return 0, 0, 0, nil, nil, fmt.Errorf("%w: malformed password hash", ErrInvalidInput)
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return 0, 0, 0, nil, nil, fmt.Errorf("%w: unsupported argon2 version", ErrInvalidInput)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return 0, 0, 0, nil, nil, fmt.Errorf("%w: malformed argon2 parameters", ErrInvalidInput)
	}
	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return 0, 0, 0, nil, nil, fmt.Errorf("%w: malformed salt", ErrInvalidInput)
	}
	digest, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(digest) == 0 {
		return 0, 0, 0, nil, nil, fmt.Errorf("%w: malformed digest", ErrInvalidInput)
	}
	return memory, iterations, parallelism, salt, digest, nil
}
