package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Floors below which a Config is rejected and a stored hash is treated as
// malformed. MinPasswordBytes matches the shortest password the signup and
// reset routes accept.
const (
	MinMemoryKiB     uint32 = 8 * 1024
	MinPasswordBytes        = 8

	minSaltBytes uint32 = 16
	minKeyBytes  uint32 = 16
)

// DefaultMaxPasswordBytes caps password input when Config.MaxPasswordBytes is zero.
const DefaultMaxPasswordBytes = 1024

const phcAlgorithm = "argon2id"

var (
	// ErrPasswordTooShort is returned by Hash for input under MinPasswordBytes.
	ErrPasswordTooShort = errors.New("password is shorter than the minimum length")
	// ErrPasswordTooLong is returned by Hash and Verify for input over
	// Config.MaxPasswordBytes. No key derivation is attempted.
	ErrPasswordTooLong = errors.New("password exceeds the maximum length")
	// ErrMalformedHash reports a stored hash that is not an Argon2id PHC
	// string this package can verify.
	ErrMalformedHash = errors.New("malformed argon2id hash")
)

// Config holds Argon2id cost parameters. Memory is in KiB; SaltLength and
// KeyLength are in bytes.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// MaxPasswordBytes rejects oversized input before any work is done.
	// Zero selects DefaultMaxPasswordBytes.
	MaxPasswordBytes int
}

func (c Config) validate() error {
	switch {
	case c.Memory < MinMemoryKiB:
		return fmt.Errorf("argon2 memory %d KiB is below %d", c.Memory, MinMemoryKiB)
	case c.Time < 1:
		return errors.New("argon2 time cost must be at least 1")
	case c.Parallelism < 1:
		return errors.New("argon2 parallelism must be at least 1")
	case c.SaltLength < minSaltBytes:
		return fmt.Errorf("argon2 salt length %d is below %d bytes", c.SaltLength, minSaltBytes)
	case c.KeyLength < minKeyBytes:
		return fmt.Errorf("argon2 key length %d is below %d bytes", c.KeyLength, minKeyBytes)
	case c.MaxPasswordBytes < 0:
		return errors.New("max password bytes must not be negative")
	case c.MaxPasswordBytes > 0 && c.MaxPasswordBytes < MinPasswordBytes:
		return fmt.Errorf("max password bytes %d is below the %d byte minimum", c.MaxPasswordBytes, MinPasswordBytes)
	}
	return nil
}

// Argon2 hashes and verifies passwords as PHC-encoded Argon2id strings. It
// holds no mutable state and is safe for concurrent use; callers bound the
// concurrency with a Pool.
type Argon2 struct {
	config Config
}

// NewArgon2 returns a hasher for cfg. It fails when any cost parameter is
// below the package floors.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	return &Argon2{config: cfg}, nil
}

// Hash derives a hash of password under a fresh random salt. The input is
// used byte for byte, without Unicode normalization. It returns
// ErrPasswordTooShort or ErrPasswordTooLong for out-of-range input.
func (a *Argon2) Hash(password string) (string, error) {
	if len(password) < MinPasswordBytes {
		return "", ErrPasswordTooShort
	}
	if len(password) > a.config.MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	h := phcHash{
		memory:      a.config.Memory,
		time:        a.config.Time,
		parallelism: a.config.Parallelism,
		salt:        make([]byte, a.config.SaltLength),
	}
	if _, err := rand.Read(h.salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	h.key = h.derive(password, a.config.KeyLength)
	return h.String(), nil
}

// Verify reports whether password matches encodedHash, deriving with the
// parameters recorded in encodedHash rather than the receiver's. A mismatch
// is (false, nil); an unparseable hash wraps ErrMalformedHash.
func (a *Argon2) Verify(password, encodedHash string) (bool, error) {
	if len(password) > a.config.MaxPasswordBytes {
		return false, ErrPasswordTooLong
	}
	h, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}
	derived := h.derive(password, uint32(len(h.key)))
	return subtle.ConstantTimeCompare(derived, h.key) == 1, nil
}

// NeedsUpgrade reports whether encodedHash falls short of the receiver's
// configuration in any cost parameter, salt length or key length. A hash
// with a different key length is always re-derived.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	h, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}
	c := a.config
	return h.memory < c.Memory ||
		h.time < c.Time ||
		h.parallelism < c.Parallelism ||
		uint32(len(h.salt)) < c.SaltLength ||
		uint32(len(h.key)) != c.KeyLength, nil
}

// phcHash is a decoded $argon2id$v=19$m=..,t=..,p=..$salt$key string. Salt
// and key use unpadded standard base64 as the PHC format prescribes.
type phcHash struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (h phcHash) derive(password string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), h.salt, h.time, h.memory, h.parallelism, keyLen)
}

func (h phcHash) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "$%s$v=%d$m=%d,t=%d,p=%d$", phcAlgorithm, argon2.Version, h.memory, h.time, h.parallelism)
	b.WriteString(base64.RawStdEncoding.EncodeToString(h.salt))
	b.WriteByte('$')
	b.WriteString(base64.RawStdEncoding.EncodeToString(h.key))
	return b.String()
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedHash, fmt.Sprintf(format, args...))
}

func parsePHC(s string) (phcHash, error) {
	var h phcHash

	fields := strings.Split(s, "$")
	if len(fields) != 6 || fields[0] != "" {
		return h, malformed("expected 5 sections")
	}
	if fields[1] != phcAlgorithm {
		return h, malformed("algorithm %q", fields[1])
	}
	if fields[2] != "v="+strconv.Itoa(argon2.Version) {
		return h, malformed("version %q", fields[2])
	}
	if err := h.parseParams(fields[3]); err != nil {
		return h, err
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(fields[4]); err != nil {
		return h, malformed("salt encoding")
	}
	if uint32(len(h.salt)) < minSaltBytes {
		return h, malformed("salt of %d bytes", len(h.salt))
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(fields[5]); err != nil {
		return h, malformed("key encoding")
	}
	if uint32(len(h.key)) < minKeyBytes {
		return h, malformed("key of %d bytes", len(h.key))
	}
	return h, nil
}

// parseParams reads "m=<KiB>,t=<passes>,p=<lanes>" in exactly that order.
func (h *phcHash) parseParams(s string) error {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return malformed("parameters %q", s)
	}
	values := [3]uint64{}
	for i, name := range [3]string{"m", "t", "p"} {
		raw, ok := strings.CutPrefix(parts[i], name+"=")
		if !ok {
			return malformed("parameter %q", parts[i])
		}
		bits := 32
		if name == "p" {
			bits = 8
		}
		v, err := strconv.ParseUint(raw, 10, bits)
		if err != nil || v == 0 {
			return malformed("parameter %q", parts[i])
		}
		values[i] = v
	}
	if values[0] < uint64(MinMemoryKiB) {
		return malformed("memory %d KiB", values[0])
	}
	h.memory, h.time, h.parallelism = uint32(values[0]), uint32(values[1]), uint8(values[2])
	return nil
}
