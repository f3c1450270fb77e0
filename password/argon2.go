package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB   uint32 = 8 * 1024
	minSaltLength uint32 = 16
	minKeyLength  uint32 = 16
	algorithmID          = "argon2id"
)

// ErrMalformedHash is returned for hashes that are not argon2id PHC strings.
var ErrMalformedHash = errors.New("malformed argon2id hash")

// Config holds Argon2id cost parameters.
type Config struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinBytes    int
	MaxBytes    int
}

// DefaultConfig follows the OWASP baseline for Argon2id.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
		MinBytes:    10,
		MaxBytes:    1024,
	}
}

// Argon2 hashes and verifies passwords.
type Argon2 struct {
	config Config

	dummyOnce sync.Once
	dummy     string
}

// NewArgon2 validates cfg.
func NewArgon2(cfg Config) (*Argon2, error) {
	if cfg.Memory < minMemoryKB {
		return nil, fmt.Errorf("argon2 memory must be >= %d KiB", minMemoryKB)
	}
	if cfg.Time < 1 || cfg.Parallelism < 1 {
		return nil, errors.New("argon2 time and parallelism must be >= 1")
	}
	if cfg.SaltLength < minSaltLength || cfg.KeyLength < minKeyLength {
		return nil, errors.New("argon2 salt and key length must be >= 16")
	}
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = 1
	}
	if cfg.MaxBytes > 0 && cfg.MaxBytes < cfg.MinBytes {
		return nil, errors.New("argon2 max password bytes below min")
	}
	return &Argon2{config: cfg}, nil
}

// Hash derives a new PHC string for password with a random salt.
func (a *Argon2) Hash(password string) (string, error) {
	if len(password) < a.config.MinBytes {
		return "", fmt.Errorf("password must be at least %d bytes", a.config.MinBytes)
	}
	if a.config.MaxBytes > 0 && len(password) > a.config.MaxBytes {
		return "", fmt.Errorf("password must be at most %d bytes", a.config.MaxBytes)
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, a.config.Time, a.config.Memory, a.config.Parallelism, a.config.KeyLength)

	return encode(a.config.Memory, a.config.Time, a.config.Parallelism, salt, key), nil
}

// Verify reports whether password matches encodedHash. Only a malformed
// hash is an error.
func (a *Argon2) Verify(password, encodedHash string) (bool, error) {
	p, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}
	if a.config.MaxBytes > 0 && len(password) > a.config.MaxBytes {
		return false, nil
	}

	key := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.hash)))
	return subtle.ConstantTimeCompare(key, p.hash) == 1, nil
}

// DummyVerify runs a verification against a fixed hash and discards the
// result.
func (a *Argon2) DummyVerify(password string) {
	a.dummyOnce.Do(func() {
		salt := make([]byte, a.config.SaltLength)
		key := argon2.IDKey([]byte("riskauth-dummy-password"), salt, a.config.Time, a.config.Memory, a.config.Parallelism, a.config.KeyLength)
		a.dummy = encode(a.config.Memory, a.config.Time, a.config.Parallelism, salt, key)
	})
	_, _ = a.Verify(password, a.dummy)
}

// NeedsUpgrade reports whether encodedHash was produced with weaker
// parameters than the current config.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	p, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}
	return p.memory < a.config.Memory ||
		p.time < a.config.Time ||
		p.parallelism < a.config.Parallelism ||
		uint32(len(p.salt)) < a.config.SaltLength ||
		uint32(len(p.hash)) < a.config.KeyLength, nil
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

func encode(memory, time uint32, parallelism uint8, salt, key []byte) string {
	enc := base64.RawStdEncoding
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version, memory, time, parallelism,
		enc.EncodeToString(salt), enc.EncodeToString(key))
}

func parsePHC(encoded string) (*phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return nil, ErrMalformedHash
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return nil, fmt.Errorf("%w: unsupported version", ErrMalformedHash)
	}

	p := &phc{}
	for _, kv := range strings.Split(parts[3], ",") {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, ErrMalformedHash
		}
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil || n == 0 {
			return nil, ErrMalformedHash
		}
		switch name {
		case "m":
			p.memory = uint32(n)
		case "t":
			p.time = uint32(n)
		case "p":
			if n > 255 {
				return nil, ErrMalformedHash
			}
			p.parallelism = uint8(n)
		default:
			return nil, ErrMalformedHash
		}
	}
	if p.memory == 0 || p.time == 0 || p.parallelism == 0 {
		return nil, ErrMalformedHash
	}

	var err error
	enc := base64.RawStdEncoding
	if p.salt, err = enc.DecodeString(parts[4]); err != nil || len(p.salt) == 0 {
		return nil, ErrMalformedHash
	}
	if p.hash, err = enc.DecodeString(parts[5]); err != nil || len(p.hash) == 0 {
		return nil, ErrMalformedHash
	}
	return p, nil
}
