package password

import (
	"errors"
	"strings"
	"testing"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Memory = 8 * 1024
	cfg.Time = 1
	cfg.Parallelism = 1
	return cfg
}

func newTestHasher(t *testing.T, cfg Config) *Argon2 {
	t.Helper()
	a, err := NewArgon2(cfg)
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	return a
}

func TestHashAndVerify(t *testing.T) {
	a := newTestHasher(t, fastConfig())

	hash, err := a.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected encoding %q", hash)
	}

	ok, err := a.Verify("correct horse battery", hash)
	if err != nil || !ok {
		t.Fatalf("expected match, ok=%v err=%v", ok, err)
	}
	ok, err = a.Verify("correct horse battery!", hash)
	if err != nil || ok {
		t.Fatalf("expected mismatch, ok=%v err=%v", ok, err)
	}

	again, _ := a.Hash("correct horse battery")
	if again == hash {
		t.Fatal("expected distinct salts")
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	a := newTestHasher(t, fastConfig())

	for _, bad := range []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=16$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=0,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1,x=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$!!$aGFzaA",
	} {
		if _, err := a.Verify("whatever-password", bad); !errors.Is(err, ErrMalformedHash) {
			t.Fatalf("%q: expected ErrMalformedHash, got %v", bad, err)
		}
	}
}

func TestNeedsUpgrade(t *testing.T) {
	weak := newTestHasher(t, fastConfig())
	hash, err := weak.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	if up, _ := weak.NeedsUpgrade(hash); up {
		t.Fatal("same config must not need upgrade")
	}

	stronger := fastConfig()
	stronger.Time = 2
	if up, _ := newTestHasher(t, stronger).NeedsUpgrade(hash); !up {
		t.Fatal("expected upgrade for higher time cost")
	}
}

func TestPasswordLengthBounds(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxBytes = 16
	a := newTestHasher(t, cfg)

	if _, err := a.Hash("short"); err == nil {
		t.Fatal("expected short password to be rejected")
	}
	if _, err := a.Hash(strings.Repeat("x", 17)); err == nil {
		t.Fatal("expected long password to be rejected")
	}

	hash, err := a.Hash(strings.Repeat("x", 16))
	if err != nil {
		t.Fatalf("hash at max length: %v", err)
	}
	if ok, _ := a.Verify(strings.Repeat("x", 17), hash); ok {
		t.Fatal("over-long candidate must not verify")
	}
}

func TestNewArgon2RejectsWeakParameters(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"memory": func(c *Config) { c.Memory = 1024 },
		"time":   func(c *Config) { c.Time = 0 },
		"salt":   func(c *Config) { c.SaltLength = 8 },
		"bounds": func(c *Config) { c.MaxBytes = 5 },
	} {
		cfg := fastConfig()
		mutate(&cfg)
		if _, err := NewArgon2(cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestDummyVerifyDoesNotPanic(t *testing.T) {
	a := newTestHasher(t, fastConfig())
	a.DummyVerify("anything")
	a.DummyVerify("")
}
