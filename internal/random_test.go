package internal

import (
	"strings"
	"testing"
)

func TestNewOTPDigits(t *testing.T) {
	code, err := NewOTP(6)
	if err != nil {
		t.Fatalf("NewOTP: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6 digits, got %q", code)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			t.Fatalf("non-digit in otp %q", code)
		}
	}
	if _, err := NewOTP(4); err == nil {
		t.Fatal("expected error for 4 digits")
	}
}

func TestBackupCodeCanonicalRoundTrip(t *testing.T) {
	code, err := NewBackupCode(10)
	if err != nil {
		t.Fatalf("NewBackupCode: %v", err)
	}
	for _, r := range code {
		if !strings.ContainsRune(BackupCodeAlphabet, r) {
			t.Fatalf("unexpected rune %q in %q", r, code)
		}
	}

	display := FormatBackupCode(code)
	if !strings.Contains(display, "-") {
		t.Fatalf("expected separator in %q", display)
	}
	if got := CanonicalizeBackupCode(" " + strings.ToLower(display) + " "); got != code {
		t.Fatalf("canonical %q != %q", got, code)
	}
}

func TestHashUserSecretBindsOwner(t *testing.T) {
	a := HashUserSecret("u1", "123456")
	b := HashUserSecret("u2", "123456")
	if a == b {
		t.Fatal("expected different digests for different users")
	}
	if a != HashUserSecret("u1", "123456") {
		t.Fatal("expected deterministic digest")
	}
}

func TestRefreshTokenShape(t *testing.T) {
	sid, err := NewSessionID()
	if err != nil {
		t.Fatalf("NewSessionID: %v", err)
	}
	secret, err := NewRefreshSecret()
	if err != nil {
		t.Fatalf("NewRefreshSecret: %v", err)
	}

	token, err := EncodeRefreshToken(sid.String(), secret)
	if err != nil {
		t.Fatalf("EncodeRefreshToken: %v", err)
	}
	gotSID, gotSecret, err := DecodeRefreshToken(token)
	if err != nil {
		t.Fatalf("DecodeRefreshToken: %v", err)
	}
	if gotSID != sid.String() || gotSecret != secret {
		t.Fatal("decoded token does not match")
	}

	for _, bad := range []string{"", sid.String(), sid.String() + ".", "x." + strings.Repeat("A", 43), token + "AA"} {
		if _, _, err := DecodeRefreshToken(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}

	if _, err := EncodeRefreshToken("not-a-session", secret); err == nil {
		t.Fatal("expected invalid session id to be rejected")
	}
}
