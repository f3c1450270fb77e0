package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
)

// RefreshSecretSize is the byte length of the secret half of a refresh token.
const RefreshSecretSize = 32

// BackupCodeAlphabet omits characters that are easy to misread (0/O, 1/I).
const BackupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const digits = "0123456789"

var b64 = base64.RawURLEncoding

// ErrMalformedRefreshToken is returned by DecodeRefreshToken.
var ErrMalformedRefreshToken = errors.New("malformed refresh token")

// SessionID is a random 128-bit refresh session identifier.
type SessionID [16]byte

// NewSessionID draws a fresh identifier.
func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

// String is the compact base64url form stored in Redis keys and tokens.
func (s SessionID) String() string {
	return b64.EncodeToString(s[:])
}

// ParseSessionID reverses String.
func ParseSessionID(s string) (SessionID, error) {
	var sid SessionID
	raw, err := b64.DecodeString(s)
	if err != nil || len(raw) != len(sid) {
		return sid, errors.New("invalid session id")
	}
	copy(sid[:], raw)
	return sid, nil
}

// NewRefreshSecret draws the rotating half of a refresh token.
func NewRefreshSecret() ([RefreshSecretSize]byte, error) {
	var secret [RefreshSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

// HashRefreshSecret is the digest persisted instead of the secret.
func HashRefreshSecret(secret [RefreshSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// EncodeRefreshToken renders "<session id>.<secret>", both base64url.
func EncodeRefreshToken(sessionID string, secret [RefreshSecretSize]byte) (string, error) {
	if _, err := ParseSessionID(sessionID); err != nil {
		return "", err
	}
	return sessionID + "." + b64.EncodeToString(secret[:]), nil
}

// DecodeRefreshToken splits a presented refresh token. It checks shape only;
// the secret is verified against the session store.
func DecodeRefreshToken(token string) (string, [RefreshSecretSize]byte, error) {
	var secret [RefreshSecretSize]byte

	sid, enc, ok := strings.Cut(token, ".")
	if !ok {
		return "", secret, ErrMalformedRefreshToken
	}
	if _, err := ParseSessionID(sid); err != nil {
		return "", secret, ErrMalformedRefreshToken
	}
	raw, err := b64.DecodeString(enc)
	if err != nil || len(raw) != RefreshSecretSize {
		return "", secret, ErrMalformedRefreshToken
	}
	copy(secret[:], raw)
	return sid, secret, nil
}

// draw picks n characters uniformly from alphabet with crypto/rand.
func draw(alphabet string, n int) (string, error) {
	var b strings.Builder
	b.Grow(n)
	limit := big.NewInt(int64(len(alphabet)))
	for range n {
		i, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b.WriteByte(alphabet[i.Int64()])
	}
	return b.String(), nil
}

// NewOTP returns a numeric one-time code of 6 to 10 digits.
func NewOTP(n int) (string, error) {
	if n < 6 || n > 10 {
		return "", errors.New("otp length must be 6..10")
	}
	return draw(digits, n)
}

// NewBackupCode draws length characters from BackupCodeAlphabet.
func NewBackupCode(length int) (string, error) {
	if length < 8 {
		return "", errors.New("backup code length must be at least 8")
	}
	return draw(BackupCodeAlphabet, length)
}

// FormatBackupCode splits a code in two halves for display.
func FormatBackupCode(code string) string {
	if len(code) < 8 {
		return code
	}
	mid := len(code) / 2
	return code[:mid] + "-" + code[mid:]
}

// CanonicalizeBackupCode strips separators and folds case.
func CanonicalizeBackupCode(code string) string {
	return strings.NewReplacer("-", "", " ", "").Replace(strings.ToUpper(strings.TrimSpace(code)))
}

// HashUserSecret binds a short secret to its owner before hashing so equal
// codes of different users never share a digest.
func HashUserSecret(userID, secret string) string {
	h := sha256.New()
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write([]byte(secret))
	return hex.EncodeToString(h.Sum(nil))
}
