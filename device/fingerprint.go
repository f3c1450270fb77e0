package device

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Attributes are the stable request signals folded into a fingerprint.
type Attributes struct {
	IP        string
	UserAgent string
	Accept    string
}

const fingerprintDomain = "riskauth/device/v1"

// Fingerprint returns a deterministic, non-reversible digest of attrs.
// Values are trimmed and fields are length-prefixed so distinct inputs
// cannot collide by shifting bytes between fields.
func Fingerprint(attrs Attributes) string {
	h := sha256.New()
	h.Write([]byte(fingerprintDomain))
	for _, v := range []string{
		strings.TrimSpace(attrs.IP),
		strings.TrimSpace(attrs.UserAgent),
		strings.ToLower(strings.TrimSpace(attrs.Accept)),
	} {
		var n [4]byte
		l := len(v)
		n[0], n[1], n[2], n[3] = byte(l>>24), byte(l>>16), byte(l>>8), byte(l)
		h.Write(n[:])
		h.Write([]byte(v))
	}
	return hex.EncodeToString(h.Sum(nil))
}
