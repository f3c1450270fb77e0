package internal

import (
	"testing"
)

// FuzzDecodeRefreshToken feeds arbitrary presented refresh tokens through the
// decoder. Anything that decodes must survive an encode/decode round trip.
func FuzzDecodeRefreshToken(f *testing.F) {
	f.Add("")
	f.Add(".")
	f.Add("session.")
	f.Add(".secret")
	f.Add("%%%.%%%")

	if sid, err := NewSessionID(); err == nil {
		if secret, err := NewRefreshSecret(); err == nil {
			if token, err := EncodeRefreshToken(sid.String(), secret); err == nil {
				f.Add(token)
				f.Add(token + "x")
				f.Add(token[:len(token)/2])
			}
		}
	}

	f.Fuzz(func(t *testing.T, presented string) {
		sid, secret, err := DecodeRefreshToken(presented)
		if err != nil {
			return
		}

		token, err := EncodeRefreshToken(sid, secret)
		if err != nil {
			return
		}

		gotSID, gotSecret, err := DecodeRefreshToken(token)
		if err != nil {
			t.Fatalf("decode of re-encoded token: %v", err)
		}
		if gotSID != sid || gotSecret != secret {
			t.Fatalf("round trip changed the token: %q -> %q", presented, token)
		}
	})
}
