package risk

import (
	"time"

	"github.com/MrEthical07/riskAuth/geo"
)

// Score bounds.
const (
	MinScore = 0
	MaxScore = 100
)

// Factor names reported in an Assessment.
const (
	FactorNewDevice        = "new_device"
	FactorMaliciousIP      = "malicious_ip"
	FactorImpossibleTravel = "impossible_travel"
	FactorSuspiciousTiming = "suspicious_timing"
	FactorRepeatedFailures = "repeated_failures"
)

// Factor is one contribution to a score.
type Factor struct {
	Name   string `json:"name"`
	Weight int    `json:"weight"`
}

// Requirements is the tier derived from a score. Block wins over the rest;
// the other flags combine independently.
type Requirements struct {
	Block      bool `json:"block"`
	MFA        bool `json:"mfa"`
	Captcha    bool `json:"captcha"`
	Additional bool `json:"additional"`
}

// Request holds the attributes of the call being assessed.
type Request struct {
	IP        string
	UserAgent string
	Accept    string
	At        time.Time
}

// Subject is the history of the user making the call.
type Subject struct {
	ID             string
	FailedAttempts int
	LastLoginAt    time.Time
	LastKnownGeo   *geo.Location
}

// Assessment is computed fresh per attempt. It is logged and audited, never
// stored as mutable state.
type Assessment struct {
	Score         int           `json:"score"`
	Factors       []Factor      `json:"factors"`
	Requirements  Requirements  `json:"requirements"`
	Fingerprint   string        `json:"fingerprint"`
	DeviceTrusted bool          `json:"device_trusted"`
	Location      *geo.Location `json:"location,omitempty"`
	Velocity      *geo.Velocity `json:"velocity,omitempty"`
}

// Has reports whether the named factor contributed.
func (a Assessment) Has(name string) bool {
	for _, f := range a.Factors {
		if f.Name == name {
			return true
		}
	}
	return false
}

// FactorNames returns the contributing factor names in evaluation order.
func (a Assessment) FactorNames() []string {
	names := make([]string, 0, len(a.Factors))
	for _, f := range a.Factors {
		names = append(names, f.Name)
	}
	return names
}

// Tier derives requirements for score. mfa is only demanded from untrusted
// devices.
func (t Thresholds) Tier(score int, deviceTrusted bool) Requirements {
	return Requirements{
		Block:      score >= t.BlockAt,
		MFA:        score > t.MFAAbove && !deviceTrusted,
		Captcha:    score > t.CaptchaAbove,
		Additional: score > t.AdditionalAbove,
	}
}
