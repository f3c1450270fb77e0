package risk

import (
	"errors"
	"time"
)

// Weights are the points each factor contributes.
type Weights struct {
	NewDevice        int `yaml:"new_device"`
	MaliciousIP      int `yaml:"malicious_ip"`
	ImpossibleTravel int `yaml:"impossible_travel"`
	SuspiciousTiming int `yaml:"suspicious_timing"`
	RepeatedFailure  int `yaml:"repeated_failure"`
	// FailureGrace is the number of failed attempts that cost nothing.
	FailureGrace int `yaml:"failure_grace"`
}

// Thresholds map a score onto requirements.
type Thresholds struct {
	BlockAt         int `yaml:"block_at"`
	MFAAbove        int `yaml:"mfa_above"`
	CaptchaAbove    int `yaml:"captcha_above"`
	AdditionalAbove int `yaml:"additional_above"`
}

// Config is the full risk policy.
type Config struct {
	Weights    Weights    `yaml:"weights"`
	Thresholds Thresholds `yaml:"thresholds"`

	// Logins at local hours in [SafeHourStart, SafeHourEnd) are not
	// suspicious. Start greater than End wraps midnight.
	SafeHourStart int `yaml:"safe_hour_start"`
	SafeHourEnd   int `yaml:"safe_hour_end"`

	// DefaultTimezone is used when the client location has no zone.
	DefaultTimezone string `yaml:"default_timezone"`
}

// DefaultConfig returns the production weights and tiers.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			NewDevice:        30,
			MaliciousIP:      100,
			ImpossibleTravel: 50,
			SuspiciousTiming: 25,
			RepeatedFailure:  40,
			FailureGrace:     3,
		},
		Thresholds: Thresholds{
			BlockAt:         80,
			MFAAbove:        20,
			CaptchaAbove:    40,
			AdditionalAbove: 60,
		},
		SafeHourStart:   6,
		SafeHourEnd:     22,
		DefaultTimezone: "UTC",
	}
}

// Validate checks the policy for values the engine cannot evaluate.
func (c Config) Validate() error {
	w := c.Weights
	if w.NewDevice < 0 || w.MaliciousIP < 0 || w.ImpossibleTravel < 0 ||
		w.SuspiciousTiming < 0 || w.RepeatedFailure < 0 || w.FailureGrace < 0 {
		return errors.New("risk weights must be >= 0")
	}

	t := c.Thresholds
	for _, v := range []int{t.BlockAt, t.MFAAbove, t.CaptchaAbove, t.AdditionalAbove} {
		if v < 0 || v > MaxScore {
			return errors.New("risk thresholds must be within [0, 100]")
		}
	}
	if t.BlockAt <= t.MFAAbove {
		return errors.New("risk block threshold must be above the mfa threshold")
	}

	if c.SafeHourStart < 0 || c.SafeHourStart > 23 || c.SafeHourEnd < 0 || c.SafeHourEnd > 24 {
		return errors.New("risk safe hours must be within [0, 24]")
	}
	if c.DefaultTimezone != "" {
		if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
			return errors.New("risk default timezone is not a valid IANA zone")
		}
	}
	return nil
}
