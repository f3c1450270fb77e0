// Package config loads riskauthd settings: built-in defaults, then an
// optional YAML file, then environment overrides. Environment wins.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	riskAuth "github.com/MrEthical07/riskAuth"
	"github.com/MrEthical07/riskAuth/jwt"
	"github.com/MrEthical07/riskAuth/risk"
)

// Config is the resolved server configuration.
type Config struct {
	HTTPAddr        string        `yaml:"http_addr" env:"RISKAUTH_HTTP_ADDR"`
	// TrustedProxies lists the peers (IPs or CIDRs) whose forwarding headers
	// name the client. Empty ignores those headers.
	TrustedProxies []string `yaml:"trusted_proxies" env:"RISKAUTH_TRUSTED_PROXIES" envSeparator:","`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"RISKAUTH_SHUTDOWN_TIMEOUT"`
	LogLevel        string        `yaml:"log_level" env:"RISKAUTH_LOG_LEVEL"`

	RedisURL    string `yaml:"redis_url" env:"RISKAUTH_REDIS_URL"`
	DatabaseURL string `yaml:"database_url" env:"RISKAUTH_DATABASE_URL"`

	JWT       JWT         `yaml:"jwt"`
	Policies  Policies    `yaml:"policies"`
	Audit     Audit       `yaml:"audit"`
	Captcha   Captcha     `yaml:"captcha"`
	Geo       Geo         `yaml:"geo"`
	OTP       OTP         `yaml:"otp"`
	ThreatIPs []string    `yaml:"threat_ips" env:"RISKAUTH_THREAT_IPS" envSeparator:","`
	Risk      risk.Config `yaml:"risk"`

	StepUpAbove      int           `yaml:"step_up_above" env:"RISKAUTH_STEP_UP_ABOVE"`
	LockoutThreshold int           `yaml:"lockout_threshold" env:"RISKAUTH_LOCKOUT_THRESHOLD"`
	LockoutDuration  time.Duration `yaml:"lockout_duration" env:"RISKAUTH_LOCKOUT_DURATION"`
}

type JWT struct {
	// Method is "ed25519" or "hs256".
	Method         string        `yaml:"method" env:"RISKAUTH_JWT_METHOD"`
	PrivateKeyPath string        `yaml:"private_key_path" env:"RISKAUTH_JWT_PRIVATE_KEY_PATH"`
	PublicKeyPath  string        `yaml:"public_key_path" env:"RISKAUTH_JWT_PUBLIC_KEY_PATH"`
	Secret         string        `yaml:"-" env:"RISKAUTH_JWT_SECRET"`
	Issuer         string        `yaml:"issuer" env:"RISKAUTH_JWT_ISSUER"`
	Audience       string        `yaml:"audience" env:"RISKAUTH_JWT_AUDIENCE"`
	KeyID          string        `yaml:"key_id" env:"RISKAUTH_JWT_KEY_ID"`
	AccessTTL      time.Duration `yaml:"access_ttl" env:"RISKAUTH_JWT_ACCESS_TTL"`
	RefreshTTL     time.Duration `yaml:"refresh_ttl" env:"RISKAUTH_JWT_REFRESH_TTL"`
}

type Policies struct {
	// File selects the YAML policy file; empty uses the database.
	File     string        `yaml:"file" env:"RISKAUTH_POLICY_FILE"`
	CacheTTL time.Duration `yaml:"cache_ttl" env:"RISKAUTH_POLICY_CACHE_TTL"`
}

type Audit struct {
	KafkaBrokers []string `yaml:"kafka_brokers" env:"RISKAUTH_AUDIT_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `yaml:"kafka_topic" env:"RISKAUTH_AUDIT_KAFKA_TOPIC"`
	BufferSize   int      `yaml:"buffer_size" env:"RISKAUTH_AUDIT_BUFFER_SIZE"`
}

type Captcha struct {
	Endpoint string  `yaml:"endpoint" env:"RISKAUTH_CAPTCHA_ENDPOINT"`
	Secret   string  `yaml:"-" env:"RISKAUTH_CAPTCHA_SECRET"`
	MinScore float64 `yaml:"min_score" env:"RISKAUTH_CAPTCHA_MIN_SCORE"`
}

type Geo struct {
	Endpoint    string  `yaml:"endpoint" env:"RISKAUTH_GEO_ENDPOINT"`
	MaxSpeedKmh float64 `yaml:"max_speed_kmh" env:"RISKAUTH_GEO_MAX_SPEED_KMH"`
}

type OTP struct {
	// WebhookURL posts codes to a notification service; empty logs them.
	WebhookURL   string `yaml:"webhook_url" env:"RISKAUTH_OTP_WEBHOOK_URL"`
	WebhookToken string `yaml:"-" env:"RISKAUTH_OTP_WEBHOOK_TOKEN"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	engine := riskAuth.DefaultConfig()
	return Config{
		HTTPAddr:        ":8080",
		ShutdownTimeout: 15 * time.Second,
		LogLevel:        "info",
		RedisURL:        "redis://localhost:6379/0",
		JWT: JWT{
			Method:     string(jwt.MethodEd25519),
			Issuer:     engine.JWT.Issuer,
			AccessTTL:  engine.JWT.AccessTTL,
			RefreshTTL: engine.Session.RefreshTTL,
		},
		Policies: Policies{CacheTTL: 30 * time.Second},
		Audit: Audit{
			KafkaTopic: "riskauth.audit",
			BufferSize: engine.Audit.BufferSize,
		},
		Geo:              Geo{MaxSpeedKmh: engine.Geo.MaxSpeedKmh},
		Risk:             engine.Risk,
		StepUpAbove:      engine.Checkpoint.StepUpAbove,
		LockoutThreshold: engine.Lockout.Threshold,
		LockoutDuration:  engine.Lockout.Duration,
	}
}

// Load resolves defaults, then path (when non-empty), then the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks server-level settings. Engine tunables are validated by
// the Builder.
func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: http_addr required")
	}
	if c.RedisURL == "" {
		return errors.New("config: redis_url required")
	}
	if c.DatabaseURL == "" {
		return errors.New("config: database_url required")
	}
	switch jwt.SigningMethod(c.JWT.Method) {
	case jwt.MethodEd25519:
		if c.JWT.PrivateKeyPath == "" || c.JWT.PublicKeyPath == "" {
			return errors.New("config: ed25519 needs private_key_path and public_key_path")
		}
	case jwt.MethodHS256:
		if c.JWT.Secret == "" {
			return errors.New("config: hs256 needs RISKAUTH_JWT_SECRET")
		}
	default:
		return fmt.Errorf("config: unknown jwt method %q", c.JWT.Method)
	}
	if (c.Captcha.Endpoint == "") != (c.Captcha.Secret == "") {
		return errors.New("config: captcha endpoint and secret must be set together")
	}
	if _, err := c.ProxyPrefixes(); err != nil {
		return err
	}
	return nil
}

// ProxyPrefixes parses TrustedProxies. A bare address becomes a host prefix.
func (c Config) ProxyPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, raw := range c.TrustedProxies {
		if p, err := netip.ParsePrefix(raw); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("config: trusted_proxies: invalid entry %q", raw)
		}
		out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return out, nil
}

// EngineConfig maps the server settings onto an engine Config. Key material
// is read by the caller and passed in.
func (c Config) EngineConfig(privateKey, publicKey []byte) riskAuth.Config {
	out := riskAuth.DefaultConfig()
	out.JWT.SigningMethod = jwt.SigningMethod(c.JWT.Method)
	out.JWT.PrivateKey = privateKey
	out.JWT.PublicKey = publicKey
	out.JWT.Issuer = c.JWT.Issuer
	out.JWT.Audience = c.JWT.Audience
	out.JWT.KeyID = c.JWT.KeyID
	out.JWT.AccessTTL = c.JWT.AccessTTL
	out.Session.RefreshTTL = c.JWT.RefreshTTL
	out.Risk = c.Risk
	out.Geo.MaxSpeedKmh = c.Geo.MaxSpeedKmh
	out.Checkpoint.StepUpAbove = c.StepUpAbove
	out.Lockout.Threshold = c.LockoutThreshold
	out.Lockout.Duration = c.LockoutDuration
	out.Audit.BufferSize = c.Audit.BufferSize
	return out
}

// KeyMaterial loads signing keys per JWT.Method.
func (c Config) KeyMaterial() (private, public []byte, err error) {
	if jwt.SigningMethod(c.JWT.Method) == jwt.MethodHS256 {
		return []byte(c.JWT.Secret), nil, nil
	}
	if private, err = os.ReadFile(c.JWT.PrivateKeyPath); err != nil {
		return nil, nil, fmt.Errorf("config: read jwt private key: %w", err)
	}
	if public, err = os.ReadFile(c.JWT.PublicKeyPath); err != nil {
		return nil, nil, fmt.Errorf("config: read jwt public key: %w", err)
	}
	return private, public, nil
}
