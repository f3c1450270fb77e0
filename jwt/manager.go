package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenExpired is returned by ParseAccess for a token past exp plus leeway.
	ErrTokenExpired = jwt.ErrTokenExpired
	// ErrTokenMalformed covers bad signatures, algorithms, kids and claims.
	ErrTokenMalformed = errors.New("access token rejected")
)

// SigningMethod selects the JWS algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over Ed25519.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA256.
	MethodHS256 SigningMethod = "hs256"
)

// Config holds signing keys and validation rules.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	// PrivateKey is the Ed25519 private key (raw or PEM) or the HMAC secret.
	PrivateKey []byte
	PublicKey  []byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
	RequireIAT bool
	// MaxFutureIAT bounds clock skew on iat. Default 10m.
	MaxFutureIAT time.Duration
	KeyID        string
	// VerifyKeys accepts tokens from retired keys during rotation.
	VerifyKeys map[string][]byte

	// Now overrides the clock for issuing and parsing.
	Now func() time.Time
}

// AccessClaims is the payload of an access token.
type AccessClaims struct {
	UID   string   `json:"uid"`
	SID   string   `json:"sid"`
	Roles []string `json:"roles,omitempty"`
	// AMR lists the authentication methods, e.g. ["pwd","otp"].
	AMR []string `json:"amr,omitempty"`
	jwt.RegisteredClaims
}

// HasMFA reports whether a second factor was part of the login.
func (c *AccessClaims) HasMFA() bool {
	for _, m := range c.AMR {
		if m != "pwd" {
			return true
		}
	}
	return false
}

// AccessInput is what CreateAccess embeds in a token.
type AccessInput struct {
	UserID    string
	SessionID string
	Roles     []string
	AMR       []string
}

// Manager signs and parses access tokens. Keys are decoded once by
// NewManager.
type Manager struct {
	cfg     Config
	method  jwt.SigningMethod
	signKey any
	// verify maps kid to key; "" is the key for tokens without a kid.
	verify map[string]any
	parser *jwt.Parser
}

// NewManager validates cfg, decodes its keys and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("jwt: access ttl must be positive")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("jwt: leeway must be within [0, 2m]")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("jwt: max future iat must be within (0, 24h]")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	m := &Manager{cfg: cfg, verify: make(map[string]any)}
	var err error
	switch cfg.SigningMethod {
	case MethodHS256:
		err = m.loadHMAC()
	case MethodEd25519:
		err = m.loadEd25519()
	default:
		err = fmt.Errorf("jwt: unsupported signing method %q", cfg.SigningMethod)
	}
	if err != nil {
		return nil, err
	}

	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := m.verify[cfg.KeyID]; !ok {
			return nil, errors.New("jwt: key id missing from verify keys")
		}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithTimeFunc(cfg.Now),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.RequireIAT {
		opts = append(opts, jwt.WithIssuedAt())
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	m.parser = jwt.NewParser(opts...)

	return m, nil
}

func (m *Manager) loadHMAC() error {
	if len(m.cfg.PrivateKey) < 32 {
		return errors.New("jwt: hs256 key must be at least 32 bytes")
	}
	m.method = jwt.SigningMethodHS256
	m.signKey = m.cfg.PrivateKey
	m.verify[""] = m.cfg.PrivateKey
	for kid, key := range m.cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return errors.New("jwt: verify keys contain an empty kid")
		}
		m.verify[kid] = key
	}
	return nil
}

func (m *Manager) loadEd25519() error {
	m.method = jwt.SigningMethodEdDSA
	if len(m.cfg.PrivateKey) > 0 {
		priv, err := parseEdPrivateKey(m.cfg.PrivateKey)
		if err != nil {
			return err
		}
		m.signKey = priv
	}
	if len(m.cfg.PublicKey) > 0 {
		pub, err := parseEdPublicKey(m.cfg.PublicKey)
		if err != nil {
			return err
		}
		m.verify[""] = pub
	}
	for kid, key := range m.cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return errors.New("jwt: verify keys contain an empty kid")
		}
		pub, err := parseEdPublicKey(key)
		if err != nil {
			return fmt.Errorf("jwt: verify key %q: %w", kid, err)
		}
		m.verify[kid] = pub
	}
	if len(m.verify) == 0 {
		return errors.New("jwt: ed25519 needs a public key or verify keys")
	}
	return nil
}

// TTL returns the configured access token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.cfg.AccessTTL
}

// CreateAccess signs a token for in and returns it with its expiry.
func (m *Manager) CreateAccess(in AccessInput) (string, time.Time, error) {
	if in.UserID == "" || in.SessionID == "" {
		return "", time.Time{}, errors.New("jwt: access token needs user and session")
	}
	if m.signKey == nil {
		return "", time.Time{}, errors.New("jwt: no signing key configured")
	}

	now := m.cfg.Now()
	exp := now.Add(m.cfg.AccessTTL)
	claims := AccessClaims{
		UID:   in.UserID,
		SID:   in.SessionID,
		Roles: in.Roles,
		AMR:   in.AMR,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   in.UserID,
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	if m.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.cfg.Audience}
	}

	token := jwt.NewWithClaims(m.method, claims)
	if m.cfg.KeyID != "" {
		token.Header["kid"] = m.cfg.KeyID
	}

	signed, err := token.SignedString(m.signKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ParseAccess verifies tokenStr and returns its claims. Expiry maps to
// ErrTokenExpired, anything else to ErrTokenMalformed.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := m.parser.ParseWithClaims(tokenStr, claims, m.keyFor)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if !token.Valid || claims.UID == "" || claims.SID == "" {
		return nil, ErrTokenMalformed
	}
	if claims.IssuedAt != nil && claims.IssuedAt.After(m.cfg.Now().Add(m.cfg.MaxFutureIAT)) {
		return nil, fmt.Errorf("%w: iat in the future", ErrTokenMalformed)
	}
	return claims, nil
}

// keyFor picks the verification key. With verify keys present the header
// kid must name one of them; with only KeyID set it must equal KeyID.
func (m *Manager) keyFor(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	switch {
	case len(m.cfg.VerifyKeys) > 0:
		key, ok := m.verify[kid]
		if kid == "" || !ok {
			return nil, errors.New("unknown kid")
		}
		return key, nil
	case m.cfg.KeyID != "" && kid != m.cfg.KeyID:
		return nil, errors.New("unknown kid")
	default:
		return m.verify[""], nil
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 private key")
	}
	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("jwt: private key is not ed25519")
	}
	return priv, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 public key")
	}
	pub, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("jwt: public key is not ed25519")
	}
	return pub, nil
}
