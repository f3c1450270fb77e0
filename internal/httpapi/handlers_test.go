package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	riskAuth "github.com/MrEthical07/riskAuth"
	"github.com/MrEthical07/riskAuth/permission"
	"github.com/MrEthical07/riskAuth/risk"
)

type fakeEngine struct {
	authResult *riskAuth.AuthResult
	authErr    error
	authReq    riskAuth.AuthenticateRequest
	authIP     string

	refreshErr    error
	logoutErr     error
	loggedOutAll  string
	verifyErr     error
	verifiedCode  string
	checkpointErr error
	allowed       bool
	checkedAttrs  map[string]string
}

func (f *fakeEngine) Authenticate(ctx context.Context, req riskAuth.AuthenticateRequest) (*riskAuth.AuthResult, error) {
	f.authReq = req
	f.authIP = riskAuth.ClientIPFromContext(ctx)
	return f.authResult, f.authErr
}

func (f *fakeEngine) Refresh(_ context.Context, token string) (*riskAuth.TokenPair, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &riskAuth.TokenPair{AccessToken: "access-2", RefreshToken: token + "-next"}, nil
}

func (f *fakeEngine) Logout(context.Context, string) error { return f.logoutErr }

func (f *fakeEngine) LogoutAll(_ context.Context, userID string) error {
	f.loggedOutAll = userID
	return nil
}

func (f *fakeEngine) SetupMFA(context.Context, string) (*riskAuth.MFAEnrollment, error) {
	return &riskAuth.MFAEnrollment{Secret: "JBSWY3DPEHPK3PXP", BackupCodes: []string{"aaaa-bbbb"}}, nil
}

func (f *fakeEngine) VerifyMFA(_ context.Context, _ string, code string) error {
	f.verifiedCode = code
	return f.verifyErr
}

func (f *fakeEngine) ValidateAccess(_ context.Context, token string) (*riskAuth.Principal, error) {
	if token != "good" {
		return nil, riskAuth.ErrTokenInvalid
	}
	return &riskAuth.Principal{UserID: "u1", SessionID: "s1", Roles: []string{"nurse"}}, nil
}

func (f *fakeEngine) CheckpointPrincipal(context.Context, *riskAuth.Principal) (*risk.Assessment, error) {
	if f.checkpointErr != nil {
		return nil, f.checkpointErr
	}
	return &risk.Assessment{}, nil
}

func (f *fakeEngine) SubjectFor(_ context.Context, userID string) (permission.Subject, error) {
	return permission.Subject{ID: userID, Roles: []string{"nurse"}}, nil
}

func (f *fakeEngine) CheckPermission(_ context.Context, _ permission.Subject, _, _ string, attrs map[string]string) (bool, error) {
	f.checkedAttrs = attrs
	return f.allowed, nil
}

func newTestRouter(engine Engine, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return NewRouter(engine, opts)
}

func do(t *testing.T, h http.Handler, method, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.RemoteAddr = "203.0.113.7:51000"
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestAuthenticateIssuesTokens(t *testing.T) {
	engine := &fakeEngine{authResult: &riskAuth.AuthResult{
		Status: riskAuth.StatusAuthenticated,
		Tokens: &riskAuth.TokenPair{AccessToken: "a", RefreshToken: "r"},
	}}
	h := newTestRouter(engine, Options{})

	rec := do(t, h, http.MethodPost, "/v1/authenticate", `{"username":"alice","password":"pw","captcha_token":"c"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	data := body["data"].(map[string]any)
	assert.Equal(t, "a", data["access_token"])
	assert.Equal(t, "c", engine.authReq.CaptchaToken)
	assert.Equal(t, "203.0.113.7", engine.authIP)
}

func TestAuthenticateChallenge(t *testing.T) {
	expires := time.Date(2026, 3, 2, 12, 5, 0, 0, time.UTC)
	engine := &fakeEngine{authResult: &riskAuth.AuthResult{
		Status:       riskAuth.StatusChallengeRequired,
		Challenges:   []riskAuth.Challenge{riskAuth.ChallengeMFA},
		MFAMethod:    "email",
		MFAExpiresAt: expires,
	}}
	h := newTestRouter(engine, Options{})

	rec := do(t, h, http.MethodPost, "/v1/authenticate", `{"username":"alice","password":"pw"}`, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "insufficient_user_authentication")

	body := decode(t, rec)
	assert.Equal(t, "MFA_REQUIRED", body["code"])
	assert.Equal(t, "email", body["mfa_method"])
	assert.Equal(t, []any{"mfa"}, body["challenges"])
	assert.Equal(t, expires.Format(time.RFC3339), body["mfa_expires_at"])
}

func TestAuthenticateRejectsBadBodies(t *testing.T) {
	h := newTestRouter(&fakeEngine{}, Options{})

	for _, body := range []string{
		``,
		`{"username":"alice"}`,
		`{"username":"alice","password":"pw","extra":1}`,
		`{"username":"alice","password":"pw"}{}`,
	} {
		rec := do(t, h, http.MethodPost, "/v1/authenticate", body, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{riskAuth.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{riskAuth.ErrAccountLocked, http.StatusLocked, "ACCOUNT_LOCKED"},
		{riskAuth.ErrHighRiskBlocked, http.StatusForbidden, "ACCESS_DENIED"},
		{riskAuth.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},
		{riskAuth.ErrInvalidCaptcha, http.StatusUnauthorized, "INVALID_CAPTCHA"},
		{fmt.Errorf("wrapped: %w", riskAuth.ErrUnavailable), http.StatusServiceUnavailable, "UNAVAILABLE"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			h := newTestRouter(&fakeEngine{authErr: tc.err}, Options{})
			rec := do(t, h, http.MethodPost, "/v1/authenticate", `{"username":"alice","password":"pw"}`, "")
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decode(t, rec)["code"])
		})
	}
}

func TestRefreshAndLogout(t *testing.T) {
	engine := &fakeEngine{}
	h := newTestRouter(engine, Options{})

	rec := do(t, h, http.MethodPost, "/v1/token/refresh", `{"refresh_token":"r1"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "r1-next", decode(t, rec)["data"].(map[string]any)["refresh_token"])

	engine.refreshErr = riskAuth.ErrTokenRevoked
	rec = do(t, h, http.MethodPost, "/v1/token/refresh", `{"refresh_token":"r1"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "TOKEN_REVOKED", decode(t, rec)["code"])

	rec = do(t, h, http.MethodPost, "/v1/logout", `{"refresh_token":"r2"}`, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestBearerRoutes(t *testing.T) {
	engine := &fakeEngine{allowed: true}
	h := newTestRouter(engine, Options{})

	rec := do(t, h, http.MethodPost, "/v1/mfa/verify", `{"code":"123456"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/mfa/verify", `{"code":"123456"}`, "good")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "123456", engine.verifiedCode)

	rec = do(t, h, http.MethodPost, "/v1/permissions/check", `{"resource":"records","action":"read","attributes":{"ward":"icu"}}`, "good")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["data"].(map[string]any)["allowed"])
	assert.Equal(t, map[string]string{"ward": "icu"}, engine.checkedAttrs)

	rec = do(t, h, http.MethodPost, "/v1/logout/all", "", "good")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "u1", engine.loggedOutAll)
}

func TestMFASetupRequiresCheckpoint(t *testing.T) {
	engine := &fakeEngine{}
	h := newTestRouter(engine, Options{})

	rec := do(t, h, http.MethodPost, "/v1/mfa/setup", "", "good")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "JBSWY3DPEHPK3PXP", decode(t, rec)["data"].(map[string]any)["secret"])

	engine.checkpointErr = riskAuth.ErrStepUpRequired
	rec = do(t, h, http.MethodPost, "/v1/mfa/setup", "", "good")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "insufficient_user_authentication")
}

func TestHealthAndMetrics(t *testing.T) {
	healthy := true
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("riskauth_login_success_total 1\n"))
	})
	h := newTestRouter(&fakeEngine{}, Options{
		Metrics: metrics,
		Health: func(context.Context) error {
			if healthy {
				return nil
			}
			return errors.New("redis down")
		},
	})

	rec := do(t, h, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	healthy = false
	rec = do(t, h, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, h, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "riskauth_login_success_total")
}

func TestForwardedHeadersNeedTrustedPeer(t *testing.T) {
	send := func(h http.Handler, remote string) {
		req := httptest.NewRequest(http.MethodPost, "/v1/authenticate", strings.NewReader(`{"username":"alice","password":"pw"}`))
		req.RemoteAddr = remote
		req.Header.Set("X-Forwarded-For", "10.9.8.7")
		req.Header.Set("X-Real-IP", "10.9.8.7")
		req.Header.Set("True-Client-IP", "10.9.8.7")
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	ok := &riskAuth.AuthResult{Status: riskAuth.StatusAuthenticated, Tokens: &riskAuth.TokenPair{}}

	engine := &fakeEngine{authResult: ok}
	send(newTestRouter(engine, Options{}), "198.51.100.66:4444")
	assert.Equal(t, "198.51.100.66", engine.authIP, "headers ignored without trusted proxies")

	trusted := []netip.Prefix{netip.MustParsePrefix("192.0.2.0/24")}

	engine = &fakeEngine{authResult: ok}
	send(newTestRouter(engine, Options{TrustedProxies: trusted}), "198.51.100.66:4444")
	assert.Equal(t, "198.51.100.66", engine.authIP, "untrusted peer cannot forward")

	engine = &fakeEngine{authResult: ok}
	send(newTestRouter(engine, Options{TrustedProxies: trusted}), "192.0.2.10:4444")
	assert.Equal(t, "10.9.8.7", engine.authIP, "trusted proxy names the client")
}
