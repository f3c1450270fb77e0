package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	riskAuth "github.com/MrEthical07/riskAuth"
	"github.com/MrEthical07/riskAuth/risk"
)

type fakeEngine struct {
	validateErr   error
	checkpointErr error
	seen          *riskAuth.Principal
}

func (f *fakeEngine) ValidateAccess(_ context.Context, token string) (*riskAuth.Principal, error) {
	if f.validateErr != nil {
		return nil, f.validateErr
	}
	return &riskAuth.Principal{UserID: "u1", SessionID: token}, nil
}

func (f *fakeEngine) CheckpointPrincipal(_ context.Context, p *riskAuth.Principal) (*risk.Assessment, error) {
	f.seen = p
	if f.checkpointErr != nil {
		return nil, f.checkpointErr
	}
	return &risk.Assessment{}, nil
}

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(p.UserID))
	})
}

func TestGuard(t *testing.T) {
	tests := []struct {
		name   string
		header string
		err    error
		status int
	}{
		{"missing header", "", nil, http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", nil, http.StatusUnauthorized},
		{"empty token", "Bearer ", nil, http.StatusUnauthorized},
		{"valid", "Bearer s1", nil, http.StatusOK},
		{"lowercase scheme", "bearer s1", nil, http.StatusOK},
		{"expired", "Bearer s1", riskAuth.ErrTokenExpired, http.StatusUnauthorized},
		{"revoked", "Bearer s1", riskAuth.ErrTokenRevoked, http.StatusUnauthorized},
		{"backend down", "Bearer s1", riskAuth.ErrUnavailable, http.StatusServiceUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := Guard(&fakeEngine{validateErr: tc.err})(okHandler(t))
			req := httptest.NewRequest(http.MethodGet, "/records", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, "u1", rec.Body.String())
			}
		})
	}
}

func TestGuardNilEngine(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer s1")
	Guard(nil)(okHandler(t)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckpointStepUp(t *testing.T) {
	engine := &fakeEngine{checkpointErr: riskAuth.ErrStepUpRequired}
	h := Guard(engine)(Checkpoint(engine)(okHandler(t)))

	req := httptest.NewRequest(http.MethodPost, "/transfer", nil)
	req.Header.Set("Authorization", "Bearer s1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "insufficient_user_authentication")
	require.NotNil(t, engine.seen)
	assert.Equal(t, "s1", engine.seen.SessionID)
}

func TestCheckpointPasses(t *testing.T) {
	engine := &fakeEngine{}
	h := Guard(engine)(Checkpoint(engine)(okHandler(t)))

	req := httptest.NewRequest(http.MethodPost, "/transfer", nil)
	req.Header.Set("Authorization", "Bearer s1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCheckpointWithoutGuard(t *testing.T) {
	rec := httptest.NewRecorder()
	Checkpoint(&fakeEngine{})(okHandler(t)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequestContextCarriesRiskInputs(t *testing.T) {
	var ctx context.Context
	h := RequestContext(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ctx = r.Context()
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/authenticate", nil)
	req.RemoteAddr = "198.51.100.4:52100"
	req.Header.Set("User-Agent", "curl/8.0")
	req.Header.Set("Accept", "application/json")
	h.ServeHTTP(httptest.NewRecorder(), req)

	// fingerprints differ only through the attached attributes
	other := riskAuth.WithClientIP(context.Background(), "198.51.100.4")
	other = riskAuth.WithUserAgent(other, "curl/8.0")
	other = riskAuth.WithAccept(other, "application/json")
	assert.Equal(t, riskAuth.FingerprintFromContext(other), riskAuth.FingerprintFromContext(ctx))
}

func TestClientIP(t *testing.T) {
	assert.Equal(t, "198.51.100.4", clientIP("198.51.100.4:1234"))
	assert.Equal(t, "2001:db8::1", clientIP("[2001:db8::1]:443"))
	assert.Equal(t, "203.0.113.9", clientIP("203.0.113.9"))
}
