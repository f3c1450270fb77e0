package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	riskAuth "github.com/MrEthical07/riskAuth"
	"github.com/MrEthical07/riskAuth/risk"
)

// AccessValidator is the part of *riskAuth.Engine used by [Guard].
type AccessValidator interface {
	ValidateAccess(ctx context.Context, accessToken string) (*riskAuth.Principal, error)
}

// SessionCheckpointer is the part of *riskAuth.Engine used by [Checkpoint].
type SessionCheckpointer interface {
	CheckpointPrincipal(ctx context.Context, p *riskAuth.Principal) (*risk.Assessment, error)
}

type principalContextKey struct{}

// PrincipalFromContext returns the principal stored by [Guard].
func PrincipalFromContext(ctx context.Context) (*riskAuth.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*riskAuth.Principal)
	return p, ok && p != nil
}

// WithPrincipal stores p on ctx.
func WithPrincipal(ctx context.Context, p *riskAuth.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// RequestContext attaches the request attributes the Engine scores.
// The client IP is taken from RemoteAddr; deployments behind a proxy should
// rewrite RemoteAddr first (for example with chi's RealIP).
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := riskAuth.WithClientIP(r.Context(), clientIP(r.RemoteAddr))
		ctx = riskAuth.WithUserAgent(ctx, r.UserAgent())
		ctx = riskAuth.WithAccept(ctx, r.Header.Get("Accept"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Guard rejects requests without a valid bearer access token.
func Guard(engine AccessValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			p, err := engine.ValidateAccess(r.Context(), token)
			if err != nil {
				writeAuthError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// Checkpoint re-verifies the session of the principal stored by [Guard].
// Mount it after Guard.
func Checkpoint(engine SessionCheckpointer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok || engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if _, err := engine.CheckpointPrincipal(r.Context(), p); err != nil {
				writeAuthError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, riskAuth.ErrStepUpRequired):
		w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_user_authentication"`)
		http.Error(w, "step-up required", http.StatusUnauthorized)
	case errors.Is(err, riskAuth.ErrUnavailable), errors.Is(err, riskAuth.ErrEngineNotReady):
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	default:
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
