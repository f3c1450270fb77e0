// Package httpapi is the riskauthd HTTP surface over riskAuth.Engine.
package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	riskAuth "github.com/MrEthical07/riskAuth"
	"github.com/MrEthical07/riskAuth/middleware"
	"github.com/MrEthical07/riskAuth/permission"
	"github.com/MrEthical07/riskAuth/risk"
)

// Engine is the subset of *riskAuth.Engine served over HTTP.
type Engine interface {
	Authenticate(ctx context.Context, req riskAuth.AuthenticateRequest) (*riskAuth.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*riskAuth.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, userID string) error
	SetupMFA(ctx context.Context, userID string) (*riskAuth.MFAEnrollment, error)
	VerifyMFA(ctx context.Context, userID, code string) error
	ValidateAccess(ctx context.Context, accessToken string) (*riskAuth.Principal, error)
	CheckpointPrincipal(ctx context.Context, p *riskAuth.Principal) (*risk.Assessment, error)
	SubjectFor(ctx context.Context, userID string) (permission.Subject, error)
	CheckPermission(ctx context.Context, subject permission.Subject, resource, action string, attrs map[string]string) (bool, error)
}

// Options are the optional collaborators of the router.
type Options struct {
	Logger  *slog.Logger
	Metrics http.Handler
	// Health reports backend reachability for /healthz.
	Health func(ctx context.Context) error
	// TrustedProxies are the peers allowed to name the client through
	// X-Forwarded-For, X-Real-IP or True-Client-IP. Requests from any other
	// peer are scored on RemoteAddr.
	TrustedProxies []netip.Prefix
}

type handler struct {
	engine Engine
	logger *slog.Logger
	health func(ctx context.Context) error
}

// NewRouter wires every route.
func NewRouter(engine Engine, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{engine: engine, logger: logger.With("module", "http"), health: opts.Health}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(forwardedFrom(opts.TrustedProxies))
	r.Use(chimw.Recoverer)
	r.Use(h.logRequests)
	r.Use(middleware.RequestContext)

	r.Get("/healthz", h.healthz)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/authenticate", h.authenticate)
		r.Post("/token/refresh", h.refresh)
		r.Post("/logout", h.logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(engine))
			r.Post("/mfa/verify", h.verifyMFA)
			r.Post("/permissions/check", h.checkPermission)
			r.Post("/logout/all", h.logoutAll)

			r.With(middleware.Checkpoint(engine)).Post("/mfa/setup", h.setupMFA)
		})
	})

	return r
}

// forwardedFrom applies chi's RealIP only to requests whose peer is a
// trusted proxy.
func forwardedFrom(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(trusted) == 0 {
			return next
		}
		realIP := chimw.RealIP(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if peerTrusted(r.RemoteAddr, trusted) {
				realIP.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func peerTrusted(remoteAddr string, trusted []netip.Prefix) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		level := slog.LevelInfo
		if ww.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		h.logger.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", chimw.GetReqID(r.Context()),
		)
	})
}
