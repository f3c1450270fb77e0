package riskAuth

import (
	"context"

	"github.com/MrEthical07/riskAuth/device"
)

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type acceptContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine uses it
// for per-IP rate limiting, threat intel, geo lookup and the device
// fingerprint.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx. It is folded into
// the device fingerprint.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithAccept attaches the HTTP Accept header to ctx. It is folded into the
// device fingerprint.
func WithAccept(ctx context.Context, accept string) context.Context {
	return context.WithValue(ctx, acceptContextKey{}, accept)
}

// ClientIPFromContext returns the IP attached by [WithClientIP].
func ClientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

func acceptFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	accept, _ := ctx.Value(acceptContextKey{}).(string)
	return accept
}

// FingerprintFromContext returns the device fingerprint the Engine derives
// from the attributes attached to ctx.
func FingerprintFromContext(ctx context.Context) string {
	return device.Fingerprint(device.Attributes{
		IP:        ClientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Accept:    acceptFromContext(ctx),
	})
}
