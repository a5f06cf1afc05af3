package credcore

import "context"

type contextKey int

const (
	clientIPKey contextKey = iota
	userAgentKey
)

// WithClientIP tags ctx with the caller's IP for audit enrichment.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// WithUserAgent tags ctx with the caller's user agent for audit enrichment.
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, userAgentKey, ua)
}

// ClientIP returns the IP set by WithClientIP, or "".
func ClientIP(ctx context.Context) string {
	v, _ := ctx.Value(clientIPKey).(string)
	return v
}

// UserAgent returns the user agent set by WithUserAgent, or "".
func UserAgent(ctx context.Context) string {
	v, _ := ctx.Value(userAgentKey).(string)
	return v
}
