package logger

import (
	"context"
	"net"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	lg   *zap.Logger
	once sync.Once
)

// New returns the process logger. Production emits JSON at info; everything else gets the
// colored development console at debug.
func New(env string) (*zap.Logger, error) {
	var err error
	once.Do(func() {
		cfg := zap.NewProductionConfig()
		if env != "production" {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		cfg.InitialFields = map[string]any{"component": "session-core"}

		lg, err = cfg.Build()
	})

	return lg, err
}

// WithContext returns the process logger annotated with the request id carried by ctx.
func WithContext(ctx context.Context) *zap.Logger {
	if lg == nil {
		return zap.NewNop()
	}
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		return lg.With(zap.String("request_id", requestID))
	}
	return lg
}

type requestIDKey struct{}

// ContextWithRequestID stores the request identifier on ctx.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the request identifier stored on ctx, if any.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	requestID, _ := ctx.Value(requestIDKey{}).(string)
	return requestID
}

// Email is a field holding a masked email address.
func Email(key, email string) zap.Field {
	return zap.String(key, MaskEmail(email))
}

// Secret is a field holding a masked opaque token.
func Secret(key, value string) zap.Field {
	return zap.String(key, MaskString(value))
}

// ClientIP is a field holding a truncated client address.
func ClientIP(ip string) zap.Field {
	return zap.String("client_ip", MaskIP(ip))
}

// MaskEmail keeps up to three leading characters of the local part and the domain.
// john.doe@example.com -> joh***@example.com
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" {
		return "***"
	}
	if len(local) > 3 {
		local = local[:3]
	}
	return local + "***@" + domain
}

// MaskIP keeps the /16 of an IPv4 address and the /64 of an IPv6 address.
func MaskIP(ip string) string {
	if ip == "" {
		return ""
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "***"
	}
	if v4 := parsed.To4(); v4 != nil {
		return net.IPv4(v4[0], v4[1], 0, 0).String() + "/16"
	}
	return parsed.Mask(net.CIDRMask(64, 128)).String() + "/64"
}

// MaskString keeps the first and last two characters of values longer than four.
// secret123 -> se***23
func MaskString(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "***"
	}
	return s[:2] + "***" + s[len(s)-2:]
}
