// Package logger builds the zerolog logger of the service and carries
// request-scoped fields through context.
package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level     string
	Console   bool
	SampleN   int
	Component string
	Version   string
}

type ctxKey string

const (
	ctxReqIDKey  ctxKey = "request_id"
	ctxRouteKey  ctxKey = "route"
	ctxComponent ctxKey = "component"
	ctxWorker    ctxKey = "worker"
)

// string-valued context fields, in output order
var stringFields = []ctxKey{ctxReqIDKey, ctxRouteKey, ctxComponent}

func withString(ctx context.Context, k ctxKey, v string) context.Context {
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, k, v)
}

// WithRequestID stores reqID in ctx, generating one when empty.
func WithRequestID(ctx context.Context, reqID string) context.Context {
	if reqID == "" {
		reqID = NewID()
	}
	return withString(ctx, ctxReqIDKey, reqID)
}

// RequestID returns the request id stored in ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxReqIDKey).(string)
	return id
}

// WithRoute tags the context with the kind of API route being served.
func WithRoute(ctx context.Context, route string) context.Context {
	return withString(ctx, ctxRouteKey, route)
}

// WithWorker tags the context with the pool worker serving it.
func WithWorker(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, ctxWorker, id)
}

func WithComponent(ctx context.Context, component string) context.Context {
	return withString(ctx, ctxComponent, component)
}

// NewID returns 16 random hex characters.
func NewID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// parseLevel accepts debug, info, warn and error; anything else is info.
func parseLevel(s string) zerolog.Level {
	switch l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s))); {
	case err != nil:
		return zerolog.InfoLevel
	case l == zerolog.DebugLevel, l == zerolog.WarnLevel, l == zerolog.ErrorLevel:
		return l
	default:
		return zerolog.InfoLevel
	}
}

// Build configures zerolog globals and returns the root logger. Output is
// JSON unless cfg.Console is set.
func Build(cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "timestamp"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "msg"
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	base := zerolog.New(out)
	if cfg.SampleN > 1 {
		n := uint32(min(cfg.SampleN, math.MaxUint32))
		base = base.Sample(&zerolog.BasicSampler{N: n})
	}

	zc := base.With().Timestamp()
	if cfg.Version != "" {
		zc = zc.Str("version", cfg.Version)
	}
	if cfg.Component != "" {
		zc = zc.Str("component", cfg.Component)
	}
	return zc.Logger()
}

// FromContext returns a child of parent carrying the context fields.
func FromContext(ctx context.Context, parent *zerolog.Logger) *zerolog.Logger {
	base := zerolog.Nop()
	if parent != nil {
		base = *parent
	}
	zc := base.With()
	for _, k := range stringFields {
		if s, ok := ctx.Value(k).(string); ok && s != "" {
			zc = zc.Str(string(k), s)
		}
	}
	if id, ok := ctx.Value(ctxWorker).(int); ok {
		zc = zc.Int(string(ctxWorker), id)
	}
	l := zc.Logger()
	return &l
}
