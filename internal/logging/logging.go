// Package logging wires the reactor's and instances' narrow netem.Logger
// seam to the project's ambient logging stack: structured output via
// logiface over a log/slog handler, with repeated identical messages
// throttled by a sliding-window rate limiter so a flapping link can't
// flood stderr.
package logging

import (
	"log/slog"
	"os"
	"time"

	catrate "github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	islog "github.com/joeycumines/logiface-slog"

	"github.com/mucaho/jnetemu/netem"
)

// Logger adapts a logiface.Logger[*islog.Event] to netem.Logger, with a
// per-message-string rate limit so a single noisy failure mode (a peer
// that vanished mid-burst, a socket flapping under load) cannot repeat
// faster than the configured ceiling.
type Logger struct {
	base    *logiface.Logger[*islog.Event]
	limiter *catrate.Limiter
}

// Option configures a Logger.
type Option func(*options)

type options struct {
	handler slog.Handler
	level   logiface.Level
	rates   map[time.Duration]int
}

// WithHandler overrides the slog.Handler events are written through.
// Defaults to a text handler on stderr.
func WithHandler(h slog.Handler) Option {
	return func(o *options) { o.handler = h }
}

// WithLevel sets the minimum enabled logiface.Level. Defaults to
// LevelInformational.
func WithLevel(l logiface.Level) Option {
	return func(o *options) { o.level = l }
}

// WithRateLimit overrides the default per-message-string rate limit
// (5 per 10s, 20 per minute).
func WithRateLimit(rates map[time.Duration]int) Option {
	return func(o *options) { o.rates = rates }
}

// New builds a Logger. With no options it writes human-readable text to
// stderr at informational level and above.
func New(opts ...Option) *Logger {
	o := options{
		handler: slog.NewTextHandler(os.Stderr, nil),
		level:   logiface.LevelInformational,
		rates: map[time.Duration]int{
			10 * time.Second: 5,
			time.Minute:      20,
		},
	}
	for _, fn := range opts {
		fn(&o)
	}

	base := logiface.New[*islog.Event](
		islog.NewLogger(o.handler),
		logiface.WithLevel[*islog.Event](o.level),
	)

	return &Logger{
		base:    base,
		limiter: catrate.NewLimiter(o.rates),
	}
}

func (l *Logger) Warn(msg string, keyvals ...any) {
	if _, ok := l.limiter.Allow(msg); !ok {
		return
	}
	emit(l.base.Warning(), msg, keyvals)
}

func (l *Logger) Error(msg string, keyvals ...any) {
	if _, ok := l.limiter.Allow(msg); !ok {
		return
	}
	emit(l.base.Err(), msg, keyvals)
}

func emit(b *logiface.Builder[*islog.Event], msg string, keyvals []any) {
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, _ := keyvals[i].(string)
		switch v := keyvals[i+1].(type) {
		case string:
			b = b.Str(key, v)
		case error:
			b = b.Err(v)
		case int:
			b = b.Int(key, v)
		case int64:
			b = b.Int(key, int(v))
		default:
			b = b.Interface(key, v)
		}
	}
	b.Log(msg)
}

var _ netem.Logger = (*Logger)(nil)
