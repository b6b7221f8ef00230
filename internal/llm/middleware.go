package llm

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Middleware decorates a Client to inject cross-cutting concerns
// (rate limiting, timeouts, logging).
type Middleware func(Client) Client

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner Client, mws ...Middleware) Client {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// WithLogging logs request sizes, durations and errors.
func WithLogging(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next Client) Client {
		return &logging{next: next, log: logger}
	}
}

type logging struct {
	next Client
	log  *zap.Logger
}

func (l *logging) Name() string { return l.next.Name() }
func (l *logging) Close() error { return l.next.Close() }

func (l *logging) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := l.next.Generate(ctx, prompt)
	if err != nil {
		l.log.Warn("llm call failed",
			zap.String("client", l.next.Name()),
			zap.Int("prompt_bytes", len(prompt)),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return "", err
	}
	l.log.Debug("llm call",
		zap.String("client", l.next.Name()),
		zap.Int("prompt_bytes", len(prompt)),
		zap.Int("output_bytes", len(out)),
		zap.Duration("duration", time.Since(start)))
	return out, nil
}

func (l *logging) GenerateStream(ctx context.Context, prompt string, onChunk func(chunk string)) (string, error) {
	start := time.Now()
	out, err := l.next.GenerateStream(ctx, prompt, onChunk)
	if err != nil {
		l.log.Warn("llm stream failed",
			zap.String("client", l.next.Name()),
			zap.Int("prompt_bytes", len(prompt)),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return "", err
	}
	l.log.Debug("llm stream",
		zap.String("client", l.next.Name()),
		zap.Int("prompt_bytes", len(prompt)),
		zap.Int("output_bytes", len(out)),
		zap.Duration("duration", time.Since(start)))
	return out, nil
}

// WithRateLimit gates calls through a token bucket. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) Middleware {
	return func(next Client) Client {
		if rps <= 0 {
			return next
		}
		if burst < 1 {
			burst = 1
		}
		return &rateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
	}
}

type rateLimited struct {
	next    Client
	limiter *rate.Limiter
}

func (c *rateLimited) Name() string { return c.next.Name() }
func (c *rateLimited) Close() error { return c.next.Close() }

func (c *rateLimited) Generate(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return c.next.Generate(ctx, prompt)
}

func (c *rateLimited) GenerateStream(ctx context.Context, prompt string, onChunk func(chunk string)) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return c.next.GenerateStream(ctx, prompt, onChunk)
}

// WithTimeout bounds every call, streaming included. This is what keeps a
// variant from sitting in "generating" forever when the upstream stalls.
func WithTimeout(d time.Duration) Middleware {
	return func(next Client) Client {
		if d <= 0 {
			return next
		}
		return &timed{next: next, timeout: d}
	}
}

type timed struct {
	next    Client
	timeout time.Duration
}

func (t *timed) Name() string { return t.next.Name() }
func (t *timed) Close() error { return t.next.Close() }

func (t *timed) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Generate(ctx, prompt)
}

func (t *timed) GenerateStream(ctx context.Context, prompt string, onChunk func(chunk string)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.GenerateStream(ctx, prompt, onChunk)
}
