package waiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lbsassist.lib.waiter")

// ErrExhausted reports that a condition never became true within its
// attempt budget. It is not inherently fatal, the caller decides.
var ErrExhausted = errors.New("wait exhausted")

var errNotReady = errors.New("condition not yet satisfied")

// Policy is a staged backoff schedule: the first attempt runs
// immediately, later attempts wait increasingly long, capped at
// MaxDelay. Try fast first, retry with longer waits.
type Policy struct {
	// total number of condition evaluations, at least 1
	Attempts uint64
	// delay before the second attempt
	InitialDelay time.Duration
	// cap on the delay between attempts
	MaxDelay time.Duration
	// growth factor applied to the delay across attempts,
	// 1.0 gives a fixed-interval poll
	Multiplier float64
}

func (p Policy) withDefaults() Policy {
	if p.Attempts == 0 {
		p.Attempts = 3
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 500 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 5 * time.Second
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2
	}
	return p
}

// Condition inspects the current document/portal state. A false return
// with a nil error means "not yet rendered, ask again". A non-nil
// error is a hard failure that stops the wait immediately.
type Condition func(ctx context.Context) (bool, error)

// Await is the only sanctioned way to observe asynchronously rendered
// content. It never turns "not yet ready" into a hard failure on its
// own: once the budget is spent it returns an error wrapping
// ErrExhausted tagged with `what`, and the caller decides whether that
// is fatal.
func Await(ctx context.Context, what string, p Policy, cond Condition) error {
	ctx, span := tracer.Start(ctx, "Await")
	defer span.End()

	p = p.withDefaults()
	span.SetAttributes(
		attribute.String("what", what),
		attribute.Int64("attempts", int64(p.Attempts)),
	)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.RandomizationFactor = 0
	b.Multiplier = p.Multiplier
	b.MaxInterval = p.MaxDelay
	b.MaxElapsedTime = 0

	var attempt uint64
	op := func() error {
		attempt++
		ok, err := cond(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			slog.DebugContext(
				ctx, "condition not yet satisfied",
				"what", what,
				"attempt", attempt,
				"budget", p.Attempts,
			)
			return errNotReady
		}
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(b, p.Attempts-1),
		ctx,
	))
	if err == nil {
		return nil
	}
	if errors.Is(err, errNotReady) {
		span.SetStatus(codes.Error, "exhausted")
		return fmt.Errorf("%s: %w", what, ErrExhausted)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "condition failed")
	return fmt.Errorf("%s: %w", what, err)
}
