package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/theirongolddev/tokenwise/internal/logging"
)

// BilledFunc records the cost of one billed call.
type BilledFunc func(ctx context.Context, u Usage) error

// Retrying wraps a Caller with bounded retries. OnBilled runs exactly once
// for every call the provider billed, successful or not, and never for
// unbilled failures. It runs with cancellation detached so a billed call is
// recorded even when ctx is canceled mid-call.
type Retrying struct {
	Caller      Caller
	MaxAttempts int
	OnBilled    BilledFunc
	// NewBackOff returns the delay policy; nil means exponential from 500ms.
	NewBackOff func() backoff.BackOff
	Logger     *zap.Logger
}

// Complete runs req until it succeeds, fails permanently, or attempts run out.
func (r *Retrying) Complete(ctx context.Context, req Request) (Response, error) {
	log := logging.OrNop(r.Logger).Named("remote")
	attempts := r.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var b backoff.BackOff
	if r.NewBackOff != nil {
		b = r.NewBackOff()
	} else {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = 500 * time.Millisecond
		eb.MaxInterval = 30 * time.Second
		b = eb
	}

	var recordErr error
	attempt := 0
	op := func() (Response, error) {
		attempt++
		resp, err := r.Caller.Complete(ctx, req)
		if err == nil {
			recordErr = r.record(ctx, resp.Usage)
			return resp, nil
		}
		if u, ok := Billed(err); ok {
			if rerr := r.record(ctx, u); rerr != nil {
				recordErr = rerr
				return Response{}, backoff.Permanent(err)
			}
		}
		if ctx.Err() != nil || !IsRetryable(err) {
			return Response{}, backoff.Permanent(err)
		}
		return Response{}, err
	}

	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithNotify(func(err error, d time.Duration) {
			log.Warn("retrying remote call",
				zap.String("model", req.Model),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", attempts),
				zap.Duration("delay", d),
				zap.Error(err))
		}),
	)
	if recordErr != nil {
		err = errors.Join(err, fmt.Errorf("recording billed call: %w", recordErr))
	}
	return resp, err
}

func (r *Retrying) record(ctx context.Context, u Usage) error {
	if r.OnBilled == nil {
		return nil
	}
	return r.OnBilled(context.WithoutCancel(ctx), u)
}
