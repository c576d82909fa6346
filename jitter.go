package main

import (
	"context"
	"math/rand/v2"
	"time"
)

// Jitter is a randomized delay: Base plus a uniform value in [0, Spread).
type Jitter struct {
	Base   time.Duration `yaml:"base"`
	Spread time.Duration `yaml:"spread"`
}

// Duration draws one delay from the jitter window.
func (j Jitter) Duration() time.Duration {
	if j.Spread <= 0 {
		return j.Base
	}
	return j.Base + time.Duration(rand.Int64N(int64(j.Spread)))
}

// Sleep waits for one drawn delay or until ctx is done, whichever comes
// first. It returns ctx.Err() when interrupted.
func (j Jitter) Sleep(ctx context.Context) error {
	return sleepContext(ctx, j.Duration())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
