package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultInitTimeout bounds surface polling when no timeout is configured.
const DefaultInitTimeout = 5 * time.Second

var errSurfaceEmpty = errors.New("surface has no size yet")

// WaitForSurface polls s with exponential backoff until it reports a nonzero
// size. It gives up after timeout with a SurfaceUnavailable InitError, or
// returns ctx.Err() when ctx ends first.
func WaitForSurface(ctx context.Context, s Surface, timeout time.Duration) (int, int, error) {
	if timeout <= 0 {
		timeout = DefaultInitTimeout
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 25 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = timeout

	var w, h int
	op := func() error {
		w, h = s.Size()
		if w <= 0 || h <= 0 {
			return errSurfaceEmpty
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return 0, 0, cerr
		}
		return 0, 0, &InitError{
			Kind: SurfaceUnavailable,
			Err:  fmt.Errorf("surface still %dx%d after %s", w, h, timeout),
		}
	}
	return w, h, nil
}
