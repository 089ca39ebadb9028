package services

import (
	"context"
	"time"
)

// Clock returns the current time. Services take one so tests can pin "now".
type Clock func() time.Time

func defaultClock(c Clock) Clock {
	if c == nil {
		return time.Now
	}
	return c
}

// persistentContext keeps ctx's values but detaches it from cancellation, for
// work that outlives the request.
func persistentContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}
