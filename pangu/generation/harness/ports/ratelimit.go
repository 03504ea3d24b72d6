package harnessports

import "context"

// RateLimiter coordinates how many turns run against the model at once.
type RateLimiter interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
