package cache

import (
	"context"
	"time"
)

// NopUserCache is used when Redis is disabled. Every lookup misses.
type NopUserCache struct{}

func (NopUserCache) Get(context.Context, string) (*UserCacheResult, error) { return nil, ErrCacheMiss }
func (NopUserCache) Set(context.Context, *UserCacheResult, time.Duration) error {
	return nil
}
func (NopUserCache) Delete(context.Context, ...string) error { return nil }
func (NopUserCache) Close() error                            { return nil }

var _ UserCache = NopUserCache{}
