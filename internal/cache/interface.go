package cache

import (
	"context"
	"errors"
	"time"

	"github.com/weiawesome/wes-messenger/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// UserCacheResult is a cached directory entry. Private key material never
// leaves the database, so cached users only serve status and profile reads.
type UserCacheResult struct {
	User domain.User `json:"user"`
}

type UserCache interface {
	Get(ctx context.Context, userID string) (*UserCacheResult, error)
	Set(ctx context.Context, result *UserCacheResult, ttl time.Duration) error
	Delete(ctx context.Context, userIDs ...string) error
	Close() error
}
