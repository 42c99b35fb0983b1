package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/weiawesome/wes-messenger/internal/audit"
	"github.com/weiawesome/wes-messenger/internal/cache"
	"github.com/weiawesome/wes-messenger/internal/cipher"
	"github.com/weiawesome/wes-messenger/internal/domain"
	"github.com/weiawesome/wes-messenger/internal/repository"
	"github.com/weiawesome/wes-messenger/pkg/log"
)

// Directory resolves users. Status reads go through the cache, key
// material is always read from the database.
type Directory struct {
	repo     repository.UserRepository
	cache    cache.UserCache
	cacheTTL time.Duration
	sf       singleflight.Group
}

func NewDirectory(repo repository.UserRepository, userCache cache.UserCache, cacheTTL time.Duration) *Directory {
	if userCache == nil {
		userCache = cache.NopUserCache{}
	}
	return &Directory{
		repo:     repo,
		cache:    userCache,
		cacheTTL: cacheTTL,
	}
}

// Get returns the full user record including key material.
func (d *Directory) Get(ctx context.Context, userID string) (*domain.User, error) {
	return d.repo.GetByID(ctx, userID)
}

// Status returns the user's presence status.
func (d *Directory) Status(ctx context.Context, userID string) (domain.Status, error) {
	cached, err := d.cache.Get(ctx, userID)
	if err == nil {
		return cached.User.Status, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("cache get error")
	}

	result, err, _ := d.sf.Do(userID, func() (interface{}, error) {
		user, err := d.repo.GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		entry := &cache.UserCacheResult{User: *user}
		entry.User.PrivateKey = ""

		go func() {
			cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := d.cache.Set(cacheCtx, entry, d.cacheTTL); err != nil {
				l := log.L()
				l.Warn().Err(err).Msg("cache set error")
			}
		}()
		return entry, nil
	})
	if err != nil {
		return "", err
	}

	entry, ok := result.(*cache.UserCacheResult)
	if !ok {
		return "", fmt.Errorf("unexpected result type from singleflight")
	}
	return entry.User.Status, nil
}

// SetStatus persists status and drops the cached entry.
func (d *Directory) SetStatus(ctx context.Context, userID string, status domain.Status) error {
	if err := d.repo.UpdateStatus(ctx, userID, status); err != nil {
		return err
	}
	if err := d.cache.Delete(ctx, userID); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("cache delete error")
	}
	return nil
}

// LoadAccount resolves an authenticated user and provisions key material
// on first use.
func (d *Directory) LoadAccount(ctx context.Context, userID string) (string, error) {
	user, err := d.repo.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.HasKeys() {
		return user.Username, nil
	}

	km, err := cipher.GenerateKeyMaterial()
	if err != nil {
		return "", fmt.Errorf("failed to generate key material: %w", err)
	}
	stored, err := d.repo.SetKeys(ctx, userID, km.PublicKey, km.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("failed to store key material: %w", err)
	}
	if stored {
		audit.Log(ctx, audit.ActionProvisionKeys, userID, "encryption keys provisioned")
	}
	return user.Username, nil
}
