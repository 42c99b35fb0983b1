package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-messenger/internal/domain"
)

// GormFollowRepository implements FollowRepository using GORM.
type GormFollowRepository struct {
	db *gorm.DB
}

// NewGormFollowRepository creates a new GORM-backed follow repository.
func NewGormFollowRepository(db *gorm.DB) *GormFollowRepository {
	return &GormFollowRepository{db: db}
}

// Follow creates a follow relationship. A soft-deleted row for the same
// pair is restored instead of inserting a new one.
func (r *GormFollowRepository) Follow(ctx context.Context, followerID, followingID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Unscoped().
			Model(&domain.FollowModel{}).
			Where("follower_id = ? AND following_id = ? AND deleted_at IS NOT NULL", followerID, followingID).
			Update("deleted_at", nil)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			return nil
		}

		model := domain.FollowModel{
			FollowerID:  followerID,
			FollowingID: followingID,
		}
		if err := tx.Create(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyFollowing
			}
			return err
		}
		return nil
	})
}

// Unfollow removes a follow relationship.
func (r *GormFollowRepository) Unfollow(ctx context.Context, followerID, followingID string) error {
	result := r.db.WithContext(ctx).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		Delete(&domain.FollowModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrFollowNotFound
	}
	return nil
}

// IsFollowing checks if followerID follows followingID.
func (r *GormFollowRepository) IsFollowing(ctx context.Context, followerID, followingID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.FollowModel{}).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// IsFriend reports whether a and b follow each other.
func (r *GormFollowRepository) IsFriend(ctx context.Context, a, b string) (bool, error) {
	if a == b {
		return false, nil
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.FollowModel{}).
		Where("(follower_id = ? AND following_id = ?) OR (follower_id = ? AND following_id = ?)", a, b, b, a).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count == 2, nil
}

// ListFriendIDs returns the ids of users who follow userID back.
func (r *GormFollowRepository) ListFriendIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Table("follows AS f1").
		Joins("JOIN follows AS f2 ON f2.follower_id = f1.following_id AND f2.following_id = f1.follower_id AND f2.deleted_at IS NULL").
		Where("f1.follower_id = ? AND f1.deleted_at IS NULL", userID).
		Order("f1.following_id").
		Pluck("f1.following_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

var _ FollowRepository = (*GormFollowRepository)(nil)
