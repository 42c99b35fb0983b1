// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-messenger/internal/cipher"
	"github.com/weiawesome/wes-messenger/internal/domain"
	"github.com/weiawesome/wes-messenger/pkg/database"
)

// NewDB opens a migrated in-memory SQLite database private to the test.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.New(&database.Config{
		Driver:       "sqlite",
		FilePath:     ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db, domain.Models()...))

	t.Cleanup(func() { database.Close(db) })
	return db
}

// CreateUser inserts a user with the given status. withKeys provisions
// key material as a first sign-in would.
func CreateUser(t *testing.T, db *gorm.DB, username string, status domain.Status, withKeys bool) *domain.User {
	t.Helper()

	u := &domain.User{ID: uuid.New().String(), Username: username, Status: status}
	if withKeys {
		km, err := cipher.GenerateKeyMaterial()
		require.NoError(t, err)
		u.PublicKey, u.PrivateKey = km.PublicKey, km.PrivateKey
	}

	model := domain.UserToModel(u)
	require.NoError(t, db.WithContext(context.Background()).Create(model).Error)
	return model.ToDomain()
}

// MakeFriends makes a and b follow each other.
func MakeFriends(t *testing.T, db *gorm.DB, a, b string) {
	t.Helper()
	require.NoError(t, db.Create(&domain.FollowModel{FollowerID: a, FollowingID: b}).Error)
	require.NoError(t, db.Create(&domain.FollowModel{FollowerID: b, FollowingID: a}).Error)
}
