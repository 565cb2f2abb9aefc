package repositories_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"katalog/internal/models"
	"katalog/internal/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a private in-memory sqlite database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Product{}, &models.User{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestGORMProductRepository(t *testing.T) {
	repositoryContract(t, func(t *testing.T) repositories.ProductRepository {
		return repositories.NewGORMProductRepository(newTestDB(t))
	})
}

func TestGORMUserRepository(t *testing.T) {
	repo := repositories.NewGORMUserRepository(newTestDB(t))
	ctx := context.Background()

	user := &models.User{Username: "alice", Email: "alice@example.com", Password: "hash"}
	require.NoError(t, repo.Create(ctx, user))
	require.NotEmpty(t, user.ID)

	got, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	got, err = repo.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	got, err = repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	_, err = repo.GetByUsername(ctx, "bob")
	assert.True(t, errors.Is(err, repositories.ErrUserNotFound))

	err = repo.Create(ctx, &models.User{Username: "alice", Email: "other@example.com", Password: "hash"})
	assert.True(t, errors.Is(err, repositories.ErrDuplicateUser))
}
