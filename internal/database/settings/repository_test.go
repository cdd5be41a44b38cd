package settings

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/librarian/internal/entities"
)

func setupTestDB(t *testing.T) *Repository {
	dbPath := filepath.Join(t.TempDir(), "settings.db")

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&entities.Setting{})
	require.NoError(t, err)

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})

	return NewRepository(db)
}

func TestRepository_SetSetting_New(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	err := repo.SetSetting(ctx, entities.SettingKeyReconcileLastStatus, "success")
	require.NoError(t, err)

	setting, err := repo.GetSetting(ctx, entities.SettingKeyReconcileLastStatus)
	require.NoError(t, err)
	assert.Equal(t, entities.SettingKeyReconcileLastStatus, setting.Key)
	assert.Equal(t, "success", setting.Value)
}

func TestRepository_SetSetting_Update(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, repo.SetSetting(ctx, entities.SettingKeyReconcileLastDrift, "3"))
	require.NoError(t, repo.SetSetting(ctx, entities.SettingKeyReconcileLastDrift, "0"))

	setting, err := repo.GetSetting(ctx, entities.SettingKeyReconcileLastDrift)
	require.NoError(t, err)
	assert.Equal(t, "0", setting.Value)
}

func TestRepository_GetSetting_NotFound(t *testing.T) {
	repo := setupTestDB(t)

	_, err := repo.GetSetting(context.Background(), "nonexistent")

	assert.ErrorIs(t, err, ErrSettingNotFound)
}

func TestRepository_SetMany_GetValues(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	err := repo.SetMany(ctx, map[string]string{
		entities.SettingKeyReconcileLastStatus:  "failed",
		entities.SettingKeyReconcileLastMessage: "database is locked",
	})
	require.NoError(t, err)

	values, err := repo.GetValues(ctx,
		entities.SettingKeyReconcileLastStatus,
		entities.SettingKeyReconcileLastMessage,
		entities.SettingKeyReconcileLastAt,
	)
	require.NoError(t, err)
	assert.Equal(t, "failed", values[entities.SettingKeyReconcileLastStatus])
	assert.Equal(t, "database is locked", values[entities.SettingKeyReconcileLastMessage])
	_, ok := values[entities.SettingKeyReconcileLastAt]
	assert.False(t, ok)
}

func TestRepository_DeleteSetting(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, repo.SetSetting(ctx, "to-delete", "value"))
	require.NoError(t, repo.DeleteSetting(ctx, "to-delete"))

	_, err := repo.GetSetting(ctx, "to-delete")
	assert.ErrorIs(t, err, ErrSettingNotFound)

	// Deleting a missing key is not an error
	assert.NoError(t, repo.DeleteSetting(ctx, "nonexistent"))
}
