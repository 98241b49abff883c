package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/bookstore/internal/models"
)

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.True(t, IsUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey)))
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
}

func TestOpen_MigratesAndTranslatesDuplicates(t *testing.T) {
	db, err := OpenInMemory(t.Name())
	require.NoError(t, err)

	mobile := "9999999999"
	require.NoError(t, db.Create(&models.User{Mobile: &mobile, IsNewUser: true}).Error)

	err = db.Create(&models.User{Mobile: &mobile, IsNewUser: true}).Error
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
}

func TestEnsureDatabase_SkipsNonPostgresDSN(t *testing.T) {
	assert.NoError(t, ensureDatabase("file::memory:"))
	assert.NoError(t, ensureDatabase("sqlite://local.db"))
}

func TestConnect_SQLiteDSN(t *testing.T) {
	db, err := Connect("sqlite://" + t.TempDir() + "/bookstore.db")
	require.NoError(t, err)
	assert.True(t, db.Migrator().HasTable(&models.Purchase{}))
}
