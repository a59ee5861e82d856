package database

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/items-api/internal/config"
	"github.com/iliyamo/items-api/internal/database/migrations"
)

func TestDSN(t *testing.T) {
	c := config.DBConfig{User: "app", Host: "db", Port: "3306", Name: "items"}
	assert.Equal(t, "app@tcp(db:3306)/items?charset=utf8mb4&parseTime=true&loc=UTC", DSN(c))

	c.Pass = "pw"
	assert.Equal(t, "app:pw@tcp(db:3306)/items?charset=utf8mb4&parseTime=true&loc=UTC", DSN(c))
}

func TestMigrationsEmbedded(t *testing.T) {
	names, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"00001_create_users.sql", "00002_create_items.sql"}, names)
}

func TestMigrate_RunsFromEmbeddedRoot(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()
	var gotDir string
	gooseUpContext = func(_ context.Context, _ *sql.DB, dir string, _ ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}

	require.NoError(t, Migrate(context.Background(), db))
	assert.Equal(t, ".", gotDir)
}

func TestMigrate_WrapsError(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()
	boom := errors.New("boom")
	gooseUpContext = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error { return boom }

	err = Migrate(context.Background(), db)
	assert.ErrorIs(t, err, boom)
}
