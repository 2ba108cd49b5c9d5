package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"002_b.sql", "001_a.sql", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "003_dir.sql"), 0o755))

	files, err := migrationFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_a.sql", "002_b.sql"}, files)
}

func TestApply(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_a.sql"), []byte("CREATE TABLE a (id INT);"), 0o644))

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WithArgs("001_a.sql").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, apply(context.Background(), db, dir, "001_a.sql"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_RollsBackOnError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_a.sql"), []byte("CREATE TABLE a (id INT);"), 0o644))

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE a").WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	assert.ErrorContains(t, apply(context.Background(), db, dir, "001_a.sql"), "syntax error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppliedVersions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT version FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("001_a.sql"))

	got, err := appliedVersions(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"001_a.sql": true}, got)
}
