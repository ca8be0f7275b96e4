package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stresstest-server/confs"
)

func TestConnectMemory(t *testing.T) {
	database, err := Connect(confs.DatabaseConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.Nil(t, database)
}

func TestConnectSQLite(t *testing.T) {
	database, err := Connect(confs.DatabaseConfig{Driver: "sqlite", DSN: "file:connect_test?mode=memory&cache=shared"})
	require.NoError(t, err)
	require.NotNil(t, database)

	gdb := database.(*GormDatabase)
	assert.NoError(t, gdb.Ping())
	assert.True(t, gdb.GetDB().Migrator().HasTable("stress_tests"))
	assert.True(t, gdb.GetDB().Migrator().HasTable("users"))
}

func TestDialectorErrors(t *testing.T) {
	_, err := dialectorFor(confs.DatabaseConfig{Driver: "mysql"})
	assert.ErrorContains(t, err, "database.dsn is required")

	_, err = dialectorFor(confs.DatabaseConfig{Driver: "oracle"})
	assert.ErrorContains(t, err, "unsupported database driver")

	_, err = dialectorFor(confs.DatabaseConfig{Driver: "postgres", Host: "db"})
	assert.ErrorContains(t, err, "missing required database configuration")
}

func TestPostgresDSN(t *testing.T) {
	dsn, err := postgresDSN(confs.DatabaseConfig{URL: "postgres://u:p@host/db"})
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@host/db?sslmode=require", dsn)

	dsn, err = postgresDSN(confs.DatabaseConfig{URL: "postgres://u:p@host/db?sslmode=disable"})
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@host/db?sslmode=disable", dsn)

	dsn, err = postgresDSN(confs.DatabaseConfig{Host: "localhost", Port: "5432", User: "u", Password: "p", Name: "st"})
	require.NoError(t, err)
	assert.Contains(t, dsn, "sslmode=disable")
}
