package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lifelink/lifelink/internal/app"
)

func TestConvertDatabaseConfigDefaultsToSQLite(t *testing.T) {
	cfg := &app.Config{}
	dbCfg := convertDatabaseConfig(cfg)
	require.Equal(t, "sqlite", dbCfg.Driver)
}

func TestConvertDatabaseConfigPostgres(t *testing.T) {
	cfg := &app.Config{}
	cfg.Database.Driver = "PostgreSQL"
	cfg.Database.Postgres = app.DBAuthConfig{
		Host:     " db.internal ",
		Port:     5432,
		Database: "lifelink",
		Username: "lifelink",
		Password: "secret",
	}

	dbCfg := convertDatabaseConfig(cfg)
	require.Equal(t, "postgres", dbCfg.Driver)
	require.Equal(t, "db.internal", dbCfg.Host)
	require.Equal(t, 5432, dbCfg.Port)
	require.Equal(t, "lifelink", dbCfg.Name)
	require.Equal(t, "lifelink", dbCfg.User)
	require.Equal(t, "secret", dbCfg.Password)
}

func TestConvertDatabaseConfigUnsupportedDriverPassesThrough(t *testing.T) {
	cfg := &app.Config{}
	cfg.Database.Driver = "oracle"
	require.Equal(t, "oracle", convertDatabaseConfig(cfg).Driver)
}

func TestLoadApplicationConfigMissingPath(t *testing.T) {
	_, err := loadApplicationConfig("/does/not/exist")
	require.Error(t, err)
}

func TestLoadApplicationConfigFromDir(t *testing.T) {
	cfg, err := loadApplicationConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 8000, cfg.Server.Port)
}
