package migration

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/agentruntime/config"
)

// NewMigratorFromConfig creates a migrator from application configuration
func NewMigratorFromConfig(cfg *config.Config, logger *zap.Logger) (*DefaultMigrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	return NewMigratorFromDatabaseConfig(cfg.Database, logger)
}

// NewMigratorFromDatabaseConfig creates a migrator from database configuration.
// sqlite 返回 ErrUseAutoMigrate。
func NewMigratorFromDatabaseConfig(dbCfg config.DatabaseConfig, logger *zap.Logger) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(dbCfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}
	if dbType == DatabaseTypeSQLite {
		return nil, ErrUseAutoMigrate
	}

	// MigrationURL 按 config 中的规范驱动名拼接
	dbCfg.Driver = string(dbType)
	return NewMigrator(&Config{
		DatabaseType: dbType,
		DatabaseURL:  dbCfg.MigrationURL(),
		TableName:    "schema_migrations",
		Logger:       logger,
	})
}

// NewMigratorFromURL creates a migrator from a database URL
func NewMigratorFromURL(dbType, dbURL string, logger *zap.Logger) (*DefaultMigrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}
	return NewMigrator(&Config{
		DatabaseType: dt,
		DatabaseURL:  dbURL,
		TableName:    "schema_migrations",
		Logger:       logger,
	})
}
