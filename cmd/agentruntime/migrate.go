package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/agentruntime/config"
	"github.com/BaSui01/agentruntime/internal/database"
	"github.com/BaSui01/agentruntime/internal/migration"
)

// =============================================================================
// 🗃️ 数据库迁移命令
// =============================================================================

type migrateOptions struct {
	dbType string
	dbURL  string
}

func newMigrateCmd(root *rootOptions) *cobra.Command {
	opts := &migrateOptions{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the postgres/mysql schema",
		Long: "Applies the embedded SQL migrations with golang-migrate.\n" +
			"SQLite databases are created by auto-migrate at startup and need no migrations.",
		Example: "  agentruntime migrate up\n" +
			"  agentruntime migrate status --config /etc/agentruntime/config.yaml\n" +
			"  agentruntime migrate goto 1 --db-type postgres --db-url postgres://localhost/agent",
	}
	cmd.PersistentFlags().StringVar(&opts.dbType, "db-type", "", "Database type: postgres, mysql (default: from config)")
	cmd.PersistentFlags().StringVar(&opts.dbURL, "db-url", "", "Database connection URL (default: from config)")

	run := func(fn func(ctx context.Context, c *migration.CLI, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			return runMigration(cmd.Context(), root, opts, cmd.OutOrStdout(), func(ctx context.Context, c *migration.CLI) error {
				return fn(ctx, c, args)
			})
		}
	}

	var downAll bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, c *migration.CLI, _ []string) error {
			return c.RunDown(ctx, downAll)
		}),
	}
	down.Flags().BoolVar(&downAll, "all", false, "Roll back every migration")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, c *migration.CLI, _ []string) error {
				return c.RunUp(ctx)
			}),
		},
		down,
		&cobra.Command{
			Use:   "steps N",
			Short: "Apply (N > 0) or roll back (N < 0) N migrations; pass negative N after --",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(ctx context.Context, c *migration.CLI, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid step count %q: %w", args[0], err)
				}
				return c.RunSteps(ctx, n)
			}),
		},
		&cobra.Command{
			Use:   "goto VERSION",
			Short: "Migrate up or down to VERSION",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(ctx context.Context, c *migration.CLI, args []string) error {
				v, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return c.RunGoto(ctx, uint(v))
			}),
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Set the recorded version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(ctx context.Context, c *migration.CLI, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return c.RunForce(ctx, v)
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show the current schema version",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, c *migration.CLI, _ []string) error {
				return c.RunVersion(ctx)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "List applied and pending migrations",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, c *migration.CLI, _ []string) error {
				return c.RunStatus(ctx)
			}),
		},
	)
	return cmd
}

// runMigration 构造 migrator 并执行 fn。sqlite 直接提示使用 auto migrate 并成功返回。
func runMigration(ctx context.Context, root *rootOptions, opts *migrateOptions, out io.Writer,
	fn func(ctx context.Context, c *migration.CLI) error) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	logger, err := initLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	migrator, err := newMigrator(opts, cfg, logger)
	if errors.Is(err, migration.ErrUseAutoMigrate) {
		fmt.Fprintln(out, "sqlite schema is created automatically at startup; nothing to migrate")
		return nil
	}
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer migrator.Close()

	c := migration.NewCLI(migrator)
	c.SetOutput(out)
	return fn(ctx, c)
}

// newMigrator 优先使用 --db-type/--db-url，否则读取 database 配置
func newMigrator(opts *migrateOptions, cfg *config.Config, logger *zap.Logger) (*migration.DefaultMigrator, error) {
	dbType := cfg.Database.Driver
	if opts.dbType != "" {
		dbType = opts.dbType
	}
	dialect, err := database.ParseDialect(dbType)
	if err != nil {
		return nil, err
	}
	if dialect == database.DialectSQLite {
		return nil, migration.ErrUseAutoMigrate
	}
	if opts.dbURL != "" {
		return migration.NewMigratorFromURL(string(dialect), opts.dbURL, logger)
	}
	dbCfg := cfg.Database
	dbCfg.Driver = string(dialect)
	return migration.NewMigratorFromDatabaseConfig(dbCfg, logger)
}
