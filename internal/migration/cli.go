package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// CLI 为 cmd/agentruntime migrate 子命令提供格式化输出
type CLI struct {
	migrator Migrator
	output   io.Writer
}

// NewCLI creates a new CLI instance writing to stdout
func NewCLI(migrator Migrator) *CLI {
	return &CLI{migrator: migrator, output: os.Stdout}
}

// SetOutput sets the output writer for CLI messages
func (c *CLI) SetOutput(w io.Writer) {
	c.output = w
}

func (c *CLI) printVersion(ctx context.Context, verb string) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "%s. schema version %d (%d pending)\n", verb, info.CurrentVersion, info.PendingMigrations)
	return nil
}

// RunUp applies every pending migration
func (c *CLI) RunUp(ctx context.Context) error {
	if err := c.migrator.Up(ctx); err != nil {
		return err
	}
	return c.printVersion(ctx, "Migrated")
}

// RunDown rolls back one migration, or all of them when all is set
func (c *CLI) RunDown(ctx context.Context, all bool) error {
	var err error
	if all {
		err = c.migrator.DownAll(ctx)
	} else {
		err = c.migrator.Down(ctx)
	}
	if err != nil {
		return err
	}
	return c.printVersion(ctx, "Rolled back")
}

// RunSteps applies (n > 0) or rolls back (n < 0) n migrations
func (c *CLI) RunSteps(ctx context.Context, n int) error {
	if n == 0 {
		return fmt.Errorf("steps must be non-zero")
	}
	if err := c.migrator.Steps(ctx, n); err != nil {
		return err
	}
	return c.printVersion(ctx, "Stepped")
}

// RunGoto migrates up or down to version
func (c *CLI) RunGoto(ctx context.Context, version uint) error {
	if err := c.migrator.Goto(ctx, version); err != nil {
		return err
	}
	return c.printVersion(ctx, "Moved")
}

// RunForce records version as applied and clears the dirty flag
func (c *CLI) RunForce(ctx context.Context, version int) error {
	if err := c.migrator.Force(ctx, version); err != nil {
		return err
	}
	fmt.Fprintf(c.output, "Version forced to %d\n", version)
	return nil
}

// RunVersion shows the current migration version
func (c *CLI) RunVersion(ctx context.Context) error {
	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return err
	}
	switch {
	case version == 0:
		fmt.Fprintln(c.output, "No migrations applied yet.")
	case dirty:
		fmt.Fprintf(c.output, "Current version: %d (dirty)\n", version)
	default:
		fmt.Fprintf(c.output, "Current version: %d\n", version)
	}
	return nil
}

// RunStatus prints one row per embedded migration followed by a summary
func (c *CLI) RunStatus(ctx context.Context) error {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		fmt.Fprintln(c.output, "No migrations found.")
		return nil
	}

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATUS")
	for _, s := range statuses {
		status := "pending"
		switch {
		case s.Dirty:
			status = "dirty"
		case s.Applied:
			status = "applied"
		}
		fmt.Fprintf(w, "%06d\t%s\t%s\n", s.Version, s.Name, status)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "\nTotal: %d, Applied: %d, Pending: %d\n",
		info.TotalMigrations, info.AppliedMigrations, info.PendingMigrations)
	return nil
}
