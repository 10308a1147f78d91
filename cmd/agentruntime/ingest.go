package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

type ingestOptions struct {
	character string
	shared    bool
	cleanup   bool
	store     storeOptions
}

func newIngestCmd(root *rootOptions) *cobra.Command {
	opts := &ingestOptions{}
	cmd := &cobra.Command{
		Use:   "ingest PATH...",
		Short: "Load knowledge files or directories into the RAG store",
		Long: "Each PATH is resolved against runtime.knowledge_root. Directories are walked\n" +
			"recursively for .md, .txt and .pdf files; unchanged files are skipped.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), root, opts, args, cmd.OutOrStdout())
		},
	}
	addCharacterFlags(cmd, &opts.character, &opts.store)
	cmd.Flags().BoolVar(&opts.shared, "shared", false, "Store as knowledge shared by every agent")
	cmd.Flags().BoolVar(&opts.cleanup, "cleanup", false, "Remove knowledge whose source file no longer exists")
	return cmd
}

func runIngest(ctx context.Context, root *rootOptions, opts *ingestOptions, paths []string, out io.Writer) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	logger, err := initLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	a, err := newApp(ctx, cfg, opts.character, opts.store, logger)
	if err != nil {
		return err
	}
	defer a.close()

	km := a.runtime.KnowledgeManager()

	var errs []error
	for _, p := range paths {
		full := p
		if !filepath.IsAbs(full) && cfg.Runtime.KnowledgeRoot != "" {
			full = filepath.Join(cfg.Runtime.KnowledgeRoot, p)
		}
		info, err := os.Stat(full)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if info.IsDir() {
			stats, err := km.ProcessDirectory(ctx, p, opts.shared)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", p, err))
				continue
			}
			fmt.Fprintf(out, "%s: %d processed, %d skipped, %d failed\n", p, stats.Processed, stats.Skipped, stats.Failed)
			continue
		}
		if err := km.IngestPath(ctx, p, opts.shared); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}
		fmt.Fprintf(out, "%s: ingested\n", p)
	}

	if opts.cleanup {
		removed, err := km.CleanupDeletedKnowledgeFiles(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("cleanup: %w", err))
		} else {
			fmt.Fprintf(out, "removed %d stale documents\n", removed)
		}
	}
	return errors.Join(errs...)
}
