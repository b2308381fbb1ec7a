package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/afterimage-mcp/internal/config"
	"github.com/dshills/afterimage-mcp/internal/ingest"
	"github.com/dshills/afterimage-mcp/internal/storage"
)

func newStatsCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show knowledge base statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := flags.openEngine(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			stats, err := eng.Storage.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), stats)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Database:\t%s\n", eng.Config.Storage.Path)
			fmt.Fprintf(w, "Schema:\t%s (%s)\n", stats.SchemaVersion, stats.BuildMode)
			fmt.Fprintf(w, "Size:\t%.2f MB\n", float64(stats.DBSizeBytes)/(1024*1024))
			fmt.Fprintf(w, "Entries:\t%d\n", stats.TotalEntries)
			fmt.Fprintf(w, "With embeddings:\t%d\n", stats.WithEmbeddings)
			fmt.Fprintf(w, "Files:\t%d\n", stats.UniqueFiles)
			fmt.Fprintf(w, "Sessions:\t%d\n", stats.UniqueSessions)
			if stats.OldestEntry != nil && stats.NewestEntry != nil {
				fmt.Fprintf(w, "Oldest:\t%s\n", stats.OldestEntry.Local().Format(time.DateTime))
				fmt.Fprintf(w, "Newest:\t%s\n", stats.NewestEntry.Local().Format(time.DateTime))
			}
			fmt.Fprintf(w, "Embedder:\t%s/%s (%d dims)\n", eng.Embedder.Provider(), eng.Embedder.Model(), eng.Embedder.Dimension())
			fmt.Fprintf(w, "Token estimator:\t%s\n", eng.Estimator.Name())
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print statistics as JSON")
	return cmd
}

func newIngestCmd(flags *globalFlags) *cobra.Command {
	cfg := &ingest.Config{}

	cmd := &cobra.Command{
		Use:   "ingest <dir>",
		Short: "Seed the knowledge base with the code files under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := flags.openEngine(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			res, err := eng.Ingest(cmd.Context(), args[0], cfg)
			if err != nil {
				return err
			}

			eng.Logger.Info("ingest complete",
				"seen", res.Seen,
				"stored", res.Stored,
				"unchanged", res.Unchanged,
				"skipped", res.Skipped,
				"failed", res.Failed,
				"embed_failures", res.EmbedFailures,
				"duration", res.Duration.Round(time.Millisecond))
			for _, msg := range res.ErrorMessages {
				eng.Logger.Warn(msg)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %d of %d files (%d unchanged, %d skipped, %d failed)\n",
				res.Stored, res.Seen, res.Unchanged, res.Skipped, res.Failed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&cfg.SkipEmbeddings, "no-embeddings", false, "Store without vectors (keyword search only)")
	cmd.Flags().IntVar(&cfg.Workers, "workers", runtime.NumCPU(), "Concurrent batches")
	cmd.Flags().IntVar(&cfg.BatchSize, "batch-size", 20, "Files per embedding batch and transaction")
	cmd.Flags().Int64Var(&cfg.MaxFileBytes, "max-file-bytes", ingest.DefaultMaxFileBytes, "Skip files larger than this")
	cmd.Flags().StringVar(&cfg.SessionID, "session", "", "Session id recorded on the ingested memories")
	return cmd
}

// exportEntry is the JSON form of a memory, without its vector
type exportEntry struct {
	ID        string    `json:"id"`
	FilePath  string    `json:"file_path"`
	OldCode   string    `json:"old_code,omitempty"`
	NewCode   string    `json:"new_code"`
	Context   string    `json:"context,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id,omitempty"`
	Model     string    `json:"embedding_model,omitempty"`
	Score     float64   `json:"score,omitempty"`
}

func newExportEntry(e *storage.MemoryEntry) exportEntry {
	return exportEntry{
		ID:        e.ID,
		FilePath:  e.FilePath,
		OldCode:   e.OldCode,
		NewCode:   e.NewCode,
		Context:   e.Context,
		Timestamp: e.Timestamp,
		SessionID: e.SessionID,
		Model:     e.EmbeddingModel,
	}
}

func newExportCmd(flags *globalFlags) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every memory as JSON, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			eng, err := flags.openEngine(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			entries, err := eng.Storage.Export(cmd.Context())
			if err != nil {
				return err
			}
			items := make([]exportEntry, 0, len(entries))
			for _, e := range entries {
				items = append(items, newExportEntry(e))
			}

			if output == "" || output == "-" {
				return writeJSON(cmd.OutOrStdout(), items)
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			defer func() { err = errors.Join(err, f.Close()) }()

			if err := writeJSON(f, items); err != nil {
				return err
			}
			eng.Logger.Info("exported", "entries", len(items), "file", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}

func newClearCmd(flags *globalFlags) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every memory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to clear the knowledge base without --yes")
			}
			eng, err := flags.openEngine(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			n, err := eng.Storage.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d memories\n", n)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm deletion")
	return cmd
}

func newConfigCmd(flags *globalFlags) *cobra.Command {
	var initFile, force bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as JSON",
		Long: `Print the effective configuration as JSON.

With --init, write the default configuration as YAML to the config path
(--config, $AFTERIMAGE_CONFIG or ~/.afterimage/config.yaml) instead. An
existing file is left alone unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if force && !initFile {
				return errors.New("--force requires --init")
			}
			if initFile {
				path, err := config.WriteDefault(flags.configPath, force)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
				return err
			}

			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			data, err := cfg.JSON()
			if err != nil {
				return err
			}
			if cfg.Path != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "# %s\n", cfg.Path)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}

	cmd.Flags().BoolVar(&initFile, "init", false, "Write the default configuration file")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file with --init")
	return cmd
}
