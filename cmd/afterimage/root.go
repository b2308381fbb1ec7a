package main

import (
	"fmt"
	"io"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dshills/afterimage-mcp/internal/config"
	"github.com/dshills/afterimage-mcp/internal/engine"
	"github.com/dshills/afterimage-mcp/internal/logging"
	"github.com/dshills/afterimage-mcp/internal/storage"
)

// globalFlags are shared by every subcommand
type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "afterimage",
		Short: "Code memory for AI coding assistants",
		Long: `AfterImage remembers code written in earlier sessions and injects the
most relevant pieces before new code is written.`,
		Version:       fmt.Sprintf("%s (built %s, %s sqlite)", version, buildTime, storage.BuildMode),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "Config file (default $AFTERIMAGE_CONFIG or ~/.afterimage/config.yaml)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")

	root.AddCommand(
		newHookCmd(flags),
		newServeCmd(flags),
		newInjectCmd(flags),
		newSearchCmd(flags),
		newRecentCmd(flags),
		newStatsCmd(flags),
		newIngestCmd(flags),
		newExportCmd(flags),
		newClearCmd(flags),
		newConfigCmd(flags),
	)
	return root
}

// loadConfig reads the configuration and applies flag overrides
func (f *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		if _, err := logging.ParseLevel(f.logLevel); err != nil {
			return nil, err
		}
		cfg.Logging.Level = f.logLevel
	}
	return cfg, nil
}

// newLogger builds the stderr logger; stdout is reserved for command output
func newLogger(cfg *config.Config, errOut io.Writer) *charmlog.Logger {
	return logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		JSON:   cfg.Logging.JSON,
		Output: errOut,
	})
}

// openEngine loads the configuration and builds an engine from it. The
// caller must Close the engine.
func (f *globalFlags) openEngine(cmd *cobra.Command) (*engine.Engine, error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, err
	}
	return engine.New(cfg, newLogger(cfg, cmd.ErrOrStderr()))
}
