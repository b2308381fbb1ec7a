package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/afterimage-mcp/internal/engine"
	"github.com/dshills/afterimage-mcp/internal/hook"
	"github.com/dshills/afterimage-mcp/internal/logging"
)

const defaultHookTimeout = 10 * time.Second

func newHookCmd(flags *globalFlags) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Handle a PreToolUse or PostToolUse hook event from stdin",
		Long: `Reads one hook payload from stdin. Before a Write or Edit the first attempt
is denied with related code from earlier edits; after one the new code is
remembered. The command always exits 0 so that it never blocks a tool call.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				logging.New(logging.Config{Output: cmd.ErrOrStderr()}).Warn("hook skipped", "err", err)
				return nil
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())

			eng, err := engine.New(cfg, logger)
			if err != nil {
				logger.Warn("hook skipped", "err", err)
				return nil
			}
			defer func() { _ = eng.Close() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			seen := hook.NewSeenWrites(cfg.Hook.SeenWritesPath, cfg.Hook.SeenWindow)
			h := hook.NewHandler(eng, seen, logger)
			if err := h.Handle(ctx, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
				logger.Warn("hook failed", "err", err)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", defaultHookTimeout, "Give up on the event after this long")
	return cmd
}
