package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/afterimage-mcp/internal/engine"
	"github.com/dshills/afterimage-mcp/internal/injector"
)

type injectOptions struct {
	filePath    string
	contentFile string
	toolType    string
	projectRoot string
	limit       int
	asJSON      bool
}

func newInjectCmd(flags *globalFlags) *cobra.Command {
	opts := &injectOptions{}

	cmd := &cobra.Command{
		Use:   "inject",
		Short: "Print the context that would be injected before writing a file",
		Long: `Builds the injection for code about to be written. The code is read from
--content-file, or from stdin when the flag is omitted or "-".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tool := injector.ToolType(opts.toolType)
			if tool != injector.ToolWrite && tool != injector.ToolEdit {
				return fmt.Errorf("invalid --tool %q: want Write or Edit", opts.toolType)
			}
			content, err := readContent(cmd, opts.contentFile)
			if err != nil {
				return err
			}

			eng, err := flags.openEngine(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			res, err := eng.BuildContext(cmd.Context(), engine.ContextRequest{
				FilePath:    opts.filePath,
				Content:     content,
				ToolType:    tool,
				ProjectRoot: opts.projectRoot,
				Limit:       opts.limit,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]interface{}{
					"text":              res.Text,
					"query":             res.Query,
					"candidates":        res.Candidates,
					"snippets_included": res.SnippetsIncluded,
					"tokens_used":       res.TokensUsed,
					"truncated":         res.Truncated,
					"degraded":          res.Degraded,
				})
			}
			if res.IsEmpty() {
				eng.Logger.Info("nothing to inject", "query", res.Query, "candidates", res.Candidates)
				return nil
			}
			_, err = io.WriteString(out, res.Text)
			return err
		},
	}

	cmd.Flags().StringVarP(&opts.filePath, "file", "f", "", "Path of the file being written")
	cmd.Flags().StringVar(&opts.contentFile, "content-file", "", "Read the new code from this file instead of stdin")
	cmd.Flags().StringVar(&opts.toolType, "tool", string(injector.ToolWrite), "Tool performing the write (Write or Edit)")
	cmd.Flags().StringVar(&opts.projectRoot, "project-root", "", "Project root for proximity scoring (detected when empty)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Memories considered (default from search.limit)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the result as JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readContent(cmd *cobra.Command, path string) (string, error) {
	if path != "" && path != "-" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read content: %w", err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}
