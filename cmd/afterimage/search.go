package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/afterimage-mcp/internal/searcher"
	"github.com/dshills/afterimage-mcp/internal/storage"
)

type searchOptions struct {
	limit      int
	threshold  float64
	pathFilter string
	mode       string
	asJSON     bool
}

func newSearchCmd(flags *globalFlags) *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search remembered code",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := searcher.SearchMode(opts.mode)
			switch mode {
			case searcher.SearchModeHybrid, searcher.SearchModeVector, searcher.SearchModeKeyword:
			default:
				return fmt.Errorf("invalid --mode %q: want hybrid, vector or keyword", opts.mode)
			}

			eng, err := flags.openEngine(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			resp, err := eng.Searcher.Search(cmd.Context(), searcher.Request{
				Query:      strings.Join(args, " "),
				Limit:      opts.limit,
				Threshold:  opts.threshold,
				PathFilter: opts.pathFilter,
				Mode:       mode,
			})
			if err != nil {
				return err
			}
			if resp.SemanticError != nil {
				eng.Logger.Warn("semantic search unavailable, showing keyword matches", "err", resp.SemanticError)
			}

			if opts.asJSON {
				items := make([]exportEntry, 0, len(resp.Results))
				for _, r := range resp.Results {
					item := newExportEntry(r.Entry)
					item.Score = r.Score
					items = append(items, item)
				}
				return writeJSON(cmd.OutOrStdout(), items)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SCORE\tFTS\tSEMANTIC\tFILE\tWHEN\tSNIPPET")
			for _, r := range resp.Results {
				fmt.Fprintf(w, "%.3f\t%.3f\t%.3f\t%s\t%s\t%s\n",
					r.Score, r.FTSScore, r.SemanticScore, r.Entry.FilePath, age(r.Entry.Timestamp), firstLine(r.Entry.NewCode))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", 0, "Minimum score (default from search.threshold)")
	cmd.Flags().StringVar(&opts.pathFilter, "path", "", "Only match file paths containing this text")
	cmd.Flags().StringVar(&opts.mode, "mode", string(searcher.SearchModeHybrid), "Search mode (hybrid, vector, keyword)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print results as JSON")
	return cmd
}

func newRecentCmd(flags *globalFlags) *cobra.Command {
	var (
		limit   int
		session string
		path    string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List the most recently remembered code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := flags.openEngine(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			var entries []*storage.MemoryEntry
			switch {
			case session != "" && path != "":
				return errors.New("--session and --path are mutually exclusive")
			case session != "":
				entries, err = eng.Storage.BySession(cmd.Context(), session, limit)
			case path != "":
				entries, err = eng.Storage.SearchByPath(cmd.Context(), path, limit)
			default:
				entries, err = eng.Storage.Recent(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}

			if asJSON {
				items := make([]exportEntry, 0, len(entries))
				for _, e := range entries {
					items = append(items, newExportEntry(e))
				}
				return writeJSON(cmd.OutOrStdout(), items)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tSESSION\tFILE\tSNIPPET")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", age(e.Timestamp), e.SessionID, e.FilePath, firstLine(e.NewCode))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of entries")
	cmd.Flags().StringVar(&session, "session", "", "Only list entries from this session")
	cmd.Flags().StringVar(&path, "path", "", "Only list entries whose file path contains this text")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON")
	return cmd
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// firstLine returns the first non-blank line of code, shortened for tables
func firstLine(code string) string {
	const maxRunes = 60
	for _, line := range strings.Split(code, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if r := []rune(line); len(r) > maxRunes {
			return string(r[:maxRunes-3]) + "..."
		}
		return line
	}
	return ""
}

func age(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
