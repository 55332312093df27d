package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/labtrend/labtrend/internal/domain/records"
	"github.com/labtrend/labtrend/internal/loader"
	"github.com/labtrend/labtrend/internal/platform/reporting"
)

const notFoundMessage = "Test not found. Try 'list tests' to see all available tests."

func loadCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Parse the data folder and print a load summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())

			l, _, err := newLoader(cfg, logger)
			if err != nil {
				return err
			}
			batch, err := l.Load(cmd.Context(), cfg.DataDir)
			if err != nil {
				return userError(cfg, err)
			}
			printSummary(cmd.OutOrStdout(), batch.Summary)
			return nil
		},
	}
}

func printSummary(w io.Writer, sum loader.Summary) {
	fmt.Fprintf(w, "Loaded %d unique test types from %d file(s)\n", sum.Names, sum.Files)
	fmt.Fprintf(w, "Total entries: %d\n", sum.Entries)
	fmt.Fprintf(w, "Files: %d parsed, %d empty, %d skipped, %d failed\n",
		sum.Parsed, sum.Empty, sum.Skipped, sum.Failed)
	for _, res := range sum.Results {
		switch res.Status {
		case loader.FileFailed, loader.FileSkipped:
			fmt.Fprintf(w, "  %s %s: %v\n", res.Status, res.Name, res.Err)
		}
	}
}

func listCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every record series",
		RunE: func(cmd *cobra.Command, args []string) error {
			category, _ := cmd.Flags().GetString("category")
			cat := reporting.Category(category)
			if cat != "" && cat != reporting.CategoryBlood && cat != reporting.CategoryOther {
				return fmt.Errorf("unknown category %q: use blood or other", category)
			}

			svc, err := cliService(cmd, flags)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatSummaries(svc.Names(cat)))
			return nil
		},
	}
	cmd.Flags().String("category", "", "Only list blood or other tests")
	return cmd
}

func formatSummaries(series []records.SeriesSummary) string {
	lines := []string{fmt.Sprintf("Available tests (%d):", len(series))}
	for i, s := range series {
		lines = append(lines, fmt.Sprintf("  %d. %s (%d entries)", i+1, s.Name, s.Count))
	}
	return strings.Join(lines, "\n")
}

func queryCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "query <text>",
		Short: "Find the series matching free text and print them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := cliService(cmd, flags)
			if err != nil {
				return err
			}
			res, err := svc.Query(strings.Join(args, " "))
			if errors.Is(err, records.ErrNoMatch) {
				return errors.New(notFoundMessage)
			}
			if err != nil {
				return err
			}
			printMatches(cmd.OutOrStdout(), res)
			return nil
		},
	}
}

func printMatches(w io.Writer, res *records.QueryResult) {
	if len(res.Matches) == 1 {
		m := res.Matches[0]
		fmt.Fprintf(w, "--- %s ---\n%s\n", m.Name, reporting.FormatSeries(m.Entries))
		return
	}
	fmt.Fprintf(w, "--- Found %d matching tests ---\n\n", len(res.Matches))
	for _, m := range res.Matches {
		fmt.Fprintf(w, "=== %s ===\n%s\n\n", m.Name, reporting.FormatSeries(m.Entries))
	}
}

func abnormalCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "abnormal",
		Short: "Show every entry flagged Low, High or Critical",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := cliService(cmd, flags)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reporting.FormatAbnormal(svc.Abnormal()))
			return nil
		},
	}
}

func chartCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chart <name>",
		Short: "Print the trend chart data of one series as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := cliService(cmd, flags)
			if err != nil {
				return err
			}
			ch, err := svc.Chart(args[0])
			if err != nil {
				return fmt.Errorf("chart %q: %w", args[0], err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(ch)
		},
	}
}

func shellCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive query loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := cliService(cmd, flags)
			if err != nil {
				return err
			}
			return runShell(cmd.InOrStdin(), cmd.OutOrStdout(), svc)
		},
	}
}

// runShell answers one query per input line until exit or end of input.
func runShell(in io.Reader, out io.Writer, svc *records.Service) error {
	status := svc.Status()
	fmt.Fprintf(out, "Loaded %d unique test types\nTotal entries: %d\n", status.Names, status.Entries)
	if status.Names == 0 {
		fmt.Fprintln(out, "No test data loaded. Exiting.")
		return nil
	}
	fmt.Fprintln(out, "Commands: a test name, 'list tests', 'abnormal', 'exit'")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "Question: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		query := strings.TrimSpace(scanner.Text())
		lower := strings.ToLower(query)

		switch {
		case query == "":
			continue
		case lower == "exit" || lower == "quit":
			fmt.Fprintln(out, "Exiting. Stay healthy!")
			return nil
		case strings.Contains(lower, "list tests"):
			fmt.Fprintln(out, reporting.ListNames(svc.Corpus()))
		case strings.Contains(lower, "abnormal"):
			fmt.Fprintln(out, reporting.FormatAbnormal(svc.Abnormal()))
		default:
			res, err := svc.Query(query)
			if err != nil {
				fmt.Fprintln(out, notFoundMessage)
				continue
			}
			printMatches(out, res)
		}
		fmt.Fprintln(out)
	}
}

// cliService loads the data folder for a one-shot command.
func cliService(cmd *cobra.Command, flags *rootFlags) (*records.Service, error) {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return nil, err
	}
	return loadService(cmd.Context(), cfg, newLogger(cfg, cmd.ErrOrStderr()), nil)
}
