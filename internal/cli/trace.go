package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/aiguard/internal/ir"
	"github.com/roach88/aiguard/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string
	Contract string
	Limit    int
}

// TraceResult holds the listing output of the trace command.
type TraceResult struct {
	Contract string               `json:"contract,omitempty"`
	Runs     []store.Run          `json:"runs"`
	Outcomes []store.OutcomeCount `json:"outcomes"`
	Stats    []store.FieldStat    `json:"stats"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect recorded validation runs",
		Long: `Query the audit database written by validate --db or events.store_path.

With --run, shows one run: its path, outcome, record and the field
events explaining what was repaired or defaulted. Otherwise lists the
most recent runs, optionally for one contract, followed by run counts
per outcome and per-field outcome counts.

Examples:
  aiguard trace --db ./audit.db
  aiguard trace --db ./audit.db --contract summary --limit 20
  aiguard trace --db ./audit.db --run 0192f0c4-7d1e-7c3a-9b8e-3f1a2b4c5d6e
  aiguard trace --db ./audit.db --contract tags --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show a single run by id")
	cmd.Flags().StringVar(&opts.Contract, "contract", "", "only runs of this contract")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum runs to list (0 for all)")
	cmd.MarkFlagsMutuallyExclusive("run", "contract")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd)

	// store.Open creates missing files; a typo should not leave an empty database behind.
	if _, err := os.Stat(opts.Database); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.Database), nil)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, fmt.Sprintf("failed to open database: %v", err), nil)
	}
	defer st.Close()

	if opts.RunID != "" {
		return traceRun(ctx, st, opts.RunID, formatter)
	}

	runs, err := st.ListRuns(ctx, opts.Contract, opts.Limit)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}
	outcomes, err := st.OutcomeCounts(ctx, opts.Contract)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}
	stats, err := st.FieldStats(ctx, opts.Contract)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}

	result := TraceResult{Contract: opts.Contract, Runs: runs, Outcomes: outcomes, Stats: stats}
	if formatter.JSON() {
		return formatter.Encode(CLIResponse{Status: "ok", Data: result})
	}
	return outputTraceText(formatter, result)
}

func traceRun(ctx context.Context, st *store.Store, id string, f *OutputFormatter) error {
	run, err := st.ReadRun(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("run not found: %s", id), nil)
	}
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}

	if f.JSON() {
		return f.Encode(CLIResponse{Status: "ok", Data: run, RunID: run.ID})
	}
	return outputRunText(f, run)
}

func outputRunText(f *OutputFormatter, run store.Run) error {
	w := f.Writer
	fmt.Fprintf(w, "run:        %s (seq %d)\n", run.ID, run.Seq)
	fmt.Fprintf(w, "contract:   %s (%s)\n", run.ContractID, run.Strictness)
	fmt.Fprintf(w, "outcome:    %s\n", run.Outcome)
	fmt.Fprintf(w, "path:       %s\n", strings.Join(run.Path, " -> "))
	if run.ParseError != "" {
		fmt.Fprintf(w, "parse error: %s\n", run.ParseError)
	}
	if run.RecordDefault {
		fmt.Fprintf(w, "reason:     %s\n", run.RecordDefaultReason)
	}
	if len(run.Dropped) > 0 {
		fmt.Fprintf(w, "dropped:    %s\n", strings.Join(run.Dropped, ", "))
	}
	if f.Verbose {
		fmt.Fprintf(w, "input:      %s\n", run.InputDigest)
		fmt.Fprintf(w, "digest:     %s\n", run.RecordDigest)
	}

	record, err := ir.MarshalCanonical(run.Record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	fmt.Fprintf(w, "record:     %s\n", record)

	if len(run.Events) == 0 {
		return nil
	}
	fmt.Fprintln(w, "\nField events:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  FIELD\tOUTCOME\tKIND\tDETAIL")
	for _, e := range run.Events {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", e.Field, e.Outcome, dash(e.Kind), dash(e.Detail))
	}
	return tw.Flush()
}

// outputTraceText prints the run listing and field statistics.
func outputTraceText(f *OutputFormatter, result TraceResult) error {
	w := f.Writer
	if len(result.Runs) == 0 {
		if result.Contract != "" {
			fmt.Fprintf(w, "No runs found for contract: %s\n", result.Contract)
		} else {
			fmt.Fprintln(w, "No runs found.")
		}
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tRUN\tCONTRACT\tSTRICTNESS\tOUTCOME")
	for _, r := range result.Runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.Seq, r.ID, r.ContractID, r.Strictness, r.Outcome)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w, "\nRun outcomes:")
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  CONTRACT\tOUTCOME\tCOUNT")
	for _, oc := range result.Outcomes {
		fmt.Fprintf(tw, "  %s\t%s\t%d\n", oc.Contract, oc.Outcome, oc.Count)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(result.Stats) == 0 {
		return nil
	}
	fmt.Fprintln(w, "\nField outcomes:")
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  FIELD\tOUTCOME\tCOUNT")
	for _, s := range result.Stats {
		fmt.Fprintf(tw, "  %s\t%s\t%d\n", s.Field, s.Outcome, s.Count)
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
