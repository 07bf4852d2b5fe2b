package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/aiguard/internal/contract"
	"github.com/roach88/aiguard/internal/guard"
	"github.com/roach88/aiguard/internal/ir"
	"github.com/roach88/aiguard/internal/metrics"
	"github.com/roach88/aiguard/internal/pipeline"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Strictness string
	Contracts  string // overrides contracts.dir
	Database   string // overrides events.store_path
	Metrics    bool   // dump collected metrics to stderr
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <contract> [file|-]",
		Short: "Validate one AI output against a contract",
		Long: `Validate a raw AI output against a registered contract.

The output is read from the file argument, or from stdin when the file
is omitted or "-". The printed record always satisfies the contract;
the trace shows what was repaired or defaulted on the way.

Exit codes:
  0 - Record produced from the payload (clean, repaired or defaulted)
  1 - Payload unusable, the full-record default was returned
  2 - Command error (unknown contract, bad strictness, unreadable input)

Examples:
  aiguard validate tags output.json
  echo '["Go","go"]' | aiguard validate tags
  aiguard validate summary out.txt --strictness strict --format json
  aiguard validate review out.json --contracts ./contracts --db audit.db`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := "-"
			if len(args) == 2 {
				input = args[1]
			}
			return runValidate(opts, args[0], input, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Strictness, "strictness", "s", "", "strictness (strict|medium|lenient), defaults to validation.strictness")
	cmd.Flags().StringVar(&opts.Contracts, "contracts", "", "directory of extra CUE contracts")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run in this SQLite audit database")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print collected metrics to stderr")

	return cmd
}

func runValidate(opts *ValidateOptions, contractID, input string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	if opts.Contracts != "" {
		cfg.Contracts.Dir = opts.Contracts
	}
	if opts.Database != "" {
		cfg.Events.StorePath = opts.Database
	}
	if opts.Metrics {
		cfg.Events.Enabled = true
		cfg.Metrics.Enabled = true
	}

	strictness := contract.Strictness(opts.Strictness)
	if opts.Strictness != "" {
		if strictness, err = contract.ParseStrictness(opts.Strictness); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeConfig, err.Error(), nil)
		}
	}

	raw, err := readInput(input, cmd.InOrStdin())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInput, err.Error(), nil)
	}
	formatter.VerboseLog("Read %d byte(s) from %s", len(raw), inputName(input))

	log, err := newLogger(opts.RootOptions, cfg, cmd.ErrOrStderr())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, err.Error(), nil)
	}
	defer func() { _ = log.Sync() }()

	g, err := guard.New(cfg, guard.WithLogger(log))
	if err != nil {
		return formatter.Fail(ExitCommandError, contractErrorCode(err), err.Error(), nil)
	}
	defer g.Close()

	res, err := g.Validate(context.Background(), contractID, raw, strictness)
	if err != nil {
		var details interface{}
		if contract.IsUnknownContract(err) {
			details = g.Registry().IDs()
		}
		return formatter.Fail(ExitCommandError, contractErrorCode(err), err.Error(), details)
	}

	if formatter.JSON() {
		err = formatter.Encode(CLIResponse{Status: "ok", Data: res, RunID: res.RunID})
	} else {
		err = writeResultText(formatter.Writer, res)
	}
	if err != nil {
		return err
	}

	if opts.Metrics && g.Gatherer() != nil {
		if err := metrics.WriteText(formatter.GetErrWriter(), g.Gatherer()); err != nil {
			return WrapExitError(ExitCommandError, "write metrics", err)
		}
	}

	if res.Trace.RecordDefault {
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %s", ErrCodeRecordDefault, res.Trace.RecordDefaultReason))
	}
	return nil
}

// readInput reads a named file, or r for "-".
func readInput(name string, r io.Reader) ([]byte, error) {
	if name == "-" {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}

func inputName(name string) string {
	if name == "-" {
		return "stdin"
	}
	return name
}

// contractErrorCode returns the ContractError code carried by err, or
// ErrCodeConfig.
func contractErrorCode(err error) string {
	var cerr *contract.ContractError
	if errors.As(err, &cerr) {
		return string(cerr.Code)
	}
	return ErrCodeConfig
}

// writeResultText prints a result for humans.
func writeResultText(w io.Writer, res pipeline.Result) error {
	tr := res.Trace
	fmt.Fprintf(w, "run:        %s\n", res.RunID)
	fmt.Fprintf(w, "contract:   %s (%s)\n", res.ContractID, tr.Strictness)
	fmt.Fprintf(w, "outcome:    %s\n", tr.Outcome())
	fmt.Fprintf(w, "path:       %s\n", joinStates(tr.Path))
	if tr.ParseError != "" {
		fmt.Fprintf(w, "parse error: %s\n", tr.ParseError)
	}
	if tr.RecordDefault {
		fmt.Fprintf(w, "reason:     %s\n", tr.RecordDefaultReason)
	}
	if len(tr.Violations) > 0 {
		fmt.Fprintln(w, "violations:")
		for _, v := range tr.Violations {
			fmt.Fprintf(w, "  - %s\n", v)
		}
	}
	if len(tr.Repaired) > 0 {
		fmt.Fprintf(w, "repaired:   %s\n", strings.Join(tr.Repaired, ", "))
	}
	if len(tr.Defaulted) > 0 {
		fmt.Fprintf(w, "defaulted:  %s\n", strings.Join(tr.Defaulted, ", "))
	}
	if len(tr.Dropped) > 0 {
		fmt.Fprintf(w, "dropped:    %s\n", strings.Join(tr.Dropped, ", "))
	}

	record, err := ir.MarshalCanonical(res.Record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	fmt.Fprintf(w, "record:     %s\n", record)
	return nil
}

func joinStates(path []pipeline.State) string {
	parts := make([]string, len(path))
	for i, s := range path {
		parts[i] = string(s)
	}
	return strings.Join(parts, " -> ")
}
