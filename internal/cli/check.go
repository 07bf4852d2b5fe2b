package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/aiguard/internal/builtin"
	"github.com/roach88/aiguard/internal/compiler"
	"github.com/roach88/aiguard/internal/contract"
	"github.com/roach88/aiguard/internal/registry"
)

// CheckIssue is one problem found in a contracts directory.
type CheckIssue struct {
	Contract string `json:"contract,omitempty"`
	Field    string `json:"field,omitempty"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Line     int    `json:"line,omitempty"`
}

// CheckResult holds the outcome of the check command.
type CheckResult struct {
	Valid     bool         `json:"valid"`
	FileCount int          `json:"file_count"`
	Contracts []string     `json:"contracts"`
	Issues    []CheckIssue `json:"issues,omitempty"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <contracts-dir>",
		Short: "Compile and statically check CUE contracts",
		Long: `Compile the CUE contracts in a directory and run the static checks
registration would run: field types, bounds, enums, defaults, list roots
and fallbacks. Contracts that collide with a builtin id are reported too.

Exit codes:
  0 - All contracts valid
  1 - One or more contracts invalid
  2 - Command error (directory not found, no CUE files, CUE build failure)

Examples:
  aiguard check ./contracts
  aiguard check ./contracts --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runCheck(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	loaded, loadErrs := compiler.LoadDir(dir, compiler.LoadModeCollectAll)
	if loaded == nil {
		code, msg := ErrCodeNotFound, fmt.Sprintf("load %s", dir)
		var loadErr *compiler.LoadError
		if len(loadErrs) > 0 && errors.As(loadErrs[0], &loadErr) {
			code, msg = loadErr.Code, loadErr.Message
		}
		return formatter.Fail(ExitCommandError, code, msg, nil)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, dir)

	result := CheckResult{FileCount: loaded.FileCount, Contracts: []string{}}
	for _, err := range loadErrs {
		result.Issues = append(result.Issues, loadIssue(err))
	}

	reg := registry.New()
	if err := builtin.Register(reg); err != nil {
		return WrapExitError(ExitCommandError, "register builtin contracts", err)
	}
	for _, c := range loaded.Contracts {
		formatter.VerboseLog("Checking contract: %s", c.ID)
		issues := contractIssues(reg, c)
		if len(issues) == 0 {
			result.Contracts = append(result.Contracts, c.ID)
		}
		result.Issues = append(result.Issues, issues...)
	}
	result.Valid = len(result.Issues) == 0

	if formatter.JSON() {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.Valid {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    ErrCodeInvalid,
				Message: fmt.Sprintf("%d issue(s) found", len(result.Issues)),
			}
		}
		if err := formatter.Encode(resp); err != nil {
			return err
		}
	} else {
		writeCheckText(formatter, result)
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %d issue(s) found", ErrCodeInvalid, len(result.Issues)))
	}
	return nil
}

// contractIssues runs the static checks, then registers c to catch id
// collisions.
func contractIssues(reg *registry.Registry, c *contract.Contract) []CheckIssue {
	var issues []CheckIssue
	for _, ve := range compiler.Validate(c) {
		issues = append(issues, CheckIssue{
			Contract: c.ID,
			Field:    ve.Field,
			Code:     ve.Code,
			Message:  ve.Message,
		})
	}
	if len(issues) > 0 {
		return issues
	}

	if err := reg.Register(c); err != nil {
		var cerr *contract.ContractError
		if errors.As(err, &cerr) {
			return []CheckIssue{{Contract: c.ID, Code: string(cerr.Code), Message: cerr.Message}}
		}
		return []CheckIssue{{Contract: c.ID, Code: compiler.ErrCodeGeneric, Message: err.Error()}}
	}
	return nil
}

func loadIssue(err error) CheckIssue {
	var loadErr *compiler.LoadError
	if errors.As(err, &loadErr) {
		issue := CheckIssue{Code: loadErr.Code, Message: loadErr.Message}
		if loadErr.Pos.IsValid() {
			issue.Line = loadErr.Pos.Line()
		}
		return issue
	}
	return CheckIssue{Code: compiler.ErrCodeGeneric, Message: err.Error()}
}

func writeCheckText(f *OutputFormatter, result CheckResult) {
	w := f.Writer
	if result.Valid {
		fmt.Fprintf(w, "✓ %d contract(s) valid\n", len(result.Contracts))
		for _, id := range result.Contracts {
			fmt.Fprintf(w, "  %s\n", id)
		}
		return
	}

	fmt.Fprintf(w, "✗ %d issue(s) found\n", len(result.Issues))
	for _, issue := range result.Issues {
		location := issue.Contract
		if issue.Field != "" {
			location += "." + issue.Field
		}
		if issue.Line > 0 {
			location = fmt.Sprintf("%s (line %d)", location, issue.Line)
		}
		if location == "" {
			fmt.Fprintf(w, "  [%s] %s\n", issue.Code, issue.Message)
			continue
		}
		fmt.Fprintf(w, "  [%s] %s: %s\n", issue.Code, location, issue.Message)
	}
}
