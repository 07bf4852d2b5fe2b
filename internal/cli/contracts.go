package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/aiguard/internal/contract"
	"github.com/roach88/aiguard/internal/guard"
	"github.com/roach88/aiguard/internal/ir"
)

// ContractsOptions holds flags for the contracts command.
type ContractsOptions struct {
	*RootOptions
	Contracts string // overrides contracts.dir
}

// ContractInfo describes one registered contract.
type ContractInfo struct {
	ID          string      `json:"id"`
	Description string      `json:"description,omitempty"`
	ListRoot    string      `json:"list_root,omitempty"`
	Fields      []FieldInfo `json:"fields"`
}

// FieldInfo describes one field rule.
type FieldInfo struct {
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Required    bool            `json:"required"`
	Constraints []string        `json:"constraints,omitempty"`
	Default     json.RawMessage `json:"default"`
}

// NewContractsCommand creates the contracts command.
func NewContractsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ContractsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "contracts [id]",
		Short: "List registered contracts",
		Long: `List the builtin contracts plus those loaded from contracts.dir,
with each field's type, constraints and default.

Examples:
  aiguard contracts
  aiguard contracts summary
  aiguard contracts --contracts ./contracts --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return runContracts(opts, id, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Contracts, "contracts", "", "directory of extra CUE contracts")

	return cmd
}

func runContracts(opts *ContractsOptions, id string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	if opts.Contracts != "" {
		cfg.Contracts.Dir = opts.Contracts
	}
	cfg.Events.Enabled = false

	g, err := guard.New(cfg)
	if err != nil {
		return formatter.Fail(ExitCommandError, contractErrorCode(err), err.Error(), nil)
	}
	defer g.Close()

	ids := g.Registry().IDs()
	if id != "" {
		ids = []string{id}
	}

	infos := make([]ContractInfo, 0, len(ids))
	for _, cid := range ids {
		c, err := g.Registry().Lookup(cid)
		if err != nil {
			return formatter.Fail(ExitCommandError, contractErrorCode(err), err.Error(), g.Registry().IDs())
		}
		info, err := describeContract(c)
		if err != nil {
			return WrapExitError(ExitCommandError, "describe "+cid, err)
		}
		infos = append(infos, info)
	}

	if formatter.JSON() {
		return formatter.Encode(CLIResponse{Status: "ok", Data: infos})
	}
	return writeContractsText(formatter, infos)
}

func describeContract(c *contract.Contract) (ContractInfo, error) {
	info := ContractInfo{
		ID:          c.ID,
		Description: c.Description,
		ListRoot:    c.ListRoot,
		Fields:      make([]FieldInfo, 0, len(c.Fields)),
	}
	for i := range c.Fields {
		rule := &c.Fields[i]
		def, err := ir.MarshalCanonical(rule.Default)
		if err != nil {
			return ContractInfo{}, fmt.Errorf("field %s default: %w", rule.Name, err)
		}
		info.Fields = append(info.Fields, FieldInfo{
			Name:        rule.Name,
			Type:        string(rule.Type),
			Required:    rule.Required,
			Constraints: constraints(rule),
			Default:     def,
		})
	}
	return info, nil
}

// constraints renders the non-zero bounds of a rule.
func constraints(r *contract.FieldRule) []string {
	var out []string
	if r.MinLen > 0 || r.MaxLen > 0 {
		out = append(out, bound(int64(r.MinLen), int64(r.MaxLen), r.MaxLen > 0, "chars"))
	}
	if r.MinItems > 0 || r.MaxItems > 0 {
		unit := "items"
		if r.Type == contract.TypeMapping {
			unit = "keys"
		}
		out = append(out, bound(int64(r.MinItems), int64(r.MaxItems), r.MaxItems > 0, unit))
	}
	if r.Min != nil || r.Max != nil {
		switch {
		case r.Min != nil && r.Max != nil:
			out = append(out, fmt.Sprintf("%d..%d", *r.Min, *r.Max))
		case r.Min != nil:
			out = append(out, fmt.Sprintf(">= %d", *r.Min))
		default:
			out = append(out, fmt.Sprintf("<= %d", *r.Max))
		}
	}
	if len(r.Enum) > 0 {
		out = append(out, "one of "+strings.Join(r.Enum, "|"))
	}
	if len(r.Keys) > 0 {
		out = append(out, "keys "+strings.Join(r.Keys, "|"))
	}
	if r.ItemMaxLen > 0 {
		out = append(out, fmt.Sprintf("item <= %d chars", r.ItemMaxLen))
	}
	if r.ItemPattern != nil {
		out = append(out, "item ~ "+r.ItemPattern.String())
	}
	if r.PreserveCase {
		out = append(out, "preserve case")
	}
	if r.CollapseWhitespace {
		out = append(out, "collapse whitespace")
	}
	return out
}

func bound(lo, hi int64, hasMax bool, unit string) string {
	if !hasMax {
		return fmt.Sprintf(">= %d %s", lo, unit)
	}
	return fmt.Sprintf("%d..%d %s", lo, hi, unit)
}

func writeContractsText(f *OutputFormatter, infos []ContractInfo) error {
	for i, info := range infos {
		if i > 0 {
			fmt.Fprintln(f.Writer)
		}
		fmt.Fprintf(f.Writer, "%s\n", info.ID)
		if info.Description != "" {
			fmt.Fprintf(f.Writer, "  %s\n", info.Description)
		}
		if info.ListRoot != "" {
			fmt.Fprintf(f.Writer, "  top-level arrays map to %s\n", info.ListRoot)
		}

		tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  FIELD\tTYPE\tREQUIRED\tCONSTRAINTS\tDEFAULT")
		for _, fi := range info.Fields {
			required := ""
			if fi.Required {
				required = "yes"
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n", fi.Name, fi.Type, required, strings.Join(fi.Constraints, ", "), fi.Default)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}
