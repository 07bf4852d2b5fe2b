// Package builtin ships the contracts every deployment starts with:
// content_analysis, summary and tags.
package builtin

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"

	"github.com/roach88/aiguard/internal/compiler"
	"github.com/roach88/aiguard/internal/contract"
)

//go:embed contracts/*.cue
var contractFS embed.FS

// Contracts compiles the embedded contracts in file name order.
func Contracts() ([]*contract.Contract, error) {
	entries, err := fs.ReadDir(contractFS, "contracts")
	if err != nil {
		return nil, fmt.Errorf("read embedded contracts: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	slices.Sort(names)

	var out []*contract.Contract
	for _, name := range names {
		filename := path.Join("contracts", name)
		src, err := contractFS.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filename, err)
		}
		cs, err := compiler.CompileBytes(filename, src)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", filename, err)
		}
		out = append(out, cs...)
	}
	return out, nil
}

// Registrar is the registration side of a contract registry.
type Registrar interface {
	Register(c *contract.Contract) error
}

// Register compiles the embedded contracts and registers each one.
func Register(r Registrar) error {
	cs, err := Contracts()
	if err != nil {
		return err
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			return fmt.Errorf("register builtin %s: %w", c.ID, err)
		}
	}
	return nil
}
