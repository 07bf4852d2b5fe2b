// Package defaults supplies fallback values for fields and whole records.
//
// Every FieldRule carries a default that satisfies the rule (checked at
// registration), so both operations always succeed for registered contracts.
// Callers receive clones and may mutate them freely.
package defaults

import (
	"fmt"

	"github.com/roach88/aiguard/internal/contract"
	"github.com/roach88/aiguard/internal/ir"
)

// Lookuper resolves contract ids.
type Lookuper interface {
	Lookup(id string) (*contract.Contract, error)
}

// Provider serves defaults for registered contracts. The pipeline's
// defaulting state draws every field and record default from one.
type Provider struct {
	contracts Lookuper
}

// New returns a Provider backed by contracts.
func New(contracts Lookuper) *Provider {
	return &Provider{contracts: contracts}
}

// FieldDefault returns the default of one field.
func (p *Provider) FieldDefault(contractID, field string) (ir.Value, error) {
	c, err := p.contracts.Lookup(contractID)
	if err != nil {
		return nil, err
	}
	v, ok := Field(c, field)
	if !ok {
		return nil, fmt.Errorf("contract %s has no field %q", contractID, field)
	}
	return v, nil
}

// RecordDefault returns the full-record fallback of a contract.
func (p *Provider) RecordDefault(contractID string) (ir.Mapping, error) {
	c, err := p.contracts.Lookup(contractID)
	if err != nil {
		return nil, err
	}
	return Record(c), nil
}

// Field returns a clone of the named field's default.
func Field(c *contract.Contract, field string) (ir.Value, bool) {
	rule, ok := c.Field(field)
	if !ok {
		return nil, false
	}
	return ir.Clone(rule.Default), true
}

// Record assembles every field default, overlaid with the contract's
// fallback overrides.
func Record(c *contract.Contract) ir.Mapping {
	out := make(ir.Mapping, len(c.Fields))
	for i := range c.Fields {
		rule := &c.Fields[i]
		if v, ok := c.Fallback[rule.Name]; ok {
			out[rule.Name] = ir.Clone(v)
			continue
		}
		out[rule.Name] = ir.Clone(rule.Default)
	}
	return out
}
