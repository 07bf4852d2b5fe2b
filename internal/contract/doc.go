// Package contract defines the structural contracts producer output is
// checked against.
//
// A Contract names one content kind ("content_analysis", "summary", "tags")
// and owns an ordered list of FieldRules. Field order is significant: the
// validator walks fields in declaration order and the violation report
// preserves it.
//
// Contracts are built once at startup (compiled from CUE or assembled in Go),
// registered, and never mutated afterwards. Every FieldRule carries exactly
// one default of its declared type, so a record satisfying the contract can
// always be produced.
package contract
