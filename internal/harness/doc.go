// Package harness runs YAML scenarios through the validation pipeline and
// compares the traces they produce against golden files.
//
// A scenario names the contracts it needs beyond the builtin set, a list
// of steps (one payload each, with an optional expect clause) and a list of
// assertions evaluated after every step has run:
//
//	name: tag_normalization
//	description: Duplicate and padded tags collapse to one lowercase set.
//	steps:
//	  - contract: tags
//	    strictness: medium
//	    input: '{"tags": ["Go", "go", " Rust ", ""]}'
//	    expect:
//	      outcome: repaired
//	      record: {tags: [go, rust]}
//	assertions:
//	  - type: violation
//	    step: 0
//	    field: tags
//	    kind: invalid_item
//	  - type: idempotent
//	    step: 0
//
// Every run uses a fresh in-memory audit store and run ids derived from the
// scenario's run_id, so the same scenario always yields byte-identical
// golden output.
package harness
