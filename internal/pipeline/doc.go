// Package pipeline implements the validation pipeline, the single entry
// point that turns unreliable producer output into a contract-valid record.
//
// STATE MACHINE:
//
//	parsing    -> validating   payload decoded into a candidate record
//	parsing    -> defaulting   parse failure, full-record default
//	validating -> done         no violations
//	validating -> repairing    violations, strictness allows repair
//	validating -> defaulting   violations under strict, per field
//	repairing  -> done         re-validation clean
//	repairing  -> defaulting   fields still violating, per field
//	defaulting -> done         always
//
// Repair runs at most once and re-validation after repair is authoritative.
// Under strict, a required field that must be defaulted escalates to the
// full-record default. Medium and lenient always default per field.
//
// CONCURRENCY:
//
// A Pipeline holds no per-call state. Any number of goroutines may call
// Validate concurrently; the only shared data is the read-only contract set.
// Observers run on the caller's goroutine after the machine reaches done.
//
// ERRORS:
//
// Producer misbehaviour never surfaces as an error. Validate fails only for
// configuration mistakes: an unknown contract id or an invalid strictness.
package pipeline
