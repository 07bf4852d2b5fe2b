// Package ir provides the value representation for producer payloads.
//
// Producer output is untyped until validated. Every payload the engine touches
// is first decoded into the sealed Value union defined here; nothing else in
// the module inspects raw JSON. ir imports nothing internal.
//
// Key constraints:
//   - Numbers decode through json.Number: integral literals become Int,
//     everything else Float. Validated records never carry Float.
//   - Mapping iteration for output is always SortedKeys (RFC 8785 order).
//   - Canonical JSON (MarshalCanonical) is the only encoding used for digests.
package ir
