package repair

import (
	"golang.org/x/text/unicode/norm"
)

// Truncate shortens s to at most n characters. It never cuts inside a
// UTF-8 sequence and never separates a base character from the combining
// marks that follow it, so the result may be shorter than n.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}

	cut, count := len(s), 0
	for i := range s {
		if count == n {
			cut = i
			break
		}
		count++
	}
	if cut == len(s) {
		return s
	}

	// The cut is safe when the rest starts a new normalization segment.
	if norm.NFC.FirstBoundaryInString(s[cut:]) == 0 {
		return s[:cut]
	}

	// Otherwise back off to the start of the segment that straddles the cut.
	if b := norm.NFC.LastBoundary([]byte(s[:cut])); b > 0 {
		return s[:b]
	}
	return ""
}
