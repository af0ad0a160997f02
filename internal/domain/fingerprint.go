package domain

import (
	"fmt"
	"strings"
)

// Characters that are unsafe in filenames across operating systems. The set
// and the underscore replacement must not change: cache files written by one
// build become unaddressable by another if they drift.
var filenameReplacer = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
	"\"", "_", "<", "_", ">", "_", "|", "_",
)

// SanitizeFilename replaces forbidden filename characters with underscores.
// Internal spaces are preserved verbatim; leading and trailing spaces and
// dots are trimmed. Distinct inputs differing only in forbidden characters
// can collide, which is accepted behavior for cache addressing.
func SanitizeFilename(s string) string {
	return strings.Trim(filenameReplacer.Replace(s), ". ")
}

// Fingerprint derives the deterministic cache key for a query:
// Feedback_<sanitized name>_<platform>_<start>_to_<end>.
func (q Query) Fingerprint() string {
	return fmt.Sprintf("Feedback_%s_%s_%s_to_%s",
		SanitizeFilename(q.ProductName),
		q.Platform,
		q.StartDate.Format("2006-01-02"),
		q.EndDate.Format("2006-01-02"),
	)
}
