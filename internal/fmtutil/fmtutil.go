// Package fmtutil is the narrow formatting-helpers boundary: byte-size and
// duration rendering for the admin/status surface. Matching algorithms and
// HTML templating live elsewhere; this package only turns raw numbers into
// the strings operators read.
package fmtutil

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Bytes renders a byte count using binary (IEC) units, e.g. "128 MiB" —
// the format spec.md calls for when rendering erlang_memory_usage.
func Bytes(n uint64) string {
	return humanize.IBytes(n)
}

// Duration renders a duration the way an operator reads it: sub-second
// precision collapses to milliseconds, anything at or above a second keeps
// Go's native duration format.
func Duration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(time.Millisecond).String()
}
