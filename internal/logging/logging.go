// Package logging provides a minimal process-wide log writer. It is
// never used for the snapshot stream itself, which has its own framing
// (see internal/snapshot).
package logging

import (
	"fmt"
	"io"
	"os"
)

var (
	writer io.Writer = os.Stdout
	prefix string
)

// SetWriter sets the log output destination. Passing nil resets to
// stdout.
func SetWriter(w io.Writer) {
	if w == nil {
		writer = os.Stdout
		return
	}
	writer = w
}

// SetRankPrefix configures every subsequent log line to be prefixed
// with "[rank K] ". Root conventionally leaves this unset.
func SetRankPrefix(rank int) {
	prefix = fmt.Sprintf("[rank %d] ", rank)
}

// Logf writes a formatted, newline-terminated log line.
func Logf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(writer, prefix+msg)
}
