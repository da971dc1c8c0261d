// Package logging wires dlib's context-scoped dlog onto a logrus
// backend for the process entrypoints.
package logging

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// Formatter renders log entries with a millisecond-precision timestamp,
// a "component" field (if present) as a bracketed prefix, the message,
// and any remaining structured fields sorted by key for deterministic
// output. Every long-running piece - the responder, each frontend
// subcommand - sets "component" once, so all of its lines carry the
// same prefix.
type Formatter struct {
	timestampFormat string
}

// NewFormatter builds a Formatter using the given time.Format layout.
func NewFormatter(timestampFormat string) *Formatter {
	return &Formatter{timestampFormat: timestampFormat}
}

// Format implements logrus.Formatter.
func (f *Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b *bytes.Buffer
	if entry.Buffer != nil {
		b = entry.Buffer
	} else {
		b = &bytes.Buffer{}
	}
	b.WriteString(entry.Time.Format(f.timestampFormat))
	b.WriteByte(' ')

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if component, ok := entry.Data["component"]; ok {
		fmt.Fprintf(b, "[%v] ", component)
	}
	b.WriteString(entry.Message)
	for _, k := range keys {
		if k == "component" {
			continue
		}
		fmt.Fprintf(b, " %s=%+v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}
