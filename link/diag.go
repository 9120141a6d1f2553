package link

import (
	"fmt"
	"strings"
)

// Severity classifies a linker diagnostic.
type Severity uint8

const (
	// SeverityWarning reports a suspicious program without failing the link.
	SeverityWarning Severity = iota
	// SeverityError fails the link.
	SeverityError
)

// Diagnostic is one linker message.
type Diagnostic struct {
	Severity Severity
	Message  string
}

// String formats the diagnostic the way the info log presents it.
func (d Diagnostic) String() string {
	if d.Severity == SeverityError {
		return "error: " + d.Message
	}
	return "warning: " + d.Message
}

// Log accumulates linker diagnostics. Errors clear the link status; warnings
// do not. The log is append-only so messages come out in emission order.
type Log struct {
	entries []Diagnostic
	failed  bool
}

// Errorf appends an error and marks the link failed.
func (l *Log) Errorf(format string, args ...any) {
	l.entries = append(l.entries, Diagnostic{
		Severity: SeverityError,
		Message:  fmt.Sprintf(format, args...),
	})
	l.failed = true
}

// Warningf appends a warning without affecting the link status.
func (l *Log) Warningf(format string, args ...any) {
	l.entries = append(l.entries, Diagnostic{
		Severity: SeverityWarning,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Failed reports whether any error has been logged.
func (l *Log) Failed() bool {
	return l.failed
}

// Entries returns the accumulated diagnostics in emission order.
func (l *Log) Entries() []Diagnostic {
	return l.entries
}

// String renders the info log, one diagnostic per line.
func (l *Log) String() string {
	var b strings.Builder
	for _, d := range l.entries {
		b.WriteString(d.String())
		b.WriteByte('\n')
	}
	return b.String()
}
