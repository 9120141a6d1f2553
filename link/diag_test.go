package link

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogAccumulation(t *testing.T) {
	log := &Log{}
	assert.False(t, log.Failed())
	assert.Empty(t, log.String())

	log.Warningf("suspicious %s", "thing")
	assert.False(t, log.Failed(), "warnings do not fail the link")

	log.Errorf("broken %s", "thing")
	assert.True(t, log.Failed())

	entries := log.Entries()
	assert.Len(t, entries, 2)
	assert.Equal(t, SeverityWarning, entries[0].Severity)
	assert.Equal(t, SeverityError, entries[1].Severity)

	assert.Equal(t, "warning: suspicious thing\nerror: broken thing\n", log.String())
}

func TestDiagnosticString(t *testing.T) {
	assert.Equal(t, "error: nope", Diagnostic{Severity: SeverityError, Message: "nope"}.String())
	assert.Equal(t, "warning: hmm", Diagnostic{Severity: SeverityWarning, Message: "hmm"}.String())
}
