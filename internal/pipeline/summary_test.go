package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummaryMerge(t *testing.T) {
	a := Summary{AnalyzeChecked: 2, AnalyzeCompleted: 1, Errors: []string{"analyze:x: boom"}}
	b := Summary{StructureStarted: 1, IngestChecked: 3, IngestCompleted: 2, Errors: []string{"ingest:y: boom"}}

	merged := a.Merge(b)

	assert.Equal(t, 2, merged.AnalyzeChecked)
	assert.Equal(t, 1, merged.AnalyzeCompleted)
	assert.Equal(t, 1, merged.StructureStarted)
	assert.Equal(t, 3, merged.IngestChecked)
	assert.Equal(t, 2, merged.IngestCompleted)
	assert.Equal(t, []string{"analyze:x: boom", "ingest:y: boom"}, merged.Errors)

	// Inputs are untouched.
	assert.Len(t, a.Errors, 1)
	assert.Len(t, b.Errors, 1)
}

func TestSummaryOK(t *testing.T) {
	assert.True(t, Summary{AnalyzeChecked: 4}.OK())
	assert.False(t, Summary{Errors: []string{"boom"}}.OK())
}
