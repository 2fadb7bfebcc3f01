package pipeline

// Summary accumulates per-invocation counts and soft errors. Phases
// return their own partial summaries which the caller merges, so no
// mutable state is shared between phases.
type Summary struct {
	AnalyzeChecked     int      `json:"analyzeChecked"`
	AnalyzeCompleted   int      `json:"analyzeCompleted"`
	StructureStarted   int      `json:"structureStarted"`
	StructureChecked   int      `json:"structureChecked"`
	StructureCompleted int      `json:"structureCompleted"`
	IngestChecked      int      `json:"ingestChecked"`
	IngestCompleted    int      `json:"ingestCompleted"`
	Errors             []string `json:"errors"`
}

// Merge returns the combination of two summaries.
func (s Summary) Merge(other Summary) Summary {
	merged := Summary{
		AnalyzeChecked:     s.AnalyzeChecked + other.AnalyzeChecked,
		AnalyzeCompleted:   s.AnalyzeCompleted + other.AnalyzeCompleted,
		StructureStarted:   s.StructureStarted + other.StructureStarted,
		StructureChecked:   s.StructureChecked + other.StructureChecked,
		StructureCompleted: s.StructureCompleted + other.StructureCompleted,
		IngestChecked:      s.IngestChecked + other.IngestChecked,
		IngestCompleted:    s.IngestCompleted + other.IngestCompleted,
	}
	merged.Errors = append(merged.Errors, s.Errors...)
	merged.Errors = append(merged.Errors, other.Errors...)
	return merged
}

// OK reports whether the invocation finished without any error,
// including job-level soft failures.
func (s Summary) OK() bool {
	return len(s.Errors) == 0
}
