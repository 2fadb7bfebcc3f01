package model

// JobStatus tracks a batch job through the ingestion pipeline.
type JobStatus string

const (
	JobStatusPendingAnalyze     JobStatus = "pending_analyze"
	JobStatusAnalyzeSubmitted   JobStatus = "analyze_submitted"
	JobStatusAnalyzeCompleted   JobStatus = "analyze_completed"
	JobStatusStructureSubmitted JobStatus = "structure_submitted"
	JobStatusIngestPending      JobStatus = "ingest_pending"
	JobStatusIngestRunning      JobStatus = "ingest_running"
	JobStatusCompleted          JobStatus = "completed"
	JobStatusFailed             JobStatus = "failed"
)

// ActiveJobStatuses are the states whose token estimates count against
// the global active-token ceiling.
func ActiveJobStatuses() []JobStatus {
	return []JobStatus{
		JobStatusPendingAnalyze,
		JobStatusAnalyzeSubmitted,
		JobStatusStructureSubmitted,
		JobStatusAnalyzeCompleted,
		JobStatusIngestPending,
		JobStatusIngestRunning,
	}
}

// IsTerminal reports whether the status is a terminal sink.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// GroupStatus mirrors job staging at group granularity.
type GroupStatus string

const (
	GroupStatusPending            GroupStatus = "pending"
	GroupStatusAnalyzeCompleted   GroupStatus = "analyze_completed"
	GroupStatusAnalyzeFailed      GroupStatus = "analyze_failed"
	GroupStatusStructureRunning   GroupStatus = "structure_running"
	GroupStatusStructureCompleted GroupStatus = "structure_completed"
	GroupStatusStructureFailed    GroupStatus = "structure_failed"
	GroupStatusIngestCompleted    GroupStatus = "ingest_completed"
)

// Inference modes
const (
	InferenceModeInline = "inline"
)
