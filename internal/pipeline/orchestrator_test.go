package pipeline

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/ballotbase/api/internal/client"
	"github.com/ballotbase/api/internal/ingest"
	"github.com/ballotbase/api/internal/model"
)

// TestRunFullPassage drives one job through the whole state machine
// across successive invocations, the way the scheduler would.
func TestRunFullPassage(t *testing.T) {
	store := &fakeStore{}
	gateway := newFakeGateway()
	ingestor := &fakeIngestor{outcomes: []ingest.Outcome{{Action: ingest.ActionCreated}}}
	notifier := &fakeNotifier{}

	rows, err := json.Marshal([]map[string]string{{"candidate": "A. Smith", "votes": "1042"}})
	require.NoError(t, err)

	store.addJob(model.BatchJob{
		ID:               "job-1",
		Status:           model.JobStatusAnalyzeSubmitted,
		DisplayName:      "Hamilton County 2026",
		UploaderEmail:    "uploader@example.org",
		StructurePrompt:  "Turn the analysis into election records.",
		AnalyzeBatchName: strPtr("batches/analyze"),
		AnalyzeMode:      model.InferenceModeInline,
	})
	store.addGroup(model.BatchGroup{
		JobID:        "job-1",
		Key:          "group-001",
		Order:        1,
		Status:       model.GroupStatusPending,
		Municipality: "Cincinnati",
		State:        "OH",
		Rows:         datatypes.JSON(rows),
	})

	o := newTestOrchestrator(store, gateway, ingestor, notifier)
	ctx := context.Background()

	// Invocation 1: analyze batch still running, nothing moves.
	sum := o.Run(ctx)
	assert.Equal(t, 1, sum.AnalyzeChecked)
	assert.Equal(t, model.JobStatusAnalyzeSubmitted, store.job("job-1").Status)

	// Invocation 2: analyze finishes; the same sweep picks the job up
	// for structuring because phases run in state-machine order.
	gateway.statuses["batches/analyze"] = &client.BatchStatus{State: client.BatchStateSucceeded}
	gateway.results["batches/analyze"] = map[string]client.ItemResult{
		"group-001": {Key: "group-001", Text: "A. Smith won with 1042 votes."},
	}

	sum = o.Run(ctx)
	assert.Equal(t, 1, sum.AnalyzeCompleted)
	assert.Equal(t, 1, sum.StructureStarted)
	job := store.job("job-1")
	assert.Equal(t, model.JobStatusStructureSubmitted, job.Status)
	require.NotNil(t, job.StructureBatchName)
	require.Len(t, notifier.sent, 1)

	// Invocation 3: structuring finishes and the same sweep ingests.
	gateway.statuses[*job.StructureBatchName] = &client.BatchStatus{State: client.BatchStateSucceeded}
	gateway.results[*job.StructureBatchName] = map[string]client.ItemResult{
		"group-001": {Key: "group-001", Text: `{"elections":[{"name":"Mayor of Cincinnati","state":"OH"}]}`},
	}

	sum = o.Run(ctx)
	assert.Equal(t, 1, sum.StructureCompleted)
	assert.Equal(t, 1, sum.IngestCompleted)
	assert.True(t, sum.OK())

	job = store.job("job-1")
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	require.NotNil(t, job.AnalyzeEmailSentAt)
	require.NotNil(t, job.IngestEmailSentAt)
	assert.Len(t, notifier.sent, 2)

	group := store.group("job-1", "group-001")
	assert.Equal(t, model.GroupStatusIngestCompleted, group.Status)

	require.Len(t, ingestor.calls, 1)
	assert.Equal(t, "Mayor of Cincinnati", ingestor.calls[0].payload.Elections[0].Name)
}

// panickyStore panics on one listing to simulate a phase blowing up
// mid-sweep.
type panickyStore struct {
	*fakeStore
	panicOn model.JobStatus
}

func (s *panickyStore) JobsByStatus(ctx context.Context, status model.JobStatus, limit int) ([]model.BatchJob, error) {
	if status == s.panicOn {
		panic("listing exploded")
	}
	return s.fakeStore.JobsByStatus(ctx, status, limit)
}

func TestRunPhasePanicIsolation(t *testing.T) {
	inner := &fakeStore{}
	gateway := newFakeGateway()
	ingestor := &fakeIngestor{outcomes: []ingest.Outcome{{Action: ingest.ActionCreated}}}

	// The analyze phase panics while an unrelated job is ready for
	// ingestion; ingestion must still run.
	inner.addJob(ingestPendingJob("job-keep"))
	inner.addGroup(structuredGroup("job-keep", "group-001", 1,
		`{"elections":[{"name":"Mayor 2026","state":"OH"}]}`))

	store := &panickyStore{fakeStore: inner, panicOn: model.JobStatusAnalyzeSubmitted}
	o := New(store, gateway, ingestor, &fakeNotifier{}, nil, testConfig(), zap.NewNop())

	sum := o.Run(context.Background())

	require.Len(t, sum.Errors, 1)
	assert.Contains(t, sum.Errors[0], "analyze: panic")
	assert.Equal(t, 1, sum.IngestCompleted)
	assert.False(t, sum.OK())
	assert.Equal(t, model.JobStatusCompleted, inner.job("job-keep").Status)
}
