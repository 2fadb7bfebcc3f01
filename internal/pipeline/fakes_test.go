package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ballotbase/api/internal/client"
	"github.com/ballotbase/api/internal/ingest"
	"github.com/ballotbase/api/internal/model"
)

type fakeStore struct {
	mu     sync.Mutex
	jobs   []*model.BatchJob
	groups []*model.BatchGroup
}

func (s *fakeStore) addJob(job model.BatchJob) {
	s.jobs = append(s.jobs, &job)
}

func (s *fakeStore) addGroup(group model.BatchGroup) {
	s.groups = append(s.groups, &group)
}

func (s *fakeStore) job(id string) *model.BatchJob {
	for _, j := range s.jobs {
		if j.ID == id {
			return j
		}
	}
	return nil
}

func (s *fakeStore) group(jobID, key string) *model.BatchGroup {
	for _, g := range s.groups {
		if g.JobID == jobID && g.Key == key {
			return g
		}
	}
	return nil
}

func (s *fakeStore) JobsByStatus(_ context.Context, status model.JobStatus, limit int) ([]model.BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.BatchJob
	for _, j := range s.jobs {
		if j.Status != status {
			continue
		}
		out = append(out, *j)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) SaveJob(_ context.Context, job *model.BatchJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, j := range s.jobs {
		if j.ID == job.ID {
			cp := *job
			s.jobs[i] = &cp
			return nil
		}
	}
	cp := *job
	s.jobs = append(s.jobs, &cp)
	return nil
}

func (s *fakeStore) GroupsByJob(_ context.Context, jobID string, statuses ...model.GroupStatus) ([]model.BatchGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.BatchGroup
	for _, g := range s.groups {
		if g.JobID != jobID {
			continue
		}
		if len(statuses) > 0 {
			match := false
			for _, st := range statuses {
				if g.Status == st {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (s *fakeStore) SaveGroup(_ context.Context, group *model.BatchGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, g := range s.groups {
		if g.JobID == group.JobID && g.Key == group.Key {
			cp := *group
			s.groups[i] = &cp
			return nil
		}
	}
	cp := *group
	s.groups = append(s.groups, &cp)
	return nil
}

func (s *fakeStore) SumEstimatedTokens(_ context.Context, statuses []model.JobStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, j := range s.jobs {
		for _, st := range statuses {
			if j.Status == st {
				total += j.EstimatedTokens
				break
			}
		}
	}
	return total, nil
}

type submission struct {
	model    string
	name     string
	requests []client.BatchRequest
}

type fakeGateway struct {
	statuses    map[string]*client.BatchStatus
	results     map[string]map[string]client.ItemResult
	submitErrs  map[string]error
	submissions []submission
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		statuses:   make(map[string]*client.BatchStatus),
		results:    make(map[string]map[string]client.ItemResult),
		submitErrs: make(map[string]error),
	}
}

func (g *fakeGateway) SubmitBatch(_ context.Context, model, _ string, requests []client.BatchRequest) (string, error) {
	if err := g.submitErrs[model]; err != nil {
		return "", err
	}
	name := fmt.Sprintf("batches/%d", len(g.submissions)+1)
	g.submissions = append(g.submissions, submission{model: model, name: name, requests: requests})
	return name, nil
}

func (g *fakeGateway) GetBatchStatus(_ context.Context, name string) (*client.BatchStatus, error) {
	if st, ok := g.statuses[name]; ok {
		return st, nil
	}
	return &client.BatchStatus{State: client.BatchStateRunning}, nil
}

func (g *fakeGateway) FetchResults(_ context.Context, name, _ string, keys []string) ([]client.ItemResult, error) {
	byKey := g.results[name]
	out := make([]client.ItemResult, len(keys))
	for i, key := range keys {
		if r, ok := byKey[key]; ok {
			out[i] = r
		} else {
			out[i] = client.ItemResult{Key: key, Error: "no result returned for key"}
		}
	}
	return out, nil
}

type ingestCall struct {
	payload  model.ElectionsPayload
	hidden   bool
	uploader string
}

type fakeIngestor struct {
	calls    []ingestCall
	outcomes []ingest.Outcome
	err      error
}

func (f *fakeIngestor) Ingest(_ context.Context, payload model.ElectionsPayload, hidden bool, uploader string) ([]ingest.Outcome, error) {
	f.calls = append(f.calls, ingestCall{payload: payload, hidden: hidden, uploader: uploader})
	if f.err != nil {
		return nil, f.err
	}
	return f.outcomes, nil
}

type sentEmail struct {
	recipients []string
	subject    string
}

type fakeNotifier struct {
	sent []sentEmail
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, recipients []string, subject, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentEmail{recipients: recipients, subject: subject})
	return nil
}

func testConfig() Config {
	return Config{
		PrimaryModel:       "model-primary",
		FallbackModel:      "model-fallback",
		MaxOutputTokens:    1000,
		MaxAnalyzeJobs:     3,
		MaxStructureStarts: 3,
		MaxIngestJobs:      3,
		ActiveTokenCeiling: 10_000_000,
		DefaultHidden:      true,
		TeamAddress:        "team@example.org",
	}
}

func newTestOrchestrator(store *fakeStore, gateway *fakeGateway, ingestor *fakeIngestor, notifier *fakeNotifier) *Orchestrator {
	return New(store, gateway, ingestor, notifier, nil, testConfig(), zap.NewNop())
}

func strPtr(s string) *string { return &s }
