package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/threadforge/internal/common"
	"github.com/ternarybob/threadforge/internal/interfaces"
	"github.com/ternarybob/threadforge/internal/models"
	"github.com/ternarybob/threadforge/internal/services/ledger"
)

type memJobStorage struct {
	mu   sync.Mutex
	jobs map[string]models.Job
}

func newMemJobStorage() *memJobStorage {
	return &memJobStorage{jobs: map[string]models.Job{}}
}

func (m *memJobStorage) SaveJob(ctx context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = *job
	return nil
}

func (m *memJobStorage) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return &job, nil
}

func (m *memJobStorage) ListJobs(ctx context.Context, ownerID string, opts *interfaces.JobListOptions) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Job
	for _, job := range m.jobs {
		if job.OwnerID == ownerID {
			j := job
			out = append(out, &j)
		}
	}
	return out, nil
}

func (m *memJobStorage) DeleteJob(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[jobID]; !ok {
		return interfaces.ErrNotFound
	}
	delete(m.jobs, jobID)
	return nil
}

// statuses returns every status the storage has seen for a job, in order.
type recordingJobStorage struct {
	*memJobStorage
	mu      sync.Mutex
	history map[string][]models.JobStatus
}

func newRecordingJobStorage() *recordingJobStorage {
	return &recordingJobStorage{memJobStorage: newMemJobStorage(), history: map[string][]models.JobStatus{}}
}

func (r *recordingJobStorage) SaveJob(ctx context.Context, job *models.Job) error {
	r.mu.Lock()
	r.history[job.ID] = append(r.history[job.ID], job.Status)
	r.mu.Unlock()
	return r.memJobStorage.SaveJob(ctx, job)
}

func (r *recordingJobStorage) statuses(jobID string) []models.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.JobStatus(nil), r.history[jobID]...)
}

type fakeAdmission struct {
	mu       sync.Mutex
	admitErr error
	credits  int
}

func (f *fakeAdmission) Admit(ctx context.Context, ownerID string) (*ledger.Reservation, error) {
	if f.admitErr != nil {
		return nil, f.admitErr
	}
	return &ledger.Reservation{OwnerID: ownerID, Tier: "free", CreditsMax: 3}, nil
}

func (f *fakeAdmission) Credit(ctx context.Context, ownerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credits++
	return nil
}

func (f *fakeAdmission) credited() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.credits
}

type fakeFetcher struct {
	artifact *interfaces.Artifact
	err      error
}

func (f *fakeFetcher) Fetch(ctx context.Context, sourceRef string, durationLimitSeconds int) (*interfaces.Artifact, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.artifact, nil
}

type fakeTranscriber struct {
	mu         sync.Mutex
	failFirst  int // number of leading calls that fail
	calls      int
	transcript *interfaces.Transcript
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, artifactRef string) (*interfaces.Transcript, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failFirst {
		return nil, fmt.Errorf("transcription backend unavailable")
	}
	return f.transcript, nil
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeGenerator struct {
	threads []models.Thread
	err     error
}

func (f *fakeGenerator) Generate(ctx context.Context, input string, instructions string) ([]models.Thread, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.threads, nil
}

type fakeCleanup struct {
	mu        sync.Mutex
	scheduled []string // artifact refs
}

func (f *fakeCleanup) Schedule(ctx context.Context, jobID, artifactRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, artifactRef)
	return nil
}

func (f *fakeCleanup) refs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.scheduled...)
}

type pipelineHarness struct {
	svc         *Service
	jobs        *recordingJobStorage
	admission   *fakeAdmission
	transcriber *fakeTranscriber
	cleanup     *fakeCleanup
}

func newHarness(t *testing.T, mutate func(h *pipelineHarness)) *pipelineHarness {
	t.Helper()
	h := &pipelineHarness{
		jobs:      newRecordingJobStorage(),
		admission: &fakeAdmission{},
		transcriber: &fakeTranscriber{
			transcript: &interfaces.Transcript{
				Text:            "the quick brown fox",
				WordCount:       4,
				DurationSeconds: 12.5,
				Summary:         "a fox",
				Topics:          []string{"animals"},
			},
		},
		cleanup: &fakeCleanup{},
	}
	fetcher := &fakeFetcher{artifact: &interfaces.Artifact{Ref: "/tmp/artifacts/a.md"}}
	generator := &fakeGenerator{threads: []models.Thread{
		{Hook: "hook one", Messages: []string{"first", "second"}},
	}}
	if mutate != nil {
		mutate(h)
	}

	config := &common.PipelineConfig{
		DurationLimitSeconds: 3600,
		TranscribeRetryDelay: "1ms",
		MaxThreadsPerJob:     3,
	}
	svc, err := NewService(h.jobs, h.admission, fetcher, h.transcriber, generator, h.cleanup, config, arbor.NewLogger())
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *pipelineHarness) mutateFetcher(t *testing.T, f *fakeFetcher) {
	t.Helper()
	h.svc.fetcher = f
}

func (h *pipelineHarness) mutateGenerator(t *testing.T, g *fakeGenerator) {
	t.Helper()
	h.svc.generator = g
}

func waitTerminal(t *testing.T, jobs interfaces.JobStorage, jobID string) *models.Job {
	t.Helper()
	var job *models.Job
	require.Eventually(t, func() bool {
		j, err := jobs.GetJob(context.Background(), jobID)
		if err != nil {
			return false
		}
		job = j
		return j.Status.IsTerminal()
	}, 2*time.Second, 5*time.Millisecond, "job never reached a terminal state")
	return job
}

func TestSubmitUploadJobRunsFullPipeline(t *testing.T) {
	h := newHarness(t, nil)

	jobID, err := h.svc.Submit(context.Background(), &SubmitRequest{
		OwnerID: "owner-1",
		Kind:    models.JobKindUpload,
		Source:  "recording.mp3",
	})
	require.NoError(t, err)

	job := waitTerminal(t, h.jobs, jobID)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, models.ProgressCompleted, job.Progress)
	require.NotNil(t, job.Result)
	assert.Len(t, job.Result.Threads, 1)
	assert.Equal(t, 4, job.Result.WordCount)
	assert.Equal(t, "a fox", job.Result.Summary)
	assert.False(t, job.FinishedAt.IsZero())

	assert.Equal(t, []models.JobStatus{
		models.JobStatusQueued,
		models.JobStatusFetching,
		models.JobStatusTranscribing,
		models.JobStatusGenerating,
		models.JobStatusCompleted,
	}, h.jobs.statuses(jobID), "each stage persists before its work starts")

	assert.Equal(t, 1, h.admission.credited(), "completion credits the ledger exactly once")
	assert.Equal(t, []string{"/tmp/artifacts/a.md"}, h.cleanup.refs())
}

func TestSubmitTopicJobSkipsFetchAndTranscribe(t *testing.T) {
	h := newHarness(t, nil)

	jobID, err := h.svc.Submit(context.Background(), &SubmitRequest{
		OwnerID: "owner-1",
		Kind:    models.JobKindTopic,
		Source:  "why go modules matter",
	})
	require.NoError(t, err)

	job := waitTerminal(t, h.jobs, jobID)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 0, h.transcriber.callCount())
	assert.Empty(t, h.cleanup.refs(), "topic jobs produce no artifact to reclaim")

	assert.Equal(t, []models.JobStatus{
		models.JobStatusQueued,
		models.JobStatusGenerating,
		models.JobStatusCompleted,
	}, h.jobs.statuses(jobID))
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t, nil)

	tests := []struct {
		name string
		req  *SubmitRequest
	}{
		{"missing owner", &SubmitRequest{Kind: models.JobKindTopic, Source: "x"}},
		{"missing source", &SubmitRequest{OwnerID: "o", Kind: models.JobKindURL}},
		{"unknown kind", &SubmitRequest{OwnerID: "o", Kind: "carrier-pigeon", Source: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Submit(context.Background(), tt.req)
			assert.Error(t, err)
		})
	}
}

func TestSubmitRejectedWhenQuotaExhausted(t *testing.T) {
	quotaErr := &ledger.QuotaExceededError{CreditsMax: 3, UpgradeHint: "pro"}
	h := newHarness(t, func(h *pipelineHarness) {
		h.admission.admitErr = quotaErr
	})

	_, err := h.svc.Submit(context.Background(), &SubmitRequest{
		OwnerID: "owner-1",
		Kind:    models.JobKindTopic,
		Source:  "a topic",
	})
	require.Error(t, err)

	var qe *ledger.QuotaExceededError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, 3, qe.CreditsMax)
	assert.Empty(t, h.jobs.jobs, "rejected submissions never create a job")
}

func TestFetchFailureFailsJobWithoutCleanup(t *testing.T) {
	h := newHarness(t, nil)
	h.mutateFetcher(t, &fakeFetcher{err: fmt.Errorf("file exceeds size limit")})

	jobID, err := h.svc.Submit(context.Background(), &SubmitRequest{
		OwnerID: "owner-1",
		Kind:    models.JobKindUpload,
		Source:  "huge.mp4",
	})
	require.NoError(t, err)

	job := waitTerminal(t, h.jobs, jobID)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error.Message, "fetch")
	assert.Empty(t, h.cleanup.refs(), "no artifact was produced, nothing to reclaim")
	assert.Equal(t, 0, h.admission.credited())
}

func TestTranscribeRetriesOnceThenSucceeds(t *testing.T) {
	h := newHarness(t, func(h *pipelineHarness) {
		h.transcriber.failFirst = 1
	})

	jobID, err := h.svc.Submit(context.Background(), &SubmitRequest{
		OwnerID: "owner-1",
		Kind:    models.JobKindUpload,
		Source:  "recording.mp3",
	})
	require.NoError(t, err)

	job := waitTerminal(t, h.jobs, jobID)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 2, h.transcriber.callCount())
}

func TestTranscribeFailsJobAfterSecondFailure(t *testing.T) {
	h := newHarness(t, func(h *pipelineHarness) {
		h.transcriber.failFirst = 2
	})

	jobID, err := h.svc.Submit(context.Background(), &SubmitRequest{
		OwnerID: "owner-1",
		Kind:    models.JobKindUpload,
		Source:  "recording.mp3",
	})
	require.NoError(t, err)

	job := waitTerminal(t, h.jobs, jobID)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, 2, h.transcriber.callCount(), "exactly one stage-local retry")
	require.NotNil(t, job.Error)
	assert.Contains(t, job.Error.Message, "transcribe")
	assert.Equal(t, models.ProgressTranscribing, job.Progress, "progress stays at the last stage checkpoint")

	assert.Equal(t, 0, h.admission.credited(), "failed jobs are never credited")
	assert.Equal(t, []string{"/tmp/artifacts/a.md"}, h.cleanup.refs(), "cleanup runs even when the job fails")
}

func TestGenerateFailureFailsJob(t *testing.T) {
	h := newHarness(t, nil)
	h.mutateGenerator(t, &fakeGenerator{err: fmt.Errorf("model overloaded")})

	jobID, err := h.svc.Submit(context.Background(), &SubmitRequest{
		OwnerID: "owner-1",
		Kind:    models.JobKindTopic,
		Source:  "a topic",
	})
	require.NoError(t, err)

	job := waitTerminal(t, h.jobs, jobID)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error.Message, "generate")
}

func TestGenerateEmptyResultFailsJob(t *testing.T) {
	h := newHarness(t, nil)
	h.mutateGenerator(t, &fakeGenerator{threads: []models.Thread{}})

	jobID, err := h.svc.Submit(context.Background(), &SubmitRequest{
		OwnerID: "owner-1",
		Kind:    models.JobKindTopic,
		Source:  "a topic",
	})
	require.NoError(t, err)

	job := waitTerminal(t, h.jobs, jobID)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error.Message, "no threads produced")
}

func TestFailedJobCarriesNoResult(t *testing.T) {
	h := newHarness(t, nil)
	h.mutateGenerator(t, &fakeGenerator{err: fmt.Errorf("model overloaded")})

	jobID, err := h.svc.Submit(context.Background(), &SubmitRequest{
		OwnerID: "owner-1",
		Kind:    models.JobKindUpload,
		Source:  "recording.mp3",
	})
	require.NoError(t, err)

	job := waitTerminal(t, h.jobs, jobID)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Nil(t, job.Result, "transcript metadata never survives onto a failed job")
}

// completedSaveFailStorage refuses to persist completed jobs, simulating a
// storage failure at the final stage.
type completedSaveFailStorage struct {
	*recordingJobStorage
}

func (s *completedSaveFailStorage) SaveJob(ctx context.Context, job *models.Job) error {
	if job.Status == models.JobStatusCompleted {
		return fmt.Errorf("disk full")
	}
	return s.recordingJobStorage.SaveJob(ctx, job)
}

func TestCompletionPersistFailureStillFailsJob(t *testing.T) {
	jobs := &completedSaveFailStorage{recordingJobStorage: newRecordingJobStorage()}
	admission := &fakeAdmission{}
	cleanup := &fakeCleanup{}
	generator := &fakeGenerator{threads: []models.Thread{
		{Hook: "hook", Messages: []string{"one"}},
	}}
	config := &common.PipelineConfig{
		DurationLimitSeconds: 3600,
		TranscribeRetryDelay: "1ms",
		MaxThreadsPerJob:     3,
	}
	svc, err := NewService(jobs, admission, &fakeFetcher{}, &fakeTranscriber{}, generator, cleanup, config, arbor.NewLogger())
	require.NoError(t, err)

	jobID, err := svc.Submit(context.Background(), &SubmitRequest{
		OwnerID: "owner-1",
		Kind:    models.JobKindTopic,
		Source:  "a topic",
	})
	require.NoError(t, err)

	job := waitTerminal(t, jobs, jobID)
	assert.Equal(t, models.JobStatusFailed, job.Status, "stored record reaches a terminal state")
	require.NotNil(t, job.Error)
	assert.Contains(t, job.Error.Message, "persist")
	assert.Nil(t, job.Result)
	assert.Equal(t, 0, admission.credited(), "a job that never persisted as completed is not credited")
}

func TestGetStatusEnforcesOwnership(t *testing.T) {
	h := newHarness(t, nil)

	jobID, err := h.svc.Submit(context.Background(), &SubmitRequest{
		OwnerID: "owner-1",
		Kind:    models.JobKindTopic,
		Source:  "a topic",
	})
	require.NoError(t, err)
	waitTerminal(t, h.jobs, jobID)

	_, err = h.svc.GetStatus(context.Background(), "owner-2", jobID)
	assert.ErrorIs(t, err, interfaces.ErrForbidden)

	job, err := h.svc.GetStatus(context.Background(), "owner-1", jobID)
	require.NoError(t, err)
	assert.Equal(t, jobID, job.ID)

	_, err = h.svc.GetStatus(context.Background(), "owner-1", "no-such-job")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestDeleteJobRequiresTerminalState(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	running := &models.Job{
		ID:      "job-running",
		OwnerID: "owner-1",
		Kind:    models.JobKindTopic,
		Status:  models.JobStatusGenerating,
	}
	require.NoError(t, h.jobs.SaveJob(ctx, running))

	err := h.svc.DeleteJob(ctx, "owner-1", "job-running")
	assert.ErrorContains(t, err, "still processing")

	done := &models.Job{
		ID:      "job-done",
		OwnerID: "owner-1",
		Kind:    models.JobKindTopic,
		Status:  models.JobStatusCompleted,
	}
	require.NoError(t, h.jobs.SaveJob(ctx, done))

	assert.ErrorIs(t, h.svc.DeleteJob(ctx, "owner-2", "job-done"), interfaces.ErrForbidden)
	require.NoError(t, h.svc.DeleteJob(ctx, "owner-1", "job-done"))
	_, err = h.jobs.GetJob(ctx, "job-done")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}
