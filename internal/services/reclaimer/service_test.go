package reclaimer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/threadforge/internal/interfaces"
	"github.com/ternarybob/threadforge/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memTaskStorage struct {
	mu    sync.Mutex
	tasks map[string]*models.CleanupTask
}

func newMemTaskStorage() *memTaskStorage {
	return &memTaskStorage{tasks: map[string]*models.CleanupTask{}}
}

func (m *memTaskStorage) SaveTask(ctx context.Context, task *models.CleanupTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = task
	return nil
}

func (m *memTaskStorage) ListDueTasks(ctx context.Context, dueBefore time.Time) ([]*models.CleanupTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*models.CleanupTask
	for _, task := range m.tasks {
		if !task.DueAt.After(dueBefore) {
			due = append(due, task)
		}
	}
	return due, nil
}

func (m *memTaskStorage) DeleteTask(ctx context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[taskID]; !ok {
		return interfaces.ErrNotFound
	}
	delete(m.tasks, taskID)
	return nil
}

func (m *memTaskStorage) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

type fakeFiles struct {
	mu      sync.Mutex
	deleted []string
	failFor map[string]bool
}

func (f *fakeFiles) Delete(ctx context.Context, artifactRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[artifactRef] {
		return fmt.Errorf("artifact busy")
	}
	f.deleted = append(f.deleted, artifactRef)
	return nil
}

func (f *fakeFiles) deletedRefs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func TestScheduleAndSweep(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	tasks := newMemTaskStorage()
	files := &fakeFiles{failFor: map[string]bool{}}
	svc := NewService(tasks, files, clock, time.Hour, arbor.NewLogger())

	require.NoError(t, svc.Schedule(ctx, "job-1", "/data/artifacts/a.md"))
	require.Equal(t, 1, tasks.count())

	// inside the grace period nothing happens
	require.NoError(t, svc.Sweep(ctx))
	assert.Empty(t, files.deletedRefs())
	assert.Equal(t, 1, tasks.count())

	clock.Advance(time.Hour + time.Minute)
	require.NoError(t, svc.Sweep(ctx))
	assert.Equal(t, []string{"/data/artifacts/a.md"}, files.deletedRefs())
	assert.Equal(t, 0, tasks.count(), "executed tasks are removed")
}

func TestScheduleIgnoresEmptyRef(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Now()}
	tasks := newMemTaskStorage()
	svc := NewService(tasks, &fakeFiles{}, clock, time.Hour, arbor.NewLogger())

	require.NoError(t, svc.Schedule(ctx, "job-1", ""))
	assert.Equal(t, 0, tasks.count())
}

func TestSweepRetainsFailedDeletions(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	tasks := newMemTaskStorage()
	files := &fakeFiles{failFor: map[string]bool{"/data/artifacts/busy.md": true}}
	svc := NewService(tasks, files, clock, time.Minute, arbor.NewLogger())

	require.NoError(t, svc.Schedule(ctx, "job-1", "/data/artifacts/busy.md"))
	require.NoError(t, svc.Schedule(ctx, "job-2", "/data/artifacts/ok.md"))

	clock.Advance(2 * time.Minute)
	require.NoError(t, svc.Sweep(ctx))
	assert.Equal(t, []string{"/data/artifacts/ok.md"}, files.deletedRefs())
	assert.Equal(t, 1, tasks.count(), "failed deletion stays for the next sweep")

	// once the artifact frees up the retained task completes
	files.mu.Lock()
	files.failFor["/data/artifacts/busy.md"] = false
	files.mu.Unlock()
	require.NoError(t, svc.Sweep(ctx))
	assert.Equal(t, 0, tasks.count())
}

func TestStartRejectsDoubleStart(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	svc := NewService(newMemTaskStorage(), &fakeFiles{}, clock, time.Hour, arbor.NewLogger())

	require.NoError(t, svc.Start("*/5 * * * *"))
	defer svc.Stop()
	assert.Error(t, svc.Start("*/5 * * * *"))
}
