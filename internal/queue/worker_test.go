package queue

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupWorkerTest() (*WorkerPool, *Manager, *Registry) {
	manager := NewManager(NewMemoryQueue())
	registry := NewRegistry()
	pool := NewWorkerPool(manager, registry, 2)
	return pool, manager, registry
}

func enqueueTestJob(t *testing.T, manager *Manager, id string, jobType JobType, maxRetries int) {
	t.Helper()
	require.NoError(t, manager.Enqueue(&Job{
		ID:          id,
		Type:        jobType,
		Priority:    PriorityMedium,
		Payload:     map[string]interface{}{"account_id": "alice"},
		CreatedAt:   time.Now(),
		AvailableAt: time.Now(),
		MaxRetries:  maxRetries,
	}))
}

func TestWorkerPool_ProcessJob(t *testing.T) {
	pool, manager, registry := setupWorkerTest()

	var mu sync.Mutex
	processed := []string{}
	registry.Register(JobTypeSubmitOrder, func(job *Job) error {
		mu.Lock()
		processed = append(processed, job.ID)
		mu.Unlock()
		return nil
	})

	enqueueTestJob(t, manager, "job-1", JobTypeSubmitOrder, 0)

	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(processed) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, "job-1", processed[0])
	mu.Unlock()
	assert.Equal(t, 0, manager.Size())
}

func TestWorkerPool_RetryWithBackoff(t *testing.T) {
	pool, manager, registry := setupWorkerTest()

	var mu sync.Mutex
	attempts := 0
	registry.Register(JobTypeReconcile, func(job *Job) error {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 2 {
			return errors.New("transient scrape failure")
		}
		return nil
	})

	enqueueTestJob(t, manager, "job-retry", JobTypeReconcile, 3)

	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts >= 2
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWorkerPool_MaxRetriesExhausted(t *testing.T) {
	pool, manager, registry := setupWorkerTest()

	var mu sync.Mutex
	attempts := 0
	registry.Register(JobTypeBackupSnapshot, func(job *Job) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("bucket unreachable")
	})

	enqueueTestJob(t, manager, "job-fail", JobTypeBackupSnapshot, 1)

	pool.Start()
	defer pool.Stop()

	// Initial attempt plus one retry, then the job is dropped.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts == 2
	}, 5*time.Second, 20*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 2, attempts)
	mu.Unlock()
}

func TestWorkerPool_MissingHandlerDropsJob(t *testing.T) {
	pool, manager, _ := setupWorkerTest()

	enqueueTestJob(t, manager, "job-unknown", JobType("no_such_type"), 0)

	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		return manager.Size() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWorkerPool_RecoversFromPanic(t *testing.T) {
	pool, manager, registry := setupWorkerTest()

	var mu sync.Mutex
	processed := 0
	registry.Register(JobTypeSubmitOrder, func(job *Job) error {
		if job.ID == "job-panic" {
			panic("handler exploded")
		}
		mu.Lock()
		processed++
		mu.Unlock()
		return nil
	})

	enqueueTestJob(t, manager, "job-panic", JobTypeSubmitOrder, 0)
	enqueueTestJob(t, manager, "job-ok", JobTypeSubmitOrder, 0)

	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return processed == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWorkerPool_StartStopRestart(t *testing.T) {
	pool, manager, registry := setupWorkerTest()

	var mu sync.Mutex
	processed := 0
	registry.Register(JobTypeSubmitOrder, func(job *Job) error {
		mu.Lock()
		processed++
		mu.Unlock()
		return nil
	})

	pool.Start()
	pool.Stop()

	enqueueTestJob(t, manager, "job-after-restart", JobTypeSubmitOrder, 0)
	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return processed == 1
	}, 2*time.Second, 10*time.Millisecond)
}
