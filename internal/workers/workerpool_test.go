package workers

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkerPoolRunsJobs(t *testing.T) {
	wp := NewWorkerPool(4, 16)
	defer wp.Stop()

	var ran int64
	for i := 0; i < 10; i++ {
		assert.True(t, wp.AddJob(func() { atomic.AddInt64(&ran, 1) }))
	}
	wp.Wait()
	assert.Equal(t, int64(10), atomic.LoadInt64(&ran))
}

func TestWorkerPoolDropsWhenFull(t *testing.T) {
	wp := NewWorkerPool(1, 1)
	defer wp.Stop()

	block := make(chan struct{})
	wp.AddJob(func() { <-block })

	dropped := 0
	for i := 0; i < 50; i++ {
		if !wp.AddJob(func() {}) {
			dropped++
		}
	}
	assert.Greater(t, dropped, 0, "a full queue drops jobs instead of blocking")
	close(block)
	wp.Wait()
}

func TestWorkerPoolStopIdempotent(t *testing.T) {
	wp := NewWorkerPool(2, 4)
	wp.AddJob(func() {})
	wp.Stop()
	wp.Stop()
}

func TestWorkerPoolRejectsJobsAfterStop(t *testing.T) {
	wp := NewWorkerPool(2, 4)
	wp.Stop()

	assert.NotPanics(t, func() {
		assert.False(t, wp.AddJob(func() {}), "a stopped pool rejects jobs")
	})
}
