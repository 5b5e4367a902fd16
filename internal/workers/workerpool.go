package workers

import "sync"

// WorkerPool executes jobs on a fixed number of goroutines. The relay
// manager uses it to run connection attempts concurrently without spawning
// one goroutine per relay.
type WorkerPool struct {
	jobCh chan func()
	wg    sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// NewWorkerPool starts workerCount workers sharing a buffered job queue.
func NewWorkerPool(workerCount, jobBufferSize int) *WorkerPool {
	wp := &WorkerPool{
		jobCh: make(chan func(), jobBufferSize),
	}
	for i := 0; i < workerCount; i++ {
		go wp.worker()
	}
	return wp
}

func (wp *WorkerPool) worker() {
	for job := range wp.jobCh {
		job()
	}
}

// AddJob enqueues a job without blocking. Returns false when the queue is
// full or the pool is stopped and the job was dropped.
func (wp *WorkerPool) AddJob(job func()) bool {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.stopped {
		return false
	}
	wp.wg.Add(1)
	select {
	case wp.jobCh <- func() {
		defer wp.wg.Done()
		job()
	}:
		return true
	default:
		wp.wg.Done()
		return false
	}
}

// Wait blocks until every accepted job has completed.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

// Stop closes the queue after draining. Safe to call more than once; jobs
// submitted afterwards are rejected rather than accepted on a dead queue.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	wp.mu.Unlock()

	wp.wg.Wait()
	close(wp.jobCh)
}
