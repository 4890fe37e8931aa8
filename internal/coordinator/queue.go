package coordinator

import "sync"

// mergeQueue is a thread-safe FIFO of merge jobs for one lane.
//
// The queue is unbounded so that a burst of groups from one adapter never
// blocks the adapter while the lane drains.
type mergeQueue struct {
	mu     sync.Mutex
	jobs   []*mergeJob
	closed bool
}

// newMergeQueue creates an empty queue.
func newMergeQueue() *mergeQueue {
	return &mergeQueue{
		jobs: make([]*mergeJob, 0, 8),
	}
}

// Enqueue adds a job to the back of the queue.
// Returns false if the queue is closed.
func (q *mergeQueue) Enqueue(j *mergeJob) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.jobs = append(q.jobs, j)
	return true
}

// TryDequeue removes and returns the front job without blocking.
// Returns (nil, false) if the queue is empty.
func (q *mergeQueue) TryDequeue() (*mergeJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return nil, false
	}

	j := q.jobs[0]

	// Nil out the slot so the backing array does not pin the job's records.
	q.jobs[0] = nil

	if len(q.jobs) == 1 {
		q.jobs = q.jobs[:0]
	} else {
		q.jobs = q.jobs[1:]
	}

	return j, true
}

// Len returns the current queue length.
func (q *mergeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Close marks the queue as accepting no more jobs.
func (q *mergeQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
