// Package archive writes format results to the store behind the request path.
package archive

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const jobTimeout = 15 * time.Second

type Job struct {
	RequestKey  string
	CountryCode string
	Components  map[string]string
	Formatted   string
}

// Queue runs jobs on a fixed set of workers. A key that is already queued or
// running is not queued again, and jobs are dropped when the buffer is full.
type Queue struct {
	ch      chan Job
	inFly   sync.Map // key -> struct{}
	limiter *rate.Limiter
	Do      func(ctx context.Context, j Job)

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewQueue starts workerCount workers. perSecond caps how many jobs start per
// second across all workers; zero or less means no cap.
func NewQueue(capacity, workerCount int, perSecond float64, do func(ctx context.Context, j Job)) *Queue {
	if capacity <= 0 {
		capacity = 256
	}
	if workerCount <= 0 {
		workerCount = 2
	}
	limit := rate.Inf
	burst := 1
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
		if perSecond > 1 {
			burst = int(perSecond)
		}
	}
	q := &Queue{
		ch:      make(chan Job, capacity),
		limiter: rate.NewLimiter(limit, burst),
		Do:      do,
	}
	q.wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go q.worker()
	}
	return q
}

// Enqueue reports whether j was accepted.
func (q *Queue) Enqueue(j Job) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	if _, exists := q.inFly.LoadOrStore(j.RequestKey, struct{}{}); exists {
		return false
	}
	select {
	case q.ch <- j:
		return true
	default:
		q.inFly.Delete(j.RequestKey)
		return false
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for j := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		func() {
			defer func() {
				q.inFly.Delete(j.RequestKey)
				cancel()
			}()
			if err := q.limiter.Wait(ctx); err != nil {
				return
			}
			if q.Do != nil {
				q.Do(ctx, j)
			}
		}()
	}
}
