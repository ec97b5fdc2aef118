package workqueue

import (
	"container/heap"
	"context"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Config configures a Queue. ThreatThreshold is the verdict score at or
// above which OnThreatDetected fires.
type Config struct {
	MaxConcurrent    int
	MaxRetries       int
	RetryDelay       time.Duration
	ThreatThreshold  float64
	OnThreatDetected func(job *Job, score float64)
}

func (c *Config) setDefaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 4
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.ThreatThreshold <= 0 {
		c.ThreatThreshold = 50
	}
}

// Stats is a point-in-time snapshot of queue throughput.
type Stats struct {
	Processed           int
	Failed              int
	AvgProcessingTimeMs float64
	ThreatRate          float64
	CurrentDepth        int
}

// Queue is a single bounded, in-process priority job queue: enqueue
// re-sorts by (priority, createdAt), ProcessAll pulls up to MaxConcurrent
// jobs in parallel, and terminal failures land in the dead-letter list.
type Queue struct {
	cfg Config

	mu         sync.Mutex
	pending    jobHeap
	processing map[string]*Job
	deadletter []*Job

	processedCount int
	failedCount    int
	totalProcessMs int64
	threatCount    int
}

func NewQueue(cfg Config) *Queue {
	cfg.setDefaults()
	q := &Queue{
		cfg:        cfg,
		processing: make(map[string]*Job),
	}
	heap.Init(&q.pending)
	return q
}

// Enqueue inserts job, re-sorting the pending heap by (priority, createdAt).
func (q *Queue) Enqueue(job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.Status = StatusPending
	heap.Push(&q.pending, job)
	queueDepth.Inc()
}

// ProcessAll pulls every currently pending job and runs handler on up to
// MaxConcurrent of them in parallel, retrying failures up to MaxRetries
// times with RetryDelay between attempts before moving a job to the
// dead-letter list.
func (q *Queue) ProcessAll(ctx context.Context, handler Handler) error {
	q.mu.Lock()
	jobs := make([]*Job, 0, q.pending.Len())
	for q.pending.Len() > 0 {
		j := heap.Pop(&q.pending).(*Job)
		j.Status = StatusProcessing
		q.processing[j.ID] = j
		jobs = append(jobs, j)
	}
	q.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(q.cfg.MaxConcurrent)
	for _, j := range jobs {
		job := j
		g.Go(func() error {
			q.runJob(gctx, job, handler)
			return nil
		})
	}
	return g.Wait()
}

func (q *Queue) runJob(ctx context.Context, job *Job, handler Handler) {
	maxAttempts := q.cfg.MaxRetries + 1
	start := time.Now()

	for {
		job.Attempts++
		res := handler(job)
		if res.Err == nil {
			q.finishSuccess(job, res.Score, time.Since(start))
			return
		}

		job.LastError = res.Err.Error()
		if job.Attempts >= maxAttempts {
			q.finishDeadletter(job)
			return
		}

		select {
		case <-time.After(q.cfg.RetryDelay):
		case <-ctx.Done():
			q.finishDeadletter(job)
			return
		}
	}
}

func (q *Queue) finishSuccess(job *Job, score float64, elapsed time.Duration) {
	job.Status = StatusDone
	job.Score = score
	job.ProcessMs = elapsed.Milliseconds()

	q.mu.Lock()
	delete(q.processing, job.ID)
	q.processedCount++
	q.totalProcessMs += job.ProcessMs
	isThreat := score >= q.cfg.ThreatThreshold
	if isThreat {
		q.threatCount++
	}
	q.mu.Unlock()

	queueDepth.Dec()
	jobsProcessed.WithLabelValues("done").Inc()
	jobDuration.Observe(elapsed.Seconds())

	if isThreat && q.cfg.OnThreatDetected != nil {
		q.cfg.OnThreatDetected(job, score)
	}
}

func (q *Queue) finishDeadletter(job *Job) {
	job.Status = StatusDeadletter

	q.mu.Lock()
	delete(q.processing, job.ID)
	q.failedCount++
	q.deadletter = append(q.deadletter, job)
	q.mu.Unlock()

	queueDepth.Dec()
	jobsProcessed.WithLabelValues("deadletter").Inc()
}

// Stats returns a snapshot of processed/failed counts, average processing
// time, threat rate and current pending depth.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Stats{
		Processed:    q.processedCount,
		Failed:       q.failedCount,
		CurrentDepth: q.pending.Len(),
	}
	if q.processedCount > 0 {
		s.AvgProcessingTimeMs = float64(q.totalProcessMs) / float64(q.processedCount)
		s.ThreatRate = float64(q.threatCount) / float64(q.processedCount)
	}
	return s
}

// DeadLetter returns a copy of the current dead-letter list.
func (q *Queue) DeadLetter() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Job, len(q.deadletter))
	copy(out, q.deadletter)
	return out
}

// serializedState is the on-the-wire shape for Serialize/Deserialize.
type serializedState struct {
	Pending    []*Job `json:"pending"`
	Processing []*Job `json:"processing"`
	DeadLetter []*Job `json:"deadletter"`
}

// Serialize round-trips pending, in-flight and dead-letter jobs so a
// restart can rehydrate the queue without losing work.
func (q *Queue) Serialize() ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	state := serializedState{
		Pending:    append([]*Job(nil), q.pending...),
		DeadLetter: append([]*Job(nil), q.deadletter...),
	}
	for _, j := range q.processing {
		state.Processing = append(state.Processing, j)
	}
	return json.Marshal(state)
}

// Deserialize rehydrates a queue from Serialize's output. Jobs that were
// "processing" at the time of serialization are requeued as pending, since
// their in-flight work was lost with the old process.
func Deserialize(data []byte, cfg Config) (*Queue, error) {
	var state serializedState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}

	q := NewQueue(cfg)
	for _, j := range state.Pending {
		q.Enqueue(j)
	}
	for _, j := range state.Processing {
		j.Status = StatusPending
		q.Enqueue(j)
	}
	q.deadletter = append(q.deadletter, state.DeadLetter...)
	return q, nil
}
