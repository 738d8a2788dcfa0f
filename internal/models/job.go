package models

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job status values.
const (
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
	JobCancelled = "cancelled"
)

// Job represents an async deduper run started through the HTTP API.
type Job struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"` // "dedupe", "rules"
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
	Output     []string   `json:"output"`

	result any
	cancel context.CancelFunc
	mu     sync.Mutex
}

// JobView is a point-in-time copy of a job, safe to serialize.
type JobView struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
	Lines      int        `json:"lines"`
}

// View copies the job's public state under its lock.
func (j *Job) View() JobView {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobView{
		ID:         j.ID,
		Type:       j.Type,
		Status:     j.Status,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
		Error:      j.Error,
		Lines:      len(j.Output),
	}
}

// AppendLog adds a log line to the job output.
func (j *Job) AppendLog(line string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Output = append(j.Output, line)
}

// LogsSince returns log lines starting from the given index.
func (j *Job) LogsSince(offset int) []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	if offset >= len(j.Output) {
		return nil
	}
	lines := make([]string, len(j.Output)-offset)
	copy(lines, j.Output[offset:])
	return lines
}

// State returns the status and error message under the job lock.
func (j *Job) State() (status, errMsg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.Status, j.Error
}

// Result returns the value stored by Complete.
func (j *Job) Result() any {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// Complete marks the job as completed and stores its result.
func (j *Job) Complete(result any) {
	j.finish(JobCompleted, "", result)
}

// Fail marks the job as failed with an error message.
func (j *Job) Fail(err string) {
	j.finish(JobFailed, err, nil)
}

// Cancel stops a running job. It returns false if the job already finished.
func (j *Job) Cancel() bool {
	j.mu.Lock()
	cancel := j.cancel
	running := j.Status == JobRunning
	j.mu.Unlock()
	if !running {
		return false
	}
	if cancel != nil {
		cancel()
	}
	j.finish(JobCancelled, "cancelled by user", nil)
	return true
}

// SetCancel registers the function that aborts the job's context.
func (j *Job) SetCancel(cancel context.CancelFunc) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cancel = cancel
}

func (j *Job) finish(status, errMsg string, result any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status != JobRunning {
		return
	}
	j.Status = status
	j.Error = errMsg
	j.result = result
	now := time.Now()
	j.FinishedAt = &now
}

// JobStore is an in-memory thread-safe store for jobs.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewJobStore creates an empty job store.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*Job)}
}

// Create adds a new job, assigning it a UUID.
func (s *JobStore) Create(jobType string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := &Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Status:    JobRunning,
		StartedAt: time.Now(),
		Output:    []string{},
	}
	s.jobs[j.ID] = j
	return j
}

// Get returns a job by ID.
func (s *JobStore) Get(id string) *Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobs[id]
}

// List returns all jobs, most recent first.
func (s *JobStore) List() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		result = append(result, j)
	}
	sort.Slice(result, func(a, b int) bool {
		return result[a].StartedAt.After(result[b].StartedAt)
	})
	return result
}
