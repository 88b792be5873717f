package mailer

import (
	"sync"
	"time"
)

type Kind string

const (
	KindVerification  Kind = "verification"
	KindPasswordReset Kind = "password_reset"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusSending   JobStatus = "sending"
	JobStatusSent      JobStatus = "sent"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Message is a rendered email ready for delivery.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Job tracks a single message through the dispatcher.
type Job struct {
	ID         string
	Kind       Kind
	Message    *Message
	EnqueuedAt time.Time

	mu          sync.RWMutex
	status      JobStatus
	attempts    int
	lastError   string
	completedAt *time.Time
	done        chan struct{}
}

func newJob(id string, kind Kind, msg *Message) *Job {
	return &Job{
		ID:         id,
		Kind:       kind,
		Message:    msg,
		EnqueuedAt: time.Now(),
		status:     JobStatusPending,
		done:       make(chan struct{}),
	}
}

func (j *Job) Status() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

func (j *Job) Attempts() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.attempts
}

// LastError is the message of the most recent failed attempt.
func (j *Job) LastError() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.lastError
}

func (j *Job) CompletedAt() *time.Time {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.completedAt
}

// Done is closed once the job reaches a final status.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

func (j *Job) setStatus(status JobStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = status
}

func (j *Job) recordAttempt(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.attempts++
	if err != nil {
		j.lastError = err.Error()
	}
}

func (j *Job) finish(status JobStatus) {
	j.mu.Lock()
	now := time.Now()
	j.status = status
	j.completedAt = &now
	j.mu.Unlock()
	close(j.done)
}
