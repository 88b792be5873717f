package mailer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/elskow/userauth/internal/config"
)

type mockSender struct {
	mu        sync.Mutex
	sent      []*Message
	failFirst int
	calls     int
	block     bool
	started   chan struct{}
}

func (m *mockSender) Send(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	m.calls++
	calls := m.calls
	block := m.block
	m.mu.Unlock()

	if block {
		if m.started != nil {
			close(m.started)
		}
		<-ctx.Done()
		return ctx.Err()
	}

	if calls <= m.failFirst {
		return errors.New("mock smtp failure")
	}

	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	return nil
}

func (m *mockSender) Sent() []*Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Message(nil), m.sent...)
}

type mockRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *mockRecorder) RecordDelivery(kind, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[kind+"/"+status]++
}

func (r *mockRecorder) Count(kind, status string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[kind+"/"+status]
}

func testMailConfig() *config.MailConfig {
	return &config.MailConfig{
		Workers:    2,
		QueueSize:  8,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	}
}

func testMessage() *Message {
	return &Message{
		To:      "alice@example.com",
		Subject: "Verify your email",
		HTML:    "<p>hi</p>",
	}
}

func waitForJob(t *testing.T, job *Job) {
	t.Helper()
	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("job %s did not finish, status %s", job.ID, job.Status())
	}
}

func TestDispatcher_Deliver(t *testing.T) {
	tests := []struct {
		name         string
		failFirst    int
		maxRetries   uint64
		wantStatus   JobStatus
		wantAttempts int
		wantSent     int
	}{
		{
			name:         "first attempt succeeds",
			maxRetries:   3,
			wantStatus:   JobStatusSent,
			wantAttempts: 1,
			wantSent:     1,
		},
		{
			name:         "succeeds after retries",
			failFirst:    2,
			maxRetries:   3,
			wantStatus:   JobStatusSent,
			wantAttempts: 3,
			wantSent:     1,
		},
		{
			name:         "retries exhausted",
			failFirst:    100,
			maxRetries:   2,
			wantStatus:   JobStatusFailed,
			wantAttempts: 3,
			wantSent:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)

			cfg := testMailConfig()
			cfg.MaxRetries = tt.maxRetries
			sender := &mockSender{failFirst: tt.failFirst}
			recorder := &mockRecorder{}

			d := NewDispatcher(cfg, sender, zap.NewNop(), recorder)
			d.Start()

			job, err := d.Enqueue(KindVerification, testMessage())
			require.NoError(t, err)
			waitForJob(t, job)

			assert.Equal(t, tt.wantStatus, job.Status())
			assert.Equal(t, tt.wantAttempts, job.Attempts())
			assert.Len(t, sender.Sent(), tt.wantSent)
			assert.NotNil(t, job.CompletedAt())
			assert.Equal(t, 1, recorder.Count(string(KindVerification), string(tt.wantStatus)))
			if tt.wantStatus == JobStatusFailed {
				assert.Contains(t, job.LastError(), "mock smtp failure")
			}

			require.NoError(t, d.Stop(context.Background()))
		})
	}
}

func TestDispatcher_QueueFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testMailConfig()
	cfg.QueueSize = 1
	recorder := &mockRecorder{}
	d := NewDispatcher(cfg, &mockSender{}, zap.NewNop(), recorder)

	// Not started, so the first job occupies the only slot.
	first, err := d.Enqueue(KindPasswordReset, testMessage())
	require.NoError(t, err)

	_, err = d.Enqueue(KindPasswordReset, testMessage())
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 1, recorder.Count(string(KindPasswordReset), "dropped"))

	require.NoError(t, d.Stop(context.Background()))
	waitForJob(t, first)
	assert.Equal(t, JobStatusCancelled, first.Status())
}

func TestDispatcher_EnqueueAfterStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := NewDispatcher(testMailConfig(), &mockSender{}, zap.NewNop(), nil)
	d.Start()
	require.NoError(t, d.Stop(context.Background()))

	_, err := d.Enqueue(KindVerification, testMessage())
	assert.ErrorIs(t, err, ErrDispatcherClosed)

	// Stopping twice is a no-op.
	assert.NoError(t, d.Stop(context.Background()))
}

func TestDispatcher_StopCancelsInFlight(t *testing.T) {
	defer goleak.VerifyNone(t)

	sender := &mockSender{block: true, started: make(chan struct{})}
	d := NewDispatcher(testMailConfig(), sender, zap.NewNop(), nil)
	d.Start()

	job, err := d.Enqueue(KindVerification, testMessage())
	require.NoError(t, err)

	select {
	case <-sender.started:
	case <-time.After(5 * time.Second):
		t.Fatal("sender was never called")
	}
	assert.Equal(t, JobStatusSending, job.Status())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = d.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	waitForJob(t, job)
	assert.Equal(t, JobStatusCancelled, job.Status())
}

func TestDispatcher_GetJob(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := NewDispatcher(testMailConfig(), &mockSender{}, zap.NewNop(), nil)
	d.Start()
	defer func() {
		require.NoError(t, d.Stop(context.Background()))
	}()

	_, err := d.GetJob("non-existent")
	assert.ErrorIs(t, err, ErrJobNotFound)

	job, err := d.Enqueue(KindVerification, testMessage())
	require.NoError(t, err)

	retrieved, err := d.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, retrieved.ID)
	assert.Equal(t, KindVerification, retrieved.Kind)
}

func TestDispatcher_PruneFinished(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := NewDispatcher(testMailConfig(), &mockSender{}, zap.NewNop(), nil)
	d.Start()
	defer func() {
		require.NoError(t, d.Stop(context.Background()))
	}()

	job, err := d.Enqueue(KindVerification, testMessage())
	require.NoError(t, err)
	waitForJob(t, job)

	assert.Equal(t, 0, d.PruneFinished(time.Hour))

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, d.PruneFinished(time.Millisecond))

	_, err = d.GetJob(job.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
}
