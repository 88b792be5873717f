package mailer

import (
	"time"

	"go.uber.org/zap"
)

const (
	jobRetention    = 15 * time.Minute
	cleanupInterval = time.Minute
)

// PruneFinished forgets jobs that completed more than maxAge ago and
// returns how many were removed.
func (d *Dispatcher) PruneFinished(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for id, job := range d.jobs {
		completedAt := job.CompletedAt()
		if completedAt != nil && completedAt.Before(cutoff) {
			delete(d.jobs, id)
			removed++
		}
	}
	return removed
}

func (d *Dispatcher) cleanupLoop() {
	defer close(d.cleanupDone)

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			if n := d.PruneFinished(jobRetention); n > 0 {
				d.logger.Debug("pruned finished mail jobs", zap.Int("count", n))
			}
		}
	}
}
