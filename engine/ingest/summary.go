package ingest

import (
	"log/slog"
	"sync"

	"github.com/WessleyAI/dealflow/engine/domain"
)

// recorder accumulates the run summary. Sources may run concurrently, so
// every mutation takes the lock.
type recorder struct {
	mu      sync.Mutex
	summary domain.RunSummary
	metrics *Metrics
	log     *slog.Logger
}

func (r *recorder) fail(src domain.Source, where string, err error) {
	r.metrics.failure(where)
	r.log.Warn("ingest: stage failed", "source", src.ID, "where", where, "error", err)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary.Errors = append(r.summary.Errors, domain.RunError{
		SourceID:   src.ID,
		SourceName: src.Name,
		Where:      where,
		Message:    err.Error(),
	})
}

func (r *recorder) update(f func(s *domain.RunSummary)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f(&r.summary)
}

func (r *recorder) snapshot() domain.RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.summary
	s.Errors = append([]domain.RunError{}, r.summary.Errors...)
	return s
}
