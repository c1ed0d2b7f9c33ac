package scheduler

import (
	"sync"

	"github.com/ternarybob/agito/internal/models"
)

// jobHistory retains the most recent job executions in a bounded ring.
type jobHistory struct {
	mu      sync.RWMutex
	limit   int
	entries []*models.JobExecution
}

func newJobHistory(limit int) *jobHistory {
	return &jobHistory{
		limit:   limit,
		entries: make([]*models.JobExecution, 0, limit),
	}
}

func (h *jobHistory) add(run *models.JobExecution) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, run)
	for len(h.entries) > h.limit {
		h.entries = h.entries[1:]
	}
}

// list returns retained runs newest first, optionally filtered by job ID.
func (h *jobHistory) list(jobID string, limit int) []*models.JobExecution {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit <= 0 || limit > len(h.entries) {
		limit = len(h.entries)
	}

	result := make([]*models.JobExecution, 0, limit)
	for i := len(h.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if jobID != "" && h.entries[i].JobID != jobID {
			continue
		}
		result = append(result, h.entries[i])
	}
	return result
}
