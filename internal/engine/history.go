package engine

import (
	"sync"

	"github.com/ternarybob/agito/internal/models"
)

// executionHistory retains the most recent executions in a bounded ring.
type executionHistory struct {
	mu      sync.RWMutex
	limit   int
	entries []*models.Execution
	byID    map[string]*models.Execution
}

func newExecutionHistory(limit int) *executionHistory {
	return &executionHistory{
		limit:   limit,
		entries: make([]*models.Execution, 0, limit),
		byID:    make(map[string]*models.Execution),
	}
}

func (h *executionHistory) add(exec *models.Execution) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, exec)
	h.byID[exec.ID] = exec

	for len(h.entries) > h.limit {
		evicted := h.entries[0]
		h.entries = h.entries[1:]
		delete(h.byID, evicted.ID)
	}
}

func (h *executionHistory) get(id string) (*models.Execution, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	exec, ok := h.byID[id]
	return exec, ok
}

// list returns retained executions, most recent first.
func (h *executionHistory) list(limit int) []*models.Execution {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit <= 0 || limit > len(h.entries) {
		limit = len(h.entries)
	}

	result := make([]*models.Execution, 0, limit)
	for i := len(h.entries) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, h.entries[i])
	}
	return result
}
