package store

import (
	"context"
	"sync"

	"github.com/dunamismax/downsize/internal/domain"
)

type MemoryResultStore struct {
	mu   sync.RWMutex
	runs map[string][]domain.FileResult
}

func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{
		runs: make(map[string][]domain.FileResult),
	}
}

func (s *MemoryResultStore) Record(_ context.Context, result domain.FileResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[result.RunID] = append(s.runs[result.RunID], result)
	return nil
}

func (s *MemoryResultStore) ListRun(_ context.Context, runID string) ([]domain.FileResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.FileResult, len(s.runs[runID]))
	copy(out, s.runs[runID])
	return out, nil
}
