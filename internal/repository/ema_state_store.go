package repository

import (
	"sync"

	"SignalDesk/internal/domain/models"
)

// MemoryEMAStateStore holds the EMA cross state per symbol for the life of
// the process. A restart starts every symbol from EMAUnknown.
type MemoryEMAStateStore struct {
	mu sync.RWMutex
	m  map[string]models.EMAState
}

func NewMemoryEMAStateStore() *MemoryEMAStateStore {
	return &MemoryEMAStateStore{m: make(map[string]models.EMAState)}
}

func (s *MemoryEMAStateStore) Get(symbol string) models.EMAState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.m[symbol]; ok {
		return st
	}
	return models.EMAUnknown
}

func (s *MemoryEMAStateStore) Set(symbol string, state models.EMAState) {
	s.mu.Lock()
	s.m[symbol] = state
	s.mu.Unlock()
}
