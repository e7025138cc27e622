// Package memory keeps recently completed batch results in process.
package memory

import (
	"context"
	"sync"

	"credreg/internal/bulk/models"
	credmodels "credreg/internal/credential/models"
	id "credreg/pkg/domain"
	"credreg/pkg/platform/sentinel"
)

const defaultCapacity = 1000

// InMemory retains the most recent batch results, evicting the oldest once
// capacity is reached.
type InMemory struct {
	mu       sync.RWMutex
	capacity int
	order    []id.BatchID
	results  map[id.BatchID]models.Result
}

func NewInMemory(capacity int) *InMemory {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &InMemory{capacity: capacity, results: make(map[id.BatchID]models.Result)}
}

func (s *InMemory) Save(_ context.Context, result models.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.results[result.BatchID]; exists {
		return sentinel.ErrConflict
	}
	if len(s.order) >= s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.results, oldest)
	}
	s.order = append(s.order, result.BatchID)
	s.results[result.BatchID] = clone(result)
	return nil
}

func (s *InMemory) Get(_ context.Context, batchID id.BatchID) (*models.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[batchID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := clone(result)
	return &out, nil
}

func clone(r models.Result) models.Result {
	r.Results = append([]models.Record(nil), r.Results...)
	for i := range r.Results {
		row := &r.Results[i]
		row.Claims = credmodels.Claims(row.Claims).Clone()
		if row.CredentialID != nil {
			credentialID := *row.CredentialID
			row.CredentialID = &credentialID
		}
		if row.IssuedAt != nil {
			issuedAt := *row.IssuedAt
			row.IssuedAt = &issuedAt
		}
	}
	return r
}
