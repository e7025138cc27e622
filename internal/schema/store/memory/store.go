// Package memory is the in-process schema store.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"credreg/internal/schema/models"
	id "credreg/pkg/domain"
	"credreg/pkg/platform/sentinel"
)

// InMemory keeps schemas and history in maps guarded by one RWMutex. Schema
// writes are rare; reads dominate.
type InMemory struct {
	mu      sync.RWMutex
	schemas map[id.SchemaID]models.Schema
	history map[id.SchemaID][]models.HistoryEntry
}

func NewInMemory() *InMemory {
	return &InMemory{
		schemas: make(map[id.SchemaID]models.Schema),
		history: make(map[id.SchemaID][]models.HistoryEntry),
	}
}

func (s *InMemory) Create(_ context.Context, schema models.Schema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.schemas[schema.ID]; exists {
		return sentinel.ErrConflict
	}
	stored := schema.Clone()
	s.schemas[schema.ID] = stored
	s.history[schema.ID] = append(s.history[schema.ID], models.HistoryEntry{
		SchemaID:   schema.ID,
		Action:     models.HistoryPublished,
		Version:    schema.Version,
		IsActive:   schema.IsActive,
		Snapshot:   stored.Clone(),
		RecordedAt: schema.CreatedAt,
	})
	return nil
}

func (s *InMemory) Get(_ context.Context, schemaID id.SchemaID) (*models.Schema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	schema, ok := s.schemas[schemaID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := schema.Clone()
	return &out, nil
}

func (s *InMemory) List(_ context.Context) ([]models.Schema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Schema, 0, len(s.schemas))
	for _, schema := range s.schemas {
		out = append(out, schema.Clone())
	}
	slices.SortFunc(out, func(a, b models.Schema) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return out, nil
}

func (s *InMemory) SetActive(_ context.Context, schemaID id.SchemaID, active bool, entry models.HistoryEntry) (*models.Schema, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	schema, ok := s.schemas[schemaID]
	if !ok {
		return nil, false, sentinel.ErrNotFound
	}
	if schema.IsActive == active {
		out := schema.Clone()
		return &out, false, nil
	}
	schema.IsActive = active
	schema.UpdatedAt = entry.RecordedAt
	s.schemas[schemaID] = schema

	entry.SchemaID = schemaID
	entry.Version = schema.Version
	entry.IsActive = active
	entry.Snapshot = schema.Clone()
	s.history[schemaID] = append(s.history[schemaID], entry)

	out := schema.Clone()
	return &out, true, nil
}

func (s *InMemory) History(_ context.Context, schemaID id.SchemaID) ([]models.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, ok := s.history[schemaID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return slices.Clone(entries), nil
}
