// Package memory is the in-process credential store.
package memory

import (
	"context"
	"encoding/binary"
	"sync"

	"credreg/internal/credential/models"
	id "credreg/pkg/domain"
	"credreg/pkg/platform/sentinel"
)

const defaultStripes = 64

type stripe struct {
	mu      sync.RWMutex
	records map[id.CredentialID]models.Record
}

// InMemory stores records in lock stripes keyed by credential id, so writes
// to distinct ids rarely contend. Recipient and issuer indexes hold ids in
// commit order under their own lock.
type InMemory struct {
	stripes []*stripe

	indexMu     sync.RWMutex
	byRecipient map[id.DID][]id.CredentialID
	byIssuer    map[id.DID][]id.CredentialID
}

type Option func(*InMemory)

// WithStripes sets the number of lock stripes. Values below one are ignored.
func WithStripes(n int) Option {
	return func(s *InMemory) {
		if n > 0 {
			s.stripes = newStripes(n)
		}
	}
}

func NewInMemory(opts ...Option) *InMemory {
	s := &InMemory{
		stripes:     newStripes(defaultStripes),
		byRecipient: make(map[id.DID][]id.CredentialID),
		byIssuer:    make(map[id.DID][]id.CredentialID),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newStripes(n int) []*stripe {
	out := make([]*stripe, n)
	for i := range out {
		out[i] = &stripe{records: make(map[id.CredentialID]models.Record)}
	}
	return out
}

func (s *InMemory) stripeFor(credentialID id.CredentialID) *stripe {
	h := binary.BigEndian.Uint64(credentialID[8:])
	return s.stripes[h%uint64(len(s.stripes))]
}

// Put commits a new record. Returns sentinel.ErrConflict if the id exists.
func (s *InMemory) Put(_ context.Context, record models.Record) error {
	st := s.stripeFor(record.ID)
	st.mu.Lock()
	if _, exists := st.records[record.ID]; exists {
		st.mu.Unlock()
		return sentinel.ErrConflict
	}
	st.records[record.ID] = record.Clone()
	// Index under the stripe lock so a listing never misses a committed id.
	s.indexMu.Lock()
	s.byRecipient[record.RecipientDID] = append(s.byRecipient[record.RecipientDID], record.ID)
	s.byIssuer[record.IssuerDID] = append(s.byIssuer[record.IssuerDID], record.ID)
	s.indexMu.Unlock()
	st.mu.Unlock()
	return nil
}

func (s *InMemory) Get(_ context.Context, credentialID id.CredentialID) (*models.Record, error) {
	st := s.stripeFor(credentialID)
	st.mu.RLock()
	defer st.mu.RUnlock()
	record, ok := st.records[credentialID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := record.Clone()
	return &out, nil
}

// ListByRecipient returns the recipient's records oldest first.
func (s *InMemory) ListByRecipient(_ context.Context, recipient id.DID, filter models.ListFilter) ([]models.Record, error) {
	s.indexMu.RLock()
	ids := append([]id.CredentialID(nil), s.byRecipient[recipient]...)
	s.indexMu.RUnlock()
	return s.collect(ids, filter), nil
}

// ListByIssuer returns every record the issuer has issued, oldest first.
func (s *InMemory) ListByIssuer(_ context.Context, issuer id.DID) ([]models.Record, error) {
	s.indexMu.RLock()
	ids := append([]id.CredentialID(nil), s.byIssuer[issuer]...)
	s.indexMu.RUnlock()
	return s.collect(ids, models.ListFilter{IncludeRevoked: true}), nil
}

func (s *InMemory) collect(ids []id.CredentialID, filter models.ListFilter) []models.Record {
	out := make([]models.Record, 0, len(ids))
	for _, credentialID := range ids {
		st := s.stripeFor(credentialID)
		st.mu.RLock()
		record, ok := st.records[credentialID]
		st.mu.RUnlock()
		if ok && filter.Matches(record) {
			out = append(out, record.Clone())
		}
	}
	return out
}

// SetStatus moves a record to status. It reports whether the record changed;
// setting the current status again is a no-op. Returns
// sentinel.ErrInvalidState for a transition the lifecycle forbids.
func (s *InMemory) SetStatus(_ context.Context, credentialID id.CredentialID, status models.Status) (*models.Record, bool, error) {
	st := s.stripeFor(credentialID)
	st.mu.Lock()
	defer st.mu.Unlock()
	record, ok := st.records[credentialID]
	if !ok {
		return nil, false, sentinel.ErrNotFound
	}
	if !record.Status.CanTransitionTo(status) {
		return nil, false, sentinel.ErrInvalidState
	}
	changed := record.Status != status
	if changed {
		record.Status = status
		st.records[credentialID] = record
	}
	out := record.Clone()
	return &out, changed, nil
}

func (s *InMemory) Health(context.Context) error {
	return nil
}
