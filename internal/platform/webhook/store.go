package webhook

import (
	"context"
	"fmt"
	"sync"
)

// WebhookStore is the persistence boundary for endpoints and their delivery
// log. The in-memory implementation below backs tests and single-node
// deployments; a database-backed one can slot in without touching the
// manager.
type WebhookStore interface {
	CreateEndpoint(ctx context.Context, endpoint *WebhookEndpoint) error
	GetEndpoint(ctx context.Context, id string) (*WebhookEndpoint, error)
	ListEndpoints(ctx context.Context, limit, offset int) ([]*WebhookEndpoint, int, error)
	UpdateEndpoint(ctx context.Context, endpoint *WebhookEndpoint) error
	DeleteEndpoint(ctx context.Context, id string) error
	RecordDelivery(ctx context.Context, attempt *DeliveryAttempt) error
	ListDeliveries(ctx context.Context, webhookID string, limit, offset int) ([]*DeliveryAttempt, int, error)
	GetDelivery(ctx context.Context, id string) (*DeliveryAttempt, error)
}

// InMemoryWebhookStore keeps endpoints and deliveries in insertion-ordered
// slices under one lock. Webhook counts are small (tens, not thousands), so
// linear scans beat the bookkeeping of an indexed structure.
type InMemoryWebhookStore struct {
	mu         sync.RWMutex
	endpoints  []*WebhookEndpoint
	deliveries []*DeliveryAttempt
}

// NewInMemoryWebhookStore creates a new empty in-memory store.
func NewInMemoryWebhookStore() *InMemoryWebhookStore {
	return &InMemoryWebhookStore{}
}

// page slices items to one page, clamping at the ends.
func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func (s *InMemoryWebhookStore) endpointIndex(id string) int {
	for i, ep := range s.endpoints {
		if ep.ID == id {
			return i
		}
	}
	return -1
}

func (s *InMemoryWebhookStore) CreateEndpoint(_ context.Context, ep *WebhookEndpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.endpointIndex(ep.ID); i >= 0 {
		s.endpoints[i] = ep
		return nil
	}
	s.endpoints = append(s.endpoints, ep)
	return nil
}

func (s *InMemoryWebhookStore) GetEndpoint(_ context.Context, id string) (*WebhookEndpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.endpointIndex(id); i >= 0 {
		return s.endpoints[i], nil
	}
	return nil, fmt.Errorf("endpoint %s not found", id)
}

func (s *InMemoryWebhookStore) ListEndpoints(_ context.Context, limit, offset int) ([]*WebhookEndpoint, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return page(s.endpoints, limit, offset), len(s.endpoints), nil
}

func (s *InMemoryWebhookStore) UpdateEndpoint(_ context.Context, ep *WebhookEndpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.endpointIndex(ep.ID)
	if i < 0 {
		return fmt.Errorf("endpoint %s not found", ep.ID)
	}
	s.endpoints[i] = ep
	return nil
}

func (s *InMemoryWebhookStore) DeleteEndpoint(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.endpointIndex(id)
	if i < 0 {
		return fmt.Errorf("endpoint %s not found", id)
	}
	s.endpoints = append(s.endpoints[:i], s.endpoints[i+1:]...)
	return nil
}

// RecordDelivery appends the attempt, or replaces it in place when an
// attempt with the same ID was recorded before.
func (s *InMemoryWebhookStore) RecordDelivery(_ context.Context, attempt *DeliveryAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.deliveries {
		if d.ID == attempt.ID {
			s.deliveries[i] = attempt
			return nil
		}
	}
	s.deliveries = append(s.deliveries, attempt)
	return nil
}

func (s *InMemoryWebhookStore) ListDeliveries(_ context.Context, webhookID string, limit, offset int) ([]*DeliveryAttempt, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*DeliveryAttempt
	for _, d := range s.deliveries {
		if d.WebhookID == webhookID {
			matched = append(matched, d)
		}
	}
	return page(matched, limit, offset), len(matched), nil
}

func (s *InMemoryWebhookStore) GetDelivery(_ context.Context, id string) (*DeliveryAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.deliveries {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, fmt.Errorf("delivery %s not found", id)
}
