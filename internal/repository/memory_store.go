package repository

import (
	"context"
	"fmt"
	"sync"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/domain/repository"
)

// MemoryOrderStore is an in-memory OrderStore used when no database
// is configured, and by tests.
type MemoryOrderStore struct {
	mu     sync.RWMutex
	orders map[string]*models.Order
}

// NewMemoryOrderStore creates an empty store.
func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{orders: make(map[string]*models.Order)}
}

func (m *MemoryOrderStore) Create(_ context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.orders[order.OrderID]; exists {
		return fmt.Errorf("%w: %s", repository.ErrOrderExists, order.OrderID)
	}
	cp := *order
	m.orders[order.OrderID] = &cp
	return nil
}

func (m *MemoryOrderStore) Update(_ context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.orders[order.OrderID]; !exists {
		return fmt.Errorf("%w: %s", repository.ErrOrderNotFound, order.OrderID)
	}
	cp := *order
	m.orders[order.OrderID] = &cp
	return nil
}

func (m *MemoryOrderStore) Get(_ context.Context, orderID string) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, exists := m.orders[orderID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", repository.ErrOrderNotFound, orderID)
	}
	cp := *o
	return &cp, nil
}

func (m *MemoryOrderStore) ListPending(_ context.Context) ([]*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Order
	for _, o := range m.orders {
		if !o.Status.Terminal() {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryOrderStore) Close() error { return nil }
