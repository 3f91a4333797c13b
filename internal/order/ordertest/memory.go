// Package ordertest provides an in-memory order store for tests.
package ordertest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/proride-store/internal/order"
)

// Store is a concurrency-safe in-memory order.Store.
type Store struct {
	mu        sync.Mutex
	orders    map[string]order.Order
	InsertErr error
	// GetErr is returned by the next GetOrder call, then cleared.
	GetErr error
}

// New returns an empty Store.
func New() *Store {
	return &Store{orders: make(map[string]order.Order)}
}

// InsertOrder implements order.Store.
func (s *Store) InsertOrder(_ context.Context, o order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertErr != nil {
		return s.InsertErr
	}
	if _, exists := s.orders[o.ID]; exists {
		return errors.New("duplicate order id")
	}
	s.orders[o.ID] = o
	return nil
}

// GetOrder implements order.Store.
func (s *Store) GetOrder(_ context.Context, id string) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.GetErr; err != nil {
		s.GetErr = nil
		return order.Order{}, err
	}
	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	return o, nil
}

// ListOrders implements order.Store, newest first.
func (s *Store) ListOrders(_ context.Context, limit int) ([]order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]order.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkPaid implements order.Store.
func (s *Store) MarkPaid(_ context.Context, id, billCode string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Status != order.StatusPendingPayment {
		return false, nil
	}
	o.Status = order.StatusPaid
	o.BillCode = billCode
	o.PaidAt = &at
	s.orders[id] = o
	return true, nil
}

// MarkFailed implements order.Store.
func (s *Store) MarkFailed(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Status != order.StatusPendingPayment {
		return false, nil
	}
	o.Status = order.StatusFailed
	s.orders[id] = o
	return true, nil
}

// Len returns the number of stored orders.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}
