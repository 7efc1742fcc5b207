// Package notification implementa los sinks de notificaciones del motor: almacén acotado en
// memoria, publicador RabbitMQ y fan-out que nunca propaga fallas.
package notification

import (
	"container/list"
	"context"
	"sync"

	"github.com/jhoicas/claims-engine/internal/domain/entity"
)

// DefaultStoreSize capacidad por defecto del almacén.
const DefaultStoreSize = 1000

// BoundedStore guarda las últimas N notificaciones; al llenarse descarta la más antigua.
type BoundedStore struct {
	mu       sync.Mutex
	capacity int
	items    *list.List
}

// NewBoundedStore crea el almacén con capacity (<= 0 usa DefaultStoreSize).
func NewBoundedStore(capacity int) *BoundedStore {
	if capacity <= 0 {
		capacity = DefaultStoreSize
	}
	return &BoundedStore{capacity: capacity, items: list.New()}
}

// Notify agrega la notificación.
func (s *BoundedStore) Notify(_ context.Context, n entity.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items.PushBack(n)
	for s.items.Len() > s.capacity {
		s.items.Remove(s.items.Front())
	}
	return nil
}

// List devuelve hasta limit notificaciones del tenant, la más reciente primero (limit <= 0 = todas).
func (s *BoundedStore) List(tenantID string, limit int) []entity.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Notification
	for e := s.items.Back(); e != nil; e = e.Prev() {
		n := e.Value.(entity.Notification)
		if n.TenantID != tenantID {
			continue
		}
		out = append(out, n)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Len cantidad almacenada.
func (s *BoundedStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.Len()
}
