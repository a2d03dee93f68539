package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/Akash-Sakala/AgriQNet/internal/processing"
)

// MemoryStore mantiene todo en memoria. Útil para tests y demos sin disco.
type MemoryStore struct {
	mu     sync.RWMutex
	subs   map[string]map[string]struct{}
	alerts []processing.Alert
}

func NewMemory() *MemoryStore {
	return &MemoryStore{subs: map[string]map[string]struct{}{}}
}

func (m *MemoryStore) AddSubscriber(_ context.Context, district, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.subs[district]
	if !ok {
		set = map[string]struct{}{}
		m.subs[district] = set
	}
	set[phone] = struct{}{}
	return nil
}

func (m *MemoryStore) Subscribers(_ context.Context, district string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.subs[district]))
	for p := range m.subs[district] {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) Counts(_ context.Context) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int, len(m.subs))
	for d, set := range m.subs {
		out[d] = len(set)
	}
	return out, nil
}

func (m *MemoryStore) SaveAlert(_ context.Context, a processing.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID == a.ID {
			m.alerts[i] = a
			return nil
		}
	}
	m.alerts = append(m.alerts, a)
	if len(m.alerts) > maxAlerts {
		m.alerts = m.alerts[len(m.alerts)-maxAlerts:]
	}
	return nil
}

func (m *MemoryStore) ListAlerts(_ context.Context, limit int) ([]processing.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]processing.Alert, len(m.alerts))
	copy(out, m.alerts)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
