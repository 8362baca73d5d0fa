package market

import (
	"sync"
	"time"
)

// Manager 缓存两个 outcome 的最新订单簿快照。
// The control loop writes a fresh snapshot each refresh; readers get the
// latest pointer, never a partially-updated book.
type Manager struct {
	mu       sync.RWMutex
	books    map[Outcome]*Book
	fetches  int64
	lastSeen time.Time
}

func NewManager() *Manager {
	return &Manager{books: make(map[Outcome]*Book, 2)}
}

// Update replaces the cached snapshot for one outcome.
func (m *Manager) Update(outcome Outcome, book *Book) {
	if book == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[outcome] = book
	m.fetches++
	m.lastSeen = time.Now()
}

// Book returns the latest snapshot for the outcome, nil if none yet.
func (m *Manager) Book(outcome Outcome) *Book {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.books[outcome]
}

// HasData reports whether both outcomes have at least one snapshot.
func (m *Manager) HasData() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.books[OutcomeYes] != nil && m.books[OutcomeNo] != nil
}

// Stats 返回抓取统计，用于状态输出。
type Stats struct {
	Fetches    int64
	LastUpdate time.Time
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{Fetches: m.fetches, LastUpdate: m.lastSeen}
}
