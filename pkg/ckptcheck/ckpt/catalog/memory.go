package catalog

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory catalog.
// Data is lost when the process exits, so it only serves jobs whose
// restart runs in the same process.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]map[int]storedRecord // execID -> rank -> record
	closed bool
}

type storedRecord struct {
	data      []byte
	sequence  int
	timestamp time.Time
}

// NewMemoryStore creates a new in-memory catalog.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[int]storedRecord),
	}
}

// Save implements Store.
func (m *MemoryStore) Save(execID string, rank, seq int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	if m.data[execID] == nil {
		m.data[execID] = make(map[int]storedRecord)
	}

	// Copy data to avoid retaining caller's slice
	stored := make([]byte, len(data))
	copy(stored, data)

	m.data[execID][rank] = storedRecord{
		data:      stored,
		sequence:  seq,
		timestamp: time.Now().UTC(),
	}
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(execID string, rank int) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	rec, ok := m.data[execID][rank]
	if !ok {
		return nil, ErrNotFound
	}

	result := make([]byte, len(rec.data))
	copy(result, rec.data)
	return result, nil
}

// List implements Store.
func (m *MemoryStore) List(execID string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	run := m.data[execID]
	infos := make([]Info, 0, len(run))
	for rank, rec := range run {
		infos = append(infos, Info{
			ExecID:    execID,
			Rank:      rank,
			Sequence:  rec.sequence,
			Timestamp: rec.timestamp,
			Size:      int64(len(rec.data)),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Rank < infos[j].Rank
	})
	return infos, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(execID string, rank int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	if run, ok := m.data[execID]; ok {
		delete(run, rank)
	}
	return nil
}

// DeleteRun implements Store.
func (m *MemoryStore) DeleteRun(execID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	delete(m.data, execID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.data = nil
	return nil
}

// Len returns the total number of records across all executions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, run := range m.data {
		count += len(run)
	}
	return count
}
