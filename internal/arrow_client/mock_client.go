package arrow_client

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
)

// MockFlightClient keeps published records in memory.
type MockFlightClient struct {
	mu        sync.RWMutex
	connected bool
	records   map[string]arrow.Record
}

func NewMockFlightClient() *MockFlightClient {
	return &MockFlightClient{records: make(map[string]arrow.Record)}
}

func (m *MockFlightClient) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

// Close releases every stored record.
func (m *MockFlightClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	for k, r := range m.records {
		r.Release()
		delete(m.records, k)
	}
	return nil
}

func (m *MockFlightClient) Publish(ctx context.Context, path []string, rec arrow.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return fmt.Errorf("client not connected")
	}
	key := strings.Join(path, "/")
	if old, ok := m.records[key]; ok {
		old.Release()
	}
	rec.Retain()
	m.records[key] = rec
	return nil
}

// Record returns the record last published under the joined path.
func (m *MockFlightClient) Record(path ...string) (arrow.Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[strings.Join(path, "/")]
	return r, ok
}

func (m *MockFlightClient) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	paths := make([]string, 0, len(m.records))
	for k := range m.records {
		paths = append(paths, k)
	}
	return paths
}
