// Package testutil holds in memory collaborators shared by package tests
package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/travigo/livetrack/pkg/ctdf"
)

var ErrInjected = errors.New("injected failure")

// MemoryStore implements positions.Store in memory
type MemoryStore struct {
	mu      sync.Mutex
	records []*ctdf.PositionRecord

	// FailInserts makes the next n inserts fail
	FailInserts int
	FailFinds   bool
}

func NewMemoryStore(records ...*ctdf.PositionRecord) *MemoryStore {
	return &MemoryStore{records: records}
}

func (m *MemoryStore) InsertPosition(_ context.Context, record *ctdf.PositionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailInserts > 0 {
		m.FailInserts--
		return ErrInjected
	}

	m.records = append(m.records, record)
	return nil
}

func (m *MemoryStore) FindPositions(_ context.Context, query *ctdf.QueryVehiclePositions) ([]*ctdf.PositionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailFinds {
		return nil, ErrInjected
	}

	records := []*ctdf.PositionRecord{}
	for _, record := range m.records {
		if record.VehicleKey == query.VehicleKey && record.ObservedAt > query.ObservedAfter {
			records = append(records, record)
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ObservedAt < records[j].ObservedAt
	})

	return records, nil
}

func (m *MemoryStore) Records() []*ctdf.PositionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]*ctdf.PositionRecord{}, m.records...)
}
