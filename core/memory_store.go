package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryRecordStore is a process-local ConnectionRecordStore. It backs tests
// and single-instance deployments that do not configure persistence.
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string]ConnectionRecord
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{records: map[string]ConnectionRecord{}}
}

func (s *MemoryRecordStore) Read(_ context.Context, tenantID string) (ConnectionRecord, error) {
	if s == nil {
		return ConnectionRecord{}, fmt.Errorf("core: memory record store is nil")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return ConnectionRecord{}, fmt.Errorf("core: tenant id is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[tenantID]
	if !ok {
		return NewDisconnectedRecord(tenantID), nil
	}
	return record.Clone(), nil
}

func (s *MemoryRecordStore) CompareAndSwap(
	_ context.Context,
	tenantID string,
	expectedVersion int64,
	next ConnectionRecord,
) (ConnectionRecord, error) {
	if s == nil {
		return ConnectionRecord{}, fmt.Errorf("core: memory record store is nil")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return ConnectionRecord{}, fmt.Errorf("core: tenant id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if existing, ok := s.records[tenantID]; ok {
		current = existing.Version
	}
	if current != expectedVersion {
		return ConnectionRecord{}, fmt.Errorf(
			"%w: tenant %q expected version %d, found %d",
			ErrVersionConflict,
			tenantID,
			expectedVersion,
			current,
		)
	}
	stored := next.Clone()
	stored.TenantID = tenantID
	stored.Version = expectedVersion + 1
	s.records[tenantID] = stored
	return stored.Clone(), nil
}

// ListStale returns records in filter.Status whose last verification is older
// than filter.VerifiedBefore, least recently verified first.
func (s *MemoryRecordStore) ListStale(_ context.Context, filter StaleRecordFilter) ([]ConnectionRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("core: memory record store is nil")
	}
	s.mu.RLock()
	out := make([]ConnectionRecord, 0)
	for _, record := range s.records {
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		if record.LastVerifiedAt != nil && !record.LastVerifiedAt.Before(filter.VerifiedBefore) {
			continue
		}
		out = append(out, record.Clone())
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		left, right := out[i].LastVerifiedAt, out[j].LastVerifiedAt
		switch {
		case left == nil && right == nil:
			return out[i].TenantID < out[j].TenantID
		case left == nil:
			return true
		case right == nil:
			return false
		case left.Equal(*right):
			return out[i].TenantID < out[j].TenantID
		default:
			return left.Before(*right)
		}
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

var (
	_ ConnectionRecordStore = (*MemoryRecordStore)(nil)
	_ RecordLister          = (*MemoryRecordStore)(nil)
)
