package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/aiser/queryengine/types"
)

// MemoryTenantStore is a process-local api.TenantStore keyed by tenant ID.
// It stands in for the original service's tenant/billing database until a
// real persistence layer is wired in; AI-credit usage tracked by
// ratequota.QuotaManager is authoritative for quota decisions, this store
// only carries the plan and limit a tenant was provisioned with.
type MemoryTenantStore struct {
	mu      sync.RWMutex
	tenants map[string]types.Tenant
}

// NewMemoryTenantStore seeds a store from a fixed tenant list, e.g. loaded
// alongside EngineConfig for a demo or single-tenant deployment.
func NewMemoryTenantStore(seed []types.Tenant) *MemoryTenantStore {
	s := &MemoryTenantStore{tenants: make(map[string]types.Tenant, len(seed))}
	for _, t := range seed {
		s.tenants[t.ID] = t
	}
	return s
}

// Put inserts or replaces a tenant record.
func (s *MemoryTenantStore) Put(t types.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.ID] = t
}

func (s *MemoryTenantStore) LoadTenant(ctx context.Context, tenantID string) (types.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return types.Tenant{}, fmt.Errorf("unknown tenant %q", tenantID)
	}
	return t, nil
}
