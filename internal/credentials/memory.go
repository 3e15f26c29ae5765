package credentials

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory resolver for tests and database-less
// runs. It mirrors the Store interfaces exactly.
type MemoryStore struct {
	mu      sync.RWMutex
	bundles map[bundleKey]*Bundle
	tenants map[int64]TenantContext
}

type bundleKey struct {
	customerID int64
	platform   string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bundles: make(map[bundleKey]*Bundle),
		tenants: make(map[int64]TenantContext),
	}
}

// Put registers a bundle for a customer and platform.
func (m *MemoryStore) Put(customerID int64, bundle *Bundle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bundles[bundleKey{customerID, bundle.Platform}] = bundle
}

// PutTenant registers tenant context for a campaigner.
func (m *MemoryStore) PutTenant(campaignerID int64, tc TenantContext) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[campaignerID] = tc
}

// Resolve returns the registered bundle, or nil.
func (m *MemoryStore) Resolve(ctx context.Context, customerID, campaignerID int64, platform string) (*Bundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bundles[bundleKey{customerID, platform}], nil
}

// Platforms lists the platforms with a registered bundle.
func (m *MemoryStore) Platforms(ctx context.Context, customerID int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var platforms []string
	for key := range m.bundles {
		if key.customerID == customerID {
			platforms = append(platforms, key.platform)
		}
	}
	return platforms, nil
}

// TenantContext returns the registered tenant context, zero if absent.
func (m *MemoryStore) TenantContext(ctx context.Context, customerID, campaignerID int64) (TenantContext, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tenants[campaignerID], nil
}
