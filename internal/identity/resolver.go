package identity

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/codeface/bugcrawl/internal/types"
)

// Resolver maps a person descriptor to a stable ID.
type Resolver interface {
	ResolvePerson(ctx context.Context, descriptor string) (types.PersonID, error)
}

// PersonStore is the part of the sink StoreResolver needs.
type PersonStore interface {
	GetOrCreatePerson(ctx context.Context, projectID int64, name, email string) (types.PersonID, error)
}

// StoreResolver resolves persons against the sink's person table, keyed by
// project and email.
type StoreResolver struct {
	store     PersonStore
	projectID int64
}

// NewStoreResolver returns a resolver scoped to projectID.
func NewStoreResolver(store PersonStore, projectID int64) *StoreResolver {
	return &StoreResolver{store: store, projectID: projectID}
}

// ResolvePerson implements Resolver.
func (r *StoreResolver) ResolvePerson(ctx context.Context, descriptor string) (types.PersonID, error) {
	name, email := ParseDescriptor(descriptor)
	if email == "" {
		return 0, fmt.Errorf("descriptor %q has no email", descriptor)
	}
	return r.store.GetOrCreatePerson(ctx, r.projectID, name, email)
}

// Cached memoizes a Resolver. Concurrent lookups of the same descriptor
// share one underlying call. Failed lookups are not cached.
type Cached struct {
	next  Resolver
	group singleflight.Group

	mu  sync.RWMutex
	ids map[string]types.PersonID
}

// NewCached wraps next.
func NewCached(next Resolver) *Cached {
	return &Cached{next: next, ids: make(map[string]types.PersonID)}
}

// ResolvePerson implements Resolver.
func (c *Cached) ResolvePerson(ctx context.Context, descriptor string) (types.PersonID, error) {
	c.mu.RLock()
	id, ok := c.ids[descriptor]
	c.mu.RUnlock()
	if ok {
		return id, nil
	}

	v, err, _ := c.group.Do(descriptor, func() (interface{}, error) {
		id, err := c.next.ResolvePerson(ctx, descriptor)
		if err != nil {
			return types.PersonID(0), err
		}
		c.mu.Lock()
		c.ids[descriptor] = id
		c.mu.Unlock()
		return id, nil
	})
	if err != nil {
		return 0, fmt.Errorf("resolve %q: %w", descriptor, err)
	}
	return v.(types.PersonID), nil
}

// Len returns the number of cached descriptors.
func (c *Cached) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ids)
}
