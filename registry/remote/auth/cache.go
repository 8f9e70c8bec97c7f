package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/ocifetch/ocidist/errdef"
	"github.com/ocifetch/ocidist/internal/syncutil"
)

// DefaultCache is the Cache a Client uses when none is configured.
var DefaultCache Cache = NewCache()

// Cache stores the credentials obtained from a registry's challenge
// negotiation so that subsequent requests to the same registry, and the
// same Bearer scope, can skip the round trip.
type Cache interface {
	// GetScheme reports the authentication scheme previously negotiated
	// with registry, or errdef.ErrNotFound if nothing is cached for it.
	GetScheme(ctx context.Context, registry string) (Scheme, error)
	// GetToken returns the cached credential for registry. key is ignored
	// for SchemeBasic, where exactly one credential is ever held per
	// registry; for SchemeBearer it selects among the tokens held for
	// distinct scopes.
	GetToken(ctx context.Context, registry string, scheme Scheme, key string) (string, error)
	// Set stores the credential fetch returns under registry/scheme/key,
	// collapsing concurrent callers racing on the same key into a single
	// fetch call.
	Set(ctx context.Context, registry string, scheme Scheme, key string, fetch func(context.Context) (string, error)) (string, error)
}

// registryCache holds whatever has been negotiated for a single registry:
// either a single Basic credential, or a set of Bearer tokens keyed by
// scope string.
type registryCache struct {
	scheme    Scheme
	basic     string
	bearerMu  sync.RWMutex
	bearerSet map[string]string
}

// memCache is the default Cache implementation: an in-process map of
// per-registry caches, with a syncutil.Once-based fetch deduplication layer
// so that a burst of requests hitting an uncached registry/scope triggers
// exactly one fetch.
type memCache struct {
	inflight sync.Map // map[string]*syncutil.Once
	mu       sync.RWMutex
	perHost  map[string]*registryCache
}

// NewCache creates a new, empty Cache.
func NewCache() Cache {
	return &memCache{
		perHost: make(map[string]*registryCache),
	}
}

func (c *memCache) entry(registry string) (*registryCache, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rc, ok := c.perHost[registry]
	return rc, ok
}

func (c *memCache) GetScheme(_ context.Context, registry string) (Scheme, error) {
	rc, ok := c.entry(registry)
	if !ok {
		return SchemeUnknown, errdef.ErrNotFound
	}
	return rc.scheme, nil
}

func (c *memCache) GetToken(_ context.Context, registry string, _ Scheme, key string) (string, error) {
	rc, ok := c.entry(registry)
	if !ok {
		return "", errdef.ErrNotFound
	}
	switch rc.scheme {
	case SchemeBasic:
		return rc.basic, nil
	case SchemeBearer:
		rc.bearerMu.RLock()
		token, ok := rc.bearerSet[key]
		rc.bearerMu.RUnlock()
		if !ok {
			return "", errdef.ErrNotFound
		}
		return token, nil
	default:
		return "", errdef.ErrNotFound
	}
}

func (c *memCache) Set(ctx context.Context, registry string, scheme Scheme, key string, fetch func(context.Context) (string, error)) (string, error) {
	switch scheme {
	case SchemeBasic, SchemeBearer:
	default:
		return "", fmt.Errorf("unknown scheme: %s", scheme)
	}

	// collapse concurrent fetches for the same registry/scheme/key.
	dedupKey := registry + " " + scheme.String() + " " + key
	onceValue, _ := c.inflight.LoadOrStore(dedupKey, syncutil.NewOnce())
	once := onceValue.(*syncutil.Once)
	leader, result, err := once.Do(ctx, func() (interface{}, error) {
		return fetch(ctx)
	})
	if leader {
		c.inflight.Delete(dedupKey)
	}
	if err != nil {
		return "", err
	}
	token := result.(string)
	if !leader {
		return token, nil
	}

	c.store(registry, scheme, key, token)
	return token, nil
}

func (c *memCache) store(registry string, scheme Scheme, key, token string) {
	c.mu.Lock()
	rc, ok := c.perHost[registry]
	if !ok {
		rc = &registryCache{scheme: scheme}
		c.perHost[registry] = rc
	}
	c.mu.Unlock()

	rc.scheme = scheme
	switch scheme {
	case SchemeBasic:
		rc.basic = token
	case SchemeBearer:
		rc.bearerMu.Lock()
		if rc.bearerSet == nil {
			rc.bearerSet = make(map[string]string)
		}
		rc.bearerSet[key] = token
		rc.bearerMu.Unlock()
	}
}

// noCache is a Cache that never remembers anything: every Set call fetches
// fresh credentials and GetScheme/GetToken always miss.
type noCache struct{}

func (noCache) GetScheme(context.Context, string) (Scheme, error) {
	return SchemeUnknown, errdef.ErrNotFound
}

func (noCache) GetToken(context.Context, string, Scheme, string) (string, error) {
	return "", errdef.ErrNotFound
}

func (noCache) Set(ctx context.Context, _ string, _ Scheme, _ string, fetch func(context.Context) (string, error)) (string, error) {
	return fetch(ctx)
}
