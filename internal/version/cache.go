package version

import (
	"context"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"
)

// BuildFunc builds the version map of one release train reference.
type BuildFunc func(ctx context.Context, ref string) (*Map, error)

// MapCache caches one Map per release train reference (branch or tag).
// Concurrent requests for the same reference share a single build.
// A MapCache belongs to one release run; call Clear when the run ends.
type MapCache struct {
	mu     sync.RWMutex
	maps   map[string]*Map
	flight singleflight.Group
}

// NewMapCache creates an empty MapCache.
func NewMapCache() *MapCache {
	return &MapCache{maps: make(map[string]*Map)}
}

// Get returns the cached map for ref.
func (c *MapCache) Get(ref string) (*Map, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.maps[ref]
	return m, ok
}

// GetOrBuild returns the cached map for ref, building it with build on a miss.
// Build errors are not cached.
func (c *MapCache) GetOrBuild(ctx context.Context, ref string, build BuildFunc) (*Map, error) {
	if m, ok := c.Get(ref); ok {
		return m, nil
	}

	result, err, _ := c.flight.Do(ref, func() (any, error) {
		if m, ok := c.Get(ref); ok {
			return m, nil
		}
		m, err := build(ctx, ref)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.maps[ref] = m
		c.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Map), nil
}

// Len returns the number of cached maps.
func (c *MapCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.maps)
}

// Clear drops every cached map.
func (c *MapCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maps = make(map[string]*Map)
}

// LoadFunc reads the current version of the project rooted at root.
type LoadFunc func(root string) (ProjectVersion, error)

// ProjectCache caches the resolved ProjectVersion of each project root so
// that several steps of one project read its descriptor once.
type ProjectCache struct {
	mu       sync.Mutex
	versions map[string]ProjectVersion
}

// NewProjectCache creates an empty ProjectCache.
func NewProjectCache() *ProjectCache {
	return &ProjectCache{versions: make(map[string]ProjectVersion)}
}

func cacheKey(root string) string {
	if abs, err := filepath.Abs(root); err == nil {
		return abs
	}
	return filepath.Clean(root)
}

// GetOrLoad returns the cached version for root, loading it on a miss.
func (c *ProjectCache) GetOrLoad(root string, load LoadFunc) (ProjectVersion, error) {
	key := cacheKey(root)

	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.versions[key]; ok {
		return v, nil
	}
	v, err := load(root)
	if err != nil {
		return ProjectVersion{}, err
	}
	c.versions[key] = v
	return v, nil
}

// Put stores v for root, replacing any cached value. Steps that change a
// project's version call Put so later steps see the new one.
func (c *ProjectCache) Put(root string, v ProjectVersion) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[cacheKey(root)] = v
}

// Invalidate forgets the cached version of root.
func (c *ProjectCache) Invalidate(root string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.versions, cacheKey(root))
}

// Len returns the number of cached projects.
func (c *ProjectCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.versions)
}

// Clear drops every cached version.
func (c *ProjectCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions = make(map[string]ProjectVersion)
}
