package gpu

import "fmt"

// CacheKey identifies the buffer layout a set of bind groups was built
// against.
type CacheKey struct {
	Passes     int
	Generation uint64
}

// BindGroups holds every bind group a step needs. Groups that depend on
// the current particle index are built for both values.
type BindGroups struct {
	Clear        *BindGroup
	Count        [2]*BindGroup
	Prefix       []*BindGroup
	ClearForSort *BindGroup
	Sort         [2]*BindGroup
	Forces       [2]*BindGroup
	Advance      [2]*BindGroup
}

// BindGroupCache keeps the bind groups of the last Ensure until the key
// changes or Invalidate is called.
type BindGroupCache struct {
	key    CacheKey
	groups *BindGroups
	builds int
}

// Ensure returns the cached groups when key matches, otherwise it calls
// build and caches the result. A failed build leaves the cache empty.
func (c *BindGroupCache) Ensure(key CacheKey, build func() (*BindGroups, error)) (*BindGroups, error) {
	if c.groups != nil && c.key == key {
		return c.groups, nil
	}
	c.groups = nil

	g, err := build()
	if err != nil {
		return nil, fmt.Errorf("build bind groups: %w", err)
	}
	c.key = key
	c.groups = g
	c.builds++
	return g, nil
}

// Invalidate drops the cached groups. Call it whenever a bound buffer is
// recreated.
func (c *BindGroupCache) Invalidate() { c.groups = nil }

// Valid reports whether groups are cached for key.
func (c *BindGroupCache) Valid(key CacheKey) bool { return c.groups != nil && c.key == key }

// Builds counts successful rebuilds.
func (c *BindGroupCache) Builds() int { return c.builds }
