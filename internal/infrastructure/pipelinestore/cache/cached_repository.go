package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/duragraph/dataflow/internal/domain/pipeline"
	"github.com/duragraph/dataflow/internal/infrastructure/pipelinestore"
)

// cachedDefinition is the JSON-serializable snapshot of a pipeline.Definition
// stored in Redis. Definition's fields are unexported, so the cache layer
// round-trips through this surrogate rather than the aggregate itself.
type cachedDefinition struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Version   string                 `json:"version"`
	Nodes     []pipeline.NodeSpec    `json:"nodes"`
	Edges     []pipeline.EdgeSpec    `json:"edges"`
	Config    map[string]interface{} `json:"config"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

func toCached(d *pipeline.Definition) cachedDefinition {
	return cachedDefinition{
		ID: d.ID(), Name: d.Name(), Version: d.Version(),
		Nodes: d.Nodes(), Edges: d.Edges(), Config: d.Config(),
		CreatedAt: d.CreatedAt(), UpdatedAt: d.UpdatedAt(),
	}
}

func (c cachedDefinition) toDomain() *pipeline.Definition {
	return pipeline.Rehydrate(c.ID, c.Name, c.Version, c.Nodes, c.Edges, c.Config, c.CreatedAt, c.UpdatedAt)
}

// Cached decorates a pipelinestore.Repository with Redis read-through
// caching, the way the reference service's CachedRunRepository decorates
// its Postgres run repository — except here FindByID actually populates
// the cache, since pipeline.Definition (unlike the reference service's Run
// aggregate) is fully JSON-serializable.
type Cached struct {
	repo  pipelinestore.Repository
	cache *RedisCache
	ttl   time.Duration
}

// NewCached wraps repo with a Redis read-through cache. ttl of zero uses a
// five-minute default.
func NewCached(repo pipelinestore.Repository, cache *RedisCache, ttl time.Duration) *Cached {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &Cached{repo: repo, cache: cache, ttl: ttl}
}

func cacheKey(id string) string { return fmt.Sprintf("pipeline_definition:%s", id) }

// FindByID serves from cache on a hit; on a miss, loads from the underlying
// repository and populates the cache.
func (c *Cached) FindByID(ctx context.Context, id string) (*pipeline.Definition, error) {
	var cached cachedDefinition
	if err := c.cache.Get(ctx, cacheKey(id), &cached); err == nil {
		return cached.toDomain(), nil
	}

	def, err := c.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	c.cache.Set(ctx, cacheKey(id), toCached(def), c.ttl)
	return def, nil
}

// Save persists through to the repository and primes the cache.
func (c *Cached) Save(ctx context.Context, def *pipeline.Definition) error {
	if err := c.repo.Save(ctx, def); err != nil {
		return err
	}
	c.cache.Set(ctx, cacheKey(def.ID()), toCached(def), c.ttl)
	return nil
}

// Update persists through to the repository and invalidates the cache entry
// (rather than priming it, since a caller may hold a stale in-memory copy
// that raced this write).
func (c *Cached) Update(ctx context.Context, def *pipeline.Definition) error {
	if err := c.repo.Update(ctx, def); err != nil {
		return err
	}
	return c.cache.Delete(ctx, cacheKey(def.ID()))
}

// FindByName always delegates: the cache is keyed by ID only, since listing
// by name returns a version history that is cheap to recompute and rarely
// re-requested.
func (c *Cached) FindByName(ctx context.Context, name string) ([]*pipeline.Definition, error) {
	return c.repo.FindByName(ctx, name)
}

// Delete persists through to the repository and invalidates the cache.
func (c *Cached) Delete(ctx context.Context, id string) error {
	if err := c.repo.Delete(ctx, id); err != nil {
		return err
	}
	return c.cache.Delete(ctx, cacheKey(id))
}
