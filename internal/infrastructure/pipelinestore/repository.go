// Package pipelinestore defines the storage contract for pipeline
// definitions, implemented by pipelinestore/postgres (system of record) and
// decorated by pipelinestore/cache (Redis read-through).
package pipelinestore

import (
	"context"

	"github.com/duragraph/dataflow/internal/domain/pipeline"
)

// Repository is the persistence boundary for pipeline.Definition, mirroring
// the reference service's GraphRepository shape.
type Repository interface {
	Save(ctx context.Context, def *pipeline.Definition) error
	Update(ctx context.Context, def *pipeline.Definition) error
	FindByID(ctx context.Context, id string) (*pipeline.Definition, error)
	FindByName(ctx context.Context, name string) ([]*pipeline.Definition, error)
	Delete(ctx context.Context, id string) error
}
