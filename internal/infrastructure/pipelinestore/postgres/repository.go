package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duragraph/dataflow/internal/domain/pipeline"
	"github.com/duragraph/dataflow/internal/pkg/errors"
	pkguuid "github.com/duragraph/dataflow/internal/pkg/uuid"
)

// Repository implements pipelinestore.Repository against Postgres, grounded
// on the reference service's GraphRepository: a CRUD table for current
// state plus an append-only event stream for everything that changed it.
type Repository struct {
	pool       *pgxpool.Pool
	eventStore *EventStore
}

// NewRepository creates a Postgres-backed pipeline definition repository.
func NewRepository(pool *pgxpool.Pool, eventStore *EventStore) *Repository {
	return &Repository{pool: pool, eventStore: eventStore}
}

// Save persists a newly registered definition and flushes its events.
func (r *Repository) Save(ctx context.Context, def *pipeline.Definition) error {
	nodesJSON, err := json.Marshal(def.Nodes())
	if err != nil {
		return errors.Internal("failed to marshal nodes", err)
	}
	edgesJSON, err := json.Marshal(def.Edges())
	if err != nil {
		return errors.Internal("failed to marshal edges", err)
	}
	configJSON, err := json.Marshal(def.Config())
	if err != nil {
		return errors.Internal("failed to marshal config", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO pipeline_definitions (id, name, version, nodes, edges, config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, def.ID(), def.Name(), def.Version(), nodesJSON, edgesJSON, configJSON, def.CreatedAt(), def.UpdatedAt())
	if err != nil {
		return errors.Internal("failed to save pipeline definition", err)
	}

	return r.flushEvents(ctx, def)
}

// Update persists changes to an existing definition and flushes its events.
func (r *Repository) Update(ctx context.Context, def *pipeline.Definition) error {
	nodesJSON, _ := json.Marshal(def.Nodes())
	edgesJSON, _ := json.Marshal(def.Edges())
	configJSON, _ := json.Marshal(def.Config())

	_, err := r.pool.Exec(ctx, `
		UPDATE pipeline_definitions
		SET nodes = $1, edges = $2, config = $3, updated_at = $4
		WHERE id = $5
	`, nodesJSON, edgesJSON, configJSON, def.UpdatedAt(), def.ID())
	if err != nil {
		return errors.Internal("failed to update pipeline definition", err)
	}

	return r.flushEvents(ctx, def)
}

func (r *Repository) flushEvents(ctx context.Context, def *pipeline.Definition) error {
	if len(def.Events()) == 0 {
		return nil
	}
	streamID := pkguuid.New()
	if err := r.eventStore.SaveEvents(ctx, streamID, "pipeline_definition", def.ID(), def.Events()); err != nil {
		return err
	}
	def.ClearEvents()
	return nil
}

// FindByID retrieves a definition by ID.
func (r *Repository) FindByID(ctx context.Context, id string) (*pipeline.Definition, error) {
	var defID, name, version string
	var nodesJSON, edgesJSON, configJSON []byte
	var createdAt, updatedAt time.Time

	err := r.pool.QueryRow(ctx, `
		SELECT id, name, version, nodes, edges, config, created_at, updated_at
		FROM pipeline_definitions
		WHERE id = $1
	`, id).Scan(&defID, &name, &version, &nodesJSON, &edgesJSON, &configJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, errors.NotFound("pipeline_definition", id)
	}

	return unmarshalDefinition(defID, name, version, nodesJSON, edgesJSON, configJSON, createdAt, updatedAt)
}

// FindByName retrieves every version of a definition registered under name,
// newest first.
func (r *Repository) FindByName(ctx context.Context, name string) ([]*pipeline.Definition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, version, nodes, edges, config, created_at, updated_at
		FROM pipeline_definitions
		WHERE name = $1
		ORDER BY created_at DESC
	`, name)
	if err != nil {
		return nil, errors.Internal("failed to query pipeline definitions", err)
	}
	defer rows.Close()

	defs := make([]*pipeline.Definition, 0)
	for rows.Next() {
		var defID, n, version string
		var nodesJSON, edgesJSON, configJSON []byte
		var createdAt, updatedAt time.Time

		if err := rows.Scan(&defID, &n, &version, &nodesJSON, &edgesJSON, &configJSON, &createdAt, &updatedAt); err != nil {
			return nil, errors.Internal("failed to scan pipeline definition", err)
		}
		def, err := unmarshalDefinition(defID, n, version, nodesJSON, edgesJSON, configJSON, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Delete removes a definition.
func (r *Repository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM pipeline_definitions WHERE id = $1`, id)
	if err != nil {
		return errors.Internal("failed to delete pipeline definition", err)
	}
	return nil
}

func unmarshalDefinition(id, name, version string, nodesJSON, edgesJSON, configJSON []byte, createdAt, updatedAt time.Time) (*pipeline.Definition, error) {
	var nodes []pipeline.NodeSpec
	var edges []pipeline.EdgeSpec
	var config map[string]interface{}

	if err := json.Unmarshal(nodesJSON, &nodes); err != nil {
		return nil, errors.Internal("failed to unmarshal nodes", err)
	}
	if err := json.Unmarshal(edgesJSON, &edges); err != nil {
		return nil, errors.Internal("failed to unmarshal edges", err)
	}
	if err := json.Unmarshal(configJSON, &config); err != nil {
		return nil, errors.Internal("failed to unmarshal config", err)
	}

	return pipeline.Rehydrate(id, name, version, nodes, edges, config, createdAt, updatedAt), nil
}
