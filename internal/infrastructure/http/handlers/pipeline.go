package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/duragraph/dataflow/internal/domain/pipeline"
	"github.com/duragraph/dataflow/internal/infrastructure/http/dto"
	"github.com/duragraph/dataflow/internal/infrastructure/pipelinestore"
	dferrors "github.com/duragraph/dataflow/internal/pkg/errors"
)

// PipelineHandler exposes the pipeline definition registry over HTTP.
type PipelineHandler struct {
	repo pipelinestore.Repository
}

// NewPipelineHandler creates a new PipelineHandler.
func NewPipelineHandler(repo pipelinestore.Repository) *PipelineHandler {
	return &PipelineHandler{repo: repo}
}

// Register handles POST /pipelines.
func (h *PipelineHandler) Register(c echo.Context) error {
	var req dto.RegisterPipelineRequest
	if err := c.Bind(&req); err != nil {
		return dferrors.InvalidInput("body", "malformed request")
	}

	version := req.Version
	if version == "" {
		version = "v1"
	}

	def, err := pipeline.New(req.Name, version, toDomainNodes(req.Nodes), toDomainEdges(req.Edges), req.Config)
	if err != nil {
		return err
	}

	if err := h.repo.Save(c.Request().Context(), def); err != nil {
		return dferrors.Internal("saving pipeline definition", err)
	}

	return c.JSON(http.StatusCreated, toPipelineResponse(def))
}

// Get handles GET /pipelines/:id.
func (h *PipelineHandler) Get(c echo.Context) error {
	id := c.Param("id")
	def, err := h.repo.FindByID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if def == nil {
		return dferrors.NotFound("pipeline", id)
	}
	return c.JSON(http.StatusOK, toPipelineResponse(def))
}

func toDomainNodes(nodes []dto.NodeSpec) []pipeline.NodeSpec {
	out := make([]pipeline.NodeSpec, len(nodes))
	for i, n := range nodes {
		out[i] = pipeline.NodeSpec{Name: n.Name, Kind: n.Kind, Config: n.Config}
	}
	return out
}

func toDomainEdges(edges []dto.EdgeSpec) []pipeline.EdgeSpec {
	out := make([]pipeline.EdgeSpec, len(edges))
	for i, e := range edges {
		out[i] = pipeline.EdgeSpec{
			SinkElement:   e.SinkElement,
			SinkPad:       e.SinkPad,
			SourceElement: e.SourceElement,
			SourcePad:     e.SourcePad,
		}
	}
	return out
}

func toPipelineResponse(def *pipeline.Definition) dto.PipelineResponse {
	nodes := make([]dto.NodeSpec, len(def.Nodes()))
	for i, n := range def.Nodes() {
		nodes[i] = dto.NodeSpec{Name: n.Name, Kind: n.Kind, Config: n.Config}
	}
	edges := make([]dto.EdgeSpec, len(def.Edges()))
	for i, e := range def.Edges() {
		edges[i] = dto.EdgeSpec{
			SinkElement:   e.SinkElement,
			SinkPad:       e.SinkPad,
			SourceElement: e.SourceElement,
			SourcePad:     e.SourcePad,
		}
	}
	return dto.PipelineResponse{
		ID:        def.ID(),
		Name:      def.Name(),
		Version:   def.Version(),
		Nodes:     nodes,
		Edges:     edges,
		Config:    def.Config(),
		CreatedAt: def.CreatedAt(),
		UpdatedAt: def.UpdatedAt(),
	}
}
