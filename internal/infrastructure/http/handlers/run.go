package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/duragraph/dataflow/internal/application/runmanager"
	"github.com/duragraph/dataflow/internal/infrastructure/http/dto"
	"github.com/duragraph/dataflow/internal/infrastructure/pipelinestore"
	dferrors "github.com/duragraph/dataflow/internal/pkg/errors"
)

// RunHandler starts and reports on graph runs materialized from stored
// pipeline definitions.
type RunHandler struct {
	repo    pipelinestore.Repository
	manager *runmanager.Manager
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(repo pipelinestore.Repository, manager *runmanager.Manager) *RunHandler {
	return &RunHandler{repo: repo, manager: manager}
}

// Start handles POST /pipelines/:id/runs: it materializes the stored
// definition into a live flow.Graph and starts it in the background,
// returning the run's ID immediately.
func (h *RunHandler) Start(c echo.Context) error {
	id := c.Param("id")
	def, err := h.repo.FindByID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if def == nil {
		return dferrors.NotFound("pipeline", id)
	}

	g, err := def.Materialize()
	if err != nil {
		return dferrors.InvalidState("registered", "materialize: "+err.Error())
	}

	runID := h.manager.Start(def.ID(), g)

	return c.JSON(http.StatusAccepted, dto.StartRunResponse{
		RunID:      runID,
		PipelineID: def.ID(),
		Status:     string(runmanager.StatusRunning),
	})
}

// Get handles GET /runs/:id.
func (h *RunHandler) Get(c echo.Context) error {
	id := c.Param("id")
	rec, ok := h.manager.Get(id)
	if !ok {
		return dferrors.NotFound("run", id)
	}
	return c.JSON(http.StatusOK, dto.RunResponse{
		RunID:      rec.RunID,
		PipelineID: rec.PipelineID,
		Status:     string(rec.Status),
		Ticks:      rec.Ticks,
		Error:      rec.Err,
		StartedAt:  rec.StartedAt,
		EndedAt:    rec.EndedAt,
	})
}
