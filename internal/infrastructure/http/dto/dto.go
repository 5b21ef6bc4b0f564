// Package dto holds the control plane's wire-level request/response shapes,
// kept separate from the domain types they're built from.
package dto

import "time"

// ErrorResponse is the JSON body of every non-2xx control-plane response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// NodeSpec mirrors pipeline.NodeSpec for the wire.
type NodeSpec struct {
	Name   string                 `json:"name"`
	Kind   string                 `json:"kind"`
	Config map[string]interface{} `json:"config,omitempty"`
}

// EdgeSpec mirrors pipeline.EdgeSpec for the wire.
type EdgeSpec struct {
	SinkElement   string `json:"sink_element"`
	SinkPad       string `json:"sink_pad"`
	SourceElement string `json:"source_element"`
	SourcePad     string `json:"source_pad"`
}

// RegisterPipelineRequest is the body of POST /pipelines.
type RegisterPipelineRequest struct {
	Name    string                 `json:"name"`
	Version string                 `json:"version,omitempty"`
	Nodes   []NodeSpec             `json:"nodes"`
	Edges   []EdgeSpec             `json:"edges"`
	Config  map[string]interface{} `json:"config,omitempty"`
}

// PipelineResponse is the body of GET /pipelines/{id} and the POST /pipelines
// response.
type PipelineResponse struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Version   string                 `json:"version"`
	Nodes     []NodeSpec             `json:"nodes"`
	Edges     []EdgeSpec             `json:"edges"`
	Config    map[string]interface{} `json:"config,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// StartRunResponse is the body of POST /pipelines/{id}/runs.
type StartRunResponse struct {
	RunID      string `json:"run_id"`
	PipelineID string `json:"pipeline_id"`
	Status     string `json:"status"`
}

// RunResponse is the body of GET /runs/{id}.
type RunResponse struct {
	RunID      string    `json:"run_id"`
	PipelineID string    `json:"pipeline_id"`
	Status     string    `json:"status"`
	Ticks      int       `json:"ticks"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at,omitempty"`
}
