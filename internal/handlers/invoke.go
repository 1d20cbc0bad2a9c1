package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/tendant/simple-image-pipeline/internal/config"
	"github.com/tendant/simple-image-pipeline/internal/validation"
	"github.com/tendant/simple-image-pipeline/internal/workflows"
	"github.com/tendant/simple-image-pipeline/pkg/logger"
	"github.com/tendant/simple-image-pipeline/pkg/pipeline"
)

// maxBodyBytes bounds request documents; version lists are small
const maxBodyBytes = 1 << 20

// InvokeHandler runs invocations synchronously over HTTP
type InvokeHandler struct {
	workflow workflows.Workflow
	config   *config.Store
}

// NewInvokeHandler creates a new invoke handler
func NewInvokeHandler(workflow workflows.Workflow, store *config.Store) *InvokeHandler {
	return &InvokeHandler{
		workflow: workflow,
		config:   store,
	}
}

// Register adds the handler's routes to mux
func (h *InvokeHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", HandleHealth)
	mux.HandleFunc("/v1/invoke", h.HandleInvoke)
	mux.HandleFunc("/v1/config", h.HandleConfig)
}

// HandleInvoke handles POST /v1/invoke - runs one invocation and returns its result
func (h *InvokeHandler) HandleInvoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, readStatus(err), pipeline.ErrorResponse{Error: pipeline.ErrorBody{
			Stage:   string(workflows.StageValidating),
			Message: err.Error(),
		}})
		return
	}

	// A started invocation runs to completion even if the caller goes away
	ctx := context.WithoutCancel(r.Context())

	result, err := h.workflow.ExecuteRaw(ctx, body)
	if err != nil {
		writeJSON(w, StatusFor(err), workflows.Response(err))
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleConfig handles PUT /v1/config - applies a configuration call before invocations run
func (h *InvokeHandler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, err.Error(), readStatus(err))
		return
	}

	if err := h.config.Set(body); err != nil {
		resp := pipeline.ErrorResponse{Error: pipeline.ErrorBody{
			Stage:   "Configuring",
			Message: err.Error(),
		}}
		var verr *validation.Error
		if errors.As(err, &verr) {
			resp.Error.Violations = verr.Violations
		}
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	logger.Log.Info().Str("workspace_root", h.config.WorkspaceRoot()).Msg("configuration applied")
	writeJSON(w, http.StatusOK, map[string]string{"workspace_root": h.config.WorkspaceRoot()})
}

// HandleHealth returns health status
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// StatusFor maps an invocation error to an HTTP status code
func StatusFor(err error) int {
	switch {
	case errors.Is(err, workflows.ErrRequestValidation):
		return http.StatusBadRequest
	case errors.Is(err, workflows.ErrIngressTransfer), errors.Is(err, workflows.ErrEgressTransfer):
		return http.StatusBadGateway
	case errors.Is(err, workflows.ErrProcessing):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// readStatus maps a request body read failure to a status code
func readStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Warn().Err(err).Msg("failed to write response")
	}
}
