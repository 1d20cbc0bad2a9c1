package workflows

import (
	"errors"
	"fmt"

	"github.com/tendant/simple-image-pipeline/internal/validation"
	"github.com/tendant/simple-image-pipeline/pkg/pipeline"
)

var (
	// ErrRequestValidation is returned when the request violates its schema
	ErrRequestValidation = errors.New("request validation failed")

	// ErrWorkspaceCreation is returned when the workspace cannot be created
	ErrWorkspaceCreation = errors.New("workspace creation failed")

	// ErrIngressTransfer is returned when the source object cannot be fetched
	ErrIngressTransfer = errors.New("ingress transfer failed")

	// ErrProcessing is returned when the transformation engine fails or returns a malformed manifest
	ErrProcessing = errors.New("processing failed")

	// ErrEgressTransfer is returned when derived versions cannot be uploaded.
	// Some versions may already be stored when this is returned.
	ErrEgressTransfer = errors.New("egress transfer failed")

	// ErrWorkspaceCleanup is reported when the workspace cannot be removed.
	// It is logged only and never returned from an invocation.
	ErrWorkspaceCleanup = errors.New("workspace cleanup failed")
)

// StageError annotates a failure with the stage it happened in
type StageError struct {
	Stage Stage
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

// Unwrap exposes both the kind sentinel and the cause
func (e *StageError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Response builds the caller-facing description of a failed invocation
func Response(err error) pipeline.ErrorResponse {
	body := pipeline.ErrorBody{
		Stage:   string(StageFailed),
		Message: err.Error(),
	}

	var serr *StageError
	if errors.As(err, &serr) {
		body.Stage = string(serr.Stage)
	}

	var verr *validation.Error
	if errors.As(err, &verr) {
		body.Violations = verr.Violations
	}

	return pipeline.ErrorResponse{Error: body}
}
