package workflows

import (
	"context"

	"github.com/tendant/simple-image-pipeline/internal/storage"
	"github.com/tendant/simple-image-pipeline/internal/transform"
	"github.com/tendant/simple-image-pipeline/internal/workspace"
	"github.com/tendant/simple-image-pipeline/pkg/pipeline"
)

// Stage names a step of an invocation
type Stage string

// Stages in execution order. Failed is reachable from every stage before Done.
const (
	StageValidating         Stage = "Validating"
	StagePreparingWorkspace Stage = "PreparingWorkspace"
	StageFetchingSource     Stage = "FetchingSource"
	StageProcessing         Stage = "Processing"
	StageProjectingResult   Stage = "ProjectingResult"
	StageUploadingResults   Stage = "UploadingResults"
	StageCleaningUp         Stage = "CleaningUp"
	StageDone               Stage = "Done"
	StageFailed             Stage = "Failed"
)

// ObjectStore fetches the source object and uploads derived versions
type ObjectStore interface {
	Fetch(ctx context.Context, bucket, key string) ([]byte, error)
	UploadAll(ctx context.Context, dir, bucket, prefix string, opts storage.UploadOptions) error
}

// Processor runs the transformation engine selected by mode
type Processor interface {
	Run(ctx context.Context, mode pipeline.Mode, job transform.Job) (pipeline.Manifest, error)
}

// WorkspaceManager allocates and removes per-invocation directories
type WorkspaceManager interface {
	Acquire(ctx context.Context) (*workspace.Workspace, error)
	Release(ws *workspace.Workspace) error
}

// Workflow defines the interface for processing workflows
type Workflow interface {
	// Execute runs the workflow for a typed request
	Execute(ctx context.Context, req pipeline.InvocationRequest) (*pipeline.InvocationResult, error)

	// ExecuteRaw parses a JSON request and runs the workflow
	ExecuteRaw(ctx context.Context, raw []byte) (*pipeline.InvocationResult, error)

	// Name returns the workflow name
	Name() string
}
