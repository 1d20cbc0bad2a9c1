package workflows

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tendant/simple-image-pipeline/internal/metrics"
	"github.com/tendant/simple-image-pipeline/internal/storage"
	"github.com/tendant/simple-image-pipeline/internal/transform"
	"github.com/tendant/simple-image-pipeline/internal/validation"
	"github.com/tendant/simple-image-pipeline/internal/workspace"
	"github.com/tendant/simple-image-pipeline/pkg/logger"
	"github.com/tendant/simple-image-pipeline/pkg/pipeline"
)

// ImageVersionsWorkflow fetches one image, derives its versions and uploads them
type ImageVersionsWorkflow struct {
	store      ObjectStore
	processor  Processor
	workspaces WorkspaceManager
	metrics    *metrics.Recorder
	upload     storage.UploadOptions
}

// Option configures an ImageVersionsWorkflow
type Option func(*ImageVersionsWorkflow)

// WithMetrics records stage timings and outcomes in r
func WithMetrics(r *metrics.Recorder) Option {
	return func(w *ImageVersionsWorkflow) {
		w.metrics = r
	}
}

// NewImageVersionsWorkflow creates a new image versions workflow
func NewImageVersionsWorkflow(store ObjectStore, processor Processor, workspaces WorkspaceManager, opts ...Option) *ImageVersionsWorkflow {
	w := &ImageVersionsWorkflow{
		store:      store,
		processor:  processor,
		workspaces: workspaces,
		upload:     storage.DefaultUploadOptions(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name returns the workflow name
func (w *ImageVersionsWorkflow) Name() string {
	return "ImageVersionsWorkflow"
}

// Execute runs the workflow for an already typed request
func (w *ImageVersionsWorkflow) Execute(ctx context.Context, req pipeline.InvocationRequest) (*pipeline.InvocationResult, error) {
	return w.run(ctx, func() (pipeline.InvocationRequest, error) {
		return req, validation.ValidateRequest(req)
	})
}

// ExecuteRaw parses a JSON request and runs the workflow
func (w *ImageVersionsWorkflow) ExecuteRaw(ctx context.Context, raw []byte) (*pipeline.InvocationResult, error) {
	return w.run(ctx, func() (pipeline.InvocationRequest, error) {
		return validation.ParseRequest(raw)
	})
}

// invocation carries per-run state for logging and metrics
type invocation struct {
	runID   string
	log     zerolog.Logger
	metrics *metrics.Recorder
	started time.Time
}

// step runs fn as stage, wrapping any failure with the stage and its error kind
func (inv *invocation) step(stage Stage, kind error, fn func() error) error {
	inv.log.Debug().Str("stage", string(stage)).Msg("stage started")

	start := time.Now()
	err := fn()
	inv.metrics.ObserveStage(string(stage), time.Since(start))

	if err != nil {
		return &StageError{Stage: stage, Kind: kind, Err: err}
	}
	return nil
}

func (w *ImageVersionsWorkflow) run(ctx context.Context, parse func() (pipeline.InvocationRequest, error)) (*pipeline.InvocationResult, error) {
	runID := uuid.New().String()
	inv := &invocation{
		runID:   runID,
		log:     logger.Log.With().Str("run_id", runID).Str("workflow", w.Name()).Logger(),
		metrics: w.metrics,
		started: time.Now(),
	}

	result, err := w.execute(ctx, inv, parse)
	w.complete(inv, result, err)
	return result, err
}

func (w *ImageVersionsWorkflow) execute(ctx context.Context, inv *invocation, parse func() (pipeline.InvocationRequest, error)) (*pipeline.InvocationResult, error) {
	// Step 1: Validate request before any side effect
	var req pipeline.InvocationRequest
	err := inv.step(StageValidating, ErrRequestValidation, func() error {
		var err error
		req, err = parse()
		return err
	})
	if err != nil {
		return nil, err
	}

	inv.log = inv.log.With().
		Str("mode", string(req.ProcessingMode)).
		Str("bucket", req.SourceBucket).
		Str("key", req.SourceKey).
		Logger()
	inv.log.Info().Int("versions", len(req.Versions)).Msg("starting image versions workflow")

	// Step 2: Prepare workspace
	var ws *workspace.Workspace
	err = inv.step(StagePreparingWorkspace, ErrWorkspaceCreation, func() error {
		var err error
		ws, err = w.workspaces.Acquire(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	// Every exit path from here on releases the workspace exactly once
	defer w.cleanup(inv, ws)

	inv.log.Debug().Str("input_dir", ws.InputDir).Str("output_dir", ws.OutputDir).Msg("workspace ready")

	// Step 3: Download source object into the input directory
	var sourceName string
	err = inv.step(StageFetchingSource, ErrIngressTransfer, func() error {
		var err error
		sourceName, err = localName(req.SourceKey)
		if err != nil {
			return err
		}
		data, err := w.store.Fetch(ctx, req.SourceBucket, req.SourceKey)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(ws.InputDir, sourceName), data, 0o644); err != nil {
			return fmt.Errorf("failed to write source file: %w", err)
		}
		inv.log.Info().Int("bytes", len(data)).Msg("source object downloaded")
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Step 4: Derive versions
	var manifest pipeline.Manifest
	err = inv.step(StageProcessing, ErrProcessing, func() error {
		var err error
		manifest, err = w.processor.Run(ctx, req.ProcessingMode, transform.Job{
			InputDir:  ws.InputDir,
			OutputDir: ws.OutputDir,
			Versions:  req.Versions,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	// Step 5: Resolve the primary version's key; a malformed manifest is a processing failure
	var result *pipeline.InvocationResult
	err = inv.step(StageProjectingResult, ErrProcessing, func() error {
		var err error
		result, err = ProjectResult(manifest, sourceName, req.DestinationPrefix)
		return err
	})
	if err != nil {
		return nil, err
	}

	// Step 6: Upload every derived version
	err = inv.step(StageUploadingResults, ErrEgressTransfer, func() error {
		return w.store.UploadAll(ctx, ws.OutputDir, req.SourceBucket, req.DestinationPrefix, w.upload)
	})
	if err != nil {
		return nil, err
	}

	inv.log.Info().Strs("outputs", manifest[sourceName]).Str("result_key", result.Data.Key).Msg("derived versions uploaded")
	return result, nil
}

// cleanup releases the workspace. A failure here is logged and counted, never returned.
func (w *ImageVersionsWorkflow) cleanup(inv *invocation, ws *workspace.Workspace) {
	err := inv.step(StageCleaningUp, ErrWorkspaceCleanup, func() error {
		return w.workspaces.Release(ws)
	})
	if err != nil {
		inv.log.Warn().Err(err).Str("workspace", ws.ID).Msg("workspace cleanup failed")
		inv.metrics.CleanupFailed()
	}
}

func (w *ImageVersionsWorkflow) complete(inv *invocation, result *pipeline.InvocationResult, err error) {
	elapsed := time.Since(inv.started)
	if err != nil {
		stage := StageFailed
		var serr *StageError
		if errors.As(err, &serr) {
			stage = serr.Stage
		}
		inv.log.Error().Err(err).Str("stage", string(stage)).Dur("elapsed", elapsed).Msg("image versions workflow failed")
		inv.metrics.Invocation("failed", string(stage))
		return
	}

	inv.log.Info().Str("result_key", result.Data.Key).Dur("elapsed", elapsed).Msg("image versions workflow completed")
	inv.metrics.Invocation("succeeded", string(StageDone))
}

// localName returns the final path segment of an object key
func localName(key string) (string, error) {
	name := path.Base(key)
	if name == "." || name == "/" || name == ".." || key == "" || key[len(key)-1] == '/' {
		return "", fmt.Errorf("object key %q has no file name", key)
	}
	return name, nil
}
