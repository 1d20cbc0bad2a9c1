package runner

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tendant/simple-image-pipeline/internal/config"
	"github.com/tendant/simple-image-pipeline/internal/handlers"
	"github.com/tendant/simple-image-pipeline/internal/metrics"
	"github.com/tendant/simple-image-pipeline/internal/storage"
	"github.com/tendant/simple-image-pipeline/internal/transform"
	"github.com/tendant/simple-image-pipeline/internal/workflows"
	"github.com/tendant/simple-image-pipeline/internal/workspace"
	"github.com/tendant/simple-image-pipeline/pkg/logger"
	"github.com/tendant/simple-image-pipeline/pkg/pipeline"
)

// Config holds the configuration for initializing the pipeline runner
type Config struct {
	WorkspaceRoot     string // Optional: overrides the system temp directory
	StorageBackend    string // "s3" (default) or "filesystem"
	StorageDir        string // Root directory for the filesystem backend
	S3Endpoint        string // S3-compatible endpoint, with or without scheme
	S3Region          string
	S3AccessKey       string // Optional: falls back to AWS environment / instance role
	S3SecretKey       string
	S3UseSSL          bool
	S3PathStyle       bool // Required by MinIO and LocalStack style endpoints
	UploadConcurrency int  // Parallel uploads per invocation
}

// FromSettings converts process settings into runner configuration
func FromSettings(s config.Settings) Config {
	return Config{
		WorkspaceRoot:     s.WorkspaceRoot,
		StorageBackend:    s.Storage.Backend,
		StorageDir:        s.Storage.FilesystemRoot,
		S3Endpoint:        s.Storage.Endpoint,
		S3Region:          s.Storage.Region,
		S3AccessKey:       s.Storage.AccessKey,
		S3SecretKey:       s.Storage.SecretKey,
		S3UseSSL:          s.Storage.UseSSL,
		S3PathStyle:       s.Storage.PathStyle,
		UploadConcurrency: s.Storage.UploadConcurrency,
	}
}

// Runner provides a high-level API for running image version invocations
type Runner struct {
	config   *config.Store
	metrics  *metrics.Recorder
	workflow *workflows.ImageVersionsWorkflow
}

// New creates and initializes a new pipeline runner
func New(cfg Config) (*Runner, error) {
	store, err := newObjectStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object store: %w", err)
	}

	settings := config.NewStore()
	if cfg.WorkspaceRoot != "" {
		root := cfg.WorkspaceRoot
		if err := settings.Apply(pipeline.ConfigRequest{WorkspaceRoot: &root}); err != nil {
			return nil, err
		}
	}

	recorder := metrics.NewRecorder()
	workflow := workflows.NewImageVersionsWorkflow(
		store,
		transform.NewRegistry(),
		workspace.NewManager(settings),
		workflows.WithMetrics(recorder),
	)

	logger.Log.Info().
		Str("workflow", workflow.Name()).
		Str("storage", backendName(cfg.StorageBackend)).
		Str("workspace_root", settings.WorkspaceRoot()).
		Msg("pipeline runner initialized")

	return &Runner{
		config:   settings,
		metrics:  recorder,
		workflow: workflow,
	}, nil
}

func backendName(b string) string {
	if b == "" {
		return config.BackendS3
	}
	return b
}

func newObjectStore(cfg Config) (storage.ObjectStore, error) {
	switch backendName(cfg.StorageBackend) {
	case config.BackendFilesystem:
		fs, err := storage.NewFilesystemStore(cfg.StorageDir)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case config.BackendS3:
		s3, err := storage.NewS3Store(storage.S3Config{
			Endpoint:          cfg.S3Endpoint,
			Region:            cfg.S3Region,
			AccessKey:         cfg.S3AccessKey,
			SecretKey:         cfg.S3SecretKey,
			UseSSL:            cfg.S3UseSSL,
			PathStyle:         cfg.S3PathStyle,
			UploadConcurrency: cfg.UploadConcurrency,
		})
		if err != nil {
			return nil, err
		}
		return s3, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// Configure applies a configuration call. Call it before invocations start.
func (r *Runner) Configure(raw []byte) error {
	return r.config.Set(raw)
}

// Invoke runs one invocation for a typed request
func (r *Runner) Invoke(ctx context.Context, req pipeline.InvocationRequest) (*pipeline.InvocationResult, error) {
	return r.workflow.Execute(ctx, req)
}

// InvokeJSON runs one invocation for a JSON request document
func (r *Runner) InvokeJSON(ctx context.Context, raw []byte) (*pipeline.InvocationResult, error) {
	return r.workflow.ExecuteRaw(ctx, raw)
}

// WorkspaceRoot returns the directory workspaces are currently created under
func (r *Runner) WorkspaceRoot() string {
	return r.config.WorkspaceRoot()
}

// Handler returns the HTTP surface: invoke, config, health and metrics
func (r *Runner) Handler() http.Handler {
	mux := r.routes()
	mux.Handle("/metrics", r.metrics.Handler())
	return mux
}

// APIHandler returns the HTTP surface without the metrics endpoint
func (r *Runner) APIHandler() http.Handler {
	return r.routes()
}

func (r *Runner) routes() *http.ServeMux {
	mux := http.NewServeMux()
	handlers.NewInvokeHandler(r.workflow, r.config).Register(mux)
	return mux
}
