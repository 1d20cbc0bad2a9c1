package transform

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tendant/simple-image-pipeline/pkg/pipeline"
)

var (
	// ErrUnknownMode is returned when no engine is registered for a mode
	ErrUnknownMode = errors.New("unknown processing mode")

	// ErrNoInput is returned when the input directory holds no source image
	ErrNoInput = errors.New("no input image")

	// ErrInvalidVersion is returned when a version spec cannot be applied
	ErrInvalidVersion = errors.New("invalid version spec")
)

// Job describes one transformation run
type Job struct {
	InputDir  string
	OutputDir string
	Versions  []pipeline.VersionSpec
}

// Engine turns the images in a job's input directory into derived versions.
// The manifest lists outputs in version order, so the first output is the primary version.
type Engine interface {
	Run(ctx context.Context, job Job) (pipeline.Manifest, error)

	// Name returns the engine name
	Name() string
}

// Registry maps processing modes to engines
type Registry struct {
	mu      sync.RWMutex
	engines map[pipeline.Mode]Engine
}

// NewRegistry creates a registry with the built-in resize and crop engines
func NewRegistry() *Registry {
	r := &Registry{engines: make(map[pipeline.Mode]Engine)}
	r.Register(pipeline.ModeResize, NewResizeEngine())
	r.Register(pipeline.ModeCrop, NewCropEngine())
	return r
}

// Register registers an engine for a mode, replacing any previous one
func (r *Registry) Register(mode pipeline.Mode, engine Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[mode] = engine
}

// Engine returns the engine registered for mode
func (r *Registry) Engine(mode pipeline.Mode) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	engine, ok := r.engines[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	return engine, nil
}

// Run dispatches job to the engine registered for mode
func (r *Registry) Run(ctx context.Context, mode pipeline.Mode, job Job) (pipeline.Manifest, error) {
	engine, err := r.Engine(mode)
	if err != nil {
		return nil, err
	}
	return engine.Run(ctx, job)
}
