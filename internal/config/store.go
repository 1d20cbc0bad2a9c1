package config

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/tendant/simple-image-pipeline/internal/validation"
	"github.com/tendant/simple-image-pipeline/pkg/pipeline"
)

// ErrConfigValidation is returned when a configuration call violates its schema
var ErrConfigValidation = errors.New("configuration validation failed")

// DefaultWorkspaceRoot is the root used until a configuration call overrides it
func DefaultWorkspaceRoot() string {
	return os.TempDir()
}

// Store holds the settings shared by every invocation of the process.
// Mutate it during setup only; invocations read it when acquiring a workspace.
type Store struct {
	mu            sync.RWMutex
	workspaceRoot string
}

// NewStore creates a store holding the default workspace root
func NewStore() *Store {
	return &Store{workspaceRoot: DefaultWorkspaceRoot()}
}

// Set validates a raw configuration call and applies it
func (s *Store) Set(raw []byte) error {
	opts, err := validation.ParseConfig(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfigValidation, err)
	}
	s.apply(opts)
	return nil
}

// Apply validates typed options and applies them.
// An absent workspace_root leaves the current value in place.
func (s *Store) Apply(opts pipeline.ConfigRequest) error {
	if err := validation.ValidateConfig(opts); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigValidation, err)
	}
	s.apply(opts)
	return nil
}

func (s *Store) apply(opts pipeline.ConfigRequest) {
	if opts.WorkspaceRoot == nil {
		return
	}
	s.mu.Lock()
	s.workspaceRoot = *opts.WorkspaceRoot
	s.mu.Unlock()
}

// WorkspaceRoot returns the directory under which workspaces are created
func (s *Store) WorkspaceRoot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workspaceRoot
}
