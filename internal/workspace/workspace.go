package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrCreate is returned when workspace directories cannot be created
	ErrCreate = errors.New("create directories")

	// ErrCleanup is returned when workspace directories cannot be removed
	ErrCleanup = errors.New("remove directories")
)

// RootSource provides the directory workspaces are created under
type RootSource interface {
	WorkspaceRoot() string
}

// Workspace is the pair of transient directories owned by one invocation
type Workspace struct {
	ID        string
	InputDir  string
	OutputDir string

	once sync.Once
	err  error
}

// Manager allocates and removes workspaces
type Manager struct {
	root  RootSource
	newID func() string
}

// NewManager creates a workspace manager reading its root from root
func NewManager(root RootSource) *Manager {
	return &Manager{
		root:  root,
		newID: func() string { return uuid.New().String() },
	}
}

// Acquire creates a fresh input/output directory pair.
// Directory names carry a random token so concurrent invocations sharing a root never collide.
func (m *Manager) Acquire(ctx context.Context) (*Workspace, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreate, err)
	}

	root := m.root.WorkspaceRoot()
	id := m.newID()
	ws := &Workspace{
		ID:        id,
		InputDir:  filepath.Join(root, "input-"+id),
		OutputDir: filepath.Join(root, "output-"+id),
	}

	for _, dir := range []string{ws.InputDir, ws.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			// Leave nothing behind for a workspace the caller never receives
			_ = os.RemoveAll(ws.InputDir)
			_ = os.RemoveAll(ws.OutputDir)
			return nil, fmt.Errorf("%w: %s: %w", ErrCreate, dir, err)
		}
	}

	return ws, nil
}

// Release removes both directories and everything in them.
// Only the first call does any work; later calls return its result.
func (m *Manager) Release(ws *Workspace) error {
	if ws == nil {
		return nil
	}
	ws.once.Do(func() {
		var errs []error
		for _, dir := range []string{ws.InputDir, ws.OutputDir} {
			if err := os.RemoveAll(dir); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", dir, err))
			}
		}
		if len(errs) > 0 {
			ws.err = fmt.Errorf("%w: %w", ErrCleanup, errors.Join(errs...))
		}
	})
	return ws.err
}
