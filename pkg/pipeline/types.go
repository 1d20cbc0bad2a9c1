package pipeline

import (
	"encoding/json"
	"fmt"
)

// Mode selects the transformation engine for an invocation
type Mode string

// Mode constants
const (
	ModeResize Mode = "resize" // scale to fit the target box, keeping aspect ratio
	ModeCrop   Mode = "crop"   // fill the target box exactly, centre-cropping overflow
)

// Modes returns every supported processing mode
func Modes() []Mode {
	return []Mode{ModeResize, ModeCrop}
}

// Valid reports whether m is a supported processing mode
func (m Mode) Valid() bool {
	for _, known := range Modes() {
		if m == known {
			return true
		}
	}
	return false
}

// VersionSpec is an opaque set of transformation parameters.
// The pipeline passes it to the engine untouched.
type VersionSpec = json.RawMessage

// InvocationRequest represents a request to derive versions of one stored image
type InvocationRequest struct {
	ProcessingMode    Mode          `json:"processing_mode" validate:"required,oneof=resize crop"`
	SourceBucket      string        `json:"source_bucket" validate:"required,min=1"`
	SourceKey         string        `json:"source_key" validate:"required,min=1"`
	DestinationPrefix string        `json:"destination_prefix" validate:"required,min=1"`
	Versions          []VersionSpec `json:"versions,omitempty"`
}

// Manifest maps an original file name to its derived file names, primary first
type Manifest map[string][]string

// Primary returns the canonical derived file name for original.
// The manifest must hold exactly one entry, keyed by original, with at least one output.
func (m Manifest) Primary(original string) (string, error) {
	if len(m) != 1 {
		return "", fmt.Errorf("manifest has %d entries, expected 1", len(m))
	}
	outputs, ok := m[original]
	if !ok {
		return "", fmt.Errorf("manifest has no entry for %q", original)
	}
	if len(outputs) == 0 || outputs[0] == "" {
		return "", fmt.Errorf("manifest entry for %q has no outputs", original)
	}
	return outputs[0], nil
}

// ResultData carries the destination key of the primary version
type ResultData struct {
	Key string `json:"key"`
}

// InvocationResult is returned to the caller when an invocation succeeds
type InvocationResult struct {
	Data ResultData `json:"data"`
}

// Violation describes one failed schema constraint
type Violation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// ErrorBody describes a failed invocation
type ErrorBody struct {
	Stage      string      `json:"stage"`
	Message    string      `json:"message"`
	Violations []Violation `json:"violations,omitempty"`
}

// ErrorResponse is returned to the caller when an invocation fails
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ConfigRequest represents a configuration call made before invocations run
type ConfigRequest struct {
	WorkspaceRoot *string `json:"workspace_root,omitempty" validate:"omitempty,min=1"`
}
