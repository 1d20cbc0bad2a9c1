package workflows

import (
	"github.com/tendant/simple-image-pipeline/internal/storage"
	"github.com/tendant/simple-image-pipeline/pkg/pipeline"
)

// ProjectResult returns the destination key of the primary version of original.
// The engine lists the primary version first; that order is trusted here.
func ProjectResult(manifest pipeline.Manifest, original, prefix string) (*pipeline.InvocationResult, error) {
	primary, err := manifest.Primary(original)
	if err != nil {
		return nil, err
	}
	return &pipeline.InvocationResult{
		Data: pipeline.ResultData{Key: storage.ObjectKey(prefix, primary)},
	}, nil
}
