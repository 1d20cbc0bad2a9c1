package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/tendant/simple-image-pipeline/internal/config"
	"github.com/tendant/simple-image-pipeline/internal/workflows"
	"github.com/tendant/simple-image-pipeline/pkg/pipeline"
)

func newFilesystemRunner(t *testing.T) (*Runner, string, string) {
	t.Helper()
	storeDir := t.TempDir()
	wsRoot := t.TempDir()

	src := imaging.New(1600, 900, color.NRGBA{G: 120, B: 200, A: 255})
	if err := os.MkdirAll(filepath.Join(storeDir, "images", "uploads"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := imaging.Save(src, filepath.Join(storeDir, "images", "uploads", "photo.jpg")); err != nil {
		t.Fatal(err)
	}

	r, err := New(Config{
		WorkspaceRoot:  wsRoot,
		StorageBackend: config.BackendFilesystem,
		StorageDir:     storeDir,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r, storeDir, wsRoot
}

func TestInvokeEndToEnd(t *testing.T) {
	r, storeDir, wsRoot := newFilesystemRunner(t)

	result, err := r.Invoke(context.Background(), pipeline.InvocationRequest{
		ProcessingMode:    pipeline.ModeResize,
		SourceBucket:      "images",
		SourceKey:         "uploads/photo.jpg",
		DestinationPrefix: "derived/2024",
		Versions: []pipeline.VersionSpec{
			pipeline.VersionSpec(`{"suffix":"w800","width":800}`),
			pipeline.VersionSpec(`{"suffix":"w400","width":400}`),
		},
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result.Data.Key != "derived/2024/photo_w800.jpg" {
		t.Fatalf("unexpected key %q", result.Data.Key)
	}

	for _, name := range []string{"photo_w800.jpg", "photo_w400.jpg"} {
		p := filepath.Join(storeDir, "images", "derived", "2024", name)
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s to be uploaded: %v", name, err)
		}
	}
	img, err := imaging.Open(filepath.Join(storeDir, "images", "derived", "2024", "photo_w800.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 800 || b.Dy() != 450 {
		t.Fatalf("primary version is %dx%d, want 800x450", b.Dx(), b.Dy())
	}

	entries, err := os.ReadDir(wsRoot)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected workspace root to be empty after invocation, found %d entries", len(entries))
	}
}

func TestInvokeJSONMissingObject(t *testing.T) {
	r, _, wsRoot := newFilesystemRunner(t)

	raw := []byte(`{"processing_mode":"crop","source_bucket":"images","source_key":"uploads/missing.jpg","destination_prefix":"out","versions":[{"width":100,"height":100}]}`)
	_, err := r.InvokeJSON(context.Background(), raw)
	if !errors.Is(err, workflows.ErrIngressTransfer) {
		t.Fatalf("expected ErrIngressTransfer, got %v", err)
	}

	entries, _ := os.ReadDir(wsRoot)
	if len(entries) != 0 {
		t.Fatalf("workspace left behind after failure")
	}
}

func TestConfigureRejectsEmptyRoot(t *testing.T) {
	r, _, wsRoot := newFilesystemRunner(t)

	if err := r.Configure([]byte(`{"workspace_root":""}`)); !errors.Is(err, config.ErrConfigValidation) {
		t.Fatalf("expected ErrConfigValidation, got %v", err)
	}
	if r.WorkspaceRoot() != wsRoot {
		t.Fatalf("workspace root changed to %q", r.WorkspaceRoot())
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	if _, err := New(Config{StorageBackend: "ftp"}); err == nil {
		t.Fatalf("expected unknown backend to fail")
	}
}

func TestHandlerServesInvokeAndMetrics(t *testing.T) {
	r, _, _ := newFilesystemRunner(t)
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	body := `{"processing_mode":"crop","source_bucket":"images","source_key":"uploads/photo.jpg","destination_prefix":"thumbs","versions":[{"suffix":"sq","width":128,"height":128}]}`
	resp, err := http.Post(srv.URL+"/v1/invoke", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var result pipeline.InvocationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Data.Key != "thumbs/photo_sq.jpg" {
		t.Fatalf("unexpected key %q", result.Data.Key)
	}

	mresp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer mresp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(mresp.Body); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `image_pipeline_invocations_total{outcome="succeeded",stage="Done"} 1`) {
		t.Fatalf("expected success to be counted")
	}
}
