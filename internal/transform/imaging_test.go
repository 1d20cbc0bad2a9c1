package transform

import (
	"context"
	"errors"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/tendant/simple-image-pipeline/pkg/pipeline"
)

func newJob(t *testing.T, name string, width, height int, versions ...string) Job {
	t.Helper()
	in, out := t.TempDir(), t.TempDir()
	img := imaging.New(width, height, color.NRGBA{R: 200, G: 40, B: 40, A: 255})
	if err := imaging.Save(img, filepath.Join(in, name)); err != nil {
		t.Fatalf("save source: %v", err)
	}

	job := Job{InputDir: in, OutputDir: out}
	for _, v := range versions {
		job.Versions = append(job.Versions, pipeline.VersionSpec(v))
	}
	return job
}

func dimensions(t *testing.T, path string) (int, int) {
	t.Helper()
	img, err := imaging.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	b := img.Bounds()
	return b.Dx(), b.Dy()
}

func TestResizeEngineKeepsVersionOrder(t *testing.T) {
	job := newJob(t, "photo.jpg", 1600, 1200,
		`{"suffix":"w800","width":800}`,
		`{"suffix":"w400","width":400}`,
	)

	manifest, err := NewResizeEngine().Run(context.Background(), job)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	outputs := manifest["photo.jpg"]
	if len(manifest) != 1 || len(outputs) != 2 {
		t.Fatalf("unexpected manifest %v", manifest)
	}
	if outputs[0] != "photo_w800.jpg" || outputs[1] != "photo_w400.jpg" {
		t.Fatalf("unexpected outputs %v", outputs)
	}

	if w, h := dimensions(t, filepath.Join(job.OutputDir, outputs[0])); w != 800 || h != 600 {
		t.Errorf("primary version is %dx%d, want 800x600", w, h)
	}
	if w, h := dimensions(t, filepath.Join(job.OutputDir, outputs[1])); w != 400 || h != 300 {
		t.Errorf("second version is %dx%d, want 400x300", w, h)
	}
}

func TestResizeEngineNeverUpscales(t *testing.T) {
	job := newJob(t, "small.png", 100, 50, `{"width":400}`, `{"width":300,"height":300}`)

	manifest, err := NewResizeEngine().Run(context.Background(), job)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, name := range manifest["small.png"] {
		if w, h := dimensions(t, filepath.Join(job.OutputDir, name)); w != 100 || h != 50 {
			t.Errorf("%s is %dx%d, want 100x50", name, w, h)
		}
	}
	if got := manifest["small.png"]; got[0] != "small_w400.png" || got[1] != "small_300x300.png" {
		t.Errorf("unexpected derived names %v", got)
	}
}

func TestResizeEngineWithoutVersionsKeepsOriginal(t *testing.T) {
	job := newJob(t, "photo.png", 64, 32)

	manifest, err := NewResizeEngine().Run(context.Background(), job)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := manifest["photo.png"]; len(got) != 1 || got[0] != "photo.png" {
		t.Fatalf("unexpected manifest %v", manifest)
	}
	if w, h := dimensions(t, filepath.Join(job.OutputDir, "photo.png")); w != 64 || h != 32 {
		t.Errorf("original version is %dx%d", w, h)
	}
}

func TestResizeEngineConvertsFormat(t *testing.T) {
	job := newJob(t, "photo.png", 64, 64, `{"suffix":"web","format":"jpeg","quality":70}`)

	manifest, err := NewResizeEngine().Run(context.Background(), job)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := manifest["photo.png"][0]; got != "photo_web.jpg" {
		t.Fatalf("expected photo_web.jpg, got %s", got)
	}
}

func TestCropEngineFillsBox(t *testing.T) {
	job := newJob(t, "photo.jpg", 1000, 500, `{"suffix":"square","width":200,"height":200}`)

	manifest, err := NewCropEngine().Run(context.Background(), job)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := manifest["photo.jpg"][0]
	if w, h := dimensions(t, filepath.Join(job.OutputDir, out)); w != 200 || h != 200 {
		t.Fatalf("cropped version is %dx%d, want 200x200", w, h)
	}
}

func TestCropEngineNeedsBothDimensions(t *testing.T) {
	job := newJob(t, "photo.jpg", 100, 100, `{"width":50}`)
	_, err := NewCropEngine().Run(context.Background(), job)
	if !errors.Is(err, ErrInvalidVersion) {
		t.Fatalf("expected ErrInvalidVersion, got %v", err)
	}
}

func TestEngineRejectsBadVersions(t *testing.T) {
	for _, spec := range []string{
		`{"width":-1}`,
		`{"quality":101}`,
		`{"unknown":1}`,
		`"w800"`,
		`{"format":"heic"}`,
		`{"suffix":"../escape"}`,
	} {
		job := newJob(t, "photo.jpg", 10, 10, spec)
		if _, err := NewResizeEngine().Run(context.Background(), job); !errors.Is(err, ErrInvalidVersion) {
			t.Errorf("%s: expected ErrInvalidVersion, got %v", spec, err)
		}
	}
}

func TestEngineRejectsDuplicateOutputNames(t *testing.T) {
	job := newJob(t, "photo.jpg", 10, 10, `{"width":5}`, `{"width":5}`)
	if _, err := NewResizeEngine().Run(context.Background(), job); !errors.Is(err, ErrInvalidVersion) {
		t.Fatalf("expected ErrInvalidVersion, got %v", err)
	}
}

func TestEngineNeedsInput(t *testing.T) {
	job := Job{InputDir: t.TempDir(), OutputDir: t.TempDir()}
	if _, err := NewResizeEngine().Run(context.Background(), job); !errors.Is(err, ErrNoInput) {
		t.Fatalf("expected ErrNoInput, got %v", err)
	}
}

func TestRegistryDispatch(t *testing.T) {
	r := NewRegistry()
	for _, mode := range pipeline.Modes() {
		if _, err := r.Engine(mode); err != nil {
			t.Errorf("mode %s not registered: %v", mode, err)
		}
	}
	if _, err := r.Run(context.Background(), "sepia", Job{}); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("expected ErrUnknownMode, got %v", err)
	}
}
