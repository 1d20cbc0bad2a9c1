package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/tendant/simple-image-pipeline/pkg/logger"
	"github.com/tendant/simple-image-pipeline/pkg/pipeline"
)

// DefaultQuality is the JPEG quality used when a version does not set one
const DefaultQuality = 80

// VersionParams are the engine-side parameters of one version spec
type VersionParams struct {
	Suffix  string `json:"suffix,omitempty"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Quality int    `json:"quality,omitempty"`
	Format  string `json:"format,omitempty"` // jpeg, png, gif, tiff or bmp; defaults to the source format
}

// ParseVersion decodes one opaque version spec
func ParseVersion(spec pipeline.VersionSpec) (VersionParams, error) {
	var p VersionParams
	dec := json.NewDecoder(bytes.NewReader(spec))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidVersion, err)
	}
	if p.Width < 0 || p.Height < 0 {
		return p, fmt.Errorf("%w: negative dimensions %dx%d", ErrInvalidVersion, p.Width, p.Height)
	}
	if p.Quality < 0 || p.Quality > 100 {
		return p, fmt.Errorf("%w: quality %d out of range 1-100", ErrInvalidVersion, p.Quality)
	}
	if strings.ContainsAny(p.Suffix, `/\`) {
		return p, fmt.Errorf("%w: suffix %q contains a path separator", ErrInvalidVersion, p.Suffix)
	}
	return p, nil
}

// label returns the file name suffix identifying this version
func (p VersionParams) label() string {
	switch {
	case p.Suffix != "":
		return p.Suffix
	case p.Width > 0 && p.Height > 0:
		return fmt.Sprintf("%dx%d", p.Width, p.Height)
	case p.Width > 0:
		return fmt.Sprintf("w%d", p.Width)
	case p.Height > 0:
		return fmt.Sprintf("h%d", p.Height)
	default:
		return ""
	}
}

// resizeFunc produces one version from the decoded source
type resizeFunc func(img image.Image, p VersionParams) (image.Image, error)

// imagingEngine runs every version through a resizeFunc and writes the results
type imagingEngine struct {
	name   string
	resize resizeFunc
}

// NewResizeEngine scales each version to fit its box, keeping aspect ratio and never upscaling.
// A version without dimensions keeps the original resolution.
func NewResizeEngine() Engine {
	return &imagingEngine{name: "ResizeEngine", resize: fitWithin}
}

// NewCropEngine fills each version's box exactly, cropping overflow around the centre.
// Crop versions need both width and height.
func NewCropEngine() Engine {
	return &imagingEngine{name: "CropEngine", resize: fillBox}
}

// Name returns the engine name
func (e *imagingEngine) Name() string {
	return e.name
}

// Run derives every version of every image in job.InputDir
func (e *imagingEngine) Run(ctx context.Context, job Job) (pipeline.Manifest, error) {
	sources, err := listSources(job.InputDir)
	if err != nil {
		return nil, err
	}

	specs := job.Versions
	if len(specs) == 0 {
		// Without explicit versions, emit the original resolution only
		specs = []pipeline.VersionSpec{pipeline.VersionSpec(`{}`)}
	}

	params := make([]VersionParams, 0, len(specs))
	for i, spec := range specs {
		p, err := ParseVersion(spec)
		if err != nil {
			return nil, fmt.Errorf("version %d: %w", i, err)
		}
		params = append(params, p)
	}

	manifest := make(pipeline.Manifest, len(sources))
	for _, name := range sources {
		outputs, err := e.derive(ctx, job, name, params)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		manifest[name] = outputs
	}
	return manifest, nil
}

func (e *imagingEngine) derive(ctx context.Context, job Job, name string, params []VersionParams) ([]string, error) {
	srcFormat, err := imaging.FormatFromFilename(name)
	if err != nil {
		return nil, fmt.Errorf("unsupported source format: %w", err)
	}

	img, err := imaging.Open(filepath.Join(job.InputDir, name), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("image decode failed: %w", err)
	}
	bounds := img.Bounds()
	logger.Log.Debug().
		Str("engine", e.name).
		Str("file", name).
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy()).
		Msg("source image decoded")

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	outputs := make([]string, 0, len(params))
	seen := make(map[string]bool, len(params))
	for i, p := range params {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		format, outExt, err := outputFormat(srcFormat, ext, p.Format)
		if err != nil {
			return nil, fmt.Errorf("version %d: %w", i, err)
		}

		outName := stem + outExt
		if label := p.label(); label != "" {
			outName = stem + "_" + label + outExt
		}
		if seen[outName] {
			return nil, fmt.Errorf("%w: version %d duplicates output name %s", ErrInvalidVersion, i, outName)
		}
		seen[outName] = true

		derived, err := e.resize(img, p)
		if err != nil {
			return nil, fmt.Errorf("version %d: %w", i, err)
		}

		quality := p.Quality
		if quality == 0 {
			quality = DefaultQuality
		}
		if err := writeImage(filepath.Join(job.OutputDir, outName), derived, format, quality); err != nil {
			return nil, fmt.Errorf("version %d: %w", i, err)
		}

		b := derived.Bounds()
		logger.Log.Debug().
			Str("engine", e.name).
			Str("output", outName).
			Int("width", b.Dx()).
			Int("height", b.Dy()).
			Msg("version written")
		outputs = append(outputs, outName)
	}
	return outputs, nil
}

func fitWithin(img image.Image, p VersionParams) (image.Image, error) {
	b := img.Bounds()
	switch {
	case p.Width == 0 && p.Height == 0:
		return img, nil
	case p.Width > 0 && p.Height > 0:
		return imaging.Fit(img, p.Width, p.Height, imaging.Lanczos), nil
	case p.Width > 0:
		if p.Width >= b.Dx() {
			return img, nil
		}
		return imaging.Resize(img, p.Width, 0, imaging.Lanczos), nil
	default:
		if p.Height >= b.Dy() {
			return img, nil
		}
		return imaging.Resize(img, 0, p.Height, imaging.Lanczos), nil
	}
}

func fillBox(img image.Image, p VersionParams) (image.Image, error) {
	if p.Width == 0 && p.Height == 0 {
		return img, nil
	}
	if p.Width == 0 || p.Height == 0 {
		return nil, fmt.Errorf("%w: crop needs both width and height, got %dx%d", ErrInvalidVersion, p.Width, p.Height)
	}
	return imaging.Fill(img, p.Width, p.Height, imaging.Center, imaging.Lanczos), nil
}

var formatExtensions = map[imaging.Format]string{
	imaging.JPEG: ".jpg",
	imaging.PNG:  ".png",
	imaging.GIF:  ".gif",
	imaging.TIFF: ".tif",
	imaging.BMP:  ".bmp",
}

// outputFormat resolves a version's target format; the source extension is kept when the format does not change
func outputFormat(src imaging.Format, srcExt, requested string) (imaging.Format, string, error) {
	if requested == "" {
		return src, srcExt, nil
	}
	format, err := imaging.FormatFromExtension(requested)
	if err != nil {
		return 0, "", fmt.Errorf("%w: format %q: %v", ErrInvalidVersion, requested, err)
	}
	if format == src {
		return format, srcExt, nil
	}
	return format, formatExtensions[format], nil
}

func writeImage(path string, img image.Image, format imaging.Format, quality int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := imaging.Encode(f, img, format, imaging.JPEGQuality(quality)); err != nil {
		f.Close()
		return fmt.Errorf("image encode failed: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

func listSources(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoInput, dir)
	}
	sort.Strings(names)
	return names, nil
}
