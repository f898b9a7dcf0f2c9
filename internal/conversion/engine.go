package conversion

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"log/slog"
	"math"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/phrazzld/canonify/internal/domain"
)

// MIME types the engine accepts.
const (
	MIMEPNG  = "image/png"
	MIMEJPEG = "image/jpeg"
	MIMEPDF  = "application/pdf"
)

// Config holds engine settings.
type Config struct {
	// PageWorkers bounds how many PDF pages are rasterized at once.
	PageWorkers int

	// PageDPI is the resolution PDF pages are rendered at, and sets the size
	// of blank rasters for pages that cannot be rendered.
	PageDPI int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{PageWorkers: 4, PageDPI: 150}
}

// Engine performs conversions. It is safe for concurrent use.
type Engine struct {
	cfg      Config
	renderer PageRenderer
	logger   *slog.Logger
}

// NewEngine creates an Engine, filling unset config fields with defaults.
func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	defaults := DefaultConfig()
	if cfg.PageWorkers <= 0 {
		cfg.PageWorkers = defaults.PageWorkers
	}
	if cfg.PageDPI <= 0 {
		cfg.PageDPI = defaults.PageDPI
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, logger: logger.With("component", "conversion")}
}

// SetRenderer sets the renderer DecomposePDF draws pages with. It must be
// called before the engine is shared.
func (e *Engine) SetRenderer(r PageRenderer) {
	e.renderer = r
}

// Detect sniffs data and maps it to a file type.
func (e *Engine) Detect(data []byte) (domain.FileType, error) {
	mt := mimetype.Detect(data)
	switch {
	case mt.Is(MIMEPNG):
		return domain.FileTypePNG, nil
	case mt.Is(MIMEJPEG):
		return domain.FileTypeJPEG, nil
	case mt.Is(MIMEPDF):
		return domain.FileTypePDF, nil
	default:
		return "", newError("detect", ErrUnsupportedFormat, nil)
	}
}

// ProbeResolution reads the pixel size of an image without decoding it fully.
func (e *Engine) ProbeResolution(data []byte) (domain.Resolution, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return domain.Resolution{}, newError("probe", ErrCorruptInput, err)
	}
	res := domain.Resolution{Width: cfg.Width, Height: cfg.Height}
	if !res.Valid() {
		return domain.Resolution{}, newError("probe", ErrCorruptInput, domain.ErrInvalidResolution)
	}
	return res, nil
}

// ConvertToCanonical decodes src, scales it to fit target keeping its aspect
// ratio, centers it on a white canvas of exactly target and encodes PNG.
// Converting an already canonical image yields an image of the same size.
func (e *Engine) ConvertToCanonical(
	ctx context.Context,
	src []byte,
	target domain.Resolution,
) ([]byte, domain.Resolution, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Resolution{}, newError("convert", err, nil)
	}
	if !target.Valid() {
		return nil, domain.Resolution{}, newError("convert", domain.ErrInvalidResolution, nil)
	}

	if mt := mimetype.Detect(src); !mt.Is(MIMEPNG) && !mt.Is(MIMEJPEG) {
		return nil, domain.Resolution{}, newError("convert", ErrUnsupportedFormat, nil)
	}

	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return nil, domain.Resolution{}, newError("convert", ErrCorruptInput, err)
	}

	out := fitOnCanvas(img, target)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return nil, domain.Resolution{}, newError("encode", err, nil)
	}

	e.logger.Debug("image converted",
		"source_width", img.Bounds().Dx(),
		"source_height", img.Bounds().Dy(),
		"output_resolution", target.String())
	return buf.Bytes(), target, nil
}

// fitOnCanvas scales img to the largest size that fits target and centers
// it on a white canvas of exactly target.
func fitOnCanvas(img image.Image, target domain.Resolution) image.Image {
	b := img.Bounds()
	sw, sh := float64(b.Dx()), float64(b.Dy())

	scale := math.Min(float64(target.Width)/sw, float64(target.Height)/sh)
	w := max(1, int(math.Round(sw*scale)))
	h := max(1, int(math.Round(sh*scale)))

	var scaled image.Image = img
	if w != b.Dx() || h != b.Dy() {
		scaled = imaging.Resize(img, w, h, imaging.Lanczos)
	}

	canvas := imaging.New(target.Width, target.Height, color.White)
	return imaging.PasteCenter(canvas, scaled)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
