package conversion

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"io"
	"log/slog"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/phrazzld/canonify/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() *Engine {
	return NewEngine(Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func encodeImage(t *testing.T, w, h int, c color.Color, format imaging.Format) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(w, h, c), format))
	return buf.Bytes()
}

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := imaging.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func assertColor(t *testing.T, img image.Image, x, y int, want color.NRGBA) {
	t.Helper()
	got := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
	assert.Equal(t, want, got, "pixel (%d,%d)", x, y)
}

var (
	white = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	red   = color.NRGBA{R: 255, A: 255}
)

func TestNewEngine_Defaults(t *testing.T) {
	e := NewEngine(Config{}, nil)
	assert.Equal(t, DefaultConfig(), e.cfg)

	e = NewEngine(Config{PageWorkers: 8, PageDPI: 300}, nil)
	assert.Equal(t, 8, e.cfg.PageWorkers)
	assert.Equal(t, 300, e.cfg.PageDPI)
}

func TestDetect(t *testing.T) {
	e := newTestEngine()

	tests := []struct {
		name string
		data []byte
		want domain.FileType
	}{
		{"png", encodeImage(t, 2, 2, red, imaging.PNG), domain.FileTypePNG},
		{"jpeg", encodeImage(t, 2, 2, red, imaging.JPEG), domain.FileTypeJPEG},
		{"pdf", []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n"), domain.FileTypePDF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Detect(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("text is unsupported", func(t *testing.T) {
		_, err := e.Detect([]byte("hello world"))
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
		assert.ErrorIs(t, err, ErrConversion)
	})
}

func TestProbeResolution(t *testing.T) {
	e := newTestEngine()

	t.Run("png", func(t *testing.T) {
		res, err := e.ProbeResolution(encodeImage(t, 640, 480, red, imaging.PNG))
		require.NoError(t, err)
		assert.Equal(t, domain.Resolution{Width: 640, Height: 480}, res)
	})

	t.Run("jpeg", func(t *testing.T) {
		res, err := e.ProbeResolution(encodeImage(t, 33, 17, red, imaging.JPEG))
		require.NoError(t, err)
		assert.Equal(t, "33x17", res.String())
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := e.ProbeResolution([]byte("not an image"))
		assert.ErrorIs(t, err, ErrCorruptInput)

		var convErr *ConversionError
		require.ErrorAs(t, err, &convErr)
		assert.Equal(t, "probe", convErr.Op)
	})
}

func TestConvertToCanonical(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	target := domain.Resolution{Width: 100, Height: 100}

	t.Run("wide image is letterboxed", func(t *testing.T) {
		out, res, err := e.ConvertToCanonical(ctx, encodeImage(t, 200, 100, red, imaging.PNG), target)
		require.NoError(t, err)
		assert.Equal(t, target, res)

		img := decode(t, out)
		assert.Equal(t, 100, img.Bounds().Dx())
		assert.Equal(t, 100, img.Bounds().Dy())
		assertColor(t, img, 50, 50, red)
		assertColor(t, img, 50, 5, white)
		assertColor(t, img, 50, 94, white)
	})

	t.Run("tall image is pillarboxed", func(t *testing.T) {
		out, _, err := e.ConvertToCanonical(ctx, encodeImage(t, 50, 200, red, imaging.PNG), target)
		require.NoError(t, err)

		img := decode(t, out)
		assertColor(t, img, 50, 50, red)
		assertColor(t, img, 5, 50, white)
		assertColor(t, img, 94, 50, white)
	})

	t.Run("small image is upscaled", func(t *testing.T) {
		out, _, err := e.ConvertToCanonical(ctx, encodeImage(t, 10, 10, red, imaging.PNG), target)
		require.NoError(t, err)

		img := decode(t, out)
		assert.Equal(t, 100, img.Bounds().Dx())
		assertColor(t, img, 2, 2, red)
		assertColor(t, img, 97, 97, red)
	})

	t.Run("canonical input keeps its size", func(t *testing.T) {
		first, _, err := e.ConvertToCanonical(ctx, encodeImage(t, 300, 120, red, imaging.JPEG), target)
		require.NoError(t, err)

		second, res, err := e.ConvertToCanonical(ctx, first, target)
		require.NoError(t, err)
		assert.Equal(t, target, res)
		assert.Equal(t, image.Rect(0, 0, 100, 100), decode(t, second).Bounds())
	})

	t.Run("pdf is unsupported", func(t *testing.T) {
		_, _, err := e.ConvertToCanonical(ctx, []byte("%PDF-1.4\n"), target)
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("truncated png is corrupt", func(t *testing.T) {
		data := encodeImage(t, 20, 20, red, imaging.PNG)
		_, _, err := e.ConvertToCanonical(ctx, data[:40], target)
		assert.ErrorIs(t, err, ErrCorruptInput)
	})

	t.Run("invalid target", func(t *testing.T) {
		_, _, err := e.ConvertToCanonical(ctx, encodeImage(t, 2, 2, red, imaging.PNG), domain.Resolution{})
		assert.ErrorIs(t, err, domain.ErrInvalidResolution)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, _, err := e.ConvertToCanonical(cctx, encodeImage(t, 2, 2, red, imaging.PNG), target)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDecomposePDF_RejectsNonPDF(t *testing.T) {
	e := newTestEngine()

	_, err := e.DecomposePDF(context.Background(), encodeImage(t, 2, 2, red, imaging.PNG))
	assert.ErrorIs(t, err, ErrCorruptInput)

	_, err = e.DecomposePDF(context.Background(), []byte("%PDF-1.7\ngarbage without xref"))
	assert.ErrorIs(t, err, ErrCorruptInput)
}

func TestPageRaster(t *testing.T) {
	e := newTestEngine()
	letter := types.Dim{Width: 612, Height: 792}

	t.Run("embedded image is used as is", func(t *testing.T) {
		img := e.pageRaster(encodeImage(t, 40, 30, red, imaging.PNG), letter)
		assert.Equal(t, image.Rect(0, 0, 40, 30), img.Bounds())
	})

	t.Run("missing image gives blank page at dpi", func(t *testing.T) {
		img := e.pageRaster(nil, letter)
		assert.Equal(t, image.Rect(0, 0, 1275, 1650), img.Bounds())
		assertColor(t, img, 0, 0, white)
	})

	t.Run("undecodable image falls back to blank page", func(t *testing.T) {
		img := e.pageRaster([]byte("jpx stream"), types.Dim{Width: 72, Height: 36})
		assert.Equal(t, image.Rect(0, 0, 150, 75), img.Bounds())
	})
}
