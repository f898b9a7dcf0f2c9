package conversion

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"
	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/webassembly"
)

// PageRenderer rasterizes one page of a PDF. index is 0-based.
type PageRenderer interface {
	RenderPage(ctx context.Context, doc []byte, index, dpi int) (image.Image, error)
}

// instanceWait bounds how long a render waits for a free PDFium instance.
const instanceWait = 30 * time.Second

// PdfiumRenderer renders pages with PDFium compiled to WebAssembly, so no
// cgo or system library is needed. Instances come from a bounded pool and
// each render uses its own.
type PdfiumRenderer struct {
	pool pdfium.Pool
}

var _ PageRenderer = (*PdfiumRenderer)(nil)

// NewPdfiumRenderer starts a pool of at most instances PDFium runtimes.
func NewPdfiumRenderer(instances int) (*PdfiumRenderer, error) {
	if instances <= 0 {
		instances = 1
	}
	pool, err := webassembly.Init(webassembly.Config{
		MinIdle:  1,
		MaxIdle:  instances,
		MaxTotal: instances,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start pdfium: %w", err)
	}
	return &PdfiumRenderer{pool: pool}, nil
}

// RenderPage renders page index of doc at dpi.
func (r *PdfiumRenderer) RenderPage(ctx context.Context, doc []byte, index, dpi int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	instance, err := r.pool.GetInstance(instanceWait)
	if err != nil {
		return nil, fmt.Errorf("failed to get pdfium instance: %w", err)
	}
	defer func() { _ = instance.Close() }()

	opened, err := instance.OpenDocument(&requests.OpenDocument{File: &doc})
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer func() {
		_, _ = instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: opened.Document})
	}()

	rendered, err := instance.RenderPageInDPI(&requests.RenderPageInDPI{
		DPI: dpi,
		Page: requests.Page{
			ByIndex: &requests.PageByIndex{Document: opened.Document, Index: index},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", index+1, err)
	}
	defer rendered.Cleanup()

	// The rendered buffer is released by Cleanup.
	return imaging.Clone(rendered.Result.Image), nil
}

// Close shuts the pool down.
func (r *PdfiumRenderer) Close() error {
	return r.pool.Close()
}
