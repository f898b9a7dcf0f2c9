package conversion

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"io"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/phrazzld/canonify/internal/domain"
	"golang.org/x/sync/errgroup"
)

// pointsPerInch is the PDF user space unit.
const pointsPerInch = 72.0

// Page is one rasterized PDF page.
type Page struct {
	// Number is 1-based.
	Number     int
	Data       []byte
	Resolution domain.Resolution
}

// DecomposePDF splits a PDF into one PNG raster per page, in page order.
// Pages are rendered at the configured DPI by the engine's renderer. When
// no renderer is set or rendering a page fails, the page's largest embedded
// image is used, and a page without one becomes a blank raster of the page
// size.
func (e *Engine) DecomposePDF(ctx context.Context, data []byte) ([]Page, error) {
	if !mimetype.Detect(data).Is(MIMEPDF) {
		return nil, newError("decompose", ErrCorruptInput, nil)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pdfCtx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, newError("decompose", ErrCorruptInput, err)
	}
	if err := api.ValidateContext(pdfCtx); err != nil {
		return nil, newError("decompose", ErrCorruptInput, err)
	}

	dims, err := pdfCtx.PageDims()
	if err != nil {
		return nil, newError("decompose", ErrCorruptInput, err)
	}
	if len(dims) == 0 {
		return nil, newError("decompose", ErrCorruptInput, nil)
	}

	log := e.logger.With("page_count", len(dims))

	embedded := sync.OnceValue(func() map[int][]byte {
		images, err := e.largestImages(data, conf)
		if err != nil {
			log.Warn("failed to extract page images, using blank pages", "error", err)
			return map[int][]byte{}
		}
		return images
	})

	pages := make([]Page, len(dims))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.PageWorkers)

	for i, dim := range dims {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			number := i + 1
			raster, err := e.renderPage(gctx, data, i)
			if err != nil {
				log.Warn("page rendering failed, using embedded image", "page", number, "error", err)
			}
			if raster == nil {
				raster = e.pageRaster(embedded()[number], dim)
			}

			encoded, err := encodePNG(raster)
			if err != nil {
				return newError("decompose", err, nil)
			}

			b := raster.Bounds()
			pages[i] = Page{
				Number:     number,
				Data:       encoded,
				Resolution: domain.Resolution{Width: b.Dx(), Height: b.Dy()},
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info("pdf decomposed")
	return pages, nil
}

// renderPage renders page index with the engine's renderer. It returns a
// nil image when no renderer is set.
func (e *Engine) renderPage(ctx context.Context, data []byte, index int) (image.Image, error) {
	if e.renderer == nil {
		return nil, nil
	}
	return e.renderer.RenderPage(ctx, data, index, e.cfg.PageDPI)
}

// largestImages returns, per page number, the raw bytes of the page's
// largest embedded image.
func (e *Engine) largestImages(data []byte, conf *model.Configuration) (map[int][]byte, error) {
	extracted, err := api.ExtractImagesRaw(bytes.NewReader(data), nil, conf)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		area int
		data []byte
	}
	best := make(map[int]candidate)

	for _, byObj := range extracted {
		for _, img := range byObj {
			area := img.Width * img.Height
			if cur, ok := best[img.PageNr]; ok && cur.area >= area {
				continue
			}
			raw, err := io.ReadAll(img)
			if err != nil {
				e.logger.Warn("failed to read page image",
					"page", img.PageNr,
					"image", img.Name,
					"error", err)
				continue
			}
			best[img.PageNr] = candidate{area: area, data: raw}
		}
	}

	out := make(map[int][]byte, len(best))
	for page, c := range best {
		out[page] = c.data
	}
	return out, nil
}

// pageRaster decodes raw, falling back to a blank page of dim at the
// configured DPI when raw is missing or undecodable.
func (e *Engine) pageRaster(raw []byte, dim types.Dim) image.Image {
	if len(raw) > 0 {
		img, err := imaging.Decode(bytes.NewReader(raw))
		if err == nil {
			return img
		}
		e.logger.Debug("page image not decodable, using blank page", "error", err)
	}

	scale := float64(e.cfg.PageDPI) / pointsPerInch
	w := max(1, int(dim.Width*scale))
	h := max(1, int(dim.Height*scale))
	return imaging.New(w, h, color.White)
}
