// Package conversion turns uploaded images and PDFs into the canonical
// rendition: PNG at a fixed pixel size. It sniffs formats, measures inputs,
// splits PDFs into per-page rasters and re-encodes images.
package conversion
