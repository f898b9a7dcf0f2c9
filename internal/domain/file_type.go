package domain

import (
	"fmt"
	"strings"
)

// FileType is the closed set of upload formats the pipeline accepts.
type FileType string

// Supported file types.
const (
	FileTypePNG  FileType = "png"
	FileTypeJPG  FileType = "jpg"
	FileTypeJPEG FileType = "jpeg"
	FileTypePDF  FileType = "pdf"
)

// ParseFileType converts s (case-insensitive) into a FileType.
func ParseFileType(s string) (FileType, error) {
	ft := FileType(strings.ToLower(strings.TrimSpace(s)))
	if !ft.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidFileType, s)
	}
	return ft, nil
}

// FileTypeFromContentType derives the file type from a MIME content type
// using its subtype, e.g. "image/jpeg" -> jpeg.
func FileTypeFromContentType(contentType string) (FileType, error) {
	mediaType := contentType
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	subtype := mediaType
	if i := strings.LastIndexByte(mediaType, '/'); i >= 0 {
		subtype = mediaType[i+1:]
	}
	return ParseFileType(subtype)
}

// Valid reports whether t is one of the supported file types.
func (t FileType) Valid() bool {
	switch t {
	case FileTypePNG, FileTypeJPG, FileTypeJPEG, FileTypePDF:
		return true
	default:
		return false
	}
}

// IsPDF reports whether t is the PDF container type.
func (t FileType) IsPDF() bool {
	return t == FileTypePDF
}
