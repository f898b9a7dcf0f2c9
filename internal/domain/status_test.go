package domain

import (
	"errors"
	"testing"
)

func TestFileStatusTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to FileStatus
		allowed  bool
	}{
		{FileStatusUploading, FileStatusUploaded, true},
		{FileStatusUploaded, FileStatusProcessing, true},
		{FileStatusProcessing, FileStatusCompleted, true},
		{FileStatusUploading, FileStatusFailure, true},
		{FileStatusUploaded, FileStatusFailure, true},
		{FileStatusProcessing, FileStatusFailure, true},
		{FileStatusUploading, FileStatusProcessing, false},
		{FileStatusUploading, FileStatusCompleted, false},
		{FileStatusUploaded, FileStatusUploading, false},
		{FileStatusProcessing, FileStatusUploaded, false},
		{FileStatusCompleted, FileStatusFailure, false},
		{FileStatusFailure, FileStatusUploading, false},
		{FileStatus("bogus"), FileStatusUploaded, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
			t.Errorf("%s -> %s: expected %v, got %v", tt.from, tt.to, tt.allowed, got)
		}
	}
}

func TestParseEnums(t *testing.T) {
	t.Parallel()

	if st, err := ParseFileStatus("processing"); err != nil || st != FileStatusProcessing {
		t.Errorf("ParseFileStatus(processing) = %v, %v", st, err)
	}
	if _, err := ParseFileStatus("failed"); !errors.Is(err, ErrInvalidFileStatus) {
		t.Errorf("Expected ErrInvalidFileStatus, got %v", err)
	}

	contentTypes := map[string]FileType{
		"image/png":                 FileTypePNG,
		"image/jpeg":                FileTypeJPEG,
		"image/JPG":                 FileTypeJPG,
		"application/pdf":           FileTypePDF,
		"application/pdf; charset=": FileTypePDF,
	}
	for ct, want := range contentTypes {
		got, err := FileTypeFromContentType(ct)
		if err != nil || got != want {
			t.Errorf("FileTypeFromContentType(%q) = %v, %v; want %v", ct, got, err, want)
		}
	}
	if _, err := FileTypeFromContentType("image/gif"); !errors.Is(err, ErrInvalidFileType) {
		t.Errorf("Expected ErrInvalidFileType for gif, got %v", err)
	}
}

func TestParseResolution(t *testing.T) {
	t.Parallel()

	r, err := ParseResolution("3500x3500")
	if err != nil || r != (Resolution{Width: 3500, Height: 3500}) {
		t.Fatalf("ParseResolution = %v, %v", r, err)
	}
	if r.String() != "3500x3500" {
		t.Errorf("String() = %s", r.String())
	}

	for _, bad := range []string{"", "3500", "x", "0x10", "-1x5", "axb"} {
		if _, err := ParseResolution(bad); !errors.Is(err, ErrInvalidResolution) {
			t.Errorf("ParseResolution(%q): expected ErrInvalidResolution, got %v", bad, err)
		}
	}
}
