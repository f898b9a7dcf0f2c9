package domain

import (
	"time"

	"github.com/google/uuid"
)

// FileRecord tracks one stored artifact: an original upload or a page
// extracted from an uploaded PDF. Nullable columns are pointers.
type FileRecord struct {
	ID               uuid.UUID  `json:"id"`
	Name             string     `json:"name"`
	OriginalFilename *string    `json:"original_filename"`
	Path             *string    `json:"path"`
	FileType         FileType   `json:"file_type"`
	InputResolution  *string    `json:"input_resolution"`
	Status           FileStatus `json:"status"`
	OutputPath       *string    `json:"output_path"`
	OutputResolution *string    `json:"output_resolution"`
	PageNumber       *int       `json:"page_number"`
	ParentID         *uuid.UUID `json:"parent_id"`
	FailureReason    *string    `json:"failure_reason,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// NewFileRecord creates a top-level record for an uploaded file in the
// uploading state. inputResolution may be empty when it is not yet known.
func NewFileRecord(name, originalFilename string, fileType FileType, inputResolution string) (*FileRecord, error) {
	now := time.Now().UTC()
	f := &FileRecord{
		ID:        uuid.New(),
		Name:      name,
		FileType:  fileType,
		Status:    FileStatusUploading,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if originalFilename != "" {
		f.OriginalFilename = &originalFilename
	}
	if inputResolution != "" {
		f.InputResolution = &inputResolution
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// NewPageRecord creates the record for page pageNumber (1-based) of parent.
// Pages are always png and have no original filename.
func NewPageRecord(parent *FileRecord, name string, pageNumber int, inputResolution string) (*FileRecord, error) {
	if parent == nil || !parent.FileType.IsPDF() || parent.ParentID != nil {
		return nil, ErrInvalidParent
	}

	f, err := NewFileRecord(name, "", FileTypePNG, inputResolution)
	if err != nil {
		return nil, err
	}
	parentID := parent.ID
	f.ParentID = &parentID
	f.PageNumber = &pageNumber

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// IsPage reports whether the record was derived from a PDF page.
func (f *FileRecord) IsPage() bool {
	return f.ParentID != nil
}

// Validate checks field values and the cross-field invariants of a record.
func (f *FileRecord) Validate() error {
	if f.ID == uuid.Nil {
		return NewValidationError("id", "cannot be empty", ErrInvalidID)
	}
	if f.Name == "" {
		return NewValidationError("name", "cannot be empty", ErrValidation)
	}
	if !f.FileType.Valid() {
		return NewValidationError("file_type", "is not supported", ErrInvalidFileType)
	}
	if !f.Status.Valid() {
		return NewValidationError("status", "is not a known state", ErrInvalidFileStatus)
	}
	if (f.PageNumber == nil) != (f.ParentID == nil) {
		return NewValidationError("page_number", "must be set together with parent_id", ErrValidation)
	}
	if f.PageNumber != nil {
		if *f.PageNumber < 1 {
			return NewValidationError("page_number", "must be at least 1", ErrValidation)
		}
		if *f.ParentID == f.ID {
			return NewValidationError("parent_id", "cannot reference itself", ErrInvalidParent)
		}
		if f.FileType.IsPDF() {
			return NewValidationError("file_type", "page records cannot be pdf", ErrInvalidParent)
		}
	}
	completed := f.Status == FileStatusCompleted
	if completed != (f.OutputPath != nil && f.OutputResolution != nil) {
		return NewValidationError("output_path", "must be set exactly when completed", ErrValidation)
	}
	if f.InputResolution != nil {
		if _, err := ParseResolution(*f.InputResolution); err != nil {
			return NewValidationError("input_resolution", "must be WxH", err)
		}
	}
	return nil
}

// MarkUploaded records where the payload was stored and advances to uploaded.
func (f *FileRecord) MarkUploaded(path string) error {
	if err := f.transition(FileStatusUploaded); err != nil {
		return err
	}
	f.Path = &path
	return nil
}

// MarkProcessing advances an uploaded record to processing.
func (f *FileRecord) MarkProcessing() error {
	if f.Path == nil {
		return NewValidationError("path", "is required before processing", ErrValidation)
	}
	return f.transition(FileStatusProcessing)
}

// MarkCompleted stores the conversion output and advances to completed.
func (f *FileRecord) MarkCompleted(outputPath string, outputResolution Resolution) error {
	if !outputResolution.Valid() {
		return ErrInvalidResolution
	}
	if err := f.transition(FileStatusCompleted); err != nil {
		return err
	}
	res := outputResolution.String()
	f.OutputPath = &outputPath
	f.OutputResolution = &res
	return nil
}

// MarkFailed moves a non-terminal record to failure, keeping reason.
func (f *FileRecord) MarkFailed(reason string) error {
	if err := f.transition(FileStatusFailure); err != nil {
		return err
	}
	f.FailureReason = &reason
	return nil
}

func (f *FileRecord) transition(next FileStatus) error {
	if !f.Status.CanTransitionTo(next) {
		return NewValidationError("status", string(f.Status)+" -> "+string(next), ErrInvalidTransition)
	}
	f.Status = next
	f.UpdatedAt = time.Now().UTC()
	return nil
}
