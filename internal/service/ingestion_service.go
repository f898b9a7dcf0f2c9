package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/phrazzld/canonify/internal/conversion"
	"github.com/phrazzld/canonify/internal/domain"
	"github.com/phrazzld/canonify/internal/task"
)

// Enqueuer saves jobs inside a caller's session.
type Enqueuer interface {
	Enqueue(ctx context.Context, s task.Session, job *task.Job) error
}

// Inspector is the part of the conversion engine used at upload time.
type Inspector interface {
	Detect(data []byte) (domain.FileType, error)
	ProbeResolution(data []byte) (domain.Resolution, error)
	DecomposePDF(ctx context.Context, data []byte) ([]conversion.Page, error)
}

// UploadFile is one part of an upload, read fully into memory.
type UploadFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// UploadResult identifies a record created by an upload. Filename is nil
// for pages split out of a PDF.
type UploadResult struct {
	Filename    *string   `json:"filename"`
	NewFilename string    `json:"new_filename"`
	FileID      uuid.UUID `json:"file_id"`
}

// IngestionConfig holds upload settings.
type IngestionConfig struct {
	// AllowedTypes is the upload allow-list.
	AllowedTypes []domain.FileType
}

// IngestionService accepts uploads and schedules their processing.
type IngestionService struct {
	sessions  task.SessionFactory
	runner    Enqueuer
	tasks     *task.FileTaskFactory
	inspector Inspector
	cfg       IngestionConfig
	logger    *slog.Logger
}

// NewIngestionService creates a new IngestionService.
// It returns an error if any of the required dependencies are nil.
func NewIngestionService(
	sessions task.SessionFactory,
	runner Enqueuer,
	tasks *task.FileTaskFactory,
	inspector Inspector,
	cfg IngestionConfig,
	logger *slog.Logger,
) (*IngestionService, error) {
	if sessions == nil {
		return nil, &FileServiceError{Operation: "create_service", Message: "sessions cannot be nil"}
	}
	if runner == nil {
		return nil, &FileServiceError{Operation: "create_service", Message: "runner cannot be nil"}
	}
	if tasks == nil {
		return nil, &FileServiceError{Operation: "create_service", Message: "tasks cannot be nil"}
	}
	if inspector == nil {
		return nil, &FileServiceError{Operation: "create_service", Message: "inspector cannot be nil"}
	}
	if len(cfg.AllowedTypes) == 0 {
		return nil, &FileServiceError{Operation: "create_service", Message: "allowed types cannot be empty"}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &IngestionService{
		sessions:  sessions,
		runner:    runner,
		tasks:     tasks,
		inspector: inspector,
		cfg:       cfg,
		logger:    logger.With("component", "ingestion_service"),
	}, nil
}

// preparedUpload is an uploaded file that passed validation and inspection.
type preparedUpload struct {
	file       UploadFile
	fileType   domain.FileType
	resolution domain.Resolution
	pages      []conversion.Page
}

// Upload validates and inspects every file, then creates records and jobs
// file by file. Results are in upload order; a PDF contributes its own entry
// followed by one entry per page. Nothing is written when any file is
// rejected, including corrupt content found while probing or splitting.
func (s *IngestionService) Upload(ctx context.Context, files []UploadFile) ([]UploadResult, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	prepared := make([]preparedUpload, len(files))
	for i, f := range files {
		p, err := s.prepare(ctx, f)
		if err != nil {
			s.logger.WarnContext(ctx, "rejected upload",
				"filename", f.Filename,
				"content_type", f.ContentType,
				"error", err)
			return nil, err
		}
		prepared[i] = p
	}

	var results []UploadResult
	for _, p := range prepared {
		var (
			created []UploadResult
			err     error
		)
		if p.fileType.IsPDF() {
			created, err = s.savePDF(ctx, p)
		} else {
			var r UploadResult
			r, err = s.saveImage(ctx, p)
			created = []UploadResult{r}
		}
		if err != nil {
			return nil, err
		}
		results = append(results, created...)
	}

	s.logger.InfoContext(ctx, "upload accepted",
		"file_count", len(files),
		"record_count", len(results))
	return results, nil
}

// prepare validates f and runs the conversion engine's read-only inspection:
// resolution for images, page splitting for PDFs.
func (s *IngestionService) prepare(ctx context.Context, f UploadFile) (preparedUpload, error) {
	ft, err := s.validate(f)
	if err != nil {
		return preparedUpload{}, err
	}

	p := preparedUpload{file: f, fileType: ft}
	if ft.IsPDF() {
		p.pages, err = s.inspector.DecomposePDF(ctx, f.Data)
	} else {
		p.resolution, err = s.inspector.ProbeResolution(f.Data)
	}
	if err != nil {
		return preparedUpload{}, err
	}
	return p, nil
}

// validate checks the declared type against the allow-list and the sniffed
// content.
func (s *IngestionService) validate(f UploadFile) (domain.FileType, error) {
	declared, err := domain.FileTypeFromContentType(f.ContentType)
	if err != nil || !slices.Contains(s.cfg.AllowedTypes, declared) {
		return "", fmt.Errorf("%w: %q", ErrDisallowedType, f.ContentType)
	}

	sniffed, err := s.inspector.Detect(f.Data)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrContentMismatch, f.Filename)
	}
	if sniffed.IsPDF() != declared.IsPDF() {
		return "", fmt.Errorf("%w: %s is %s", ErrContentMismatch, f.Filename, sniffed)
	}
	return declared, nil
}

func (s *IngestionService) saveImage(ctx context.Context, p preparedUpload) (UploadResult, error) {
	f := p.file
	name := domain.GenerateStorageName(f.Filename)
	rec, err := domain.NewFileRecord(name, f.Filename, p.fileType, p.resolution.String())
	if err != nil {
		return UploadResult{}, NewFileServiceError("upload", "failed to create file record", err)
	}

	err = s.sessions.RunInSession(ctx, func(ctx context.Context, sess task.Session) error {
		if err := sess.Files().Create(ctx, rec); err != nil {
			return err
		}
		return s.enqueueStoreAndConvert(ctx, sess, rec, f.Data)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to save upload",
			"error", err,
			"file_id", rec.ID,
			"filename", f.Filename)
		return UploadResult{}, NewFileServiceError("upload", "failed to save upload", err)
	}

	s.logger.DebugContext(ctx, "image accepted",
		"file_id", rec.ID,
		"name", name,
		"input_resolution", p.resolution.String())
	return UploadResult{Filename: rec.OriginalFilename, NewFilename: name, FileID: rec.ID}, nil
}

// savePDF saves the parent record, its store job and every page with its
// store/convert chain in one session.
func (s *IngestionService) savePDF(ctx context.Context, p preparedUpload) ([]UploadResult, error) {
	f := p.file
	name := domain.GenerateStorageName(f.Filename)
	parent, err := domain.NewFileRecord(name, f.Filename, domain.FileTypePDF, "")
	if err != nil {
		return nil, NewFileServiceError("upload", "failed to create pdf record", err)
	}

	results := make([]UploadResult, 0, len(p.pages)+1)
	results = append(results, UploadResult{Filename: parent.OriginalFilename, NewFilename: name, FileID: parent.ID})

	err = s.sessions.RunInSession(ctx, func(ctx context.Context, sess task.Session) error {
		if err := sess.Files().Create(ctx, parent); err != nil {
			return err
		}

		store, err := s.tasks.NewStoreFileTask(parent.ID, name, f.Data)
		if err != nil {
			return err
		}
		if err := s.runner.Enqueue(ctx, sess, task.NewJob(store)); err != nil {
			return err
		}

		for _, page := range p.pages {
			pageName := domain.PageName(name, page.Number)
			rec, err := domain.NewPageRecord(parent, pageName, page.Number, page.Resolution.String())
			if err != nil {
				return err
			}
			if err := sess.Files().Create(ctx, rec); err != nil {
				return err
			}
			if err := s.enqueueStoreAndConvert(ctx, sess, rec, page.Data); err != nil {
				return err
			}
			results = append(results, UploadResult{NewFilename: pageName, FileID: rec.ID})
		}
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to save pdf upload",
			"error", err,
			"file_id", parent.ID,
			"filename", f.Filename)
		return nil, NewFileServiceError("upload", "failed to save pdf upload", err)
	}

	s.logger.DebugContext(ctx, "pdf accepted",
		"file_id", parent.ID,
		"name", name,
		"page_count", len(p.pages))
	return results, nil
}

func (s *IngestionService) enqueueStoreAndConvert(
	ctx context.Context,
	sess task.Session,
	rec *domain.FileRecord,
	data []byte,
) error {
	store, err := s.tasks.NewStoreFileTask(rec.ID, rec.Name, data)
	if err != nil {
		return err
	}
	convert, err := s.tasks.NewConvertFileTask(rec.ID)
	if err != nil {
		return err
	}
	return s.runner.Enqueue(ctx, sess, task.NewJob(store).Then(convert))
}

// IsClientError reports whether err was caused by the uploaded content
// rather than by the server.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNoFiles) ||
		errors.Is(err, ErrDisallowedType) ||
		errors.Is(err, ErrContentMismatch) ||
		errors.Is(err, conversion.ErrCorruptInput) ||
		errors.Is(err, conversion.ErrUnsupportedFormat)
}
