package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/canonify/internal/api/shared"
	"github.com/phrazzld/canonify/internal/domain"
	"github.com/phrazzld/canonify/internal/platform/logger"
	"github.com/phrazzld/canonify/internal/service"
)

const (
	// UploadField is the multipart field carrying the uploaded files.
	UploadField = "files"

	// DefaultMaxUploadBytes caps the size of a whole upload request.
	DefaultMaxUploadBytes int64 = 64 << 20

	// multipartMemory is how much of a form is kept in memory before parts
	// spill to temporary files.
	multipartMemory = 32 << 20

	messageUploaded = "File is uploaded"
)

// Uploader accepts uploaded files.
type Uploader interface {
	Upload(ctx context.Context, files []service.UploadFile) ([]service.UploadResult, error)
}

// FileQuerier reads file records.
type FileQuerier interface {
	Get(ctx context.Context, id uuid.UUID) (*service.FileDetails, error)
	GetStatus(ctx context.Context, id uuid.UUID) (domain.FileStatus, error)
}

// uploadPart is one multipart file part after it was read.
type uploadPart struct {
	Filename    string `validate:"required,max=255"`
	ContentType string `validate:"required"`
	Data        []byte
}

// FileHandler serves the /api/files routes.
type FileHandler struct {
	uploader       Uploader
	files          FileQuerier
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewFileHandler creates a FileHandler. maxUploadBytes <= 0 selects
// DefaultMaxUploadBytes.
func NewFileHandler(uploader Uploader, files FileQuerier, maxUploadBytes int64, logger *slog.Logger) *FileHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileHandler{
		uploader:       uploader,
		files:          files,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With("component", "file_handler"),
	}
}

// Upload handles POST /api/files/upload.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	parts, err := h.readParts(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			shared.RespondWithError(w, r, http.StatusRequestEntityTooLarge, "Upload too large")
			return
		}
		log.Debug("failed to read upload", "error", err)
		HandleAPIError(w, r, service.ErrNoFiles, "")
		return
	}
	if len(parts) == 0 {
		HandleAPIError(w, r, service.ErrNoFiles, "")
		return
	}

	files := make([]service.UploadFile, 0, len(parts))
	for _, p := range parts {
		if err := shared.ValidateRequest(p); err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
			return
		}
		files = append(files, service.UploadFile{
			Filename:    p.Filename,
			ContentType: p.ContentType,
			Data:        p.Data,
		})
	}

	results, err := h.uploader.Upload(r.Context(), files)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	log.Info("files uploaded", "parts", len(files), "records", len(results))
	shared.RespondWithData(w, r, http.StatusOK, messageUploaded, results)
}

// readParts parses the multipart form and reads every file part of
// UploadField into memory.
func (h *FileHandler) readParts(r *http.Request) ([]uploadPart, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, err
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File[UploadField]
	parts := make([]uploadPart, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			return nil, err
		}
		parts = append(parts, uploadPart{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return parts, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open part %q: %w", fh.Filename, err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read part %q: %w", fh.Filename, err)
	}
	return data, nil
}

// Get handles GET /api/files/{id}.
func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	details, err := h.files.Get(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithData(w, r, http.StatusOK, "", details)
}

// GetStatus handles GET /api/files/{id}/status.
func (h *FileHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	status, err := h.files.GetStatus(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithData(w, r, http.StatusOK, "", status)
}
