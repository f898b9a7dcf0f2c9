package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/canonify/internal/domain"
	"github.com/phrazzld/canonify/internal/events"
	"github.com/phrazzld/canonify/internal/store"
)

type convertFilePayload struct {
	RecordID uuid.UUID `json:"record_id"`
}

// ConvertFileTask converts a stored file into the canonical PNG rendition.
type ConvertFileTask struct {
	id         uuid.UUID
	recordID   uuid.UUID
	resolution domain.Resolution
	storage    BlobStorage
	converter  Converter
	emitter    events.EventEmitter
	logger     *slog.Logger
}

// Execute advances the record to processing, committing that step so it is
// visible while the conversion runs, then writes the output and completes
// the record. A retry picks up a record left in processing.
func (t *ConvertFileTask) Execute(ctx context.Context, s Session) error {
	rec, err := s.Files().GetByIDForUpdate(ctx, t.recordID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return fmt.Errorf("%w: record %s: %v", ErrPermanent, t.recordID, err)
		}
		return fmt.Errorf("failed to load record: %w", err)
	}

	switch rec.Status {
	case domain.FileStatusCompleted:
		t.logger.Warn("record already converted, skipping")
		return nil
	case domain.FileStatusUploaded:
		if err := rec.MarkProcessing(); err != nil {
			return fmt.Errorf("%w: %v", ErrPermanent, err)
		}
		if err := s.Files().UpdateState(ctx, rec, domain.FileStatusUploaded); err != nil {
			return fmt.Errorf("failed to mark record processing: %w", err)
		}
		emitStatusChange(s, t.emitter, rec)
		if err := s.Checkpoint(ctx); err != nil {
			return fmt.Errorf("failed to commit processing state: %w", err)
		}
	case domain.FileStatusProcessing:
		t.logger.Info("resuming conversion of record left in processing")
	default:
		return fmt.Errorf("%w: cannot convert record in status %s", ErrPermanent, rec.Status)
	}

	src, err := t.storage.Get(ctx, *rec.Path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", *rec.Path, err)
	}

	out, res, err := t.converter.ConvertToCanonical(ctx, src, t.resolution)
	if err != nil {
		return fmt.Errorf("failed to convert %s: %w", *rec.Path, err)
	}

	outputPath := domain.ConvertedPath(*rec.Path)
	if err := t.storage.Put(ctx, outputPath, out); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}

	if err := rec.MarkCompleted(outputPath, res); err != nil {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	if err := s.Files().UpdateState(ctx, rec, domain.FileStatusProcessing); err != nil {
		return fmt.Errorf("failed to mark record completed: %w", err)
	}
	emitStatusChange(s, t.emitter, rec)

	t.logger.Info("file converted",
		"output_path", outputPath,
		"output_resolution", res.String())
	return nil
}

// OnPermanentFailure moves the record to failure.
func (t *ConvertFileTask) OnPermanentFailure(ctx context.Context, s Session, cause error) error {
	return markRecordFailed(ctx, s, t.emitter, t.recordID, "conversion failed: "+cause.Error())
}

// ID returns the task's unique identifier
func (t *ConvertFileTask) ID() uuid.UUID {
	return t.id
}

// Type returns the task type identifier
func (t *ConvertFileTask) Type() string {
	return TaskTypeConvertFile
}

// Payload returns the task data as a byte slice
func (t *ConvertFileTask) Payload() []byte {
	data, err := json.Marshal(convertFilePayload{RecordID: t.recordID})
	if err != nil {
		t.logger.Error("failed to marshal task payload", "error", err)
		return []byte{}
	}
	return data
}
