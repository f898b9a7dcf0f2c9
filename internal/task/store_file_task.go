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

// storeFilePayload is the serialized form of a StoreFileTask. Data is
// base64 encoded by encoding/json.
type storeFilePayload struct {
	RecordID uuid.UUID `json:"record_id"`
	Path     string    `json:"path"`
	Data     []byte    `json:"data"`
}

// StoreFileTask writes an uploaded payload to blob storage and marks its
// record uploaded.
type StoreFileTask struct {
	id       uuid.UUID
	recordID uuid.UUID
	path     string
	data     []byte
	storage  BlobStorage
	emitter  events.EventEmitter
	logger   *slog.Logger
}

// Execute stores the payload and advances the record to uploaded. A record
// that already left the uploading state is left alone.
func (t *StoreFileTask) Execute(ctx context.Context, s Session) error {
	files := s.Files()

	rec, err := files.GetByIDForUpdate(ctx, t.recordID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return fmt.Errorf("%w: record %s: %v", ErrPermanent, t.recordID, err)
		}
		return fmt.Errorf("failed to load record: %w", err)
	}

	if rec.Status != domain.FileStatusUploading {
		t.logger.Warn("record already stored, skipping", "status", rec.Status)
		return nil
	}

	if err := t.storage.Put(ctx, t.path, t.data); err != nil {
		return fmt.Errorf("failed to write %s: %w", t.path, err)
	}

	from := rec.Status
	if err := rec.MarkUploaded(t.path); err != nil {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	if err := files.UpdateState(ctx, rec, from); err != nil {
		return fmt.Errorf("failed to mark record uploaded: %w", err)
	}
	emitStatusChange(s, t.emitter, rec)

	t.logger.Info("file stored", "path", t.path, "bytes", len(t.data))
	return nil
}

// OnPermanentFailure moves the record to failure.
func (t *StoreFileTask) OnPermanentFailure(ctx context.Context, s Session, cause error) error {
	return markRecordFailed(ctx, s, t.emitter, t.recordID, "storing file failed: "+cause.Error())
}

// ID returns the task's unique identifier
func (t *StoreFileTask) ID() uuid.UUID {
	return t.id
}

// Type returns the task type identifier
func (t *StoreFileTask) Type() string {
	return TaskTypeStoreFile
}

// Payload returns the task data as a byte slice
func (t *StoreFileTask) Payload() []byte {
	data, err := json.Marshal(storeFilePayload{
		RecordID: t.recordID,
		Path:     t.path,
		Data:     t.data,
	})
	if err != nil {
		t.logger.Error("failed to marshal task payload", "error", err)
		return []byte{}
	}
	return data
}

// markRecordFailed moves a non-terminal record to failure with reason.
func markRecordFailed(
	ctx context.Context,
	s Session,
	emitter events.EventEmitter,
	recordID uuid.UUID,
	reason string,
) error {
	files := s.Files()

	rec, err := files.GetByIDForUpdate(ctx, recordID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil
		}
		return fmt.Errorf("failed to load record: %w", err)
	}
	if rec.Status.IsTerminal() {
		return nil
	}

	from := rec.Status
	if err := rec.MarkFailed(reason); err != nil {
		return err
	}
	if err := files.UpdateState(ctx, rec, from); err != nil {
		return fmt.Errorf("failed to mark record failed: %w", err)
	}
	emitStatusChange(s, emitter, rec)
	return nil
}
