package task

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/canonify/internal/domain"
	"github.com/phrazzld/canonify/internal/events"
)

// FileTaskFactory creates the tasks of the file pipeline and rebuilds them
// from persisted jobs.
type FileTaskFactory struct {
	storage    BlobStorage
	converter  Converter
	emitter    events.EventEmitter
	resolution domain.Resolution
	logger     *slog.Logger
}

// NewFileTaskFactory creates a new factory for pipeline tasks
func NewFileTaskFactory(
	storage BlobStorage,
	converter Converter,
	emitter events.EventEmitter,
	resolution domain.Resolution,
	logger *slog.Logger,
) (*FileTaskFactory, error) {
	if storage == nil {
		return nil, ErrNilStorage
	}
	if converter == nil {
		return nil, ErrNilConverter
	}
	if emitter == nil {
		return nil, ErrNilEmitter
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	if !resolution.Valid() {
		return nil, domain.ErrInvalidResolution
	}

	return &FileTaskFactory{
		storage:    storage,
		converter:  converter,
		emitter:    emitter,
		resolution: resolution,
		logger:     logger.With("component", "file_task_factory"),
	}, nil
}

// NewStoreFileTask creates a task writing data to path for recordID
func (f *FileTaskFactory) NewStoreFileTask(recordID uuid.UUID, path string, data []byte) (*StoreFileTask, error) {
	return f.storeFileTask(uuid.New(), recordID, path, data)
}

// NewConvertFileTask creates a task converting the file of recordID
func (f *FileTaskFactory) NewConvertFileTask(recordID uuid.UUID) (*ConvertFileTask, error) {
	return f.convertFileTask(uuid.New(), recordID)
}

// Register adds the pipeline task types to registry. The diagnostic task is
// registered too since it has no dependencies of its own.
func (f *FileTaskFactory) Register(registry *Registry) {
	registry.Register(TaskTypeStoreFile, func(id uuid.UUID, payload []byte) (Task, error) {
		var p storeFilePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		return f.storeFileTask(id, p.RecordID, p.Path, p.Data)
	})

	registry.Register(TaskTypeConvertFile, func(id uuid.UUID, payload []byte) (Task, error) {
		var p convertFilePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		return f.convertFileTask(id, p.RecordID)
	})

	registry.Register(TaskTypeDiagnostic, func(id uuid.UUID, _ []byte) (Task, error) {
		t := NewDiagnosticTask(DiagnosticDelay, f.logger)
		t.id = id
		return t, nil
	})
}

func (f *FileTaskFactory) storeFileTask(id, recordID uuid.UUID, path string, data []byte) (*StoreFileTask, error) {
	if recordID == uuid.Nil {
		return nil, ErrEmptyRecordID
	}
	if path == "" {
		return nil, ErrEmptyPath
	}
	if data == nil {
		return nil, errors.New("payload data cannot be nil")
	}

	return &StoreFileTask{
		id:       id,
		recordID: recordID,
		path:     path,
		data:     data,
		storage:  f.storage,
		emitter:  f.emitter,
		logger:   f.logger.With("task_type", TaskTypeStoreFile, "record_id", recordID),
	}, nil
}

func (f *FileTaskFactory) convertFileTask(id, recordID uuid.UUID) (*ConvertFileTask, error) {
	if recordID == uuid.Nil {
		return nil, ErrEmptyRecordID
	}

	return &ConvertFileTask{
		id:         id,
		recordID:   recordID,
		resolution: f.resolution,
		storage:    f.storage,
		converter:  f.converter,
		emitter:    f.emitter,
		logger:     f.logger.With("task_type", TaskTypeConvertFile, "record_id", recordID),
	}, nil
}
