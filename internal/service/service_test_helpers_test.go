package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/phrazzld/canonify/internal/conversion"
	"github.com/phrazzld/canonify/internal/domain"
	"github.com/phrazzld/canonify/internal/events"
	"github.com/phrazzld/canonify/internal/mocks"
	"github.com/phrazzld/canonify/internal/task"
	"github.com/stretchr/testify/require"
)

var (
	pngData  = []byte("PNG image bytes")
	jpegData = []byte("JPG image bytes")
	pdfData  = []byte("%PDF-1.7 document")
)

var errNotRecognized = errors.New("not recognized")

// fakeInspector recognizes content by prefix and returns canned pages.
type fakeInspector struct {
	resolution   domain.Resolution
	probeErr     error
	pages        []conversion.Page
	decomposeErr error
}

func (f *fakeInspector) Detect(data []byte) (domain.FileType, error) {
	switch {
	case bytes.HasPrefix(data, []byte("%PDF")):
		return domain.FileTypePDF, nil
	case bytes.HasPrefix(data, []byte("PNG")):
		return domain.FileTypePNG, nil
	case bytes.HasPrefix(data, []byte("JPG")):
		return domain.FileTypeJPEG, nil
	default:
		return "", errNotRecognized
	}
}

func (f *fakeInspector) ProbeResolution(data []byte) (domain.Resolution, error) {
	if f.probeErr != nil {
		return domain.Resolution{}, f.probeErr
	}
	return f.resolution, nil
}

func (f *fakeInspector) DecomposePDF(ctx context.Context, data []byte) ([]conversion.Page, error) {
	if f.decomposeErr != nil {
		return nil, f.decomposeErr
	}
	return f.pages, nil
}

type passthroughConverter struct{}

func (passthroughConverter) ConvertToCanonical(
	ctx context.Context,
	src []byte,
	target domain.Resolution,
) ([]byte, domain.Resolution, error) {
	return src, target, nil
}

type ingestionHarness struct {
	service   *IngestionService
	files     *mocks.MockFileStore
	tasks     *task.MockTaskStore
	sessions  *task.MockSessionFactory
	inspector *fakeInspector
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func allTypes() []domain.FileType {
	return []domain.FileType{domain.FileTypePNG, domain.FileTypeJPEG, domain.FileTypeJPG, domain.FileTypePDF}
}

func newIngestionHarness(t *testing.T) *ingestionHarness {
	t.Helper()

	files := mocks.NewMockFileStore()
	tasks := task.NewMockTaskStore()
	sessions := task.NewMockSessionFactory(files, tasks)
	runner := task.NewTaskRunner(tasks, sessions, task.NewRegistry(), task.TaskRunnerConfig{}, discardLogger())

	factory, err := task.NewFileTaskFactory(
		mocks.NewMockBlobStorage(),
		passthroughConverter{},
		events.NewInMemoryEventEmitter(discardLogger()),
		domain.Resolution{Width: 100, Height: 100},
		discardLogger(),
	)
	require.NoError(t, err)

	inspector := &fakeInspector{resolution: domain.Resolution{Width: 640, Height: 480}}
	svc, err := NewIngestionService(sessions, runner, factory, inspector,
		IngestionConfig{AllowedTypes: allTypes()}, discardLogger())
	require.NoError(t, err)

	return &ingestionHarness{
		service:   svc,
		files:     files,
		tasks:     tasks,
		sessions:  sessions,
		inspector: inspector,
	}
}

func threePages() []conversion.Page {
	pages := make([]conversion.Page, 3)
	for i := range pages {
		pages[i] = conversion.Page{
			Number:     i + 1,
			Data:       []byte("PNG page"),
			Resolution: domain.Resolution{Width: 1275, Height: 1650},
		}
	}
	return pages
}
