package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/canonify/internal/api"
	"github.com/phrazzld/canonify/internal/domain"
	"github.com/phrazzld/canonify/internal/platform/storage"
	"github.com/phrazzld/canonify/internal/service"
	"github.com/phrazzld/canonify/internal/task"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFiles struct{}

func (stubFiles) Upload(context.Context, []service.UploadFile) ([]service.UploadResult, error) {
	return nil, nil
}

func (stubFiles) Get(context.Context, uuid.UUID) (*service.FileDetails, error) {
	return nil, service.ErrFileNotFound
}

func (stubFiles) GetStatus(context.Context, uuid.UUID) (domain.FileStatus, error) {
	return domain.FileStatusUploaded, nil
}

type stubWorkers struct{}

func (stubWorkers) Health(context.Context) (*task.HealthReport, error) {
	return &task.HealthReport{Running: true, Workers: 1}, nil
}

func (stubWorkers) Submit(context.Context, task.Task) error { return nil }

type stubReporter struct{ calls int }

func (s *stubReporter) CapturePanic(context.Context, *http.Request, any) { s.calls++ }

func testRouter(t *testing.T, static http.FileSystem) http.Handler {
	t.Helper()
	files := api.NewFileHandler(stubFiles{}, stubFiles{}, 0, nil)
	system := api.NewSystemHandler(stubWorkers{}, func(context.Context) (int64, error) { return 2, nil }, 0, nil)
	return newRouter(files, system, static, &stubReporter{})
}

func TestRouter_Routes(t *testing.T) {
	router := testRouter(t, nil)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/test-task", http.StatusOK},
		{http.MethodGet, "/api/files/" + uuid.NewString(), http.StatusNotFound},
		{http.MethodGet, "/api/files/" + uuid.NewString() + "/status", http.StatusOK},
		{http.MethodGet, "/api/files/upload", http.StatusBadRequest},
		{http.MethodDelete, "/api/files/" + uuid.NewString(), http.StatusMethodNotAllowed},
		{http.MethodGet, "/static/a.png", http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestRouter_StaticServesLocalStorage(t *testing.T) {
	fs := afero.NewMemMapFs()
	local := storage.NewLocal(fs, "scratch", nil)
	require.NoError(t, local.Put(context.Background(), "aB3dE9_scan_converted.png", []byte("png-bytes")))

	router := testRouter(t, local.FileSystem())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/static/aB3dE9_scan_converted.png", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "png-bytes", w.Body.String())
}
