package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/canonify/internal/api/shared"
	"github.com/phrazzld/canonify/internal/domain"
	"github.com/phrazzld/canonify/internal/service"
	"github.com/phrazzld/canonify/internal/task"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	got     []service.UploadFile
	results []service.UploadResult
	err     error
}

func (f *fakeUploader) Upload(_ context.Context, files []service.UploadFile) ([]service.UploadResult, error) {
	f.got = files
	return f.results, f.err
}

type fakeQuerier struct {
	details *service.FileDetails
	status  domain.FileStatus
	err     error
}

func (f *fakeQuerier) Get(_ context.Context, _ uuid.UUID) (*service.FileDetails, error) {
	return f.details, f.err
}

func (f *fakeQuerier) GetStatus(_ context.Context, _ uuid.UUID) (domain.FileStatus, error) {
	return f.status, f.err
}

type fakeWorkers struct {
	report    *task.HealthReport
	healthErr error
	submitted []task.Task
	submitErr error
}

func (f *fakeWorkers) Health(_ context.Context) (*task.HealthReport, error) {
	return f.report, f.healthErr
}

func (f *fakeWorkers) Submit(_ context.Context, t task.Task) error {
	f.submitted = append(f.submitted, t)
	return f.submitErr
}

type part struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

func multipartRequest(t *testing.T, parts ...part) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+p.field+`"; filename="`+p.filename+`"`)
		h.Set("Content-Type", p.contentType)
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// newTestRouter mounts the handlers the way cmd/server does.
func newTestRouter(files *FileHandler, system *SystemHandler) http.Handler {
	r := chi.NewRouter()
	if system != nil {
		r.Get("/", system.Root)
		r.Get("/health", system.Health)
		r.Get("/test-task", system.TestTask)
	}
	if files != nil {
		r.Route("/api/files", func(r chi.Router) {
			r.Post("/upload", files.Upload)
			r.Get("/{id}", files.Get)
			r.Get("/{id}/status", files.GetStatus)
		})
	}
	return r
}

func serve(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, shared.Envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var env shared.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}
