package task_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"task_service/internal/http_server/handlers/task"
	"task_service/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeTasks struct {
	list []models.Task
	err  error

	skip, limit int
	status      models.TaskStatus
}

func (f *fakeTasks) SaveTask(_ context.Context, name, description string) (models.Task, error) {
	return models.Task{ID: uuid.New(), Name: name, Description: description, Status: models.TaskStatusCreated}, f.err
}

func (f *fakeTasks) Task(_ context.Context, _ uuid.UUID) (models.Task, error) {
	return models.Task{}, f.err
}

func (f *fakeTasks) Tasks(_ context.Context, skip, limit int, status models.TaskStatus) ([]models.Task, error) {
	f.skip, f.limit, f.status = skip, limit, status
	return f.list, f.err
}

func (f *fakeTasks) UpdateTask(_ context.Context, _ uuid.UUID, _, _ string, _ models.TaskStatus) (models.Task, error) {
	return models.Task{}, f.err
}

func (f *fakeTasks) DeleteTask(_ context.Context, _ uuid.UUID) error {
	return f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func doList(t *testing.T, svc *fakeTasks, target string) *httptest.ResponseRecorder {
	t.Helper()

	handler := task.NewList(discardLogger(), svc)

	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()

	handler(rec, req)

	return rec
}

func TestList_Defaults(t *testing.T) {
	svc := &fakeTasks{}

	rec := doList(t, svc, "/tasks/")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 0, svc.skip)
	require.Equal(t, 50, svc.limit)
	require.Equal(t, models.TaskStatus(""), svc.status)
}

func TestList_PaginationAndFilter(t *testing.T) {
	svc := &fakeTasks{}

	rec := doList(t, svc, "/tasks/?skip=20&limit=10&status=in_work")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 20, svc.skip)
	require.Equal(t, 10, svc.limit)
	require.Equal(t, models.TaskStatusInWork, svc.status)
}

func TestList_UnknownStatus(t *testing.T) {
	svc := &fakeTasks{}

	rec := doList(t, svc, "/tasks/?status=archived")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, models.TaskStatus(""), svc.status)
}

func TestList_NegativeParamsFallBack(t *testing.T) {
	svc := &fakeTasks{}

	rec := doList(t, svc, "/tasks/?skip=-1&limit=oops")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 0, svc.skip)
	require.Equal(t, 50, svc.limit)
}
