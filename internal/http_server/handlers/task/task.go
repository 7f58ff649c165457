package task

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"task_service/internal/http_server/middleware/authn"
	resp "task_service/internal/lib/api/response"
	sl "task_service/internal/lib/logger"
	"task_service/internal/models"
	"task_service/internal/storage"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	defaultSkip  = 0
	defaultLimit = 50
)

type TaskService interface {
	SaveTask(ctx context.Context, name, description string) (models.Task, error)
	Task(ctx context.Context, id uuid.UUID) (models.Task, error)
	Tasks(ctx context.Context, skip, limit int, status models.TaskStatus) ([]models.Task, error)
	UpdateTask(ctx context.Context, id uuid.UUID, name, description string, status models.TaskStatus) (models.Task, error)
	DeleteTask(ctx context.Context, id uuid.UUID) error
}

type TaskResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
}

type Response struct {
	resp.Response
	Task  *TaskResponse  `json:"task,omitempty"`
	Tasks []TaskResponse `json:"tasks,omitempty"`
}

type CreateRequest struct {
	Name        string `json:"name" validate:"required,max=150"`
	Description string `json:"description" validate:"max=555"`
}

type UpdateRequest struct {
	Name        string `json:"name" validate:"required,max=150"`
	Description string `json:"description" validate:"max=555"`
	Status      string `json:"status" validate:"required,oneof=created in_work completed"`
}

func NewCreate(log *slog.Logger, tasks TaskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.task.NewCreate"

		log := requestLogger(log, r, op)

		if !requireEditor(w, r) {
			return
		}

		var req CreateRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		if err := validator.New().Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		t, err := tasks.SaveTask(r.Context(), req.Name, req.Description)
		if err != nil {
			log.Error("failed to save task", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("task created", slog.String("task_id", t.ID.String()))

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, Response{Response: resp.OK(), Task: toResponse(t)})
	}
}

func NewList(log *slog.Logger, tasks TaskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.task.NewList"

		log := requestLogger(log, r, op)

		skip := queryInt(r, "skip", defaultSkip)
		limit := queryInt(r, "limit", defaultLimit)

		status := models.TaskStatus(r.URL.Query().Get("status"))
		if status != "" && !status.Valid() {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Unknown task status"))

			return
		}

		list, err := tasks.Tasks(r.Context(), skip, limit, status)
		if err != nil {
			log.Error("failed to list tasks", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		out := make([]TaskResponse, 0, len(list))
		for _, t := range list {
			out = append(out, *toResponse(t))
		}

		render.JSON(w, r, Response{Response: resp.OK(), Tasks: out})
	}
}

func NewGet(log *slog.Logger, tasks TaskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.task.NewGet"

		log := requestLogger(log, r, op)

		id, ok := taskID(w, r)
		if !ok {
			return
		}

		t, err := tasks.Task(r.Context(), id)
		if err != nil {
			if errors.Is(err, storage.ErrTaskNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Task not found"))

				return
			}

			log.Error("failed to get task", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		render.JSON(w, r, Response{Response: resp.OK(), Task: toResponse(t)})
	}
}

func NewUpdate(log *slog.Logger, tasks TaskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.task.NewUpdate"

		log := requestLogger(log, r, op)

		if !requireEditor(w, r) {
			return
		}

		id, ok := taskID(w, r)
		if !ok {
			return
		}

		var req UpdateRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		if err := validator.New().Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		t, err := tasks.UpdateTask(r.Context(), id, req.Name, req.Description, models.TaskStatus(req.Status))
		if err != nil {
			if errors.Is(err, storage.ErrTaskNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Task not found"))

				return
			}

			log.Error("failed to update task", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("task updated", slog.String("task_id", t.ID.String()))

		render.JSON(w, r, Response{Response: resp.OK(), Task: toResponse(t)})
	}
}

func NewDelete(log *slog.Logger, tasks TaskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.task.NewDelete"

		log := requestLogger(log, r, op)

		if !requireEditor(w, r) {
			return
		}

		id, ok := taskID(w, r)
		if !ok {
			return
		}

		if err := tasks.DeleteTask(r.Context(), id); err != nil {
			if errors.Is(err, storage.ErrTaskNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Task not found"))

				return
			}

			log.Error("failed to delete task", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("task deleted", slog.String("task_id", id.String()))

		render.JSON(w, r, Response{Response: resp.OK()})
	}
}

func requestLogger(log *slog.Logger, r *http.Request, op string) *slog.Logger {
	return log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

// requireEditor rejects task mutation for plain users.
func requireEditor(w http.ResponseWriter, r *http.Request) bool {
	user, ok := authn.UserFromContext(r.Context())
	if !ok || !user.Role.CanEditTasks() {
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, resp.Error("Don't have rights for this action"))

		return false
	}

	return true
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}

	return v
}

func toResponse(t models.Task) *TaskResponse {
	return &TaskResponse{
		ID:          t.ID.String(),
		Name:        t.Name,
		Description: t.Description,
		Status:      string(t.Status),
	}
}

func taskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, resp.Error("Task not found"))

		return uuid.Nil, false
	}

	return id, true
}
