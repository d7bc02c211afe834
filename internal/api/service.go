package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"deployer-backend/internal/database"
	"deployer-backend/internal/messaging"
	"deployer-backend/pkg/api"
)

const defaultListLimit = 50

type BackendService struct {
	db        *gorm.DB
	publisher messaging.Publisher
	secret    string
}

func NewBackendService(db *gorm.DB, pub messaging.Publisher, secret string) *BackendService {
	return &BackendService{db: db, publisher: pub, secret: secret}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/", s.Landing)
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Route("/api", func(r chi.Router) {
		r.Post("/task", RestHandler(s.SubmitDeployTask))
		r.Get("/tasks", RestHandler(s.ListTasks))
		r.Get("/tasks/{task_id}", RestHandler(s.GetTask))
	})
}

const landingPage = `<!DOCTYPE html>
<html>
<head><title>Site Deployer</title></head>
<body>
<h1>Site Deployer</h1>
<p>POST /api/task to submit a deployment. GET /api/tasks for recent status.</p>
</body>
</html>`

func (s *BackendService) Landing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(landingPage)); err != nil {
		slog.Error("error writing landing page", "error", err)
	}
}

func (s *BackendService) SubmitDeployTask(r *http.Request) (any, error) {
	req, err := ParseRequest[api.DeployRequest](r)
	if err != nil {
		return nil, err
	}

	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(s.secret)) != 1 {
		return nil, CodedErrorf(http.StatusForbidden, "invalid secret")
	}

	if req.Email == "" || req.Task == "" || req.Brief == "" {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "missing required fields: email, task, brief")
	}
	if req.Round < 1 {
		req.Round = 1
	}

	checks, err := json.Marshal(req.Checks)
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "invalid checks list")
	}
	atts, err := json.Marshal(req.Attachments)
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "invalid attachments list")
	}

	ctx := r.Context()

	task := &database.Task{
		Id:            uuid.New(),
		Email:         req.Email,
		Name:          req.Task,
		Round:         req.Round,
		Nonce:         req.Nonce,
		Brief:         req.Brief,
		Checks:        checks,
		EvaluationUrl: req.EvaluationUrl,
		Attachments:   atts,
		Status:        database.TaskQueued,
		ReceivedAt:    time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(&task).Error; err != nil {
		slog.Error("error creating task", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create task entry")
	}

	if err := s.publisher.PublishDeployTask(ctx, messaging.DeployTaskPayload{TaskId: task.Id}); err != nil {
		slog.Error("error publishing deploy task", "task_id", task.Id, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to queue deploy task")
	}

	slog.Info("accepted deploy task", "task_id", task.Id, "task", req.Task, "round", req.Round)
	return api.DeploySubmitResponse{Status: database.TaskQueued, TaskId: task.Id, Round: req.Round}, nil
}

func taskView(task database.Task) api.Task {
	view := api.Task{
		Id:            task.Id,
		Email:         task.Email,
		Task:          task.Name,
		Round:         task.Round,
		Nonce:         task.Nonce,
		Status:        task.Status,
		Error:         task.Error,
		RepoName:      task.RepoName,
		CommitSha:     task.CommitSha,
		PagesUrl:      task.PagesUrl,
		Attempts:      task.Attempts,
		ReceivedAt:    task.ReceivedAt,
		EvaluationUrl: task.EvaluationUrl,
	}
	if task.CompletedAt.Valid {
		completed := task.CompletedAt.Time
		view.CompletedAt = &completed
	}
	return view
}

type listTasksParams struct {
	Limit int `schema:"limit"`
}

func (s *BackendService) ListTasks(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[listTasksParams](r)
	if err != nil {
		return nil, err
	}
	if params.Limit <= 0 || params.Limit > 500 {
		params.Limit = defaultListLimit
	}

	ctx := r.Context()

	var tasks []database.Task
	if err := s.db.WithContext(ctx).Order("received_at DESC").Limit(params.Limit).Find(&tasks).Error; err != nil {
		slog.Error("error listing tasks", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving tasks")
	}

	views := make([]api.Task, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, taskView(task))
	}
	return api.ListTasksResponse{Tasks: views}, nil
}

func (s *BackendService) GetTask(r *http.Request) (any, error) {
	taskId, err := URLParamUUID(r, "task_id")
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	var task database.Task
	if err := s.db.WithContext(ctx).First(&task, "id = ?", taskId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "task not found")
		}
		slog.Error("error getting task", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving task record")
	}

	return taskView(task), nil
}
