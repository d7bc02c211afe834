package pipeline_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"deployer-backend/internal/attachments"
	"deployer-backend/internal/database"
	"deployer-backend/internal/ghpages"
	"deployer-backend/internal/pipeline"
	"deployer-backend/internal/sitegen"
	"deployer-backend/internal/storage"
	"deployer-backend/pkg/api"
)

func createDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.GetMigrator(db).Migrate())
	return db
}

// fixedModel returns the same manifest text for every prompt.
type fixedModel struct {
	response string
}

func (m *fixedModel) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return m.response, nil
}

const helloManifest = `{
	"files": [
		{"path": "index.html", "content": "<!DOCTYPE html><html><head><title>Hello</title></head><body><h1 id=\"title\">Hello World</h1></body></html>", "encoding": "utf-8"}
	]
}`

// githubStub is the minimal contents/pages surface the publisher touches.
// Unlike the publisher's own tests it does not model SHA conflicts.
type githubStub struct {
	mu    sync.Mutex
	files map[string]string
}

func newGithubStub(t *testing.T) (*httptest.Server, *githubStub) {
	stub := &githubStub{files: map[string]string{}}

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// resty only unmarshals responses whose Content-Type is JSON, as
		// the real API's are; a bare Write leaves Go to sniff text/plain.
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/user/repos":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{}`))
		case strings.Contains(r.URL.Path, "/contents/") && r.Method == http.MethodGet:
			stub.mu.Lock()
			_, ok := stub.files[r.URL.Path]
			stub.mu.Unlock()
			if !ok {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			_, _ = w.Write([]byte(`{"sha": "abc", "content": ""}`))
		case strings.Contains(r.URL.Path, "/contents/") && r.Method == http.MethodPut:
			stub.mu.Lock()
			stub.files[r.URL.Path] = "pushed"
			stub.mu.Unlock()
			_, _ = w.Write([]byte(`{"commit": {"sha": "commit-sha"}}`))
		case strings.HasSuffix(r.URL.Path, "/pages"):
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{"html_url": server.URL + "/site/"})
		case strings.HasPrefix(r.URL.Path, "/site/"):
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	return server, stub
}

func newOrchestrator(t *testing.T, db *gorm.DB, model *fixedModel, archiver *pipeline.Archiver) *pipeline.Orchestrator {
	server, _ := newGithubStub(t)

	publisher := ghpages.NewPublisher(ghpages.NewClient(server.URL, "octocat", "tok"))
	publisher.IndexWait = time.Second
	publisher.PollTimeout = time.Second
	publisher.PollInterval = 20 * time.Millisecond

	notifier := pipeline.NewNotifier()
	notifier.Attempts = 2
	notifier.InitialDelay = 10 * time.Millisecond

	return pipeline.NewOrchestrator(
		db,
		sitegen.NewGenerator(model),
		attachments.NewResolver(),
		publisher,
		notifier,
		archiver,
	)
}

func createTask(t *testing.T, db *gorm.DB, task database.Task) uuid.UUID {
	if task.Id == uuid.Nil {
		task.Id = uuid.New()
	}
	task.Status = database.TaskQueued
	task.ReceivedAt = time.Now().UTC()
	require.NoError(t, db.Create(&task).Error)
	return task.Id
}

func marshalJSON(t *testing.T, v any) datatypes.JSON {
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return datatypes.JSON(data)
}

func TestProcessTaskCompletes(t *testing.T) {
	db := createDB(t)

	var gotResult api.EvaluationResult
	evaluator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotResult))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(evaluator.Close)

	taskId := createTask(t, db, database.Task{
		Email:         "student@example.com",
		Name:          "Hello World page",
		Round:         1,
		Nonce:         "n-123",
		Brief:         "Create a Hello World page",
		Checks:        marshalJSON(t, []string{"document.getElementById('title') !== null"}),
		EvaluationUrl: evaluator.URL,
	})

	orchestrator := newOrchestrator(t, db, &fixedModel{response: helloManifest}, nil)
	orchestrator.ProcessTask(context.Background(), taskId)

	task, err := database.GetTask(context.Background(), db, taskId)
	require.NoError(t, err)
	assert.Equal(t, database.TaskDone, task.Status)
	assert.Equal(t, "hello-world-page", task.RepoName)
	assert.Equal(t, "commit-sha", task.CommitSha)
	assert.Contains(t, task.PagesUrl, "/site/")
	assert.True(t, task.CompletedAt.Valid)
	assert.Empty(t, task.Error)

	assert.Equal(t, "student@example.com", gotResult.Email)
	assert.Equal(t, "Hello World page", gotResult.Task)
	assert.Equal(t, "n-123", gotResult.Nonce)
	assert.Equal(t, 1, gotResult.Round)
	assert.Equal(t, "commit-sha", gotResult.CommitSha)

	var record database.RepoRecord
	require.NoError(t, db.First(&record, "task_id = ?", taskId).Error)
	assert.Equal(t, "hello-world-page", record.RepoName)
}

func TestProcessTaskNotifyFailureDegradesStatus(t *testing.T) {
	db := createDB(t)

	evaluator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	t.Cleanup(evaluator.Close)

	taskId := createTask(t, db, database.Task{
		Email:         "student@example.com",
		Name:          "demo",
		Round:         1,
		Brief:         "a page",
		EvaluationUrl: evaluator.URL,
	})

	orchestrator := newOrchestrator(t, db, &fixedModel{response: helloManifest}, nil)
	orchestrator.ProcessTask(context.Background(), taskId)

	task, err := database.GetTask(context.Background(), db, taskId)
	require.NoError(t, err)
	assert.Equal(t, database.TaskDoneNotifyFailed, task.Status)
	assert.True(t, task.CompletedAt.Valid)
}

func TestProcessTaskWithoutEvaluationUrl(t *testing.T) {
	db := createDB(t)

	taskId := createTask(t, db, database.Task{
		Email: "student@example.com",
		Name:  "demo",
		Round: 1,
		Brief: "a page",
	})

	orchestrator := newOrchestrator(t, db, &fixedModel{response: helloManifest}, nil)
	orchestrator.ProcessTask(context.Background(), taskId)

	task, err := database.GetTask(context.Background(), db, taskId)
	require.NoError(t, err)
	assert.Equal(t, database.TaskDone, task.Status)
}

func TestProcessTaskFailsStructuralCheck(t *testing.T) {
	db := createDB(t)

	taskId := createTask(t, db, database.Task{
		Email:  "student@example.com",
		Name:   "demo",
		Round:  1,
		Brief:  "a page",
		Checks: marshalJSON(t, []string{"document.querySelector('#missing-widget') !== null"}),
	})

	orchestrator := newOrchestrator(t, db, &fixedModel{response: helloManifest}, nil)
	orchestrator.ProcessTask(context.Background(), taskId)

	task, err := database.GetTask(context.Background(), db, taskId)
	require.NoError(t, err)
	assert.Equal(t, database.TaskFailed, task.Status)
	assert.Contains(t, task.Error, "#missing-widget")
	assert.True(t, task.CompletedAt.Valid)
}

func TestProcessTaskUnparsableModelOutput(t *testing.T) {
	db := createDB(t)

	taskId := createTask(t, db, database.Task{
		Email: "student@example.com",
		Name:  "demo",
		Round: 1,
		Brief: "a page",
	})

	orchestrator := newOrchestrator(t, db, &fixedModel{response: "sorry, I cannot help with that"}, nil)
	orchestrator.ProcessTask(context.Background(), taskId)

	task, err := database.GetTask(context.Background(), db, taskId)
	require.NoError(t, err)
	assert.Equal(t, database.TaskFailed, task.Status)
	assert.NotEmpty(t, task.Error)
}

func TestProcessTaskUnknownIdIsSkipped(t *testing.T) {
	db := createDB(t)

	orchestrator := newOrchestrator(t, db, &fixedModel{response: helloManifest}, nil)
	orchestrator.ProcessTask(context.Background(), uuid.New())

	var count int64
	require.NoError(t, db.Model(&database.Task{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestProcessTaskArchivesManifest(t *testing.T) {
	db := createDB(t)

	store, err := storage.NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)
	archiver := pipeline.NewArchiver(store, "snapshots")
	require.NoError(t, archiver.EnsureBucket(context.Background()))

	taskId := createTask(t, db, database.Task{
		Email: "student@example.com",
		Name:  "demo",
		Round: 1,
		Brief: "a page",
	})

	orchestrator := newOrchestrator(t, db, &fixedModel{response: helloManifest}, archiver)
	orchestrator.ProcessTask(context.Background(), taskId)

	task, err := database.GetTask(context.Background(), db, taskId)
	require.NoError(t, err)
	assert.Equal(t, database.TaskDone, task.Status)
}
