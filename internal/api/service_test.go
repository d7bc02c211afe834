package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	backend "deployer-backend/internal/api"
	"deployer-backend/internal/database"
	"deployer-backend/internal/messaging"
	"deployer-backend/pkg/api"
)

const testSecret = "super-secret"

func createDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.GetMigrator(db).Migrate())
	return db
}

func setupService(t *testing.T) (*httptest.Server, *gorm.DB, *messaging.InMemoryQueue) {
	db := createDB(t)
	queue := messaging.NewInMemoryQueue()

	router := chi.NewRouter()
	backend.NewBackendService(db, queue, testSecret).AddRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return server, db, queue
}

func postTask(t *testing.T, server *httptest.Server, req api.DeployRequest) *http.Response {
	body, err := json.Marshal(req)
	require.NoError(t, err)

	res, err := http.Post(server.URL+"/api/task", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return res
}

func validRequest() api.DeployRequest {
	return api.DeployRequest{
		Email:  "student@example.com",
		Secret: testSecret,
		Task:   "Hello World page",
		Round:  1,
		Nonce:  "n-1",
		Brief:  "Create a Hello World page",
		Checks: []string{"document.getElementById('title') !== null"},
	}
}

func TestSubmitDeployTask(t *testing.T) {
	server, db, queue := setupService(t)

	res := postTask(t, server, validRequest())
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var submitted api.DeploySubmitResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&submitted))
	assert.Equal(t, database.TaskQueued, submitted.Status)
	assert.Equal(t, 1, submitted.Round)
	assert.NotEqual(t, uuid.Nil, submitted.TaskId)

	var task database.Task
	require.NoError(t, db.First(&task, "id = ?", submitted.TaskId).Error)
	assert.Equal(t, "Hello World page", task.Name)
	assert.Equal(t, database.TaskQueued, task.Status)
	assert.JSONEq(t, `["document.getElementById('title') !== null"]`, string(task.Checks))

	select {
	case queued := <-queue.Tasks():
		assert.Equal(t, messaging.DeployQueue, queued.Type())
		var payload messaging.DeployTaskPayload
		require.NoError(t, json.Unmarshal(queued.Payload(), &payload))
		assert.Equal(t, submitted.TaskId, payload.TaskId)
	case <-time.After(time.Second):
		t.Fatal("no task published to queue")
	}
}

func TestSubmitDeployTaskInvalidSecret(t *testing.T) {
	server, db, _ := setupService(t)

	req := validRequest()
	req.Secret = "wrong"

	res := postTask(t, server, req)
	defer res.Body.Close()
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	var count int64
	require.NoError(t, db.Model(&database.Task{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSubmitDeployTaskMissingFields(t *testing.T) {
	server, _, _ := setupService(t)

	req := validRequest()
	req.Brief = ""

	res := postTask(t, server, req)
	defer res.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
}

func TestSubmitDeployTaskDefaultsRound(t *testing.T) {
	server, _, _ := setupService(t)

	req := validRequest()
	req.Round = 0

	res := postTask(t, server, req)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var submitted api.DeploySubmitResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&submitted))
	assert.Equal(t, 1, submitted.Round)
}

func seedTask(t *testing.T, db *gorm.DB, name string, receivedAt time.Time) uuid.UUID {
	task := database.Task{
		Id:         uuid.New(),
		Email:      "student@example.com",
		Name:       name,
		Round:      1,
		Status:     database.TaskQueued,
		ReceivedAt: receivedAt,
	}
	require.NoError(t, db.Create(&task).Error)
	return task.Id
}

func TestListTasks(t *testing.T) {
	server, db, _ := setupService(t)

	now := time.Now().UTC()
	seedTask(t, db, "oldest", now.Add(-2*time.Hour))
	seedTask(t, db, "middle", now.Add(-time.Hour))
	seedTask(t, db, "newest", now)

	res, err := http.Get(server.URL + "/api/tasks?limit=2")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var listed api.ListTasksResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&listed))
	require.Len(t, listed.Tasks, 2)
	assert.Equal(t, "newest", listed.Tasks[0].Task)
	assert.Equal(t, "middle", listed.Tasks[1].Task)
}

func TestGetTask(t *testing.T) {
	server, db, _ := setupService(t)

	taskId := seedTask(t, db, "demo", time.Now().UTC())

	res, err := http.Get(fmt.Sprintf("%s/api/tasks/%s", server.URL, taskId))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var task api.Task
	require.NoError(t, json.NewDecoder(res.Body).Decode(&task))
	assert.Equal(t, taskId, task.Id)
	assert.Equal(t, "demo", task.Task)
	assert.Nil(t, task.CompletedAt)
}

func TestGetTaskNotFound(t *testing.T) {
	server, _, _ := setupService(t)

	res, err := http.Get(fmt.Sprintf("%s/api/tasks/%s", server.URL, uuid.New()))
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestGetTaskInvalidId(t *testing.T) {
	server, _, _ := setupService(t)

	res, err := http.Get(server.URL + "/api/tasks/not-a-uuid")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestHealth(t *testing.T) {
	server, _, _ := setupService(t)

	res, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestLandingPage(t *testing.T) {
	server, _, _ := setupService(t)

	res, err := http.Get(server.URL + "/")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.Header.Get("Content-Type"), "text/html")
}
