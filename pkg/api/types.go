package api

import (
	"time"

	"github.com/google/uuid"
)

// Attachment references an external file by name. Url is either an http(s)
// location or a data: URI with an inline base64 payload.
type Attachment struct {
	Name string `json:"name"`
	Url  string `json:"url"`
}

// DeployRequest is the inbound task submission payload. Secret must match the
// configured shared secret or the request is rejected before a task row is
// created.
type DeployRequest struct {
	Email         string       `json:"email"`
	Secret        string       `json:"secret"`
	Task          string       `json:"task"`
	Round         int          `json:"round"`
	Nonce         string       `json:"nonce"`
	Brief         string       `json:"brief"`
	Checks        []string     `json:"checks"`
	EvaluationUrl string       `json:"evaluation_url"`
	Attachments   []Attachment `json:"attachments"`
}

type DeploySubmitResponse struct {
	Status string    `json:"status"`
	TaskId uuid.UUID `json:"task_id"`
	Round  int       `json:"round"`
}

type Task struct {
	Id            uuid.UUID  `json:"id"`
	Email         string     `json:"email"`
	Task          string     `json:"task"`
	Round         int        `json:"round"`
	Nonce         string     `json:"nonce"`
	Status        string     `json:"status"`
	Error         string     `json:"error,omitempty"`
	RepoName      string     `json:"repo_name,omitempty"`
	CommitSha     string     `json:"commit_sha,omitempty"`
	PagesUrl      string     `json:"pages_url,omitempty"`
	Attempts      int        `json:"attempts"`
	ReceivedAt    time.Time  `json:"received_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	EvaluationUrl string     `json:"evaluation_url,omitempty"`
}

type ListTasksResponse struct {
	Tasks []Task `json:"tasks"`
}

// EvaluationResult is posted to a task's evaluation_url once the site is
// deployed. Success is any 2xx response.
type EvaluationResult struct {
	Email     string `json:"email"`
	Task      string `json:"task"`
	Round     int    `json:"round"`
	Nonce     string `json:"nonce"`
	RepoUrl   string `json:"repo_url"`
	CommitSha string `json:"commit_sha"`
	PagesUrl  string `json:"pages_url"`
}
