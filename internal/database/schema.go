package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	TaskQueued           string = "queued"
	TaskProcessing       string = "processing"
	TaskGenerated        string = "generated"
	TaskPushed           string = "pushed"
	TaskNotified         string = "notified"
	TaskNotifyFailed     string = "notify_failed"
	TaskDone             string = "done"
	TaskDoneNotifyFailed string = "done_notify_failed"
	TaskFailed           string = "failed"
)

// Task is the durable record for one deployment request. Rows are created on
// submission and never deleted; Status is written only by the pipeline worker
// that owns the task.
type Task struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Email string `gorm:"not null"`
	Name  string `gorm:"not null"`
	Round int    `gorm:"not null"`
	Nonce string

	Brief         string
	Checks        datatypes.JSON `gorm:"type:jsonb"`
	EvaluationUrl string
	Attachments   datatypes.JSON `gorm:"type:jsonb"`

	Status string `gorm:"size:20;not null"`
	Error  string

	RepoName  string
	CommitSha string
	PagesUrl  string

	Attempts    int `gorm:"default:0"`
	ReceivedAt  time.Time
	CompletedAt sql.NullTime
}

// RepoRecord tracks every repository created by the publisher (audit trail).
type RepoRecord struct {
	Id       uuid.UUID `gorm:"type:uuid;primaryKey"`
	TaskId   uuid.UUID `gorm:"type:uuid"`
	Task     *Task     `gorm:"foreignKey:TaskId"`
	Email    string
	RepoName string `gorm:"not null"`
	RepoUrl  string

	CreationTime time.Time
}
