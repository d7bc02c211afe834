package database

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func isTerminal(status string) bool {
	return status == TaskDone || status == TaskDoneNotifyFailed || status == TaskFailed
}

// UpdateTaskStatus persists a status transition plus any extra column updates.
// The attempt counter is bumped on every write, and completion time is stamped
// when the task reaches a terminal state.
func UpdateTaskStatus(ctx context.Context, txn *gorm.DB, taskId uuid.UUID, status string, extra map[string]any) error {
	updates := map[string]any{
		"status":   status,
		"attempts": gorm.Expr("attempts + 1"),
	}
	if isTerminal(status) {
		updates["completed_at"] = time.Now().UTC()
	}
	for col, val := range extra {
		updates[col] = val
	}

	if err := txn.WithContext(ctx).Model(&Task{Id: taskId}).Updates(updates).Error; err != nil {
		slog.Error("error updating task status", "task_id", taskId, "status", status, "error", err)
		return err
	}
	return nil
}

func SetTaskFailed(ctx context.Context, txn *gorm.DB, taskId uuid.UUID, cause string) error {
	return UpdateTaskStatus(ctx, txn, taskId, TaskFailed, map[string]any{"error": cause})
}

func GetTask(ctx context.Context, txn *gorm.DB, taskId uuid.UUID) (Task, error) {
	var task Task
	err := txn.WithContext(ctx).First(&task, "id = ?", taskId).Error
	return task, err
}

func CreateRepoRecord(ctx context.Context, txn *gorm.DB, task Task, repoName, repoUrl string) error {
	record := RepoRecord{
		Id:           uuid.New(),
		TaskId:       task.Id,
		Email:        task.Email,
		RepoName:     repoName,
		RepoUrl:      repoUrl,
		CreationTime: time.Now().UTC(),
	}
	if err := txn.WithContext(ctx).Create(&record).Error; err != nil {
		slog.Error("error creating repo record", "task_id", task.Id, "repo", repoName, "error", err)
		return err
	}
	return nil
}
