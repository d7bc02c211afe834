package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"deployer-backend/internal/attachments"
	"deployer-backend/internal/database"
	"deployer-backend/internal/ghpages"
	"deployer-backend/internal/sitecheck"
	"deployer-backend/internal/sitegen"
	"deployer-backend/pkg/api"
)

// Orchestrator runs one task through the deployment stages, persisting every
// status transition before the next stage starts. A stage failure marks the
// task failed and stops; it is never propagated to the caller, so one bad
// task cannot take down a worker.
type Orchestrator struct {
	db        *gorm.DB
	generator *sitegen.Generator
	resolver  *attachments.Resolver
	publisher *ghpages.Publisher
	notifier  *Notifier
	archiver  *Archiver // optional
}

func NewOrchestrator(db *gorm.DB, generator *sitegen.Generator, resolver *attachments.Resolver, publisher *ghpages.Publisher, notifier *Notifier, archiver *Archiver) *Orchestrator {
	return &Orchestrator{
		db:        db,
		generator: generator,
		resolver:  resolver,
		publisher: publisher,
		notifier:  notifier,
		archiver:  archiver,
	}
}

func (o *Orchestrator) failTask(ctx context.Context, taskId uuid.UUID, cause error) {
	slog.Error("task failed", "task_id", taskId, "error", cause)
	if err := database.SetTaskFailed(ctx, o.db, taskId, cause.Error()); err != nil {
		slog.Error("error persisting task failure", "task_id", taskId, "error", err)
	}
}

func decodeTaskFields(task database.Task) (checks []string, atts []api.Attachment, err error) {
	if len(task.Checks) > 0 {
		if err := json.Unmarshal(task.Checks, &checks); err != nil {
			return nil, nil, fmt.Errorf("decoding task checks: %w", err)
		}
	}
	if len(task.Attachments) > 0 {
		if err := json.Unmarshal(task.Attachments, &atts); err != nil {
			return nil, nil, fmt.Errorf("decoding task attachments: %w", err)
		}
	}
	return checks, atts, nil
}

// ProcessTask drives a task from queued to a terminal state.
func (o *Orchestrator) ProcessTask(ctx context.Context, taskId uuid.UUID) {
	defer func() {
		if r := recover(); r != nil {
			o.failTask(ctx, taskId, fmt.Errorf("panic during processing: %v", r))
		}
	}()

	task, err := database.GetTask(ctx, o.db, taskId)
	if err != nil {
		slog.Error("error loading task, skipping", "task_id", taskId, "error", err)
		return
	}

	if err := database.UpdateTaskStatus(ctx, o.db, taskId, database.TaskProcessing, nil); err != nil {
		return
	}

	checks, atts, err := decodeTaskFields(task)
	if err != nil {
		o.failTask(ctx, taskId, err)
		return
	}

	resolved := o.resolver.Resolve(ctx, atts)

	manifest, err := o.generator.Generate(ctx, sitegen.TaskInput{
		Brief:       task.Brief,
		Checks:      checks,
		Nonce:       task.Nonce,
		Round:       task.Round,
		Attachments: atts,
	}, resolved)
	if err != nil {
		o.failTask(ctx, taskId, err)
		return
	}

	if o.archiver != nil {
		if err := o.archiver.ArchiveManifest(ctx, taskId, manifest); err != nil {
			slog.Warn("manifest snapshot failed", "task_id", taskId, "error", err)
		}
	}

	seededChecks := make([]string, len(checks))
	for i, check := range checks {
		seededChecks[i] = sitegen.ApplySeed(check, task.Nonce)
	}
	if err := sitecheck.Verify(manifest, seededChecks); err != nil {
		o.failTask(ctx, taskId, err)
		return
	}

	if err := database.UpdateTaskStatus(ctx, o.db, taskId, database.TaskGenerated, nil); err != nil {
		return
	}

	attachmentPaths := make(map[string]struct{}, len(resolved))
	for _, att := range resolved {
		attachmentPaths[att.Name] = struct{}{}
	}

	result, err := o.publisher.Publish(ctx, task.Name, manifest, attachmentPaths, task.Round)
	if err != nil {
		o.failTask(ctx, taskId, err)
		return
	}

	pushedCols := map[string]any{
		"repo_name":  result.RepoName,
		"commit_sha": result.CommitSHA,
		"pages_url":  result.PagesURL,
	}
	if err := database.UpdateTaskStatus(ctx, o.db, taskId, database.TaskPushed, pushedCols); err != nil {
		return
	}
	if err := database.CreateRepoRecord(ctx, o.db, task, result.RepoName, result.RepoURL); err != nil {
		slog.Warn("repo audit record not written", "task_id", taskId, "error", err)
	}

	notified := true
	if task.EvaluationUrl == "" {
		slog.Warn("no evaluation url on task, skipping notification", "task_id", taskId)
	} else {
		err := o.notifier.Notify(ctx, task.EvaluationUrl, api.EvaluationResult{
			Email:     task.Email,
			Task:      task.Name,
			Round:     task.Round,
			Nonce:     task.Nonce,
			RepoUrl:   result.RepoURL,
			CommitSha: result.CommitSHA,
			PagesUrl:  result.PagesURL,
		})
		notified = err == nil
		status := database.TaskNotified
		if !notified {
			status = database.TaskNotifyFailed
		}
		if err := database.UpdateTaskStatus(ctx, o.db, taskId, status, nil); err != nil {
			return
		}
	}

	final := database.TaskDone
	if !notified {
		final = database.TaskDoneNotifyFailed
	}
	if err := database.UpdateTaskStatus(ctx, o.db, taskId, final, nil); err != nil {
		return
	}

	slog.Info("task completed", "task_id", taskId, "status", final, "repo", result.RepoName)
}
