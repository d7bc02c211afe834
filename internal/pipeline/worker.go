package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"deployer-backend/internal/messaging"
)

// TaskProcessor fans queue messages out to a bounded pool of workers. Each
// worker handles one task at a time; pool size caps concurrent model and
// repository calls.
type TaskProcessor struct {
	receiver     messaging.Receiver
	orchestrator *Orchestrator
	concurrency  int

	wg sync.WaitGroup
}

func NewTaskProcessor(receiver messaging.Receiver, orchestrator *Orchestrator, concurrency int) *TaskProcessor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &TaskProcessor{
		receiver:     receiver,
		orchestrator: orchestrator,
		concurrency:  concurrency,
	}
}

func (proc *TaskProcessor) Start() {
	slog.Info("starting task processor", "workers", proc.concurrency)

	for i := 0; i < proc.concurrency; i++ {
		proc.wg.Add(1)
		go func() {
			defer proc.wg.Done()
			for task := range proc.receiver.Tasks() {
				proc.handle(task)
			}
		}()
	}
}

// Stop closes the receiver and waits for in-flight tasks to finish.
func (proc *TaskProcessor) Stop() {
	slog.Info("stopping task processor")

	proc.receiver.Close()
	proc.wg.Wait()
}

func (proc *TaskProcessor) handle(task messaging.Task) {
	ctx := context.Background()

	switch task.Type() {
	case messaging.DeployQueue:
		var payload messaging.DeployTaskPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("error unmarshalling deploy task", "error", err)
			if err := task.Reject(); err != nil { // Discard malformed message
				slog.Error("error rejecting message from queue", "error", err)
			}
			return
		}

		// Failures are persisted on the task row; the message is always
		// acknowledged so a failed task is not redelivered.
		proc.orchestrator.ProcessTask(ctx, payload.TaskId)
		if err := task.Ack(); err != nil {
			slog.Error("error acknowledging message from queue", "error", err)
		}

	default:
		slog.Error("received unknown task type", "queue", task.Type())
		if err := task.Reject(); err != nil { // reject unknown message type
			slog.Error("error rejecting message from queue", "error", err)
		}
	}
}
