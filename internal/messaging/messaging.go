package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	DeployQueue     = "deploy_queue"
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

// DeployTaskPayload carries only the task id; workers reload the full row so
// the database stays the single source of truth for task state.
type DeployTaskPayload struct {
	TaskId uuid.UUID
}

type Publisher interface {
	PublishDeployTask(ctx context.Context, payload DeployTaskPayload) error

	Close()
}

type Receiver interface {
	Tasks() <-chan Task

	Close()
}
