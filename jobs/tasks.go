package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskReservationsExpire cancels reservations past their expires_at.
	TaskReservationsExpire = "reservations:expire"
	// TaskPurchasesSuggest drafts replenishment orders per supplier.
	TaskPurchasesSuggest = "purchases:suggest"
	// TaskIdempotencyCleanup purges old idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
	// TaskReportsWarmup pre-computes the cached dashboard.
	TaskReportsWarmup = "reports:warmup"
)

// DefaultIdempotencyRetention is how long idempotency keys are kept.
const DefaultIdempotencyRetention = 72 * time.Hour

// Payload is shared by every task. RequestID correlates worker logs with the
// enqueuer.
type Payload struct {
	RequestID string        `json:"request_id"`
	ActorID   int64         `json:"actor_id,omitempty"`
	Retention time.Duration `json:"retention,omitempty"`
}

// TaskNames lists the tasks accepted by NewTask.
var TaskNames = []string{TaskReservationsExpire, TaskPurchasesSuggest, TaskIdempotencyCleanup, TaskReportsWarmup}

// NewTask builds a task by name with a fresh request id.
func NewTask(name string, payload Payload) (*asynq.Task, error) {
	switch name {
	case TaskReservationsExpire, TaskPurchasesSuggest, TaskIdempotencyCleanup, TaskReportsWarmup:
	default:
		return nil, fmt.Errorf("jobs: unsupported task %q", name)
	}
	if name == TaskPurchasesSuggest && payload.ActorID <= 0 {
		return nil, fmt.Errorf("jobs: %s requires an actor id", name)
	}
	if payload.RequestID == "" {
		payload.RequestID = uuid.NewString()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(name, body, asynq.Queue(QueueDefault)), nil
}

func decodePayload(t *asynq.Task) (Payload, error) {
	var payload Payload
	if len(t.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return payload, nil
}
