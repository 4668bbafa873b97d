package jobs

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity rechecks vouchers and the account tree.
	TaskLedgerIntegrity = "ledger:integrity"
)

// IntegrityPayload parameterises one integrity run. A blank RunID is filled
// in when the run starts.
type IntegrityPayload struct {
	RunID       string `json:"run_id,omitempty"`
	Concurrency int    `json:"concurrency,omitempty"`
}

// NewIntegrityTask constructs the asynq task for payload.
func NewIntegrityTask(payload IntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, data, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

func newRunID() string {
	return uuid.NewString()
}
