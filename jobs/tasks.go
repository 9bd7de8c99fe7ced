// Package jobs contains the background task definitions and the Asynq
// worker plumbing.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeOrderStatusResync re-derives an order's master status from its
	// suborders.
	TaskTypeOrderStatusResync = "order:status:resync"
	// TaskTypeIndentCloseSweep re-runs the indent closure gate over open
	// vendor indents.
	TaskTypeIndentCloseSweep = "indent:close:sweep"
)

// OrderStatusResyncPayload identifies the order to resync.
type OrderStatusResyncPayload struct {
	OrderID string `json:"order_id"`
}

// NewOrderStatusResyncTask constructs an order resync task.
func NewOrderStatusResyncTask(payload OrderStatusResyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeOrderStatusResync, data), nil
}

// IndentCloseSweepPayload optionally narrows the sweep to one vendor indent.
// An empty VendorIndentID sweeps every open candidate.
type IndentCloseSweepPayload struct {
	VendorIndentID string `json:"vendor_indent_id,omitempty"`
}

// NewIndentCloseSweepTask constructs a closure sweep task.
func NewIndentCloseSweepTask(payload IndentCloseSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeIndentCloseSweep, data), nil
}
