package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/agrawalpuran/uds-refresh-sub018/internal/orders"
)

// OrderResyncJob repairs an order's derived master status after out-of-band
// suborder changes.
type OrderResyncJob struct {
	service *orders.Service
	logger  *slog.Logger
}

// NewOrderResyncJob constructs the resync job.
func NewOrderResyncJob(service *orders.Service, logger *slog.Logger) *OrderResyncJob {
	return &OrderResyncJob{service: service, logger: logger}
}

// Handle processes TaskTypeOrderStatusResync tasks.
func (j *OrderResyncJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload OrderStatusResyncPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.OrderID == "" {
		return asynq.SkipRetry
	}
	if err := j.service.UpdateMasterOrderStatus(ctx, payload.OrderID); err != nil {
		j.logger.Error("order status resync", slog.String("order_id", payload.OrderID), slog.Any("error", err))
		return err
	}
	j.logger.Info("order status resynced", slog.String("order_id", payload.OrderID))
	return nil
}
