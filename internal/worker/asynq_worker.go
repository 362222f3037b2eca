package worker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/maxim1976/eshop/internal/logger"
	"github.com/maxim1976/eshop/internal/provider"
	"github.com/maxim1976/eshop/internal/queue"
	"github.com/maxim1976/eshop/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskPaymentReconcile, c.handlePaymentReconcile)
}

func (c *Consumer) handlePaymentReconcile(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_payment_reconcile_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.PaymentReconcilePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_payment_reconcile_unmarshal_failed", "error", err)
		return err
	}
	if payload.PaymentID == 0 {
		logger.Debugw("worker_payment_reconcile_skip_invalid_payload", "payment_id", payload.PaymentID)
		return nil
	}
	if err := c.PaymentService.ReconcilePayment(ctx, payload.PaymentID); err != nil {
		// 网关失联让 asynq 重试，业务性拒绝不重试
		if errors.Is(err, service.ErrGatewayUnavailable) {
			logger.Warnw("worker_payment_reconcile_gateway_unavailable", "payment_id", payload.PaymentID, "error", err)
			return err
		}
		logger.Warnw("worker_payment_reconcile_rejected", "payment_id", payload.PaymentID, "error", err)
		return nil
	}
	return nil
}
