package queue

import (
	"encoding/json"

	"github.com/maxim1976/eshop/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskPaymentReconcile 支付对账任务
	TaskPaymentReconcile = constants.TaskPaymentReconcile
)

// PaymentReconcilePayload 支付对账任务载荷
type PaymentReconcilePayload struct {
	PaymentID uint `json:"payment_id"`
}

// NewPaymentReconcileTask 创建支付对账任务
func NewPaymentReconcileTask(payload PaymentReconcilePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaymentReconcile, body), nil
}
