package worker

import (
	"context"
	"testing"

	"github.com/maxim1976/eshop/internal/queue"

	"github.com/hibiken/asynq"
)

func TestHandlePaymentReconcileInvalidPayload(t *testing.T) {
	consumer := &Consumer{}

	task := asynq.NewTask(queue.TaskPaymentReconcile, []byte("not-json"))
	if err := consumer.handlePaymentReconcile(context.Background(), task); err == nil {
		t.Fatalf("expected unmarshal error for malformed payload")
	}
}

func TestHandlePaymentReconcileSkipsZeroPaymentID(t *testing.T) {
	consumer := &Consumer{}

	task, err := queue.NewPaymentReconcileTask(queue.PaymentReconcilePayload{PaymentID: 0})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if err := consumer.handlePaymentReconcile(context.Background(), task); err != nil {
		t.Fatalf("zero payment id must be skipped without error, got %v", err)
	}
}

func TestHandlePaymentReconcileNilTask(t *testing.T) {
	consumer := &Consumer{}
	if err := consumer.handlePaymentReconcile(context.Background(), nil); err != nil {
		t.Fatalf("nil task must be ignored, got %v", err)
	}
}
