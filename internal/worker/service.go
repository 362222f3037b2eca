package worker

import (
	"context"
	"errors"
	"time"

	"github.com/maxim1976/eshop/internal/config"
	"github.com/maxim1976/eshop/internal/logger"
	"github.com/maxim1976/eshop/internal/queue"

	"github.com/hibiken/asynq"
)

// Service 异步队列服务
type Service struct {
	name     string
	server   *asynq.Server
	mux      *asynq.ServeMux
	consumer *Consumer
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:     "worker",
		server:   server,
		mux:      mux,
		consumer: consumer,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if s.consumer != nil && s.consumer.Config != nil && s.consumer.Config.Reconcile.Enabled {
		go s.runReconcileLoop(ctx)
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

// runReconcileLoop 周期扫描卡在 pending/processing 的支付并入队对账
func (s *Service) runReconcileLoop(ctx context.Context) {
	cfg := s.consumer.Config.Reconcile
	interval := time.Duration(cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	stuckAfter := time.Duration(cfg.StuckAfterMinutes) * time.Minute
	if stuckAfter <= 0 {
		stuckAfter = 30 * time.Minute
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	runOnce := func() {
		payments, err := s.consumer.PaymentService.ListStuckPayments(stuckAfter, batchSize)
		if err != nil {
			logger.Warnw("worker_reconcile_scan_failed", "error", err)
			return
		}
		for _, payment := range payments {
			if err := s.consumer.QueueClient.EnqueuePaymentReconcile(
				queue.PaymentReconcilePayload{PaymentID: payment.ID}, 0,
			); err != nil {
				logger.Warnw("worker_reconcile_enqueue_failed", "payment_id", payment.ID, "error", err)
			}
		}
		if len(payments) > 0 {
			logger.Infow("worker_reconcile_batch_enqueued", "count", len(payments))
		}
	}
	runOnce()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
