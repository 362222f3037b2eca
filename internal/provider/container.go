package provider

import (
	"fmt"

	"github.com/maxim1976/eshop/internal/cache"
	"github.com/maxim1976/eshop/internal/config"
	"github.com/maxim1976/eshop/internal/logger"
	"github.com/maxim1976/eshop/internal/models"
	"github.com/maxim1976/eshop/internal/payment/ecpay"
	"github.com/maxim1976/eshop/internal/queue"
	"github.com/maxim1976/eshop/internal/repository"
	"github.com/maxim1976/eshop/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	ECPayConfig *ecpay.Config

	// Repositories
	OrderRepo      repository.OrderRepository
	PaymentRepo    repository.PaymentRepository
	PaymentLogRepo repository.PaymentLogRepository
	RefundRepo     repository.RefundRecordRepository

	// Services
	PaymentService *service.PaymentService
	RefundService  *service.RefundService
}

// NewContainer 初始化容器
//
// 支付网关凭据缺失属于致命配置错误，启动即失败。
func NewContainer(cfg *config.Config) (*Container, error) {
	ecpayCfg := &ecpay.Config{
		MerchantID: cfg.ECPay.MerchantID,
		HashKey:    cfg.ECPay.HashKey,
		HashIV:     cfg.ECPay.HashIV,
		Sandbox:    cfg.ECPay.Sandbox,
		TimeoutMS:  cfg.ECPay.TimeoutMS,
	}
	if err := ecpay.ValidateConfig(ecpayCfg); err != nil {
		return nil, fmt.Errorf("ecpay config: %w", err)
	}

	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
		ECPayConfig: ecpayCfg,
	}

	c.initRepositories()
	c.initServices()

	return c, nil
}

func (c *Container) initRepositories() {
	db := models.DB
	c.OrderRepo = repository.NewOrderRepository(db)
	c.PaymentRepo = repository.NewPaymentRepository(db)
	c.PaymentLogRepo = repository.NewPaymentLogRepository(db)
	c.RefundRepo = repository.NewRefundRecordRepository(db)
}

func (c *Container) initServices() {
	c.PaymentService = service.NewPaymentService(
		c.OrderRepo,
		c.PaymentRepo,
		c.PaymentLogRepo,
		c.RefundRepo,
		c.ECPayConfig,
		c.Config.Site,
		c.QueueClient,
	)
	c.RefundService = service.NewRefundService(
		c.PaymentRepo,
		c.RefundRepo,
		c.PaymentLogRepo,
		c.OrderRepo,
		c.ECPayConfig,
	)
}

// Close 释放容器资源
func (c *Container) Close() {
	if c == nil {
		return
	}
	if c.QueueClient != nil {
		if err := c.QueueClient.Close(); err != nil {
			logger.Warnw("provider_close_queue_client_failed", "error", err)
		}
	}
}
