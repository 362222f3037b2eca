package router

import (
	"fmt"
	"strings"

	"github.com/maxim1976/eshop/internal/cache"
	"github.com/maxim1976/eshop/internal/config"
	adminhandlers "github.com/maxim1976/eshop/internal/http/handlers/admin"
	publichandlers "github.com/maxim1976/eshop/internal/http/handlers/public"
	"github.com/maxim1976/eshop/internal/http/response"
	"github.com/maxim1976/eshop/internal/logger"
	"github.com/maxim1976/eshop/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)

	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "eshop"
	}
	callbackRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:ecpay_callback", redisPrefix),
		WindowSeconds: cfg.Security.CallbackRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.CallbackRateLimit.MaxAttempts,
	}
	createRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:payment_create", redisPrefix),
		WindowSeconds: cfg.Security.CreateRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.CreateRateLimit.MaxAttempts,
	}
	queryRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:payment_query", redisPrefix),
		WindowSeconds: cfg.Security.QueryRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.QueryRateLimit.MaxAttempts,
	}

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	api := r.Group("/api")
	{
		payments := api.Group("/payments")
		{
			payments.POST("",
				RateLimitMiddleware(cache.Client(), createRule, KeyByIP),
				publicHandler.CreatePayment,
			)
			payments.GET("", publicHandler.GetOrderPayment)
			payments.GET("/methods", publicHandler.PaymentMethods)
			payments.GET("/:payment_id", publicHandler.GetPayment)
			// 主动查询透传到网关，单独限流
			payments.GET("/:payment_id/status",
				RateLimitMiddleware(cache.Client(), queryRule, KeyByIP),
				publicHandler.QueryPaymentStatus,
			)
		}

		// ECPay 服务器回调（POST 表单），限流防刷
		api.POST("/payments/callback/ecpay",
			RateLimitMiddleware(cache.Client(), callbackRule, KeyByIP),
			publicHandler.ECPayCallback,
		)

		admin := api.Group("/admin")
		admin.Use(JWTAuthMiddleware(cfg.JWT.SecretKey))
		{
			admin.GET("/payments", adminHandler.GetAdminPayments)
			admin.GET("/payments/:payment_id", adminHandler.GetAdminPaymentDetail)
			admin.POST("/payments/:payment_id/cancel", adminHandler.CancelAdminPayment)
			admin.POST("/payments/:payment_id/reconcile", adminHandler.ReconcileAdminPayment)

			admin.GET("/refunds", adminHandler.GetAdminRefunds)
			admin.POST("/refunds", adminHandler.RequestAdminRefund)
			admin.GET("/refunds/:refund_id", adminHandler.GetAdminRefund)
			admin.POST("/refunds/:refund_id/confirm", adminHandler.ConfirmAdminRefund)
			admin.POST("/refunds/:refund_id/cancel", adminHandler.CancelAdminRefund)
		}
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "route not found")
	})

	return r
}
