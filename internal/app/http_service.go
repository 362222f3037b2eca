package app

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// apiReadHeaderTimeout 防御慢速头部攻击；回调表单体积很小，够用
const apiReadHeaderTimeout = 10 * time.Second

// HTTPService 支付 API 服务
type HTTPService struct {
	server *http.Server
}

// NewHTTPService 创建支付 API 服务
func NewHTTPService(addr string, handler http.Handler) *HTTPService {
	return &HTTPService{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: apiReadHeaderTimeout,
		},
	}
}

// Name 服务名称
func (s *HTTPService) Name() string {
	return "payment-api"
}

// Start 启动监听，阻塞直到服务关闭
func (s *HTTPService) Start(ctx context.Context) error {
	if s == nil || s.server == nil {
		return errors.New("http server not initialized")
	}
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop 优雅停机，等待在途回调处理完成
func (s *HTTPService) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
