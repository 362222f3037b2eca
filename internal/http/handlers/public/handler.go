package public

import (
	handlershared "github.com/maxim1976/eshop/internal/http/handlers/shared"
	"github.com/maxim1976/eshop/internal/provider"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler 买家侧与网关回调接口入口。
//
// 所有方法共享同一个依赖容器；回调接口对响应体格式有网关约定，
// 不走统一 JSON 包装。
type Handler struct {
	*provider.Container
}

// New 创建前台处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return handlershared.RequestLog(c)
}

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}
