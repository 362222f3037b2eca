package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构；分页信息仅列表接口携带。
type Response struct {
	StatusCode int         `json:"status_code"` // 业务状态码
	Msg        string      `json:"msg"`         // 提示消息
	Data       interface{} `json:"data"`        // 数据内容
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Pagination 分页信息
type Pagination struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"page_size"`
	Total     int64 `json:"total"`
	TotalPage int64 `json:"total_page"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Msg: "success", Data: data})
}

// SuccessWithPage 分页成功响应
func SuccessWithPage(c *gin.Context, data interface{}, pagination Pagination) {
	c.JSON(http.StatusOK, Response{
		Msg:        "success",
		Data:       data,
		Pagination: &pagination,
	})
}

// Error 错误响应。HTTP 层统一 200，错误语义放在 status_code 里，
// 错误体带上 request_id 便于排查。
func Error(c *gin.Context, statusCode int, msg string) {
	body := Response{StatusCode: statusCode, Msg: msg}
	if id := requestIDFrom(c); id != "" {
		body.Data = gin.H{"request_id": id}
	}
	c.JSON(http.StatusOK, body)
}

// NotFound 404响应
func NotFound(c *gin.Context, msg string) {
	Error(c, CodeNotFound, msg)
}

// Unauthorized 401响应
func Unauthorized(c *gin.Context, msg string) {
	Error(c, CodeUnauthorized, msg)
}

func requestIDFrom(c *gin.Context) string {
	if c == nil {
		return ""
	}
	if value, ok := c.Get("request_id"); ok {
		if id, ok := value.(string); ok {
			return id
		}
	}
	return ""
}
