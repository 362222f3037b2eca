package public

import (
	"strings"
	"time"

	"github.com/maxim1976/eshop/internal/cache"
	"github.com/maxim1976/eshop/internal/http/response"
	"github.com/maxim1976/eshop/internal/models"
	"github.com/maxim1976/eshop/internal/service"

	"github.com/gin-gonic/gin"
)

// CreatePaymentRequest 创建支付请求
type CreatePaymentRequest struct {
	OrderID        uint   `json:"order_id" binding:"required"`
	Method         string `json:"method"`
	ClientBackURL  string `json:"client_back_url"`
	OrderResultURL string `json:"order_result_url"`
}

// OrderPaymentQuery 按订单查询支付记录
type OrderPaymentQuery struct {
	OrderID uint `form:"order_id" binding:"required"`
}

const (
	paymentMethodsCacheKey = "public:payment_methods"
	paymentMethodsCacheTTL = 10 * time.Minute
)

// CreatePayment 创建支付单并返回 ECPay 自动提交表单
func (h *Handler) CreatePayment(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}

	result, err := h.PaymentService.CreatePayment(service.CreatePaymentInput{
		OrderID:        req.OrderID,
		Method:         strings.TrimSpace(req.Method),
		ClientIP:       c.ClientIP(),
		UserAgent:      c.Request.UserAgent(),
		ClientBackURL:  strings.TrimSpace(req.ClientBackURL),
		OrderResultURL: strings.TrimSpace(req.OrderResultURL),
		Context:        c.Request.Context(),
	})
	if err != nil {
		respondPaymentCreateError(c, err)
		return
	}

	response.Success(c, gin.H{
		"payment_id":        result.Payment.PaymentID,
		"merchant_trade_no": result.Payment.MerchantTradeNo,
		"method":            result.Payment.Method,
		"amount":            result.Payment.Amount,
		"status":            result.Payment.Status,
		"checkout_form":     result.Form,
	})
}

// GetPayment 查询支付记录
func (h *Handler) GetPayment(c *gin.Context) {
	paymentID := strings.TrimSpace(c.Param("payment_id"))
	payment, err := h.PaymentService.GetPaymentByPaymentID(paymentID)
	if err != nil {
		respondPaymentQueryError(c, err)
		return
	}
	response.Success(c, paymentView(payment))
}

// GetOrderPayment 按订单查询支付记录
func (h *Handler) GetOrderPayment(c *gin.Context) {
	var query OrderPaymentQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	payment, err := h.PaymentService.GetPaymentByOrderID(query.OrderID)
	if err != nil {
		respondPaymentQueryError(c, err)
		return
	}
	response.Success(c, paymentView(payment))
}

// QueryPaymentStatus 主动向网关查询交易状态
//
// 只读查询，不推进本地状态机；状态推进走回调或对账任务。
func (h *Handler) QueryPaymentStatus(c *gin.Context) {
	paymentID := strings.TrimSpace(c.Param("payment_id"))
	result, err := h.PaymentService.QueryTradeStatus(c.Request.Context(), paymentID)
	if err != nil {
		respondPaymentQueryError(c, err)
		return
	}
	response.Success(c, gin.H{
		"payment_id":   paymentID,
		"trade_status": result["TradeStatus"],
		"trade_no":     result["TradeNo"],
		"payment_type": result["PaymentType"],
		"payment_date": result["PaymentDate"],
	})
}

// PaymentMethods 支付方式目录
func (h *Handler) PaymentMethods(c *gin.Context) {
	var cached []service.PaymentMethodInfo
	if hit, err := cache.GetJSON(c.Request.Context(), paymentMethodsCacheKey, &cached); err == nil && hit {
		response.Success(c, cached)
		return
	}

	methods := h.PaymentService.PaymentMethods()
	if err := cache.SetJSON(c.Request.Context(), paymentMethodsCacheKey, methods, paymentMethodsCacheTTL); err != nil {
		requestLog(c).Warnw("payment_methods_cache_set_failed", "error", err)
	}
	response.Success(c, methods)
}

func paymentView(p *models.Payment) gin.H {
	view := gin.H{
		"payment_id":        p.PaymentID,
		"order_id":          p.OrderID,
		"merchant_trade_no": p.MerchantTradeNo,
		"method":            p.Method,
		"amount":            p.Amount,
		"currency":          p.Currency,
		"status":            p.Status,
		"refunded_amount":   p.RefundedAmount,
		"trade_no":          p.TradeNo,
		"payment_type":      p.PaymentType,
		"paid_at":           p.PaidAt,
		"created_at":        p.CreatedAt,
	}
	if p.FailReason != "" {
		view["fail_reason"] = p.FailReason
	}
	// 取号类支付把缴费信息带给买家
	if p.BankCode != "" {
		view["bank_code"] = p.BankCode
	}
	if p.VirtualAccount != "" {
		view["virtual_account"] = p.VirtualAccount
	}
	if p.PaymentCode != "" {
		view["payment_code"] = p.PaymentCode
	}
	if p.Barcode1 != "" {
		view["barcodes"] = []string{p.Barcode1, p.Barcode2, p.Barcode3}
	}
	if p.PaymentDeadline != nil {
		view["payment_deadline"] = p.PaymentDeadline
	}
	return view
}
