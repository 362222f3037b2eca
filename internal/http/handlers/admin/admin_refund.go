package admin

import (
	"errors"
	"strconv"
	"strings"

	"github.com/maxim1976/eshop/internal/http/response"
	"github.com/maxim1976/eshop/internal/models"
	"github.com/maxim1976/eshop/internal/repository"
	"github.com/maxim1976/eshop/internal/service"

	"github.com/gin-gonic/gin"
)

// RequestRefundRequest 发起退款请求
type RequestRefundRequest struct {
	PaymentID string `json:"payment_id" binding:"required"`
	Amount    string `json:"amount" binding:"required"`
	Reason    string `json:"reason"`
}

// CancelRefundRequest 取消退款请求
type CancelRefundRequest struct {
	Reason string `json:"reason"`
}

// RequestAdminRefund 发起退款
func (h *Handler) RequestAdminRefund(c *gin.Context) {
	var req RequestRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	amount, err := models.NewMoneyFromString(req.Amount)
	if err != nil {
		respondError(c, response.CodeBadRequest, "refund amount invalid", err)
		return
	}

	record, err := h.RefundService.RequestRefund(service.RequestRefundInput{
		PaymentID:   strings.TrimSpace(req.PaymentID),
		Amount:      amount,
		Reason:      strings.TrimSpace(req.Reason),
		RequestedBy: adminOperator(c),
		Context:     c.Request.Context(),
	})
	if err != nil {
		respondRefundError(c, err)
		return
	}
	response.Success(c, record)
}

// ConfirmAdminRefund 确认退款到账
func (h *Handler) ConfirmAdminRefund(c *gin.Context) {
	refundID := strings.TrimSpace(c.Param("refund_id"))
	record, err := h.RefundService.ConfirmRefund(refundID)
	if err != nil {
		respondRefundError(c, err)
		return
	}
	response.Success(c, record)
}

// CancelAdminRefund 取消尚未送达网关的退款
func (h *Handler) CancelAdminRefund(c *gin.Context) {
	refundID := strings.TrimSpace(c.Param("refund_id"))
	// reason 可选，空请求体也接受
	var req CancelRefundRequest
	_ = c.ShouldBindJSON(&req)

	record, err := h.RefundService.CancelRefund(refundID, strings.TrimSpace(req.Reason))
	if err != nil {
		respondRefundError(c, err)
		return
	}
	response.Success(c, record)
}

// GetAdminRefund 查询退款记录
func (h *Handler) GetAdminRefund(c *gin.Context) {
	refundID := strings.TrimSpace(c.Param("refund_id"))
	record, err := h.RefundService.GetRefund(refundID)
	if err != nil {
		respondRefundError(c, err)
		return
	}
	response.Success(c, record)
}

// GetAdminRefunds 退款记录列表
func (h *Handler) GetAdminRefunds(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	filter := repository.RefundListFilter{
		Page:     page,
		PageSize: pageSize,
		Status:   strings.TrimSpace(c.Query("status")),
	}
	if raw := strings.TrimSpace(c.Query("payment_id")); raw != "" {
		paymentID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			respondError(c, response.CodeBadRequest, "bad request", err)
			return
		}
		filter.PaymentID = uint(paymentID)
	}

	records, total, err := h.RefundService.ListRefunds(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "refund list failed", err)
		return
	}
	response.SuccessWithPage(c, records, response.BuildPagination(page, pageSize, total))
}

var refundErrorRules = []struct {
	target error
	code   int
	msg    string
}{
	{service.ErrRefundInvalid, response.CodeBadRequest, "refund request invalid"},
	{service.ErrRefundNotFound, response.CodeNotFound, "refund not found"},
	{service.ErrPaymentNotFound, response.CodeNotFound, "payment not found"},
	{service.ErrRefundNotAllowed, response.CodeBadRequest, "payment is not refundable"},
	{service.ErrRefundInProgress, response.CodeConflict, "another refund is in progress"},
	{service.ErrRefundAmountExceeded, response.CodeBadRequest, "refund amount exceeds refundable balance"},
	{service.ErrRefundStatusInvalid, response.CodeBadRequest, "refund status does not allow this operation"},
	{service.ErrRefundRequestFailed, response.CodeBadGateway, "gateway rejected the refund"},
}

func respondRefundError(c *gin.Context, err error) {
	for _, rule := range refundErrorRules {
		if errors.Is(err, rule.target) {
			respondError(c, rule.code, rule.msg, nil)
			return
		}
	}
	respondError(c, response.CodeInternal, "refund operation failed", err)
}

func adminOperator(c *gin.Context) string {
	if value, ok := c.Get("admin_username"); ok {
		if name, ok := value.(string); ok && name != "" {
			return name
		}
	}
	return "admin"
}
