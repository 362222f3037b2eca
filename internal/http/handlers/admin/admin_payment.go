package admin

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/maxim1976/eshop/internal/http/response"
	"github.com/maxim1976/eshop/internal/repository"
	"github.com/maxim1976/eshop/internal/service"

	"github.com/gin-gonic/gin"
)

// GetAdminPayments 获取支付记录列表
func (h *Handler) GetAdminPayments(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	filter, err := buildAdminPaymentFilter(c, page, pageSize)
	if err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}

	payments, total, err := h.PaymentService.ListPayments(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "payment list failed", err)
		return
	}
	response.SuccessWithPage(c, payments, response.BuildPagination(page, pageSize, total))
}

// GetAdminPaymentDetail 获取支付详情（含流水与退款记录）
func (h *Handler) GetAdminPaymentDetail(c *gin.Context) {
	paymentID := strings.TrimSpace(c.Param("payment_id"))
	detail, err := h.PaymentService.GetPaymentDetail(paymentID)
	if err != nil {
		if errors.Is(err, service.ErrPaymentNotFound) {
			respondError(c, response.CodeNotFound, "payment not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "payment fetch failed", err)
		return
	}
	response.Success(c, detail)
}

// CancelPaymentRequest 取消支付请求
type CancelPaymentRequest struct {
	Reason string `json:"reason"`
}

// CancelAdminPayment 取消未完成的支付
func (h *Handler) CancelAdminPayment(c *gin.Context) {
	paymentID := strings.TrimSpace(c.Param("payment_id"))
	// reason 可选，空请求体也接受
	var req CancelPaymentRequest
	_ = c.ShouldBindJSON(&req)

	payment, err := h.PaymentService.CancelPayment(paymentID, strings.TrimSpace(req.Reason))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPaymentNotFound):
			respondError(c, response.CodeNotFound, "payment not found", nil)
		case errors.Is(err, service.ErrPaymentStatusInvalid):
			respondError(c, response.CodeBadRequest, "payment is not cancellable", nil)
		default:
			respondError(c, response.CodeInternal, "payment cancel failed", err)
		}
		return
	}
	response.Success(c, gin.H{
		"payment_id": payment.PaymentID,
		"status":     payment.Status,
	})
}

// ReconcileAdminPayment 主动触发一次网关对账
func (h *Handler) ReconcileAdminPayment(c *gin.Context) {
	paymentID := strings.TrimSpace(c.Param("payment_id"))
	payment, err := h.PaymentService.GetPaymentByPaymentID(paymentID)
	if err != nil {
		if errors.Is(err, service.ErrPaymentNotFound) {
			respondError(c, response.CodeNotFound, "payment not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "payment fetch failed", err)
		return
	}
	if err := h.PaymentService.ReconcilePayment(c.Request.Context(), payment.ID); err != nil {
		if errors.Is(err, service.ErrGatewayUnavailable) {
			respondError(c, response.CodeBadGateway, "payment gateway unavailable", err)
			return
		}
		respondError(c, response.CodeInternal, "payment reconcile failed", err)
		return
	}
	updated, err := h.PaymentService.GetPaymentByPaymentID(paymentID)
	if err != nil {
		respondError(c, response.CodeInternal, "payment fetch failed", err)
		return
	}
	response.Success(c, gin.H{
		"payment_id": updated.PaymentID,
		"status":     updated.Status,
	})
}

func buildAdminPaymentFilter(c *gin.Context, page, pageSize int) (repository.PaymentListFilter, error) {
	filter := repository.PaymentListFilter{
		Page:            page,
		PageSize:        pageSize,
		Status:          strings.TrimSpace(c.Query("status")),
		Method:          strings.TrimSpace(c.Query("method")),
		MerchantTradeNo: strings.TrimSpace(c.Query("merchant_trade_no")),
	}
	if raw := strings.TrimSpace(c.Query("order_id")); raw != "" {
		orderID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return filter, err
		}
		filter.OrderID = uint(orderID)
	}
	if raw := strings.TrimSpace(c.Query("user_id")); raw != "" {
		userID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return filter, err
		}
		filter.UserID = uint(userID)
	}
	if raw := strings.TrimSpace(c.Query("created_from")); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, err
		}
		filter.CreatedFrom = &from
	}
	if raw := strings.TrimSpace(c.Query("created_to")); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, err
		}
		filter.CreatedTo = &to
	}
	return filter, nil
}
