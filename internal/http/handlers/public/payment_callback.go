package public

import (
	"errors"
	"net/http"
	"strings"

	"github.com/maxim1976/eshop/internal/constants"
	"github.com/maxim1976/eshop/internal/service"

	"github.com/gin-gonic/gin"
)

const callbackLogValueLimit = 4096

// ECPayCallback 处理 ECPay 服务器回调
//
// ECPay 依据响应体判断回调是否送达：必须回 "1|OK" 才会停止重试，
// 其余一律 "0|<原因>"。HTTP 状态码始终为 200。
func (h *Handler) ECPayCallback(c *gin.Context) {
	log := requestLog(c)
	if err := c.Request.ParseForm(); err != nil {
		log.Warnw("ecpay_callback_form_parse_failed", "error", err)
		c.String(http.StatusOK, constants.ECPayCallbackFailPrefix+"Invalid callback")
		return
	}
	form := c.Request.PostForm
	if len(form) == 0 {
		form = c.Request.Form
	}

	log.Infow("ecpay_callback_received",
		"client_ip", c.ClientIP(),
		"merchant_trade_no", strings.TrimSpace(form.Get("MerchantTradeNo")),
		"rtn_code", strings.TrimSpace(form.Get("RtnCode")),
		"raw_form", callbackRawFormForLog(form),
	)

	outcome, err := h.PaymentService.HandleECPayCallback(form, service.CallbackMeta{
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		c.String(http.StatusOK, constants.ECPayCallbackFailPrefix+callbackFailReason(err))
		return
	}
	// 交易失败的通知按协议回 "0|<讯息>"
	if outcome.Status == constants.PaymentStatusFailed {
		reason := outcome.RtnMsg
		if reason == "" {
			reason = "Failed"
		}
		c.String(http.StatusOK, constants.ECPayCallbackFailPrefix+reason)
		return
	}
	c.String(http.StatusOK, constants.ECPayCallbackSuccess)
}

func callbackFailReason(err error) string {
	switch {
	case errors.Is(err, service.ErrSignatureInvalid):
		return "CheckMacValue verification failed"
	case errors.Is(err, service.ErrPaymentNotFound):
		return "Payment not found"
	case errors.Is(err, service.ErrPaymentAmountMismatch):
		return "Amount mismatch"
	case errors.Is(err, service.ErrPaymentStatusInvalid):
		return "Invalid payment status"
	case errors.Is(err, service.ErrCallbackInvalid):
		return "Invalid callback"
	default:
		return "Processing failed"
	}
}

func truncateCallbackLogValue(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if len(raw) <= callbackLogValueLimit {
		return raw
	}
	return raw[:callbackLogValueLimit] + "...(truncated)"
}

func callbackRawFormForLog(form map[string][]string) map[string]interface{} {
	result := make(map[string]interface{}, len(form))
	for key, values := range form {
		if len(values) == 0 {
			result[key] = ""
			continue
		}
		if len(values) == 1 {
			result[key] = truncateCallbackLogValue(values[0])
			continue
		}
		copied := make([]string, 0, len(values))
		for _, value := range values {
			copied = append(copied, truncateCallbackLogValue(value))
		}
		result[key] = copied
	}
	return result
}
