package service

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/maxim1976/eshop/internal/constants"
	"github.com/maxim1976/eshop/internal/models"
	"github.com/maxim1976/eshop/internal/payment/ecpay"

	"gorm.io/gorm"
)

// ECPay 取号类回调（尚未付款，仅发放缴费信息）
const (
	ecpayRtnCodeATMTakeNumber = "2"
	ecpayRtnCodeCVSTakeNumber = "10100073"
)

// CallbackMeta 回调来源信息，随日志落库
type CallbackMeta struct {
	ClientIP  string
	UserAgent string
}

// CallbackOutcome 回调处理结论
//
// Status 是本次通知处理后的支付状态；通知内容为交易失败时
// RtnMsg 携带网关的失败讯息，供回调接口按协议应答。
type CallbackOutcome struct {
	Status string
	RtnMsg string
}

// HandleECPayCallback 处理 ECPay 服务端回调
//
// 验签失败与查无单据不落任何状态变更；合法回调在单一事务内
// 以行锁读取支付记录，重复通知对已终态的支付是幂等空操作。
func (s *PaymentService) HandleECPayCallback(form url.Values, meta CallbackMeta) (*CallbackOutcome, error) {
	if len(form) == 0 {
		return nil, ErrCallbackInvalid
	}
	merchantTradeNo := strings.TrimSpace(form.Get("MerchantTradeNo"))
	rtnCode := strings.TrimSpace(form.Get("RtnCode"))
	tradeStatus := strings.TrimSpace(form.Get("TradeStatus"))

	log := paymentLogger(
		"merchant_trade_no", merchantTradeNo,
		"rtn_code", rtnCode,
		"trade_status", tradeStatus,
		"trade_no", strings.TrimSpace(form.Get("TradeNo")),
	)
	log.Infow("payment_callback_received")

	if err := ecpay.VerifyCallback(s.ecpayCfg, form); err != nil {
		log.Warnw("payment_callback_signature_invalid", "error", err)
		return nil, ErrSignatureInvalid
	}
	if merchantTradeNo == "" {
		log.Warnw("payment_callback_merchant_trade_no_missing")
		return nil, ErrCallbackInvalid
	}
	if rtnCode == "" {
		log.Warnw("payment_callback_rtn_code_missing")
		return nil, ErrCallbackInvalid
	}

	now := time.Now()
	payload := callbackPayload(form)
	outcome := &CallbackOutcome{}

	err := models.DB.Transaction(func(tx *gorm.DB) error {
		paymentRepo := s.paymentRepo.WithTx(tx)
		logRepo := s.paymentLogRepo.WithTx(tx)

		payment, err := paymentRepo.GetByMerchantTradeNoForUpdate(merchantTradeNo)
		if err != nil {
			return ErrPaymentUpdateFailed
		}
		if payment == nil {
			return ErrPaymentNotFound
		}

		if err := logRepo.Create(&models.PaymentLog{
			PaymentID: payment.ID,
			LogType:   constants.PaymentLogTypeCallback,
			Message:   "ecpay callback received, rtn_code=" + rtnCode,
			Payload:   payload,
			ClientIP:  strings.TrimSpace(meta.ClientIP),
			UserAgent: strings.TrimSpace(meta.UserAgent),
			CreatedAt: now,
		}); err != nil {
			return ErrPaymentUpdateFailed
		}

		// 金额校验：回调金额与本地金额不一致视为异常回调
		if tradeAmt := strings.TrimSpace(form.Get("TradeAmt")); tradeAmt != "" {
			amt, parseErr := strconv.ParseInt(tradeAmt, 10, 64)
			if parseErr != nil || amt != payment.Amount.Decimal.Round(0).IntPart() {
				log.Warnw("payment_callback_amount_mismatch",
					"stored_amount", payment.Amount.String(),
					"callback_amount", tradeAmt,
				)
				return ErrPaymentAmountMismatch
			}
		}

		// 幂等处理：已支付/已退款的支付不再回退状态
		switch payment.Status {
		case constants.PaymentStatusPaid,
			constants.PaymentStatusRefunded,
			constants.PaymentStatusPartialRefund:
			log.Infow("payment_callback_idempotent", "current_status", payment.Status)
			outcome.Status = payment.Status
			return nil
		}

		target := resolveCallbackStatus(rtnCode, tradeStatus)
		if payment.Status == target {
			log.Infow("payment_callback_idempotent_same_status", "current_status", payment.Status)
			outcome.Status = payment.Status
			if target == constants.PaymentStatusFailed {
				outcome.RtnMsg = strings.TrimSpace(form.Get("RtnMsg"))
			}
			return nil
		}
		if !isPaymentTransitionAllowed(payment.Status, target) {
			log.Warnw("payment_callback_transition_rejected",
				"current_status", payment.Status,
				"target_status", target,
			)
			return ErrPaymentStatusInvalid
		}

		previousStatus := payment.Status
		applyCallbackFields(payment, form, payload, now)
		payment.Status = target

		switch target {
		case constants.PaymentStatusPaid:
			paidAt := now
			if parsed, ok := parseECPayTime(form.Get("PaymentDate")); ok {
				paidAt = parsed
			}
			payment.PaidAt = &paidAt
			payment.Gwsr = strings.TrimSpace(form.Get("gwsr"))
			payment.AuthCode = strings.TrimSpace(form.Get("auth_code"))
		case constants.PaymentStatusFailed:
			payment.FailReason = strings.TrimSpace(form.Get("RtnMsg"))
			outcome.RtnMsg = payment.FailReason
		}
		outcome.Status = target

		if err := paymentRepo.Update(payment); err != nil {
			return ErrPaymentUpdateFailed
		}

		orderRepo := s.orderRepo.WithTx(tx)
		switch target {
		case constants.PaymentStatusPaid:
			if err := orderRepo.UpdatePaymentStatus(payment.OrderID, constants.OrderPaymentStatusPaid, map[string]interface{}{
				"paid_at":    payment.PaidAt,
				"updated_at": now,
			}); err != nil {
				return ErrOrderUpdateFailed
			}
		case constants.PaymentStatusFailed:
			if err := orderRepo.UpdatePaymentStatus(payment.OrderID, constants.OrderPaymentStatusFailed, map[string]interface{}{
				"updated_at": now,
			}); err != nil {
				return ErrOrderUpdateFailed
			}
		}

		log.Infow("payment_callback_processed",
			"payment_id", payment.PaymentID,
			"previous_status", previousStatus,
			"new_status", payment.Status,
		)
		return nil
	})
	if err != nil {
		log.Warnw("payment_callback_failed", "error", err)
		return nil, err
	}
	return outcome, nil
}

// resolveCallbackStatus 将 ECPay 回调代码映射为支付状态
func resolveCallbackStatus(rtnCode, tradeStatus string) string {
	if rtnCode == constants.ECPayRtnCodeSuccess && tradeStatus == constants.ECPayTradeStatusSuccess {
		return constants.PaymentStatusPaid
	}
	// 取号成功尚未缴费，进入 processing 等待后续缴费回调
	if rtnCode == ecpayRtnCodeATMTakeNumber || rtnCode == ecpayRtnCodeCVSTakeNumber {
		return constants.PaymentStatusProcessing
	}
	return constants.PaymentStatusFailed
}

// applyCallbackFields 将回调字段回写到支付记录
func applyCallbackFields(payment *models.Payment, form url.Values, payload models.JSON, now time.Time) {
	payment.RtnCode = strings.TrimSpace(form.Get("RtnCode"))
	payment.RtnMsg = strings.TrimSpace(form.Get("RtnMsg"))
	payment.RawCallback = payload
	payment.CallbackAt = &now
	payment.UpdatedAt = now
	if v := strings.TrimSpace(form.Get("TradeNo")); v != "" {
		payment.TradeNo = v
	}
	if v := strings.TrimSpace(form.Get("PaymentType")); v != "" {
		payment.PaymentType = v
	}
	if v := strings.TrimSpace(form.Get("BankCode")); v != "" {
		payment.BankCode = v
	}
	if v := strings.TrimSpace(form.Get("vAccount")); v != "" {
		payment.VirtualAccount = v
	}
	if v := strings.TrimSpace(form.Get("PaymentNo")); v != "" {
		payment.PaymentCode = v
	}
	if v := strings.TrimSpace(form.Get("Barcode1")); v != "" {
		payment.Barcode1 = v
	}
	if v := strings.TrimSpace(form.Get("Barcode2")); v != "" {
		payment.Barcode2 = v
	}
	if v := strings.TrimSpace(form.Get("Barcode3")); v != "" {
		payment.Barcode3 = v
	}
	if parsed, ok := parseECPayTime(form.Get("ExpireDate")); ok {
		payment.PaymentDeadline = &parsed
	}
}

// parseECPayTime 解析 ECPay 的时间字段（含仅日期的 ExpireDate）
func parseECPayTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{ecpay.TradeDateLayout, "2006/01/02"} {
		if parsed, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// callbackPayload 将回调表单展开为可落库的 JSON
func callbackPayload(form url.Values) models.JSON {
	payload := make(models.JSON, len(form))
	for key := range form {
		payload[key] = form.Get(key)
	}
	return payload
}
