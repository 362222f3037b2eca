package service

import (
	"context"
	"strings"
	"time"

	"github.com/maxim1976/eshop/internal/constants"
	"github.com/maxim1976/eshop/internal/models"
	"github.com/maxim1976/eshop/internal/payment/ecpay"

	"gorm.io/gorm"
)

// ECPay QueryTradeInfo 的 TradeStatus 取值
const (
	ecpayQueryTradeStatusUnpaid = "0"
	ecpayQueryTradeStatusPaid   = "1"
	ecpayQueryTradeStatusFailed = "10200095"
)

// QueryTradeStatus 主动向 ECPay 查询交易状态（不落库）
func (s *PaymentService) QueryTradeStatus(ctx context.Context, paymentID string) (map[string]string, error) {
	payment, err := s.GetPaymentByPaymentID(paymentID)
	if err != nil {
		return nil, err
	}
	result, err := ecpay.QueryTradeInfo(ctx, s.ecpayCfg, payment.MerchantTradeNo)
	if err != nil {
		paymentLogger("payment_id", payment.PaymentID).
			Warnw("payment_query_gateway_failed", "error", err)
		return nil, ErrGatewayUnavailable
	}
	return result, nil
}

// ReconcilePayment 对账：查询网关状态并补偿遗失的回调
//
// 仅对 pending/processing 的支付生效，网关已付款/已失败时
// 走与回调一致的状态机落库。
func (s *PaymentService) ReconcilePayment(ctx context.Context, paymentID uint) error {
	payment, err := s.paymentRepo.GetByID(paymentID)
	if err != nil {
		return ErrPaymentUpdateFailed
	}
	if payment == nil {
		return ErrPaymentNotFound
	}

	log := paymentLogger(
		"payment_id", payment.PaymentID,
		"merchant_trade_no", payment.MerchantTradeNo,
		"current_status", payment.Status,
	)

	switch payment.Status {
	case constants.PaymentStatusPending, constants.PaymentStatusProcessing:
	default:
		log.Debugw("payment_reconcile_skip_terminal")
		return nil
	}

	result, err := ecpay.QueryTradeInfo(ctx, s.ecpayCfg, payment.MerchantTradeNo)
	if err != nil {
		log.Warnw("payment_reconcile_query_failed", "error", err)
		return ErrGatewayUnavailable
	}

	tradeStatus := strings.TrimSpace(result["TradeStatus"])
	var target string
	switch tradeStatus {
	case ecpayQueryTradeStatusPaid:
		target = constants.PaymentStatusPaid
	case ecpayQueryTradeStatusFailed:
		target = constants.PaymentStatusFailed
	case ecpayQueryTradeStatusUnpaid:
		log.Infow("payment_reconcile_still_unpaid")
		return nil
	default:
		log.Warnw("payment_reconcile_trade_status_unknown", "trade_status", tradeStatus)
		return nil
	}

	now := time.Now()
	payload := make(models.JSON, len(result))
	for k, v := range result {
		payload[k] = v
	}

	err = models.DB.Transaction(func(tx *gorm.DB) error {
		paymentRepo := s.paymentRepo.WithTx(tx)
		logRepo := s.paymentLogRepo.WithTx(tx)

		locked, err := paymentRepo.GetByIDForUpdate(payment.ID)
		if err != nil {
			return ErrPaymentUpdateFailed
		}
		if locked == nil {
			return ErrPaymentNotFound
		}
		if locked.Status == target || !isPaymentTransitionAllowed(locked.Status, target) {
			// 回调先到一步，对账无需补偿
			return nil
		}

		if err := logRepo.Create(&models.PaymentLog{
			PaymentID: locked.ID,
			LogType:   constants.PaymentLogTypeResponse,
			Message:   "trade status reconciled from gateway query",
			Payload:   payload,
			CreatedAt: now,
		}); err != nil {
			return ErrPaymentUpdateFailed
		}

		locked.RawCallback = payload
		locked.UpdatedAt = now
		if v := strings.TrimSpace(result["TradeNo"]); v != "" {
			locked.TradeNo = v
		}
		if v := strings.TrimSpace(result["PaymentType"]); v != "" {
			locked.PaymentType = v
		}
		if v := strings.TrimSpace(result["gwsr"]); v != "" {
			locked.Gwsr = v
		}
		if v := strings.TrimSpace(result["auth_code"]); v != "" {
			locked.AuthCode = v
		}
		locked.Status = target

		orderRepo := s.orderRepo.WithTx(tx)
		switch target {
		case constants.PaymentStatusPaid:
			paidAt := now
			if parsed, ok := parseECPayTime(result["PaymentDate"]); ok {
				paidAt = parsed
			}
			locked.PaidAt = &paidAt
			if err := orderRepo.UpdatePaymentStatus(locked.OrderID, constants.OrderPaymentStatusPaid, map[string]interface{}{
				"paid_at":    locked.PaidAt,
				"updated_at": now,
			}); err != nil {
				return ErrOrderUpdateFailed
			}
		case constants.PaymentStatusFailed:
			locked.FailReason = "gateway reported trade failed"
			if err := orderRepo.UpdatePaymentStatus(locked.OrderID, constants.OrderPaymentStatusFailed, map[string]interface{}{
				"updated_at": now,
			}); err != nil {
				return ErrOrderUpdateFailed
			}
		}

		if err := paymentRepo.Update(locked); err != nil {
			return ErrPaymentUpdateFailed
		}
		log.Infow("payment_reconciled", "new_status", target)
		return nil
	})
	if err != nil {
		log.Warnw("payment_reconcile_failed", "error", err)
		return err
	}
	return nil
}

// ListStuckPayments 获取需要对账的支付记录
func (s *PaymentService) ListStuckPayments(stuckAfter time.Duration, limit int) ([]models.Payment, error) {
	before := time.Now().Add(-stuckAfter)
	return s.paymentRepo.ListStuckPending(before, limit)
}

// CancelPayment 取消未完成的支付（买家放弃或订单关闭）
func (s *PaymentService) CancelPayment(paymentID string, reason string) (*models.Payment, error) {
	var payment *models.Payment
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		paymentRepo := s.paymentRepo.WithTx(tx)
		existing, err := paymentRepo.GetByPaymentID(paymentID)
		if err != nil {
			return ErrPaymentUpdateFailed
		}
		if existing == nil {
			return ErrPaymentNotFound
		}
		locked, err := paymentRepo.GetByIDForUpdate(existing.ID)
		if err != nil {
			return ErrPaymentUpdateFailed
		}
		if locked == nil {
			return ErrPaymentNotFound
		}
		if !isPaymentTransitionAllowed(locked.Status, constants.PaymentStatusCancelled) {
			return ErrPaymentStatusInvalid
		}
		now := time.Now()
		locked.Status = constants.PaymentStatusCancelled
		locked.FailReason = strings.TrimSpace(reason)
		locked.UpdatedAt = now
		if err := paymentRepo.Update(locked); err != nil {
			return ErrPaymentUpdateFailed
		}
		if err := s.paymentLogRepo.WithTx(tx).Create(&models.PaymentLog{
			PaymentID: locked.ID,
			LogType:   constants.PaymentLogTypeInfo,
			Message:   "payment cancelled: " + strings.TrimSpace(reason),
			CreatedAt: now,
		}); err != nil {
			return ErrPaymentUpdateFailed
		}
		payment = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	paymentLogger("payment_id", payment.PaymentID).Infow("payment_cancelled", "reason", reason)
	return payment, nil
}
