package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/maxim1976/eshop/internal/constants"
	"github.com/maxim1976/eshop/internal/models"
	"github.com/maxim1976/eshop/internal/payment/ecpay"
	"github.com/maxim1976/eshop/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RefundService 退款服务
type RefundService struct {
	paymentRepo    repository.PaymentRepository
	refundRepo     repository.RefundRecordRepository
	paymentLogRepo repository.PaymentLogRepository
	orderRepo      repository.OrderRepository
	ecpayCfg       *ecpay.Config
}

// NewRefundService 创建退款服务
func NewRefundService(
	paymentRepo repository.PaymentRepository,
	refundRepo repository.RefundRecordRepository,
	paymentLogRepo repository.PaymentLogRepository,
	orderRepo repository.OrderRepository,
	ecpayCfg *ecpay.Config,
) *RefundService {
	return &RefundService{
		paymentRepo:    paymentRepo,
		refundRepo:     refundRepo,
		paymentLogRepo: paymentLogRepo,
		orderRepo:      orderRepo,
		ecpayCfg:       ecpayCfg,
	}
}

// RequestRefundInput 发起退款请求
type RequestRefundInput struct {
	PaymentID   string
	Amount      models.Money
	Reason      string
	RequestedBy string
	Context     context.Context
}

// RequestRefund 发起退款
//
// 事务内校验可退余额并创建 pending 记录，网关请求在事务外发出，
// 成功进入 processing 等待人工确认，失败直接标记 failed。
func (s *RefundService) RequestRefund(input RequestRefundInput) (*models.RefundRecord, error) {
	if strings.TrimSpace(input.PaymentID) == "" || !input.Amount.Decimal.IsPositive() {
		return nil, ErrRefundInvalid
	}
	ctx := input.Context
	if ctx == nil {
		ctx = context.Background()
	}

	log := paymentLogger(
		"payment_id", strings.TrimSpace(input.PaymentID),
		"refund_amount", input.Amount.String(),
		"requested_by", strings.TrimSpace(input.RequestedBy),
	)

	now := time.Now()
	var record *models.RefundRecord
	var payment *models.Payment

	err := models.DB.Transaction(func(tx *gorm.DB) error {
		paymentRepo := s.paymentRepo.WithTx(tx)
		refundRepo := s.refundRepo.WithTx(tx)

		found, err := paymentRepo.GetByPaymentID(input.PaymentID)
		if err != nil {
			return ErrPaymentUpdateFailed
		}
		if found == nil {
			return ErrPaymentNotFound
		}
		locked, err := paymentRepo.GetByIDForUpdate(found.ID)
		if err != nil {
			return ErrPaymentUpdateFailed
		}
		if locked == nil {
			return ErrPaymentNotFound
		}

		switch locked.Status {
		case constants.PaymentStatusPaid, constants.PaymentStatusPartialRefund:
		default:
			return ErrRefundNotAllowed
		}

		active, err := refundRepo.HasActiveByPaymentID(locked.ID)
		if err != nil {
			return ErrPaymentUpdateFailed
		}
		if active {
			return ErrRefundInProgress
		}

		refundable := locked.Amount.SubMoney(locked.RefundedAmount)
		if input.Amount.Decimal.GreaterThan(refundable.Decimal) {
			return ErrRefundAmountExceeded
		}

		record = &models.RefundRecord{
			RefundID:    generateRefundID(now),
			PaymentID:   locked.ID,
			Amount:      input.Amount,
			Status:      constants.RefundStatusPending,
			Reason:      strings.TrimSpace(input.Reason),
			RequestedBy: strings.TrimSpace(input.RequestedBy),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := refundRepo.Create(record); err != nil {
			return ErrPaymentUpdateFailed
		}
		payment = locked
		return nil
	})
	if err != nil {
		log.Warnw("refund_request_rejected", "error", err)
		return nil, err
	}

	log.Infow("refund_requested", "refund_id", record.RefundID)

	// 网关请求不持有数据库锁
	result, err := ecpay.SubmitRefund(ctx, s.ecpayCfg, ecpay.RefundInput{
		MerchantTradeNo: payment.MerchantTradeNo,
		TradeNo:         payment.TradeNo,
		TotalAmount:     input.Amount.Decimal.Round(0).IntPart(),
	})
	if err != nil {
		s.markRefundFailed(record, "", "gateway request failed")
		log.Warnw("refund_gateway_request_failed", "refund_id", record.RefundID, "error", err)
		return nil, ErrRefundRequestFailed
	}

	rtnCode := strings.TrimSpace(result["RtnCode"])
	rtnMsg := strings.TrimSpace(result["RtnMsg"])
	record.GatewayRtnCode = rtnCode
	record.GatewayRtnMsg = rtnMsg
	record.UpdatedAt = time.Now()
	if rtnCode == constants.ECPayRtnCodeSuccess {
		record.Status = constants.RefundStatusProcessing
	} else {
		record.Status = constants.RefundStatusFailed
	}
	if err := s.refundRepo.Update(record); err != nil {
		return nil, ErrPaymentUpdateFailed
	}

	payload := make(models.JSON, len(result))
	for k, v := range result {
		payload[k] = v
	}
	s.appendRefundLog(payment.ID, record.RefundID, "refund submitted to gateway, rtn_code="+rtnCode, payload)

	if record.Status == constants.RefundStatusFailed {
		log.Warnw("refund_gateway_rejected", "refund_id", record.RefundID, "rtn_msg", rtnMsg)
		return record, ErrRefundRequestFailed
	}
	log.Infow("refund_processing", "refund_id", record.RefundID)
	return record, nil
}

// ConfirmRefund 确认退款到账，更新累计退款金额与支付状态
func (s *RefundService) ConfirmRefund(refundID string) (*models.RefundRecord, error) {
	if strings.TrimSpace(refundID) == "" {
		return nil, ErrRefundInvalid
	}
	log := paymentLogger("refund_id", strings.TrimSpace(refundID))

	now := time.Now()
	var record *models.RefundRecord

	err := models.DB.Transaction(func(tx *gorm.DB) error {
		refundRepo := s.refundRepo.WithTx(tx)
		paymentRepo := s.paymentRepo.WithTx(tx)

		locked, err := refundRepo.GetByRefundIDForUpdate(refundID)
		if err != nil {
			return ErrPaymentUpdateFailed
		}
		if locked == nil {
			return ErrRefundNotFound
		}
		if !isRefundTransitionAllowed(locked.Status, constants.RefundStatusCompleted) {
			return ErrRefundStatusInvalid
		}

		payment, err := paymentRepo.GetByIDForUpdate(locked.PaymentID)
		if err != nil {
			return ErrPaymentUpdateFailed
		}
		if payment == nil {
			return ErrPaymentNotFound
		}

		refunded := payment.RefundedAmount.AddMoney(locked.Amount)
		if refunded.Decimal.GreaterThan(payment.Amount.Decimal) {
			return ErrRefundAmountExceeded
		}

		target := constants.PaymentStatusPartialRefund
		if refunded.Decimal.Equal(payment.Amount.Decimal) {
			target = constants.PaymentStatusRefunded
		}
		if target != payment.Status && !isPaymentTransitionAllowed(payment.Status, target) {
			return ErrPaymentStatusInvalid
		}

		locked.Status = constants.RefundStatusCompleted
		locked.CompletedAt = &now
		locked.UpdatedAt = now
		if err := refundRepo.Update(locked); err != nil {
			return ErrPaymentUpdateFailed
		}

		payment.RefundedAmount = refunded
		payment.Status = target
		payment.UpdatedAt = now
		if err := paymentRepo.Update(payment); err != nil {
			return ErrPaymentUpdateFailed
		}

		if target == constants.PaymentStatusRefunded {
			if err := s.orderRepo.WithTx(tx).UpdatePaymentStatus(payment.OrderID, constants.OrderPaymentStatusRefunded, map[string]interface{}{
				"updated_at": now,
			}); err != nil {
				return ErrOrderUpdateFailed
			}
		}

		if err := s.paymentLogRepo.WithTx(tx).Create(&models.PaymentLog{
			PaymentID: payment.ID,
			LogType:   constants.PaymentLogTypeInfo,
			Message:   fmt.Sprintf("refund %s confirmed, refunded total %s", locked.RefundID, refunded.String()),
			CreatedAt: now,
		}); err != nil {
			return ErrPaymentUpdateFailed
		}

		record = locked
		log.Infow("refund_confirmed",
			"payment_status", target,
			"refunded_amount", refunded.String(),
		)
		return nil
	})
	if err != nil {
		log.Warnw("refund_confirm_failed", "error", err)
		return nil, err
	}
	return record, nil
}

// CancelRefund 取消尚未送达网关的退款申请
func (s *RefundService) CancelRefund(refundID, reason string) (*models.RefundRecord, error) {
	if strings.TrimSpace(refundID) == "" {
		return nil, ErrRefundInvalid
	}
	log := paymentLogger("refund_id", strings.TrimSpace(refundID))

	now := time.Now()
	var record *models.RefundRecord
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		refundRepo := s.refundRepo.WithTx(tx)
		locked, err := refundRepo.GetByRefundIDForUpdate(refundID)
		if err != nil {
			return ErrPaymentUpdateFailed
		}
		if locked == nil {
			return ErrRefundNotFound
		}
		if !isRefundTransitionAllowed(locked.Status, constants.RefundStatusCancelled) {
			return ErrRefundStatusInvalid
		}
		locked.Status = constants.RefundStatusCancelled
		if reason = strings.TrimSpace(reason); reason != "" {
			locked.Reason = reason
		}
		locked.UpdatedAt = now
		if err := refundRepo.Update(locked); err != nil {
			return ErrPaymentUpdateFailed
		}
		record = locked
		return nil
	})
	if err != nil {
		log.Warnw("refund_cancel_failed", "error", err)
		return nil, err
	}
	log.Infow("refund_cancelled", "reason", reason)
	return record, nil
}

// GetRefund 根据对外退款编号获取退款记录
func (s *RefundService) GetRefund(refundID string) (*models.RefundRecord, error) {
	record, err := s.refundRepo.GetByRefundID(refundID)
	if err != nil {
		return nil, ErrPaymentUpdateFailed
	}
	if record == nil {
		return nil, ErrRefundNotFound
	}
	return record, nil
}

// ListRefunds 退款记录列表
func (s *RefundService) ListRefunds(filter repository.RefundListFilter) ([]models.RefundRecord, int64, error) {
	return s.refundRepo.List(filter)
}

func (s *RefundService) markRefundFailed(record *models.RefundRecord, rtnCode, reason string) {
	record.Status = constants.RefundStatusFailed
	record.GatewayRtnCode = rtnCode
	record.GatewayRtnMsg = reason
	record.UpdatedAt = time.Now()
	if err := s.refundRepo.Update(record); err != nil {
		paymentLogger("refund_id", record.RefundID).
			Warnw("refund_mark_failed_error", "error", err)
	}
}

func (s *RefundService) appendRefundLog(paymentID uint, refundID, message string, payload models.JSON) {
	if err := s.paymentLogRepo.Create(&models.PaymentLog{
		PaymentID: paymentID,
		LogType:   constants.PaymentLogTypeResponse,
		Message:   message,
		Payload:   payload,
		CreatedAt: time.Now(),
	}); err != nil {
		paymentLogger("refund_id", refundID).
			Warnw("refund_log_append_failed", "error", err)
	}
}

// generateRefundID 生成对外退款编号（REF-YYYYMMDD-XXXXX）
func generateRefundID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:5]
	return fmt.Sprintf("REF-%s-%s", now.Format("20060102"), suffix)
}
