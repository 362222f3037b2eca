package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/maxim1976/eshop/internal/config"
	"github.com/maxim1976/eshop/internal/constants"
	"github.com/maxim1976/eshop/internal/logger"
	"github.com/maxim1976/eshop/internal/models"
	"github.com/maxim1976/eshop/internal/payment/ecpay"
	"github.com/maxim1976/eshop/internal/queue"
	"github.com/maxim1976/eshop/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// paymentReconcileDelay 创建支付后兜底对账的延迟时间
const paymentReconcileDelay = 30 * time.Minute

// PaymentService 支付服务
type PaymentService struct {
	orderRepo      repository.OrderRepository
	paymentRepo    repository.PaymentRepository
	paymentLogRepo repository.PaymentLogRepository
	refundRepo     repository.RefundRecordRepository
	ecpayCfg       *ecpay.Config
	site           config.SiteConfig
	queueClient    *queue.Client
}

// NewPaymentService 创建支付服务
func NewPaymentService(
	orderRepo repository.OrderRepository,
	paymentRepo repository.PaymentRepository,
	paymentLogRepo repository.PaymentLogRepository,
	refundRepo repository.RefundRecordRepository,
	ecpayCfg *ecpay.Config,
	site config.SiteConfig,
	queueClient *queue.Client,
) *PaymentService {
	return &PaymentService{
		orderRepo:      orderRepo,
		paymentRepo:    paymentRepo,
		paymentLogRepo: paymentLogRepo,
		refundRepo:     refundRepo,
		ecpayCfg:       ecpayCfg,
		site:           site,
		queueClient:    queueClient,
	}
}

func paymentLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// CreatePaymentInput 创建支付请求
type CreatePaymentInput struct {
	OrderID        uint
	Method         string
	ClientIP       string
	UserAgent      string
	ClientBackURL  string
	OrderResultURL string
	Context        context.Context
}

// CreatePaymentResult 创建支付结果
type CreatePaymentResult struct {
	Payment *models.Payment
	Form    *ecpay.CheckoutForm
}

// CreatePayment 为订单创建支付单并生成 ECPay 结账表单
//
// 一张订单只允许一笔支付：未终结的旧支付直接复用，
// 已失败/已取消的旧支付重置后换号重试，已支付的拒绝重建。
func (s *PaymentService) CreatePayment(input CreatePaymentInput) (*CreatePaymentResult, error) {
	if input.OrderID == 0 {
		return nil, ErrPaymentInvalid
	}
	method := strings.TrimSpace(input.Method)
	if method == "" {
		method = constants.PaymentMethodCredit
	}
	if !ecpay.IsSupportedMethod(method) {
		return nil, ErrPaymentInvalid
	}

	log := paymentLogger(
		"order_id", input.OrderID,
		"method", method,
		"client_ip", strings.TrimSpace(input.ClientIP),
	)

	order, err := s.orderRepo.GetByIDWithItems(input.OrderID)
	if err != nil {
		log.Errorw("payment_create_order_fetch_failed", "error", err)
		return nil, ErrOrderFetchFailed
	}
	if order == nil {
		log.Warnw("payment_create_order_not_found")
		return nil, ErrOrderNotFound
	}
	if order.PaymentStatus == constants.OrderPaymentStatusPaid {
		log.Warnw("payment_create_order_already_paid")
		return nil, ErrPaymentExists
	}

	amount := order.TotalAmount.Decimal.Round(0).IntPart()
	if amount <= 0 {
		log.Warnw("payment_create_amount_invalid", "total_amount", order.TotalAmount.String())
		return nil, ErrPaymentInvalid
	}

	now := time.Now()
	var payment *models.Payment

	err = models.DB.Transaction(func(tx *gorm.DB) error {
		var lockedOrder models.Order
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&lockedOrder, input.OrderID).Error; err != nil {
			return ErrOrderFetchFailed
		}

		paymentRepo := s.paymentRepo.WithTx(tx)
		existing, err := paymentRepo.GetByOrderID(input.OrderID)
		if err != nil {
			return ErrPaymentCreateFailed
		}
		switch {
		case existing == nil:
			payment = &models.Payment{
				PaymentID:       generatePaymentID(now),
				OrderID:         order.ID,
				UserID:          paymentUserID(order.UserID),
				MerchantTradeNo: generateMerchantTradeNo(now),
				Method:          method,
				Amount:          order.TotalAmount,
				Currency:        constants.CurrencyTWD,
				Status:          constants.PaymentStatusPending,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := paymentRepo.Create(payment); err != nil {
				return ErrPaymentCreateFailed
			}
		case existing.Status == constants.PaymentStatusPending || existing.Status == constants.PaymentStatusProcessing:
			existing.Method = method
			existing.UpdatedAt = now
			if err := paymentRepo.Update(existing); err != nil {
				return ErrPaymentUpdateFailed
			}
			payment = existing
		case existing.Status == constants.PaymentStatusFailed || existing.Status == constants.PaymentStatusCancelled:
			// 重试：换号重签，避免 ECPay 拒绝重复的 MerchantTradeNo
			existing.MerchantTradeNo = generateMerchantTradeNo(now)
			existing.Method = method
			existing.Status = constants.PaymentStatusPending
			existing.FailReason = ""
			existing.RtnCode = ""
			existing.RtnMsg = ""
			existing.TradeNo = ""
			existing.UpdatedAt = now
			if err := paymentRepo.Update(existing); err != nil {
				return ErrPaymentUpdateFailed
			}
			payment = existing
		default:
			return ErrPaymentExists
		}
		return nil
	})
	if err != nil {
		log.Errorw("payment_create_failed", "error", err)
		return nil, err
	}

	form, err := ecpay.BuildCheckoutForm(s.ecpayCfg, ecpay.CheckoutInput{
		MerchantTradeNo: payment.MerchantTradeNo,
		TradeDate:       now,
		TotalAmount:     amount,
		TradeDesc:       fmt.Sprintf("訂單 %s", order.OrderNo),
		ItemName:        buildItemName(order.Items),
		ReturnURL:       s.callbackURL(),
		ChoosePayment:   method,
		ClientBackURL:   strings.TrimSpace(input.ClientBackURL),
		OrderResultURL:  strings.TrimSpace(input.OrderResultURL),
	})
	if err != nil {
		log.Errorw("payment_create_form_build_failed", "error", err)
		return nil, err
	}

	s.appendPaymentLog(&models.PaymentLog{
		PaymentID: payment.ID,
		LogType:   constants.PaymentLogTypeRequest,
		Message:   "payment created and checkout form generated",
		Payload: models.JSON{
			"form":       form.Fields,
			"action_url": form.ActionURL,
		},
		ClientIP:  strings.TrimSpace(input.ClientIP),
		UserAgent: strings.TrimSpace(input.UserAgent),
	})

	// 兜底对账：回调迟迟不来时主动查询网关
	if s.queueClient.Enabled() {
		if err := s.queueClient.EnqueuePaymentReconcile(
			queue.PaymentReconcilePayload{PaymentID: payment.ID},
			paymentReconcileDelay,
		); err != nil {
			log.Warnw("payment_reconcile_enqueue_failed", "error", err)
		}
	}

	log.Infow("payment_created",
		"payment_id", payment.PaymentID,
		"merchant_trade_no", payment.MerchantTradeNo,
		"amount", payment.Amount.String(),
	)
	return &CreatePaymentResult{Payment: payment, Form: form}, nil
}

// GetPaymentByPaymentID 根据对外支付编号获取支付记录
func (s *PaymentService) GetPaymentByPaymentID(paymentID string) (*models.Payment, error) {
	payment, err := s.paymentRepo.GetByPaymentID(paymentID)
	if err != nil {
		return nil, ErrPaymentUpdateFailed
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}

// GetPaymentByOrderID 获取订单对应的支付记录
func (s *PaymentService) GetPaymentByOrderID(orderID uint) (*models.Payment, error) {
	if orderID == 0 {
		return nil, ErrPaymentInvalid
	}
	payment, err := s.paymentRepo.GetByOrderID(orderID)
	if err != nil {
		return nil, ErrPaymentUpdateFailed
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}

// PaymentDetail 支付详情（含日志与退款记录）
type PaymentDetail struct {
	Payment *models.Payment       `json:"payment"`
	Logs    []models.PaymentLog   `json:"logs"`
	Refunds []models.RefundRecord `json:"refunds"`
}

// GetPaymentDetail 获取支付详情
func (s *PaymentService) GetPaymentDetail(paymentID string) (*PaymentDetail, error) {
	payment, err := s.GetPaymentByPaymentID(paymentID)
	if err != nil {
		return nil, err
	}
	logs, err := s.paymentLogRepo.ListByPaymentID(payment.ID)
	if err != nil {
		return nil, ErrPaymentUpdateFailed
	}
	refunds, err := s.refundRepo.ListByPaymentID(payment.ID)
	if err != nil {
		return nil, ErrPaymentUpdateFailed
	}
	return &PaymentDetail{Payment: payment, Logs: logs, Refunds: refunds}, nil
}

// ListPayments 管理端支付列表
func (s *PaymentService) ListPayments(filter repository.PaymentListFilter) ([]models.Payment, int64, error) {
	return s.paymentRepo.ListAdmin(filter)
}

// PaymentMethodInfo 支付方式描述（前端展示用）
type PaymentMethodInfo struct {
	Method         string `json:"method"`
	Name           string `json:"name"`
	NameEn         string `json:"name_en"`
	Description    string `json:"description"`
	Icon           string `json:"icon"`
	ProcessingTime string `json:"processing_time"`
	FeeDescription string `json:"fee_description"`
}

// PaymentMethods 返回可用的 ECPay 支付方式
func (s *PaymentService) PaymentMethods() []PaymentMethodInfo {
	return []PaymentMethodInfo{
		{
			Method:         constants.PaymentMethodCredit,
			Name:           "信用卡",
			NameEn:         "Credit Card",
			Description:    "支援 Visa、MasterCard、JCB",
			Icon:           "credit-card",
			ProcessingTime: "即時",
			FeeDescription: "不收取額外手續費",
		},
		{
			Method:         constants.PaymentMethodWebATM,
			Name:           "網路ATM",
			NameEn:         "Web ATM",
			Description:    "使用讀卡機進行轉帳",
			Icon:           "university",
			ProcessingTime: "即時",
			FeeDescription: "依各銀行收費標準",
		},
		{
			Method:         constants.PaymentMethodATM,
			Name:           "ATM轉帳",
			NameEn:         "ATM Transfer",
			Description:    "至ATM機器或網銀轉帳",
			Icon:           "university",
			ProcessingTime: "3個工作天內",
			FeeDescription: "依各銀行收費標準",
		},
		{
			Method:         constants.PaymentMethodCVS,
			Name:           "超商代碼",
			NameEn:         "CVS Code Payment",
			Description:    "7-11、全家、萊爾富、OK超商",
			Icon:           "store",
			ProcessingTime: "即時",
			FeeDescription: "NT$30 服務費",
		},
		{
			Method:         constants.PaymentMethodBarcode,
			Name:           "超商條碼",
			NameEn:         "CVS Barcode Payment",
			Description:    "7-11、全家、萊爾富、OK超商",
			Icon:           "barcode",
			ProcessingTime: "即時",
			FeeDescription: "NT$30 服務費",
		},
	}
}

// appendPaymentLog 落库支付日志，失败只记 warn 不阻断主流程
func (s *PaymentService) appendPaymentLog(entry *models.PaymentLog) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if err := s.paymentLogRepo.Create(entry); err != nil {
		paymentLogger("payment_id", entry.PaymentID, "log_type", entry.LogType).
			Warnw("payment_log_append_failed", "error", err)
	}
}

func (s *PaymentService) callbackURL() string {
	base := strings.TrimRight(strings.TrimSpace(s.site.BaseURL), "/")
	path := strings.TrimSpace(s.site.ReturnPath)
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// paymentUserID 订单归属用户；游客单（UserID 为 0）落空值
func paymentUserID(orderUserID uint) *uint {
	if orderUserID == 0 {
		return nil
	}
	return &orderUserID
}

// generatePaymentID 生成对外支付编号（PAY-YYYYMMDD-XXXXX）
func generatePaymentID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:5]
	return fmt.Sprintf("PAY-%s-%s", now.Format("20060102"), suffix)
}

// generateMerchantTradeNo 生成特店交易编号（ECPay 限 20 字符英数字）
func generateMerchantTradeNo(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:4]
	return fmt.Sprintf("ES%s%s", now.Format("20060102150405"), suffix)
}

// buildItemName 以订单项拼接 ECPay ItemName（前 3 项，# 分隔，上限 400 字符）
func buildItemName(items []models.OrderItem) string {
	if len(items) == 0 {
		return "商品"
	}
	names := make([]string, 0, 3)
	for i, item := range items {
		if i >= 3 {
			break
		}
		name := strings.TrimSpace(item.ProductName)
		if name == "" {
			name = "商品"
		}
		names = append(names, name)
	}
	text := strings.Join(names, "#")
	if len(items) > 3 {
		text += fmt.Sprintf(" 等%d項商品", len(items))
	}
	if runes := []rune(text); len(runes) > 400 {
		text = string(runes[:400])
	}
	return text
}
