package service

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/maxim1976/eshop/internal/constants"
	"github.com/maxim1976/eshop/internal/models"
	"github.com/maxim1976/eshop/internal/payment/ecpay"
	"github.com/maxim1976/eshop/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupRefundServiceTest(t *testing.T) (*RefundService, *gorm.DB, *ecpay.Config) {
	t.Helper()
	dsn := fmt.Sprintf("file:refund_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Order{},
		&models.OrderItem{},
		&models.Payment{},
		&models.PaymentLog{},
		&models.RefundRecord{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db

	cfg := testECPayConfig()
	svc := NewRefundService(
		repository.NewPaymentRepository(db),
		repository.NewRefundRecordRepository(db),
		repository.NewPaymentLogRepository(db),
		repository.NewOrderRepository(db),
		cfg,
	)
	return svc, db, cfg
}

func createPaidPayment(t *testing.T, db *gorm.DB, amount int64) *models.Payment {
	t.Helper()
	now := time.Now()
	order := createTestOrder(t, db, fmt.Sprintf("ORD-RF-%d", time.Now().UnixNano()), amount, "商品A")
	if err := db.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("payment_status", constants.OrderPaymentStatusPaid).Error; err != nil {
		t.Fatalf("mark order paid failed: %v", err)
	}
	payment := &models.Payment{
		PaymentID:       fmt.Sprintf("PAY-20240101-%05X", time.Now().UnixNano()%0xFFFFF),
		OrderID:         order.ID,
		MerchantTradeNo: fmt.Sprintf("ES20240101%010d", time.Now().UnixNano()%10000000000),
		Method:          constants.PaymentMethodCredit,
		Amount:          models.NewMoneyFromDecimal(decimal.NewFromInt(amount)),
		Currency:        constants.CurrencyTWD,
		Status:          constants.PaymentStatusPaid,
		TradeNo:         "2401021504059999",
		PaidAt:          &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := db.Create(payment).Error; err != nil {
		t.Fatalf("create paid payment failed: %v", err)
	}
	return payment
}

func refundGateway(t *testing.T, rtnCode, rtnMsg string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse refund form: %v", err)
		}
		if r.PostForm.Get("Action") != "R" {
			t.Errorf("refund must use Action=R, got %q", r.PostForm.Get("Action"))
		}
		fmt.Fprintf(w, "MerchantID=2000132&MerchantTradeNo=%s&TradeNo=%s&RtnCode=%s&RtnMsg=%s",
			r.PostForm.Get("MerchantTradeNo"), r.PostForm.Get("TradeNo"), rtnCode, rtnMsg)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRequestRefund(t *testing.T) {
	svc, db, cfg := setupRefundServiceTest(t)
	cfg.BaseURL = refundGateway(t, "1", "OK").URL
	payment := createPaidPayment(t, db, 1000)

	record, err := svc.RequestRefund(RequestRefundInput{
		PaymentID:   payment.PaymentID,
		Amount:      models.NewMoneyFromInt(400),
		Reason:      "商品瑕疵",
		RequestedBy: "admin",
	})
	if err != nil {
		t.Fatalf("request refund failed: %v", err)
	}
	if record.Status != constants.RefundStatusProcessing {
		t.Fatalf("accepted refund should be processing, got %s", record.Status)
	}
	if record.GatewayRtnCode != "1" {
		t.Fatalf("gateway rtn code not recorded: %+v", record)
	}
	if len(record.RefundID) != len("REF-20240101-XXXXX") {
		t.Fatalf("unexpected refund id format: %s", record.RefundID)
	}

	var logs []models.PaymentLog
	if err := db.Where("payment_id = ?", payment.ID).Find(&logs).Error; err != nil {
		t.Fatalf("load logs failed: %v", err)
	}
	if len(logs) == 0 {
		t.Fatalf("refund submission should leave a payment log")
	}
}

func TestRequestRefundNotAllowed(t *testing.T) {
	svc, db, cfg := setupRefundServiceTest(t)
	cfg.BaseURL = refundGateway(t, "1", "OK").URL
	payment := createPaidPayment(t, db, 1000)
	if err := db.Model(&models.Payment{}).Where("id = ?", payment.ID).
		Update("status", constants.PaymentStatusPending).Error; err != nil {
		t.Fatalf("reset status failed: %v", err)
	}

	_, err := svc.RequestRefund(RequestRefundInput{PaymentID: payment.PaymentID, Amount: models.NewMoneyFromInt(100)})
	if !errors.Is(err, ErrRefundNotAllowed) {
		t.Fatalf("expected ErrRefundNotAllowed, got %v", err)
	}
}

func TestRequestRefundAmountExceeded(t *testing.T) {
	svc, db, cfg := setupRefundServiceTest(t)
	cfg.BaseURL = refundGateway(t, "1", "OK").URL
	payment := createPaidPayment(t, db, 1000)

	_, err := svc.RequestRefund(RequestRefundInput{PaymentID: payment.PaymentID, Amount: models.NewMoneyFromInt(1001)})
	if !errors.Is(err, ErrRefundAmountExceeded) {
		t.Fatalf("expected ErrRefundAmountExceeded, got %v", err)
	}
}

func TestRequestRefundWhileActive(t *testing.T) {
	svc, db, cfg := setupRefundServiceTest(t)
	cfg.BaseURL = refundGateway(t, "1", "OK").URL
	payment := createPaidPayment(t, db, 1000)

	if _, err := svc.RequestRefund(RequestRefundInput{PaymentID: payment.PaymentID, Amount: models.NewMoneyFromInt(100)}); err != nil {
		t.Fatalf("first refund failed: %v", err)
	}
	_, err := svc.RequestRefund(RequestRefundInput{PaymentID: payment.PaymentID, Amount: models.NewMoneyFromInt(100)})
	if !errors.Is(err, ErrRefundInProgress) {
		t.Fatalf("expected ErrRefundInProgress, got %v", err)
	}
}

func TestRequestRefundGatewayRejected(t *testing.T) {
	svc, db, cfg := setupRefundServiceTest(t)
	cfg.BaseURL = refundGateway(t, "10200047", "退款失敗").URL
	payment := createPaidPayment(t, db, 1000)

	record, err := svc.RequestRefund(RequestRefundInput{PaymentID: payment.PaymentID, Amount: models.NewMoneyFromInt(100)})
	if !errors.Is(err, ErrRefundRequestFailed) {
		t.Fatalf("expected ErrRefundRequestFailed, got %v", err)
	}
	if record == nil || record.Status != constants.RefundStatusFailed {
		t.Fatalf("rejected refund should be failed, got %+v", record)
	}
}

func TestRequestRefundGatewayDown(t *testing.T) {
	svc, db, cfg := setupRefundServiceTest(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)
	cfg.BaseURL = server.URL
	payment := createPaidPayment(t, db, 1000)

	_, err := svc.RequestRefund(RequestRefundInput{PaymentID: payment.PaymentID, Amount: models.NewMoneyFromInt(100)})
	if !errors.Is(err, ErrRefundRequestFailed) {
		t.Fatalf("expected ErrRefundRequestFailed, got %v", err)
	}

	var record models.RefundRecord
	if err := db.Where("payment_id = ?", payment.ID).First(&record).Error; err != nil {
		t.Fatalf("load refund record failed: %v", err)
	}
	if record.Status != constants.RefundStatusFailed {
		t.Fatalf("refund should be marked failed after gateway outage, got %s", record.Status)
	}
}

func TestConfirmRefundPartialThenFull(t *testing.T) {
	svc, db, cfg := setupRefundServiceTest(t)
	cfg.BaseURL = refundGateway(t, "1", "OK").URL
	payment := createPaidPayment(t, db, 1000)

	first, err := svc.RequestRefund(RequestRefundInput{PaymentID: payment.PaymentID, Amount: models.NewMoneyFromInt(400)})
	if err != nil {
		t.Fatalf("request first refund failed: %v", err)
	}
	confirmed, err := svc.ConfirmRefund(first.RefundID)
	if err != nil {
		t.Fatalf("confirm first refund failed: %v", err)
	}
	if confirmed.Status != constants.RefundStatusCompleted || confirmed.CompletedAt == nil {
		t.Fatalf("confirmed refund should be completed, got %+v", confirmed)
	}

	var reloaded models.Payment
	db.First(&reloaded, payment.ID)
	if reloaded.Status != constants.PaymentStatusPartialRefund {
		t.Fatalf("partial refund should move payment to partial_refund, got %s", reloaded.Status)
	}
	if reloaded.RefundedAmount.String() != "400.00" {
		t.Fatalf("refunded amount should accumulate, got %s", reloaded.RefundedAmount.String())
	}

	second, err := svc.RequestRefund(RequestRefundInput{PaymentID: payment.PaymentID, Amount: models.NewMoneyFromInt(600)})
	if err != nil {
		t.Fatalf("request second refund failed: %v", err)
	}
	if _, err := svc.ConfirmRefund(second.RefundID); err != nil {
		t.Fatalf("confirm second refund failed: %v", err)
	}

	db.First(&reloaded, payment.ID)
	if reloaded.Status != constants.PaymentStatusRefunded {
		t.Fatalf("full refund should move payment to refunded, got %s", reloaded.Status)
	}
	if reloaded.RefundedAmount.String() != "1000.00" {
		t.Fatalf("refunded amount should equal payment amount, got %s", reloaded.RefundedAmount.String())
	}

	var order models.Order
	db.First(&order, payment.OrderID)
	if order.PaymentStatus != constants.OrderPaymentStatusRefunded {
		t.Fatalf("full refund should flag the order refunded, got %s", order.PaymentStatus)
	}
}

func TestConfirmRefundRequiresProcessing(t *testing.T) {
	svc, db, _ := setupRefundServiceTest(t)
	payment := createPaidPayment(t, db, 1000)
	record := &models.RefundRecord{
		RefundID:  "REF-20240101-AAAAA",
		PaymentID: payment.ID,
		Amount:    models.NewMoneyFromInt(100),
		Status:    constants.RefundStatusPending,
	}
	if err := db.Create(record).Error; err != nil {
		t.Fatalf("create refund fixture failed: %v", err)
	}

	if _, err := svc.ConfirmRefund(record.RefundID); !errors.Is(err, ErrRefundStatusInvalid) {
		t.Fatalf("pending refund must not confirm, got %v", err)
	}
	if _, err := svc.ConfirmRefund("REF-20240101-ZZZZZ"); !errors.Is(err, ErrRefundNotFound) {
		t.Fatalf("expected ErrRefundNotFound, got %v", err)
	}
}

func TestCancelRefund(t *testing.T) {
	svc, db, _ := setupRefundServiceTest(t)
	payment := createPaidPayment(t, db, 1000)
	record := &models.RefundRecord{
		RefundID:  "REF-20240101-BBBBB",
		PaymentID: payment.ID,
		Amount:    models.NewMoneyFromInt(100),
		Status:    constants.RefundStatusPending,
	}
	if err := db.Create(record).Error; err != nil {
		t.Fatalf("create refund fixture failed: %v", err)
	}

	cancelled, err := svc.CancelRefund(record.RefundID, "操作有误")
	if err != nil {
		t.Fatalf("cancel refund failed: %v", err)
	}
	if cancelled.Status != constants.RefundStatusCancelled || cancelled.Reason != "操作有误" {
		t.Fatalf("cancel not applied: %+v", cancelled)
	}

	// processing 记录已送达网关，不允许本地取消
	if err := db.Model(&models.RefundRecord{}).Where("id = ?", record.ID).
		Update("status", constants.RefundStatusProcessing).Error; err != nil {
		t.Fatalf("reset status failed: %v", err)
	}
	if _, err := svc.CancelRefund(record.RefundID, "too late"); !errors.Is(err, ErrRefundStatusInvalid) {
		t.Fatalf("processing refund must not cancel, got %v", err)
	}
}
