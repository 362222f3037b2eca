package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/maxim1976/eshop/internal/config"
	"github.com/maxim1976/eshop/internal/constants"
	"github.com/maxim1976/eshop/internal/models"
	"github.com/maxim1976/eshop/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// queryGateway 模拟 ECPay QueryTradeInfo 网关端点
func queryGateway(t *testing.T, fields map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse query form failed: %v", err)
		}
		if got := r.PostForm.Get("MerchantTradeNo"); got == "" {
			t.Errorf("query must carry MerchantTradeNo")
		}
		body := url.Values{}
		for k, v := range fields {
			body.Set(k, v)
		}
		fmt.Fprint(w, body.Encode())
	}))
	t.Cleanup(server.Close)
	return server
}

func setupReconcileTest(t *testing.T, gatewayURL string) (*PaymentService, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:payment_query_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
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
	cfg.BaseURL = gatewayURL
	svc := NewPaymentService(
		repository.NewOrderRepository(db),
		repository.NewPaymentRepository(db),
		repository.NewPaymentLogRepository(db),
		repository.NewRefundRecordRepository(db),
		cfg,
		config.SiteConfig{
			BaseURL:    "https://shop.example.com",
			ReturnPath: "/api/payments/callback/ecpay",
		},
		nil,
	)
	return svc, db
}

func seedReconcilePayment(t *testing.T, db *gorm.DB, status string, createdAt time.Time) *models.Payment {
	t.Helper()
	order := &models.Order{
		OrderNo:       fmt.Sprintf("ORD-RECON-%d", time.Now().UnixNano()),
		UserID:        1,
		Currency:      constants.CurrencyTWD,
		TotalAmount:   models.NewMoneyFromDecimal(decimal.NewFromInt(1000)),
		PaymentStatus: constants.OrderPaymentStatusPending,
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	payment := &models.Payment{
		PaymentID:       fmt.Sprintf("PAY-20240101-%05X", time.Now().UnixNano()%0xFFFFF),
		OrderID:         order.ID,
		MerchantTradeNo: fmt.Sprintf("ES20240101%010d", time.Now().UnixNano()%10000000000),
		Method:          constants.PaymentMethodCredit,
		Amount:          models.NewMoneyFromDecimal(decimal.NewFromInt(1000)),
		Currency:        constants.CurrencyTWD,
		Status:          status,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
	if err := db.Create(payment).Error; err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	return payment
}

func TestReconcilePaymentSettlesPaid(t *testing.T) {
	server := queryGateway(t, map[string]string{
		"MerchantTradeNo": "placeholder",
		"TradeNo":         "2401021504059999",
		"TradeStatus":     "1",
		"PaymentType":     "Credit_CreditCard",
		"PaymentDate":     "2024/01/02 15:10:00",
	})
	svc, db := setupReconcileTest(t, server.URL)
	payment := seedReconcilePayment(t, db, constants.PaymentStatusPending, time.Now())

	if err := svc.ReconcilePayment(context.Background(), payment.ID); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	var updated models.Payment
	db.First(&updated, payment.ID)
	if updated.Status != constants.PaymentStatusPaid {
		t.Fatalf("payment should be paid after reconcile, got %s", updated.Status)
	}
	if updated.TradeNo != "2401021504059999" {
		t.Fatalf("trade no should be recorded, got %q", updated.TradeNo)
	}
	if updated.PaidAt == nil {
		t.Fatalf("paid_at should be set")
	}

	var order models.Order
	db.First(&order, payment.OrderID)
	if order.PaymentStatus != constants.OrderPaymentStatusPaid {
		t.Fatalf("order should be paid, got %s", order.PaymentStatus)
	}

	var logs []models.PaymentLog
	db.Where("payment_id = ?", payment.ID).Find(&logs)
	if len(logs) != 1 {
		t.Fatalf("expected one reconcile log, got %d", len(logs))
	}
}

func TestReconcilePaymentStillUnpaid(t *testing.T) {
	server := queryGateway(t, map[string]string{
		"MerchantTradeNo": "placeholder",
		"TradeStatus":     "0",
	})
	svc, db := setupReconcileTest(t, server.URL)
	payment := seedReconcilePayment(t, db, constants.PaymentStatusPending, time.Now())

	if err := svc.ReconcilePayment(context.Background(), payment.ID); err != nil {
		t.Fatalf("unpaid reconcile should be a no-op, got %v", err)
	}

	var unchanged models.Payment
	db.First(&unchanged, payment.ID)
	if unchanged.Status != constants.PaymentStatusPending {
		t.Fatalf("payment should stay pending, got %s", unchanged.Status)
	}
}

func TestReconcilePaymentGatewayDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	svc, db := setupReconcileTest(t, server.URL)
	payment := seedReconcilePayment(t, db, constants.PaymentStatusPending, time.Now())

	if err := svc.ReconcilePayment(context.Background(), payment.ID); !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
}

func TestReconcilePaymentSkipsTerminal(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	t.Cleanup(server.Close)

	svc, db := setupReconcileTest(t, server.URL)
	payment := seedReconcilePayment(t, db, constants.PaymentStatusPaid, time.Now())

	if err := svc.ReconcilePayment(context.Background(), payment.ID); err != nil {
		t.Fatalf("terminal reconcile should be a no-op, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("terminal payment must not hit the gateway, got %d calls", calls)
	}
}

func TestListStuckPayments(t *testing.T) {
	svc, db := setupReconcileTest(t, "")
	stale := seedReconcilePayment(t, db, constants.PaymentStatusPending, time.Now().Add(-2*time.Hour))
	seedReconcilePayment(t, db, constants.PaymentStatusPending, time.Now())
	seedReconcilePayment(t, db, constants.PaymentStatusPaid, time.Now().Add(-2*time.Hour))

	stuck, err := svc.ListStuckPayments(30*time.Minute, 10)
	if err != nil {
		t.Fatalf("list stuck payments failed: %v", err)
	}
	if len(stuck) != 1 {
		t.Fatalf("expected one stuck payment, got %d", len(stuck))
	}
	if stuck[0].ID != stale.ID {
		t.Fatalf("expected stale payment %d, got %d", stale.ID, stuck[0].ID)
	}
}

func TestQueryTradeStatus(t *testing.T) {
	server := queryGateway(t, map[string]string{
		"MerchantTradeNo": "placeholder",
		"TradeStatus":     "1",
		"TradeNo":         "2401021504059999",
	})
	svc, db := setupReconcileTest(t, server.URL)
	payment := seedReconcilePayment(t, db, constants.PaymentStatusPending, time.Now())

	result, err := svc.QueryTradeStatus(context.Background(), payment.PaymentID)
	if err != nil {
		t.Fatalf("query trade status failed: %v", err)
	}
	if result["TradeStatus"] != "1" {
		t.Fatalf("unexpected trade status: %s", result["TradeStatus"])
	}

	if _, err := svc.QueryTradeStatus(context.Background(), "PAY-UNKNOWN"); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
}
