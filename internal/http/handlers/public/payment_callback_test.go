package public

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/maxim1976/eshop/internal/config"
	"github.com/maxim1976/eshop/internal/constants"
	"github.com/maxim1976/eshop/internal/models"
	"github.com/maxim1976/eshop/internal/payment/ecpay"
	"github.com/maxim1976/eshop/internal/provider"
	"github.com/maxim1976/eshop/internal/repository"
	"github.com/maxim1976/eshop/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var callbackTestECPayConfig = &ecpay.Config{
	MerchantID: "2000132",
	HashKey:    "5294y06JbISpM5x9",
	HashIV:     "v77hoKGq4kWxNNIS",
	Sandbox:    true,
}

func setupCallbackHandlerTest(t *testing.T) (*Handler, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:callback_handler_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
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

	orderRepo := repository.NewOrderRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	paymentLogRepo := repository.NewPaymentLogRepository(db)
	refundRepo := repository.NewRefundRecordRepository(db)

	container := &provider.Container{
		ECPayConfig:    callbackTestECPayConfig,
		OrderRepo:      orderRepo,
		PaymentRepo:    paymentRepo,
		PaymentLogRepo: paymentLogRepo,
		RefundRepo:     refundRepo,
	}
	container.PaymentService = service.NewPaymentService(
		orderRepo, paymentRepo, paymentLogRepo, refundRepo,
		callbackTestECPayConfig,
		config.SiteConfig{BaseURL: "https://shop.example.com", ReturnPath: "/api/payments/callback/ecpay"},
		nil,
	)
	return New(container), db
}

func seedPendingPayment(t *testing.T, db *gorm.DB, amount int64) *models.Payment {
	t.Helper()
	now := time.Now()
	order := &models.Order{
		OrderNo:       fmt.Sprintf("ORD-CBH-%d", now.UnixNano()),
		UserID:        1,
		Currency:      constants.CurrencyTWD,
		TotalAmount:   models.NewMoneyFromDecimal(decimal.NewFromInt(amount)),
		PaymentStatus: constants.OrderPaymentStatusPending,
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	payment := &models.Payment{
		PaymentID:       fmt.Sprintf("PAY-20240101-%05X", now.UnixNano()%0xFFFFF),
		OrderID:         order.ID,
		MerchantTradeNo: fmt.Sprintf("ES20240101%010d", now.UnixNano()%10000000000),
		Method:          constants.PaymentMethodCredit,
		Amount:          models.NewMoneyFromDecimal(decimal.NewFromInt(amount)),
		Currency:        constants.CurrencyTWD,
		Status:          constants.PaymentStatusPending,
	}
	if err := db.Create(payment).Error; err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	return payment
}

func postCallback(t *testing.T, h *Handler, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(http.MethodPost, "/api/payments/callback/ecpay", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.Request = req

	h.ECPayCallback(c)
	return w
}

func TestECPayCallbackSuccessAck(t *testing.T) {
	h, db := setupCallbackHandlerTest(t)
	payment := seedPendingPayment(t, db, 1000)

	fields := map[string]string{
		"MerchantID":      "2000132",
		"MerchantTradeNo": payment.MerchantTradeNo,
		"TradeNo":         "2401021504059999",
		"RtnCode":         "1",
		"RtnMsg":          "交易成功",
		"TradeStatus":     "1",
		"TradeAmt":        "1000",
		"PaymentType":     "Credit_CreditCard",
		"PaymentDate":     "2024/01/02 15:10:00",
	}
	fields["CheckMacValue"] = ecpay.GenerateCheckMacValue(callbackTestECPayConfig, fields)

	w := postCallback(t, h, fields)
	if w.Code != http.StatusOK {
		t.Fatalf("callback must answer 200, got %d", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != constants.ECPayCallbackSuccess {
		t.Fatalf("expected %q, got %q", constants.ECPayCallbackSuccess, got)
	}

	var updated models.Payment
	db.First(&updated, payment.ID)
	if updated.Status != constants.PaymentStatusPaid {
		t.Fatalf("payment should be paid, got %s", updated.Status)
	}
}

func TestECPayCallbackFailureAck(t *testing.T) {
	h, db := setupCallbackHandlerTest(t)
	payment := seedPendingPayment(t, db, 1000)

	// 交易失败通知验签通过也要处理入库，但应答失败字面值
	fields := map[string]string{
		"MerchantID":      "2000132",
		"MerchantTradeNo": payment.MerchantTradeNo,
		"RtnCode":         "10100058",
		"RtnMsg":          "付款失敗",
		"TradeAmt":        "1000",
	}
	fields["CheckMacValue"] = ecpay.GenerateCheckMacValue(callbackTestECPayConfig, fields)

	w := postCallback(t, h, fields)
	if w.Code != http.StatusOK {
		t.Fatalf("callback must answer 200, got %d", w.Code)
	}
	want := constants.ECPayCallbackFailPrefix + "付款失敗"
	if got := strings.TrimSpace(w.Body.String()); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	var updated models.Payment
	db.First(&updated, payment.ID)
	if updated.Status != constants.PaymentStatusFailed || updated.FailReason != "付款失敗" {
		t.Fatalf("payment should be failed with reason, got %+v", updated)
	}
}

func TestECPayCallbackTamperedSignature(t *testing.T) {
	h, db := setupCallbackHandlerTest(t)
	payment := seedPendingPayment(t, db, 1000)

	fields := map[string]string{
		"MerchantTradeNo": payment.MerchantTradeNo,
		"RtnCode":         "1",
		"TradeStatus":     "1",
		"TradeAmt":        "1000",
	}
	fields["CheckMacValue"] = ecpay.GenerateCheckMacValue(callbackTestECPayConfig, fields)
	fields["TradeAmt"] = "1" // 篡改金额

	w := postCallback(t, h, fields)
	if w.Code != http.StatusOK {
		t.Fatalf("callback must answer 200, got %d", w.Code)
	}
	want := constants.ECPayCallbackFailPrefix + "CheckMacValue verification failed"
	if got := strings.TrimSpace(w.Body.String()); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	var unchanged models.Payment
	db.First(&unchanged, payment.ID)
	if unchanged.Status != constants.PaymentStatusPending {
		t.Fatalf("tampered callback must not change state, got %s", unchanged.Status)
	}
}

func TestECPayCallbackUnknownTradeNo(t *testing.T) {
	h, _ := setupCallbackHandlerTest(t)

	fields := map[string]string{
		"MerchantTradeNo": "ES99999999999999XXXX",
		"RtnCode":         "1",
		"TradeStatus":     "1",
	}
	fields["CheckMacValue"] = ecpay.GenerateCheckMacValue(callbackTestECPayConfig, fields)

	w := postCallback(t, h, fields)
	want := constants.ECPayCallbackFailPrefix + "Payment not found"
	if got := strings.TrimSpace(w.Body.String()); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestECPayCallbackEmptyForm(t *testing.T) {
	h, _ := setupCallbackHandlerTest(t)

	w := postCallback(t, h, map[string]string{})
	want := constants.ECPayCallbackFailPrefix + "Invalid callback"
	if got := strings.TrimSpace(w.Body.String()); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
