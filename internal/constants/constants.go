package constants

// 支付状态常量
const (
	PaymentStatusPending       = "pending"
	PaymentStatusProcessing    = "processing"
	PaymentStatusPaid          = "paid"
	PaymentStatusFailed        = "failed"
	PaymentStatusCancelled     = "cancelled"
	PaymentStatusRefunded      = "refunded"
	PaymentStatusPartialRefund = "partial_refund"
)

// 订单支付状态常量（订单协作方暴露的字段）
const (
	OrderPaymentStatusPending  = "pending"
	OrderPaymentStatusPaid     = "paid"
	OrderPaymentStatusFailed   = "failed"
	OrderPaymentStatusRefunded = "refunded"
)

// 支付方式常量（ECPay ChoosePayment）
const (
	PaymentMethodCredit  = "Credit"
	PaymentMethodWebATM  = "WebATM"
	PaymentMethodATM     = "ATM"
	PaymentMethodCVS     = "CVS"
	PaymentMethodBarcode = "BARCODE"
)

// 支付日志类型常量
const (
	PaymentLogTypeRequest  = "request"
	PaymentLogTypeResponse = "response"
	PaymentLogTypeCallback = "callback"
	PaymentLogTypeError    = "error"
	PaymentLogTypeInfo     = "info"
)

// 退款状态常量
const (
	RefundStatusPending    = "pending"
	RefundStatusProcessing = "processing"
	RefundStatusCompleted  = "completed"
	RefundStatusFailed     = "failed"
	RefundStatusCancelled  = "cancelled"
)

// ECPay 回调常量
const (
	ECPayRtnCodeSuccess     = "1"
	ECPayTradeStatusSuccess = "1"
	ECPayCallbackSuccess    = "1|OK"
	ECPayCallbackFailPrefix = "0|"
)

// 币种常量
const (
	CurrencyTWD = "TWD"
)

// 异步任务常量
const (
	QueueDefault         = "default"
	TaskPaymentReconcile = "payment:reconcile"
)
