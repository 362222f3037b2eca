package models

import (
	"time"

	"gorm.io/gorm"
)

// Payment 支付记录（ECPay 全方位金流）
type Payment struct {
	ID              uint           `gorm:"primarykey" json:"id"`                                          // 主键
	PaymentID       string         `gorm:"uniqueIndex;not null;type:varchar(32)" json:"payment_id"`       // 对外支付编号（PAY-YYYYMMDD-XXXXX）
	OrderID         uint           `gorm:"uniqueIndex;not null" json:"order_id"`                          // 订单ID（一单一支付）
	UserID          *uint          `gorm:"index" json:"user_id,omitempty"`                                // 下单用户ID（冗余自订单，游客单为空）
	MerchantTradeNo string         `gorm:"uniqueIndex;not null;type:varchar(20)" json:"merchant_trade_no"` // 特店交易编号（送 ECPay）
	Method          string         `gorm:"index;not null" json:"method"`                                  // 支付方式（Credit/WebATM/ATM/CVS/BARCODE）
	Amount          Money          `gorm:"type:decimal(20,2);not null" json:"amount"`                     // 支付金额
	Currency        string         `gorm:"not null;default:TWD" json:"currency"`                          // 币种
	Status          string         `gorm:"index;not null" json:"status"`                                  // 支付状态
	RefundedAmount  Money          `gorm:"type:decimal(20,2);not null;default:0" json:"refunded_amount"`  // 已退款累计金额
	TradeNo         string         `gorm:"index;type:varchar(32)" json:"trade_no"`                        // ECPay 交易编号
	Gwsr            string         `gorm:"type:varchar(32)" json:"gwsr,omitempty"`                        // ECPay 授权交易序号（付款成功时回传）
	AuthCode        string         `gorm:"type:varchar(16)" json:"auth_code,omitempty"`                   // 信用卡授权码（付款成功时回传）
	RtnCode         string         `gorm:"type:varchar(16)" json:"rtn_code"`                              // 最近一次回调/查询的交易代码
	RtnMsg          string         `gorm:"type:varchar(200)" json:"rtn_msg"`                              // 最近一次回调/查询的交易讯息
	PaymentType     string         `gorm:"type:varchar(50)" json:"payment_type"`                          // ECPay 回传的实际付款方式
	RawCallback     JSON           `gorm:"type:json" json:"raw_callback"`                                 // 最近一次回调原始数据
	BankCode        string         `gorm:"type:varchar(10)" json:"bank_code,omitempty"`                   // ATM 银行代码
	VirtualAccount  string         `gorm:"type:varchar(30)" json:"virtual_account,omitempty"`             // ATM 虚拟账号
	PaymentCode     string         `gorm:"type:varchar(30)" json:"payment_code,omitempty"`                // CVS 缴费代码
	Barcode1        string         `gorm:"type:varchar(30)" json:"barcode1,omitempty"`                    // 超商条码一段
	Barcode2        string         `gorm:"type:varchar(30)" json:"barcode2,omitempty"`                    // 超商条码二段
	Barcode3        string         `gorm:"type:varchar(30)" json:"barcode3,omitempty"`                    // 超商条码三段
	PaymentDeadline *time.Time     `gorm:"index" json:"payment_deadline,omitempty"`                       // 取号缴费期限
	FailReason      string         `gorm:"type:varchar(200)" json:"fail_reason,omitempty"`                // 失败原因
	CreatedAt       time.Time      `gorm:"index" json:"created_at"`                                       // 创建时间
	UpdatedAt       time.Time      `gorm:"index" json:"updated_at"`                                       // 更新时间
	PaidAt          *time.Time     `gorm:"index" json:"paid_at"`                                          // 支付完成时间
	CallbackAt      *time.Time     `gorm:"index" json:"callback_at"`                                      // 最近回调时间
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`                                                // 软删除时间

	Logs    []PaymentLog   `gorm:"foreignKey:PaymentID;references:ID" json:"logs,omitempty"`    // 支付日志
	Refunds []RefundRecord `gorm:"foreignKey:PaymentID;references:ID" json:"refunds,omitempty"` // 退款记录
}

// TableName 指定表名
func (Payment) TableName() string {
	return "payments"
}
