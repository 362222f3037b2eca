package repository

import "time"

// PaymentListFilter 查询支付列表的过滤条件
type PaymentListFilter struct {
	Page            int
	PageSize        int
	OrderID         uint
	UserID          uint
	Status          string
	Method          string
	MerchantTradeNo string
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
}

// RefundListFilter 查询退款列表的过滤条件
type RefundListFilter struct {
	Page      int
	PageSize  int
	PaymentID uint
	Status    string
}
