package models

import (
	"time"

	"gorm.io/gorm"
)

// Order 订单表（支付模块的协作方，仅关心金额与付款状态）
type Order struct {
	ID            uint           `gorm:"primarykey" json:"id"`                                      // 主键
	OrderNo       string         `gorm:"uniqueIndex;not null" json:"order_no"`                      // 订单编号
	UserID        uint           `gorm:"index;not null" json:"user_id"`                             // 用户ID
	Currency      string         `gorm:"not null;default:TWD" json:"currency"`                      // 币种
	TotalAmount   Money          `gorm:"type:decimal(20,2);not null;default:0" json:"total_amount"` // 实付金额
	PaymentStatus string         `gorm:"index;not null" json:"payment_status"`                      // 付款状态
	PaidAt        *time.Time     `gorm:"index" json:"paid_at"`                                      // 支付时间
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`                                   // 创建时间
	UpdatedAt     time.Time      `gorm:"index" json:"updated_at"`                                   // 更新时间
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`                                            // 软删除时间

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"` // 订单项
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}
