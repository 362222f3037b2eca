package models

import (
	"time"

	"gorm.io/gorm"
)

// RefundRecord 退款记录
type RefundRecord struct {
	ID             uint           `gorm:"primarykey" json:"id"`                                   // 主键
	RefundID       string         `gorm:"uniqueIndex;not null;type:varchar(32)" json:"refund_id"` // 对外退款编号（REF-YYYYMMDD-XXXXX）
	PaymentID      uint           `gorm:"index;not null" json:"payment_id"`                       // 支付记录ID
	Amount         Money          `gorm:"type:decimal(20,2);not null" json:"amount"`              // 退款金额
	Status         string         `gorm:"index;not null" json:"status"`                           // 退款状态
	Reason         string         `gorm:"type:varchar(200)" json:"reason"`                        // 退款原因
	GatewayRtnCode string         `gorm:"type:varchar(16)" json:"gateway_rtn_code,omitempty"`     // 网关退款返回代码
	GatewayRtnMsg  string         `gorm:"type:varchar(200)" json:"gateway_rtn_msg,omitempty"`     // 网关退款返回讯息
	RequestedBy    string         `gorm:"type:varchar(100)" json:"requested_by,omitempty"`        // 发起人
	CompletedAt    *time.Time     `gorm:"index" json:"completed_at,omitempty"`                    // 完成时间
	CreatedAt      time.Time      `gorm:"index" json:"created_at"`                                // 创建时间
	UpdatedAt      time.Time      `gorm:"index" json:"updated_at"`                                // 更新时间
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`                                         // 软删除时间
}

// TableName 指定表名
func (RefundRecord) TableName() string {
	return "refund_records"
}
