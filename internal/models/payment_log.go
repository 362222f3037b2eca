package models

import "time"

// PaymentLog 支付日志（请求/回调/错误均落库，便于对账排查）
type PaymentLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`            // 主键
	PaymentID uint      `gorm:"index;not null" json:"payment_id"` // 支付记录ID
	LogType   string    `gorm:"index;not null" json:"log_type"`  // 日志类型（request/response/callback/error/info）
	Message   string    `gorm:"type:varchar(500)" json:"message"` // 摘要信息
	Payload   JSON      `gorm:"type:json" json:"payload"`        // 原始数据
	ClientIP  string    `gorm:"type:varchar(45)" json:"client_ip,omitempty"`   // 来源IP
	UserAgent string    `gorm:"type:varchar(500)" json:"user_agent,omitempty"` // 来源 User-Agent
	CreatedAt time.Time `gorm:"index" json:"created_at"`         // 创建时间
}

// TableName 指定表名
func (PaymentLog) TableName() string {
	return "payment_logs"
}
