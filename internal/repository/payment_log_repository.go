package repository

import (
	"github.com/maxim1976/eshop/internal/models"

	"gorm.io/gorm"
)

// PaymentLogRepository 支付日志数据访问接口
type PaymentLogRepository interface {
	Create(log *models.PaymentLog) error
	ListByPaymentID(paymentID uint) ([]models.PaymentLog, error)
	WithTx(tx *gorm.DB) *GormPaymentLogRepository
}

// GormPaymentLogRepository GORM 实现
type GormPaymentLogRepository struct {
	db *gorm.DB
}

// NewPaymentLogRepository 创建支付日志仓库
func NewPaymentLogRepository(db *gorm.DB) *GormPaymentLogRepository {
	return &GormPaymentLogRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPaymentLogRepository) WithTx(tx *gorm.DB) *GormPaymentLogRepository {
	if tx == nil {
		return r
	}
	return &GormPaymentLogRepository{db: tx}
}

// Create 创建日志记录
func (r *GormPaymentLogRepository) Create(log *models.PaymentLog) error {
	return r.db.Create(log).Error
}

// ListByPaymentID 按支付记录获取日志（时间正序）
func (r *GormPaymentLogRepository) ListByPaymentID(paymentID uint) ([]models.PaymentLog, error) {
	var logs []models.PaymentLog
	if err := r.db.Where("payment_id = ?", paymentID).Order("id asc").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
