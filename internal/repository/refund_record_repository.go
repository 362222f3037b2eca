package repository

import (
	"errors"
	"strings"

	"github.com/maxim1976/eshop/internal/constants"
	"github.com/maxim1976/eshop/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RefundRecordRepository 退款记录数据访问接口
type RefundRecordRepository interface {
	Create(record *models.RefundRecord) error
	Update(record *models.RefundRecord) error
	GetByID(id uint) (*models.RefundRecord, error)
	GetByRefundID(refundID string) (*models.RefundRecord, error)
	GetByRefundIDForUpdate(refundID string) (*models.RefundRecord, error)
	ListByPaymentID(paymentID uint) ([]models.RefundRecord, error)
	HasActiveByPaymentID(paymentID uint) (bool, error)
	List(filter RefundListFilter) ([]models.RefundRecord, int64, error)
	WithTx(tx *gorm.DB) *GormRefundRecordRepository
}

// GormRefundRecordRepository GORM 实现
type GormRefundRecordRepository struct {
	db *gorm.DB
}

// NewRefundRecordRepository 创建退款记录仓库
func NewRefundRecordRepository(db *gorm.DB) *GormRefundRecordRepository {
	return &GormRefundRecordRepository{db: db}
}

// WithTx 绑定事务
func (r *GormRefundRecordRepository) WithTx(tx *gorm.DB) *GormRefundRecordRepository {
	if tx == nil {
		return r
	}
	return &GormRefundRecordRepository{db: tx}
}

// Create 创建退款记录
func (r *GormRefundRecordRepository) Create(record *models.RefundRecord) error {
	return r.db.Create(record).Error
}

// Update 更新退款记录
func (r *GormRefundRecordRepository) Update(record *models.RefundRecord) error {
	return r.db.Save(record).Error
}

// GetByID 根据主键获取退款记录
func (r *GormRefundRecordRepository) GetByID(id uint) (*models.RefundRecord, error) {
	var record models.RefundRecord
	if err := r.db.First(&record, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// GetByRefundID 根据对外退款编号获取退款记录
func (r *GormRefundRecordRepository) GetByRefundID(refundID string) (*models.RefundRecord, error) {
	refundID = strings.TrimSpace(refundID)
	if refundID == "" {
		return nil, nil
	}
	var record models.RefundRecord
	result := r.db.Where("refund_id = ?", refundID).Limit(1).Find(&record)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &record, nil
}

// GetByRefundIDForUpdate 行锁读取退款记录（需在事务内调用）
func (r *GormRefundRecordRepository) GetByRefundIDForUpdate(refundID string) (*models.RefundRecord, error) {
	refundID = strings.TrimSpace(refundID)
	if refundID == "" {
		return nil, nil
	}
	var record models.RefundRecord
	result := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("refund_id = ?", refundID).
		Limit(1).Find(&record)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &record, nil
}

// ListByPaymentID 按支付记录获取退款记录
func (r *GormRefundRecordRepository) ListByPaymentID(paymentID uint) ([]models.RefundRecord, error) {
	var records []models.RefundRecord
	if err := r.db.Where("payment_id = ?", paymentID).Order("id asc").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// HasActiveByPaymentID 判断支付是否存在进行中的退款
func (r *GormRefundRecordRepository) HasActiveByPaymentID(paymentID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.RefundRecord{}).
		Where("payment_id = ? AND status IN ?",
			paymentID,
			[]string{constants.RefundStatusPending, constants.RefundStatusProcessing},
		).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// List 退款记录列表
func (r *GormRefundRecordRepository) List(filter RefundListFilter) ([]models.RefundRecord, int64, error) {
	query := r.db.Model(&models.RefundRecord{})
	if filter.PaymentID != 0 {
		query = query.Where("payment_id = ?", filter.PaymentID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var records []models.RefundRecord
	if err := query.Order("id desc").Find(&records).Error; err != nil {
		return nil, 0, err
	}
	return records, total, nil
}
