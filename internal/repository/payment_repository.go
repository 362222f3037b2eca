package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/maxim1976/eshop/internal/constants"
	"github.com/maxim1976/eshop/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentRepository 支付数据访问接口
type PaymentRepository interface {
	Create(payment *models.Payment) error
	Update(payment *models.Payment) error
	GetByID(id uint) (*models.Payment, error)
	GetByPaymentID(paymentID string) (*models.Payment, error)
	GetByMerchantTradeNo(merchantTradeNo string) (*models.Payment, error)
	GetByMerchantTradeNoForUpdate(merchantTradeNo string) (*models.Payment, error)
	GetByIDForUpdate(id uint) (*models.Payment, error)
	GetByOrderID(orderID uint) (*models.Payment, error)
	ListStuckPending(before time.Time, limit int) ([]models.Payment, error)
	ListAdmin(filter PaymentListFilter) ([]models.Payment, int64, error)
	WithTx(tx *gorm.DB) *GormPaymentRepository
}

// GormPaymentRepository GORM 实现
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository 创建支付仓库
func NewPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPaymentRepository) WithTx(tx *gorm.DB) *GormPaymentRepository {
	if tx == nil {
		return r
	}
	return &GormPaymentRepository{db: tx}
}

// Create 创建支付记录
func (r *GormPaymentRepository) Create(payment *models.Payment) error {
	return r.db.Create(payment).Error
}

// Update 更新支付记录
func (r *GormPaymentRepository) Update(payment *models.Payment) error {
	return r.db.Save(payment).Error
}

// GetByID 根据主键获取支付记录
func (r *GormPaymentRepository) GetByID(id uint) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.First(&payment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// GetByPaymentID 根据对外支付编号获取支付记录
func (r *GormPaymentRepository) GetByPaymentID(paymentID string) (*models.Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, nil
	}
	var payment models.Payment
	result := r.db.Where("payment_id = ?", paymentID).Limit(1).Find(&payment)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &payment, nil
}

// GetByMerchantTradeNo 根据特店交易编号获取支付记录
func (r *GormPaymentRepository) GetByMerchantTradeNo(merchantTradeNo string) (*models.Payment, error) {
	merchantTradeNo = strings.TrimSpace(merchantTradeNo)
	if merchantTradeNo == "" {
		return nil, nil
	}
	var payment models.Payment
	result := r.db.Where("merchant_trade_no = ?", merchantTradeNo).Limit(1).Find(&payment)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &payment, nil
}

// GetByMerchantTradeNoForUpdate 行锁读取支付记录（需在事务内调用）
func (r *GormPaymentRepository) GetByMerchantTradeNoForUpdate(merchantTradeNo string) (*models.Payment, error) {
	merchantTradeNo = strings.TrimSpace(merchantTradeNo)
	if merchantTradeNo == "" {
		return nil, nil
	}
	var payment models.Payment
	result := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("merchant_trade_no = ?", merchantTradeNo).
		Limit(1).Find(&payment)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &payment, nil
}

// GetByIDForUpdate 行锁读取支付记录（需在事务内调用）
func (r *GormPaymentRepository) GetByIDForUpdate(id uint) (*models.Payment, error) {
	var payment models.Payment
	result := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Limit(1).Find(&payment)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &payment, nil
}

// GetByOrderID 获取订单对应的支付记录（一单一支付）
func (r *GormPaymentRepository) GetByOrderID(orderID uint) (*models.Payment, error) {
	if orderID == 0 {
		return nil, nil
	}
	var payment models.Payment
	result := r.db.Where("order_id = ?", orderID).Limit(1).Find(&payment)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &payment, nil
}

// ListStuckPending 获取超时未有回调的待支付记录，用于对账
func (r *GormPaymentRepository) ListStuckPending(before time.Time, limit int) ([]models.Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	var payments []models.Payment
	err := r.db.
		Where("status IN ? AND created_at < ?",
			[]string{constants.PaymentStatusPending, constants.PaymentStatusProcessing},
			before,
		).
		Order("id asc").Limit(limit).Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

// ListAdmin 管理端支付列表
func (r *GormPaymentRepository) ListAdmin(filter PaymentListFilter) ([]models.Payment, int64, error) {
	query := r.db.Model(&models.Payment{})

	if filter.OrderID != 0 {
		query = query.Where("order_id = ?", filter.OrderID)
	}
	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Method != "" {
		query = query.Where("method = ?", filter.Method)
	}
	if filter.MerchantTradeNo != "" {
		query = query.Where("merchant_trade_no = ?", filter.MerchantTradeNo)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var payments []models.Payment
	if err := query.Order("id desc").Find(&payments).Error; err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}
