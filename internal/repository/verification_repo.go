package repository

import (
	"gorm.io/gorm"

	"souq-crypto-pay/internal/apperr"
	"souq-crypto-pay/internal/model"
)

type VerificationRepository struct {
	db *gorm.DB
}

func NewVerificationRepository(db *gorm.DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// Create 追加一条核验记录
func (r *VerificationRepository) Create(log *model.VerificationLog) error {
	if err := r.db.Create(log).Error; err != nil {
		return apperr.NewPersistence("create_verification_log", err)
	}
	return nil
}

// ListByOrderID 查询某订单的全部核验记录（时间升序）
func (r *VerificationRepository) ListByOrderID(orderID string) ([]model.VerificationLog, error) {
	var logs []model.VerificationLog
	err := r.db.Where("order_id = ?", orderID).Order("created_at ASC").Find(&logs).Error
	if err != nil {
		return nil, apperr.NewPersistence("list_verification_logs", err)
	}
	return logs, nil
}
