package model

import (
	"time"
)

// VerificationLog 核验记录，订单每次状态迁移追加一条
type VerificationLog struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   string    `gorm:"type:varchar(36);not null;index" json:"order_id"`
	TxHash    string    `gorm:"type:varchar(128);default:''" json:"tx_hash"`
	OldStatus string    `gorm:"type:varchar(16);not null" json:"old_status"`
	NewStatus string    `gorm:"type:varchar(16);not null" json:"new_status"`
	Detail    string    `gorm:"type:varchar(128);default:''" json:"detail"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (VerificationLog) TableName() string {
	return "verification_logs"
}
