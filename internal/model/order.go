package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 订单状态，confirmed / failed 为终态，不再发生任何迁移
const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusFailed    = "failed"
)

// 支持的币种（统一小写）
const (
	CryptoBTC  = "btc"
	CryptoETH  = "eth"
	CryptoUSDT = "usdt"
)

// 订单失败原因
const (
	FailReasonExpired       = "expired"
	FailReasonInvalidTxHash = "invalid_tx_hash"
	FailReasonChainFailed   = "chain_failed"
)

type Order struct {
	ID             string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	ExpectedAmount decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"expected_amount"`
	Crypto         string          `gorm:"type:varchar(8);not null;index" json:"crypto"`
	AdminWallet    string          `gorm:"type:varchar(64);not null" json:"admin_wallet"`
	CustomerEmail  string          `gorm:"type:varchar(128);not null" json:"customer_email"`
	CustomerName   string          `gorm:"type:varchar(64);default:''" json:"customer_name"`
	TxHash         string          `gorm:"type:varchar(128);default:''" json:"tx_hash"`
	Status         string          `gorm:"type:varchar(16);not null;default:'pending';index:idx_status_created" json:"status"`
	FailReason     string          `gorm:"type:varchar(32);default:''" json:"fail_reason"`
	CreatedAt      time.Time       `gorm:"autoCreateTime;index:idx_status_created" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

// IsTerminal 是否已到终态
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusConfirmed || o.Status == OrderStatusFailed
}

// SupportedCrypto 校验币种是否受支持（入参需已转小写）
func SupportedCrypto(crypto string) bool {
	switch crypto {
	case CryptoBTC, CryptoETH, CryptoUSDT:
		return true
	default:
		return false
	}
}
