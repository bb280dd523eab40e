package service

import (
	"time"

	"souq-crypto-pay/internal/model"
	"souq-crypto-pay/internal/mq"
)

// OrderStore 订单存储能力，由 repository.OrderRepository 实现
type OrderStore interface {
	Create(order *model.Order) error
	FindByID(orderID string) (*model.Order, error)
	SetTxHash(orderID, txHash string) error
	UpdateStatusIfPending(orderID, status, failReason string) (bool, error)
	ListPending(window time.Duration) ([]model.Order, error)
}

// VerificationStore 核验记录存储能力
type VerificationStore interface {
	Create(log *model.VerificationLog) error
}

// Notifier 订单事件通知能力，由 mq.RabbitMQ 实现
type Notifier interface {
	PublishNotify(msg *mq.OrderNotifyMessage) error
	PublishDelay(orderID string) error
}
