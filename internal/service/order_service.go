package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"souq-crypto-pay/internal/apperr"
	"souq-crypto-pay/internal/model"
	"souq-crypto-pay/internal/mq"
	"souq-crypto-pay/pkg/logger"
)

// ExpireConsumer 过期消息消费能力，由 mq.RabbitMQ 实现
type ExpireConsumer interface {
	IsConnected() bool
	ConsumeExpire() (<-chan amqp.Delivery, error)
}

// CreateOrderInput 创建订单入参
type CreateOrderInput struct {
	Amount        decimal.Decimal
	Crypto        string
	CustomerEmail string
	CustomerName  string
}

type OrderService struct {
	orders   OrderStore
	logs     VerificationStore
	verifier *VerifierService
	notifier Notifier
	consumer ExpireConsumer
	wallets  map[string]string // 币种 -> 收款钱包
}

func NewOrderService(
	orders OrderStore,
	logs VerificationStore,
	verifier *VerifierService,
	notifier Notifier,
	consumer ExpireConsumer,
	wallets map[string]string,
) *OrderService {
	return &OrderService{
		orders:   orders,
		logs:     logs,
		verifier: verifier,
		notifier: notifier,
		consumer: consumer,
		wallets:  wallets,
	}
}

// CreateOrder 创建支付订单：校验入参，币种统一小写，按币种解析收款钱包
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*model.Order, error) {
	if in.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, apperr.NewValidation("amount", "金额必须大于 0")
	}
	if strings.TrimSpace(in.CustomerEmail) == "" {
		return nil, apperr.NewValidation("customerEmail", "邮箱不能为空")
	}

	crypto := strings.ToLower(strings.TrimSpace(in.Crypto))
	if !model.SupportedCrypto(crypto) {
		return nil, apperr.ErrUnsupportedCurrency
	}

	wallet, ok := s.wallets[crypto]
	if !ok || wallet == "" {
		return nil, apperr.ErrUnsupportedCurrency
	}

	order := &model.Order{
		ID:             uuid.NewString(),
		Amount:         in.Amount,
		ExpectedAmount: in.Amount,
		Crypto:         crypto,
		AdminWallet:    wallet,
		CustomerEmail:  in.CustomerEmail,
		CustomerName:   in.CustomerName,
		Status:         model.OrderStatusPending,
	}

	if err := s.orders.Create(order); err != nil {
		return nil, err
	}

	// 发送延时消息用于过期检查，失败不影响下单
	if err := s.notifier.PublishDelay(order.ID); err != nil {
		logger.Warn(ctx, "发送延时消息失败", zap.String("order_id", order.ID), zap.Error(err))
	}

	logger.Info(ctx, "订单创建成功",
		zap.String("order_id", order.ID),
		zap.String("crypto", order.Crypto),
		zap.String("amount", order.Amount.String()))

	return order, nil
}

// CheckPayment 记录用户提交的交易哈希并立即核验一次。
// 链上尚未见到交易时返回 apperr.ErrTxNotFound，订单保持 pending 继续轮询。
func (s *OrderService) CheckPayment(ctx context.Context, orderID, cryptoIn, txHash string) (*model.Order, error) {
	crypto := strings.ToLower(strings.TrimSpace(cryptoIn))
	if !model.SupportedCrypto(crypto) {
		return nil, apperr.ErrUnsupportedCurrency
	}

	order, err := s.orders.FindByID(orderID)
	if err != nil {
		return nil, err
	}

	// 订单币种由创建时决定，请求不能改写
	if order.Crypto != crypto {
		return nil, apperr.NewValidation("crypto", "与订单币种不一致")
	}

	// 终态订单直接返回当前状态，不再核验
	if order.IsTerminal() {
		return order, nil
	}

	if order.TxHash == "" {
		if err := s.orders.SetTxHash(order.ID, txHash); err != nil {
			return nil, err
		}
		order.TxHash = txHash
	} else if order.TxHash != txHash {
		return nil, apperr.NewValidation("txHash", "与已提交的交易哈希不一致")
	}

	result, err := s.verifier.VerifyOrder(ctx, order)
	if err != nil {
		return nil, err
	}

	// 仍为 pending 说明链上还查不到该交易
	if result.Status == model.OrderStatusPending {
		return nil, apperr.ErrTxNotFound
	}

	order.Status = result.Status
	return order, nil
}

// HandleExpiredOrder 处理过期订单（由 MQ 消费者调用）：
// 仍为待支付的订单置为失败，原因 expired
func (s *OrderService) HandleExpiredOrder(ctx context.Context, orderID string) error {
	order, err := s.orders.FindByID(orderID)
	if err != nil {
		// 订单不存在视为已处理
		if errors.Is(err, apperr.ErrOrderNotFound) {
			return nil
		}
		return err
	}

	if order.IsTerminal() {
		return nil
	}

	changed, err := s.orders.UpdateStatusIfPending(order.ID, model.OrderStatusFailed, model.FailReasonExpired)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	if err := s.logs.Create(&model.VerificationLog{
		OrderID:   order.ID,
		TxHash:    order.TxHash,
		OldStatus: model.OrderStatusPending,
		NewStatus: model.OrderStatusFailed,
		Detail:    model.FailReasonExpired,
	}); err != nil {
		logger.Warn(ctx, "写入核验记录失败", zap.String("order_id", order.ID), zap.Error(err))
	}

	if err := s.notifier.PublishNotify(&mq.OrderNotifyMessage{
		OrderID:     order.ID,
		Crypto:      order.Crypto,
		Amount:      order.Amount.String(),
		AdminWallet: order.AdminWallet,
		Status:      model.OrderStatusFailed,
		TxHash:      order.TxHash,
		FailReason:  model.FailReasonExpired,
		Timestamp:   time.Now().Unix(),
	}); err != nil {
		logger.Warn(ctx, "发送过期通知失败", zap.String("order_id", order.ID), zap.Error(err))
	}

	logger.Info(ctx, "订单已过期", zap.String("order_id", order.ID))
	return nil
}

// StartExpireConsumer 启动过期消息消费者（支持自动重连后重新订阅）
func (s *OrderService) StartExpireConsumer(ctx context.Context) {
	go s.runExpireConsumer(ctx)
	logger.Info(ctx, "过期消息消费者已启动")
}

// runExpireConsumer 运行消费者，支持重连后重新订阅
func (s *OrderService) runExpireConsumer(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "过期消费者已停止")
			return
		default:
		}

		// 等待 MQ 连接就绪
		if !s.consumer.IsConnected() {
			time.Sleep(time.Second)
			continue
		}

		msgs, err := s.consumer.ConsumeExpire()
		if err != nil {
			logger.Warn(ctx, "订阅过期队列失败，等待重连", zap.Error(err))
			time.Sleep(2 * time.Second)
			continue
		}

		logger.Info(ctx, "过期队列消费者订阅成功")

		// 消费消息，直到通道关闭
		s.consumeMessages(ctx, msgs)

		// 通道关闭后等待一段时间再重新订阅，避免频繁重试
		logger.Warn(ctx, "过期消费通道已关闭，等待重连")
		time.Sleep(2 * time.Second)
	}
}

// consumeMessages 消费消息，直到 ctx 取消或通道关闭
func (s *OrderService) consumeMessages(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				// 通道关闭，返回让外层重新订阅
				return
			}

			var data struct {
				OrderID string `json:"order_id"`
			}
			if err := json.Unmarshal(msg.Body, &data); err != nil {
				logger.Warn(ctx, "解析过期消息失败", zap.Error(err))
				msg.Nack(false, false)
				continue
			}

			if err := s.HandleExpiredOrder(ctx, data.OrderID); err != nil {
				logger.Warn(ctx, "处理过期订单失败", zap.String("order_id", data.OrderID), zap.Error(err))
				msg.Nack(false, true) // requeue
				continue
			}

			msg.Ack(false)
		}
	}
}
