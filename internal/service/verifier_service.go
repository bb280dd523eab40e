package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"souq-crypto-pay/internal/apperr"
	"souq-crypto-pay/internal/chain"
	"souq-crypto-pay/internal/model"
	"souq-crypto-pay/internal/mq"
	"souq-crypto-pay/pkg/logger"
)

// VerifyResult 单笔订单的核验结果
type VerifyResult struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
	TxHash  string `json:"txHash"`
	Changed bool   `json:"-"`
}

// VerifierService 订单核验器：按币种分发到链客户端，归一化确认状态，
// 只推进待支付订单，终态订单不再触碰
type VerifierService struct {
	clients  map[string]chain.StatusClient
	orders   OrderStore
	logs     VerificationStore
	notifier Notifier
	timeout  time.Duration
}

func NewVerifierService(
	clients map[string]chain.StatusClient,
	orders OrderStore,
	logs VerificationStore,
	notifier Notifier,
	timeoutSec int,
) *VerifierService {
	return &VerifierService{
		clients:  clients,
		orders:   orders,
		logs:     logs,
		notifier: notifier,
		timeout:  time.Duration(timeoutSec) * time.Second,
	}
}

// VerifyOrder 核验单笔订单并返回新状态。
// 链上尚未确认时订单保持 pending，Changed 为 false；
// 上游错误原样向上抛，由调度器按单隔离，绝不折算成订单失败。
func (s *VerifierService) VerifyOrder(ctx context.Context, order *model.Order) (VerifyResult, error) {
	res := VerifyResult{OrderID: order.ID, Status: order.Status, TxHash: order.TxHash}

	// 终态订单不再核验，也不允许降级回 pending
	if order.IsTerminal() {
		return res, nil
	}
	// 未提交交易哈希的订单跳过，留在 pending
	if order.TxHash == "" {
		return res, nil
	}

	client, ok := s.clients[order.Crypto]
	if !ok {
		return res, apperr.ErrUnsupportedCurrency
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	status, err := client.GetTransactionStatus(cctx, order.TxHash)
	if err != nil {
		// 哈希非法是永久性错误，订单直接置失败
		if errors.Is(err, apperr.ErrInvalidTxHash) {
			return s.transition(ctx, order, model.OrderStatusFailed, model.FailReasonInvalidTxHash)
		}
		return res, err
	}

	switch status {
	case chain.TxStatusConfirmed:
		return s.transition(ctx, order, model.OrderStatusConfirmed, "")
	case chain.TxStatusFailed:
		return s.transition(ctx, order, model.OrderStatusFailed, model.FailReasonChainFailed)
	default:
		// 未确认：保持 pending，下个周期再查
		return res, nil
	}
}

// transition 条件写入新状态并记录、通知。
// 并发周期已经把订单写成终态时本次结果作废（写入 0 行）。
func (s *VerifierService) transition(ctx context.Context, order *model.Order, newStatus, failReason string) (VerifyResult, error) {
	res := VerifyResult{OrderID: order.ID, Status: order.Status, TxHash: order.TxHash}

	changed, err := s.orders.UpdateStatusIfPending(order.ID, newStatus, failReason)
	if err != nil {
		return res, err
	}
	if !changed {
		logger.Warn(ctx, "订单已被并发周期推进到终态，丢弃本次核验结果",
			zap.String("order_id", order.ID),
			zap.String("discarded_status", newStatus))
		return res, nil
	}

	res.Status = newStatus
	res.Changed = true

	if err := s.logs.Create(&model.VerificationLog{
		OrderID:   order.ID,
		TxHash:    order.TxHash,
		OldStatus: model.OrderStatusPending,
		NewStatus: newStatus,
		Detail:    failReason,
	}); err != nil {
		logger.Warn(ctx, "写入核验记录失败", zap.String("order_id", order.ID), zap.Error(err))
	}

	if err := s.notifier.PublishNotify(&mq.OrderNotifyMessage{
		OrderID:     order.ID,
		Crypto:      order.Crypto,
		Amount:      order.Amount.String(),
		AdminWallet: order.AdminWallet,
		Status:      newStatus,
		TxHash:      order.TxHash,
		FailReason:  failReason,
		Timestamp:   time.Now().Unix(),
	}); err != nil {
		logger.Warn(ctx, "发送状态变更通知失败", zap.String("order_id", order.ID), zap.Error(err))
	}

	logger.Info(ctx, "订单状态已更新",
		zap.String("order_id", order.ID),
		zap.String("status", newStatus),
		zap.String("tx_hash", order.TxHash))

	return res, nil
}
