package chain

import (
	"context"
)

// TxStatus 统一的交易确认状态。
// 各链客户端在边界处归一化为该枚举，不把链各自的编码透给上层。
type TxStatus uint8

const (
	TxStatusUnconfirmed TxStatus = iota // 未见到 / 未确认，继续轮询
	TxStatusConfirmed                   // 已确认
	TxStatusFailed                      // 链上执行失败
)

func (s TxStatus) String() string {
	switch s {
	case TxStatusUnconfirmed:
		return "unconfirmed"
	case TxStatusConfirmed:
		return "confirmed"
	case TxStatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StatusClient 链状态客户端接口，按币种注入到核验器
type StatusClient interface {
	// GetTransactionStatus 查询交易确认状态。
	// 哈希非法返回 apperr.ErrInvalidTxHash；
	// 上游不可达返回 *apperr.UpstreamError；
	// 链上未见到交易返回 (TxStatusUnconfirmed, nil)。
	GetTransactionStatus(ctx context.Context, txHash string) (TxStatus, error)
}
