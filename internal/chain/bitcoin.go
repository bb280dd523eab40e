package chain

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"souq-crypto-pay/internal/apperr"
	"souq-crypto-pay/pkg/esplora"
)

// BitcoinClient UTXO 链状态客户端，走 Esplora 风格浏览器 API
type BitcoinClient struct {
	explorer *esplora.Client
}

var _ StatusClient = (*BitcoinClient)(nil)

func NewBitcoinClient(explorer *esplora.Client) *BitcoinClient {
	return &BitcoinClient{explorer: explorer}
}

func (c *BitcoinClient) GetTransactionStatus(ctx context.Context, txHash string) (TxStatus, error) {
	// 哈希格式非法属于永久性错误，不必打到浏览器
	if _, err := chainhash.NewHashFromStr(txHash); err != nil {
		return TxStatusUnconfirmed, apperr.ErrInvalidTxHash
	}

	status, err := c.explorer.GetTxStatus(ctx, txHash)
	if err != nil {
		return TxStatusUnconfirmed, apperr.NewUpstream("btc", err)
	}

	// 未收录或未出块都按未确认处理，下个周期再查
	if status == nil || !status.Confirmed {
		return TxStatusUnconfirmed, nil
	}
	return TxStatusConfirmed, nil
}
