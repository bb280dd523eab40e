package chain

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"souq-crypto-pay/internal/apperr"
)

// ERC-20 Transfer 事件哈希: Keccak256("Transfer(address,address,uint256)")
const TransferEventHash = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

// receiptGetter 回执查询能力，ethclient.Client 实现该接口
type receiptGetter interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// EthereumClient 账户链状态客户端，基于交易回执判定确认状态
type EthereumClient struct {
	rpc receiptGetter
}

var _ StatusClient = (*EthereumClient)(nil)

func NewEthereumClient(rpcURL string) (*EthereumClient, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, err
	}
	return &EthereumClient{rpc: client}, nil
}

// newEthereumClientWithRPC 注入自定义回执来源，测试用
func newEthereumClientWithRPC(rpc receiptGetter) *EthereumClient {
	return &EthereumClient{rpc: rpc}
}

func (c *EthereumClient) GetTransactionStatus(ctx context.Context, txHash string) (TxStatus, error) {
	receipt, err := c.fetchReceipt(ctx, txHash)
	if err != nil || receipt == nil {
		return TxStatusUnconfirmed, err
	}
	return statusFromReceipt(receipt), nil
}

// GetTokenTransferStatus 核验代币转账：回执必须成功，且包含目标合约上
// 收款方为 receiver 的 Transfer 事件。已出块但不匹配按失败处理。
func (c *EthereumClient) GetTokenTransferStatus(ctx context.Context, txHash, contract, receiver string) (TxStatus, error) {
	receipt, err := c.fetchReceipt(ctx, txHash)
	if err != nil || receipt == nil {
		return TxStatusUnconfirmed, err
	}
	return tokenTransferStatus(receipt, common.HexToAddress(contract), common.HexToAddress(receiver)), nil
}

// fetchReceipt 拉取回执。返回 (nil, nil) 表示交易尚未出块。
func (c *EthereumClient) fetchReceipt(ctx context.Context, txHash string) (*types.Receipt, error) {
	b, err := hexutil.Decode(txHash)
	if err != nil || len(b) != common.HashLength {
		return nil, apperr.ErrInvalidTxHash
	}

	receipt, err := c.rpc.TransactionReceipt(ctx, common.BytesToHash(b))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		return nil, apperr.NewUpstream("eth", err)
	}
	return receipt, nil
}

// statusFromReceipt 回执成功标志归一化为统一状态
func statusFromReceipt(receipt *types.Receipt) TxStatus {
	if receipt.Status == types.ReceiptStatusSuccessful {
		return TxStatusConfirmed
	}
	return TxStatusFailed
}

// tokenTransferStatus 在回执日志中匹配 Transfer(合约, *, receiver)
func tokenTransferStatus(receipt *types.Receipt, contract, receiver common.Address) TxStatus {
	if receipt.Status != types.ReceiptStatusSuccessful {
		return TxStatusFailed
	}

	for _, log := range receipt.Logs {
		if log.Address != contract {
			continue
		}
		if len(log.Topics) != 3 || log.Topics[0].Hex() != TransferEventHash {
			continue
		}
		// Topic[2] 是收款方
		to := common.HexToAddress(log.Topics[2].Hex())
		if strings.EqualFold(to.Hex(), receiver.Hex()) {
			return TxStatusConfirmed
		}
	}

	// 交易成功但没有打到我们钱包的转账事件
	return TxStatusFailed
}

// TokenClient 代币转账状态客户端，把 ERC-20 核验适配成 StatusClient
type TokenClient struct {
	eth      *EthereumClient
	contract string
	receiver string
}

var _ StatusClient = (*TokenClient)(nil)

func NewTokenClient(eth *EthereumClient, contract, receiver string) *TokenClient {
	return &TokenClient{eth: eth, contract: contract, receiver: receiver}
}

func (c *TokenClient) GetTransactionStatus(ctx context.Context, txHash string) (TxStatus, error) {
	return c.eth.GetTokenTransferStatus(ctx, txHash, c.contract, c.receiver)
}
