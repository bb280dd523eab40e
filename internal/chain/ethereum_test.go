package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"souq-crypto-pay/internal/apperr"
)

const (
	testTxHash   = "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"
	testContract = "0xdAC17F958D2ee523a2206206994597C13D831ec7"
	testReceiver = "0x1111111111111111111111111111111111111111"
)

// fakeRPC 固定返回预设回执或错误
type fakeRPC struct {
	receipt *types.Receipt
	err     error
}

func (f *fakeRPC) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return f.receipt, f.err
}

func successReceipt() *types.Receipt {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}
}

// transferLog 构造一条 ERC-20 Transfer 事件日志
func transferLog(contract, to string) *types.Log {
	return &types.Log{
		Address: common.HexToAddress(contract),
		Topics: []common.Hash{
			common.HexToHash(TransferEventHash),
			common.HexToHash("0x00000000000000000000000000000000000000000000000000000000000000aa"),
			common.HexToHash(common.HexToAddress(to).Hex()),
		},
	}
}

func TestEthereumGetTransactionStatus(t *testing.T) {
	tests := []struct {
		name    string
		rpc     *fakeRPC
		want    TxStatus
		wantErr error
	}{
		{
			name: "回执成功即确认",
			rpc:  &fakeRPC{receipt: successReceipt()},
			want: TxStatusConfirmed,
		},
		{
			name: "回执失败判定为失败",
			rpc:  &fakeRPC{receipt: &types.Receipt{Status: types.ReceiptStatusFailed}},
			want: TxStatusFailed,
		},
		{
			name: "未出块保持未确认",
			rpc:  &fakeRPC{err: ethereum.NotFound},
			want: TxStatusUnconfirmed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newEthereumClientWithRPC(tt.rpc)
			status, err := client.GetTransactionStatus(context.Background(), testTxHash)
			require.NoError(t, err)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestEthereumInvalidTxHash(t *testing.T) {
	client := newEthereumClientWithRPC(&fakeRPC{receipt: successReceipt()})

	for _, hash := range []string{"not-a-hash", "0x1234", "5c504ed432cb"} {
		_, err := client.GetTransactionStatus(context.Background(), hash)
		assert.ErrorIs(t, err, apperr.ErrInvalidTxHash, "hash: %s", hash)
	}
}

func TestEthereumUpstreamError(t *testing.T) {
	client := newEthereumClientWithRPC(&fakeRPC{err: errors.New("节点连接被拒绝")})

	_, err := client.GetTransactionStatus(context.Background(), testTxHash)
	require.Error(t, err)
	assert.True(t, apperr.IsUpstream(err))
}

func TestTokenTransferStatus(t *testing.T) {
	contract := common.HexToAddress(testContract)
	receiver := common.HexToAddress(testReceiver)

	tests := []struct {
		name    string
		receipt *types.Receipt
		want    TxStatus
	}{
		{
			name: "匹配到打款事件即确认",
			receipt: &types.Receipt{
				Status: types.ReceiptStatusSuccessful,
				Logs:   []*types.Log{transferLog(testContract, testReceiver)},
			},
			want: TxStatusConfirmed,
		},
		{
			name: "收款方不是我们的钱包",
			receipt: &types.Receipt{
				Status: types.ReceiptStatusSuccessful,
				Logs:   []*types.Log{transferLog(testContract, "0x9999999999999999999999999999999999999999")},
			},
			want: TxStatusFailed,
		},
		{
			name: "事件来自别的合约",
			receipt: &types.Receipt{
				Status: types.ReceiptStatusSuccessful,
				Logs:   []*types.Log{transferLog("0x8888888888888888888888888888888888888888", testReceiver)},
			},
			want: TxStatusFailed,
		},
		{
			name:    "交易成功但没有任何事件",
			receipt: successReceipt(),
			want:    TxStatusFailed,
		},
		{
			name:    "回执失败直接判失败",
			receipt: &types.Receipt{Status: types.ReceiptStatusFailed},
			want:    TxStatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tokenTransferStatus(tt.receipt, contract, receiver))
		})
	}
}

func TestTokenClientStatus(t *testing.T) {
	eth := newEthereumClientWithRPC(&fakeRPC{receipt: &types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		Logs:   []*types.Log{transferLog(testContract, testReceiver)},
	}})
	client := NewTokenClient(eth, testContract, testReceiver)

	status, err := client.GetTransactionStatus(context.Background(), testTxHash)
	require.NoError(t, err)
	assert.Equal(t, TxStatusConfirmed, status)
}

func TestTokenClientUnconfirmedWhileNotMined(t *testing.T) {
	eth := newEthereumClientWithRPC(&fakeRPC{err: ethereum.NotFound})
	client := NewTokenClient(eth, testContract, testReceiver)

	status, err := client.GetTransactionStatus(context.Background(), testTxHash)
	require.NoError(t, err)
	assert.Equal(t, TxStatusUnconfirmed, status)
}
