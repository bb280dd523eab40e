package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"souq-crypto-pay/internal/apperr"
	"souq-crypto-pay/internal/chain"
	"souq-crypto-pay/internal/model"
)

func newTestVerifier(clients map[string]chain.StatusClient) (*VerifierService, *memOrderStore, *memVerificationStore, *memNotifier) {
	store := newMemOrderStore()
	logs := &memVerificationStore{}
	notifier := &memNotifier{}
	return NewVerifierService(clients, store, logs, notifier, 2), store, logs, notifier
}

func TestVerifyOrderConfirmed(t *testing.T) {
	verifier, store, logs, notifier := newTestVerifier(map[string]chain.StatusClient{
		model.CryptoETH: &stubClient{status: chain.TxStatusConfirmed},
	})
	order := pendingOrder(store, "o-1", model.CryptoETH, "0xabc")
	before, _ := store.FindByID("o-1")

	result, err := verifier.VerifyOrder(context.Background(), order)
	require.NoError(t, err)

	assert.True(t, result.Changed)
	assert.Equal(t, model.OrderStatusConfirmed, result.Status)
	assert.Equal(t, "0xabc", result.TxHash)

	// 状态已落库，updated_at 前移，tx_hash 保留
	saved, err := store.FindByID("o-1")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusConfirmed, saved.Status)
	assert.Equal(t, "0xabc", saved.TxHash)
	assert.False(t, saved.UpdatedAt.Before(before.UpdatedAt))

	// 写了核验记录并发出了通知
	assert.Equal(t, 1, logs.count())
	require.Equal(t, 1, notifier.notifyCount())
	assert.Equal(t, model.OrderStatusConfirmed, notifier.notifies[0].Status)
}

func TestVerifyOrderChainFailed(t *testing.T) {
	verifier, store, _, _ := newTestVerifier(map[string]chain.StatusClient{
		model.CryptoETH: &stubClient{status: chain.TxStatusFailed},
	})
	order := pendingOrder(store, "o-1", model.CryptoETH, "0xabc")

	result, err := verifier.VerifyOrder(context.Background(), order)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, model.OrderStatusFailed, result.Status)

	saved, _ := store.FindByID("o-1")
	assert.Equal(t, model.OrderStatusFailed, saved.Status)
	assert.Equal(t, model.FailReasonChainFailed, saved.FailReason)
}

func TestVerifyOrderUnconfirmedStaysPending(t *testing.T) {
	verifier, store, logs, notifier := newTestVerifier(map[string]chain.StatusClient{
		model.CryptoBTC: &stubClient{status: chain.TxStatusUnconfirmed},
	})
	order := pendingOrder(store, "o-1", model.CryptoBTC, "ff00")

	result, err := verifier.VerifyOrder(context.Background(), order)
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Equal(t, model.OrderStatusPending, result.Status)

	saved, _ := store.FindByID("o-1")
	assert.Equal(t, model.OrderStatusPending, saved.Status)
	assert.Equal(t, 0, logs.count())
	assert.Equal(t, 0, notifier.notifyCount())
}

func TestVerifyOrderTerminalNotRevisited(t *testing.T) {
	client := &stubClient{status: chain.TxStatusFailed}
	verifier, store, _, notifier := newTestVerifier(map[string]chain.StatusClient{
		model.CryptoETH: client,
	})
	order := pendingOrder(store, "o-1", model.CryptoETH, "0xabc")
	order.Status = model.OrderStatusConfirmed
	_, _ = store.UpdateStatusIfPending("o-1", model.OrderStatusConfirmed, "")

	result, err := verifier.VerifyOrder(context.Background(), order)
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Equal(t, model.OrderStatusConfirmed, result.Status)

	// 终态订单不允许被后续核验降级或改写
	saved, _ := store.FindByID("o-1")
	assert.Equal(t, model.OrderStatusConfirmed, saved.Status)
	assert.Equal(t, 0, notifier.notifyCount())
}

func TestVerifyOrderWithoutTxHashSkipped(t *testing.T) {
	verifier, store, _, _ := newTestVerifier(map[string]chain.StatusClient{
		model.CryptoETH: &stubClient{status: chain.TxStatusConfirmed},
	})
	order := pendingOrder(store, "o-1", model.CryptoETH, "")

	result, err := verifier.VerifyOrder(context.Background(), order)
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Equal(t, model.OrderStatusPending, result.Status)
}

func TestVerifyOrderUnsupportedCurrency(t *testing.T) {
	verifier, store, _, _ := newTestVerifier(map[string]chain.StatusClient{})
	order := pendingOrder(store, "o-1", "doge", "abc")

	_, err := verifier.VerifyOrder(context.Background(), order)
	assert.ErrorIs(t, err, apperr.ErrUnsupportedCurrency)

	saved, _ := store.FindByID("o-1")
	assert.Equal(t, model.OrderStatusPending, saved.Status)
}

func TestVerifyOrderInvalidTxHashFails(t *testing.T) {
	verifier, store, _, _ := newTestVerifier(map[string]chain.StatusClient{
		model.CryptoETH: &stubClient{err: apperr.ErrInvalidTxHash},
	})
	order := pendingOrder(store, "o-1", model.CryptoETH, "not-a-hash")

	result, err := verifier.VerifyOrder(context.Background(), order)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, model.OrderStatusFailed, result.Status)

	saved, _ := store.FindByID("o-1")
	assert.Equal(t, model.FailReasonInvalidTxHash, saved.FailReason)
}

func TestVerifyOrderUpstreamErrorPropagates(t *testing.T) {
	upstream := apperr.NewUpstream("eth", errors.New("连接超时"))
	verifier, store, logs, _ := newTestVerifier(map[string]chain.StatusClient{
		model.CryptoETH: &stubClient{err: upstream},
	})
	order := pendingOrder(store, "o-1", model.CryptoETH, "0xabc")

	_, err := verifier.VerifyOrder(context.Background(), order)
	require.Error(t, err)
	assert.True(t, apperr.IsUpstream(err))

	// 上游错误不落为订单失败，下个周期重试
	saved, _ := store.FindByID("o-1")
	assert.Equal(t, model.OrderStatusPending, saved.Status)
	assert.Equal(t, 0, logs.count())
}

func TestVerifyOrderStaleWriteDiscarded(t *testing.T) {
	verifier, store, logs, notifier := newTestVerifier(map[string]chain.StatusClient{
		model.CryptoETH: &stubClient{status: chain.TxStatusConfirmed},
	})
	// 构造过期快照：存储里已是终态，但传入的 order 还是 pending
	pendingOrder(store, "o-1", model.CryptoETH, "0xabc")
	_, _ = store.UpdateStatusIfPending("o-1", model.OrderStatusFailed, model.FailReasonExpired)
	stale := &model.Order{ID: "o-1", Crypto: model.CryptoETH, Status: model.OrderStatusPending, TxHash: "0xabc"}

	result, err := verifier.VerifyOrder(context.Background(), stale)
	require.NoError(t, err)
	assert.False(t, result.Changed)

	saved, _ := store.FindByID("o-1")
	assert.Equal(t, model.OrderStatusFailed, saved.Status)
	assert.Equal(t, 0, logs.count())
	assert.Equal(t, 0, notifier.notifyCount())
}
