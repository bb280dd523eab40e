package chain

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"souq-crypto-pay/internal/apperr"
	"souq-crypto-pay/pkg/esplora"
)

const testBtcTxid = "f4184fc596403b9d638783cf57adfe4c75c605f6356fbc91338530e9831e9e16"

func newBitcoinTestClient(t *testing.T, handler http.HandlerFunc) *BitcoinClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewBitcoinClient(esplora.NewClient(srv.URL, ""))
}

func TestBitcoinConfirmed(t *testing.T) {
	client := newBitcoinTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tx/"+testBtcTxid+"/status", r.URL.Path)
		w.Write([]byte(`{"confirmed":true,"block_height":170,"block_hash":"00000000d1145790a8694403d4063f323d499e655c83426834d4ce2f8dd4a2ee","block_time":1231731025}`))
	})

	status, err := client.GetTransactionStatus(context.Background(), testBtcTxid)
	require.NoError(t, err)
	assert.Equal(t, TxStatusConfirmed, status)
}

func TestBitcoinUnconfirmedInMempool(t *testing.T) {
	client := newBitcoinTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"confirmed":false}`))
	})

	status, err := client.GetTransactionStatus(context.Background(), testBtcTxid)
	require.NoError(t, err)
	assert.Equal(t, TxStatusUnconfirmed, status)
}

func TestBitcoinTxNotIndexed(t *testing.T) {
	client := newBitcoinTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	// 浏览器未收录不是错误，下个周期继续查
	status, err := client.GetTransactionStatus(context.Background(), testBtcTxid)
	require.NoError(t, err)
	assert.Equal(t, TxStatusUnconfirmed, status)
}

func TestBitcoinUpstreamError(t *testing.T) {
	client := newBitcoinTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.GetTransactionStatus(context.Background(), testBtcTxid)
	require.Error(t, err)
	assert.True(t, apperr.IsUpstream(err))
}

func TestBitcoinInvalidTxHash(t *testing.T) {
	called := false
	client := newBitcoinTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	// 非法哈希不应产生任何外部请求
	_, err := client.GetTransactionStatus(context.Background(), "zz-not-hex")
	assert.ErrorIs(t, err, apperr.ErrInvalidTxHash)
	assert.False(t, called)
}
