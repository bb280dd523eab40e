package esplora

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTxid = "f4184fc596403b9d638783cf57adfe4c75c605f6356fbc91338530e9831e9e16"

func TestGetTxStatusConfirmed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tx/"+testTxid+"/status", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Write([]byte(`{"confirmed":true,"block_height":170,"block_hash":"00000000d1145790a8694403d4063f323d499e655c83426834d4ce2f8dd4a2ee","block_time":1231731025}`))
	}))
	defer srv.Close()

	status, err := NewClient(srv.URL, "").GetTxStatus(context.Background(), testTxid)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.True(t, status.Confirmed)
	assert.Equal(t, int64(170), status.BlockHeight)
	assert.Equal(t, int64(1231731025), status.BlockTime)
}

func TestGetTxStatusNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	// 未收录的交易返回 (nil, nil)，交给调用方继续轮询
	status, err := NewClient(srv.URL, "").GetTxStatus(context.Background(), testTxid)
	require.NoError(t, err)
	assert.Nil(t, status)
}

func TestGetTxStatusSendsAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"confirmed":false}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "test-key").GetTxStatus(context.Background(), testTxid)
	require.NoError(t, err)
}

func TestGetTxStatusServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").GetTxStatus(context.Background(), testTxid)
	assert.Error(t, err)
}

func TestGetTxStatusBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").GetTxStatus(context.Background(), testTxid)
	assert.Error(t, err)
}
