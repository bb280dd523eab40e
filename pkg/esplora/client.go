package esplora

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TxStatus Esplora /tx/{txid}/status 响应
type TxStatus struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight int64  `json:"block_height"`
	BlockHash   string `json:"block_hash"`
	BlockTime   int64  `json:"block_time"`
}

// Client Esplora 风格区块浏览器 HTTP 客户端
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient 创建浏览器客户端，apiKey 可为空（仅影响限流）
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetTxStatus 查询交易确认状态。
// 链上尚未见到该交易时返回 (nil, nil)，由调用方继续轮询。
func (c *Client) GetTxStatus(ctx context.Context, txid string) (*TxStatus, error) {
	url := fmt.Sprintf("%s/tx/%s/status", c.baseURL, txid)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求区块浏览器失败: %w", err)
	}
	defer resp.Body.Close()

	// 交易未被浏览器收录（未广播或仍在传播）
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("区块浏览器返回错误状态码: %d, body: %s", resp.StatusCode, string(body))
	}

	var result TxStatus
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}

	return &result, nil
}
