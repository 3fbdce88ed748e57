package funding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	defaultFaucetTimeout      = 60 * time.Second
	defaultFaucetPollInterval = 2 * time.Second
)

// FaucetConfig 描述测试网水龙头服务的访问方式。
type FaucetConfig struct {
	BaseURL      string
	Timeout      time.Duration
	PollInterval time.Duration
}

// FaucetClient 通过 HTTP 调用测试网水龙头完成充值。
type FaucetClient struct {
	baseURL      string
	pollInterval time.Duration
	httpClient   *http.Client
}

// NewFaucetClient 根据配置创建水龙头客户端。
func NewFaucetClient(cfg FaucetConfig) (*FaucetClient, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("未提供水龙头服务地址")
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultFaucetTimeout
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultFaucetPollInterval
	}

	return &FaucetClient{
		baseURL:      baseURL,
		pollInterval: pollInterval,
		httpClient:   &http.Client{Timeout: timeout},
	}, nil
}

// RequestTopUp 发起一次充值请求，返回可等待的挂起操作。
func (c *FaucetClient) RequestTopUp(ctx context.Context, account common.Address) (PendingTopUp, error) {
	payload, err := json.Marshal(map[string]string{"address": account.Hex()})
	if err != nil {
		return nil, fmt.Errorf("序列化水龙头请求失败: %w", err)
	}

	endpoint := c.baseURL + "/fund"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("构建水龙头请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("请求水龙头失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("水龙头返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		OperationID string `json:"operation_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("解析水龙头响应失败: %w", err)
	}
	if strings.TrimSpace(decoded.OperationID) == "" {
		return nil, errors.New("水龙头响应缺少 operation_id")
	}

	return &faucetOperation{client: c, operationID: decoded.OperationID}, nil
}

// faucetOperation 代表水龙头侧一次挂起的充值。
type faucetOperation struct {
	client      *FaucetClient
	operationID string
}

// Await 轮询水龙头直到该充值操作完成或失败。
func (op *faucetOperation) Await(ctx context.Context) error {
	ticker := time.NewTicker(op.client.pollInterval)
	defer ticker.Stop()

	for {
		status, err := op.client.operationStatus(ctx, op.operationID)
		if err != nil {
			return err
		}
		switch status {
		case "completed":
			return nil
		case "failed":
			return fmt.Errorf("水龙头操作 %s 失败", op.operationID)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *FaucetClient) operationStatus(ctx context.Context, operationID string) (string, error) {
	endpoint := c.baseURL + "/operations/" + operationID
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("构建状态查询请求失败: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("查询水龙头操作状态失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("水龙头状态接口返回 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("解析水龙头状态失败: %w", err)
	}
	return strings.ToLower(strings.TrimSpace(decoded.Status)), nil
}

var _ Source = (*FaucetClient)(nil)
