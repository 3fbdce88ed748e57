package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultWebhookTimeout = 10 * time.Second

// DingTalkWebhook 通过钉钉自定义机器人 Webhook 发送文本消息。
type DingTalkWebhook struct {
	url        string
	httpClient *http.Client
}

// NewDingTalkWebhook 创建钉钉 Webhook 发送器。
func NewDingTalkWebhook(url string) *DingTalkWebhook {
	return &DingTalkWebhook{
		url:        strings.TrimSpace(url),
		httpClient: &http.Client{Timeout: defaultWebhookTimeout},
	}
}

// Send 发送一条文本消息。
func (s *DingTalkWebhook) Send(ctx context.Context, content string) error {
	payload := map[string]any{
		"msgtype": "text",
		"text":    map[string]string{"content": content},
	}
	return postJSON(ctx, s.httpClient, s.url, payload)
}

// SlackWebhook 通过 Slack Incoming Webhook 发送消息。
type SlackWebhook struct {
	url        string
	httpClient *http.Client
}

// NewSlackWebhook 创建 Slack Webhook 发送器。
func NewSlackWebhook(url string) *SlackWebhook {
	return &SlackWebhook{
		url:        strings.TrimSpace(url),
		httpClient: &http.Client{Timeout: defaultWebhookTimeout},
	}
}

// Send 向指定频道发送一条消息。
func (s *SlackWebhook) Send(ctx context.Context, channel, content string) error {
	payload := map[string]string{
		"channel": channel,
		"text":    content,
	}
	return postJSON(ctx, s.httpClient, s.url, payload)
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	if url == "" {
		return fmt.Errorf("webhook 地址未配置")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化告警消息失败: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("构建告警请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("发送告警失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("告警服务返回状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
