// Package notify 提供开发者通知渠道。
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Notifier 向开发者发送通知消息。
type Notifier interface {
	// Send 发送一条文本通知。
	Send(ctx context.Context, message string) error
}

// Telegram 基于 Telegram Bot API 的通知实现。
type Telegram struct {
	token      string
	chatID     string
	baseURL    string
	httpClient *http.Client
}

var _ Notifier = (*Telegram)(nil)

// NewTelegram 创建 Telegram 通知器。
func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		token:   token,
		chatID:  chatID,
		baseURL: "https://api.telegram.org",
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// WithBaseURL 覆盖 API 地址，用于测试。
func (t *Telegram) WithBaseURL(baseURL string) *Telegram {
	t.baseURL = baseURL
	return t
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// Send 发送一条文本通知。
func (t *Telegram) Send(ctx context.Context, message string) error {
	reqBody := sendMessageRequest{
		ChatID: t.chatID,
		Text:   message,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("序列化请求失败: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("请求失败，状态码 %d: %s", resp.StatusCode, string(bodyBytes))
	}

	return nil
}

// Noop 空通知器，未配置通知渠道时使用。
type Noop struct{}

var _ Notifier = (*Noop)(nil)

// NewNoop 创建空通知器。
func NewNoop() *Noop {
	return &Noop{}
}

// Send 直接返回 nil。
func (n *Noop) Send(_ context.Context, _ string) error {
	return nil
}
