// Package notify provides developer notification configuration options.
package notify

import (
	"fmt"
	"os"

	"github.com/kart-io/docqa/pkg/options"
	"github.com/spf13/pflag"
)

var _ options.IOptions = (*Options)(nil)

// Options contains Telegram notification configuration.
type Options struct {
	// Enabled 是否启用开发者通知。
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// TelegramToken Telegram Bot API token。
	TelegramToken string `json:"-" mapstructure:"telegram-token"`

	// TelegramChatID 接收通知的会话 ID。
	TelegramChatID string `json:"telegram-chat-id" mapstructure:"telegram-chat-id"`
}

// NewOptions 创建默认通知配置。
func NewOptions() *Options {
	return &Options{
		Enabled: false,
	}
}

// AddFlags adds flags for notification options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.BoolVar(&o.Enabled, options.Join(prefixes...)+"notify.enabled", o.Enabled, "Enable developer notifications.")
	fs.StringVar(&o.TelegramToken, options.Join(prefixes...)+"notify.telegram-token", o.TelegramToken, "Telegram bot token (prefer TELEGRAM_BOT_TOKEN env var).")
	fs.StringVar(&o.TelegramChatID, options.Join(prefixes...)+"notify.telegram-chat-id", o.TelegramChatID, "Telegram chat ID for notifications.")
}

// Validate validates the notification options.
func (o *Options) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}

	// 如果 CLI 参数为空，从环境变量读取
	if o.TelegramToken == "" {
		o.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
	if o.TelegramChatID == "" {
		o.TelegramChatID = os.Getenv("TELEGRAM_CHAT_ID")
	}

	var errs []error
	if o.TelegramToken == "" {
		errs = append(errs, fmt.Errorf("notify.telegram-token is required when notifications are enabled"))
	}
	if o.TelegramChatID == "" {
		errs = append(errs, fmt.Errorf("notify.telegram-chat-id is required when notifications are enabled"))
	}
	return errs
}

// Complete completes the notification options with defaults.
func (o *Options) Complete() error {
	return nil
}
