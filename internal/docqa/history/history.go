// Package history 提供会话历史存储。
package history

import (
	"context"

	"github.com/kart-io/docqa/internal/model"
)

// Store 会话历史存储接口。
type Store interface {
	// Append 向会话追加一条消息。
	Append(ctx context.Context, sessionID string, msg *model.ChatMessage) error

	// Get 返回会话的全部消息，按追加顺序。
	Get(ctx context.Context, sessionID string) ([]*model.ChatMessage, error)

	// Clear 清空会话历史。会话不存在时为幂等空操作。
	Clear(ctx context.Context, sessionID string) error

	// Sessions 返回全部会话 ID。
	Sessions(ctx context.Context) ([]string, error)
}
