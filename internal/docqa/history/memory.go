package history

import (
	"context"
	"sort"
	"sync"

	"github.com/kart-io/docqa/internal/model"
)

// MemoryStore 内存会话历史存储，未配置 Redis 时使用。
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]*model.ChatMessage
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore 创建内存会话历史存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]*model.ChatMessage),
	}
}

// Append 向会话追加一条消息。
func (s *MemoryStore) Append(_ context.Context, sessionID string, msg *model.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *msg
	s.sessions[sessionID] = append(s.sessions[sessionID], &copied)
	return nil
}

// Get 返回会话的全部消息，按追加顺序。
func (s *MemoryStore) Get(_ context.Context, sessionID string) ([]*model.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.sessions[sessionID]
	result := make([]*model.ChatMessage, len(msgs))
	for i, msg := range msgs {
		copied := *msg
		result[i] = &copied
	}
	return result, nil
}

// Clear 清空会话历史。
func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

// Sessions 返回全部会话 ID，按字典序。
func (s *MemoryStore) Sessions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
