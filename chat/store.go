package chat

import (
	"EdgeChat/dto"
	"context"
	"fmt"
	"iter"
	log "log/slog"
	"sync"
	"time"
)

// HistoryLoader 历史消息拉取端口，由 rest.Client 实现
type HistoryLoader interface {
	GetChatHistory(ctx context.Context, conversationID int64) ([]dto.ChatMessage, error)
}

// ConversationStore 当前选中会话的内存有序消息日志。
// 历史消息一次性整体装载且永不按时间戳重排；
// 实时消息一律追加到尾部，网络到达顺序即展示顺序。
type ConversationStore struct {
	loader HistoryLoader

	mu       sync.Mutex
	activeID int64
	loading  bool
	messages []dto.ChatMessage
	pending  []dto.ChatMessage
}

// NewConversationStore 构造会话消息仓库
func NewConversationStore(loader HistoryLoader) *ConversationStore {
	return &ConversationStore{loader: loader}
}

// LoadHistory 整体替换为指定会话的历史序列。
// 每次装载以会话 ID 为键：拉取期间用户切换了会话，迟到的结果直接丢弃。
// 拉取期间缓冲的实时消息在装载完成后去重回放，保证
// 「历史在前、订阅后到达的实时消息在后」且无缺无重。
func (s *ConversationStore) LoadHistory(ctx context.Context, conversationID int64) error {
	s.mu.Lock()
	s.activeID = conversationID
	s.loading = true
	s.messages = nil
	s.pending = nil
	s.mu.Unlock()

	history, err := s.loader.GetChatHistory(ctx, conversationID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeID != conversationID {
		return ErrStaleConversation
	}
	s.loading = false

	if err != nil {
		// 历史失败不阻断实时流：缓冲的实时消息照常生效
		s.messages = append(s.messages, s.pending...)
		s.pending = nil
		return fmt.Errorf("%w: %v", ErrHistoryLoad, err)
	}

	seen := make(map[int64]struct{}, len(history))
	for _, m := range history {
		seen[m.ID] = struct{}{}
	}
	s.messages = history
	for _, m := range s.pending {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		s.messages = append(s.messages, m)
	}
	s.pending = nil
	return nil
}

// AppendLive 追加一条实时到达的消息；从不按时间戳插入
func (s *ConversationStore) AppendLive(msg dto.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ConversationID != s.activeID {
		log.Debug("丢弃非当前会话的实时消息", "conversationID", msg.ConversationID, "active", s.activeID)
		return
	}
	if s.loading {
		s.pending = append(s.pending, msg)
		return
	}
	s.messages = append(s.messages, msg)
}

// Clear 取消选中会话时释放消息日志
func (s *ConversationStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeID = 0
	s.loading = false
	s.messages = nil
	s.pending = nil
}

// Messages 当前日志的快照副本
func (s *ConversationStore) Messages() []dto.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]dto.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// ActiveConversation 当前选中的会话 ID，0 表示未选中
func (s *ConversationStore) ActiveConversation() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// DayGroup 按自然日切分的一段连续消息
type DayGroup struct {
	Date     time.Time
	Messages []dto.ChatMessage
}

// GroupedByDay 把展示顺序按消息自带时间戳的自然日切分为连续分段，
// 供展示层惰性消费；纯函数，可重复迭代，不改动底层日志。
// 只合并相邻的同日消息，跨段同日不聚合，以免破坏到达顺序。
func (s *ConversationStore) GroupedByDay() iter.Seq[DayGroup] {
	msgs := s.Messages()
	return func(yield func(DayGroup) bool) {
		i := 0
		for i < len(msgs) {
			y, m, d := msgs[i].Timestamp.Date()
			j := i + 1
			for j < len(msgs) {
				y2, m2, d2 := msgs[j].Timestamp.Date()
				if y2 != y || m2 != m || d2 != d {
					break
				}
				j++
			}
			group := DayGroup{
				Date:     time.Date(y, m, d, 0, 0, 0, 0, msgs[i].Timestamp.Location()),
				Messages: msgs[i:j],
			}
			if !yield(group) {
				return
			}
			i = j
		}
	}
}
