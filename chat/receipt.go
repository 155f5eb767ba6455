package chat

import (
	"context"
	log "log/slog"
	"time"
)

// ReadMarker 已读标记端口，由 rest.Client 实现
type ReadMarker interface {
	MarkConversationRead(ctx context.Context, conversationID int64) error
}

// ReadReceiptTracker 已读回执触发器。
// 自身不持有任何逐条消息状态：进入会话与每条实时消息到达时
// 触发一次服务端已读变更，展示态完全由消息对象的计数派生。
// 已读属于尽力而为，失败只记日志不上抛。
type ReadReceiptTracker struct {
	marker  ReadMarker
	timeout time.Duration
}

// NewReadReceiptTracker 构造已读回执触发器
func NewReadReceiptTracker(marker ReadMarker) *ReadReceiptTracker {
	return &ReadReceiptTracker{marker: marker, timeout: 5 * time.Second}
}

// MarkRead 异步发一次已读标记（fire-and-forget）
func (t *ReadReceiptTracker) MarkRead(conversationID int64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		t.markNow(ctx, conversationID)
	}()
}

// markNow 同步执行一次已读标记，供测试与内部复用
func (t *ReadReceiptTracker) markNow(ctx context.Context, conversationID int64) {
	if err := t.marker.MarkConversationRead(ctx, conversationID); err != nil {
		log.Warn("已读标记失败，忽略", "conversationID", conversationID, "err", err)
	}
}
