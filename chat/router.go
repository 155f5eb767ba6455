package chat

import (
	"EdgeChat/consts"
	"EdgeChat/dto"
	log "log/slog"
	"sync"

	"github.com/goccy/go-json"
)

// Router 将逻辑主题映射为针对单一 Session 的类型化订阅。
// 每个会话的消息/输入主题同一时刻至多一个生效的注册，
// 重复订阅会先注销旧注册；畸形负载记警告后丢弃，绝不中断会话。
type Router struct {
	sess *Session

	mu              sync.Mutex
	msgDisposers    map[int64]func()
	typingDisposers map[int64]func()
	presenceDispose func()
}

// NewRouter 构造订阅路由器
func NewRouter(sess *Session) *Router {
	return &Router{
		sess:            sess,
		msgDisposers:    make(map[int64]func()),
		typingDisposers: make(map[int64]func()),
	}
}

// SubscribeConversationMessages 订阅会话消息主题
func (r *Router) SubscribeConversationMessages(conversationID int64, onMessage func(dto.ChatMessage)) func() {
	dest := consts.ChatTopic(conversationID)

	r.mu.Lock()
	if old := r.msgDisposers[conversationID]; old != nil {
		old()
	}
	dispose := r.sess.Subscribe(dest, func(body json.RawMessage) {
		var msg dto.ChatMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			log.Warn("丢弃畸形消息负载", "destination", dest, "err", err)
			return
		}
		onMessage(msg)
	})
	r.msgDisposers[conversationID] = dispose
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		if r.msgDisposers[conversationID] != nil {
			r.msgDisposers[conversationID]()
			delete(r.msgDisposers, conversationID)
		}
		r.mu.Unlock()
	}
}

// SubscribeTyping 订阅会话输入状态主题
func (r *Router) SubscribeTyping(conversationID int64, onTyping func(dto.TypingIndicator)) func() {
	dest := consts.TypingTopic(conversationID)

	r.mu.Lock()
	if old := r.typingDisposers[conversationID]; old != nil {
		old()
	}
	dispose := r.sess.Subscribe(dest, func(body json.RawMessage) {
		var ev dto.TypingIndicator
		if err := json.Unmarshal(body, &ev); err != nil {
			log.Warn("丢弃畸形输入状态负载", "destination", dest, "err", err)
			return
		}
		onTyping(ev)
	})
	r.typingDisposers[conversationID] = dispose
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		if r.typingDisposers[conversationID] != nil {
			r.typingDisposers[conversationID]()
			delete(r.typingDisposers, conversationID)
		}
		r.mu.Unlock()
	}
}

// SubscribeGlobalPresence 订阅全局在线状态主题；
// 整个会话周期仅建立一次，切换会话不重建
func (r *Router) SubscribeGlobalPresence(onPresence func(dto.UserPresence)) func() {
	r.mu.Lock()
	if r.presenceDispose != nil {
		r.presenceDispose()
	}
	dispose := r.sess.Subscribe(consts.PresenceTopic, func(body json.RawMessage) {
		var ev dto.UserPresence
		if err := json.Unmarshal(body, &ev); err != nil {
			log.Warn("丢弃畸形在线状态负载", "err", err)
			return
		}
		onPresence(ev)
	})
	r.presenceDispose = dispose
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		if r.presenceDispose != nil {
			r.presenceDispose()
			r.presenceDispose = nil
		}
		r.mu.Unlock()
	}
}
