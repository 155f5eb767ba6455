package chat

import (
	"EdgeChat/consts"
	"EdgeChat/dto"
	"fmt"
	"sort"
	"sync"
	"time"
)

// TypingPublisher 输入状态的出站端口，由 Session 实现
type TypingPublisher interface {
	Publish(destination string, body any)
}

// TypingController 单个会话的输入状态控制器。
// 出方向：键入事件节流为每秒至多一次 typing:true，
// 停顿超过空闲阈值后补发一次 typing:false。
// 入方向：远端正在输入的用户带硬过期，防止丢失停止事件后状态悬挂。
type TypingController struct {
	pub    TypingPublisher
	convID int64
	self   string

	throttle time.Duration
	idle     time.Duration
	expiry   time.Duration
	now      func() time.Time

	mu         sync.Mutex
	lastSentAt time.Time
	idleTimer  *time.Timer
	typists    map[string]*time.Timer
	closed     bool
}

// TypingOption 控制器可选参数
type TypingOption func(*TypingController)

// WithTypingIntervals 覆盖节流/空闲/过期阈值（测试用）
func WithTypingIntervals(throttle, idle, expiry time.Duration) TypingOption {
	return func(c *TypingController) {
		c.throttle, c.idle, c.expiry = throttle, idle, expiry
	}
}

// WithClock 覆盖时钟源（测试用）
func WithClock(now func() time.Time) TypingOption {
	return func(c *TypingController) { c.now = now }
}

// NewTypingController 构造输入状态控制器；self 用于过滤自身回显事件
func NewTypingController(pub TypingPublisher, conversationID int64, self string, opts ...TypingOption) *TypingController {
	c := &TypingController{
		pub:      pub,
		convID:   conversationID,
		self:     self,
		throttle: time.Second,
		idle:     2 * time.Second,
		expiry:   3 * time.Second,
		now:      time.Now,
		typists:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NoteInput 本地每次键入变更调用一次
func (c *TypingController) NoteInput() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	now := c.now()
	send := now.Sub(c.lastSentAt) > c.throttle
	if send {
		c.lastSentAt = now
	}
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	c.idleTimer = time.AfterFunc(c.idle, c.idleFired)
	c.mu.Unlock()

	if send {
		c.pub.Publish(consts.TypingSendDest(c.convID), dto.TypingIndicator{Typing: true})
	}
}

// Stop 发送成功或显式停止时立即广播停止输入
func (c *TypingController) Stop() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}
	c.lastSentAt = time.Time{}
	c.mu.Unlock()

	c.pub.Publish(consts.TypingSendDest(c.convID), dto.TypingIndicator{Typing: false})
}

func (c *TypingController) idleFired() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.idleTimer = nil
	c.lastSentAt = time.Time{}
	c.mu.Unlock()

	c.pub.Publish(consts.TypingSendDest(c.convID), dto.TypingIndicator{Typing: false})
}

// Apply 处理一条远端输入状态事件
func (c *TypingController) Apply(ev dto.TypingIndicator) {
	if ev.Username == "" || ev.Username == c.self {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	if !ev.Typing {
		c.removeLocked(ev.Username)
		return
	}

	// 幂等加入；每次 typing:true 重置硬过期，兜底丢失的停止事件
	if t := c.typists[ev.Username]; t != nil {
		t.Stop()
	}
	user := ev.Username
	var expiry *time.Timer
	expiry = time.AfterFunc(c.expiry, func() {
		c.expire(user, expiry)
	})
	c.typists[user] = expiry
}

// expire 硬过期回调。旧计时器触发与新一轮 typing:true 可能竞争同一把锁，
// 只有仍登记在表中的那个计时器才有权移除该用户
func (c *TypingController) expire(user string, expiry *time.Timer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.typists[user] != expiry {
		return
	}
	delete(c.typists, user)
}

func (c *TypingController) removeLocked(user string) {
	if t := c.typists[user]; t != nil {
		t.Stop()
		delete(c.typists, user)
	}
}

// ActiveTypists 当前正在输入的远端用户（字典序）
func (c *TypingController) ActiveTypists() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.typists))
	for u := range c.typists {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Label 展示文案：无人输入为空串
func (c *TypingController) Label() string {
	typists := c.ActiveTypists()
	switch len(typists) {
	case 0:
		return ""
	case 1:
		return typists[0] + " is typing..."
	default:
		return fmt.Sprintf("%d people are typing...", len(typists))
	}
}

// Close 切换会话或卸载视图时清空全部状态并停掉所有计时器
func (c *TypingController) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}
	for u, t := range c.typists {
		t.Stop()
		delete(c.typists, u)
	}
}
