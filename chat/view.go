package chat

import (
	"EdgeChat/config"
	"EdgeChat/consts"
	"EdgeChat/dto"
	"EdgeChat/rest"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/errgroup"
)

// View 一个已挂载聊天视图的编排器：独占一条 Session，
// 把历史装载、订阅路由、三个跟踪器与侧栏轮询拼装起来。
// 切换会话时先注销旧订阅、清空输入状态，再装载新会话。
type View struct {
	api      *rest.Client
	sess     *Session
	router   *Router
	store    *ConversationStore
	presence *PresenceTracker
	receipts *ReadReceiptTracker
	poller   *Poller
	self     string

	onNotice   func(string)
	typingOpts []TypingOption

	mu              sync.Mutex
	activeID        int64
	typing          *TypingController
	disposeMsgs     func()
	disposeTyping   func()
	disposePresence func()
	opened          bool
}

// ViewOption 视图可选参数
type ViewOption func(*View)

// WithNotice 注册用户可见提示的回调（历史失败、未连接等）
func WithNotice(fn func(message string)) ViewOption {
	return func(v *View) { v.onNotice = fn }
}

// WithSidebar 注册侧栏回调并启用 10 秒轮询
func WithSidebar(onUnread func(int64), onConversations func([]dto.ConversationSummary), opts ...PollerOption) ViewOption {
	return func(v *View) {
		v.poller = NewPoller(v.api, onUnread, onConversations, opts...)
	}
}

// WithTypingOptions 透传给每个会话的输入状态控制器（测试用）
func WithTypingOptions(opts ...TypingOption) ViewOption {
	return func(v *View) { v.typingOpts = opts }
}

// NewView 构造聊天视图；credential 为注入的 Bearer 凭据，
// 从中解析 sub 作为当前用户名（不做签名校验，校验在服务端）
func NewView(cfg *config.Config, credential string, opts ...ViewOption) (*View, error) {
	self, err := selfFromCredential(credential)
	if err != nil {
		return nil, err
	}

	api := rest.NewClient(cfg, func() string { return credential })
	sess := NewSession(cfg.WS.URL, credential, WithReconnectDelay(cfg.WS.ReconnectDelay))

	v := &View{
		api:      api,
		sess:     sess,
		router:   NewRouter(sess),
		store:    NewConversationStore(api),
		presence: NewPresenceTracker(api),
		receipts: NewReadReceiptTracker(api),
		self:     self,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

func selfFromCredential(credential string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(credential, claims); err != nil {
		return "", fmt.Errorf("解析凭据失败: %w", err)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("凭据缺少 sub 声明")
	}
	return sub, nil
}

// Open 挂载视图：建立连接、订阅全局在线状态、播种快照、启动轮询。
// 在线状态订阅整个生命周期只建立这一次。
func (v *View) Open(ctx context.Context) error {
	v.mu.Lock()
	if v.opened {
		v.mu.Unlock()
		return nil
	}
	v.opened = true
	v.mu.Unlock()

	if err := v.sess.Connect(); err != nil {
		return err
	}

	v.mu.Lock()
	v.disposePresence = v.router.SubscribeGlobalPresence(v.presence.Apply)
	v.mu.Unlock()

	// 快照播种与轮询启动并行；二者皆为后台操作，失败只记日志
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := v.presence.Seed(gctx); err != nil {
			log.Warn("在线状态快照拉取失败", "err", err)
		}
		return nil
	})
	g.Go(func() error {
		if v.poller == nil {
			return nil
		}
		if err := v.poller.RegisterJobs(); err != nil {
			return err
		}
		v.poller.Start()
		return nil
	})
	return g.Wait()
}

// SelectConversation 切换当前会话。
// 顺序：注销旧的消息/输入订阅 → 清空输入状态 → 装载历史 →
// 建立新订阅 → 标记已读。迟到的旧会话历史结果被直接丢弃。
func (v *View) SelectConversation(ctx context.Context, conversationID int64) error {
	v.mu.Lock()
	if v.disposeMsgs != nil {
		v.disposeMsgs()
		v.disposeMsgs = nil
	}
	if v.disposeTyping != nil {
		v.disposeTyping()
		v.disposeTyping = nil
	}
	if v.typing != nil {
		v.typing.Close()
	}
	typing := NewTypingController(v.sess, conversationID, v.self, v.typingOpts...)
	v.typing = typing
	v.activeID = conversationID
	v.mu.Unlock()

	loadErr := v.store.LoadHistory(ctx, conversationID)
	if errors.Is(loadErr, ErrStaleConversation) {
		// 已被更晚的切换取代，当前调用静默退出
		return nil
	}

	v.mu.Lock()
	if v.activeID != conversationID {
		v.mu.Unlock()
		return nil
	}
	// 历史失败不阻断实时订阅：新消息仍然可达
	v.disposeMsgs = v.router.SubscribeConversationMessages(conversationID, v.onLiveMessage)
	v.disposeTyping = v.router.SubscribeTyping(conversationID, typing.Apply)
	v.mu.Unlock()

	v.receipts.MarkRead(conversationID)

	if loadErr != nil {
		v.notice("无法加载聊天历史")
		return loadErr
	}
	return nil
}

// onLiveMessage 实时消息到达：追加日志并补一次已读标记
func (v *View) onLiveMessage(msg dto.ChatMessage) {
	v.store.AppendLive(msg)
	v.receipts.MarkRead(msg.ConversationID)
}

// SendMessage 发送消息。发送是用户主动行为：
// 未连接时返回 ErrNotConnected 并给出可见提示，而非静默丢弃
func (v *View) SendMessage(content string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	v.mu.Lock()
	conversationID := v.activeID
	typing := v.typing
	v.mu.Unlock()

	if conversationID == 0 {
		return ErrNoConversation
	}
	if !v.sess.Connected() {
		v.notice("未连接到聊天服务器，消息未发送")
		return ErrNotConnected
	}

	typing.Stop()
	v.sess.Publish(consts.ChatSendDest(conversationID), dto.NewChatMessageReq{Content: content})
	return nil
}

// InputChanged 本地输入框每次变更调用；输入广播属于环境行为，
// 未连接时由 Session 静默丢弃
func (v *View) InputChanged() {
	v.mu.Lock()
	typing := v.typing
	v.mu.Unlock()
	if typing != nil {
		typing.NoteInput()
	}
}

// StopTyping 显式停止输入
func (v *View) StopTyping() {
	v.mu.Lock()
	typing := v.typing
	v.mu.Unlock()
	if typing != nil {
		typing.Stop()
	}
}

// TypingLabel 当前会话的输入状态文案
func (v *View) TypingLabel() string {
	v.mu.Lock()
	typing := v.typing
	v.mu.Unlock()
	if typing == nil {
		return ""
	}
	return typing.Label()
}

// Store 消息日志访问器
func (v *View) Store() *ConversationStore { return v.store }

// Presence 在线状态访问器
func (v *View) Presence() *PresenceTracker { return v.presence }

// Self 当前登录用户名
func (v *View) Self() string { return v.self }

// Connected 连接信号
func (v *View) Connected() bool { return v.sess.Connected() }

// OnConnectionChange 注册连接徽标观察者
func (v *View) OnConnectionChange(fn func(bool)) { v.sess.OnConnectionChange(fn) }

// SearchUsers 按用户名子串检索（防抖由调用方负责）
func (v *View) SearchUsers(ctx context.Context, query string) ([]dto.User, error) {
	return v.api.SearchUsers(ctx, query)
}

// StartDirectMessage 与指定用户开启单聊
func (v *View) StartDirectMessage(ctx context.Context, withUser string) (*dto.Conversation, *dto.ConversationSummary, error) {
	return v.api.StartDirectMessage(ctx, withUser)
}

// Close 卸载视图：停轮询、注销订阅、清状态、销毁连接
func (v *View) Close() {
	v.mu.Lock()
	if v.poller != nil {
		v.poller.Stop()
	}
	if v.typing != nil {
		v.typing.Close()
		v.typing = nil
	}
	v.disposeMsgs = nil
	v.disposeTyping = nil
	v.disposePresence = nil
	v.activeID = 0
	v.mu.Unlock()

	v.store.Clear()
	v.sess.Teardown()
}

func (v *View) notice(message string) {
	if v.onNotice != nil {
		v.onNotice(message)
	}
}
