package chat

import (
	log "log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// State 连接状态机：Disconnected → Connecting → Connected → (Error|Closed)
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateError:
		return "ERROR"
	case StateClosed:
		return "CLOSED"
	default:
		return "DISCONNECTED"
	}
}

type subscription struct {
	id   int64
	dest string
	fn   func(json.RawMessage)
}

// Session 每个已挂载的聊天视图持有且仅持有一条持久连接。
// 断线后按固定间隔无限次重连；未连接时 Publish 静默丢弃。
type Session struct {
	url            string
	token          string
	reconnectDelay time.Duration
	dialer         *websocket.Dialer

	mu        sync.Mutex
	writeMu   sync.Mutex
	state     State
	conn      *websocket.Conn
	gen       uint64
	subs      map[string]*subscription
	nextSub   int64
	observers []func(bool)
	retry     *time.Timer
	closed    bool
}

// SessionOption 会话可选参数
type SessionOption func(*Session)

// WithReconnectDelay 覆盖重连间隔（测试用）
func WithReconnectDelay(d time.Duration) SessionOption {
	return func(s *Session) { s.reconnectDelay = d }
}

// NewSession 构造会话；credential 为 Bearer 凭据，随握手头传递
func NewSession(wsURL, credential string, opts ...SessionOption) *Session {
	s := &Session{
		url:            wsURL,
		token:          credential,
		reconnectDelay: 5 * time.Second,
		dialer:         websocket.DefaultDialer,
		subs:           make(map[string]*subscription),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect 发起连接；非阻塞，握手在后台完成
func (s *Session) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.state == StateConnecting || s.state == StateConnected {
		return nil
	}
	s.state = StateConnecting
	go s.dial()
	return nil
}

// dial 执行一次握手；失败则进入 ERROR 并安排重试
func (s *Session) dial() {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.token)

	conn, _, err := s.dialer.Dial(s.url, header)
	if err != nil {
		log.Warn("聊天网关握手失败", "url", s.url, "err", err)
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		s.state = StateError
		s.scheduleRetryLocked()
		s.mu.Unlock()
		s.notify(false)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conn = conn
	s.gen++
	gen := s.gen
	s.state = StateConnected
	pending := make([]string, 0, len(s.subs))
	for dest := range s.subs {
		pending = append(pending, dest)
	}
	s.mu.Unlock()

	log.Info("聊天网关连接已建立", "url", s.url, "subscriptions", len(pending))
	s.notify(true)

	// 连接建立后补发全部待生效的订阅
	for _, dest := range pending {
		s.writeFrame(conn, &Frame{Type: FrameSubscribe, Destination: dest})
	}

	go s.readPump(conn, gen)
}

// readPump 单协程顺序读取，保证帧到达顺序即派发顺序
func (s *Session) readPump(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.handleDrop(conn, gen, err)
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Warn("丢弃无法解析的入站帧", "err", err)
			continue
		}
		if frame.Type != FrameMessage {
			continue
		}

		s.mu.Lock()
		sub := s.subs[frame.Destination]
		s.mu.Unlock()

		if sub != nil {
			sub.fn(frame.Body)
		}
	}
}

func (s *Session) handleDrop(conn *websocket.Conn, gen uint64, cause error) {
	_ = conn.Close()

	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	log.Warn("聊天网关连接断开，稍后重连", "delay", s.reconnectDelay, "err", cause)
	s.conn = nil
	s.state = StateError
	s.scheduleRetryLocked()
	s.mu.Unlock()

	s.notify(false)
}

func (s *Session) scheduleRetryLocked() {
	s.retry = time.AfterFunc(s.reconnectDelay, func() {
		s.mu.Lock()
		if s.closed || s.state == StateConnected {
			s.mu.Unlock()
			return
		}
		s.state = StateConnecting
		s.mu.Unlock()
		s.dial()
	})
}

// Publish 发布一帧到应用指令目的地；未连接时静默丢弃
func (s *Session) Publish(destination string, body any) {
	raw, err := json.Marshal(body)
	if err != nil {
		log.Warn("出站负载序列化失败", "destination", destination, "err", err)
		return
	}

	s.mu.Lock()
	conn := s.conn
	connected := s.state == StateConnected
	s.mu.Unlock()

	if !connected || conn == nil {
		log.Debug("未连接，丢弃出站帧", "destination", destination)
		return
	}
	s.writeFrame(conn, &Frame{Type: FrameSend, Destination: destination, Body: raw})
}

// Subscribe 注册某目的地的处理器并返回注销函数；
// 同一目的地重复注册时后者顶替前者
func (s *Session) Subscribe(destination string, fn func(json.RawMessage)) func() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return func() {}
	}
	s.nextSub++
	id := s.nextSub
	s.subs[destination] = &subscription{id: id, dest: destination, fn: fn}
	conn := s.conn
	connected := s.state == StateConnected
	s.mu.Unlock()

	if connected && conn != nil {
		s.writeFrame(conn, &Frame{Type: FrameSubscribe, Destination: destination})
	}

	return func() {
		s.mu.Lock()
		sub, ok := s.subs[destination]
		if !ok || sub.id != id {
			s.mu.Unlock()
			return
		}
		delete(s.subs, destination)
		conn := s.conn
		connected := s.state == StateConnected
		s.mu.Unlock()

		if connected && conn != nil {
			s.writeFrame(conn, &Frame{Type: FrameUnsubscribe, Destination: destination})
		}
	}
}

// Connected 供发送入口与连接徽标消费的布尔信号
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateConnected
}

// State 当前状态机状态
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnConnectionChange 注册连接状态观察者，立即回放一次当前状态
func (s *Session) OnConnectionChange(fn func(connected bool)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	connected := s.state == StateConnected
	s.mu.Unlock()
	fn(connected)
}

// Teardown 无条件停用连接并清空全部订阅；可重复调用
func (s *Session) Teardown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.retry != nil {
		s.retry.Stop()
	}
	conn := s.conn
	s.conn = nil
	s.subs = make(map[string]*subscription)
	s.state = StateDisconnected
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	s.notify(false)
	log.Info("聊天会话已销毁")
}

func (s *Session) notify(connected bool) {
	s.mu.Lock()
	observers := make([]func(bool), len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(connected)
	}
}

func (s *Session) writeFrame(conn *websocket.Conn, frame *Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.Warn("出站帧序列化失败", "err", err)
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Warn("出站帧写入失败", "destination", frame.Destination, "err", err)
	}
}
