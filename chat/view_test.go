package chat

import (
	"EdgeChat/config"
	"EdgeChat/dto"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
)

func testCredential(t *testing.T) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "alice"}).
		SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign credential: %v", err)
	}
	return tok
}

// viewFixture 端到端夹具：假 REST 后端 + 假实时网关
type viewFixture struct {
	ws *wsTestServer

	mu        sync.Mutex
	readCalls map[int64]int
}

func (f *viewFixture) readsFor(conversationID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readCalls[conversationID]
}

func newViewFixture(t *testing.T, opts ...ViewOption) (*View, *viewFixture) {
	t.Helper()
	f := &viewFixture{ws: newWSTestServer(t), readCalls: make(map[int64]int)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/conversations/42/history", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":1,"conversationId":42,"senderUsername":"bob","content":"first","timestamp":"2026-03-01T10:00:00Z"},
			{"id":2,"conversationId":42,"senderUsername":"alice","content":"second","timestamp":"2026-03-01T10:01:00Z"}
		]`))
	})
	mux.HandleFunc("GET /api/v1/conversations/77/history", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	})
	mux.HandleFunc("POST /api/v1/conversations/{id}/read", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
		f.mu.Lock()
		f.readCalls[id]++
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /api/v1/users/presence", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"userId":2,"username":"bob","status":"ONLINE"}]`))
	})
	mux.HandleFunc("GET /api/v1/conversations/unread-count", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`6`))
	})
	mux.HandleFunc("GET /api/v1/conversations", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":42,"type":"GROUP","name":"General","unreadCount":6}]`))
	})

	restSrv := httptest.NewServer(mux)
	t.Cleanup(restSrv.Close)

	cfg, err := config.New(restSrv.URL, f.ws.url())
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.WS.ReconnectDelay = 30 * time.Millisecond

	view, err := NewView(cfg, testCredential(t), opts...)
	if err != nil {
		t.Fatalf("new view: %v", err)
	}
	t.Cleanup(view.Close)
	return view, f
}

// waitForOutFrame 丢弃不相关的帧，等待一帧指定类型与目的地
func waitForOutFrame(t *testing.T, srv *wsTestServer, typ FrameType, dest string) Frame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f, ok := srv.nextFrame(time.Until(deadline))
		if !ok {
			break
		}
		if f.Type == typ && f.Destination == dest {
			return f
		}
	}
	t.Fatalf("frame %s %s not observed", typ, dest)
	return Frame{}
}

func TestViewSelfFromCredential(t *testing.T) {
	view, _ := newViewFixture(t)
	if view.Self() != "alice" {
		t.Fatalf("self = %q, want alice", view.Self())
	}

	cfg, err := config.New("http://backend.invalid", "ws://gateway.invalid/ws")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if _, err := NewView(cfg, "not-a-credential"); err == nil {
		t.Fatalf("expected error for malformed credential")
	}
}

func TestViewHistoryThenLiveOrder(t *testing.T) {
	view, f := newViewFixture(t)

	if err := view.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	waitFor(t, 2*time.Second, view.Connected, "connected")

	if err := view.SelectConversation(context.Background(), 42); err != nil {
		t.Fatalf("select: %v", err)
	}
	waitForOutFrame(t, f.ws, FrameSubscribe, "/topic/chat/42")

	// 实时消息携带更早的时间戳，仍必须追加在历史之后
	f.ws.push("/topic/chat/42", dto.ChatMessage{
		ID:             3,
		ConversationID: 42,
		SenderUsername: "bob",
		Content:        "late arrival",
		Timestamp:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	})

	waitFor(t, 2*time.Second, func() bool { return len(view.Store().Messages()) == 3 }, "live message appended")
	msgs := view.Store().Messages()
	for i, want := range []int64{1, 2, 3} {
		if msgs[i].ID != want {
			t.Fatalf("messages[%d].ID = %d, want %d (all: %+v)", i, msgs[i].ID, want, msgs)
		}
	}

	// 选中一次 + 实时到达一次，至少两次已读标记
	waitFor(t, 2*time.Second, func() bool { return f.readsFor(42) >= 2 }, "mark-read calls")
}

func TestViewSendMessagePublishes(t *testing.T) {
	view, f := newViewFixture(t)

	if err := view.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	waitFor(t, 2*time.Second, view.Connected, "connected")
	if err := view.SelectConversation(context.Background(), 42); err != nil {
		t.Fatalf("select: %v", err)
	}
	waitForOutFrame(t, f.ws, FrameSubscribe, "/topic/chat/42/typing")

	if err := view.SendMessage("hello there"); err != nil {
		t.Fatalf("send: %v", err)
	}

	// 发送前先广播停止输入，再发出消息本体
	stop := waitForOutFrame(t, f.ws, FrameSend, "/app/chat/42/typing")
	var ind dto.TypingIndicator
	if err := json.Unmarshal(stop.Body, &ind); err != nil || ind.Typing {
		t.Fatalf("expected typing:false frame, got %s err=%v", stop.Body, err)
	}

	sent := waitForOutFrame(t, f.ws, FrameSend, "/app/chat/42")
	var req dto.NewChatMessageReq
	if err := json.Unmarshal(sent.Body, &req); err != nil {
		t.Fatalf("unmarshal send body: %v", err)
	}
	if req.Content != "hello there" {
		t.Fatalf("content = %q", req.Content)
	}
}

func TestViewSendMessageGuards(t *testing.T) {
	var notices []string
	view, _ := newViewFixture(t, WithNotice(func(m string) { notices = append(notices, m) }))

	// 空白内容静默忽略
	if err := view.SendMessage("   "); err != nil {
		t.Fatalf("blank content: %v", err)
	}
	// 未选中会话
	if err := view.SendMessage("hi"); !errors.Is(err, ErrNoConversation) {
		t.Fatalf("expected ErrNoConversation, got %v", err)
	}

	// 未连接：选中会话后直接发送
	if err := view.SelectConversation(context.Background(), 42); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := view.SendMessage("hi"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if len(notices) == 0 {
		t.Fatalf("expected user-visible notice for undelivered message")
	}
}

func TestViewSwitchConversation(t *testing.T) {
	view, f := newViewFixture(t)

	if err := view.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	waitFor(t, 2*time.Second, view.Connected, "connected")

	if err := view.SelectConversation(context.Background(), 42); err != nil {
		t.Fatalf("select 42: %v", err)
	}
	waitForOutFrame(t, f.ws, FrameSubscribe, "/topic/chat/42/typing")

	if err := view.SelectConversation(context.Background(), 77); err != nil {
		t.Fatalf("select 77: %v", err)
	}
	waitForOutFrame(t, f.ws, FrameUnsubscribe, "/topic/chat/42")
	waitForOutFrame(t, f.ws, FrameUnsubscribe, "/topic/chat/42/typing")
	waitForOutFrame(t, f.ws, FrameSubscribe, "/topic/chat/77")
	waitForOutFrame(t, f.ws, FrameSubscribe, "/topic/chat/77/typing")

	if view.Store().ActiveConversation() != 77 {
		t.Fatalf("active = %d, want 77", view.Store().ActiveConversation())
	}

	// 旧会话的实时消息不得进入新会话的日志
	f.ws.push("/topic/chat/77", dto.ChatMessage{ID: 10, ConversationID: 10, Content: "foreign"})
	f.ws.push("/topic/chat/77", dto.ChatMessage{ID: 11, ConversationID: 77, Content: "mine"})
	waitFor(t, 2*time.Second, func() bool { return len(view.Store().Messages()) == 1 }, "own message appended")
	if got := view.Store().Messages()[0].ID; got != 11 {
		t.Fatalf("unexpected message id %d", got)
	}
}

func TestViewPresenceSeedAndLive(t *testing.T) {
	view, f := newViewFixture(t)

	if err := view.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	waitFor(t, 2*time.Second, view.Connected, "connected")

	// 快照播种
	waitFor(t, 2*time.Second, func() bool {
		return view.Presence().StatusOf("bob") == dto.StatusOnline
	}, "presence snapshot seeded")

	// 实时事件覆盖
	f.ws.push("/topic/presence", dto.UserPresence{UserID: 2, Username: "bob", Status: dto.StatusOffline})
	waitFor(t, 2*time.Second, func() bool {
		return view.Presence().StatusOf("bob") == dto.StatusOffline
	}, "live presence applied")

	if view.Presence().StatusOf("nobody") != dto.StatusOffline {
		t.Fatalf("unknown user must default to offline")
	}
}

func TestViewSidebarPolling(t *testing.T) {
	var mu sync.Mutex
	var unread int64 = -1
	var summaries []dto.ConversationSummary

	view, _ := newViewFixture(t, WithSidebar(
		func(n int64) {
			mu.Lock()
			unread = n
			mu.Unlock()
		},
		func(cs []dto.ConversationSummary) {
			mu.Lock()
			summaries = cs
			mu.Unlock()
		},
		WithPollSchedule("*/1 * * * * *")))

	if err := view.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	waitFor(t, 3*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return unread == 6 && len(summaries) == 1
	}, "sidebar callbacks fed from backend")

	mu.Lock()
	defer mu.Unlock()
	if summaries[0].ID != 42 || summaries[0].UnreadCount != 6 {
		t.Fatalf("unexpected summary: %+v", summaries[0])
	}
}

func TestViewTypingLabel(t *testing.T) {
	view, f := newViewFixture(t, WithTypingOptions(WithTypingIntervals(
		10*time.Millisecond, 50*time.Millisecond, 30*time.Second)))

	if err := view.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	waitFor(t, 2*time.Second, view.Connected, "connected")
	if err := view.SelectConversation(context.Background(), 42); err != nil {
		t.Fatalf("select: %v", err)
	}
	waitForOutFrame(t, f.ws, FrameSubscribe, "/topic/chat/42/typing")

	if got := view.TypingLabel(); got != "" {
		t.Fatalf("initial label = %q, want empty", got)
	}

	f.ws.push("/topic/chat/42/typing", dto.TypingIndicator{Username: "carol", Typing: true})
	waitFor(t, 2*time.Second, func() bool {
		return view.TypingLabel() == "carol is typing..."
	}, "remote typing label")

	// 自身回显被过滤
	f.ws.push("/topic/chat/42/typing", dto.TypingIndicator{Username: "alice", Typing: true})
	f.ws.push("/topic/chat/42/typing", dto.TypingIndicator{Username: "carol", Typing: false})
	waitFor(t, 2*time.Second, func() bool { return view.TypingLabel() == "" }, "typing stopped")
}
