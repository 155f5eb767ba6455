package chat

import (
	"EdgeChat/dto"
	"context"
	log "log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// PollSource 侧栏轮询的数据端口，由 rest.Client 实现
type PollSource interface {
	GetUnreadCount(ctx context.Context) (int64, error)
	GetConversations(ctx context.Context) ([]dto.ConversationSummary, error)
}

// Poller 侧栏协作方的定时刷新引擎：
// 每 10 秒拉取一次未读总数与会话摘要列表
type Poller struct {
	engine          *cron.Cron
	source          PollSource
	schedule        string
	onUnread        func(int64)
	onConversations func([]dto.ConversationSummary)
}

// PollerOption 轮询引擎可选参数
type PollerOption func(*Poller)

// WithPollSchedule 覆盖 cron 表达式（测试用）
func WithPollSchedule(spec string) PollerOption {
	return func(s *Poller) { s.schedule = spec }
}

// NewPoller 构造轮询引擎
func NewPoller(source PollSource, onUnread func(int64), onConversations func([]dto.ConversationSummary), opts ...PollerOption) *Poller {
	s := &Poller{
		engine:          cron.New(cron.WithSeconds()),
		source:          source,
		schedule:        "*/10 * * * * *",
		onUnread:        onUnread,
		onConversations: onConversations,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterJobs 注册定时任务
func (s *Poller) RegisterJobs() error {
	if s.onUnread != nil {
		if _, err := s.engine.AddFunc(s.schedule, s.pollUnread); err != nil {
			return err
		}
	}
	if s.onConversations != nil {
		if _, err := s.engine.AddFunc(s.schedule, s.pollConversations); err != nil {
			return err
		}
	}
	return nil
}

func (s *Poller) Start() {
	log.Info("侧栏轮询引擎启动")
	s.engine.Start()
}

func (s *Poller) Stop() {
	log.Info("侧栏轮询引擎停止")
	s.engine.Stop()
}

func (s *Poller) pollUnread() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	count, err := s.source.GetUnreadCount(ctx)
	if err != nil {
		log.Warn("未读总数拉取失败", "err", err)
		return
	}
	s.onUnread(count)
}

func (s *Poller) pollConversations() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	list, err := s.source.GetConversations(ctx)
	if err != nil {
		log.Warn("会话列表拉取失败", "err", err)
		return
	}
	s.onConversations(list)
}
