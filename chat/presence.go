package chat

import (
	"EdgeChat/dto"
	"context"
	log "log/slog"
	"sync"
)

// PresenceSource 在线状态快照端口，由 rest.Client 实现
type PresenceSource interface {
	GetAllPresences(ctx context.Context) ([]dto.UserPresence, error)
}

// PresenceTracker 全局在线状态表：快照播种一次，增量事件覆盖写。
// 跨会话切换持续存活，同名用户最后一次写入生效。
type PresenceTracker struct {
	source PresenceSource

	mu      sync.Mutex
	entries map[string]dto.UserPresence
	live    map[string]bool
}

// NewPresenceTracker 构造在线状态跟踪器
func NewPresenceTracker(source PresenceSource) *PresenceTracker {
	return &PresenceTracker{
		source:  source,
		entries: make(map[string]dto.UserPresence),
		live:    make(map[string]bool),
	}
}

// Seed 挂载时拉取一次全量快照并合并入表。
// 快照落地前已被实时事件覆盖的用户不回退到快照值。
func (p *PresenceTracker) Seed(ctx context.Context) error {
	snapshot, err := p.source.GetAllPresences(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, entry := range snapshot {
		if entry.Username == "" || p.live[entry.Username] {
			continue
		}
		p.entries[entry.Username] = entry
	}
	log.Debug("在线状态快照已合并", "count", len(snapshot))
	return nil
}

// Apply 处理一条实时在线状态事件，覆盖对应用户
func (p *PresenceTracker) Apply(ev dto.UserPresence) {
	if ev.Username == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[ev.Username] = ev
	p.live[ev.Username] = true
}

// StatusOf 查询用户状态；未知用户一律视为离线，从不报错
func (p *PresenceTracker) StatusOf(username string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if entry, ok := p.entries[username]; ok && entry.Status != "" {
		return entry.Status
	}
	return dto.StatusOffline
}

// Presence 用户完整在线状态条目；未知用户返回 nil
func (p *PresenceTracker) Presence(username string) *dto.UserPresence {
	p.mu.Lock()
	defer p.mu.Unlock()
	if entry, ok := p.entries[username]; ok {
		return &entry
	}
	return nil
}
