package chat

import "errors"

var (
	ErrNotConnected      = errors.New("尚未连接到聊天服务器")
	ErrSessionClosed     = errors.New("连接会话已销毁")
	ErrHistoryLoad       = errors.New("聊天历史加载失败")
	ErrStaleConversation = errors.New("会话已切换，结果被丢弃")
	ErrNoConversation    = errors.New("尚未选中会话")
)
