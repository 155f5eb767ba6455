package rest

import (
	"EdgeChat/dto"
	"context"
	"strconv"

	"github.com/jinzhu/copier"
)

// GetChatHistory 拉取会话持久化消息列表（服务端升序定序）
func (c *Client) GetChatHistory(ctx context.Context, conversationID int64) ([]dto.ChatMessage, error) {
	var history []dto.ChatMessage
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", strconv.FormatInt(conversationID, 10)).
		SetResult(&history).
		Get("/conversations/{id}/history")

	if err := c.check(resp, err, "get chat history"); err != nil {
		return nil, err
	}
	return history, nil
}

// GetConversations 拉取会话摘要列表
func (c *Client) GetConversations(ctx context.Context) ([]dto.ConversationSummary, error) {
	var list []dto.ConversationSummary
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&list).
		Get("/conversations")

	if err := c.check(resp, err, "get conversations"); err != nil {
		return nil, err
	}
	return list, nil
}

// GetGroupConversation 获取（或由服务端创建）全员群聊会话
func (c *Client) GetGroupConversation(ctx context.Context) (*dto.Conversation, error) {
	var conv dto.Conversation
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&conv).
		Get("/conversations/group")

	if err := c.check(resp, err, "get group conversation"); err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetDocumentConversation 获取（或由服务端创建）挂在指定文档下的讨论会话
func (c *Client) GetDocumentConversation(ctx context.Context, documentID int64) (*dto.Conversation, error) {
	var conv dto.Conversation
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("documentId", strconv.FormatInt(documentID, 10)).
		SetResult(&conv).
		Get("/documents/{documentId}/conversation")

	if err := c.check(resp, err, "get document conversation"); err != nil {
		return nil, err
	}
	return &conv, nil
}

// StartDirectMessage 按对方用户名获取或创建单聊会话，
// 并投影出一个可直接插入侧栏的摘要项
func (c *Client) StartDirectMessage(ctx context.Context, withUser string) (*dto.Conversation, *dto.ConversationSummary, error) {
	var conv dto.Conversation
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("withUser", withUser).
		SetResult(&conv).
		Post("/conversations/dm")

	if err := c.check(resp, err, "start direct message"); err != nil {
		return nil, nil, err
	}

	summary := &dto.ConversationSummary{}
	_ = copier.Copy(summary, &conv)
	summary.OtherParticipantUsername = withUser

	return &conv, summary, nil
}

// MarkConversationRead 标记会话已读，无请求体
func (c *Client) MarkConversationRead(ctx context.Context, conversationID int64) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", strconv.FormatInt(conversationID, 10)).
		Post("/conversations/{id}/read")

	return c.check(resp, err, "mark conversation read")
}

// GetUnreadCount 拉取全部会话未读总数
func (c *Client) GetUnreadCount(ctx context.Context) (int64, error) {
	var count int64
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&count).
		Get("/conversations/unread-count")

	if err := c.check(resp, err, "get unread count"); err != nil {
		return 0, err
	}
	return count, nil
}

// GetAllPresences 拉取全量在线状态快照
func (c *Client) GetAllPresences(ctx context.Context) ([]dto.UserPresence, error) {
	var list []dto.UserPresence
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&list).
		Get("/users/presence")

	if err := c.check(resp, err, "get presence snapshot"); err != nil {
		return nil, err
	}
	return list, nil
}

// SearchUsers 按用户名子串检索用户；防抖由调用方负责
func (c *Client) SearchUsers(ctx context.Context, query string) ([]dto.User, error) {
	var users []dto.User
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("query", query).
		SetResult(&users).
		Get("/users/search")

	if err := c.check(resp, err, "search users"); err != nil {
		return nil, err
	}
	return users, nil
}
