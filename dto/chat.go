package dto

import "time"

// 会话类型，与服务端枚举一致
const (
	ConvTypeDirect   = "DIRECT_MESSAGE"
	ConvTypeGroup    = "GROUP"
	ConvTypeDocument = "DOCUMENT"
)

// ChatMessage 聊天消息明细
type ChatMessage struct {
	ID                      int64     `json:"id"`
	ConversationID          int64     `json:"conversationId"`
	SenderUsername          string    `json:"senderUsername"`
	SenderProfilePictureURL string    `json:"senderProfilePictureUrl,omitempty"`
	Content                 string    `json:"content"`
	Timestamp               time.Time `json:"timestamp"`
	ReadCount               int64     `json:"readCount"`
	TotalRecipients         int64     `json:"totalRecipients"`
}

// FullyRead 判断消息是否已被全部接收者读取；接收者数为 0 时恒为未读
func (m *ChatMessage) FullyRead() bool {
	return m.TotalRecipients > 0 && m.ReadCount >= m.TotalRecipients
}

// NewChatMessageReq 发送消息请求体，发送者由握手身份决定
type NewChatMessageReq struct {
	Content string `json:"content"`
}

// Conversation 会话实体
type Conversation struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name,omitempty"`
	Type       string    `json:"type"`
	DocumentID int64     `json:"documentId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ConversationSummary 会话列表项
type ConversationSummary struct {
	ID                             int64      `json:"id"`
	Name                           string     `json:"name,omitempty"`
	Type                           string     `json:"type"`
	DocumentID                     int64      `json:"documentId,omitempty"`
	LastMessage                    string     `json:"lastMessage,omitempty"`
	LastMessageTime                *time.Time `json:"lastMessageTime,omitempty"`
	LastMessageSender              string     `json:"lastMessageSender,omitempty"`
	UnreadCount                    int64      `json:"unreadCount"`
	OtherParticipantUsername       string     `json:"otherParticipantUsername,omitempty"`
	OtherParticipantProfilePicture string     `json:"otherParticipantProfilePicture,omitempty"`
}

// TypingIndicator 输入状态事件；出方向时 username 由服务端补全
type TypingIndicator struct {
	Username string `json:"username,omitempty"`
	Typing   bool   `json:"typing"`
}
