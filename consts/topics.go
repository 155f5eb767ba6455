package consts

import "strconv"

// 服务端广播前缀与应用指令前缀，须与网关的 STOMP 配置保持一致
const (
	TopicPrefix = "/topic"
	AppPrefix   = "/app"
)

const (
	ChatTopicKey   = "/topic/chat/"
	TypingTopicSuf = "/typing"
	PresenceTopic  = "/topic/presence"
	ChatSendKey    = "/app/chat/"
)

// ChatTopic 会话消息广播频道
func ChatTopic(conversationID int64) string {
	return ChatTopicKey + strconv.FormatInt(conversationID, 10)
}

// TypingTopic 会话输入状态广播频道
func TypingTopic(conversationID int64) string {
	return ChatTopicKey + strconv.FormatInt(conversationID, 10) + TypingTopicSuf
}

// ChatSendDest 发送消息的应用指令目的地
func ChatSendDest(conversationID int64) string {
	return ChatSendKey + strconv.FormatInt(conversationID, 10)
}

// TypingSendDest 上报输入状态的应用指令目的地
func TypingSendDest(conversationID int64) string {
	return ChatSendKey + strconv.FormatInt(conversationID, 10) + TypingTopicSuf
}
