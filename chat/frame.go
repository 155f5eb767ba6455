package chat

import "github.com/goccy/go-json"

// FrameType 帧类型
type FrameType string

const (
	FrameSubscribe   FrameType = "SUBSCRIBE"
	FrameUnsubscribe FrameType = "UNSUBSCRIBE"
	FrameSend        FrameType = "SEND"
	FrameMessage     FrameType = "MESSAGE"
)

// Frame 单条逻辑帧：多个主题复用一条物理连接，由 destination 区分
type Frame struct {
	Type        FrameType       `json:"type"`
	Destination string          `json:"destination"`
	Body        json.RawMessage `json:"body,omitempty"`
}
