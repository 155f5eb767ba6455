package dto

import "time"

// 在线状态枚举
const (
	StatusOnline  = "ONLINE"
	StatusOffline = "OFFLINE"
)

// UserPresence 用户在线状态
type UserPresence struct {
	UserID   int64      `json:"userId"`
	Username string     `json:"username"`
	Status   string     `json:"status"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// User 用户检索结果项
type User struct {
	ID                int64  `json:"id"`
	Username          string `json:"username"`
	Email             string `json:"email,omitempty"`
	ProfilePictureURL string `json:"profilePictureUrl,omitempty"`
}
