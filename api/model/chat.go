package model

import (
	"time"
)

// CreateChatRequest 创建聊天会话请求
type CreateChatRequest struct {
	Title string `json:"title,omitempty"` // 会话标题，可选，如果不提供将使用默认标题
}

// ChatRequest 聊天问答请求
// 在指定会话中提问，携带对话历史进行检索问答
type ChatRequest struct {
	SessionID    string `json:"session_id" binding:"omitempty"`                      // 会话ID，为空时自动创建新会话
	Question     string `json:"question" binding:"required,min=1,max=2000"`          // 问题内容
	TranscriptID string `json:"transcript_id" binding:"omitempty"`                   // 可选，限定从特定转写文件中回答
	MeetingID    string `json:"meeting_id" binding:"omitempty,meetingid"` // 可选，限定从特定会议中回答
	MeetingType  string `json:"meeting_type" binding:"omitempty,alpha,len=2"`        // 可选，限定会议类型
	Stream       bool   `json:"stream,omitempty"`                                    // 是否以SSE流式返回回答
}

// ChatResponse 聊天问答响应
type ChatResponse struct {
	SessionID string         `json:"session_id"` // 会话ID
	Question  string         `json:"question"`   // 用户问题
	Answer    string         `json:"answer"`     // 助手回答
	Sources   []QASourceInfo `json:"sources"`    // 引用来源
}

// GetChatHistoryRequest 获取聊天历史请求
type GetChatHistoryRequest struct {
	SessionID         string `uri:"session_id" binding:"required"` // 会话ID
	PaginationRequest        // 嵌入分页请求
}

// ChatListRequest 聊天会话列表请求
type ChatListRequest struct {
	PaginationRequest            // 嵌入分页请求
	StartTime         *time.Time `form:"start_time" json:"start_time,omitempty"` // 开始时间
	EndTime           *time.Time `form:"end_time" json:"end_time,omitempty"`     // 结束时间
}

// RenameChatRequest 重命名聊天会话请求
type RenameChatRequest struct {
	SessionID string `uri:"session_id" binding:"required"` // 会话ID
	Title     string `json:"title" binding:"required"`     // 新标题
}

// DeleteChatRequest 删除聊天会话请求
type DeleteChatRequest struct {
	SessionID string `uri:"session_id" binding:"required"` // 会话ID
}

// CreateChatResponse 创建聊天会话响应
type CreateChatResponse struct {
	ChatID    string    `json:"chat_id"`    // 会话ID
	Title     string    `json:"title"`      // 会话标题
	CreatedAt time.Time `json:"created_at"` // 创建时间
}

// MessageInfo 聊天消息信息
type MessageInfo struct {
	ID        string         `json:"id"`                // 消息ID
	Role      string         `json:"role"`              // 消息角色
	Content   string         `json:"content"`           // 消息内容
	CreatedAt time.Time      `json:"created_at"`        // 创建时间
	Sources   []QASourceInfo `json:"sources,omitempty"` // 引用来源(如果有)
}

// ChatHistoryResponse 聊天历史响应
type ChatHistoryResponse struct {
	ChatID   string        `json:"chat_id"`  // 会话ID
	Title    string        `json:"title"`    // 会话标题
	Messages []MessageInfo `json:"messages"` // 消息列表
}

// ChatInfo 聊天会话信息
type ChatInfo struct {
	ID           string    `json:"id"`            // 会话ID
	Title        string    `json:"title"`         // 会话标题
	CreatedAt    time.Time `json:"created_at"`    // 创建时间
	UpdatedAt    time.Time `json:"updated_at"`    // 更新时间
	MessageCount int       `json:"message_count"` // 消息数量
}

// ChatListResponse 聊天会话列表响应
type ChatListResponse struct {
	Total    int64      `json:"total"`     // 总数量
	Page     int        `json:"page"`      // 当前页码
	PageSize int        `json:"page_size"` // 每页大小
	Chats    []ChatInfo `json:"chats"`     // 会话列表
}

// DeleteChatResponse 删除会话响应
type DeleteChatResponse struct {
	Success   bool   `json:"success"`    // 是否成功
	SessionID string `json:"session_id"` // 会话ID
}

// RenameChatResponse 重命名会话响应
type RenameChatResponse struct {
	Success   bool      `json:"success"`    // 是否成功
	SessionID string    `json:"session_id"` // 会话ID
	Title     string    `json:"title"`      // 新标题
	UpdatedAt time.Time `json:"updated_at"` // 更新时间
}
