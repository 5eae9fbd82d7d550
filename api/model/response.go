package model

import (
	"time"

	"github.com/fyerfyer/meeting-QA-system/internal/vectordb"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// FileUploadResponse 转写文件上传响应
type FileUploadResponse struct {
	FileID      string `json:"file_id"`      // 文件ID
	FileName    string `json:"filename"`     // 文件名
	MeetingID   string `json:"meeting_id"`   // 会议ID
	MeetingType string `json:"meeting_type"` // 会议类型
	Status      string `json:"status"`       // 处理状态：uploaded、processing、completed、failed
}

// FileStatusResponse 转写文件状态查询响应
type FileStatusResponse struct {
	FileID    string `json:"file_id"`            // 文件ID
	Status    string `json:"status"`             // 处理状态
	FileName  string `json:"filename"`           // 文件名
	MeetingID string `json:"meeting_id"`         // 会议ID
	Progress  int    `json:"progress"`           // 处理进度（0-100）
	Stage     string `json:"stage,omitempty"`    // 当前处理阶段
	Error     string `json:"error,omitempty"`    // 错误信息（如果有）
	Segments  int    `json:"segments,omitempty"` // 分块数量（处理完成后）
	CreatedAt string `json:"created_at"`         // 创建时间
	UpdatedAt string `json:"updated_at"`         // 更新时间
}

// FileInfo 转写文件信息
type FileInfo struct {
	FileID       string                 `json:"file_id"`            // 文件ID
	FileName     string                 `json:"filename"`           // 文件名
	MeetingID    string                 `json:"meeting_id"`         // 会议ID
	MeetingType  string                 `json:"meeting_type"`       // 会议类型
	Status       string                 `json:"status"`             // 处理状态
	UploadTime   time.Time              `json:"upload_time"`        // 上传时间
	Segments     int                    `json:"segments"`           // 分块数量
	Utterances   int                    `json:"utterances"`         // 发言数量
	SpeakerCount int                    `json:"speaker_count"`      // 说话人数量
	Metadata     map[string]interface{} `json:"metadata,omitempty"` // 元数据
}

// FileListResponse 转写文件列表响应
type FileListResponse struct {
	Total    int64      `json:"total"`     // 总数量
	Page     int        `json:"page"`      // 当前页码
	PageSize int        `json:"page_size"` // 每页大小
	Files    []FileInfo `json:"files"`     // 文件列表
}

// FileDeleteResponse 转写文件删除响应
type FileDeleteResponse struct {
	Success bool   `json:"success"` // 是否成功
	FileID  string `json:"file_id"` // 文件ID
}

// QASourceInfo 问答来源信息
type QASourceInfo struct {
	Text         string  `json:"text"`            // 相关的转写片段
	TranscriptID string  `json:"transcript_id"`   // 转写文件ID
	MeetingID    string  `json:"meeting_id"`      // 会议ID
	FileName     string  `json:"filename"`        // 文件名
	Position     int     `json:"position"`        // 分块位置
	Score        float32 `json:"score,omitempty"` // 相似度分数
}

// QAResponse 问答响应
type QAResponse struct {
	Question string         `json:"question"` // 用户问题
	Answer   string         `json:"answer"`   // AI生成的回答
	Sources  []QASourceInfo `json:"sources"`  // 来源信息
}

// ConvertToSourceInfo 将向量数据库文本块转换为来源信息
func ConvertToSourceInfo(chunks []vectordb.Chunk) []QASourceInfo {
	if len(chunks) == 0 {
		return []QASourceInfo{}
	}

	sources := make([]QASourceInfo, len(chunks))
	for i, chunk := range chunks {
		sources[i] = QASourceInfo{
			Text:         chunk.Text,
			TranscriptID: chunk.TranscriptID,
			MeetingID:    chunk.MeetingID,
			FileName:     chunk.FileName,
			Position:     chunk.Position,
		}
	}
	return sources
}

// PaginationResponse 分页响应信息
type PaginationResponse struct {
	Total    int `json:"total"`     // 总记录数
	Page     int `json:"page"`      // 当前页码
	PageSize int `json:"page_size"` // 每页大小
}
