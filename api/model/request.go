package model

import (
	"mime/multipart"
	"time"
)

// 分页请求参数
type PaginationRequest struct {
	Page     int `form:"page" json:"page" binding:"omitempty,min=1"`           // 当前页码，从1开始
	PageSize int `form:"page_size" json:"page_size" binding:"omitempty,min=1"` // 每页记录数
}

// GetPage 获取页码，默认为1
func (p *PaginationRequest) GetPage() int {
	if p.Page <= 0 {
		return 1
	}
	return p.Page
}

// GetPageSize 获取每页记录数，默认为10，最大为100
func (p *PaginationRequest) GetPageSize() int {
	if p.PageSize <= 0 {
		return 10
	}
	if p.PageSize > 100 {
		return 100
	}
	return p.PageSize
}

// FileUploadRequest 转写文件上传请求
type FileUploadRequest struct {
	File     *multipart.FileHeader `form:"file" binding:"required"`                      // MRT转写文件
	Metadata map[string]string     `form:"metadata" json:"metadata" binding:"omitempty"` // 附加元数据
}

// FileStatusRequest 转写文件状态查询请求
type FileStatusRequest struct {
	ID string `uri:"id" binding:"required"` // 转写文件ID
}

// FileListRequest 转写文件列表请求
type FileListRequest struct {
	PaginationRequest
	StartTime   *time.Time `form:"start_time" json:"start_time" binding:"omitempty"`                      // 开始时间
	EndTime     *time.Time `form:"end_time" json:"end_time" binding:"omitempty"`                          // 结束时间
	Status      string     `form:"status" json:"status" binding:"omitempty"`                              // 处理状态
	MeetingType string     `form:"meeting_type" json:"meeting_type" binding:"omitempty,alpha,len=2"`      // 会议类型（mr/ed/ro等）
	MeetingID   string     `form:"meeting_id" json:"meeting_id" binding:"omitempty,meetingid"` // 会议ID
}

// FileDeleteRequest 转写文件删除请求
type FileDeleteRequest struct {
	ID string `uri:"id" binding:"required"` // 转写文件ID
}

// QARequest 问答请求
type QARequest struct {
	Question     string `json:"question" binding:"required,min=1,max=2000"`               // 问题内容
	TranscriptID string `json:"transcript_id" binding:"omitempty"`                        // 可选，限定从特定转写文件中回答
	MeetingID    string `json:"meeting_id" binding:"omitempty,meetingid"`      // 可选，限定从特定会议中回答
	MeetingType  string `json:"meeting_type" binding:"omitempty,alpha,len=2"`             // 可选，限定会议类型
}
