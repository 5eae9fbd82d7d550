package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TranscriptStatus 转写文件处理状态类型
type TranscriptStatus string

const (
	// TranscriptStatusUploaded 转写文件已上传，等待处理
	TranscriptStatusUploaded TranscriptStatus = "uploaded"
	// TranscriptStatusProcessing 转写文件处理中
	TranscriptStatusProcessing TranscriptStatus = "processing"
	// TranscriptStatusCompleted 转写文件处理完成
	TranscriptStatusCompleted TranscriptStatus = "completed"
	// TranscriptStatusFailed 转写文件处理失败
	TranscriptStatusFailed TranscriptStatus = "failed"
)

// ProcessStage 转写文件处理阶段
type ProcessStage string

const (
	// StageParsing 解析阶段
	StageParsing ProcessStage = "parsing"
	// StageChunking 分块阶段
	StageChunking ProcessStage = "chunking"
	// StageVectorizing 向量化阶段
	StageVectorizing ProcessStage = "vectorizing"
	// StageCompleted 处理完成
	StageCompleted ProcessStage = "completed"
)

// Transcript 会议转写文件数据模型
// 记录一份.mrt文件的处理状态和解析出的会议元数据
type Transcript struct {
	ID             string           `gorm:"primaryKey"`         // 转写文件ID，主键
	MeetingID      string           `gorm:"not null;index"`     // 会议ID（文件名主干，如Bmr001）
	Session        string           `gorm:"size:50"`            // 会议Session标识
	MeetingType    string           `gorm:"size:10;index"`      // 会议类型代码（mr/ed/ro等）
	FileName       string           `gorm:"not null"`           // 文件名
	FilePath       string           `gorm:"not null"`           // 文件路径
	FileSize       int64            `gorm:"not null"`           // 文件大小（字节）
	ContentHash    string           `gorm:"size:64;index"`      // 文件内容SHA-256哈希
	Status         TranscriptStatus `gorm:"not null;index"`     // 处理状态
	UploadedAt     time.Time        `gorm:"not null;index"`     // 上传时间
	ProcessedAt    *time.Time       `gorm:"index"`              // 处理完成时间
	UpdatedAt      time.Time        `gorm:"not null;index"`     // 更新时间
	Progress       int              `gorm:"not null;default:0"` // 处理进度（0-100）
	Error          string           `gorm:"type:text"`          // 错误信息
	SegmentCount   int              `gorm:"not null;default:0"` // 文本分块数量
	UtteranceCount int              `gorm:"not null;default:0"` // 发言数量（不含数字任务）
	SpeakerCount   int              `gorm:"not null;default:0"` // 说话人数量
	Metadata       datatypes.JSON   `gorm:"type:json"`          // 会议元数据，JSON格式
	CurrentStage   ProcessStage     `gorm:"size:20"`            // 当前处理阶段
	CurrentTaskID  string           `gorm:"size:50;index"`      // 当前关联的任务ID
	LastTaskStatus string           `gorm:"size:20"`            // 最后任务的状态
	RetryCount     int              `gorm:"default:0"`          // 重试次数
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (t *Transcript) BeforeCreate(tx *gorm.DB) (err error) {
	if t.UploadedAt.IsZero() {
		t.UploadedAt = time.Now()
	}
	t.UpdatedAt = time.Now()
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (t *Transcript) BeforeUpdate(tx *gorm.DB) (err error) {
	t.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (Transcript) TableName() string {
	return "transcripts"
}

// TranscriptSegment 转写文本分块数据模型
// 用于在数据库中跟踪转写全文切分出的文本块
type TranscriptSegment struct {
	ID           uint           `gorm:"primaryKey;autoIncrement"` // 主键ID
	TranscriptID string         `gorm:"not null;index"`           // 所属转写文件ID
	SegmentID    string         `gorm:"not null;uniqueIndex"`     // 分块唯一ID
	Position     int            `gorm:"not null"`                 // 分块位置
	Text         string         `gorm:"type:text;not null"`       // 分块文本内容
	CreatedAt    time.Time      `gorm:"not null"`                 // 创建时间
	UpdatedAt    time.Time      `gorm:"not null"`                 // 更新时间
	Metadata     datatypes.JSON `gorm:"type:json"`                // 分块元数据
	TaskID       string         `gorm:"size:50;index"`            // 处理此分块的任务ID
	VectorID     string         `gorm:"size:50"`                  // 向量数据库中的ID
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (ts *TranscriptSegment) BeforeCreate(tx *gorm.DB) (err error) {
	now := time.Now()
	ts.CreatedAt = now
	ts.UpdatedAt = now
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (ts *TranscriptSegment) BeforeUpdate(tx *gorm.DB) (err error) {
	ts.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (TranscriptSegment) TableName() string {
	return "transcript_segments"
}

// TranscriptTask 转写文件任务关联模型
// 用于跟踪转写文件的处理任务
type TranscriptTask struct {
	ID           uint           `gorm:"primaryKey;autoIncrement"` // 主键ID
	TranscriptID string         `gorm:"not null;index"`           // 转写文件ID
	TaskID       string         `gorm:"not null;uniqueIndex"`     // 任务ID
	TaskType     string         `gorm:"not null;size:50"`         // 任务类型
	Status       string         `gorm:"not null;size:20"`         // 任务状态
	CreatedAt    time.Time      `gorm:"not null"`                 // 创建时间
	UpdatedAt    time.Time      `gorm:"not null"`                 // 更新时间
	StartedAt    *time.Time     `gorm:""`                         // 开始时间
	EndedAt      *time.Time     `gorm:""`                         // 结束时间
	Error        string         `gorm:"type:text"`                // 错误信息
	Result       datatypes.JSON `gorm:"type:json"`                // 任务结果
	Retries      int            `gorm:"default:0"`                // 重试次数
	Progress     int            `gorm:"default:0"`                // 进度（0-100）
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (tt *TranscriptTask) BeforeCreate(tx *gorm.DB) (err error) {
	now := time.Now()
	tt.CreatedAt = now
	tt.UpdatedAt = now
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (tt *TranscriptTask) BeforeUpdate(tx *gorm.DB) (err error) {
	tt.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (TranscriptTask) TableName() string {
	return "transcript_tasks"
}
