package taskqueue

import (
	"encoding/json"
	"time"
)

// TaskType 任务类型
type TaskType string

const (
	// TaskTranscriptParse 转写文件解析任务
	TaskTranscriptParse TaskType = "transcript_parse"
	// TaskTextChunk 文本分块任务
	TaskTextChunk TaskType = "text_chunk"
	// TaskVectorize 文本向量化任务
	TaskVectorize TaskType = "vectorize"
	// TaskProcessComplete 转写处理完整流程任务
	TaskProcessComplete TaskType = "process_complete"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	// StatusPending 等待处理
	StatusPending TaskStatus = "pending"
	// StatusProcessing 处理中
	StatusProcessing TaskStatus = "processing"
	// StatusCompleted 已完成
	StatusCompleted TaskStatus = "completed"
	// StatusFailed 处理失败
	StatusFailed TaskStatus = "failed"
)

// Task 任务基础结构
type Task struct {
	ID           string          `json:"id"`            // 任务唯一标识符
	Type         TaskType        `json:"type"`          // 任务类型
	TranscriptID string          `json:"transcript_id"` // 关联的转写文件ID
	Status       TaskStatus      `json:"status"`        // 任务状态
	Payload      json.RawMessage `json:"payload"`       // 任务载荷数据，不同任务类型对应不同结构
	Result       json.RawMessage `json:"result"`        // 任务结果数据，不同任务类型对应不同结构
	Error        string          `json:"error"`         // 错误信息（如果处理失败）
	CreatedAt    time.Time       `json:"created_at"`    // 创建时间
	UpdatedAt    time.Time       `json:"updated_at"`    // 更新时间
	StartedAt    *time.Time      `json:"started_at"`    // 开始处理时间
	CompletedAt  *time.Time      `json:"completed_at"`  // 完成时间
	Attempts     int             `json:"attempts"`      // 尝试次数
	MaxRetries   int             `json:"max_retries"`   // 最大重试次数
}

// TranscriptParsePayload 转写文件解析任务载荷
type TranscriptParsePayload struct {
	FilePath  string            `json:"file_path"`  // 文件存储路径
	FileName  string            `json:"file_name"`  // 文件名
	MeetingID string            `json:"meeting_id"` // 会议ID
	Metadata  map[string]string `json:"metadata"`   // 附加元数据
}

// TranscriptParseResult 转写文件解析任务结果
type TranscriptParseResult struct {
	Text           string                 `json:"text"`            // 格式化后的转写全文
	MeetingID      string                 `json:"meeting_id"`      // 会议ID
	Session        string                 `json:"session"`         // 会话标识
	UtteranceCount int                    `json:"utterance_count"` // 发言数
	SpeakerCount   int                    `json:"speaker_count"`   // 发言人数
	Speakers       []string               `json:"speakers"`        // 发言人列表
	Metadata       map[string]interface{} `json:"metadata"`        // 解析出的会议元数据
	Error          string                 `json:"error"`           // 错误信息（如果有）
}

// TextChunkPayload 文本分块任务载荷
type TextChunkPayload struct {
	TranscriptID string `json:"transcript_id"` // 转写文件ID
	Content      string `json:"content"`       // 文本内容
	ChunkSize    int    `json:"chunk_size"`    // 分块大小
	Overlap      int    `json:"overlap"`       // 重叠大小
}

// ChunkInfo 分块信息
type ChunkInfo struct {
	Text  string `json:"text"`  // 分块文本
	Index int    `json:"index"` // 分块索引
}

// TextChunkResult 文本分块任务结果
type TextChunkResult struct {
	TranscriptID string      `json:"transcript_id"` // 转写文件ID
	Chunks       []ChunkInfo `json:"chunks"`        // 分块列表
	ChunkCount   int         `json:"chunk_count"`   // 分块数量
	Error        string      `json:"error"`         // 错误信息（如果有）
}

// VectorizePayload 文本向量化任务载荷
type VectorizePayload struct {
	TranscriptID string      `json:"transcript_id"` // 转写文件ID
	Chunks       []ChunkInfo `json:"chunks"`        // 文本分块
	Model        string      `json:"model"`         // 嵌入模型名称
}

// VectorInfo 向量信息
type VectorInfo struct {
	ChunkIndex int       `json:"chunk_index"` // 分块索引
	Vector     []float32 `json:"vector"`      // 向量数据
}

// VectorizeResult 向量化任务结果
type VectorizeResult struct {
	TranscriptID string       `json:"transcript_id"` // 转写文件ID
	Vectors      []VectorInfo `json:"vectors"`       // 向量列表
	VectorCount  int          `json:"vector_count"`  // 向量数量
	Model        string       `json:"model"`         // 使用的模型
	Dimension    int          `json:"dimension"`     // 向量维度
	Error        string       `json:"error"`         // 错误信息（如果有）
}

// ProcessCompletePayload 完整处理流程任务载荷
type ProcessCompletePayload struct {
	TranscriptID string            `json:"transcript_id"` // 转写文件ID
	FilePath     string            `json:"file_path"`     // 文件路径
	FileName     string            `json:"file_name"`     // 文件名
	MeetingID    string            `json:"meeting_id"`    // 会议ID
	ChunkSize    int               `json:"chunk_size"`    // 分块大小
	Overlap      int               `json:"overlap"`       // 重叠大小
	Model        string            `json:"model"`         // 嵌入模型
	Metadata     map[string]string `json:"metadata"`      // 附加元数据
}

// ProcessCompleteResult 完整处理流程结果
type ProcessCompleteResult struct {
	TranscriptID   string `json:"transcript_id"`   // 转写文件ID
	UtteranceCount int    `json:"utterance_count"` // 发言数
	ChunkCount     int    `json:"chunk_count"`     // 分块数量
	VectorCount    int    `json:"vector_count"`    // 向量数量
	Dimension      int    `json:"dimension"`       // 向量维度
	ParseStatus    string `json:"parse_status"`    // 解析状态
	ChunkStatus    string `json:"chunk_status"`    // 分块状态
	VectorStatus   string `json:"vector_status"`   // 向量化状态
	Error          string `json:"error"`           // 错误信息（如果有）
}

// TaskCallback 任务回调信息
type TaskCallback struct {
	TaskID       string          `json:"task_id"`       // 任务ID
	TranscriptID string          `json:"transcript_id"` // 转写文件ID
	Status       TaskStatus      `json:"status"`        // 任务状态
	Type         TaskType        `json:"type"`          // 任务类型
	Result       json.RawMessage `json:"result"`        // 任务结果
	Error        string          `json:"error"`         // 错误信息
	Timestamp    time.Time       `json:"timestamp"`     // 回调时间戳
}
