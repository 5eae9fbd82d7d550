package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// 分块任务的默认参数
const (
	DefaultChunkSize = 512
	DefaultOverlap   = 50
)

// TaskCallbackHandler 任务回调处理函数类型
// 处理特定类型任务的回调，返回处理结果
type TaskCallbackHandler func(ctx context.Context, task *Task, result json.RawMessage) error

// CallbackProcessor 回调处理器
// 负责接收和处理任务回调，把流水线的下一步任务入队
type CallbackProcessor struct {
	queue     Queue                            // 任务队列
	handlers  map[TaskType]TaskCallbackHandler // 任务类型对应的处理函数
	defaultFn TaskCallbackHandler              // 默认处理函数
	logger    *logrus.Logger                   // 日志记录器
}

// NewCallbackProcessor 创建新的回调处理器
func NewCallbackProcessor(queue Queue, logger *logrus.Logger) *CallbackProcessor {
	if logger == nil {
		logger = logrus.New()
	}

	return &CallbackProcessor{
		queue:    queue,
		handlers: make(map[TaskType]TaskCallbackHandler),
		logger:   logger,
	}
}

// RegisterHandler 注册特定类型的任务处理函数
func (p *CallbackProcessor) RegisterHandler(taskType TaskType, handler TaskCallbackHandler) {
	p.handlers[taskType] = handler
	p.logger.Infof("Registered handler for task type: %s", taskType)
}

// ProcessCallback 处理回调数据
func (p *CallbackProcessor) ProcessCallback(ctx context.Context, callbackData []byte) error {
	var callback TaskCallback
	if err := json.Unmarshal(callbackData, &callback); err != nil {
		return fmt.Errorf("failed to unmarshal callback data: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"task_id":       callback.TaskID,
		"transcript_id": callback.TranscriptID,
		"status":        callback.Status,
		"type":          callback.Type,
	}).Info("Processing task callback")

	task, err := p.queue.GetTask(ctx, callback.TaskID)
	if err != nil {
		p.logger.WithError(err).Errorf("Failed to get task: %s", callback.TaskID)
		return fmt.Errorf("failed to get task: %w", err)
	}

	err = p.queue.UpdateTaskStatus(ctx, callback.TaskID, callback.Status, callback.Result, callback.Error)
	if err != nil {
		p.logger.WithError(err).Errorf("Failed to update task status: %s", callback.TaskID)
		return fmt.Errorf("failed to update task status: %w", err)
	}

	if err := p.queue.NotifyTaskUpdate(ctx, callback.TaskID); err != nil {
		p.logger.WithError(err).Warn("Failed to notify task update")
	}

	// 失败的任务只记录错误，不触发后续流程
	if callback.Status == StatusFailed {
		p.logger.WithFields(logrus.Fields{
			"task_id": callback.TaskID,
			"error":   callback.Error,
		}).Error("Task failed")
		return nil
	}

	handler, exists := p.handlers[callback.Type]
	if !exists {
		handler = p.defaultFn
	}
	if handler == nil {
		p.logger.Debug("No handler available for task type: " + string(callback.Type))
		return nil
	}

	p.logger.Debugf("Calling handler for task: %s (type: %s)", task.ID, task.Type)
	return handler(ctx, task, callback.Result)
}

// CallbackRequest HTTP回调请求结构体
type CallbackRequest struct {
	TaskID       string          `json:"task_id"`       // 任务ID
	TranscriptID string          `json:"transcript_id"` // 转写文件ID
	Status       TaskStatus      `json:"status"`        // 任务状态
	Type         TaskType        `json:"type"`          // 任务类型
	Result       json.RawMessage `json:"result"`        // 任务结果
	Error        string          `json:"error"`         // 错误信息
	Timestamp    string          `json:"timestamp"`     // 时间戳
}

// CallbackResponse HTTP回调响应结构体
type CallbackResponse struct {
	Success   bool   `json:"success"`           // 是否成功
	Message   string `json:"message,omitempty"` // 消息
	TaskID    string `json:"task_id"`           // 任务ID
	Timestamp string `json:"timestamp"`         // 时间戳
}

// HandleCallback 处理HTTP回调请求
func (p *CallbackProcessor) HandleCallback(ctx context.Context, req *CallbackRequest) (*CallbackResponse, error) {
	p.logger.WithFields(logrus.Fields{
		"task_id":       req.TaskID,
		"transcript_id": req.TranscriptID,
		"status":        req.Status,
		"type":          req.Type,
	}).Info("Received callback request")

	// 时间戳可能来自不同客户端，兼容几种常见格式
	var timestamp time.Time
	if req.Timestamp != "" {
		formats := []string{
			time.RFC3339,
			"2006-01-02T15:04:05Z",
			"2006-01-02T15:04:05.999999",
			"2006-01-02T15:04:05",
		}

		var parseErr error
		for _, format := range formats {
			timestamp, parseErr = time.Parse(format, req.Timestamp)
			if parseErr == nil {
				break
			}
		}

		if parseErr != nil {
			p.logger.WithFields(logrus.Fields{
				"timestamp": req.Timestamp,
				"error":     parseErr,
			}).Warn("Failed to parse timestamp, using current time")
			timestamp = time.Now()
		}
	} else {
		timestamp = time.Now()
	}

	callback := &TaskCallback{
		TaskID:       req.TaskID,
		TranscriptID: req.TranscriptID,
		Status:       req.Status,
		Type:         req.Type,
		Result:       req.Result,
		Error:        req.Error,
		Timestamp:    timestamp,
	}

	callbackData, err := json.Marshal(callback)
	if err != nil {
		p.logger.WithError(err).Error("Failed to marshal callback data")
		return &CallbackResponse{
			Success:   false,
			Message:   fmt.Sprintf("failed to marshal callback: %v", err),
			TaskID:    req.TaskID,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}, err
	}

	err = p.ProcessCallback(ctx, callbackData)
	if err != nil {
		p.logger.WithError(err).Error("Failed to process callback")
		return &CallbackResponse{
			Success:   false,
			Message:   err.Error(),
			TaskID:    req.TaskID,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}, err
	}

	return &CallbackResponse{
		Success:   true,
		Message:   "Task callback processed successfully",
		TaskID:    req.TaskID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// DefaultTranscriptParseHandler 默认的转写解析回调处理函数
// 解析完成后创建分块任务
func DefaultTranscriptParseHandler(queue Queue, logger *logrus.Logger) TaskCallbackHandler {
	return func(ctx context.Context, task *Task, result json.RawMessage) error {
		var parseResult TranscriptParseResult
		if err := json.Unmarshal(result, &parseResult); err != nil {
			logger.WithError(err).Error("Failed to unmarshal transcript parse result")
			return fmt.Errorf("failed to unmarshal transcript parse result: %w", err)
		}

		logger.WithFields(logrus.Fields{
			"task_id":       task.ID,
			"transcript_id": task.TranscriptID,
			"meeting_id":    parseResult.MeetingID,
			"utterances":    parseResult.UtteranceCount,
			"speakers":      parseResult.SpeakerCount,
		}).Info("Transcript parse completed")

		// 解析出空文本时不创建后续任务
		if parseResult.Text == "" {
			logger.Warn("Empty transcript text, skipping chunk task")
			return nil
		}

		chunkPayload := TextChunkPayload{
			TranscriptID: task.TranscriptID,
			Content:      parseResult.Text,
			ChunkSize:    DefaultChunkSize,
			Overlap:      DefaultOverlap,
		}

		taskID, err := queue.Enqueue(ctx, TaskTextChunk, task.TranscriptID, chunkPayload)
		if err != nil {
			logger.WithError(err).Error("Failed to enqueue chunk task")
			return fmt.Errorf("failed to enqueue chunk task: %w", err)
		}

		logger.WithFields(logrus.Fields{
			"transcript_id": task.TranscriptID,
			"chunk_task_id": taskID,
		}).Info("Created text chunk task")

		return nil
	}
}

// DefaultTextChunkHandler 默认的文本分块回调处理函数
// 分块完成后创建向量化任务
func DefaultTextChunkHandler(queue Queue, logger *logrus.Logger) TaskCallbackHandler {
	return func(ctx context.Context, task *Task, result json.RawMessage) error {
		var chunkResult TextChunkResult
		if err := json.Unmarshal(result, &chunkResult); err != nil {
			logger.WithError(err).Error("Failed to unmarshal text chunk result")
			return fmt.Errorf("failed to unmarshal text chunk result: %w", err)
		}

		logger.WithFields(logrus.Fields{
			"task_id":       task.ID,
			"transcript_id": task.TranscriptID,
			"chunk_count":   chunkResult.ChunkCount,
		}).Info("Text chunking completed")

		if len(chunkResult.Chunks) == 0 {
			logger.Warn("No text chunks generated, skipping vectorization")
			return nil
		}

		vectorizePayload := VectorizePayload{
			TranscriptID: task.TranscriptID,
			Chunks:       chunkResult.Chunks,
			Model:        "default",
		}

		taskID, err := queue.Enqueue(ctx, TaskVectorize, task.TranscriptID, vectorizePayload)
		if err != nil {
			logger.WithError(err).Error("Failed to enqueue vectorize task")
			return fmt.Errorf("failed to enqueue vectorize task: %w", err)
		}

		logger.WithFields(logrus.Fields{
			"transcript_id":     task.TranscriptID,
			"vectorize_task_id": taskID,
			"chunk_count":       len(chunkResult.Chunks),
		}).Info("Created vectorization task")

		return nil
	}
}

// DefaultVectorizeHandler 默认的向量化回调处理函数
// 向量化是任务流程的最后一步，向量入库由服务层注册的处理函数完成
func DefaultVectorizeHandler(queue Queue, logger *logrus.Logger) TaskCallbackHandler {
	return func(ctx context.Context, task *Task, result json.RawMessage) error {
		var vectorizeResult VectorizeResult
		if err := json.Unmarshal(result, &vectorizeResult); err != nil {
			logger.WithError(err).Error("Failed to unmarshal vectorize result")
			return fmt.Errorf("failed to unmarshal vectorize result: %w", err)
		}

		logger.WithFields(logrus.Fields{
			"task_id":       task.ID,
			"transcript_id": task.TranscriptID,
			"vector_count":  vectorizeResult.VectorCount,
			"model":         vectorizeResult.Model,
			"dimension":     vectorizeResult.Dimension,
		}).Info("Vectorization completed")

		return nil
	}
}

// DefaultProcessCompleteHandler 默认的完整处理流程回调处理函数
func DefaultProcessCompleteHandler(queue Queue, logger *logrus.Logger) TaskCallbackHandler {
	return func(ctx context.Context, task *Task, result json.RawMessage) error {
		var completeResult ProcessCompleteResult
		if err := json.Unmarshal(result, &completeResult); err != nil {
			logger.WithError(err).Error("Failed to unmarshal process complete result")
			return fmt.Errorf("failed to unmarshal process complete result: %w", err)
		}

		logger.WithFields(logrus.Fields{
			"task_id":       task.ID,
			"transcript_id": task.TranscriptID,
			"utterances":    completeResult.UtteranceCount,
			"chunk_count":   completeResult.ChunkCount,
			"vector_count":  completeResult.VectorCount,
			"parse_status":  completeResult.ParseStatus,
			"chunk_status":  completeResult.ChunkStatus,
			"vector_status": completeResult.VectorStatus,
		}).Info("Transcript processing completed")

		return nil
	}
}

// RegisterDefaultHandlers 注册默认的任务处理函数
func (p *CallbackProcessor) RegisterDefaultHandlers(queue Queue) {
	p.RegisterHandler(TaskTranscriptParse, DefaultTranscriptParseHandler(queue, p.logger))
	p.RegisterHandler(TaskTextChunk, DefaultTextChunkHandler(queue, p.logger))
	p.RegisterHandler(TaskVectorize, DefaultVectorizeHandler(queue, p.logger))
	p.RegisterHandler(TaskProcessComplete, DefaultProcessCompleteHandler(queue, p.logger))

	p.logger.Info("Registered default task handlers")
}

// GetRegisteredHandlerTypes 返回已注册处理函数的任务类型集合
func (p *CallbackProcessor) GetRegisteredHandlerTypes() map[TaskType]bool {
	result := make(map[TaskType]bool)
	for handlerType := range p.handlers {
		result[handlerType] = true
	}
	return result
}
