package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fyerfyer/meeting-QA-system/internal/models"
	"github.com/fyerfyer/meeting-QA-system/internal/transcript"
	"github.com/fyerfyer/meeting-QA-system/internal/vectordb"
	"github.com/fyerfyer/meeting-QA-system/pkg/taskqueue"
	"github.com/sirupsen/logrus"
)

// EnableAsyncProcessing 启用异步处理
func (s *TranscriptService) EnableAsyncProcessing(queue taskqueue.Queue) {
	s.asyncEnabled = true
	s.taskQueue = queue

	if s.statusManager == nil {
		s.logger.Warn("Status manager not set, creating default one")
		if err := s.Init(); err != nil {
			s.logger.WithError(err).Error("Failed to initialize transcript service")
		}
	}

	// 注册回调处理器，跟踪各阶段任务的状态
	s.registerCallbackHandlers()

	s.logger.Info("Async transcript processing enabled")
}

// DisableAsyncProcessing 禁用异步处理
func (s *TranscriptService) DisableAsyncProcessing() {
	s.asyncEnabled = false
	s.logger.Info("Async transcript processing disabled")
}

// registerCallbackHandlers 在共享回调处理器上注册任务结果处理函数
// 回调驱动转写记录的进度、阶段和终态
func (s *TranscriptService) registerCallbackHandlers() {
	if s.taskQueue == nil {
		s.logger.Warn("Task queue not available, cannot register handlers")
		return
	}

	processor := taskqueue.GetSharedCallbackProcessor(s.taskQueue, s.logger)

	processor.RegisterHandler(taskqueue.TaskTranscriptParse, s.handleParseResult)
	processor.RegisterHandler(taskqueue.TaskTextChunk, s.handleChunkResult)
	processor.RegisterHandler(taskqueue.TaskVectorize, s.handleVectorizeResult)
	processor.RegisterHandler(taskqueue.TaskProcessComplete, s.handleProcessCompleteResult)

	s.logger.Info("Registered transcript task callback handlers")
}

// handleParseResult 处理解析任务结果
func (s *TranscriptService) handleParseResult(ctx context.Context, task *taskqueue.Task, result json.RawMessage) error {
	s.logger.WithFields(logrus.Fields{
		"task_id":       task.ID,
		"transcript_id": task.TranscriptID,
	}).Info("Handling transcript parse result")

	var parseResult taskqueue.TranscriptParseResult
	if err := json.Unmarshal(result, &parseResult); err != nil {
		return fmt.Errorf("failed to unmarshal transcript parse result: %w", err)
	}

	if parseResult.Text == "" {
		err := fmt.Errorf("empty transcript content")
		_ = s.statusManager.MarkAsFailed(ctx, task.TranscriptID, err.Error())
		return err
	}

	if err := s.statusManager.UpdateProgress(ctx, task.TranscriptID, 30); err != nil {
		s.logger.WithError(err).Warn("Failed to update transcript progress")
	}
	if err := s.statusManager.UpdateStage(ctx, task.TranscriptID, models.StageChunking); err != nil {
		s.logger.WithError(err).Warn("Failed to update transcript stage")
	}

	return nil
}

// handleChunkResult 处理分块任务结果
func (s *TranscriptService) handleChunkResult(ctx context.Context, task *taskqueue.Task, result json.RawMessage) error {
	s.logger.WithFields(logrus.Fields{
		"task_id":       task.ID,
		"transcript_id": task.TranscriptID,
	}).Info("Handling text chunk result")

	var chunkResult taskqueue.TextChunkResult
	if err := json.Unmarshal(result, &chunkResult); err != nil {
		return fmt.Errorf("failed to unmarshal text chunk result: %w", err)
	}

	if err := s.statusManager.UpdateProgress(ctx, task.TranscriptID, 60); err != nil {
		s.logger.WithError(err).Warn("Failed to update transcript progress")
	}
	if err := s.statusManager.UpdateStage(ctx, task.TranscriptID, models.StageVectorizing); err != nil {
		s.logger.WithError(err).Warn("Failed to update transcript stage")
	}

	return nil
}

// handleVectorizeResult 处理向量化任务结果
func (s *TranscriptService) handleVectorizeResult(ctx context.Context, task *taskqueue.Task, result json.RawMessage) error {
	s.logger.WithFields(logrus.Fields{
		"task_id":       task.ID,
		"transcript_id": task.TranscriptID,
	}).Info("Handling vectorize result")

	var vectorizeResult taskqueue.VectorizeResult
	if err := json.Unmarshal(result, &vectorizeResult); err != nil {
		return fmt.Errorf("failed to unmarshal vectorize result: %w", err)
	}

	if err := s.statusManager.MarkAsCompleted(ctx, task.TranscriptID, vectorizeResult.VectorCount); err != nil {
		s.logger.WithError(err).Error("Failed to mark transcript as completed")
		return err
	}

	return nil
}

// handleProcessCompleteResult 处理完整流程任务结果
func (s *TranscriptService) handleProcessCompleteResult(ctx context.Context, task *taskqueue.Task, result json.RawMessage) error {
	s.logger.WithFields(logrus.Fields{
		"task_id":       task.ID,
		"transcript_id": task.TranscriptID,
	}).Info("Handling process complete result")

	var completeResult taskqueue.ProcessCompleteResult
	if err := json.Unmarshal(result, &completeResult); err != nil {
		return fmt.Errorf("failed to unmarshal process complete result: %w", err)
	}

	if completeResult.Error != "" {
		s.logger.WithFields(logrus.Fields{
			"transcript_id": task.TranscriptID,
			"error":         completeResult.Error,
		}).Error("Transcript processing failed")

		if err := s.statusManager.MarkAsFailed(ctx, task.TranscriptID, completeResult.Error); err != nil {
			s.logger.WithError(err).Error("Failed to mark transcript as failed")
		}
		return fmt.Errorf("transcript processing failed: %s", completeResult.Error)
	}

	// 解析和分块都成功就标记完成，向量化失败仅告警
	if completeResult.ParseStatus == "completed" && completeResult.ChunkStatus == "completed" {
		if err := s.statusManager.MarkAsCompleted(ctx, task.TranscriptID, completeResult.ChunkCount); err != nil {
			s.logger.WithError(err).Error("Failed to mark transcript as completed")
			return err
		}

		if completeResult.VectorStatus == "failed" {
			s.logger.WithField("transcript_id", task.TranscriptID).Warn(
				"Transcript marked as completed but vectorization failed. Search functionality may be limited.")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"transcript_id": task.TranscriptID,
		"chunk_count":   completeResult.ChunkCount,
		"vector_count":  completeResult.VectorCount,
	}).Info("Transcript processing completed successfully")

	return nil
}

// WaitForTaskResult 等待任务完成并返回结果
func (s *TranscriptService) WaitForTaskResult(ctx context.Context, taskID string, timeout time.Duration) (*taskqueue.Task, error) {
	if !s.asyncEnabled || s.taskQueue == nil {
		return nil, fmt.Errorf("async processing not enabled or task queue not configured")
	}

	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	task, err := s.taskQueue.WaitForTask(ctx, taskID, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for task: %w", err)
	}

	if task.Status == taskqueue.StatusFailed {
		return task, fmt.Errorf("task failed: %s", task.Error)
	}

	return task, nil
}

// TranscriptTaskHandler 转写处理流水线的工作者端实现
// 在asynq工作者进程中执行解析、分块、向量化任务，并在每个阶段完成后入队下一阶段
type TranscriptTaskHandler struct {
	service *TranscriptService
	logger  *logrus.Logger
}

// NewTranscriptTaskHandler 创建转写任务处理器
func NewTranscriptTaskHandler(service *TranscriptService, logger *logrus.Logger) *TranscriptTaskHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &TranscriptTaskHandler{
		service: service,
		logger:  logger,
	}
}

// GetTaskTypes 返回此处理器支持的任务类型
func (h *TranscriptTaskHandler) GetTaskTypes() []taskqueue.TaskType {
	return []taskqueue.TaskType{
		taskqueue.TaskTranscriptParse,
		taskqueue.TaskTextChunk,
		taskqueue.TaskVectorize,
	}
}

// ProcessTask 处理任务
func (h *TranscriptTaskHandler) ProcessTask(ctx context.Context, task *taskqueue.Task) error {
	switch task.Type {
	case taskqueue.TaskTranscriptParse:
		return h.processParseTask(ctx, task)
	case taskqueue.TaskTextChunk:
		return h.processChunkTask(ctx, task)
	case taskqueue.TaskVectorize:
		return h.processVectorizeTask(ctx, task)
	default:
		return fmt.Errorf("unsupported task type: %s", task.Type)
	}
}

// processParseTask 执行解析任务并入队分块任务
func (h *TranscriptTaskHandler) processParseTask(ctx context.Context, task *taskqueue.Task) error {
	var payload taskqueue.TranscriptParsePayload
	if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal parse payload: %w", err)
	}

	record, err := h.service.repo.GetByID(task.TranscriptID)
	if err != nil {
		return fmt.Errorf("failed to get transcript: %w", err)
	}

	doc, err := h.service.parseTranscript(record)
	if err != nil {
		h.service.failTranscript(ctx, task.TranscriptID, fmt.Sprintf("failed to parse transcript: %v", err))
		return fmt.Errorf("failed to parse transcript: %w", err)
	}

	if err := h.service.applyDocumentMetadata(record, doc); err != nil {
		h.logger.WithError(err).Warn("Failed to persist meeting metadata")
	}

	speakers := make([]string, 0)
	if list, ok := doc.Metadata["speakers"].([]string); ok {
		speakers = list
	}
	session, _ := doc.Metadata["session"].(string)

	result := &taskqueue.TranscriptParseResult{
		Text:           doc.Text,
		MeetingID:      doc.MeetingID,
		Session:        session,
		UtteranceCount: len(doc.Utterances),
		SpeakerCount:   len(speakers),
		Speakers:       speakers,
		Metadata:       doc.Metadata,
	}
	if err := h.service.taskQueue.UpdateTaskStatus(ctx, task.ID, taskqueue.StatusCompleted, result, ""); err != nil {
		h.logger.WithError(err).Warn("Failed to save parse task result")
	}

	// 入队分块任务
	chunkPayload := taskqueue.TextChunkPayload{
		TranscriptID: task.TranscriptID,
		Content:      doc.Text,
		ChunkSize:    taskqueue.DefaultChunkSize,
		Overlap:      taskqueue.DefaultOverlap,
	}
	if _, err := h.service.taskQueue.Enqueue(ctx, taskqueue.TaskTextChunk, task.TranscriptID, chunkPayload); err != nil {
		h.service.failTranscript(ctx, task.TranscriptID, fmt.Sprintf("failed to enqueue chunk task: %v", err))
		return fmt.Errorf("failed to enqueue chunk task: %w", err)
	}

	if err := h.service.statusManager.UpdateProgress(ctx, task.TranscriptID, 30); err != nil {
		h.logger.WithError(err).Warn("Failed to update transcript progress")
	}
	if err := h.service.statusManager.UpdateStage(ctx, task.TranscriptID, models.StageChunking); err != nil {
		h.logger.WithError(err).Warn("Failed to update transcript stage")
	}

	return nil
}

// processChunkTask 执行分块任务并入队向量化任务
func (h *TranscriptTaskHandler) processChunkTask(ctx context.Context, task *taskqueue.Task) error {
	var payload taskqueue.TextChunkPayload
	if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal chunk payload: %w", err)
	}

	splitter := h.service.splitter
	if payload.ChunkSize > 0 {
		splitter = transcript.NewSplitter(transcript.SplitterConfig{
			ChunkSize:    payload.ChunkSize,
			ChunkOverlap: payload.Overlap,
		})
	}

	segments := splitter.Split(payload.Content)

	chunks := make([]taskqueue.ChunkInfo, len(segments))
	dbSegments := make([]*models.TranscriptSegment, len(segments))
	for i, text := range segments {
		chunks[i] = taskqueue.ChunkInfo{Text: text, Index: i}
		dbSegments[i] = &models.TranscriptSegment{
			TranscriptID: task.TranscriptID,
			SegmentID:    fmt.Sprintf("%s_%d", task.TranscriptID, i),
			Position:     i,
			Text:         text,
			TaskID:       task.ID,
		}
	}

	if err := h.service.repo.SaveSegments(dbSegments); err != nil {
		h.logger.WithError(err).Error("Failed to save segments to database")
		// 不中断处理
	}

	result := &taskqueue.TextChunkResult{
		TranscriptID: task.TranscriptID,
		Chunks:       chunks,
		ChunkCount:   len(chunks),
	}
	if err := h.service.taskQueue.UpdateTaskStatus(ctx, task.ID, taskqueue.StatusCompleted, result, ""); err != nil {
		h.logger.WithError(err).Warn("Failed to save chunk task result")
	}

	if len(chunks) == 0 {
		h.logger.WithField("transcript_id", task.TranscriptID).Warn("No chunks produced, skipping vectorize task")
		return h.service.statusManager.MarkAsCompleted(ctx, task.TranscriptID, 0)
	}

	// 入队向量化任务
	vectorizePayload := taskqueue.VectorizePayload{
		TranscriptID: task.TranscriptID,
		Chunks:       chunks,
		Model:        "default",
	}
	if _, err := h.service.taskQueue.Enqueue(ctx, taskqueue.TaskVectorize, task.TranscriptID, vectorizePayload); err != nil {
		h.service.failTranscript(ctx, task.TranscriptID, fmt.Sprintf("failed to enqueue vectorize task: %v", err))
		return fmt.Errorf("failed to enqueue vectorize task: %w", err)
	}

	if err := h.service.statusManager.UpdateProgress(ctx, task.TranscriptID, 60); err != nil {
		h.logger.WithError(err).Warn("Failed to update transcript progress")
	}
	if err := h.service.statusManager.UpdateStage(ctx, task.TranscriptID, models.StageVectorizing); err != nil {
		h.logger.WithError(err).Warn("Failed to update transcript stage")
	}

	return nil
}

// processVectorizeTask 执行向量化任务并写入向量数据库
func (h *TranscriptTaskHandler) processVectorizeTask(ctx context.Context, task *taskqueue.Task) error {
	var payload taskqueue.VectorizePayload
	if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal vectorize payload: %w", err)
	}

	record, err := h.service.repo.GetByID(task.TranscriptID)
	if err != nil {
		return fmt.Errorf("failed to get transcript: %w", err)
	}

	var metadata map[string]interface{}
	if len(record.Metadata) > 0 {
		_ = json.Unmarshal(record.Metadata, &metadata)
	}

	texts := make([]string, len(payload.Chunks))
	for i, chunk := range payload.Chunks {
		texts[i] = chunk.Text
	}

	vectors, err := h.service.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		h.service.failTranscript(ctx, task.TranscriptID, fmt.Sprintf("failed to generate embeddings: %v", err))
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}

	dbChunks := make([]vectordb.Chunk, len(payload.Chunks))
	vectorInfos := make([]taskqueue.VectorInfo, len(payload.Chunks))
	for i, chunk := range payload.Chunks {
		chunkID := fmt.Sprintf("%s_%d", task.TranscriptID, chunk.Index)
		dbChunks[i] = vectordb.Chunk{
			ID:           chunkID,
			TranscriptID: task.TranscriptID,
			MeetingID:    record.MeetingID,
			FileName:     record.FileName,
			Position:     chunk.Index,
			Text:         chunk.Text,
			Vector:       vectors[i],
			CreatedAt:    time.Now(),
			Metadata:     metadata,
		}
		vectorInfos[i] = taskqueue.VectorInfo{
			ChunkIndex: chunk.Index,
			Vector:     vectors[i],
		}
	}

	if err := h.service.vectorDB.AddBatch(dbChunks); err != nil {
		h.service.failTranscript(ctx, task.TranscriptID, fmt.Sprintf("failed to store vectors: %v", err))
		return fmt.Errorf("failed to store vectors: %w", err)
	}

	dimension := 0
	if len(vectors) > 0 {
		dimension = len(vectors[0])
	}
	result := &taskqueue.VectorizeResult{
		TranscriptID: task.TranscriptID,
		Vectors:      vectorInfos,
		VectorCount:  len(vectorInfos),
		Model:        payload.Model,
		Dimension:    dimension,
	}
	if err := h.service.taskQueue.UpdateTaskStatus(ctx, task.ID, taskqueue.StatusCompleted, result, ""); err != nil {
		h.logger.WithError(err).Warn("Failed to save vectorize task result")
	}

	if err := h.service.statusManager.MarkAsCompleted(ctx, task.TranscriptID, len(dbChunks)); err != nil {
		h.logger.WithError(err).Error("Failed to mark transcript as completed")
		return err
	}

	return nil
}
