package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/fyerfyer/meeting-QA-system/internal/embedding"
	"github.com/fyerfyer/meeting-QA-system/internal/models"
	"github.com/fyerfyer/meeting-QA-system/internal/repository"
	"github.com/fyerfyer/meeting-QA-system/internal/transcript"
	"github.com/fyerfyer/meeting-QA-system/internal/vectordb"
	"github.com/fyerfyer/meeting-QA-system/pkg/storage"
	"github.com/fyerfyer/meeting-QA-system/pkg/taskqueue"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// ErrUnsupportedFileType 不支持的文件类型错误
var ErrUnsupportedFileType = errors.New("unsupported file type: only .mrt transcripts are accepted")

// ErrFileTooLarge 文件超出大小限制错误
var ErrFileTooLarge = errors.New("file exceeds the maximum allowed size")

// TranscriptService 转写文件服务
// 负责协调转写文件上传、解析、分块、嵌入和存储
type TranscriptService struct {
	storage       storage.Storage                 // 文件存储服务
	parser        *transcript.Parser              // MRT转写解析器
	splitter      *transcript.Splitter            // 文本分块器
	embedder      embedding.Client                // 嵌入模型客户端
	vectorDB      vectordb.Repository             // 向量数据库
	repo          repository.TranscriptRepository // 转写文件元数据存储
	statusManager *TranscriptStatusManager        // 转写文件状态管理器
	taskQueue     taskqueue.Queue                 // 任务队列
	asyncEnabled  bool                            // 是否启用异步处理
	batchSize     int                             // 批处理大小
	maxFileSize   int64                           // 文件大小上限（字节）
	timeout       time.Duration                   // 处理超时时间
	logger        *logrus.Logger                  // 日志记录器
}

// TranscriptOption 转写文件服务配置选项
type TranscriptOption func(*TranscriptService)

// NewTranscriptService 创建一个新的转写文件服务
func NewTranscriptService(
	store storage.Storage,
	parser *transcript.Parser,
	splitter *transcript.Splitter,
	embedder embedding.Client,
	vectorDB vectordb.Repository,
	opts ...TranscriptOption,
) *TranscriptService {
	srv := &TranscriptService{
		storage:      store,
		parser:       parser,
		splitter:     splitter,
		embedder:     embedder,
		vectorDB:     vectorDB,
		batchSize:    16,               // 默认批处理大小
		maxFileSize:  10 * 1024 * 1024, // 默认10MB
		timeout:      time.Minute * 5,  // 默认超时时间
		logger:       logrus.New(),     // 默认日志记录器
		asyncEnabled: false,            // 默认不启用异步处理
	}

	for _, opt := range opts {
		opt(srv)
	}

	return srv
}

// WithBatchSize 设置批处理大小
func WithBatchSize(size int) TranscriptOption {
	return func(s *TranscriptService) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithMaxFileSize 设置文件大小上限（字节）
func WithMaxFileSize(size int64) TranscriptOption {
	return func(s *TranscriptService) {
		if size > 0 {
			s.maxFileSize = size
		}
	}
}

// WithTimeout 设置处理超时时间
func WithTimeout(timeout time.Duration) TranscriptOption {
	return func(s *TranscriptService) {
		s.timeout = timeout
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) TranscriptOption {
	return func(s *TranscriptService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTranscriptRepository 设置转写文件仓储
func WithTranscriptRepository(repo repository.TranscriptRepository) TranscriptOption {
	return func(s *TranscriptService) {
		s.repo = repo
	}
}

// WithStatusManager 设置状态管理器
func WithStatusManager(manager *TranscriptStatusManager) TranscriptOption {
	return func(s *TranscriptService) {
		s.statusManager = manager
	}
}

// WithTaskQueue 设置任务队列
func WithTaskQueue(queue taskqueue.Queue) TranscriptOption {
	return func(s *TranscriptService) {
		s.taskQueue = queue
		s.asyncEnabled = queue != nil
	}
}

// WithAsyncProcessing 设置是否启用异步处理
func WithAsyncProcessing(enabled bool) TranscriptOption {
	return func(s *TranscriptService) {
		s.asyncEnabled = enabled
	}
}

// Init 初始化转写文件服务
// 确保必要的依赖都已设置
func (s *TranscriptService) Init() error {
	if s.repo == nil {
		s.repo = repository.NewTranscriptRepository()
	}

	if s.statusManager == nil {
		s.statusManager = NewTranscriptStatusManager(s.repo, s.logger)
	}

	return nil
}

// Upload 上传转写文件
// 校验扩展名和大小，按内容哈希去重，保存文件并创建转写记录
func (s *TranscriptService) Upload(ctx context.Context, reader io.Reader, filename string) (*models.Transcript, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".mrt" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFileType, filename)
	}

	// 限制读取大小，超出上限说明文件过大
	limited := io.LimitReader(reader, s.maxFileSize+1)
	content, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("failed to read file content: %w", err)
	}
	if int64(len(content)) > s.maxFileSize {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, s.maxFileSize)
	}

	// 内容哈希去重，相同内容的文件直接返回已有记录
	hash := sha256.Sum256(content)
	contentHash := hex.EncodeToString(hash[:])
	if existing, err := s.repo.GetByContentHash(contentHash); err == nil {
		s.logger.WithFields(logrus.Fields{
			"transcript_id": existing.ID,
			"filename":      filename,
		}).Info("Duplicate transcript upload detected")
		return existing, models.ErrDuplicateTranscript
	}

	fileInfo, err := s.storage.Save(bytes.NewReader(content), filename)
	if err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	meetingID := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	record := &models.Transcript{
		ID:          fileInfo.ID,
		MeetingID:   meetingID,
		MeetingType: transcript.ParseMeetingID(meetingID).Type,
		FileName:    filename,
		FilePath:    fileInfo.Path,
		FileSize:    fileInfo.Size,
		ContentHash: contentHash,
	}

	if err := s.statusManager.MarkAsUploaded(ctx, record); err != nil {
		// 记录创建失败时清理已保存的文件
		if delErr := s.storage.Delete(fileInfo.ID); delErr != nil {
			s.logger.WithError(delErr).Warn("Failed to clean up file after record creation failure")
		}
		return nil, fmt.Errorf("failed to create transcript record: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"transcript_id": record.ID,
		"meeting_id":    meetingID,
		"size":          fileInfo.Size,
	}).Info("Transcript uploaded")

	return record, nil
}

// ProcessTranscript 处理转写文件（解析、分块、向量化、入库）
func (s *TranscriptService) ProcessTranscript(ctx context.Context, transcriptID string) error {
	if err := s.Init(); err != nil {
		return err
	}

	if transcriptID == "" {
		return errors.New("transcriptID cannot be empty")
	}

	s.logger.WithField("transcript_id", transcriptID).Info("Starting transcript processing")

	// 如果启用异步处理并且任务队列已配置，使用任务队列处理
	if s.asyncEnabled && s.taskQueue != nil {
		return s.processAsync(ctx, transcriptID)
	}

	return s.processSync(ctx, transcriptID)
}

// processAsync 异步处理转写文件
// 将任务加入队列并立即返回
func (s *TranscriptService) processAsync(ctx context.Context, transcriptID string) error {
	record, err := s.repo.GetByID(transcriptID)
	if err != nil {
		return fmt.Errorf("failed to get transcript: %w", err)
	}

	if err := s.statusManager.MarkAsProcessing(ctx, transcriptID); err != nil {
		s.logger.WithError(err).Error("Failed to mark transcript as processing")
		// 继续处理，不中断
	}

	payload := taskqueue.TranscriptParsePayload{
		FilePath:  record.FilePath,
		FileName:  record.FileName,
		MeetingID: record.MeetingID,
		Metadata: map[string]string{
			"source":     "api",
			"created_by": "transcript_service",
		},
	}

	taskID, err := s.taskQueue.Enqueue(ctx, taskqueue.TaskTranscriptParse, transcriptID, payload)
	if err != nil {
		s.failTranscript(ctx, transcriptID, fmt.Sprintf("failed to create processing task: %v", err))
		return fmt.Errorf("failed to create processing task: %w", err)
	}

	record.CurrentTaskID = taskID
	record.CurrentStage = models.StageParsing
	if err := s.repo.Update(record); err != nil {
		s.logger.WithError(err).Warn("Failed to record current task on transcript")
	}

	s.logger.WithFields(logrus.Fields{
		"transcript_id": transcriptID,
		"task_id":       taskID,
	}).Info("Transcript processing task created successfully")

	return nil
}

// processSync 同步处理转写文件
// 直接在当前进程中完成解析、分块和向量化
func (s *TranscriptService) processSync(ctx context.Context, transcriptID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	record, err := s.repo.GetByID(transcriptID)
	if err != nil {
		return fmt.Errorf("failed to get transcript: %w", err)
	}

	if err := s.statusManager.MarkAsProcessing(ctx, transcriptID); err != nil {
		s.logger.WithError(err).Error("Failed to mark transcript as processing")
		// 继续处理，不中断
	}

	// 解析MRT转写文件
	if err := s.statusManager.UpdateStage(ctx, transcriptID, models.StageParsing); err != nil {
		s.logger.WithError(err).Warn("Failed to update transcript stage")
	}
	doc, err := s.parseTranscript(record)
	if err != nil {
		s.failTranscript(ctx, transcriptID, fmt.Sprintf("failed to parse transcript: %v", err))
		return fmt.Errorf("failed to parse transcript: %w", err)
	}

	// 回填解析出的会议元数据
	if err := s.applyDocumentMetadata(record, doc); err != nil {
		s.logger.WithError(err).Warn("Failed to persist meeting metadata")
	}

	// 文本分块
	if err := s.statusManager.UpdateStage(ctx, transcriptID, models.StageChunking); err != nil {
		s.logger.WithError(err).Warn("Failed to update transcript stage")
	}
	segments := s.splitter.Split(doc.Text)

	if err := s.statusManager.UpdateProgress(ctx, transcriptID, 20); err != nil {
		s.logger.WithError(err).Warn("Failed to update transcript progress")
	}

	// 向量化并入库
	if err := s.statusManager.UpdateStage(ctx, transcriptID, models.StageVectorizing); err != nil {
		s.logger.WithError(err).Warn("Failed to update transcript stage")
	}
	if err := s.processBatches(ctx, record, doc, segments); err != nil {
		s.failTranscript(ctx, transcriptID, fmt.Sprintf("failed to process batches: %v", err))
		return fmt.Errorf("failed to process batches: %w", err)
	}

	if err := s.statusManager.MarkAsCompleted(ctx, transcriptID, len(segments)); err != nil {
		s.logger.WithError(err).Error("Failed to mark transcript as completed")
		// 虽然状态更新失败，但处理成功，所以不返回错误
	}

	s.logger.WithFields(logrus.Fields{
		"transcript_id":   transcriptID,
		"meeting_id":      doc.MeetingID,
		"segment_count":   len(segments),
		"utterance_count": len(doc.Utterances),
	}).Info("Transcript processing completed successfully")

	return nil
}

// parseTranscript 从存储读取并解析转写文件
func (s *TranscriptService) parseTranscript(record *models.Transcript) (*transcript.Document, error) {
	s.logger.WithField("transcript_id", record.ID).Debug("Parsing transcript")

	reader, err := s.storage.Get(record.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get file from storage: %w", err)
	}
	defer reader.Close()

	doc, err := s.parser.Parse(reader, record.MeetingID, record.FileName)
	if err != nil {
		return nil, err
	}

	return doc, nil
}

// applyDocumentMetadata 将解析出的会议元数据写回转写记录
func (s *TranscriptService) applyDocumentMetadata(record *models.Transcript, doc *transcript.Document) error {
	record.UtteranceCount = len(doc.Utterances)
	if session, ok := doc.Metadata["session"].(string); ok {
		record.Session = session
	}
	if numSpeakers, ok := doc.Metadata["num_speakers"].(int); ok {
		record.SpeakerCount = numSpeakers
	}

	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal meeting metadata: %w", err)
	}
	record.Metadata = datatypes.JSON(metadataJSON)

	return s.repo.Update(record)
}

// processBatches 批量向量化文本分块并写入向量库和数据库
func (s *TranscriptService) processBatches(ctx context.Context, record *models.Transcript, doc *transcript.Document, segments []string) error {
	if len(segments) == 0 {
		return nil
	}

	totalBatches := (len(segments) + s.batchSize - 1) / s.batchSize
	processedBatches := 0

	for i := 0; i < len(segments); i += s.batchSize {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		end := i + s.batchSize
		if end > len(segments) {
			end = len(segments)
		}
		batch := segments[i:end]

		vectors, err := s.embedder.EmbedBatch(ctx, batch)
		if err != nil {
			return fmt.Errorf("failed to generate embeddings: %w", err)
		}

		chunks := make([]vectordb.Chunk, len(batch))
		dbSegments := make([]*models.TranscriptSegment, len(batch))

		for j := range batch {
			position := i + j
			chunkID := fmt.Sprintf("%s_%d", record.ID, position)

			chunks[j] = vectordb.Chunk{
				ID:           chunkID,
				TranscriptID: record.ID,
				MeetingID:    doc.MeetingID,
				FileName:     record.FileName,
				Position:     position,
				Text:         batch[j],
				Vector:       vectors[j],
				CreatedAt:    time.Now(),
				Metadata:     doc.Metadata,
			}

			dbSegments[j] = &models.TranscriptSegment{
				TranscriptID: record.ID,
				SegmentID:    chunkID,
				Position:     position,
				Text:         batch[j],
				VectorID:     chunkID,
			}
		}

		if err := s.vectorDB.AddBatch(chunks); err != nil {
			return fmt.Errorf("failed to store vectors: %w", err)
		}

		if err := s.repo.SaveSegments(dbSegments); err != nil {
			s.logger.WithError(err).Error("Failed to save segments to database")
			// 不中断处理
		}

		processedBatches++
		// 计算并更新进度（20%到90%的范围）
		progress := 20 + int(float64(processedBatches)/float64(totalBatches)*70)
		if err := s.statusManager.UpdateProgress(ctx, record.ID, progress); err != nil {
			s.logger.WithError(err).Warn("Failed to update transcript progress")
		}
	}

	return nil
}

// DeleteTranscript 删除转写文件及其相关数据
func (s *TranscriptService) DeleteTranscript(ctx context.Context, transcriptID string) error {
	if err := s.Init(); err != nil {
		return err
	}

	s.logger.WithField("transcript_id", transcriptID).Info("Deleting transcript")

	// 1. 从向量数据库中删除
	if err := s.vectorDB.DeleteByTranscriptID(transcriptID); err != nil {
		s.logger.WithError(err).Error("Failed to delete transcript vectors")
		return fmt.Errorf("failed to delete transcript vectors: %w", err)
	}

	// 2. 从存储中删除文件
	if err := s.storage.Delete(transcriptID); err != nil {
		// 文件可能已被删除，记录错误但不中断流程
		s.logger.WithError(err).Warn("Failed to delete file from storage")
	}

	// 3. 删除转写记录及其分块
	if err := s.statusManager.DeleteTranscript(ctx, transcriptID); err != nil {
		s.logger.WithError(err).Error("Failed to delete transcript record")
		return fmt.Errorf("failed to delete transcript record: %w", err)
	}

	// 4. 如果任务队列已配置，删除相关任务
	if s.taskQueue != nil {
		tasks, err := s.taskQueue.GetTasksByTranscript(ctx, transcriptID)
		if err == nil && len(tasks) > 0 {
			for _, task := range tasks {
				if err := s.taskQueue.DeleteTask(ctx, task.ID); err != nil {
					s.logger.WithError(err).WithField("task_id", task.ID).Warn("Failed to delete transcript task")
				}
			}
		}
	}

	s.logger.WithField("transcript_id", transcriptID).Info("Transcript deleted successfully")
	return nil
}

// GetTranscriptInfo 获取转写文件信息
func (s *TranscriptService) GetTranscriptInfo(ctx context.Context, transcriptID string) (map[string]interface{}, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}

	record, err := s.statusManager.GetTranscript(ctx, transcriptID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transcript: %w", err)
	}

	info := map[string]interface{}{
		"transcript_id":   record.ID,
		"meeting_id":      record.MeetingID,
		"meeting_type":    record.MeetingType,
		"filename":        record.FileName,
		"status":          record.Status,
		"created_at":      record.UploadedAt.Format(time.RFC3339),
		"updated_at":      record.UpdatedAt.Format(time.RFC3339),
		"size":            record.FileSize,
		"progress":        record.Progress,
		"segment_count":   record.SegmentCount,
		"utterance_count": record.UtteranceCount,
		"speaker_count":   record.SpeakerCount,
	}

	if record.Error != "" {
		info["error"] = record.Error
	}
	if record.ProcessedAt != nil {
		info["processed_at"] = record.ProcessedAt.Format(time.RFC3339)
	}
	if record.CurrentStage != "" {
		info["stage"] = record.CurrentStage
	}
	if len(record.Metadata) > 0 {
		var metadata map[string]interface{}
		if err := json.Unmarshal(record.Metadata, &metadata); err == nil {
			info["metadata"] = metadata
		}
	}

	// 如果启用了异步处理，尝试获取相关任务信息
	if s.asyncEnabled && s.taskQueue != nil {
		tasks, err := s.taskQueue.GetTasksByTranscript(ctx, transcriptID)
		if err == nil && len(tasks) > 0 {
			latestTask := tasks[0]
			for _, task := range tasks {
				if task.UpdatedAt.After(latestTask.UpdatedAt) {
					latestTask = task
				}
			}

			info["task_id"] = latestTask.ID
			info["task_status"] = latestTask.Status
			info["task_created_at"] = latestTask.CreatedAt.Format(time.RFC3339)
			info["task_updated_at"] = latestTask.UpdatedAt.Format(time.RFC3339)

			if latestTask.StartedAt != nil {
				info["task_started_at"] = latestTask.StartedAt.Format(time.RFC3339)
			}
			if latestTask.CompletedAt != nil {
				info["task_completed_at"] = latestTask.CompletedAt.Format(time.RFC3339)
			}
			if latestTask.Error != "" {
				info["task_error"] = latestTask.Error
			}
		}
	}

	return info, nil
}

// GetTranscriptStatus 获取转写文件处理状态
func (s *TranscriptService) GetTranscriptStatus(ctx context.Context, transcriptID string) (models.TranscriptStatus, error) {
	if err := s.Init(); err != nil {
		return "", err
	}

	return s.statusManager.GetStatus(ctx, transcriptID)
}

// GetTranscriptTasks 获取转写文件相关的任务
func (s *TranscriptService) GetTranscriptTasks(ctx context.Context, transcriptID string) ([]*taskqueue.Task, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}

	if !s.asyncEnabled || s.taskQueue == nil {
		return nil, errors.New("async processing not enabled")
	}

	return s.taskQueue.GetTasksByTranscript(ctx, transcriptID)
}

// WaitForProcessing 等待转写文件处理完成
func (s *TranscriptService) WaitForProcessing(ctx context.Context, transcriptID string, timeout time.Duration) error {
	if err := s.Init(); err != nil {
		return err
	}

	if !s.asyncEnabled || s.taskQueue == nil {
		// 如果未启用异步处理，直接检查转写状态
		status, err := s.statusManager.GetStatus(ctx, transcriptID)
		if err != nil {
			return err
		}
		if status == models.TranscriptStatusFailed {
			return fmt.Errorf("transcript processing failed")
		}
		if status != models.TranscriptStatusCompleted {
			return fmt.Errorf("transcript not processed")
		}
		return nil
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tasks, err := s.taskQueue.GetTasksByTranscript(ctx, transcriptID)
	if err != nil {
		return fmt.Errorf("failed to get transcript tasks: %w", err)
	}

	if len(tasks) == 0 {
		return fmt.Errorf("no processing tasks found for transcript %s", transcriptID)
	}

	// 找到最新的解析任务
	var latestTask *taskqueue.Task
	for _, task := range tasks {
		if task.Type == taskqueue.TaskTranscriptParse {
			if latestTask == nil || task.CreatedAt.After(latestTask.CreatedAt) {
				latestTask = task
			}
		}
	}

	if latestTask == nil {
		return fmt.Errorf("no parse task found for transcript %s", transcriptID)
	}

	if _, err := s.taskQueue.WaitForTask(ctx, latestTask.ID, timeout); err != nil {
		return fmt.Errorf("failed to wait for transcript processing: %w", err)
	}

	status, err := s.statusManager.GetStatus(ctx, transcriptID)
	if err != nil {
		return err
	}

	if status == models.TranscriptStatusFailed {
		return fmt.Errorf("transcript processing failed")
	}

	if status != models.TranscriptStatusCompleted {
		return fmt.Errorf("transcript processing incomplete")
	}

	return nil
}

// CountSegments 统计转写文件的分块数量
func (s *TranscriptService) CountSegments(ctx context.Context, transcriptID string) (int, error) {
	if err := s.Init(); err != nil {
		return 0, err
	}

	return s.repo.CountSegments(transcriptID)
}

// ListTranscripts 获取转写文件列表
func (s *TranscriptService) ListTranscripts(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.Transcript, int64, error) {
	if err := s.Init(); err != nil {
		return nil, 0, err
	}

	return s.statusManager.ListTranscripts(ctx, offset, limit, filters)
}

// failTranscript 将转写文件标记为失败状态
func (s *TranscriptService) failTranscript(ctx context.Context, transcriptID string, errorMsg string) {
	if s.statusManager == nil {
		s.logger.Error("Cannot mark transcript as failed: status manager not initialized")
		return
	}

	if err := s.statusManager.MarkAsFailed(ctx, transcriptID, errorMsg); err != nil {
		s.logger.WithFields(logrus.Fields{
			"transcript_id": transcriptID,
			"error":         err,
		}).Error("Failed to mark transcript as failed")
	}
}

// GetStatusManager 返回转写文件状态管理器实例
func (s *TranscriptService) GetStatusManager() *TranscriptStatusManager {
	return s.statusManager
}

// GetTaskQueue 返回任务队列实例
func (s *TranscriptService) GetTaskQueue() taskqueue.Queue {
	return s.taskQueue
}
