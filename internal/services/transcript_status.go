package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fyerfyer/meeting-QA-system/internal/models"
	"github.com/fyerfyer/meeting-QA-system/internal/repository"
	"github.com/sirupsen/logrus"
)

// TranscriptStatusManager 转写文件状态管理器
// 负责管理转写文件处理的生命周期状态
type TranscriptStatusManager struct {
	repo   repository.TranscriptRepository // 转写文件仓储接口
	logger *logrus.Logger                  // 日志记录器
	mu     sync.Mutex                      // 互斥锁，保证状态转换的原子性
}

// NewTranscriptStatusManager 创建转写文件状态管理器
func NewTranscriptStatusManager(repo repository.TranscriptRepository, logger *logrus.Logger) *TranscriptStatusManager {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}

	return &TranscriptStatusManager{
		repo:   repo,
		logger: logger,
	}
}

// MarkAsUploaded 将转写文件标记为已上传状态
func (m *TranscriptStatusManager) MarkAsUploaded(ctx context.Context, transcript *models.Transcript) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"transcript_id": transcript.ID,
		"meeting_id":    transcript.MeetingID,
		"filename":      transcript.FileName,
	}).Info("Marking transcript as uploaded")

	transcript.Status = models.TranscriptStatusUploaded
	transcript.Progress = 0
	if transcript.UploadedAt.IsZero() {
		transcript.UploadedAt = time.Now()
	}
	transcript.UpdatedAt = time.Now()

	return m.repo.Create(transcript)
}

// MarkAsProcessing 将转写文件标记为处理中状态
func (m *TranscriptStatusManager) MarkAsProcessing(ctx context.Context, transcriptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	transcript, err := m.repo.GetByID(transcriptID)
	if err != nil {
		return fmt.Errorf("failed to get transcript: %w", err)
	}

	// 已失败的转写文件允许重试，重新进入处理中
	if transcript.Status != models.TranscriptStatusUploaded &&
		transcript.Status != models.TranscriptStatusFailed {
		return fmt.Errorf("invalid state transition: transcript %s is in %s state, expected %s or %s",
			transcriptID, transcript.Status, models.TranscriptStatusUploaded, models.TranscriptStatusFailed)
	}

	m.logger.WithField("transcript_id", transcriptID).Info("Marking transcript as processing")

	return m.repo.UpdateStatus(transcriptID, models.TranscriptStatusProcessing, "")
}

// MarkAsCompleted 将转写文件标记为处理完成状态
func (m *TranscriptStatusManager) MarkAsCompleted(ctx context.Context, transcriptID string, segmentCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	transcript, err := m.repo.GetByID(transcriptID)
	if err != nil {
		return fmt.Errorf("failed to get transcript: %w", err)
	}

	if transcript.Status != models.TranscriptStatusProcessing &&
		transcript.Status != models.TranscriptStatusUploaded {
		return fmt.Errorf("invalid state transition: transcript %s is in %s state, expected %s or %s",
			transcriptID, transcript.Status, models.TranscriptStatusProcessing, models.TranscriptStatusUploaded)
	}

	m.logger.WithFields(logrus.Fields{
		"transcript_id": transcriptID,
		"segment_count": segmentCount,
	}).Info("Marking transcript as completed")

	if err := m.repo.UpdateStatus(transcriptID, models.TranscriptStatusCompleted, ""); err != nil {
		return err
	}

	transcript.Status = models.TranscriptStatusCompleted
	transcript.SegmentCount = segmentCount
	transcript.Progress = 100
	transcript.CurrentStage = models.StageCompleted
	return m.repo.Update(transcript)
}

// MarkAsFailed 将转写文件标记为处理失败状态
func (m *TranscriptStatusManager) MarkAsFailed(ctx context.Context, transcriptID string, errorMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.repo.GetByID(transcriptID); err != nil {
		return fmt.Errorf("failed to get transcript: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"transcript_id": transcriptID,
		"error":         errorMsg,
	}).Error("Marking transcript as failed")

	return m.repo.UpdateStatus(transcriptID, models.TranscriptStatusFailed, errorMsg)
}

// UpdateProgress 更新转写文件处理进度
func (m *TranscriptStatusManager) UpdateProgress(ctx context.Context, transcriptID string, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	transcript, err := m.repo.GetByID(transcriptID)
	if err != nil {
		return fmt.Errorf("failed to get transcript: %w", err)
	}

	// 只有处理中的转写文件才能更新进度
	if transcript.Status != models.TranscriptStatusProcessing {
		return fmt.Errorf("cannot update progress: transcript %s is not in processing state", transcriptID)
	}

	m.logger.WithFields(logrus.Fields{
		"transcript_id": transcriptID,
		"progress":      progress,
	}).Debug("Updating transcript progress")

	return m.repo.UpdateProgress(transcriptID, progress)
}

// UpdateStage 更新转写文件当前处理阶段
func (m *TranscriptStatusManager) UpdateStage(ctx context.Context, transcriptID string, stage models.ProcessStage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	transcript, err := m.repo.GetByID(transcriptID)
	if err != nil {
		return fmt.Errorf("failed to get transcript: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"transcript_id": transcriptID,
		"stage":         stage,
	}).Debug("Updating transcript stage")

	transcript.CurrentStage = stage
	return m.repo.Update(transcript)
}

// GetStatus 获取转写文件当前状态
func (m *TranscriptStatusManager) GetStatus(ctx context.Context, transcriptID string) (models.TranscriptStatus, error) {
	transcript, err := m.repo.GetByID(transcriptID)
	if err != nil {
		return "", fmt.Errorf("failed to get transcript status: %w", err)
	}
	return transcript.Status, nil
}

// GetTranscript 获取完整的转写文件对象
func (m *TranscriptStatusManager) GetTranscript(ctx context.Context, transcriptID string) (*models.Transcript, error) {
	return m.repo.GetByID(transcriptID)
}

// ListTranscripts 获取转写文件列表
func (m *TranscriptStatusManager) ListTranscripts(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.Transcript, int64, error) {
	return m.repo.List(offset, limit, filters)
}

// DeleteTranscript 删除转写文件状态记录
func (m *TranscriptStatusManager) DeleteTranscript(ctx context.Context, transcriptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.WithField("transcript_id", transcriptID).Info("Deleting transcript status record")
	return m.repo.Delete(transcriptID)
}

// ValidateStateTransition 验证状态转换的有效性
func (m *TranscriptStatusManager) ValidateStateTransition(from, to models.TranscriptStatus) error {
	// 定义有效的状态转换
	validTransitions := map[models.TranscriptStatus][]models.TranscriptStatus{
		models.TranscriptStatusUploaded: {
			models.TranscriptStatusProcessing,
			models.TranscriptStatusCompleted, // 小文件可能直接完成
			models.TranscriptStatusFailed,    // 上传后可能立即失败
		},
		models.TranscriptStatusProcessing: {
			models.TranscriptStatusCompleted,
			models.TranscriptStatusFailed,
		},
		// 终态
		models.TranscriptStatusCompleted: {},
		models.TranscriptStatusFailed:    {models.TranscriptStatusProcessing}, // 允许重试
	}

	allowed := false
	for _, validTo := range validTransitions[from] {
		if validTo == to {
			allowed = true
			break
		}
	}

	if !allowed {
		return errors.New("invalid state transition")
	}

	return nil
}
