package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyerfyer/meeting-QA-system/internal/database"
	"github.com/fyerfyer/meeting-QA-system/internal/models"
	"github.com/fyerfyer/meeting-QA-system/pkg/taskqueue"
	"gorm.io/gorm"
)

// transcriptRepo 转写文件仓储实现
type transcriptRepo struct {
	db        *gorm.DB        // 数据库连接
	taskQueue taskqueue.Queue // 任务队列，可选
	ctx       context.Context // 上下文，可用于事务或超时控制
}

// NewTranscriptRepository 创建转写文件仓储实例
func NewTranscriptRepository() TranscriptRepository {
	return &transcriptRepo{
		db:  database.MustDB(),
		ctx: context.Background(),
	}
}

// NewTranscriptRepositoryWithDB 使用指定的数据库连接创建转写文件仓储实例
func NewTranscriptRepositoryWithDB(db *gorm.DB) TranscriptRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &transcriptRepo{
		db:  db,
		ctx: context.Background(),
	}
}

// NewTranscriptRepositoryWithQueue 使用指定的数据库连接和任务队列创建转写文件仓储实例
func NewTranscriptRepositoryWithQueue(db *gorm.DB, queue taskqueue.Queue) TranscriptRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &transcriptRepo{
		db:        db,
		taskQueue: queue,
		ctx:       context.Background(),
	}
}

// Create 创建转写文件记录
func (r *transcriptRepo) Create(transcript *models.Transcript) error {
	if transcript.ID == "" {
		return errors.New("transcript ID cannot be empty")
	}

	return r.db.Create(transcript).Error
}

// Update 更新转写文件记录
func (r *transcriptRepo) Update(transcript *models.Transcript) error {
	if transcript.ID == "" {
		return errors.New("transcript ID cannot be empty")
	}

	return r.db.Save(transcript).Error
}

// GetByID 根据ID获取转写文件
func (r *transcriptRepo) GetByID(id string) (*models.Transcript, error) {
	var transcript models.Transcript
	err := r.db.Where("id = ?", id).First(&transcript).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrTranscriptNotFound, id)
		}
		return nil, err
	}
	return &transcript, nil
}

// GetByContentHash 根据文件内容哈希获取转写文件
// 未找到时返回models.ErrTranscriptNotFound
func (r *transcriptRepo) GetByContentHash(hash string) (*models.Transcript, error) {
	var transcript models.Transcript
	err := r.db.Where("content_hash = ?", hash).First(&transcript).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrTranscriptNotFound
		}
		return nil, err
	}
	return &transcript, nil
}

// List 列出转写文件列表，支持分页和筛选
func (r *transcriptRepo) List(offset, limit int, filters map[string]interface{}) ([]*models.Transcript, int64, error) {
	var transcripts []*models.Transcript
	var total int64

	query := r.db.Model(&models.Transcript{})

	if filters != nil {
		// 状态过滤
		if status, ok := filters["status"]; ok {
			switch s := status.(type) {
			case models.TranscriptStatus:
				query = query.Where("status = ?", string(s))
			case string:
				if s != "" {
					query = query.Where("status = ?", s)
				}
			}
		}

		// 会议类型过滤（mr/ed/ro等）
		if meetingType, ok := filters["meeting_type"].(string); ok && meetingType != "" {
			query = query.Where("meeting_type = ?", meetingType)
		}

		// 会议ID过滤
		if meetingID, ok := filters["meeting_id"].(string); ok && meetingID != "" {
			query = query.Where("meeting_id = ?", meetingID)
		}

		// 时间范围过滤
		if startTime, ok := filters["start_time"].(string); ok && startTime != "" {
			query = query.Where("uploaded_at >= ?", startTime)
		}
		if endTime, ok := filters["end_time"].(string); ok && endTime != "" {
			query = query.Where("uploaded_at <= ?", endTime)
		}

		// 文件名过滤
		if fileName, ok := filters["file_name"].(string); ok && fileName != "" {
			query = query.Where("file_name LIKE ?", "%"+fileName+"%")
		}
	}

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.Order("uploaded_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&transcripts).Error

	if err != nil {
		return nil, 0, err
	}

	return transcripts, total, nil
}

// Delete 删除转写文件记录及其分块
func (r *transcriptRepo) Delete(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("transcript_id = ?", id).Delete(&models.TranscriptSegment{}).Error; err != nil {
			return err
		}

		if err := tx.Where("id = ?", id).Delete(&models.Transcript{}).Error; err != nil {
			return err
		}

		// 任务队列可用时清理相关任务，任务可能已过期，错误忽略
		if r.taskQueue != nil {
			ctx := r.getContext()
			tasks, err := r.taskQueue.GetTasksByTranscript(ctx, id)
			if err == nil {
				for _, task := range tasks {
					_ = r.taskQueue.DeleteTask(ctx, task.ID)
				}
			}
		}

		return nil
	})
}

// UpdateStatus 更新转写文件状态
func (r *transcriptRepo) UpdateStatus(id string, status models.TranscriptStatus, errorMsg string) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}

	if errorMsg != "" {
		updates["error"] = errorMsg
	}

	// 完成或失败时记录处理结束时间
	if status == models.TranscriptStatusCompleted || status == models.TranscriptStatusFailed {
		now := time.Now()
		updates["processed_at"] = &now
	}

	return r.db.Model(&models.Transcript{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// UpdateProgress 更新转写文件处理进度
func (r *transcriptRepo) UpdateProgress(id string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	return r.db.Model(&models.Transcript{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"progress":   progress,
			"updated_at": time.Now(),
		}).Error
}

// SaveSegment 保存文本分块
func (r *transcriptRepo) SaveSegment(segment *models.TranscriptSegment) error {
	return r.db.Create(segment).Error
}

// SaveSegments 批量保存文本分块
func (r *transcriptRepo) SaveSegments(segments []*models.TranscriptSegment) error {
	if len(segments) == 0 {
		return nil
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(segments, 100).Error
	})
}

// GetSegments 获取转写文件的所有分块
func (r *transcriptRepo) GetSegments(transcriptID string) ([]*models.TranscriptSegment, error) {
	var segments []*models.TranscriptSegment
	err := r.db.Where("transcript_id = ?", transcriptID).
		Order("position ASC").
		Find(&segments).Error
	return segments, err
}

// CountSegments 统计转写文件的分块数量
func (r *transcriptRepo) CountSegments(transcriptID string) (int, error) {
	var count int64
	err := r.db.Model(&models.TranscriptSegment{}).
		Where("transcript_id = ?", transcriptID).
		Count(&count).Error
	return int(count), err
}

// DeleteSegments 删除转写文件的所有分块
func (r *transcriptRepo) DeleteSegments(transcriptID string) error {
	return r.db.Where("transcript_id = ?", transcriptID).
		Delete(&models.TranscriptSegment{}).Error
}

// WithContext 创建带有上下文的仓储
func (r *transcriptRepo) WithContext(ctx context.Context) TranscriptRepository {
	return &transcriptRepo{
		db:        r.db.WithContext(ctx),
		taskQueue: r.taskQueue,
		ctx:       ctx,
	}
}

// getContext 获取仓储的上下文，未设置时使用背景上下文
func (r *transcriptRepo) getContext() context.Context {
	if r.ctx != nil {
		return r.ctx
	}
	return context.Background()
}
