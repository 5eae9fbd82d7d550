package repository

import "github.com/fyerfyer/meeting-QA-system/internal/models"

// TranscriptRepository 转写文件仓储接口
// 负责转写文件元数据的存储和检索
type TranscriptRepository interface {
	// Create 创建转写文件记录
	Create(transcript *models.Transcript) error

	// Update 更新转写文件记录
	Update(transcript *models.Transcript) error

	// GetByID 根据ID获取转写文件
	GetByID(id string) (*models.Transcript, error)

	// GetByContentHash 根据文件内容哈希获取转写文件，用于去重
	GetByContentHash(hash string) (*models.Transcript, error)

	// List 列出转写文件列表，支持分页和筛选
	List(offset, limit int, filters map[string]interface{}) ([]*models.Transcript, int64, error)

	// Delete 删除转写文件
	Delete(id string) error

	// UpdateStatus 更新转写文件状态
	UpdateStatus(id string, status models.TranscriptStatus, errorMsg string) error

	// UpdateProgress 更新转写文件处理进度
	UpdateProgress(id string, progress int) error

	// SaveSegment 保存文本分块
	SaveSegment(segment *models.TranscriptSegment) error

	// SaveSegments 批量保存文本分块
	SaveSegments(segments []*models.TranscriptSegment) error

	// GetSegments 获取转写文件的所有分块
	GetSegments(transcriptID string) ([]*models.TranscriptSegment, error)

	// CountSegments 统计转写文件的分块数量
	CountSegments(transcriptID string) (int, error)

	// DeleteSegments 删除转写文件的所有分块
	DeleteSegments(transcriptID string) error
}
