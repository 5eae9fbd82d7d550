package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fyerfyer/meeting-QA-system/api/middleware"
	"github.com/fyerfyer/meeting-QA-system/api/model"
	"github.com/fyerfyer/meeting-QA-system/internal/models"
	"github.com/fyerfyer/meeting-QA-system/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// FileHandler 处理转写文件相关的API请求
type FileHandler struct {
	transcriptService *services.TranscriptService // 转写文件服务
	logger            *logrus.Logger              // 日志记录器
}

// NewFileHandler 创建新的转写文件处理器
func NewFileHandler(transcriptService *services.TranscriptService) *FileHandler {
	return &FileHandler{
		transcriptService: transcriptService,
		logger:            middleware.GetLogger(),
	}
}

// UploadFile 处理转写文件上传请求
// POST /api/files
func (h *FileHandler) UploadFile(c *gin.Context) {
	// 绑定请求参数
	var req model.FileUploadRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid file upload request")
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"无效的请求参数",
		))
		return
	}

	if req.File == nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"未提供文件",
		))
		return
	}

	// 打开上传的文件
	file, err := req.File.Open()
	if err != nil {
		h.logger.WithError(err).WithField("filename", req.File.Filename).Error("Failed to open uploaded file")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"无法打开上传的文件",
		))
		return
	}
	defer file.Close()

	// 保存文件并创建转写记录
	record, err := h.transcriptService.Upload(c.Request.Context(), file, req.File.Filename)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnsupportedFileType):
			c.JSON(http.StatusBadRequest, model.NewErrorResponse(
				http.StatusBadRequest,
				"不支持的文件类型，仅支持 .mrt 转写文件",
			))
		case errors.Is(err, services.ErrFileTooLarge):
			c.JSON(http.StatusBadRequest, model.NewErrorResponse(
				http.StatusBadRequest,
				"文件超过大小限制",
			))
		case errors.Is(err, models.ErrDuplicateTranscript):
			// 重复上传返回已有记录
			h.logger.WithField("transcript_id", record.ID).Info("Duplicate upload, returning existing transcript")
			c.JSON(http.StatusOK, model.NewSuccessResponse(model.FileUploadResponse{
				FileID:      record.ID,
				FileName:    record.FileName,
				MeetingID:   record.MeetingID,
				MeetingType: record.MeetingType,
				Status:      string(record.Status),
			}))
		default:
			h.logger.WithError(err).WithField("filename", req.File.Filename).Error("Failed to upload file")
			c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
				http.StatusInternalServerError,
				"保存文件失败",
			))
		}
		return
	}

	h.logger.WithFields(logrus.Fields{
		"transcript_id": record.ID,
		"meeting_id":    record.MeetingID,
		"filename":      record.FileName,
		"size":          record.FileSize,
	}).Info("File uploaded successfully")

	// 启动处理流水线
	go func() {
		ctx := context.Background()
		if err := h.transcriptService.ProcessTranscript(ctx, record.ID); err != nil {
			h.logger.WithError(err).WithField("transcript_id", record.ID).Error("Failed to process transcript")
		}
	}()

	resp := model.FileUploadResponse{
		FileID:      record.ID,
		FileName:    record.FileName,
		MeetingID:   record.MeetingID,
		MeetingType: record.MeetingType,
		Status:      string(models.TranscriptStatusProcessing),
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// GetFileStatus 获取转写文件处理状态
// GET /api/files/:id/status
func (h *FileHandler) GetFileStatus(c *gin.Context) {
	// 绑定路径参数
	var req model.FileStatusRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的文件ID"))
		return
	}

	// 获取转写文件信息
	info, err := h.transcriptService.GetTranscriptInfo(c.Request.Context(), req.ID)
	if err != nil {
		h.logger.WithError(err).WithField("transcript_id", req.ID).Error("Failed to get transcript info")
		c.JSON(http.StatusNotFound, model.NewErrorResponse(http.StatusNotFound, "未找到转写文件"))
		return
	}

	// 获取分块数量
	segments, err := h.transcriptService.CountSegments(c.Request.Context(), req.ID)
	if err != nil {
		h.logger.WithError(err).WithField("transcript_id", req.ID).Warn("Failed to count segments")
		// 继续处理，不返回错误
	}

	resp := model.FileStatusResponse{
		FileID:    req.ID,
		Status:    statusString(info["status"]),
		FileName:  info["filename"].(string),
		MeetingID: info["meeting_id"].(string),
		Progress:  info["progress"].(int),
		Segments:  segments,
		CreatedAt: info["created_at"].(string),
		UpdatedAt: info["updated_at"].(string),
	}

	if stage, ok := info["stage"]; ok {
		resp.Stage = string(stage.(models.ProcessStage))
	}
	if errMsg, ok := info["error"]; ok {
		resp.Error = errMsg.(string)
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// ListFiles 获取转写文件列表
// GET /api/files
func (h *FileHandler) ListFiles(c *gin.Context) {
	// 绑定查询参数
	var req model.FileListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的查询参数"))
		return
	}

	// 构建过滤条件
	filters := make(map[string]interface{})
	if req.Status != "" {
		filters["status"] = req.Status
	}
	if req.MeetingType != "" {
		filters["meeting_type"] = req.MeetingType
	}
	if req.MeetingID != "" {
		filters["meeting_id"] = req.MeetingID
	}
	if req.StartTime != nil {
		filters["start_time"] = *req.StartTime
	}
	if req.EndTime != nil {
		filters["end_time"] = *req.EndTime
	}

	offset := (req.GetPage() - 1) * req.GetPageSize()
	records, total, err := h.transcriptService.ListTranscripts(c.Request.Context(), offset, req.GetPageSize(), filters)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list transcripts")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"获取文件列表失败",
		))
		return
	}

	files := make([]model.FileInfo, 0, len(records))
	for _, record := range records {
		info := model.FileInfo{
			FileID:       record.ID,
			FileName:     record.FileName,
			MeetingID:    record.MeetingID,
			MeetingType:  record.MeetingType,
			Status:       string(record.Status),
			UploadTime:   record.UploadedAt,
			Segments:     record.SegmentCount,
			Utterances:   record.UtteranceCount,
			SpeakerCount: record.SpeakerCount,
		}

		if len(record.Metadata) > 0 {
			var metadata map[string]interface{}
			if err := json.Unmarshal(record.Metadata, &metadata); err == nil {
				info.Metadata = metadata
			}
		}

		files = append(files, info)
	}

	resp := model.FileListResponse{
		Total:    total,
		Page:     req.GetPage(),
		PageSize: req.GetPageSize(),
		Files:    files,
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// DeleteFile 删除转写文件
// DELETE /api/files/:id
func (h *FileHandler) DeleteFile(c *gin.Context) {
	// 绑定路径参数
	var req model.FileDeleteRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的文件ID"))
		return
	}

	if err := h.transcriptService.DeleteTranscript(c.Request.Context(), req.ID); err != nil {
		h.logger.WithError(err).WithField("transcript_id", req.ID).Error("Failed to delete transcript")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"删除文件失败",
		))
		return
	}

	h.logger.WithField("transcript_id", req.ID).Info("Transcript deleted successfully")

	resp := model.FileDeleteResponse{
		Success: true,
		FileID:  req.ID,
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// statusString 将状态字段安全转换为字符串
func statusString(value interface{}) string {
	switch v := value.(type) {
	case models.TranscriptStatus:
		return string(v)
	case string:
		return v
	default:
		return ""
	}
}
