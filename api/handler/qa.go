package handler

import (
	"net/http"

	"github.com/fyerfyer/meeting-QA-system/api/middleware"
	"github.com/fyerfyer/meeting-QA-system/api/model"
	"github.com/fyerfyer/meeting-QA-system/internal/services"
	"github.com/fyerfyer/meeting-QA-system/internal/vectordb"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// QAHandler 处理问答相关的API请求
type QAHandler struct {
	qaService *services.QAService // 问答服务
	logger    *logrus.Logger      // 日志记录器
}

// NewQAHandler 创建新的问答处理器
func NewQAHandler(qaService *services.QAService) *QAHandler {
	return &QAHandler{
		qaService: qaService,
		logger:    middleware.GetLogger(),
	}
}

// AnswerQuestion 处理问答请求
// POST /api/qa
func (h *QAHandler) AnswerQuestion(c *gin.Context) {
	// 绑定请求参数
	var req model.QARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid question request")
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"无效的请求参数",
		))
		return
	}

	var answer string
	var sources []vectordb.Chunk
	var err error
	ctx := c.Request.Context()

	// 按过滤条件选择检索范围
	switch {
	case req.TranscriptID != "":
		h.logger.WithFields(logrus.Fields{
			"question":      req.Question,
			"transcript_id": req.TranscriptID,
		}).Info("Question with specific transcript")
		answer, sources, err = h.qaService.AnswerWithTranscript(ctx, req.Question, req.TranscriptID)

	case req.MeetingID != "":
		h.logger.WithFields(logrus.Fields{
			"question":   req.Question,
			"meeting_id": req.MeetingID,
		}).Info("Question with specific meeting")
		answer, sources, err = h.qaService.AnswerWithMeeting(ctx, req.Question, req.MeetingID)

	case req.MeetingType != "":
		h.logger.WithFields(logrus.Fields{
			"question":     req.Question,
			"meeting_type": req.MeetingType,
		}).Info("Question with meeting type filter")
		answer, sources, err = h.qaService.AnswerWithMeetingType(ctx, req.Question, req.MeetingType)

	default:
		h.logger.WithField("question", req.Question).Info("General question")
		answer, sources, err = h.qaService.Answer(ctx, req.Question)
	}

	if err != nil {
		h.logger.WithError(err).WithField("question", req.Question).Error("Failed to answer question")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"处理问题时出错: "+err.Error(),
		))
		return
	}

	resp := model.QAResponse{
		Question: req.Question,
		Answer:   answer,
		Sources:  model.ConvertToSourceInfo(sources),
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}
