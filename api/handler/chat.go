package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/fyerfyer/meeting-QA-system/api/middleware"
	"github.com/fyerfyer/meeting-QA-system/api/model"
	"github.com/fyerfyer/meeting-QA-system/internal/llm"
	"github.com/fyerfyer/meeting-QA-system/internal/models"
	"github.com/fyerfyer/meeting-QA-system/internal/services"
	"github.com/fyerfyer/meeting-QA-system/internal/vectordb"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// 自动生成会话标题时的最大长度
const maxAutoTitleLength = 40

// ChatHandler 处理聊天相关的API请求
type ChatHandler struct {
	chatService *services.ChatService // 聊天服务
	qaService   *services.QAService   // 问答服务
	logger      *logrus.Logger        // 日志记录器
}

// NewChatHandler 创建新的聊天处理器
func NewChatHandler(chatService *services.ChatService, qaService *services.QAService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		qaService:   qaService,
		logger:      middleware.GetLogger(),
	}
}

// Chat 在会话中提问
// POST /api/chat
// 携带对话历史做检索问答，stream=true时以SSE流式返回回答
func (h *ChatHandler) Chat(c *gin.Context) {
	// 绑定请求参数
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid chat request")
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"无效的请求参数",
		))
		return
	}

	ctx := c.Request.Context()

	// 会话ID为空时自动创建新会话，用问题作为标题
	session, ok := h.resolveSession(c, req.SessionID, req.Question)
	if !ok {
		return
	}

	// 加载会话的对话历史
	history, err := h.chatService.History(ctx, session.ID)
	if err != nil {
		h.logger.WithError(err).WithField("session_id", session.ID).Error("Failed to load chat history")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"加载对话历史失败",
		))
		return
	}

	// 保存用户消息
	userMessage := &models.ChatMessage{
		SessionID: session.ID,
		Role:      models.RoleUser,
		Content:   req.Question,
	}
	if err := h.chatService.AddMessage(ctx, userMessage); err != nil {
		h.logger.WithError(err).WithField("session_id", session.ID).Error("Failed to add user message")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"添加用户消息失败",
		))
		return
	}

	filter := searchFilter(req)

	if req.Stream {
		h.streamAnswer(c, session, req.Question, filter, history)
		return
	}

	// 非流式：一次性生成回答
	answer, sources, err := h.qaService.AnswerWithHistory(ctx, req.Question, filter, history)
	if err != nil {
		h.logger.WithError(err).WithField("session_id", session.ID).Error("Failed to generate answer")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"生成回答失败",
		))
		return
	}

	if !h.saveAssistantMessage(c, session.ID, answer, sources) {
		return
	}

	resp := model.ChatResponse{
		SessionID: session.ID,
		Question:  req.Question,
		Answer:    answer,
		Sources:   model.ConvertToSourceInfo(sources),
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// streamAnswer 以SSE流式返回回答
// 每个增量片段作为message事件发送，结束时发送sources和done事件
func (h *ChatHandler) streamAnswer(c *gin.Context, session *models.ChatSession, question string, filter vectordb.SearchFilter, history []llm.Message) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	// 先把会话ID告诉客户端，新建会话时客户端需要它
	c.SSEvent("session", gin.H{"session_id": session.ID})
	c.Writer.Flush()

	answer, sources, err := h.qaService.AnswerStream(c.Request.Context(), question, filter, history, func(delta string) error {
		c.SSEvent("message", delta)
		c.Writer.Flush()
		return nil
	})
	if err != nil {
		h.logger.WithError(err).WithField("session_id", session.ID).Error("Failed to stream answer")
		c.SSEvent("error", gin.H{"message": "生成回答失败"})
		c.Writer.Flush()
		return
	}

	// 流式结束后保存助手消息
	assistantMessage := &models.ChatMessage{
		SessionID: session.ID,
		Role:      models.RoleAssistant,
		Content:   answer,
	}
	if err := h.chatService.SaveMessageWithSources(c.Request.Context(), assistantMessage, toModelSources(sources)); err != nil {
		h.logger.WithError(err).WithField("session_id", session.ID).Error("Failed to save streamed answer")
	}

	c.SSEvent("sources", model.ConvertToSourceInfo(sources))
	c.SSEvent("done", gin.H{"session_id": session.ID})
	c.Writer.Flush()
}

// resolveSession 获取或创建聊天会话
// 返回false表示已经写入了错误响应
func (h *ChatHandler) resolveSession(c *gin.Context, sessionID string, question string) (*models.ChatSession, bool) {
	if sessionID == "" {
		title := question
		if len([]rune(title)) > maxAutoTitleLength {
			title = string([]rune(title)[:maxAutoTitleLength])
		}

		session, err := h.chatService.CreateChat(c.Request.Context(), title)
		if err != nil {
			h.logger.WithError(err).Error("Failed to create chat session")
			c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
				http.StatusInternalServerError,
				"创建聊天会话失败",
			))
			return nil, false
		}
		return session, true
	}

	session, err := h.chatService.GetChatSession(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.WithError(err).WithField("session_id", sessionID).Error("Chat session not found")
		c.JSON(http.StatusNotFound, model.NewErrorResponse(
			http.StatusNotFound,
			"聊天会话不存在",
		))
		return nil, false
	}
	return session, true
}

// saveAssistantMessage 保存助手回复和引用来源
// 返回false表示已经写入了错误响应
func (h *ChatHandler) saveAssistantMessage(c *gin.Context, sessionID string, answer string, sources []vectordb.Chunk) bool {
	assistantMessage := &models.ChatMessage{
		SessionID: sessionID,
		Role:      models.RoleAssistant,
		Content:   answer,
	}

	if err := h.chatService.SaveMessageWithSources(c.Request.Context(), assistantMessage, toModelSources(sources)); err != nil {
		h.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to add assistant message")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"添加助手回复失败",
		))
		return false
	}
	return true
}

// CreateChat 创建新的聊天会话
// POST /api/chat/sessions
func (h *ChatHandler) CreateChat(c *gin.Context) {
	// 绑定请求参数
	var req model.CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid create chat request")
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"无效的请求参数",
		))
		return
	}

	session, err := h.chatService.CreateChat(c.Request.Context(), req.Title)
	if err != nil {
		h.logger.WithError(err).Error("Failed to create chat session")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"创建聊天会话失败",
		))
		return
	}

	resp := model.CreateChatResponse{
		ChatID:    session.ID,
		Title:     session.Title,
		CreatedAt: session.CreatedAt,
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// GetChatHistory 获取聊天历史记录
// GET /api/chat/sessions/:session_id
func (h *ChatHandler) GetChatHistory(c *gin.Context) {
	// 绑定路径参数
	var req model.GetChatHistoryRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid chat history request")
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"无效的会话ID",
		))
		return
	}
	if err := c.ShouldBindQuery(&req.PaginationRequest); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"无效的分页参数",
		))
		return
	}

	offset := (req.GetPage() - 1) * req.GetPageSize()
	limit := req.GetPageSize()

	// 获取聊天会话
	session, err := h.chatService.GetChatSession(c.Request.Context(), req.SessionID)
	if err != nil {
		h.logger.WithError(err).WithField("session_id", req.SessionID).Error("Failed to get chat session")
		c.JSON(http.StatusNotFound, model.NewErrorResponse(
			http.StatusNotFound,
			"聊天会话不存在",
		))
		return
	}

	// 获取消息列表
	messages, _, err := h.chatService.GetChatMessages(c.Request.Context(), req.SessionID, offset, limit)
	if err != nil {
		h.logger.WithError(err).WithField("session_id", req.SessionID).Error("Failed to get chat messages")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"获取聊天消息失败",
		))
		return
	}

	// 转换为响应格式
	messageInfos := make([]model.MessageInfo, 0, len(messages))
	for _, msg := range messages {
		// 解析消息中的引用来源（如果有）
		var sources []model.QASourceInfo
		if len(msg.Sources) > 0 {
			var msgSources []models.Source
			if err := json.Unmarshal(msg.Sources, &msgSources); err == nil {
				for _, src := range msgSources {
					sources = append(sources, model.QASourceInfo{
						TranscriptID: src.TranscriptID,
						MeetingID:    src.MeetingID,
						FileName:     src.FileName,
						Text:         src.Text,
						Position:     src.Position,
						Score:        src.Score,
					})
				}
			}
		}

		messageInfos = append(messageInfos, model.MessageInfo{
			ID:        strconv.Itoa(int(msg.ID)),
			Role:      string(msg.Role),
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
			Sources:   sources,
		})
	}

	resp := model.ChatHistoryResponse{
		ChatID:   session.ID,
		Title:    session.Title,
		Messages: messageInfos,
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// ListChats 获取聊天会话列表
// GET /api/chat/sessions
func (h *ChatHandler) ListChats(c *gin.Context) {
	// 绑定查询参数
	var req model.ChatListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid chat list request")
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"无效的请求参数",
		))
		return
	}

	offset := (req.GetPage() - 1) * req.GetPageSize()
	limit := req.GetPageSize()

	// 获取带有消息数量的聊天列表
	chats, total, err := h.chatService.GetChatsWithMessageCount(c.Request.Context(), offset, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list chat sessions")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"获取聊天会话列表失败",
		))
		return
	}

	// 转换为响应格式
	chatInfos := make([]model.ChatInfo, 0, len(chats))
	for _, chat := range chats {
		chatInfos = append(chatInfos, model.ChatInfo{
			ID:           chat["id"].(string),
			Title:        chat["title"].(string),
			CreatedAt:    chat["created_at"].(time.Time),
			UpdatedAt:    chat["updated_at"].(time.Time),
			MessageCount: int(chat["message_count"].(int64)),
		})
	}

	resp := model.ChatListResponse{
		Total:    total,
		Page:     req.GetPage(),
		PageSize: req.GetPageSize(),
		Chats:    chatInfos,
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// RenameChat 重命名聊天会话
// PATCH /api/chat/sessions/:session_id
func (h *ChatHandler) RenameChat(c *gin.Context) {
	// 绑定路径参数
	var pathParams model.DeleteChatRequest
	if err := c.ShouldBindUri(&pathParams); err != nil {
		h.logger.WithError(err).Warn("Invalid rename chat request")
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"无效的会话ID",
		))
		return
	}

	// 绑定请求体
	var req struct {
		Title string `json:"title" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid rename chat request body")
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"无效的请求参数",
		))
		return
	}

	if err := h.chatService.RenameChatSession(c.Request.Context(), pathParams.SessionID, req.Title); err != nil {
		h.logger.WithError(err).
			WithFields(logrus.Fields{
				"session_id": pathParams.SessionID,
				"new_title":  req.Title,
			}).
			Error("Failed to rename chat session")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"重命名聊天会话失败",
		))
		return
	}

	// 获取更新后的会话
	session, err := h.chatService.GetChatSession(c.Request.Context(), pathParams.SessionID)
	if err != nil {
		h.logger.WithError(err).WithField("session_id", pathParams.SessionID).Error("Failed to get renamed chat session")
		c.JSON(http.StatusOK, model.NewSuccessResponse(model.RenameChatResponse{
			Success:   true,
			SessionID: pathParams.SessionID,
			Title:     req.Title,
		}))
		return
	}

	resp := model.RenameChatResponse{
		Success:   true,
		SessionID: session.ID,
		Title:     session.Title,
		UpdatedAt: session.UpdatedAt,
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// DeleteChat 删除聊天会话
// DELETE /api/chat/sessions/:session_id
func (h *ChatHandler) DeleteChat(c *gin.Context) {
	// 绑定路径参数
	var req model.DeleteChatRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid delete chat request")
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"无效的会话ID",
		))
		return
	}

	if err := h.chatService.DeleteChatSession(c.Request.Context(), req.SessionID); err != nil {
		h.logger.WithError(err).WithField("session_id", req.SessionID).Error("Failed to delete chat session")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"删除聊天会话失败",
		))
		return
	}

	resp := model.DeleteChatResponse{
		Success:   true,
		SessionID: req.SessionID,
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// searchFilter 根据聊天请求构建检索过滤条件
func searchFilter(req model.ChatRequest) vectordb.SearchFilter {
	filter := vectordb.SearchFilter{}
	if req.TranscriptID != "" {
		filter.TranscriptIDs = []string{req.TranscriptID}
	}
	if req.MeetingID != "" {
		filter.MeetingIDs = []string{req.MeetingID}
	}
	if req.MeetingType != "" {
		filter.MeetingType = req.MeetingType
	}
	return filter
}

// toModelSources 将检索结果转换为持久化的来源结构
func toModelSources(chunks []vectordb.Chunk) []models.Source {
	sources := make([]models.Source, 0, len(chunks))
	for _, chunk := range chunks {
		sources = append(sources, models.Source{
			TranscriptID: chunk.TranscriptID,
			MeetingID:    chunk.MeetingID,
			FileName:     chunk.FileName,
			Position:     chunk.Position,
			Text:         chunk.Text,
		})
	}
	return sources
}
