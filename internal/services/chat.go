package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fyerfyer/meeting-QA-system/internal/llm"
	"github.com/fyerfyer/meeting-QA-system/internal/models"
	"github.com/fyerfyer/meeting-QA-system/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultHistoryWindow 构建对话历史时读取的最近消息条数
const DefaultHistoryWindow = 20

// ChatService 聊天服务
// 负责管理聊天会话和消息的业务逻辑
type ChatService struct {
	repo   repository.ChatRepository // 聊天仓储接口
	memory *llm.MemoryBuffer         // 对话历史的令牌窗口
	logger *logrus.Logger            // 日志记录器
}

// ChatOption 聊天服务配置选项
type ChatOption func(*ChatService)

// NewChatService 创建聊天服务实例
func NewChatService(repo repository.ChatRepository, opts ...ChatOption) *ChatService {
	service := &ChatService{
		repo:   repo,
		memory: llm.NewMemoryBuffer(llm.DefaultMemoryTokenLimit),
		logger: logrus.New(),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service
}

// WithChatLogger 设置日志记录器
func WithChatLogger(logger *logrus.Logger) ChatOption {
	return func(s *ChatService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMemoryBuffer 设置对话历史缓冲
func WithMemoryBuffer(memory *llm.MemoryBuffer) ChatOption {
	return func(s *ChatService) {
		if memory != nil {
			s.memory = memory
		}
	}
}

// CreateChat 创建新的聊天会话
func (s *ChatService) CreateChat(ctx context.Context, title string) (*models.ChatSession, error) {
	if title == "" {
		title = "New conversation " + time.Now().Format("2006-01-02 15:04:05")
	}

	session := &models.ChatSession{
		ID:        uuid.New().String(),
		Title:     title,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := s.repo.CreateSession(session); err != nil {
		s.logger.WithError(err).Error("Failed to create chat session")
		return nil, fmt.Errorf("failed to create chat session: %w", err)
	}

	s.logger.WithField("session_id", session.ID).Info("Chat session created")
	return session, nil
}

// GetChatSession 获取聊天会话详情
func (s *ChatService) GetChatSession(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	if sessionID == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	session, err := s.repo.GetSession(sessionID)
	if err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to get chat session")
		return nil, fmt.Errorf("failed to get chat session: %w", err)
	}

	return session, nil
}

// ListChatSessions 列出聊天会话
func (s *ChatService) ListChatSessions(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.ChatSession, int64, error) {
	sessions, total, err := s.repo.ListSessions(offset, limit, filters)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list chat sessions")
		return nil, 0, fmt.Errorf("failed to list chat sessions: %w", err)
	}

	return sessions, total, nil
}

// RenameChatSession 重命名聊天会话
func (s *ChatService) RenameChatSession(ctx context.Context, sessionID string, newTitle string) error {
	if sessionID == "" {
		return errors.New("session ID cannot be empty")
	}

	if newTitle == "" {
		return errors.New("new title cannot be empty")
	}

	session, err := s.repo.GetSession(sessionID)
	if err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to get chat session for rename")
		return fmt.Errorf("failed to get chat session: %w", err)
	}

	session.Title = newTitle
	session.UpdatedAt = time.Now()

	if err := s.repo.UpdateSession(session); err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to rename chat session")
		return fmt.Errorf("failed to rename chat session: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"new_title":  newTitle,
	}).Info("Chat session renamed")
	return nil
}

// DeleteChatSession 删除聊天会话
func (s *ChatService) DeleteChatSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.New("session ID cannot be empty")
	}

	if err := s.repo.DeleteSession(sessionID); err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to delete chat session")
		return fmt.Errorf("failed to delete chat session: %w", err)
	}

	s.logger.WithField("session_id", sessionID).Info("Chat session deleted")
	return nil
}

// AddMessage 添加聊天消息
func (s *ChatService) AddMessage(ctx context.Context, message *models.ChatMessage) error {
	if message.SessionID == "" {
		return errors.New("session ID cannot be empty")
	}

	if message.Content == "" {
		return errors.New("message content cannot be empty")
	}

	// 确保消息角色有效
	if message.Role != models.RoleUser &&
		message.Role != models.RoleSystem &&
		message.Role != models.RoleAssistant {
		message.Role = models.RoleUser
	}

	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}

	if err := s.repo.CreateMessage(message); err != nil {
		s.logger.WithError(err).
			WithFields(logrus.Fields{
				"session_id": message.SessionID,
				"role":       message.Role,
			}).Error("Failed to add chat message")
		return fmt.Errorf("failed to add chat message: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"session_id": message.SessionID,
		"role":       message.Role,
	}).Info("Chat message added")
	return nil
}

// SaveMessageWithSources 保存带有引用来源的消息
func (s *ChatService) SaveMessageWithSources(ctx context.Context, message *models.ChatMessage, sources []models.Source) error {
	if message.SessionID == "" {
		return errors.New("session ID cannot be empty")
	}

	if message.Content == "" {
		return errors.New("message content cannot be empty")
	}

	if len(sources) > 0 {
		sourcesJSON, err := json.Marshal(sources)
		if err != nil {
			s.logger.WithError(err).Error("Failed to marshal sources to JSON")
			return fmt.Errorf("failed to marshal sources: %w", err)
		}
		message.Sources = sourcesJSON
	}

	if err := s.repo.CreateMessage(message); err != nil {
		s.logger.WithError(err).WithField("session_id", message.SessionID).Error("Failed to save message with sources")
		return fmt.Errorf("failed to save message with sources: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"session_id":    message.SessionID,
		"sources_count": len(sources),
	}).Info("Message with sources saved")
	return nil
}

// GetChatMessages 获取会话消息列表
func (s *ChatService) GetChatMessages(ctx context.Context, sessionID string, offset, limit int) ([]*models.ChatMessage, int64, error) {
	if sessionID == "" {
		return nil, 0, errors.New("session ID cannot be empty")
	}

	messages, total, err := s.repo.GetMessages(sessionID, offset, limit)
	if err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to get chat messages")
		return nil, 0, fmt.Errorf("failed to get chat messages: %w", err)
	}

	return messages, total, nil
}

// CountChatMessages 统计会话消息数量
func (s *ChatService) CountChatMessages(ctx context.Context, sessionID string) (int64, error) {
	if sessionID == "" {
		return 0, errors.New("session ID cannot be empty")
	}

	count, err := s.repo.CountMessages(sessionID)
	if err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to count chat messages")
		return 0, fmt.Errorf("failed to count chat messages: %w", err)
	}

	return count, nil
}

// History 构建会话的LLM对话历史
// 读取最近的消息并按令牌窗口裁剪，返回按时间正序的消息列表
func (s *ChatService) History(ctx context.Context, sessionID string) ([]llm.Message, error) {
	if sessionID == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	messages, err := s.repo.GetRecentMessages(sessionID, DefaultHistoryWindow)
	if err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to load chat history")
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}

	history := make([]llm.Message, 0, len(messages))
	for _, message := range messages {
		history = append(history, llm.Message{
			Role:    llm.MessageRole(message.Role),
			Content: message.Content,
		})
	}

	return s.memory.Trim(history), nil
}

// GetChatsWithMessageCount 获取带消息数量的聊天会话列表
func (s *ChatService) GetChatsWithMessageCount(ctx context.Context, offset, limit int) ([]map[string]interface{}, int64, error) {
	sessions, total, err := s.repo.ListSessions(offset, limit, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list chat sessions: %w", err)
	}

	result := make([]map[string]interface{}, len(sessions))
	for i, session := range sessions {
		count, err := s.repo.CountMessages(session.ID)
		if err != nil {
			s.logger.WithError(err).WithField("session_id", session.ID).Warn("Failed to count messages")
			count = 0
		}

		result[i] = map[string]interface{}{
			"id":            session.ID,
			"title":         session.Title,
			"created_at":    session.CreatedAt,
			"updated_at":    session.UpdatedAt,
			"message_count": count,
		}
	}

	return result, total, nil
}
