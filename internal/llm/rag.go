package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultRAGSystemPrompt 默认的会议问答系统提示词
// 面向ICSI会议录音转写语料的检索增强问答
const DefaultRAGSystemPrompt = `You are an assistant for answering questions about the ICSI Meeting Recorder corpus, a collection of research group meetings recorded at the International Computer Science Institute in Berkeley.

Answer using only the meeting transcript excerpts provided as context. Speaker labels such as me011 or fn002 identify individual participants; utterances appear as "[speaker]: text". Bracketed annotations like [Laugh] or [Door slam] describe sounds in the recording.

If the context does not contain enough information to answer, say so plainly instead of guessing. When relevant, mention which meeting the information came from.`

// DefaultRAGTemplate 默认RAG提示词模板
// 包含变量：
// {{.Question}} - 用户问题
// {{.Context}} - 检索的转写片段
const DefaultRAGTemplate = `Meeting transcript excerpts:
{{.Context}}

Question: {{.Question}}

Answer the question based on the excerpts above.`

// ContextChunk 检索到的转写片段及其来源信息
type ContextChunk struct {
	ID           string                 // 文本块ID
	TranscriptID string                 // 转写文件ID
	MeetingID    string                 // 会议ID
	FileName     string                 // 文件名
	Position     int                    // 片段位置
	Text         string                 // 片段文本
	Score        float32                // 检索相似度得分
	Metadata     map[string]interface{} // 会议元数据
}

// formatContext 将检索片段格式化为提示词上下文
// 每个片段标注序号和所属会议
func formatContext(chunks []ContextChunk) string {
	var builder strings.Builder
	for i, chunk := range chunks {
		label := chunk.MeetingID
		if label == "" {
			label = chunk.FileName
		}
		if label != "" {
			builder.WriteString(fmt.Sprintf("[%d] (meeting %s)\n%s\n\n", i+1, label, chunk.Text))
		} else {
			builder.WriteString(fmt.Sprintf("[%d]\n%s\n\n", i+1, chunk.Text))
		}
	}
	return builder.String()
}

// RAGConfig 检索增强生成配置
type RAGConfig struct {
	SystemPrompt   string        // 系统提示词
	Template       string        // 用户提示词模板
	MaxTokens      int           // 最大Token数
	Temperature    float32       // 温度参数
	Timeout        time.Duration // 超时时间
	IncludeSources bool          // 是否带上引用来源
}

// DefaultRAGConfig 默认RAG配置
func DefaultRAGConfig() *RAGConfig {
	return &RAGConfig{
		SystemPrompt:   DefaultRAGSystemPrompt,
		Template:       DefaultRAGTemplate,
		MaxTokens:      2048,
		Temperature:    0.7,
		Timeout:        60 * time.Second,
		IncludeSources: true,
	}
}

// RAGService 实现检索增强生成服务
type RAGService struct {
	Client Client       // 大模型客户端
	config *RAGConfig   // 配置
	mu     sync.RWMutex // 配置互斥锁
}

// NewRAG 创建新的检索增强生成服务
func NewRAG(client Client, opts ...RAGOption) *RAGService {
	cfg := DefaultRAGConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return &RAGService{
		Client: client,
		config: cfg,
	}
}

// RAGOption RAG配置选项函数类型
type RAGOption func(*RAGConfig)

// WithSystemPrompt 设置系统提示词
func WithSystemPrompt(prompt string) RAGOption {
	return func(c *RAGConfig) {
		c.SystemPrompt = prompt
	}
}

// WithTemplate 设置用户提示词模板
func WithTemplate(template string) RAGOption {
	return func(c *RAGConfig) {
		c.Template = template
	}
}

// WithRAGMaxTokens 设置最大Token数
func WithRAGMaxTokens(tokens int) RAGOption {
	return func(c *RAGConfig) {
		c.MaxTokens = tokens
	}
}

// WithRAGTemperature 设置温度参数
func WithRAGTemperature(temp float32) RAGOption {
	return func(c *RAGConfig) {
		c.Temperature = temp
	}
}

// WithRAGTimeout 设置请求超时时间
func WithRAGTimeout(timeout time.Duration) RAGOption {
	return func(c *RAGConfig) {
		c.Timeout = timeout
	}
}

// WithSources 设置是否包含引用来源
func WithSources(include bool) RAGOption {
	return func(c *RAGConfig) {
		c.IncludeSources = include
	}
}

// Answer 根据检索片段和问题生成回答
// 单次问答，不带对话历史
func (r *RAGService) Answer(ctx context.Context, question string, chunks []ContextChunk) (*RAGResponse, error) {
	return r.answer(ctx, question, chunks, nil, nil)
}

// AnswerWithHistory 带对话历史的问答
// history按时间顺序排列，不包含系统消息和当前问题
func (r *RAGService) AnswerWithHistory(ctx context.Context, question string, chunks []ContextChunk, history []Message) (*RAGResponse, error) {
	return r.answer(ctx, question, chunks, history, nil)
}

// AnswerStream 流式问答，增量文本通过handler回调
func (r *RAGService) AnswerStream(ctx context.Context, question string, chunks []ContextChunk, history []Message, handler StreamHandler) (*RAGResponse, error) {
	return r.answer(ctx, question, chunks, history, handler)
}

func (r *RAGService) answer(ctx context.Context, question string, chunks []ContextChunk, history []Message, handler StreamHandler) (*RAGResponse, error) {
	if strings.TrimSpace(question) == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, "question cannot be empty")
	}

	r.mu.RLock()
	cfg := *r.config
	r.mu.RUnlock()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: RoleSystem, Content: cfg.SystemPrompt})
	messages = append(messages, history...)
	messages = append(messages, Message{Role: RoleUser, Content: buildPrompt(cfg.Template, question, chunks)})

	chatOpts := []ChatOption{
		WithChatMaxTokens(cfg.MaxTokens),
		WithChatTemperature(cfg.Temperature),
	}

	var response *Response
	var err error
	if handler != nil {
		response, err = r.Client.ChatStream(ctxWithTimeout, messages, handler, chatOpts...)
	} else {
		response, err = r.Client.Chat(ctxWithTimeout, messages, chatOpts...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to generate response: %v", err)
	}

	ragResponse := &RAGResponse{Answer: response.Text}

	if cfg.IncludeSources && len(chunks) > 0 {
		sources := make([]SourceReference, len(chunks))
		for i, chunk := range chunks {
			sources[i] = SourceReference{
				ID:           chunk.ID,
				TranscriptID: chunk.TranscriptID,
				MeetingID:    chunk.MeetingID,
				FileName:     chunk.FileName,
				Position:     chunk.Position,
				Content:      chunk.Text,
				Score:        chunk.Score,
				Metadata:     chunk.Metadata,
			}
		}
		ragResponse.Sources = sources
	}

	return ragResponse, nil
}

// buildPrompt 构建增强提示词
func buildPrompt(template, question string, chunks []ContextChunk) string {
	prompt := strings.ReplaceAll(template, "{{.Context}}", formatContext(chunks))
	return strings.ReplaceAll(prompt, "{{.Question}}", question)
}

// SetTemplate 设置自定义提示词模板
func (r *RAGService) SetTemplate(template string) *RAGService {
	r.mu.Lock()
	r.config.Template = template
	r.mu.Unlock()
	return r
}
