package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient OpenAI聊天模型客户端
type OpenAIClient struct {
	client *openai.Client
	config *Config
}

// NewOpenAIClient 创建一个新的OpenAI聊天客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	config := NewConfig(opts...)

	if config.APIKey == "" {
		return nil, NewLLMError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Name 返回模型名称
func (c *OpenAIClient) Name() string {
	return c.config.Model
}

// Generate 根据提示词生成回答
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}

	opts := &GenerateOptions{}
	for _, opt := range options {
		opt(opts)
	}

	messages := []Message{{Role: RoleUser, Content: prompt}}
	return c.complete(ctx, messages, opts.MaxTokens, opts.Temperature, opts.TopP)
}

// Chat 进行多轮对话
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, options ...ChatOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewLLMError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}

	opts := &ChatOptions{}
	for _, opt := range options {
		opt(opts)
	}

	return c.complete(ctx, messages, opts.MaxTokens, opts.Temperature, opts.TopP)
}

// ChatStream 流式多轮对话
// 增量文本通过handler回调，最终返回完整的响应
func (c *OpenAIClient) ChatStream(ctx context.Context, messages []Message, handler StreamHandler, options ...ChatOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewLLMError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}
	if handler == nil {
		return nil, NewLLMError(ErrCodeInvalidRequest, "stream handler is required")
	}

	opts := &ChatOptions{}
	for _, opt := range options {
		opt(opts)
	}

	req := c.buildRequest(messages, opts.MaxTokens, opts.Temperature, opts.TopP)
	req.Stream = true

	timeoutCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	stream, err := c.client.CreateChatCompletionStream(timeoutCtx, req)
	if err != nil {
		return nil, wrapOpenAIError(err)
	}
	defer stream.Close()

	var builder strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, wrapOpenAIError(err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		builder.WriteString(delta)
		if err := handler(delta); err != nil {
			return nil, err
		}
	}

	return &Response{
		Text:       builder.String(),
		ModelName:  c.config.Model,
		FinishTime: time.Now(),
	}, nil
}

// complete 发送聊天补全请求，对速率限制错误做指数退避重试
func (c *OpenAIClient) complete(ctx context.Context, messages []Message, maxTokens *int, temperature, topP *float32) (*Response, error) {
	req := c.buildRequest(messages, maxTokens, temperature, topP)

	maxRetries := c.config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	for attempt := 0; ; attempt++ {
		timeoutCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		resp, err := c.client.CreateChatCompletion(timeoutCtx, req)
		cancel()

		if err == nil {
			if len(resp.Choices) == 0 {
				return nil, NewLLMError(ErrCodeServerError, "no choices in completion response")
			}
			return &Response{
				Text:       resp.Choices[0].Message.Content,
				TokenCount: resp.Usage.TotalTokens,
				ModelName:  resp.Model,
				FinishTime: time.Now(),
			}, nil
		}

		if isRateLimitError(err) && attempt < maxRetries {
			waitTime := time.Duration(1<<uint(attempt+1)) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(waitTime):
			}
			continue
		}
		return nil, wrapOpenAIError(err)
	}
}

// buildRequest 构建聊天补全请求
func (c *OpenAIClient) buildRequest(messages []Message, maxTokens *int, temperature, topP *float32) openai.ChatCompletionRequest {
	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
			Name:    msg.Name,
		}
	}

	req := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    chatMessages,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		TopP:        c.config.TopP,
	}
	if maxTokens != nil {
		req.MaxTokens = *maxTokens
	}
	if temperature != nil {
		req.Temperature = *temperature
	}
	if topP != nil {
		req.TopP = *topP
	}
	return req
}

// wrapOpenAIError 将OpenAI错误转换为LLMError
func wrapOpenAIError(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	case isRateLimitError(err):
		return NewLLMError(ErrCodeRateLimited, ErrMsgRateLimited)
	case strings.Contains(msg, "context deadline exceeded") || strings.Contains(msg, "timeout"):
		return NewLLMError(ErrCodeTimeout, ErrMsgTimeout)
	case strings.Contains(msg, "invalid api key") || strings.Contains(msg, "incorrect api key") || strings.Contains(msg, "401"):
		return NewLLMError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	case strings.Contains(msg, "context_length_exceeded") || strings.Contains(msg, "maximum context length"):
		return NewLLMError(ErrCodeContextTooLong, ErrMsgContextTooLong)
	case strings.Contains(msg, "content_filter"):
		return NewLLMError(ErrCodeContentFilter, ErrMsgContentFilter)
	default:
		return WrapError(err, ErrCodeServerError)
	}
}

// isRateLimitError 检查是否为速率限制错误
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "429")
}

// 在包初始化时注册OpenAI客户端
func init() {
	RegisterClient("openai", NewOpenAIClient)
}
