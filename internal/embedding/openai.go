package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient OpenAI嵌入向量客户端
type OpenAIClient struct {
	client *openai.Client
	config *Config
}

// NewOpenAIClient 创建一个新的OpenAI嵌入客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	config := NewConfig(opts...)

	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
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

// Embed 对单个文本生成嵌入向量
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	vectors, err := c.requestEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 对多个文本生成嵌入向量
// 空文本在结果中以nil占位，保持与输入相同的顺序
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	if c.config.BatchSize > 0 && len(texts) > c.config.BatchSize {
		return nil, ErrBatchTooLarge
	}

	// 过滤空文本，记录原始位置
	nonEmpty := make([]string, 0, len(texts))
	positions := make([]int, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) != "" {
			nonEmpty = append(nonEmpty, text)
			positions = append(positions, i)
		}
	}

	results := make([][]float32, len(texts))
	if len(nonEmpty) == 0 {
		return results, nil
	}

	vectors, err := c.requestEmbeddings(ctx, nonEmpty)
	if err != nil {
		return nil, err
	}

	for i, vector := range vectors {
		results[positions[i]] = vector
	}
	return results, nil
}

// requestEmbeddings 发送嵌入请求，对速率限制错误做指数退避重试
func (c *OpenAIClient) requestEmbeddings(ctx context.Context, input []string) ([][]float32, error) {
	maxRetries := c.config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	req := openai.EmbeddingRequest{
		Input: input,
		Model: openai.EmbeddingModel(c.config.Model),
	}

	for attempt := 0; ; attempt++ {
		timeoutCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		resp, err := c.client.CreateEmbeddings(timeoutCtx, req)
		cancel()

		if err == nil {
			if len(resp.Data) != len(input) {
				return nil, fmt.Errorf("embedding API returned %d vectors for %d inputs", len(resp.Data), len(input))
			}
			vectors := make([][]float32, len(resp.Data))
			for i, data := range resp.Data {
				vectors[i] = data.Embedding
			}
			return vectors, nil
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

		if isRateLimitError(err) {
			return nil, ErrRateLimited
		}
		return nil, fmt.Errorf("embedding API error: %v", err)
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
		strings.Contains(msg, "too many requests")
}

// 在包初始化时注册OpenAI客户端
func init() {
	RegisterClient("openai", NewOpenAIClient)
}
