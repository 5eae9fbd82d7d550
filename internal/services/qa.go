package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fyerfyer/meeting-QA-system/internal/cache"
	"github.com/fyerfyer/meeting-QA-system/internal/embedding"
	"github.com/fyerfyer/meeting-QA-system/internal/llm"
	"github.com/fyerfyer/meeting-QA-system/internal/vectordb"
)

// NoAnswerMessage 未检索到相关会议内容时的固定回答
const NoAnswerMessage = "Sorry, I couldn't find any relevant information in the meeting transcripts to answer your question."

// QAService 问答服务
// 负责协调向量检索和大模型生成答案
type QAService struct {
	embedder    embedding.Client    // 嵌入模型客户端
	vectorDB    vectordb.Repository // 向量数据库
	llm         llm.Client          // 大模型客户端
	rag         *llm.RAGService     // RAG服务
	cache       cache.Cache         // 缓存
	cacheTTL    time.Duration       // 缓存有效期
	searchLimit int                 // 搜索结果数量限制
	minScore    float32             // 最低相似度分数
}

// QAOption 问答服务配置选项
type QAOption func(*QAService)

// NewQAService 创建问答服务实例
func NewQAService(
	embedder embedding.Client,
	vectorDB vectordb.Repository,
	llmClient llm.Client,
	rag *llm.RAGService,
	qaCache cache.Cache,
	opts ...QAOption,
) *QAService {
	service := &QAService{
		embedder:    embedder,
		vectorDB:    vectorDB,
		llm:         llmClient,
		rag:         rag,
		cache:       qaCache,
		cacheTTL:    24 * time.Hour, // 默认缓存24小时
		searchLimit: 5,              // 默认检索5个相关文本块
		minScore:    0.7,            // 默认最低相似度分数
	}

	for _, opt := range opts {
		opt(service)
	}

	return service
}

// WithCacheTTL 设置缓存时间
func WithCacheTTL(ttl time.Duration) QAOption {
	return func(s *QAService) {
		s.cacheTTL = ttl
	}
}

// WithSearchLimit 设置搜索结果数量
func WithSearchLimit(limit int) QAOption {
	return func(s *QAService) {
		if limit > 0 {
			s.searchLimit = limit
		}
	}
}

// WithMinScore 设置最低相似度分数
func WithMinScore(score float32) QAOption {
	return func(s *QAService) {
		s.minScore = score
	}
}

// Answer 回答问题，在全部会议转写中检索
func (s *QAService) Answer(ctx context.Context, question string) (string, []vectordb.Chunk, error) {
	filter := vectordb.SearchFilter{
		MinScore:   s.minScore,
		MaxResults: s.searchLimit,
	}
	return s.answerWithFilter(ctx, question, filter, cache.AnswerCacheKey(question))
}

// AnswerWithMeeting 针对特定会议回答问题
func (s *QAService) AnswerWithMeeting(ctx context.Context, question string, meetingID string) (string, []vectordb.Chunk, error) {
	if meetingID == "" {
		return "", nil, fmt.Errorf("meetingID cannot be empty")
	}

	filter := vectordb.SearchFilter{
		MeetingIDs: []string{meetingID},
		MinScore:   s.minScore,
		MaxResults: s.searchLimit,
	}
	return s.answerWithFilter(ctx, question, filter, cache.AnswerCacheKey(question, "meeting", meetingID))
}

// AnswerWithMeetingType 针对特定会议类型（mr/ed/ro等）回答问题
func (s *QAService) AnswerWithMeetingType(ctx context.Context, question string, meetingType string) (string, []vectordb.Chunk, error) {
	if meetingType == "" {
		return "", nil, fmt.Errorf("meetingType cannot be empty")
	}

	filter := vectordb.SearchFilter{
		MeetingType: meetingType,
		MinScore:    s.minScore,
		MaxResults:  s.searchLimit,
	}
	return s.answerWithFilter(ctx, question, filter, cache.AnswerCacheKey(question, "type", meetingType))
}

// AnswerWithTranscript 针对特定转写文件回答问题
func (s *QAService) AnswerWithTranscript(ctx context.Context, question string, transcriptID string) (string, []vectordb.Chunk, error) {
	if transcriptID == "" {
		return "", nil, fmt.Errorf("transcriptID cannot be empty")
	}

	filter := vectordb.SearchFilter{
		TranscriptIDs: []string{transcriptID},
		MinScore:      s.minScore,
		MaxResults:    s.searchLimit,
	}
	return s.answerWithFilter(ctx, question, filter, cache.AnswerCacheKey(question, "transcript", transcriptID))
}

// answerWithFilter 执行带过滤条件的检索问答
func (s *QAService) answerWithFilter(ctx context.Context, question string, filter vectordb.SearchFilter, cacheKey string) (string, []vectordb.Chunk, error) {
	if question == "" {
		return "", nil, fmt.Errorf("question cannot be empty")
	}

	// 1. 尝试从缓存获取
	if answer, sources, ok := s.cachedAnswer(cacheKey); ok {
		return answer, sources, nil
	}

	// 2. 将问题转换为向量
	vector, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	// 3. 检索相关文本块
	results, err := s.vectorDB.Search(vector, filter)
	if err != nil {
		return "", nil, fmt.Errorf("search failed: %w", err)
	}

	// 只保留相关度高于阈值的文本块
	var relevant []vectordb.SearchResult
	for _, result := range results {
		if result.Score >= s.minScore {
			relevant = append(relevant, result)
		}
	}

	// 没有高相关度内容时返回固定回答
	if len(relevant) == 0 {
		s.cacheAnswer(cacheKey, NoAnswerMessage, nil)
		return NoAnswerMessage, nil, nil
	}

	// 4. 使用RAG生成回答
	chunks := make([]llm.ContextChunk, len(relevant))
	sources := make([]vectordb.Chunk, len(relevant))
	for i, result := range relevant {
		chunks[i] = contextChunk(result)
		sources[i] = result.Chunk
	}

	ragResponse, err := s.rag.Answer(ctx, question, chunks)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	// 5. 缓存结果
	s.cacheAnswer(cacheKey, ragResponse.Answer, sources)

	return ragResponse.Answer, sources, nil
}

// AnswerWithHistory 带对话历史回答问题，用于聊天会话
// 不走缓存，历史消息使答案依赖会话状态
func (s *QAService) AnswerWithHistory(ctx context.Context, question string, filter vectordb.SearchFilter, history []llm.Message) (string, []vectordb.Chunk, error) {
	chunks, sources, err := s.retrieve(ctx, question, filter)
	if err != nil {
		return "", nil, err
	}

	if len(chunks) == 0 {
		return NoAnswerMessage, nil, nil
	}

	ragResponse, err := s.rag.AnswerWithHistory(ctx, question, chunks, history)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	return ragResponse.Answer, sources, nil
}

// AnswerStream 流式回答问题，生成的每个增量片段都交给handler
func (s *QAService) AnswerStream(ctx context.Context, question string, filter vectordb.SearchFilter, history []llm.Message, handler llm.StreamHandler) (string, []vectordb.Chunk, error) {
	chunks, sources, err := s.retrieve(ctx, question, filter)
	if err != nil {
		return "", nil, err
	}

	if len(chunks) == 0 {
		// 没有相关内容时也按流式约定交付固定回答
		if handler != nil {
			if err := handler(NoAnswerMessage); err != nil {
				return "", nil, err
			}
		}
		return NoAnswerMessage, nil, nil
	}

	ragResponse, err := s.rag.AnswerStream(ctx, question, chunks, history, handler)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	return ragResponse.Answer, sources, nil
}

// retrieve 检索问题相关的文本块并做阈值过滤
func (s *QAService) retrieve(ctx context.Context, question string, filter vectordb.SearchFilter) ([]llm.ContextChunk, []vectordb.Chunk, error) {
	if question == "" {
		return nil, nil, fmt.Errorf("question cannot be empty")
	}

	if filter.MaxResults <= 0 {
		filter.MaxResults = s.searchLimit
	}
	if filter.MinScore <= 0 {
		filter.MinScore = s.minScore
	}

	vector, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	results, err := s.vectorDB.Search(vector, filter)
	if err != nil {
		return nil, nil, fmt.Errorf("search failed: %w", err)
	}

	var chunks []llm.ContextChunk
	var sources []vectordb.Chunk
	for _, result := range results {
		if result.Score < s.minScore {
			continue
		}
		chunks = append(chunks, contextChunk(result))
		sources = append(sources, result.Chunk)
	}

	return chunks, sources, nil
}

// cachedAnswer 从缓存获取回答和引用来源
func (s *QAService) cachedAnswer(cacheKey string) (string, []vectordb.Chunk, bool) {
	answer, found, err := s.cache.Get(cacheKey)
	if err != nil || !found {
		return "", nil, false
	}

	var sources []vectordb.Chunk
	sourcesJSON, sourcesFound, err := s.cache.Get(cacheKey + ":sources")
	if err == nil && sourcesFound {
		// 解析失败就使用空列表，不影响主流程
		_ = json.Unmarshal([]byte(sourcesJSON), &sources)
	}

	return answer, sources, true
}

// cacheAnswer 缓存回答和引用来源
func (s *QAService) cacheAnswer(cacheKey string, answer string, sources []vectordb.Chunk) {
	_ = s.cache.Set(cacheKey, answer, s.cacheTTL)

	if len(sources) == 0 {
		return
	}
	if sourcesJSON, err := json.Marshal(sources); err == nil {
		_ = s.cache.Set(cacheKey+":sources", string(sourcesJSON), s.cacheTTL)
	}
}

// contextChunk 将搜索结果转换为RAG上下文块
func contextChunk(result vectordb.SearchResult) llm.ContextChunk {
	return llm.ContextChunk{
		ID:           result.Chunk.ID,
		TranscriptID: result.Chunk.TranscriptID,
		MeetingID:    result.Chunk.MeetingID,
		FileName:     result.Chunk.FileName,
		Position:     result.Chunk.Position,
		Text:         result.Chunk.Text,
		Score:        result.Score,
		Metadata:     result.Chunk.Metadata,
	}
}

// ClearCache 清除问答缓存
func (s *QAService) ClearCache() error {
	return s.cache.Clear()
}
