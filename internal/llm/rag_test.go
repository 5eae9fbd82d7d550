package llm

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLLMClient 测试用大模型客户端
// 记录收到的消息并返回预设的回答
type mockLLMClient struct {
	answer       string
	lastMessages []Message
	err          error
}

func (m *mockLLMClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	return m.Chat(ctx, []Message{{Role: RoleUser, Content: prompt}})
}

func (m *mockLLMClient) Chat(ctx context.Context, messages []Message, options ...ChatOption) (*Response, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.lastMessages = messages
	return &Response{
		Text:       m.answer,
		TokenCount: 42,
		ModelName:  "mock-model",
		FinishTime: time.Now(),
	}, nil
}

func (m *mockLLMClient) ChatStream(ctx context.Context, messages []Message, handler StreamHandler, options ...ChatOption) (*Response, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.lastMessages = messages

	// 按单词切分模拟增量输出
	for _, word := range strings.SplitAfter(m.answer, " ") {
		if err := handler(word); err != nil {
			return nil, err
		}
	}
	return &Response{Text: m.answer, ModelName: "mock-model", FinishTime: time.Now()}, nil
}

func (m *mockLLMClient) Name() string {
	return "mock-model"
}

func sampleChunks() []ContextChunk {
	return []ContextChunk{
		{
			ID:           "chunk-1",
			TranscriptID: "trans-1",
			MeetingID:    "Bmr001",
			FileName:     "Bmr001.mrt",
			Position:     0,
			Text:         "[me011]: we should rerun the digit recognition experiments.",
			Score:        0.92,
		},
		{
			ID:           "chunk-2",
			TranscriptID: "trans-1",
			MeetingID:    "Bmr001",
			FileName:     "Bmr001.mrt",
			Position:     1,
			Text:         "[fn002]: the new microphones arrived last week.",
			Score:        0.87,
		},
	}
}

func TestRAGAnswer(t *testing.T) {
	mock := &mockLLMClient{answer: "The group discussed rerunning the digit recognition experiments."}
	rag := NewRAG(mock)

	response, err := rag.Answer(context.Background(), "What experiments were discussed?", sampleChunks())
	require.NoError(t, err)
	assert.Equal(t, mock.answer, response.Answer)

	// 第一条是系统消息，最后一条是带上下文的用户问题
	require.Len(t, mock.lastMessages, 2)
	assert.Equal(t, RoleSystem, mock.lastMessages[0].Role)
	userPrompt := mock.lastMessages[1].Content
	assert.Contains(t, userPrompt, "What experiments were discussed?")
	assert.Contains(t, userPrompt, "digit recognition")
	assert.Contains(t, userPrompt, "meeting Bmr001")

	// 引用来源携带转写片段信息
	require.Len(t, response.Sources, 2)
	assert.Equal(t, "trans-1", response.Sources[0].TranscriptID)
	assert.Equal(t, "Bmr001", response.Sources[0].MeetingID)
	assert.Equal(t, float32(0.92), response.Sources[0].Score)
}

func TestRAGAnswerWithHistory(t *testing.T) {
	mock := &mockLLMClient{answer: "They arrived last week."}
	rag := NewRAG(mock)

	history := []Message{
		{Role: RoleUser, Content: "What equipment was mentioned?"},
		{Role: RoleAssistant, Content: "New microphones were mentioned."},
	}

	_, err := rag.AnswerWithHistory(context.Background(), "When did they arrive?", sampleChunks(), history)
	require.NoError(t, err)

	// 系统消息 + 两条历史 + 当前问题
	require.Len(t, mock.lastMessages, 4)
	assert.Equal(t, "What equipment was mentioned?", mock.lastMessages[1].Content)
	assert.Equal(t, RoleAssistant, mock.lastMessages[2].Role)
}

func TestRAGAnswerStream(t *testing.T) {
	mock := &mockLLMClient{answer: "streamed answer text"}
	rag := NewRAG(mock)

	var deltas []string
	response, err := rag.AnswerStream(context.Background(), "question?", sampleChunks(), nil, func(delta string) error {
		deltas = append(deltas, delta)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "streamed answer text", response.Answer)
	assert.Equal(t, "streamed answer text", strings.Join(deltas, ""))
}

func TestRAGEmptyQuestion(t *testing.T) {
	rag := NewRAG(&mockLLMClient{answer: "x"})

	_, err := rag.Answer(context.Background(), "  ", nil)
	require.Error(t, err)

	var llmErr LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrCodeEmptyPrompt, llmErr.Code)
}

func TestRAGWithoutSources(t *testing.T) {
	mock := &mockLLMClient{answer: "answer"}
	rag := NewRAG(mock, WithSources(false))

	response, err := rag.Answer(context.Background(), "question?", sampleChunks())
	require.NoError(t, err)
	assert.Empty(t, response.Sources)
}

func TestFormatContext(t *testing.T) {
	formatted := formatContext(sampleChunks())
	assert.Contains(t, formatted, "[1] (meeting Bmr001)")
	assert.Contains(t, formatted, "[2] (meeting Bmr001)")
	assert.Contains(t, formatted, "[me011]: we should rerun")

	// 没有会议信息时只有序号
	plain := formatContext([]ContextChunk{{Text: "some text"}})
	assert.Contains(t, plain, "[1]\nsome text")
}
