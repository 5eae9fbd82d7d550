package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/fyerfyer/meeting-QA-system/internal/cache"
	"github.com/fyerfyer/meeting-QA-system/internal/llm"
	"github.com/fyerfyer/meeting-QA-system/internal/vectordb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestQAService 组装问答服务及其依赖
func newTestQAService(t *testing.T, opts ...QAOption) (*QAService, *mockChatClient, vectordb.Repository) {
	vectorDB := newTestVectorDB(t)

	qaCache, err := cache.NewCache(cache.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { qaCache.Clear() })

	llmClient := &mockChatClient{answer: "They discussed digit recognition results."}
	rag := llm.NewRAG(llmClient)

	service := NewQAService(&mockEmbedder{}, vectorDB, llmClient, rag, qaCache, opts...)
	return service, llmClient, vectorDB
}

// seedChunks 向向量库写入测试文本块
func seedChunks(t *testing.T, vectorDB vectordb.Repository, meetingID string, texts ...string) {
	chunks := make([]vectordb.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = vectordb.Chunk{
			ID:           fmt.Sprintf("%s_%d", meetingID, i),
			TranscriptID: "trans-" + meetingID,
			MeetingID:    meetingID,
			FileName:     meetingID + ".mrt",
			Position:     i,
			Text:         text,
			Vector:       []float32{1, 0, 0, 0},
			CreatedAt:    time.Now(),
			Metadata: map[string]interface{}{
				"meeting_id":   meetingID,
				"meeting_type": meetingID[1:3],
			},
		}
	}
	require.NoError(t, vectorDB.AddBatch(chunks))
}

func TestQAService_Answer(t *testing.T) {
	service, llmClient, vectorDB := newTestQAService(t)
	ctx := context.Background()

	seedChunks(t, vectorDB, "Bmr001",
		"[me011]: The digit recognition error rate went down.",
		"[fn002]: We should rerun the experiment next week.")

	answer, sources, err := service.Answer(ctx, "What did they discuss?")
	require.NoError(t, err)
	assert.Equal(t, "They discussed digit recognition results.", answer)
	require.NotEmpty(t, sources)
	assert.Equal(t, "Bmr001", sources[0].MeetingID)

	// 提示词包含检索到的会议内容
	require.NotEmpty(t, llmClient.lastMessages)
	prompt := llmClient.lastMessages[len(llmClient.lastMessages)-1].Content
	assert.Contains(t, prompt, "digit recognition")
	assert.Contains(t, prompt, "meeting Bmr001")
}

func TestQAService_AnswerUsesCache(t *testing.T) {
	service, llmClient, vectorDB := newTestQAService(t)
	ctx := context.Background()

	seedChunks(t, vectorDB, "Bmr001", "[me011]: Let's review the agenda.")

	first, _, err := service.Answer(ctx, "What was on the agenda?")
	require.NoError(t, err)

	// 第二次回答命中缓存，不再调用LLM
	second, sources, err := service.Answer(ctx, "What was on the agenda?")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.NotEmpty(t, sources)
	assert.Equal(t, 1, llmClient.calls)

	// 大小写和首尾空白不影响缓存命中
	third, _, err := service.Answer(ctx, "  WHAT WAS ON THE AGENDA?  ")
	require.NoError(t, err)
	assert.Equal(t, first, third)
	assert.Equal(t, 1, llmClient.calls)
}

func TestQAService_AnswerWithoutRelevantChunks(t *testing.T) {
	service, llmClient, _ := newTestQAService(t)
	ctx := context.Background()

	// 向量库为空时返回固定回答
	answer, sources, err := service.Answer(ctx, "What did they discuss?")
	require.NoError(t, err)
	assert.Equal(t, NoAnswerMessage, answer)
	assert.Empty(t, sources)
	assert.Equal(t, 0, llmClient.calls)
}

func TestQAService_AnswerRejectsEmptyQuestion(t *testing.T) {
	service, _, _ := newTestQAService(t)

	_, _, err := service.Answer(context.Background(), "")
	assert.Error(t, err)
}

func TestQAService_AnswerWithMeeting(t *testing.T) {
	service, _, vectorDB := newTestQAService(t)
	ctx := context.Background()

	seedChunks(t, vectorDB, "Bmr001", "[me011]: Recognition results look promising.")
	seedChunks(t, vectorDB, "Bed010", "[mn015]: The hardware setup needs changes.")

	_, sources, err := service.AnswerWithMeeting(ctx, "What happened?", "Bed010")
	require.NoError(t, err)
	require.NotEmpty(t, sources)
	for _, source := range sources {
		assert.Equal(t, "Bed010", source.MeetingID)
	}

	_, _, err = service.AnswerWithMeeting(ctx, "What happened?", "")
	assert.Error(t, err)
}

func TestQAService_AnswerWithMeetingType(t *testing.T) {
	service, _, vectorDB := newTestQAService(t)
	ctx := context.Background()

	seedChunks(t, vectorDB, "Bmr001", "[me011]: Recognition results look promising.")
	seedChunks(t, vectorDB, "Bro021", "[fe016]: Robustness tests are scheduled.")

	_, sources, err := service.AnswerWithMeetingType(ctx, "What happened?", "ro")
	require.NoError(t, err)
	require.NotEmpty(t, sources)
	for _, source := range sources {
		assert.Equal(t, "Bro021", source.MeetingID)
	}
}

func TestQAService_AnswerWithTranscript(t *testing.T) {
	service, _, vectorDB := newTestQAService(t)
	ctx := context.Background()

	seedChunks(t, vectorDB, "Bmr001", "[me011]: Recognition results look promising.")
	seedChunks(t, vectorDB, "Bmr002", "[fn002]: The next meeting is on Friday.")

	_, sources, err := service.AnswerWithTranscript(ctx, "When is the next meeting?", "trans-Bmr002")
	require.NoError(t, err)
	require.NotEmpty(t, sources)
	for _, source := range sources {
		assert.Equal(t, "trans-Bmr002", source.TranscriptID)
	}
}

func TestQAService_AnswerWithHistory(t *testing.T) {
	service, llmClient, vectorDB := newTestQAService(t)
	ctx := context.Background()

	seedChunks(t, vectorDB, "Bmr001", "[me011]: The error rate dropped to five percent.")

	history := []llm.Message{
		{Role: llm.RoleUser, Content: "What did they measure?"},
		{Role: llm.RoleAssistant, Content: "They measured the digit recognition error rate."},
	}

	answer, sources, err := service.AnswerWithHistory(ctx, "And what was the result?", vectordb.SearchFilter{}, history)
	require.NoError(t, err)
	assert.NotEmpty(t, answer)
	assert.NotEmpty(t, sources)

	// 消息序列包含系统提示、历史和当前问题
	require.Len(t, llmClient.lastMessages, 4)
	assert.Equal(t, llm.RoleSystem, llmClient.lastMessages[0].Role)
	assert.Equal(t, "What did they measure?", llmClient.lastMessages[1].Content)
}

func TestQAService_AnswerStream(t *testing.T) {
	service, _, vectorDB := newTestQAService(t)
	ctx := context.Background()

	seedChunks(t, vectorDB, "Bmr001", "[me011]: The error rate dropped to five percent.")

	var deltas []string
	answer, sources, err := service.AnswerStream(ctx, "What was the result?", vectordb.SearchFilter{}, nil, func(delta string) error {
		deltas = append(deltas, delta)
		return nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, sources)
	assert.Equal(t, answer, strings.Join(deltas, ""))
}

func TestQAService_AnswerStreamWithoutChunks(t *testing.T) {
	service, _, _ := newTestQAService(t)
	ctx := context.Background()

	var streamed string
	answer, sources, err := service.AnswerStream(ctx, "What was the result?", vectordb.SearchFilter{}, nil, func(delta string) error {
		streamed += delta
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, NoAnswerMessage, answer)
	assert.Equal(t, NoAnswerMessage, streamed)
	assert.Empty(t, sources)
}
