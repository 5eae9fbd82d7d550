package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/fyerfyer/meeting-QA-system/api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatCreatesSessionAndAnswers(t *testing.T) {
	env := setupTestEnv(t)
	env.seedVectors(t, "Bmr001", "[me011]: So we should get started.")

	// 不带会话ID时自动创建新会话
	w := env.doJSON(t, http.MethodPost, "/api/chat", map[string]interface{}{
		"question": "What did they discuss?",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp model.ChatResponse
	decodeEnvelope(t, w, &resp)
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, "They discussed the project plan.", resp.Answer)
	assert.NotEmpty(t, resp.Sources)

	// 历史里保存了用户消息和助手回复
	hw := env.doJSON(t, http.MethodGet, "/api/chat/sessions/"+resp.SessionID, nil)
	require.Equal(t, http.StatusOK, hw.Code)

	var history model.ChatHistoryResponse
	decodeEnvelope(t, hw, &history)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, "user", history.Messages[0].Role)
	assert.Equal(t, "What did they discuss?", history.Messages[0].Content)
	assert.Equal(t, "assistant", history.Messages[1].Role)
	assert.NotEmpty(t, history.Messages[1].Sources)
}

func TestChatContinuesExistingSession(t *testing.T) {
	env := setupTestEnv(t)
	env.seedVectors(t, "Bmr001", "[me011]: So we should get started.")

	var created model.CreateChatResponse
	cw := env.doJSON(t, http.MethodPost, "/api/chat/sessions", map[string]interface{}{
		"title": "Planning questions",
	})
	require.Equal(t, http.StatusOK, cw.Code)
	decodeEnvelope(t, cw, &created)

	for i := 0; i < 2; i++ {
		w := env.doJSON(t, http.MethodPost, "/api/chat", map[string]interface{}{
			"session_id": created.ChatID,
			"question":   "What did they discuss?",
		})
		require.Equal(t, http.StatusOK, w.Code)

		var resp model.ChatResponse
		decodeEnvelope(t, w, &resp)
		assert.Equal(t, created.ChatID, resp.SessionID)
	}

	hw := env.doJSON(t, http.MethodGet, "/api/chat/sessions/"+created.ChatID, nil)
	var history model.ChatHistoryResponse
	decodeEnvelope(t, hw, &history)
	assert.Len(t, history.Messages, 4)
}

func TestChatRejectsUnknownSession(t *testing.T) {
	env := setupTestEnv(t)

	w := env.doJSON(t, http.MethodPost, "/api/chat", map[string]interface{}{
		"session_id": "no-such-session",
		"question":   "What did they discuss?",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChatStreaming(t *testing.T) {
	env := setupTestEnv(t)
	env.seedVectors(t, "Bmr001", "[me011]: So we should get started.")

	w := env.doJSON(t, http.MethodPost, "/api/chat", map[string]interface{}{
		"question": "What did they discuss?",
		"stream":   true,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")

	body := w.Body.String()
	// 流中包含会话事件、增量消息和结束事件
	assert.Contains(t, body, "event:session")
	assert.Contains(t, body, "event:message")
	assert.Contains(t, body, "event:sources")
	assert.Contains(t, body, "event:done")

	// 增量片段拼起来是完整回答
	var pieces []string
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "data:") && !strings.HasPrefix(line, "data:{") && !strings.HasPrefix(line, "data:[") {
			pieces = append(pieces, strings.TrimPrefix(line, "data:"))
		}
	}
	assert.Equal(t, "They discussed the project plan.", strings.Join(pieces, ""))
}

func TestChatSessionCRUD(t *testing.T) {
	env := setupTestEnv(t)

	// 创建
	var created model.CreateChatResponse
	cw := env.doJSON(t, http.MethodPost, "/api/chat/sessions", map[string]interface{}{
		"title": "Weekly sync",
	})
	require.Equal(t, http.StatusOK, cw.Code)
	decodeEnvelope(t, cw, &created)
	assert.Equal(t, "Weekly sync", created.Title)

	// 列表
	var list model.ChatListResponse
	lw := env.doJSON(t, http.MethodGet, "/api/chat/sessions", nil)
	require.Equal(t, http.StatusOK, lw.Code)
	decodeEnvelope(t, lw, &list)
	assert.Equal(t, int64(1), list.Total)
	require.Len(t, list.Chats, 1)
	assert.Equal(t, created.ChatID, list.Chats[0].ID)

	// 重命名
	var renamed model.RenameChatResponse
	rw := env.doJSON(t, http.MethodPatch, "/api/chat/sessions/"+created.ChatID, map[string]interface{}{
		"title": "Planning sync",
	})
	require.Equal(t, http.StatusOK, rw.Code)
	decodeEnvelope(t, rw, &renamed)
	assert.True(t, renamed.Success)
	assert.Equal(t, "Planning sync", renamed.Title)

	// 删除
	var deleted model.DeleteChatResponse
	dw := env.doJSON(t, http.MethodDelete, "/api/chat/sessions/"+created.ChatID, nil)
	require.Equal(t, http.StatusOK, dw.Code)
	decodeEnvelope(t, dw, &deleted)
	assert.True(t, deleted.Success)

	// 删除后无法再获取
	hw := env.doJSON(t, http.MethodGet, "/api/chat/sessions/"+created.ChatID, nil)
	assert.Equal(t, http.StatusNotFound, hw.Code)
}

func TestChatValidation(t *testing.T) {
	env := setupTestEnv(t)

	// 缺少问题
	w := env.doJSON(t, http.MethodPost, "/api/chat", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
