package api

import (
	"net/http"
	"testing"

	"github.com/fyerfyer/meeting-QA-system/api/model"
	"github.com/fyerfyer/meeting-QA-system/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQAEndpoint(t *testing.T) {
	env := setupTestEnv(t)
	env.seedVectors(t, "Bmr001",
		"[me011]: So we should get started.",
		"[fn002]: That sounds good to me.")

	w := env.doJSON(t, http.MethodPost, "/api/qa", map[string]interface{}{
		"question": "What did they discuss?",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp model.QAResponse
	decodeEnvelope(t, w, &resp)
	assert.Equal(t, "What did they discuss?", resp.Question)
	assert.Equal(t, "They discussed the project plan.", resp.Answer)
	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "Bmr001", resp.Sources[0].MeetingID)
}

func TestQAEndpointWithMeetingFilter(t *testing.T) {
	env := setupTestEnv(t)
	env.seedVectors(t, "Bmr001", "[me011]: Recognition results look promising.")
	env.seedVectors(t, "Bed010", "[mn015]: The hardware setup needs changes.")

	w := env.doJSON(t, http.MethodPost, "/api/qa", map[string]interface{}{
		"question":   "What happened?",
		"meeting_id": "Bed010",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp model.QAResponse
	decodeEnvelope(t, w, &resp)
	require.NotEmpty(t, resp.Sources)
	for _, source := range resp.Sources {
		assert.Equal(t, "Bed010", source.MeetingID)
	}
}

func TestQAEndpointWithMeetingTypeFilter(t *testing.T) {
	env := setupTestEnv(t)
	env.seedVectors(t, "Bmr001", "[me011]: Recognition results look promising.")
	env.seedVectors(t, "Bro021", "[fe016]: Robustness tests are scheduled.")

	w := env.doJSON(t, http.MethodPost, "/api/qa", map[string]interface{}{
		"question":     "What happened?",
		"meeting_type": "ro",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp model.QAResponse
	decodeEnvelope(t, w, &resp)
	require.NotEmpty(t, resp.Sources)
	for _, source := range resp.Sources {
		assert.Equal(t, "Bro021", source.MeetingID)
	}
}

func TestQAEndpointWithoutRelevantContent(t *testing.T) {
	env := setupTestEnv(t)

	// 向量库为空时返回固定回答
	w := env.doJSON(t, http.MethodPost, "/api/qa", map[string]interface{}{
		"question": "What did they discuss?",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp model.QAResponse
	decodeEnvelope(t, w, &resp)
	assert.Equal(t, services.NoAnswerMessage, resp.Answer)
	assert.Empty(t, resp.Sources)
}

func TestQAEndpointValidation(t *testing.T) {
	env := setupTestEnv(t)

	// 缺少问题字段
	w := env.doJSON(t, http.MethodPost, "/api/qa", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 会议ID格式不合法
	w = env.doJSON(t, http.MethodPost, "/api/qa", map[string]interface{}{
		"question":   "What happened?",
		"meeting_id": "x",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 会议类型必须是两个字母
	w = env.doJSON(t, http.MethodPost, "/api/qa", map[string]interface{}{
		"question":     "What happened?",
		"meeting_type": "meeting",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
