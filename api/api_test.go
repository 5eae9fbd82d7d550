package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fyerfyer/meeting-QA-system/api/handler"
	"github.com/fyerfyer/meeting-QA-system/internal/cache"
	"github.com/fyerfyer/meeting-QA-system/internal/database"
	"github.com/fyerfyer/meeting-QA-system/internal/llm"
	"github.com/fyerfyer/meeting-QA-system/internal/models"
	"github.com/fyerfyer/meeting-QA-system/internal/repository"
	"github.com/fyerfyer/meeting-QA-system/internal/services"
	"github.com/fyerfyer/meeting-QA-system/internal/transcript"
	"github.com/fyerfyer/meeting-QA-system/internal/vectordb"
	"github.com/fyerfyer/meeting-QA-system/pkg/storage"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const sampleMRT = `<?xml version="1.0" encoding="UTF-8"?>
<Meeting Session="Bmr001" DateTimeStamp="2000-02-16-1430">
  <Preamble>
    <Notes>Project planning meeting.</Notes>
    <Participants>
      <Participant Name="me011" Channel="c0"/>
      <Participant Name="fn002" Channel="c1"/>
    </Participants>
  </Preamble>
  <Transcript>
    <Segment StartTime="0.5" EndTime="3.2" Participant="me011">So we should get started.</Segment>
    <Segment StartTime="3.5" EndTime="5.0" Participant="fn002">That sounds good to me.</Segment>
  </Transcript>
</Meeting>`

// testEnv 组装完整的API测试环境
type testEnv struct {
	router            *gin.Engine
	transcriptService *services.TranscriptService
	vectorDB          vectordb.Repository
	llmClient         *apiMockLLM
}

// apiMockEmbedder 返回固定单位向量的嵌入客户端
type apiMockEmbedder struct{}

func (m *apiMockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0, 0}, nil
}

func (m *apiMockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0, 0}
	}
	return vectors, nil
}

func (m *apiMockEmbedder) Name() string { return "mock-embedder" }

// apiMockLLM 返回固定回答的LLM客户端
type apiMockLLM struct {
	mu     sync.Mutex
	answer string
	calls  int
}

func (m *apiMockLLM) Generate(ctx context.Context, prompt string, options ...llm.GenerateOption) (*llm.Response, error) {
	return m.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
}

func (m *apiMockLLM) Chat(ctx context.Context, messages []llm.Message, options ...llm.ChatOption) (*llm.Response, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return &llm.Response{Text: m.answer, ModelName: m.Name(), FinishTime: time.Now()}, nil
}

func (m *apiMockLLM) ChatStream(ctx context.Context, messages []llm.Message, handler llm.StreamHandler, options ...llm.ChatOption) (*llm.Response, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	for _, delta := range strings.SplitAfter(m.answer, " ") {
		if delta == "" {
			continue
		}
		if err := handler(delta); err != nil {
			return nil, err
		}
	}
	return &llm.Response{Text: m.answer, ModelName: m.Name(), FinishTime: time.Now()}, nil
}

func (m *apiMockLLM) Name() string { return "mock-llm" }

// setupTestEnv 创建完整的测试环境：内存数据库、本地存储、内存向量库和路由
func setupTestEnv(t *testing.T) *testEnv {
	gin.SetMode(gin.TestMode)

	// 内存数据库
	dbName := fmt.Sprintf("file:api_%d?mode=memory", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{})
	require.NoError(t, err, "Failed to open in-memory database")
	require.NoError(t, db.AutoMigrate(
		&models.Transcript{},
		&models.TranscriptSegment{},
		&models.ChatSession{},
		&models.ChatMessage{},
	))

	originalDB := database.DB
	database.DB = db
	t.Cleanup(func() { database.DB = originalDB })

	// 本地存储和向量库
	localStorage, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)

	vectorDB, err := vectordb.NewRepository(vectordb.Config{
		Type:         "memory",
		Dimension:    4,
		DistanceType: vectordb.Cosine,
	})
	require.NoError(t, err)
	t.Cleanup(func() { vectorDB.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	// 转写服务
	embedder := &apiMockEmbedder{}
	transcriptRepo := repository.NewTranscriptRepository()
	transcriptService := services.NewTranscriptService(
		localStorage,
		transcript.NewParser(),
		transcript.NewSplitter(transcript.DefaultSplitterConfig()),
		embedder,
		vectorDB,
		services.WithLogger(logger),
		services.WithTranscriptRepository(transcriptRepo),
		services.WithStatusManager(services.NewTranscriptStatusManager(transcriptRepo, logger)),
	)
	require.NoError(t, transcriptService.Init())

	// 问答服务
	llmClient := &apiMockLLM{answer: "They discussed the project plan."}
	qaCache, err := cache.NewCache(cache.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { qaCache.Clear() })
	qaService := services.NewQAService(embedder, vectorDB, llmClient, llm.NewRAG(llmClient), qaCache)

	// 聊天服务
	chatService := services.NewChatService(repository.NewChatRepository(), services.WithChatLogger(logger))

	router := SetupRouter(
		handler.NewFileHandler(transcriptService),
		handler.NewQAHandler(qaService),
		handler.NewChatHandler(chatService, qaService),
		nil,
	)

	return &testEnv{
		router:            router,
		transcriptService: transcriptService,
		vectorDB:          vectorDB,
		llmClient:         llmClient,
	}
}

// doJSON 发送JSON请求并返回响应
func (e *testEnv) doJSON(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// doUpload 以multipart形式上传文件
func (e *testEnv) doUpload(t *testing.T, filename, content string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/files", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// envelope 通用响应信封
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// decodeEnvelope 解析响应信封并断言成功
func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), "response should be a valid envelope")
	require.Equal(t, 0, env.Code, "expected success envelope, got message: %s", env.Message)
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
}

// seedVectors 直接向向量库写入文本块，绕过完整的处理流水线
func (e *testEnv) seedVectors(t *testing.T, meetingID string, texts ...string) {
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
	require.NoError(t, e.vectorDB.AddBatch(chunks))
}

func TestHealthEndpoint(t *testing.T) {
	env := setupTestEnv(t)

	w := env.doJSON(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"ok"`)
}
