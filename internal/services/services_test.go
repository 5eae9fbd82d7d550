package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fyerfyer/meeting-QA-system/internal/database"
	"github.com/fyerfyer/meeting-QA-system/internal/llm"
	"github.com/fyerfyer/meeting-QA-system/internal/models"
	"github.com/fyerfyer/meeting-QA-system/internal/repository"
	"github.com/fyerfyer/meeting-QA-system/internal/transcript"
	"github.com/fyerfyer/meeting-QA-system/internal/vectordb"
	"github.com/fyerfyer/meeting-QA-system/pkg/storage"
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
    <Segment StartTime="5.2" EndTime="9.9" Participant="me011" DigitTask="true">one two three four five</Segment>
  </Transcript>
</Meeting>`

// setupServiceDB 创建内存数据库并替换全局连接
func setupServiceDB(t *testing.T) *gorm.DB {
	dbName := fmt.Sprintf("file:services_%d?mode=memory", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{})
	require.NoError(t, err, "Failed to open in-memory database")

	err = db.AutoMigrate(
		&models.Transcript{},
		&models.TranscriptSegment{},
		&models.ChatSession{},
		&models.ChatMessage{},
	)
	require.NoError(t, err, "Failed to run migrations")

	originalDB := database.DB
	database.DB = db
	t.Cleanup(func() { database.DB = originalDB })

	return db
}

// mockEmbedder 返回固定单位向量的嵌入客户端
// 所有文本映射到同一个向量，检索相似度恒为1
type mockEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return []float32{1, 0, 0, 0}, nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vector, err := m.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		vectors[i] = vector
	}
	return vectors, nil
}

func (m *mockEmbedder) Name() string {
	return "mock-embedder"
}

// mockChatClient 返回固定回答的LLM客户端
type mockChatClient struct {
	mu           sync.Mutex
	answer       string
	calls        int
	lastMessages []llm.Message
}

func (m *mockChatClient) Generate(ctx context.Context, prompt string, options ...llm.GenerateOption) (*llm.Response, error) {
	return m.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
}

func (m *mockChatClient) Chat(ctx context.Context, messages []llm.Message, options ...llm.ChatOption) (*llm.Response, error) {
	m.mu.Lock()
	m.calls++
	m.lastMessages = messages
	m.mu.Unlock()
	return &llm.Response{Text: m.answer, ModelName: m.Name(), FinishTime: time.Now()}, nil
}

func (m *mockChatClient) ChatStream(ctx context.Context, messages []llm.Message, handler llm.StreamHandler, options ...llm.ChatOption) (*llm.Response, error) {
	m.mu.Lock()
	m.calls++
	m.lastMessages = messages
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

func (m *mockChatClient) Name() string {
	return "mock-llm"
}

// newTestVectorDB 创建测试用的内存向量库
func newTestVectorDB(t *testing.T) vectordb.Repository {
	repo, err := vectordb.NewRepository(vectordb.Config{
		Type:         "memory",
		Dimension:    4,
		DistanceType: vectordb.Cosine,
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

// newTestTranscriptService 组装一个完整的同步转写服务
func newTestTranscriptService(t *testing.T, opts ...TranscriptOption) (*TranscriptService, vectordb.Repository) {
	setupServiceDB(t)

	localStorage, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)

	vectorDB := newTestVectorDB(t)

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	repo := repository.NewTranscriptRepository()
	baseOpts := []TranscriptOption{
		WithLogger(logger),
		WithTranscriptRepository(repo),
		WithStatusManager(NewTranscriptStatusManager(repo, logger)),
	}

	service := NewTranscriptService(
		localStorage,
		transcript.NewParser(),
		transcript.NewSplitter(transcript.DefaultSplitterConfig()),
		&mockEmbedder{},
		vectorDB,
		append(baseOpts, opts...)...,
	)
	require.NoError(t, service.Init())

	return service, vectorDB
}
