package vectordb

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestChunk 创建用于测试的文本块
func newTestChunk(id, transcriptID, meetingID string, position int, vector []float32) Chunk {
	return Chunk{
		ID:           id,
		TranscriptID: transcriptID,
		MeetingID:    meetingID,
		FileName:     meetingID + ".mrt",
		Position:     position,
		Text:         fmt.Sprintf("[me011]: chunk %s of %s", id, meetingID),
		Vector:       vector,
		Metadata: map[string]interface{}{
			"meeting_type": meetingID[1:3],
		},
		CreatedAt: time.Now(),
	}
}

// TestMemoryRepository 测试内存向量仓库
func TestMemoryRepository(t *testing.T) {
	config := Config{
		Type:         "memory",
		Dimension:    4,
		DistanceType: Cosine,
	}

	repo, err := NewRepository(config)
	require.NoError(t, err)
	defer repo.Close()

	testRepository(t, repo)
}

// TestFaissRepository 测试Faiss向量仓库
func TestFaissRepository(t *testing.T) {
	indexPath := filepath.Join(t.TempDir(), "test_index")

	config := Config{
		Type:              "faiss",
		Path:              indexPath,
		Dimension:         4,
		DistanceType:      Cosine,
		CreateIfNotExists: true,
	}

	repo, err := NewRepository(config)
	require.NoError(t, err)
	defer repo.Close()

	testRepository(t, repo)
}

// testRepository 对仓库接口实现运行统一的测试集
func testRepository(t *testing.T, repo Repository) {
	assert.Equal(t, 4, repo.GetDimension())

	// 添加单个文本块
	chunk1 := newTestChunk("chunk-1", "trans-1", "Bmr001", 0, []float32{1, 0, 0, 0})
	require.NoError(t, repo.Add(chunk1))

	got, err := repo.Get("chunk-1")
	require.NoError(t, err)
	assert.Equal(t, "trans-1", got.TranscriptID)
	assert.Equal(t, "Bmr001", got.MeetingID)

	// 空ID和维度不匹配都应失败
	assert.Error(t, repo.Add(newTestChunk("", "trans-1", "Bmr001", 1, []float32{1, 0, 0, 0})))
	assert.Error(t, repo.Add(newTestChunk("bad-dim", "trans-1", "Bmr001", 1, []float32{1, 0})))

	// 批量添加
	batch := []Chunk{
		newTestChunk("chunk-2", "trans-1", "Bmr001", 1, []float32{0.9, 0.1, 0, 0}),
		newTestChunk("chunk-3", "trans-2", "Bed004", 0, []float32{0, 1, 0, 0}),
		newTestChunk("chunk-4", "trans-2", "Bed004", 1, []float32{0, 0, 1, 0}),
	}
	require.NoError(t, repo.AddBatch(batch))

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	// 无过滤搜索，最相似的在前
	results, err := repo.Search([]float32{1, 0, 0, 0}, SearchFilter{MaxResults: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "chunk-1", results[0].Chunk.ID)
	assert.Equal(t, "chunk-2", results[1].Chunk.ID)
	assert.True(t, results[0].Score >= results[1].Score)

	// 按转写文件ID过滤
	results, err = repo.Search([]float32{1, 0, 0, 0}, SearchFilter{
		TranscriptIDs: []string{"trans-2"},
		MaxResults:    10,
	})
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, "trans-2", r.Chunk.TranscriptID)
	}

	// 按会议类型过滤，类型取会议ID第2-3位
	results, err = repo.Search([]float32{0, 1, 0, 0}, SearchFilter{
		MeetingType: "ed",
		MaxResults:  10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, "Bed004", r.Chunk.MeetingID)
	}

	// 最小分数过滤掉不相关的块
	results, err = repo.Search([]float32{1, 0, 0, 0}, SearchFilter{
		MinScore:   0.8,
		MaxResults: 10,
	})
	require.NoError(t, err)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, float32(0.8))
	}

	// 删除单个块
	require.NoError(t, repo.Delete("chunk-1"))
	_, err = repo.Get("chunk-1")
	assert.ErrorIs(t, err, ErrChunkNotFound)
	assert.ErrorIs(t, repo.Delete("chunk-1"), ErrChunkNotFound)

	// 删除整个转写文件的块
	require.NoError(t, repo.DeleteByTranscriptID("trans-2"))
	count, err = repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = repo.Get("chunk-3")
	assert.ErrorIs(t, err, ErrChunkNotFound)
}

// TestNewRepositoryDefaultsToMemory 未注册的类型回退到内存实现
func TestNewRepositoryDefaultsToMemory(t *testing.T) {
	repo, err := NewRepository(Config{Type: "unknown", Dimension: 4})
	require.NoError(t, err)
	defer repo.Close()

	_, ok := repo.(*MemoryRepository)
	assert.True(t, ok)
}

func TestComputeDistance(t *testing.T) {
	v1 := []float32{1, 0, 0, 0}
	v2 := []float32{0, 1, 0, 0}

	cos, err := ComputeDistance(v1, v1, Cosine)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, cos, 1e-6, "identical vectors have zero cosine distance")

	cos, err = ComputeDistance(v1, v2, Cosine)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, cos, 1e-6, "orthogonal vectors have cosine distance 1")

	l2, err := ComputeDistance(v1, v2, Euclidean)
	require.NoError(t, err)
	assert.InDelta(t, 1.4142, l2, 1e-3)

	_, err = ComputeDistance(v1, []float32{1, 0}, Cosine)
	assert.Error(t, err, "dimension mismatch should fail")
}

func TestMatchFilter(t *testing.T) {
	chunk := newTestChunk("chunk-f", "trans-9", "Bro021", 0, []float32{1, 0, 0, 0})

	assert.True(t, matchFilter(chunk, SearchFilter{}))
	assert.True(t, matchFilter(chunk, SearchFilter{TranscriptIDs: []string{"trans-9"}}))
	assert.False(t, matchFilter(chunk, SearchFilter{TranscriptIDs: []string{"other"}}))
	assert.True(t, matchFilter(chunk, SearchFilter{MeetingIDs: []string{"Bro021"}}))
	assert.False(t, matchFilter(chunk, SearchFilter{MeetingIDs: []string{"Bmr001"}}))
	assert.True(t, matchFilter(chunk, SearchFilter{MeetingType: "ro"}))
	assert.False(t, matchFilter(chunk, SearchFilter{MeetingType: "mr"}))
	assert.True(t, matchFilter(chunk, SearchFilter{Metadata: map[string]interface{}{"meeting_type": "ro"}}))
	assert.False(t, matchFilter(chunk, SearchFilter{Metadata: map[string]interface{}{"meeting_type": "mr"}}))
}

func TestSortSearchResults(t *testing.T) {
	results := []SearchResult{
		{Score: 0.2},
		{Score: 0.9},
		{Score: 0.5},
	}
	SortSearchResults(results)
	assert.Equal(t, float32(0.9), results[0].Score)
	assert.Equal(t, float32(0.5), results[1].Score)
	assert.Equal(t, float32(0.2), results[2].Score)
}
