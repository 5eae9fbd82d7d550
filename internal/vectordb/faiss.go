package vectordb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/DataIntelligenceCrew/go-faiss"
)

// FaissRepository 基于Faiss的向量仓库实现
// 支持索引和元数据的磁盘持久化
type FaissRepository struct {
	mu              sync.RWMutex
	index           faiss.Index
	chunks          map[string]Chunk
	transcriptToIDs map[string][]string
	idToPosition    map[string]int
	positionToID    map[int]string
	indexPath       string
	metaPath        string
	dimension       int
	distType        DistanceType
	saveOnClose     bool
	autoSave        bool
	autoSaveCount   int
	operationCount  int
}

// faissMetadata 随索引文件一起持久化的元数据
type faissMetadata struct {
	Chunks          map[string]Chunk    `json:"chunks"`
	TranscriptToIDs map[string][]string `json:"transcript_to_ids"`
	IDToPosition    map[string]int      `json:"id_to_position"`
	OperationCount  int                 `json:"operation_count"`
}

// NewFaissRepository 创建新的Faiss向量仓库
func NewFaissRepository(config Config) (Repository, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}

	if config.Path != "" && !config.InMemory {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %v", err)
		}
	}

	distType := config.DistanceType
	if distType == "" {
		distType = Cosine
	}

	indexPath := config.Path
	metaPath := ""
	if indexPath != "" {
		metaPath = indexPath + ".meta.json"
	}

	repo := &FaissRepository{
		chunks:          make(map[string]Chunk),
		transcriptToIDs: make(map[string][]string),
		idToPosition:    make(map[string]int),
		positionToID:    make(map[int]string),
		indexPath:       indexPath,
		metaPath:        metaPath,
		dimension:       config.Dimension,
		distType:        distType,
		saveOnClose:     true,
		autoSave:        true,
		autoSaveCount:   100,
	}

	var index faiss.Index
	var err error

	// 尝试从文件加载已有索引
	if indexPath != "" && !config.InMemory && fileExists(indexPath) {
		index, err = faiss.ReadIndex(indexPath, 0)
		if err != nil {
			if config.CreateIfNotExists {
				index, err = createFaissIndex(config.Dimension, distType)
				if err != nil {
					return nil, fmt.Errorf("failed to create Faiss index: %v", err)
				}
			} else {
				return nil, fmt.Errorf("failed to read index file: %v", err)
			}
		} else {
			if err := repo.loadMetadata(metaPath); err != nil {
				return nil, fmt.Errorf("failed to load chunk metadata: %v", err)
			}
		}
	} else {
		index, err = createFaissIndex(config.Dimension, distType)
		if err != nil {
			return nil, fmt.Errorf("failed to create Faiss index: %v", err)
		}
	}

	repo.index = index
	return repo, nil
}

// createFaissIndex 创建Faiss索引
func createFaissIndex(dimension int, distType DistanceType) (faiss.Index, error) {
	var metric int
	switch distType {
	case Cosine, DotProduct:
		metric = faiss.MetricInnerProduct
	case Euclidean:
		metric = faiss.MetricL2
	default:
		metric = faiss.MetricL2
	}
	return faiss.NewIndexFlat(dimension, metric)
}

// Add 添加单个文本块到仓库
func (r *FaissRepository) Add(chunk Chunk) error {
	if chunk.ID == "" {
		return ErrInvalidID
	}
	if err := ValidateVector(chunk.Vector, r.dimension); err != nil {
		return err
	}
	if r.distType == Cosine {
		chunk.Vector = normalizeVector(chunk.Vector)
	}
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = time.Now()
	}
	if chunk.Metadata == nil {
		chunk.Metadata = make(map[string]interface{})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	nextPos := int(r.index.Ntotal())
	if err := r.index.Add(chunk.Vector); err != nil {
		return fmt.Errorf("failed to add vector to index: %v", err)
	}

	r.chunks[chunk.ID] = chunk
	r.idToPosition[chunk.ID] = nextPos
	r.positionToID[nextPos] = chunk.ID
	r.transcriptToIDs[chunk.TranscriptID] = append(r.transcriptToIDs[chunk.TranscriptID], chunk.ID)
	r.operationCount++

	if r.autoSave && r.operationCount >= r.autoSaveCount {
		if err := r.saveIndex(); err != nil {
			return fmt.Errorf("auto-save failed: %v", err)
		}
		r.operationCount = 0
	}
	return nil
}

// AddBatch 批量添加文本块到仓库
func (r *FaissRepository) AddBatch(chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for i := range chunks {
		if chunks[i].ID == "" {
			return ErrInvalidID
		}
		if err := ValidateVector(chunks[i].Vector, r.dimension); err != nil {
			return fmt.Errorf("invalid vector for chunk %s: %v", chunks[i].ID, err)
		}
		if r.distType == Cosine {
			chunks[i].Vector = normalizeVector(chunks[i].Vector)
		}
		if chunks[i].CreatedAt.IsZero() {
			chunks[i].CreatedAt = time.Now()
		}
		if chunks[i].Metadata == nil {
			chunks[i].Metadata = make(map[string]interface{})
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	startPos := int(r.index.Ntotal())
	for _, chunk := range chunks {
		if err := r.index.Add(chunk.Vector); err != nil {
			return fmt.Errorf("failed to add vector to index: %v", err)
		}
	}

	for i, chunk := range chunks {
		position := startPos + i
		r.chunks[chunk.ID] = chunk
		r.idToPosition[chunk.ID] = position
		r.positionToID[position] = chunk.ID
		r.transcriptToIDs[chunk.TranscriptID] = append(r.transcriptToIDs[chunk.TranscriptID], chunk.ID)
	}
	r.operationCount += len(chunks)

	if r.autoSave && r.operationCount >= r.autoSaveCount {
		if err := r.saveIndex(); err != nil {
			return fmt.Errorf("auto-save failed: %v", err)
		}
		r.operationCount = 0
	}
	return nil
}

// Get 获取单个文本块
func (r *FaissRepository) Get(id string) (Chunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chunk, exists := r.chunks[id]
	if !exists {
		return Chunk{}, ErrChunkNotFound
	}
	return chunk, nil
}

// Delete 删除单个文本块
// Faiss平坦索引不支持删除向量，只移除元数据，搜索时跳过已删除的位置
func (r *FaissRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	chunk, exists := r.chunks[id]
	if !exists {
		return ErrChunkNotFound
	}

	if pos, ok := r.idToPosition[id]; ok {
		delete(r.positionToID, pos)
	}
	delete(r.chunks, id)
	delete(r.idToPosition, id)

	if ids, ok := r.transcriptToIDs[chunk.TranscriptID]; ok {
		updated := make([]string, 0, len(ids)-1)
		for _, chunkID := range ids {
			if chunkID != id {
				updated = append(updated, chunkID)
			}
		}
		if len(updated) == 0 {
			delete(r.transcriptToIDs, chunk.TranscriptID)
		} else {
			r.transcriptToIDs[chunk.TranscriptID] = updated
		}
	}

	r.operationCount++
	return nil
}

// DeleteByTranscriptID 删除指定转写文件的所有文本块
func (r *FaissRepository) DeleteByTranscriptID(transcriptID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids, exists := r.transcriptToIDs[transcriptID]
	if !exists {
		return nil
	}

	for _, id := range ids {
		if pos, ok := r.idToPosition[id]; ok {
			delete(r.positionToID, pos)
		}
		delete(r.chunks, id)
		delete(r.idToPosition, id)
	}
	delete(r.transcriptToIDs, transcriptID)

	r.operationCount += len(ids)
	return nil
}

// Search 相似度搜索
func (r *FaissRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}
	if r.distType == Cosine {
		vector = normalizeVector(vector)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.chunks) == 0 {
		return []SearchResult{}, nil
	}

	k := filter.MaxResults
	if k <= 0 {
		k = 10
	}

	// 过滤会丢弃一部分命中，多查一些补偿
	queryLimit := k * 2
	total := int(r.index.Ntotal())
	if queryLimit > total {
		queryLimit = total
	}
	if queryLimit == 0 {
		return []SearchResult{}, nil
	}

	distances, indices, err := r.index.Search(vector, int64(queryLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %v", err)
	}

	var results []SearchResult
	for i := 0; i < len(indices); i++ {
		idx := indices[i]
		if idx < 0 {
			continue
		}

		id, found := r.positionToID[int(idx)]
		if !found {
			continue
		}
		chunk, exists := r.chunks[id]
		if !exists {
			continue
		}
		if !matchFilter(chunk, filter) {
			continue
		}

		dist := distances[i]
		score := faissScore(dist, r.distType)
		if score < filter.MinScore {
			continue
		}

		results = append(results, SearchResult{
			Chunk:    chunk,
			Score:    score,
			Distance: dist,
		})
		if len(results) >= k {
			break
		}
	}

	SortSearchResults(results)
	return results, nil
}

// faissScore 将Faiss返回的原始距离转换为评分
// 内积度量下Faiss直接返回点积，与ComputeDistance的余弦距离约定不同
func faissScore(raw float32, distType DistanceType) float32 {
	switch distType {
	case Cosine:
		// 向量已归一化，内积即余弦相似度
		if raw > 1 {
			raw = 1
		}
		return raw
	case DotProduct:
		return (raw + 1) / 2
	default:
		return DistanceToScore(raw, distType)
	}
}

// Count 获取文本块总数
func (r *FaissRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chunks), nil
}

// GetDimension 返回向量维数
func (r *FaissRepository) GetDimension() int {
	return r.dimension
}

// Close 关闭仓库
func (r *FaissRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.saveOnClose && r.indexPath != "" {
		if err := r.saveIndex(); err != nil {
			return fmt.Errorf("failed to save index on close: %v", err)
		}
	}
	return nil
}

// saveIndex 保存索引和元数据到文件
func (r *FaissRepository) saveIndex() error {
	if r.indexPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(r.indexPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %v", err)
	}
	if err := faiss.WriteIndex(r.index, r.indexPath); err != nil {
		return fmt.Errorf("failed to write index to file: %v", err)
	}
	return r.saveMetadata()
}

// saveMetadata 保存文本块元数据到文件
func (r *FaissRepository) saveMetadata() error {
	if r.metaPath == "" {
		return nil
	}

	metadata := faissMetadata{
		Chunks:          r.chunks,
		TranscriptToIDs: r.transcriptToIDs,
		IDToPosition:    r.idToPosition,
		OperationCount:  r.operationCount,
	}
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %v", err)
	}
	if err := os.WriteFile(r.metaPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %v", err)
	}
	return nil
}

// loadMetadata 从文件加载文本块元数据
func (r *FaissRepository) loadMetadata(path string) error {
	if path == "" || !fileExists(path) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read metadata file: %v", err)
	}

	var metadata faissMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return fmt.Errorf("failed to unmarshal metadata: %v", err)
	}

	if metadata.Chunks != nil {
		r.chunks = metadata.Chunks
	}
	if metadata.TranscriptToIDs != nil {
		r.transcriptToIDs = metadata.TranscriptToIDs
	}
	if metadata.IDToPosition != nil {
		r.idToPosition = metadata.IDToPosition
		for id, pos := range metadata.IDToPosition {
			r.positionToID[pos] = id
		}
	}
	r.operationCount = metadata.OperationCount
	return nil
}

// fileExists 检查文件是否存在
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

func init() {
	RegisterRepository("faiss", NewFaissRepository)
}
