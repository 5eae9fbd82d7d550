package vectordb

import (
	"fmt"
	"runtime"
	"sync"
	"time"
)

// MemoryRepository 内存向量仓库实现
// 用于开发和测试环境的简单内存存储
type MemoryRepository struct {
	mu              sync.RWMutex
	dimension       int                 // 向量维度
	distType        DistanceType        // 距离计算类型
	chunks          map[string]Chunk    // 文本块存储，ID到块的映射
	transcriptToIDs map[string][]string // 转写文件ID到块ID的映射
	queryCache      *queryCache         // 查询结果缓存
}

// queryCache 查询结果缓存，带有效期
type queryCache struct {
	mu         sync.RWMutex
	results    map[string][]SearchResult
	createdAt  map[string]time.Time
	maxEntries int
	maxAge     time.Duration
}

// newQueryCache 创建查询结果缓存
func newQueryCache() *queryCache {
	return &queryCache{
		results:    make(map[string][]SearchResult),
		createdAt:  make(map[string]time.Time),
		maxEntries: 1000,
		maxAge:     10 * time.Minute,
	}
}

// cacheKey 为查询生成缓存键
// 使用向量前两个分量和过滤条件的摘要，碰撞只影响缓存命中率
func cacheKey(vector []float32, filter SearchFilter) string {
	key := fmt.Sprintf("v%d_%f_%f", len(vector), vector[0], vector[1])
	if len(filter.TranscriptIDs) > 0 {
		key += fmt.Sprintf("_t%d", len(filter.TranscriptIDs))
	}
	if len(filter.MeetingIDs) > 0 {
		key += fmt.Sprintf("_g%d", len(filter.MeetingIDs))
	}
	if filter.MeetingType != "" {
		key += "_mt" + filter.MeetingType
	}
	if len(filter.Metadata) > 0 {
		key += fmt.Sprintf("_m%d", len(filter.Metadata))
	}
	key += fmt.Sprintf("_r%d_s%f", filter.MaxResults, filter.MinScore)
	return key
}

// get 读取未过期的缓存结果
func (c *queryCache) get(key string) ([]SearchResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	results, ok := c.results[key]
	if !ok {
		return nil, false
	}

	age, ok := c.createdAt[key]
	if !ok || time.Since(age) > c.maxAge {
		return nil, false
	}

	// 返回副本，避免调用方修改缓存内容
	copied := make([]SearchResult, len(results))
	copy(copied, results)
	return copied, true
}

// put 写入缓存结果
func (c *queryCache) put(key string, results []SearchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// 超出容量时清理过期条目
	if len(c.results) >= c.maxEntries {
		now := time.Now()
		for k, age := range c.createdAt {
			if now.Sub(age) > c.maxAge {
				delete(c.results, k)
				delete(c.createdAt, k)
			}
		}
	}

	copied := make([]SearchResult, len(results))
	copy(copied, results)
	c.results[key] = copied
	c.createdAt[key] = time.Now()
}

// invalidate 清空缓存
// 数据变更后缓存结果不再可信
func (c *queryCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = make(map[string][]SearchResult)
	c.createdAt = make(map[string]time.Time)
}

// NewMemoryRepository 创建内存向量仓库
func NewMemoryRepository(config Config) (Repository, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}

	distType := config.DistanceType
	if distType != Cosine && distType != DotProduct && distType != Euclidean {
		distType = Cosine // 默认使用余弦距离
	}

	return &MemoryRepository{
		dimension:       config.Dimension,
		distType:        distType,
		chunks:          make(map[string]Chunk),
		transcriptToIDs: make(map[string][]string),
		queryCache:      newQueryCache(),
	}, nil
}

// Add 添加单个文本块到内存仓库
func (r *MemoryRepository) Add(chunk Chunk) error {
	if chunk.ID == "" {
		return ErrInvalidID
	}
	if err := ValidateVector(chunk.Vector, r.dimension); err != nil {
		return err
	}

	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = time.Now()
	}
	if chunk.Metadata == nil {
		chunk.Metadata = make(map[string]interface{})
	}

	// 余弦距离下先归一化，搜索时只需计算点积
	if r.distType == Cosine {
		chunk.Vector = normalizeVector(chunk.Vector)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.chunks[chunk.ID] = chunk
	r.transcriptToIDs[chunk.TranscriptID] = append(r.transcriptToIDs[chunk.TranscriptID], chunk.ID)
	r.queryCache.invalidate()

	return nil
}

// AddBatch 批量添加文本块到内存仓库
func (r *MemoryRepository) AddBatch(chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range chunks {
		chunk := &chunks[i]

		if chunk.ID == "" {
			return ErrInvalidID
		}
		if err := ValidateVector(chunk.Vector, r.dimension); err != nil {
			return fmt.Errorf("invalid vector for chunk %s: %v", chunk.ID, err)
		}

		if chunk.CreatedAt.IsZero() {
			chunk.CreatedAt = time.Now()
		}
		if chunk.Metadata == nil {
			chunk.Metadata = make(map[string]interface{})
		}

		if r.distType == Cosine {
			chunk.Vector = normalizeVector(chunk.Vector)
		}

		r.chunks[chunk.ID] = *chunk
		r.transcriptToIDs[chunk.TranscriptID] = append(r.transcriptToIDs[chunk.TranscriptID], chunk.ID)
	}

	r.queryCache.invalidate()
	return nil
}

// Get 获取单个文本块
func (r *MemoryRepository) Get(id string) (Chunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chunk, exists := r.chunks[id]
	if !exists {
		return Chunk{}, ErrChunkNotFound
	}

	return chunk, nil
}

// Delete 删除单个文本块
func (r *MemoryRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	chunk, exists := r.chunks[id]
	if !exists {
		return ErrChunkNotFound
	}

	delete(r.chunks, id)

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

	r.queryCache.invalidate()
	return nil
}

// DeleteByTranscriptID 删除指定转写文件的所有文本块
func (r *MemoryRepository) DeleteByTranscriptID(transcriptID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids, exists := r.transcriptToIDs[transcriptID]
	if !exists {
		return nil
	}

	for _, id := range ids {
		delete(r.chunks, id)
	}
	delete(r.transcriptToIDs, transcriptID)

	r.queryCache.invalidate()
	return nil
}

// Search 相似度搜索
func (r *MemoryRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}

	if r.distType == Cosine {
		vector = normalizeVector(vector)
	}

	key := cacheKey(vector, filter)
	if cached, found := r.queryCache.get(key); found {
		return cached, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	// 指定了转写文件ID时直接走索引，避免全量扫描
	var candidates []Chunk
	if len(filter.TranscriptIDs) > 0 {
		for _, transcriptID := range filter.TranscriptIDs {
			for _, id := range r.transcriptToIDs[transcriptID] {
				chunk, exists := r.chunks[id]
				if exists && matchFilter(chunk, filter) {
					candidates = append(candidates, chunk)
				}
			}
		}
	} else {
		candidates = make([]Chunk, 0, len(r.chunks))
		for _, chunk := range r.chunks {
			if matchFilter(chunk, filter) {
				candidates = append(candidates, chunk)
			}
		}
	}

	if len(candidates) == 0 {
		return []SearchResult{}, nil
	}

	// 小量数据串行计算，大量数据分片并行
	threads := runtime.NumCPU() * 4 / 5
	if threads < 1 {
		threads = 1
	}

	var results []SearchResult
	var err error
	if len(candidates) < 100 || threads == 1 {
		results, err = r.scoreChunks(vector, candidates, filter)
	} else {
		results, err = r.scoreChunksParallel(vector, candidates, filter, threads)
	}
	if err != nil {
		return nil, err
	}

	SortSearchResults(results)
	if filter.MaxResults > 0 && len(results) > filter.MaxResults {
		results = results[:filter.MaxResults]
	}

	r.queryCache.put(key, results)
	return results, nil
}

// scoreChunks 串行计算候选块的相似度
func (r *MemoryRepository) scoreChunks(vector []float32, chunks []Chunk, filter SearchFilter) ([]SearchResult, error) {
	results := make([]SearchResult, 0, len(chunks))

	for _, chunk := range chunks {
		dist, err := ComputeDistance(vector, chunk.Vector, r.distType)
		if err != nil {
			return nil, fmt.Errorf("error computing distance: %v", err)
		}

		score := DistanceToScore(dist, r.distType)
		if score >= filter.MinScore {
			results = append(results, SearchResult{
				Chunk:    chunk,
				Score:    score,
				Distance: dist,
			})
		}
	}

	return results, nil
}

// scoreChunksParallel 并行计算候选块的相似度
func (r *MemoryRepository) scoreChunksParallel(vector []float32, chunks []Chunk, filter SearchFilter, threads int) ([]SearchResult, error) {
	perThread := (len(chunks) + threads - 1) / threads

	resultsChan := make(chan []SearchResult, threads)
	errorsChan := make(chan error, threads)
	workers := 0

	for i := 0; i < threads; i++ {
		start := i * perThread
		end := start + perThread
		if end > len(chunks) {
			end = len(chunks)
		}
		if start >= end {
			continue
		}
		workers++

		go func(part []Chunk) {
			partResults, err := r.scoreChunks(vector, part, filter)
			if err != nil {
				errorsChan <- err
				return
			}
			resultsChan <- partResults
		}(chunks[start:end])
	}

	var allResults []SearchResult
	for i := 0; i < workers; i++ {
		select {
		case err := <-errorsChan:
			return nil, err
		case part := <-resultsChan:
			allResults = append(allResults, part...)
		}
	}

	return allResults, nil
}

// Count 获取文本块总数
func (r *MemoryRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.chunks), nil
}

// Close 关闭数据库连接
// 对于内存实现这是一个空操作
func (r *MemoryRepository) Close() error {
	return nil
}

// GetDimension 返回向量维数
func (r *MemoryRepository) GetDimension() int {
	return r.dimension
}

// 在包初始化时注册内存仓库
func init() {
	RegisterRepository("memory", NewMemoryRepository)
}
