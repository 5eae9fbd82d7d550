package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/gammazero/workerpool"
)

// BatchProcessor 批处理器
// 将大量转写文本块分批并行嵌入，结果与输入顺序一致
type BatchProcessor struct {
	client     Client // 嵌入客户端
	batchSize  int    // 每批处理的文本数量
	maxWorkers int    // 最大并行工作线程数
}

// NewBatchProcessor 创建新的批处理器
func NewBatchProcessor(client Client, batchSize int, maxWorkers int) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = 16
	}
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	return &BatchProcessor{
		client:     client,
		batchSize:  batchSize,
		maxWorkers: maxWorkers,
	}
}

// Process 嵌入一组文本
// 空文本在结果中以nil占位，非空文本分批提交到工作池并行处理
func (p *BatchProcessor) Process(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	// 过滤空文本，记录原始位置
	nonEmpty := make([]string, 0, len(texts))
	positions := make([]int, 0, len(texts))
	for i, text := range texts {
		if text != "" {
			nonEmpty = append(nonEmpty, text)
			positions = append(positions, i)
		}
	}

	results := make([][]float32, len(texts))
	if len(nonEmpty) == 0 {
		return results, nil
	}

	batches := splitIntoBatches(nonEmpty, p.batchSize)

	wp := workerpool.New(p.maxWorkers)
	batchVectors := make([][][]float32, len(batches))
	var mu sync.Mutex
	var processErr error

	for i, batch := range batches {
		i, batch := i, batch
		wp.Submit(func() {
			select {
			case <-ctx.Done():
				mu.Lock()
				if processErr == nil {
					processErr = ctx.Err()
				}
				mu.Unlock()
				return
			default:
			}

			vectors, err := p.client.EmbedBatch(ctx, batch)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if processErr == nil {
					processErr = fmt.Errorf("batch %d processing error: %v", i, err)
				}
				return
			}
			batchVectors[i] = vectors
		})
	}

	wp.StopWait()

	if processErr != nil {
		return nil, processErr
	}

	// 按批次顺序回填到原始位置
	index := 0
	for _, vectors := range batchVectors {
		for _, vector := range vectors {
			if index >= len(positions) {
				return nil, fmt.Errorf("embedding client returned more vectors than inputs")
			}
			results[positions[index]] = vector
			index++
		}
	}
	if index != len(positions) {
		return nil, fmt.Errorf("embedding client returned %d vectors for %d inputs", index, len(positions))
	}

	return results, nil
}

// splitIntoBatches 将文本列表分割成多个批次
func splitIntoBatches(texts []string, batchSize int) [][]string {
	if batchSize <= 0 {
		batchSize = 1
	}

	batches := make([][]string, 0, (len(texts)+batchSize-1)/batchSize)
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[i:end])
	}
	return batches
}
