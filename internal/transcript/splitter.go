package transcript

import "strings"

// SplitterConfig 文本分块配置
type SplitterConfig struct {
	ChunkSize    int // 每块的最大字符数
	ChunkOverlap int // 相邻块之间的重叠字符数
}

// DefaultSplitterConfig 返回默认分块配置
func DefaultSplitterConfig() SplitterConfig {
	return SplitterConfig{
		ChunkSize:    512,
		ChunkOverlap: 50,
	}
}

// Splitter 转写文本分块器
// 以发言行为最小单位分块，不会把一条发言拆到两个块中
type Splitter struct {
	config SplitterConfig
}

// NewSplitter 创建分块器
func NewSplitter(config SplitterConfig) *Splitter {
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultSplitterConfig().ChunkSize
	}
	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = DefaultSplitterConfig().ChunkOverlap
	}
	return &Splitter{config: config}
}

// Split 将转写全文分块
// 按行累积到ChunkSize后切分，新块以上一块末尾不超过ChunkOverlap的行开头。
// 单行超过ChunkSize时独立成块。
func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	lines := strings.Split(text, "\n")
	var chunks []string
	var current []string
	currentLen := 0
	newLines := 0 // 当前块中非重叠行的数量

	flush := func() {
		chunks = append(chunks, strings.Join(current, "\n"))

		// 取末尾若干行作为下一块的重叠部分
		var overlap []string
		overlapLen := 0
		for i := len(current) - 1; i >= 0; i-- {
			lineLen := len([]rune(current[i]))
			if overlapLen+lineLen > s.config.ChunkOverlap {
				break
			}
			overlap = append([]string{current[i]}, overlap...)
			overlapLen += lineLen
		}
		current = overlap
		currentLen = overlapLen
		newLines = 0
	}

	for _, line := range lines {
		lineLen := len([]rune(line))
		if newLines > 0 && currentLen+lineLen > s.config.ChunkSize {
			flush()
		}
		current = append(current, line)
		currentLen += lineLen
		newLines++
	}

	if newLines > 0 {
		chunks = append(chunks, strings.Join(current, "\n"))
	}

	return chunks
}
