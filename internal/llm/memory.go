package llm

// DefaultMemoryTokenLimit 对话记忆默认的token上限
const DefaultMemoryTokenLimit = 3000

// MemoryBuffer 对话记忆缓冲
// 按token预算保留最近的对话消息
type MemoryBuffer struct {
	tokenLimit int
}

// NewMemoryBuffer 创建对话记忆缓冲
func NewMemoryBuffer(tokenLimit int) *MemoryBuffer {
	if tokenLimit <= 0 {
		tokenLimit = DefaultMemoryTokenLimit
	}
	return &MemoryBuffer{tokenLimit: tokenLimit}
}

// Trim 裁剪历史消息到token预算内
// 从最新的消息往前保留，超出预算的旧消息被丢弃
func (m *MemoryBuffer) Trim(messages []Message) []Message {
	if len(messages) == 0 {
		return messages
	}

	total := 0
	start := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		cost := EstimateTokens(messages[i].Content)
		if total+cost > m.tokenLimit {
			break
		}
		total += cost
		start = i
	}

	// 至少保留最新一条消息
	if start == len(messages) {
		start = len(messages) - 1
	}
	return messages[start:]
}

// EstimateTokens 粗略估算文本的token数
// 英文文本平均每个token约4个字符
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	tokens := len(text) / 4
	if tokens == 0 {
		tokens = 1
	}
	return tokens
}
