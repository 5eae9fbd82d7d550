package transcript

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitShortText(t *testing.T) {
	splitter := NewSplitter(DefaultSplitterConfig())

	chunks := splitter.Split("[me011]: Short meeting today.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "[me011]: Short meeting today.", chunks[0])

	assert.Nil(t, splitter.Split(""))
	assert.Nil(t, splitter.Split("   \n  "))
}

func TestSplitKeepsLinesIntact(t *testing.T) {
	var lines []string
	for i := 0; i < 40; i++ {
		lines = append(lines, fmt.Sprintf("[me%03d]: This is utterance number %d in the meeting.", i, i))
	}
	text := strings.Join(lines, "\n")

	splitter := NewSplitter(SplitterConfig{ChunkSize: 200, ChunkOverlap: 50})
	chunks := splitter.Split(text)
	require.Greater(t, len(chunks), 1)

	// 每一行都必须完整出现在某个块中
	lineSet := make(map[string]bool)
	for _, chunk := range chunks {
		for _, line := range strings.Split(chunk, "\n") {
			lineSet[line] = true
		}
	}
	for _, line := range lines {
		assert.True(t, lineSet[line], "line missing from chunks: %s", line)
	}
}

func TestSplitOverlap(t *testing.T) {
	lines := []string{
		"[me011]: " + strings.Repeat("a", 80),
		"[fn002]: short",
		"[me011]: " + strings.Repeat("b", 80),
	}
	text := strings.Join(lines, "\n")

	splitter := NewSplitter(SplitterConfig{ChunkSize: 100, ChunkOverlap: 20})
	chunks := splitter.Split(text)
	require.Len(t, chunks, 3)

	// 末块以上一块末尾的短行开头
	assert.True(t, strings.HasPrefix(chunks[2], "[fn002]: short"))
}

func TestSplitLongLineOwnChunk(t *testing.T) {
	long := "[me011]: " + strings.Repeat("x", 600)
	text := "[fn002]: hi\n" + long + "\n[fn002]: bye"

	splitter := NewSplitter(SplitterConfig{ChunkSize: 100, ChunkOverlap: 10})
	chunks := splitter.Split(text)

	found := false
	for _, chunk := range chunks {
		if chunk == long {
			found = true
		}
	}
	assert.True(t, found, "long line should form its own chunk")
}
