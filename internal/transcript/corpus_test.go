package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeMeetingFile 在目录下写入一份最小可用的MRT文件
func writeMeetingFile(t *testing.T, dir, meetingID, speaker string) string {
	t.Helper()
	content := fmt.Sprintf(`<Meeting Session="%s">
  <Transcript>
    <Segment StartTime="1.0" EndTime="4.0" Participant="%s">Let us talk about the %s meeting.</Segment>
    <Segment StartTime="4.5" EndTime="6.0" Participant="%s">Sure, go ahead with it.</Segment>
  </Transcript>
</Meeting>`, meetingID, speaker, meetingID, speaker)

	path := filepath.Join(dir, meetingID+".mrt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeMeetingFile(t, dir, "Bmr001", "me011")
	writeMeetingFile(t, dir, "Bed002", "fn002")
	writeMeetingFile(t, dir, "Bro003", "me013")

	// preambles.mrt和无法解析的文件不产生文档
	require.NoError(t, os.WriteFile(filepath.Join(dir, "preambles.mrt"), []byte("<Preambles/>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.mrt"), []byte("not xml"), 0644))

	loader := NewLoader(NewParser(), nil)
	docs, stats, err := loader.LoadDir(dir)
	require.NoError(t, err)

	require.Len(t, docs, 3)
	// 排序后的文件顺序决定文档顺序
	assert.Equal(t, "Bed002", docs[0].MeetingID)
	assert.Equal(t, "Bmr001", docs[1].MeetingID)
	assert.Equal(t, "Bro003", docs[2].MeetingID)

	assert.Equal(t, 4, stats.FilesTotal) // broken.mrt算在内，preambles.mrt不算
	assert.Equal(t, 3, stats.FilesLoaded)
	assert.Equal(t, 6, stats.TotalUtterances)
	assert.Equal(t, []string{"fn002", "me011", "me013"}, stats.Speakers)
	assert.Equal(t, map[string]int{"mr": 1, "ed": 1, "ro": 1}, stats.MeetingTypeCounts)
}

func TestLoadDirMissing(t *testing.T) {
	loader := NewLoader(nil, nil)
	_, _, err := loader.LoadDir(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.ErrorIs(t, err, ErrDataDirNotFound)
}

func TestLoadDirNoFiles(t *testing.T) {
	dir := t.TempDir()
	// 只有preambles.mrt也视为没有转写文件
	require.NoError(t, os.WriteFile(filepath.Join(dir, "preambles.mrt"), []byte("<Preambles/>"), 0644))

	loader := NewLoader(nil, nil)
	_, _, err := loader.LoadDir(dir)
	assert.ErrorIs(t, err, ErrNoTranscriptFiles)
	assert.Contains(t, err.Error(), "groups.inf.ed.ac.uk")
}
