package transcript

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"
)

// 语料库加载的哨兵错误
var (
	// ErrDataDirNotFound 数据目录不存在
	ErrDataDirNotFound = errors.New("data directory not found")
	// ErrNoTranscriptFiles 数据目录中没有.mrt文件
	ErrNoTranscriptFiles = errors.New("no .mrt files found")
)

// ICSI语料库的下载地址，用于错误提示
const corpusDownloadURL = "https://groups.inf.ed.ac.uk/ami/icsi/download/"

// CorpusStats 语料库加载统计
type CorpusStats struct {
	FilesTotal        int            // 发现的.mrt文件数（不含preambles）
	FilesLoaded       int            // 成功解析的文件数
	TotalUtterances   int            // 总发言数（不含数字任务）
	Speakers          []string       // 所有说话人（去重后排序）
	MeetingTypeCounts map[string]int // 各会议类型的文件数
}

// Loader 语料库批量加载器
type Loader struct {
	parser *Parser
	logger *logrus.Logger
}

// NewLoader 创建语料库加载器
func NewLoader(parser *Parser, logger *logrus.Logger) *Loader {
	if parser == nil {
		parser = NewParser()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Loader{
		parser: parser,
		logger: logger,
	}
}

// LoadDir 加载目录下所有MRT转写文件
// 文件按名称排序处理，preambles.mrt（只含前导模板）被跳过。
// 单个文件解析失败只记录警告并继续，目录不存在或没有.mrt文件返回错误。
func (l *Loader) LoadDir(dir string) ([]*Document, *CorpusStats, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, nil, fmt.Errorf("%w: %s, please download the ICSI corpus and place .mrt files in the data directory", ErrDataDirNotFound, dir)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.mrt"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list transcript files: %w", err)
	}

	// preambles.mrt不是会议转写
	files := make([]string, 0, len(matches))
	for _, path := range matches {
		if fileStem(path) == "preambles" {
			continue
		}
		files = append(files, path)
	}

	if len(files) == 0 {
		return nil, nil, fmt.Errorf("%w in %s, please download the ICSI corpus from %s", ErrNoTranscriptFiles, dir, corpusDownloadURL)
	}

	sort.Strings(files)
	l.logger.WithField("count", len(files)).Info("Loading transcript files")

	stats := &CorpusStats{
		FilesTotal:        len(files),
		MeetingTypeCounts: make(map[string]int),
	}
	speakerSet := make(map[string]struct{})

	var documents []*Document
	for _, path := range files {
		doc, err := l.parser.ParseFile(path)
		if err != nil {
			// ParseFile已记录警告，继续处理其余文件
			continue
		}

		documents = append(documents, doc)
		stats.FilesLoaded++
		stats.TotalUtterances += len(doc.Utterances)
		for _, utt := range doc.Utterances {
			speakerSet[utt.Speaker] = struct{}{}
		}

		typeCode := ParseMeetingID(doc.MeetingID).Type
		if typeCode == "" {
			typeCode = "unknown"
		}
		stats.MeetingTypeCounts[typeCode]++
	}

	stats.Speakers = make([]string, 0, len(speakerSet))
	for s := range speakerSet {
		stats.Speakers = append(stats.Speakers, s)
	}
	sort.Strings(stats.Speakers)

	l.logger.WithFields(logrus.Fields{
		"loaded":     stats.FilesLoaded,
		"total":      stats.FilesTotal,
		"utterances": stats.TotalUtterances,
		"speakers":   len(stats.Speakers),
	}).Info("Transcript corpus loaded")

	return documents, stats, nil
}
