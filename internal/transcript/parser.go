package transcript

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// 解析过程中的哨兵错误
var (
	// ErrNoTranscript 文件中没有Transcript元素
	ErrNoTranscript = errors.New("no transcript element found")
	// ErrNoUtterances 过滤后没有剩余发言
	ErrNoUtterances = errors.New("no utterances found after filtering")
)

// DefaultNotesMaxLength 会议备注在元数据中的默认最大长度
const DefaultNotesMaxLength = 500

// mrtMeeting MRT文件的根元素
type mrtMeeting struct {
	XMLName       xml.Name       `xml:"Meeting"`
	Session       string         `xml:"Session,attr"`
	DateTimeStamp string         `xml:"DateTimeStamp,attr"`
	Preamble      *mrtPreamble   `xml:"Preamble"`
	Transcript    *mrtTranscript `xml:"Transcript"`
}

// mrtPreamble 会议前导信息：备注和参会者列表
type mrtPreamble struct {
	Notes        string           `xml:"Notes"`
	Participants []mrtParticipant `xml:"Participants>Participant"`
}

// mrtParticipant 参会者信息
type mrtParticipant struct {
	Name    string `xml:"Name,attr"`
	Channel string `xml:"Channel,attr"`
}

// mrtTranscript 转写正文
type mrtTranscript struct {
	Segments []mrtSegment `xml:"Segment"`
}

// mrtSegment 单个转写片段
// Inner保留片段内的原始标注，交给CleanText处理
type mrtSegment struct {
	StartTime   string `xml:"StartTime,attr"`
	EndTime     string `xml:"EndTime,attr"`
	Participant string `xml:"Participant,attr"`
	DigitTask   string `xml:"DigitTask,attr"`
	Inner       string `xml:",innerxml"`
}

// Parser MRT转写文件解析器
type Parser struct {
	notesMaxLength int
	logger         *logrus.Logger
}

// ParserOption 解析器配置选项
type ParserOption func(*Parser)

// WithNotesMaxLength 设置会议备注的最大长度
func WithNotesMaxLength(length int) ParserOption {
	return func(p *Parser) {
		p.notesMaxLength = length
	}
}

// WithLogger 设置解析器使用的日志记录器
func WithLogger(logger *logrus.Logger) ParserOption {
	return func(p *Parser) {
		p.logger = logger
	}
}

// NewParser 创建MRT解析器
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{
		notesMaxLength: DefaultNotesMaxLength,
		logger:         logrus.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse 解析单份MRT转写内容
// meetingID为会议ID（通常是文件名主干），source记录到元数据的来源标识。
// 数字任务片段被排除，噪音发言被丢弃。
// 没有Transcript元素返回ErrNoTranscript，过滤后没有发言返回ErrNoUtterances。
func (p *Parser) Parse(r io.Reader, meetingID string, source string) (*Document, error) {
	var meeting mrtMeeting
	decoder := xml.NewDecoder(r)
	if err := decoder.Decode(&meeting); err != nil {
		return nil, fmt.Errorf("failed to parse transcript xml: %w", err)
	}

	session := meeting.Session
	if session == "" {
		session = meetingID
	}

	// 提取前导信息
	notes := ""
	participants := make(map[string]string)
	if meeting.Preamble != nil {
		notes = strings.TrimSpace(meeting.Preamble.Notes)
		for _, part := range meeting.Preamble.Participants {
			if part.Name != "" {
				participants[part.Name] = part.Channel
			}
		}
	}

	if meeting.Transcript == nil {
		return nil, ErrNoTranscript
	}

	var utterances []Utterance
	for _, seg := range meeting.Transcript.Segments {
		// 数字任务片段不属于会话内容
		if seg.DigitTask == "true" {
			continue
		}

		cleaned := CleanText(seg.Inner)
		if cleaned == "" || IsNoise(cleaned) {
			continue
		}

		speaker := seg.Participant
		if speaker == "" {
			speaker = "Unknown"
		}

		startTime, err := parseTimeAttr(seg.StartTime)
		if err != nil {
			return nil, fmt.Errorf("invalid StartTime attribute %q: %v", seg.StartTime, err)
		}
		endTime, err := parseTimeAttr(seg.EndTime)
		if err != nil {
			return nil, fmt.Errorf("invalid EndTime attribute %q: %v", seg.EndTime, err)
		}

		utterances = append(utterances, Utterance{
			Speaker:   speaker,
			Text:      cleaned,
			StartTime: startTime,
			EndTime:   endTime,
		})
	}

	if len(utterances) == 0 {
		return nil, ErrNoUtterances
	}

	return &Document{
		MeetingID:  meetingID,
		Text:       FormatUtterances(utterances),
		Utterances: utterances,
		Metadata:   buildMetadata(meetingID, session, source, meeting.DateTimeStamp, notes, p.notesMaxLength, participants, utterances),
	}, nil
}

// ParseFile 解析单个MRT文件
// 会议ID取文件名主干。解析失败时记录警告日志并返回错误，
// 由批量加载方决定是否继续处理其余文件。
func (p *Parser) ParseFile(path string) (*Document, error) {
	file, err := os.Open(path)
	if err != nil {
		p.logger.WithError(err).WithField("file", path).Warn("Failed to open transcript file")
		return nil, fmt.Errorf("failed to open transcript file: %w", err)
	}
	defer file.Close()

	meetingID := fileStem(path)
	doc, err := p.Parse(file, meetingID, path)
	if err != nil {
		p.logger.WithError(err).WithField("file", path).Warn("Failed to parse transcript file")
		return nil, err
	}
	return doc, nil
}

// parseTimeAttr 解析时间属性，空属性返回nil
func parseTimeAttr(value string) (*float64, error) {
	if value == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// fileStem 获取不含扩展名的文件名
func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
