package transcript

import (
	"fmt"
	"sort"
	"strings"
)

// Utterance 会议转写中的单条发言
type Utterance struct {
	Speaker   string   // 说话人ID，如me011
	Text      string   // 清洗后的发言文本
	StartTime *float64 // 开始时间（秒），属性缺失时为nil
	EndTime   *float64 // 结束时间（秒），属性缺失时为nil
}

// Document 一份完整会议转写解析出的文档
// Text为全文（逐行[speaker]: text格式），Metadata为会议级元数据
type Document struct {
	MeetingID  string                 // 会议ID（文件名主干，如Bmr001）
	Text       string                 // 格式化后的全文
	Utterances []Utterance            // 保留的发言列表（不含数字任务）
	Metadata   map[string]interface{} // 会议元数据
}

// FormatUtterances 将发言列表格式化为全文
// 每条发言一行，格式为"[speaker]: text"
func FormatUtterances(utterances []Utterance) string {
	lines := make([]string, 0, len(utterances))
	for _, utt := range utterances {
		lines = append(lines, fmt.Sprintf("[%s]: %s", utt.Speaker, utt.Text))
	}
	return strings.Join(lines, "\n")
}

// buildMetadata 构建会议级元数据
// 键名与取值规则固定，时间相关键只在对应时间信息存在时写入
func buildMetadata(meetingID, session, source, dateTime, notes string, notesMaxLength int, participants map[string]string, utterances []Utterance) map[string]interface{} {
	typeCode := ParseMeetingID(meetingID).Type

	speakerSet := make(map[string]struct{})
	for _, utt := range utterances {
		speakerSet[utt.Speaker] = struct{}{}
	}
	speakers := make([]string, 0, len(speakerSet))
	for s := range speakerSet {
		speakers = append(speakers, s)
	}
	sort.Strings(speakers)

	metadata := map[string]interface{}{
		"meeting_id":               meetingID,
		"session":                  session,
		"source":                   source,
		"num_utterances":           len(utterances),
		"speakers":                 speakers,
		"num_speakers":             len(speakers),
		"meeting_type":             typeCode,
		"meeting_type_description": MeetingTypeDescription(typeCode),
	}

	if dateTime != "" {
		metadata["date_time"] = dateTime
	}
	if notes != "" {
		metadata["notes"] = truncateRunes(notes, notesMaxLength)
	}
	if len(participants) > 0 {
		metadata["participants"] = participants
	}

	var startTimes, endTimes []float64
	for _, utt := range utterances {
		if utt.StartTime != nil {
			startTimes = append(startTimes, *utt.StartTime)
		}
		if utt.EndTime != nil {
			endTimes = append(endTimes, *utt.EndTime)
		}
	}
	if len(startTimes) > 0 {
		metadata["start_time"] = minFloat(startTimes)
	}
	if len(endTimes) > 0 {
		metadata["end_time"] = maxFloat(endTimes)
	}
	if len(startTimes) > 0 && len(endTimes) > 0 {
		duration := maxFloat(endTimes) - minFloat(startTimes)
		if duration != 0 {
			metadata["duration_seconds"] = duration
		}
	}

	return metadata
}

// truncateRunes 按字符数截断字符串
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func minFloat(values []float64) float64 {
	min := values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

func maxFloat(values []float64) float64 {
	max := values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
	}
	return max
}
