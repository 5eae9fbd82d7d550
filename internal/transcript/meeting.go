package transcript

// MeetingTypes 会议类型代码到描述的映射
// 代码来自ICSI语料库的命名规范(naming.txt)
var MeetingTypes = map[string]string{
	"db": "Database issues meeting",
	"ed": "Even Deeper Understanding (NLP/AI) weekly meeting",
	"mr": "Meeting Recorder weekly meeting",
	"ns": "Network Services and Applications group meeting",
	"ro": "Robustness (signal processing) weekly meeting",
	"sr": "SRI collaboration meeting",
	"tr": "Meeting Recorder transcriber's meeting",
	"uw": "UW collaboration meeting",
}

// UnknownMeetingType 未知会议类型的默认描述
const UnknownMeetingType = "Unknown meeting type"

// MeetingTypeDescription 根据类型代码获取会议类型描述
func MeetingTypeDescription(code string) string {
	if desc, ok := MeetingTypes[code]; ok {
		return desc
	}
	return UnknownMeetingType
}

// MeetingID 会议ID的组成部分
// 格式为Xyz###：X为地点代码(B=Berkeley/ICSI)，yz为会议类型代码，###为会议编号
type MeetingID struct {
	Location string // 地点代码
	Type     string // 会议类型代码
	Number   string // 会议编号
}

// ParseMeetingID 解析会议ID
// 例如 Bmr001 -> {Location: "B", Type: "mr", Number: "001"}
// ID长度不足6时返回零值，不报错
func ParseMeetingID(id string) MeetingID {
	if len(id) < 6 {
		return MeetingID{}
	}
	return MeetingID{
		Location: id[0:1],
		Type:     id[1:3],
		Number:   id[3:],
	}
}

// 说话人性别代码映射
var genderMap = map[byte]string{
	'm': "male",
	'f': "female",
	'u': "unknown",
	'x': "computer",
}

// SpeakerID 说话人ID的组成部分
// 格式为XY###：X为性别代码(m/f/u/x)，Y为母语标记(e/n)，###为编号
type SpeakerID struct {
	Raw           string // 原始ID
	Gender        string // 性别：male/female/unknown/computer
	NativeEnglish bool   // 是否以英语为母语
	Number        string // 说话人编号
}

// ParseSpeakerID 解析说话人ID
// 例如 me011 -> {Gender: "male", NativeEnglish: true, Number: "011"}
// ID长度不足5时只填充Raw字段
func ParseSpeakerID(id string) SpeakerID {
	info := SpeakerID{Raw: id}
	if len(id) < 5 {
		return info
	}

	gender, ok := genderMap[id[0]]
	if !ok {
		gender = "unknown"
	}
	info.Gender = gender
	info.NativeEnglish = id[1] == 'e'
	info.Number = id[2:]
	return info
}
