package transcript

import (
	"regexp"
	"strings"
)

// 纯括号标注，如[laugh]、[door slam]
var bracketOnlyRe = regexp.MustCompile(`^\[[^\]]+\]$`)

// IsNoise 判断清洗后的文本是否为空或纯噪音
// 以下情况视为噪音：空文本、去除空白后不足2个字符、
// 整条内容只是一个括号标注（只有声音事件没有言语内容）
func IsNoise(text string) bool {
	if text == "" {
		return true
	}

	cleaned := strings.TrimSpace(text)
	if len(cleaned) < 2 {
		return true
	}

	return bracketOnlyRe.MatchString(cleaned)
}
