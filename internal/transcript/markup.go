package transcript

import (
	"html"
	"regexp"
	"strings"
)

// MRT标注清洗规则使用的正则表达式
// 规则顺序即应用顺序，调整顺序会改变清洗结果
var (
	// 声音事件：保留描述作为上下文线索
	vocalSoundRe    = regexp.MustCompile(`<VocalSound\s+Description="([^"]+)"\s*/>`)
	nonVocalSoundRe = regexp.MustCompile(`<NonVocalSound\s+Description="([^"]+)"\s*/>`)

	// 停顿转为省略号
	pauseRe = regexp.MustCompile(`<Pause\s*/>`)

	// 强调：只保留词本身
	emphasisRe = regexp.MustCompile(`<Emphasis>\s*([^<]+)\s*</Emphasis>`)

	// 不确定转写：@@表示完全听不清，先于通用规则匹配
	uncertainUnintelligibleRe = regexp.MustCompile(`<Uncertain[^>]*>\s*@@\s*</Uncertain>`)
	uncertainRe               = regexp.MustCompile(`<Uncertain>\s*([^<]+)\s*</Uncertain>`)

	// 外语和发音标注：保留内容
	foreignRe   = regexp.MustCompile(`<Foreign[^>]*>\s*([^<]+)\s*</Foreign>`)
	pronounceRe = regexp.MustCompile(`<Pronounce[^>]*>\s*([^<]+)\s*</Pronounce>`)

	// 转写员注释：整体移除
	commentRe = regexp.MustCompile(`<Comment\s+Description="([^"]+)"\s*/>`)

	// 残余XML标签
	tagRe = regexp.MustCompile(`<[^>]+>`)

	// 下划线缩写记法：O_K -> OK，P_D_A -> PDA
	okRe                 = regexp.MustCompile(`\bO_K\b`)
	threeLetterAcronymRe = regexp.MustCompile(`(\w)_(\w)_(\w)\b`)
	twoLetterAcronymRe   = regexp.MustCompile(`(\w)_(\w)\b`)

	// 空白归一化
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// CleanText 清洗MRT片段文本
// 按转写规范(trans_guide.txt)将XML标注转为可读形式：
// 声音事件保留为[描述]，停顿转为省略号，不确定转写加(?)标记，
// 其余标签移除，缩写下划线记法合并，空白归一化。
// 对已清洗文本再次调用不改变结果。
func CleanText(text string) string {
	if text == "" {
		return ""
	}

	// 先解码XML实体，innerxml中的实体仍是编码形式
	text = html.UnescapeString(text)

	text = vocalSoundRe.ReplaceAllString(text, "[$1]")
	text = nonVocalSoundRe.ReplaceAllString(text, "[$1]")
	text = pauseRe.ReplaceAllString(text, "...")
	text = emphasisRe.ReplaceAllString(text, "$1")
	text = uncertainUnintelligibleRe.ReplaceAllString(text, "(unintelligible)")
	text = uncertainRe.ReplaceAllString(text, "($1?)")
	text = foreignRe.ReplaceAllString(text, "$1")
	text = pronounceRe.ReplaceAllString(text, "$1")
	text = commentRe.ReplaceAllString(text, "")
	text = tagRe.ReplaceAllString(text, "")

	text = okRe.ReplaceAllString(text, "OK")
	text = threeLetterAcronymRe.ReplaceAllString(text, "$1$2$3")
	text = twoLetterAcronymRe.ReplaceAllString(text, "$1$2")

	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
