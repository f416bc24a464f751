package prosody

import "strings"

// Style 表示一种整句情绪风格。
type Style int

const (
	// StyleNone 不做任何韵律包装，走纯文本合成路径。
	StyleNone Style = iota
	// StyleStress 紧张、焦虑：语速加快，语调逐步升高。
	StyleStress
	// StyleConfusion 困惑：先降后升的疑问语调。
	StyleConfusion
	// StyleAnger 愤怒、沮丧：语速放慢，整体压低。
	StyleAnger
	// StyleCustom1 预留的自定义风格，当前不输出任何韵律属性。
	StyleCustom1
)

var styleNames = [...]string{
	StyleNone:      "NONE",
	StyleStress:    "STRESS",
	StyleConfusion: "CONFUSION",
	StyleAnger:     "ANGER",
	StyleCustom1:   "CUSTOM1",
}

func (s Style) String() string {
	if s >= 0 && int(s) < len(styleNames) {
		return styleNames[s]
	}
	return "UNKNOWN"
}

// Styles 按声明顺序返回全部风格。
func Styles() []Style {
	return []Style{StyleStress, StyleConfusion, StyleAnger, StyleCustom1, StyleNone}
}

// ParseStyle 不区分大小写地匹配风格名称。
// 无法识别时返回 (StyleNone, false)，调用方应保持原值不变。
func ParseStyle(name string) (Style, bool) {
	name = strings.TrimSpace(name)
	for _, s := range Styles() {
		if strings.EqualFold(s.String(), name) {
			return s, true
		}
	}
	return StyleNone, false
}
