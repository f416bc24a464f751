package prosody

import (
	"fmt"
	"strconv"
	"strings"
)

// ContourPoint 是音高曲线上的一个控制点：在话语的 Percent% 处偏移 Semitones 个半音。
type ContourPoint struct {
	Percent   int
	Semitones int
}

// String 按合成后端的 contour 语法输出，如 "(30%,+10st)"。
func (p ContourPoint) String() string {
	return fmt.Sprintf("(%d%%,%+dst)", p.Percent, p.Semitones)
}

// Profile 是一种风格对应的韵律参数。空字符串表示不输出该属性。
type Profile struct {
	Contour []ContourPoint
	Rate    string
	Volume  string
}

// ContourString 拼接所有控制点；无曲线时返回空字符串。
func (p Profile) ContourString() string {
	var b strings.Builder
	for _, pt := range p.Contour {
		b.WriteString(pt.String())
	}
	return b.String()
}

// RateMultiplier 返回数值语速，未设置时为 1.0。
// 供只接受 speed 参数的纯文本后端使用。
func (p Profile) RateMultiplier() float64 {
	if p.Rate == "" {
		return 1.0
	}
	v, err := strconv.ParseFloat(p.Rate, 64)
	if err != nil || v <= 0 {
		return 1.0
	}
	return v
}

// IsEmpty 表示该 profile 不携带任何属性（CUSTOM1）。
func (p Profile) IsEmpty() bool {
	return len(p.Contour) == 0 && p.Rate == "" && p.Volume == ""
}

// every10 以 10% 为步长生成 11 个控制点。
func every10(semitones ...int) []ContourPoint {
	pts := make([]ContourPoint, len(semitones))
	for i, st := range semitones {
		pts[i] = ContourPoint{Percent: i * 10, Semitones: st}
	}
	return pts
}

// profiles 在包初始化时构建一次，之后只读。
var profiles = map[Style]Profile{
	StyleStress: {
		Contour: every10(3, 3, 3, 10, 4, 4, 4, 9, 7, 10, 11),
		Rate:    "1.15",
	},
	StyleAnger: {
		Contour: every10(-2, -2, -2, -2, -2, -2, -3, -3, -3, -4, -4),
		Rate:    "0.82",
	},
	StyleConfusion: {
		Contour: every10(-1, -1, -1, -1, -1, -1, -2, 3, 3, 10, 6),
		Rate:    "0.85",
		Volume:  "0.0",
	},
	StyleCustom1: {},
}

// Resolve 返回风格对应的韵律参数；StyleNone（或未知值）返回 false。
// 返回值中的切片是副本，调用方修改不会影响表中数据。
func Resolve(style Style) (Profile, bool) {
	p, ok := profiles[style]
	if !ok {
		return Profile{}, false
	}
	if p.Contour != nil {
		p.Contour = append([]ContourPoint(nil), p.Contour...)
	}
	return p, true
}
