package markup

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Token 是文本中一个以空白分隔的词，Start/End 为字节偏移（左闭右开）。
type Token struct {
	Start      int
	End        int
	Emphasized bool
}

// DetectEmphasis 按空白切分文本，并标记需要重读的词：
// 词中至少含一个字母，且所有字母都是大写。
func DetectEmphasis(text string) []Token {
	var tokens []Token
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				tokens = append(tokens, newToken(text, start, i))
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, newToken(text, start, len(text)))
	}
	return tokens
}

func newToken(text string, start, end int) Token {
	return Token{Start: start, End: end, Emphasized: isAllUpper(text[start:end])}
}

func isAllUpper(word string) bool {
	letters := 0
	for _, r := range word {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return letters > 0
}

// Reassemble 用词的区间和原始词间空白还原文本。
func Reassemble(text string, tokens []Token) string {
	var b strings.Builder
	b.Grow(len(text))
	prev := 0
	for _, t := range tokens {
		b.WriteString(text[prev:t.Start])
		b.WriteString(text[t.Start:t.End])
		prev = t.End
	}
	b.WriteString(text[prev:])
	return b.String()
}

// terminalMarks 是可以结束一句话的标点。
const terminalMarks = ".,?!"

// Normalize 在句末缺少标点时补一个句号。
func Normalize(text string) string {
	if text == "" {
		return "."
	}
	last, _ := utf8.DecodeLastRuneInString(text)
	if strings.ContainsRune(terminalMarks, last) {
		return text
	}
	return text + "."
}
