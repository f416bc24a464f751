package markup

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/iabetor/emotts/internal/prosody"
)

// Dialect 是合成后端接受的标记语言。
type Dialect int

const (
	// DialectSSML 输出 W3C SSML <speak> 文档。
	DialectSSML Dialect = iota
	// DialectMaryXML 输出 MARY 的 RAWMARYXML <maryxml> 文档。
	DialectMaryXML
)

func (d Dialect) String() string {
	switch d {
	case DialectSSML:
		return "SSML"
	case DialectMaryXML:
		return "MARYXML"
	}
	return "UNKNOWN"
}

// ParseDialect 不区分大小写地解析方言名，接受 "ssml"、"maryxml"、"rawmaryxml"。
func ParseDialect(name string) (Dialect, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ssml":
		return DialectSSML, true
	case "maryxml", "rawmaryxml":
		return DialectMaryXML, true
	}
	return DialectSSML, false
}

// InputKind 告诉后端如何解释 Document.Markup。
type InputKind int

const (
	KindText InputKind = iota
	KindSSML
	KindRawMaryXML
)

// MaryType 返回 MARY 服务 INPUT_TYPE 参数的取值。
func (k InputKind) MaryType() string {
	switch k {
	case KindSSML:
		return "SSML"
	case KindRawMaryXML:
		return "RAWMARYXML"
	}
	return "TEXT"
}

func (k InputKind) String() string { return k.MaryType() }

// IsMarkup 表示输入是结构化标记而非纯文本。
func (k InputKind) IsMarkup() bool { return k != KindText }

// Document 是编译结果。Text 为规范化后的原始话语，供只接受纯文本的后端使用。
type Document struct {
	Markup string
	Kind   InputKind
	Text   string
}

// ErrEmptyText 表示话语为空或只有空白。
var ErrEmptyText = errors.New("话语为空")

// CompilationError 表示构建或序列化标记文档失败，只影响当前请求。
type CompilationError struct {
	Dialect Dialect
	Err     error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("[markup] 编译 %s 文档失败: %v", e.Dialect, e.Err)
}

func (e *CompilationError) Unwrap() error { return e.Err }

const (
	xsiNamespace  = "http://www.w3.org/2001/XMLSchema-instance"
	ssmlNamespace = "http://www.w3.org/2001/10/synthesis"
	ssmlSchema    = "http://www.w3.org/2001/10/synthesis http://www.w3.org/TR/speech-synthesis/synthesis.xsd"
	maryNamespace = "http://mary.dfki.de/2002/MaryXML"
	documentLang  = "en-US"
)

// Compile 将话语编译为指定方言的标记文档：
// 规范化句末标点，全大写词包进 <emphasis level="strong">，
// 风格有对应韵律参数时再整体包进 <prosody>。
func Compile(text string, style prosody.Style, dialect Dialect) (*Document, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &CompilationError{Dialect: dialect, Err: ErrEmptyText}
	}
	text = Normalize(text)

	doc := etree.NewDocument()
	// 只转义 & < >，保持 don't 之类的撇号原样。
	doc.WriteSettings.CanonicalText = true
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	var kind InputKind
	var para *etree.Element
	switch dialect {
	case DialectSSML:
		kind = KindSSML
		para = ssmlRoot(doc).CreateElement("p")
	case DialectMaryXML:
		kind = KindRawMaryXML
		para = maryRoot(doc).CreateElement("p")
	default:
		return nil, &CompilationError{Dialect: dialect, Err: fmt.Errorf("未知方言 %d", int(dialect))}
	}

	body := para
	if profile, ok := prosody.Resolve(style); ok {
		body = para.CreateElement("prosody")
		if c := profile.ContourString(); c != "" {
			body.CreateAttr("contour", c)
		}
		if profile.Rate != "" {
			body.CreateAttr("rate", profile.Rate)
		}
		if profile.Volume != "" {
			body.CreateAttr("volume", profile.Volume)
		}
	}
	appendEmphasized(body, text)

	out, err := doc.WriteToString()
	if err != nil {
		return nil, &CompilationError{Dialect: dialect, Err: err}
	}
	return &Document{Markup: out, Kind: kind, Text: text}, nil
}

// CompilePlain 是 StyleNone 的纯文本快速路径：只做规范化，不生成标记。
func CompilePlain(text string) (*Document, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &CompilationError{Err: ErrEmptyText}
	}
	text = Normalize(text)
	return &Document{Markup: text, Kind: KindText, Text: text}, nil
}

func ssmlRoot(doc *etree.Document) *etree.Element {
	root := doc.CreateElement("speak")
	root.CreateAttr("version", "1.0")
	root.CreateAttr("xmlns", ssmlNamespace)
	root.CreateAttr("xmlns:xsi", xsiNamespace)
	root.CreateAttr("xsi:schemaLocation", ssmlSchema)
	root.CreateAttr("xml:lang", documentLang)
	return root
}

func maryRoot(doc *etree.Document) *etree.Element {
	root := doc.CreateElement("maryxml")
	root.CreateAttr("version", "0.4")
	root.CreateAttr("xmlns:xsi", xsiNamespace)
	root.CreateAttr("xmlns", maryNamespace)
	root.CreateAttr("xml:lang", documentLang)
	return root
}

// appendEmphasized 把文本作为 parent 的子节点写入，重读词成为独立的 <emphasis> 元素，
// 其余文本与空白合并成相邻的文本节点。
func appendEmphasized(parent *etree.Element, text string) {
	var pending strings.Builder
	flush := func() {
		if pending.Len() > 0 {
			parent.CreateText(pending.String())
			pending.Reset()
		}
	}

	prev := 0
	for _, tok := range DetectEmphasis(text) {
		pending.WriteString(text[prev:tok.Start])
		prev = tok.End
		if !tok.Emphasized {
			pending.WriteString(text[tok.Start:tok.End])
			continue
		}
		flush()
		em := parent.CreateElement("emphasis")
		em.CreateAttr("level", "strong")
		em.SetText(text[tok.Start:tok.End])
	}
	pending.WriteString(text[prev:])
	flush()
}
