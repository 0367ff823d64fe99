package canvasrenderer

import (
	"math"
	"strings"
	"unicode"

	"github.com/tdewolff/canvas"

	"github.com/ByLCY/introcard/layout"
)

// widthMeasurer 是换行所需的最小字体能力，*canvas.FontFace 满足该接口。
type widthMeasurer interface {
	TextWidth(s string) float64
}

var _ widthMeasurer = (*canvas.FontFace)(nil)

// greedyWrapTokens 按宽度贪心折行，宽度单位为 px。
// wrap 取值：nowrap 只按显式换行拆分；break-word 纯按宽度逐字切分；其余（anywhere）优先在空白与汉字间断行，超长词再逐字切分。
func greedyWrapTokens(content string, width float64, face widthMeasurer, wrap string) []layout.TextLine {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	limit := width
	if limit <= 0 {
		limit = math.MaxFloat64
	}

	if wrap == "nowrap" {
		parts := strings.Split(content, "\n")
		lines := make([]layout.TextLine, 0, len(parts))
		for _, p := range parts {
			lines = append(lines, layout.TextLine{Content: p, Width: face.TextWidth(p)})
		}
		return lines
	}

	w := &lineWriter{face: face, limit: limit}
	var tokens []string
	if wrap == "break-word" {
		for _, r := range content {
			tokens = append(tokens, string(r))
		}
	} else {
		tokens = tokenizeContent(content)
	}
	for _, token := range tokens {
		if token == "\n" {
			w.emit(true)
			continue
		}
		tokenWidth := face.TextWidth(token)
		if tokenWidth <= limit {
			w.add(token, tokenWidth)
			continue
		}
		for _, chunk := range splitTokenByWidth(token, limit, face) {
			w.add(chunk, face.TextWidth(chunk))
		}
	}
	w.emit(true)
	return w.lines
}

type lineWriter struct {
	face    widthMeasurer
	limit   float64
	builder strings.Builder
	current float64
	lines   []layout.TextLine
}

func (w *lineWriter) add(token string, tokenWidth float64) {
	if w.current > 0 && w.current+tokenWidth > w.limit {
		w.emit(false)
		// 行首空白不占位
		if strings.TrimSpace(token) == "" {
			return
		}
	}
	w.builder.WriteString(token)
	w.current += tokenWidth
}

func (w *lineWriter) emit(force bool) {
	if w.builder.Len() == 0 {
		if force {
			w.lines = append(w.lines, layout.TextLine{})
		}
		return
	}
	line := strings.TrimRightFunc(w.builder.String(), unicode.IsSpace)
	w.lines = append(w.lines, layout.TextLine{Content: line, Width: w.face.TextWidth(line)})
	w.builder.Reset()
	w.current = 0
}

// tokenizeContent 把文本拆成可断行的片段：连续空白、连续非空白的单词、单个汉字/假名以及换行符。
func tokenizeContent(s string) []string {
	var tokens []string
	var builder strings.Builder
	lastWasSpace := false
	flush := func() {
		if builder.Len() == 0 {
			return
		}
		tokens = append(tokens, builder.String())
		builder.Reset()
	}

	for _, r := range s {
		switch {
		case r == '\r':
			continue
		case r == '\n':
			flush()
			tokens = append(tokens, "\n")
			lastWasSpace = false
			continue
		case isWideBreakable(r):
			flush()
			tokens = append(tokens, string(r))
			lastWasSpace = false
			continue
		}
		isSpace := unicode.IsSpace(r)
		if builder.Len() == 0 {
			lastWasSpace = isSpace
		} else if lastWasSpace != isSpace {
			flush()
			lastWasSpace = isSpace
		}
		builder.WriteRune(r)
	}
	flush()
	return tokens
}

func isWideBreakable(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul) ||
		(r >= 0x3000 && r <= 0x303f) || (r >= 0xff00 && r <= 0xffef)
}

func splitTokenByWidth(token string, limit float64, face widthMeasurer) []string {
	if limit <= 0 || limit == math.MaxFloat64 {
		return []string{token}
	}
	var parts []string
	var builder strings.Builder
	for _, r := range token {
		builder.WriteRune(r)
		if face.TextWidth(builder.String()) > limit && builder.Len() > len(string(r)) {
			runes := []rune(builder.String())
			parts = append(parts, string(runes[:len(runes)-1]))
			builder.Reset()
			builder.WriteRune(r)
		}
	}
	if builder.Len() > 0 {
		parts = append(parts, builder.String())
	}
	return parts
}
