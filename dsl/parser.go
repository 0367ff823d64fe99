package dsl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// 样式值语法：颜色（#rgb/#rrggbb/#rrggbbaa、rgb()/rgba()）、图片引用 url(...)、关键字（none/white 等）。

var (
	styleLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
		{Name: "URL", Pattern: `[uU][rR][lL]\(\s*(?:"[^"]*"|'[^']*'|[^)"']*)\s*\)`},
		{Name: "Hex", Pattern: `#[0-9A-Fa-f]+`},
		{Name: "Number", Pattern: `[-+]?(?:\d+\.\d*|\.\d+|\d+)%?`},
		{Name: "Ident", Pattern: `[A-Za-z_-][A-Za-z0-9_-]*`},
		{Name: "Punct", Pattern: `[(),/]`},
	})

	valueParser = participle.MustBuild[StyleValue](
		participle.Lexer(styleLexer),
		participle.Elide("Whitespace"),
		participle.UseLookahead(2),
	)
)

// StyleValue 是单个样式值的语法树根节点。
type StyleValue struct {
	Pos     lexer.Position `parser:"" json:"-"`
	URL     *URLLiteral    `parser:"  @URL"`
	Hex     *string        `parser:"| @Hex"`
	Func    *FuncCall      `parser:"| @@"`
	Keyword *string        `parser:"| @Ident"`
}

// FuncCall 表示 rgb(...)/rgba(...) 这类函数形式。
type FuncCall struct {
	Name string   `parser:"@Ident '('"`
	Args []string `parser:"( @Number ( ( ',' | '/' )? @Number )* )? ')'"`
}

// URLLiteral 在捕获时去掉 url( ) 外壳与引号。
type URLLiteral string

// Capture implements participle.Capture.
func (u *URLLiteral) Capture(values []string) error {
	if len(values) == 0 {
		return fmt.Errorf("url literal capture requires value")
	}
	raw := strings.TrimSpace(values[0])
	open := strings.IndexByte(raw, '(')
	if open == -1 || !strings.HasSuffix(raw, ")") {
		return fmt.Errorf("malformed url literal %q", raw)
	}
	inner := strings.TrimSpace(raw[open+1 : len(raw)-1])
	if len(inner) >= 2 && (inner[0] == '"' || inner[0] == '\'') && inner[len(inner)-1] == inner[0] {
		inner = inner[1 : len(inner)-1]
	}
	*u = URLLiteral(inner)
	return nil
}

// ParseValue 解析一个样式值。
func ParseValue(input string) (*StyleValue, error) {
	return valueParser.ParseString("", strings.TrimSpace(input))
}

// Color 采用 0-255 的 RGB 与 0-1 的 alpha。
type Color struct {
	R, G, B uint8
	A       float64
}

var namedColors = map[string]Color{
	"white":       {255, 255, 255, 1},
	"black":       {0, 0, 0, 1},
	"transparent": {0, 0, 0, 0},
	"gray":        {128, 128, 128, 1},
	"grey":        {128, 128, 128, 1},
	"red":         {255, 0, 0, 1},
	"green":       {0, 128, 0, 1},
	"blue":        {0, 0, 255, 1},
}

// ParseColor 解析颜色值。
func ParseColor(input string) (Color, error) {
	v, err := ParseValue(input)
	if err != nil {
		return Color{}, fmt.Errorf("解析颜色 %q 失败: %w", input, err)
	}
	switch {
	case v.Hex != nil:
		return parseHex(*v.Hex)
	case v.Func != nil:
		return parseColorFunc(v.Func)
	case v.Keyword != nil:
		if c, ok := namedColors[strings.ToLower(*v.Keyword)]; ok {
			return c, nil
		}
		return Color{}, fmt.Errorf("未知颜色关键字 %q", *v.Keyword)
	default:
		return Color{}, fmt.Errorf("%q 不是颜色", input)
	}
}

// MustColor 解析颜色，失败时返回 fallback。
func MustColor(input, fallback string) Color {
	if c, err := ParseColor(input); err == nil {
		return c
	}
	c, err := ParseColor(fallback)
	if err != nil {
		return Color{A: 1}
	}
	return c
}

// IsHexColor 判断是否为 6 位十六进制颜色（#rrggbb）。
func IsHexColor(input string) bool {
	v, err := ParseValue(input)
	return err == nil && v.Hex != nil && len(*v.Hex) == 7
}

// ParseImageRef 解析图片引用：url(...) 返回内部地址，none/空串返回 false，其余原样返回。
func ParseImageRef(input string) (string, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", false
	}
	v, err := ParseValue(s)
	if err != nil {
		return s, true
	}
	switch {
	case v.URL != nil:
		ref := strings.TrimSpace(string(*v.URL))
		return ref, ref != ""
	case v.Keyword != nil && strings.EqualFold(*v.Keyword, "none"):
		return "", false
	default:
		return s, true
	}
}

// FormatURL 把图片地址包装为 url("...") 形式。
func FormatURL(ref string) string {
	if ref == "" {
		return "none"
	}
	return `url("` + ref + `")`
}

// IsInlineData 判断引用是否为原始上传数据（data: URI），这类数据不会持久化。
func IsInlineData(ref string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(ref)), "data:")
}

func parseHex(h string) (Color, error) {
	digits := strings.TrimPrefix(h, "#")
	expand := func(s string) string {
		var b strings.Builder
		for _, r := range s {
			b.WriteRune(r)
			b.WriteRune(r)
		}
		return b.String()
	}
	switch len(digits) {
	case 3, 4:
		digits = expand(digits)
	case 6, 8:
	default:
		return Color{}, fmt.Errorf("颜色 %s 长度非法", h)
	}
	c := Color{
		R: mustHex(digits[0:2]),
		G: mustHex(digits[2:4]),
		B: mustHex(digits[4:6]),
		A: 1,
	}
	if len(digits) == 8 {
		c.A = float64(mustHex(digits[6:8])) / 255.0
	}
	return c, nil
}

func parseColorFunc(f *FuncCall) (Color, error) {
	name := strings.ToLower(f.Name)
	if name != "rgb" && name != "rgba" {
		return Color{}, fmt.Errorf("不支持的颜色函数 %s", f.Name)
	}
	if len(f.Args) != 3 && len(f.Args) != 4 {
		return Color{}, fmt.Errorf("%s 需要 3 或 4 个参数，实际 %d", f.Name, len(f.Args))
	}
	var ch [3]uint8
	for i := 0; i < 3; i++ {
		v, err := parseNumber(f.Args[i], 255)
		if err != nil {
			return Color{}, err
		}
		ch[i] = uint8(clamp(v, 0, 255) + 0.5)
	}
	c := Color{R: ch[0], G: ch[1], B: ch[2], A: 1}
	if len(f.Args) == 4 {
		a, err := parseNumber(f.Args[3], 1)
		if err != nil {
			return Color{}, err
		}
		c.A = clamp(a, 0, 1)
	}
	return c, nil
}

// parseNumber 解析数字，百分比按 scale 换算。
func parseNumber(s string, scale float64) (float64, error) {
	if strings.HasSuffix(s, "%") {
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil {
			return 0, err
		}
		return v / 100 * scale, nil
	}
	return strconv.ParseFloat(s, 64)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func mustHex(s string) uint8 {
	v, _ := strconv.ParseUint(s, 16, 8)
	return uint8(v)
}
