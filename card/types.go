package card

import (
	"strings"
)

// 该文件定义卡片与全局样式的数据模型，供编辑器、编解码与布局共用。

// Column 表示卡片所在的容器类型。
type Column string

const (
	ColumnSingle Column = "single"
	ColumnDual   Column = "dual"
)

// ParseColumn 解析容器类型，未知值返回 false。
func ParseColumn(v string) (Column, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "single":
		return ColumnSingle, true
	case "dual":
		return ColumnDual, true
	default:
		return "", false
	}
}

// Align 是卡片文字对齐方式；AlignDefault 在渲染时跟随全局设置。
type Align string

const (
	AlignDefault Align = "default"
	AlignLeft    Align = "left"
	AlignCenter  Align = "center"
)

// ParseAlign 解析对齐方式，allowDefault 为 false 时 "default" 视为非法（全局设置不能为 default）。
func ParseAlign(v string, allowDefault bool) (Align, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "default":
		return AlignDefault, allowDefault
	case "left":
		return AlignLeft, true
	case "center":
		return AlignCenter, true
	default:
		return "", false
	}
}

// BackgroundMode 描述背景图的显示方式。
type BackgroundMode string

const (
	BackgroundCover   BackgroundMode = "cover"
	BackgroundStretch BackgroundMode = "stretch"
	BackgroundTile    BackgroundMode = "tile"
)

// ParseBackgroundMode 解析背景显示方式。
func ParseBackgroundMode(v string) (BackgroundMode, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "cover":
		return BackgroundCover, true
	case "stretch":
		return BackgroundStretch, true
	case "tile":
		return BackgroundTile, true
	default:
		return "", false
	}
}

const (
	MinOpacity = 0.1
	MaxOpacity = 1.0
)

// ClampOpacity 将不透明度限制在 [0.1, 1.0]。
func ClampOpacity(v float64) float64 {
	if v < MinOpacity {
		return MinOpacity
	}
	if v > MaxOpacity {
		return MaxOpacity
	}
	return v
}

// Card 是一张内容卡片的完整记录。
type Card struct {
	ID              int            `json:"id"`
	Column          Column         `json:"type"`
	Title           string         `json:"title"`
	Content         string         `json:"content"`
	Color           string         `json:"color"`
	TextColor       string         `json:"textColor"`
	Opacity         float64        `json:"opacity"`
	BackgroundImage string         `json:"backgroundImage,omitempty"`
	BackgroundMode  BackgroundMode `json:"bgOption"`
	TextAlign       Align          `json:"textAlign"`
	OverlayColor    string         `json:"overlayColor,omitempty"`
	OverlayOpacity  float64        `json:"overlayOpacity,omitempty"`
}

// HasBackground 判断卡片是否携带背景图。
func (c Card) HasBackground() bool {
	v := strings.TrimSpace(c.BackgroundImage)
	return v != "" && v != "none"
}

// PersonalInfo 是页面头部与页面背景的设置。
// AvatarImage 与 BackgroundImage 属于原始上传图片，从不持久化。
type PersonalInfo struct {
	Nickname         string
	Bio              string
	AvatarImage      string
	BackgroundImage  string
	BackgroundOption BackgroundMode
	OverlayColor     string
	OverlayOpacity   float64
	HeaderColor      string
	HeaderOpacity    float64
	HeaderTextColor  string
	PageBgColor      string
}

// GlobalCardStyles 是卡片的全局默认样式。
type GlobalCardStyles struct {
	Color      string
	TextColor  string
	Opacity    float64
	Shadow     bool
	TextAlign  Align
	LineHeight float64
	FontFamily string
	FontSize   float64
}

// Settings 汇总页面级设置。
type Settings struct {
	PersonalInfo     PersonalInfo
	GlobalCardStyles GlobalCardStyles
}

// 页面头部占位文字，仅在渲染时使用。
const (
	NicknamePlaceholder = "你的昵称"
	BioPlaceholder      = "一句话介绍自己"
)

// DefaultPersonalInfo 返回页面头部的默认设置。
func DefaultPersonalInfo() PersonalInfo {
	return PersonalInfo{
		BackgroundOption: BackgroundCover,
		OverlayColor:     "#000000",
		OverlayOpacity:   0.3,
		HeaderColor:      "#ffffff",
		HeaderOpacity:    0.8,
		HeaderTextColor:  "#000000",
		PageBgColor:      "#ffffff",
	}
}

// DefaultGlobalCardStyles 返回卡片全局样式的默认值。
func DefaultGlobalCardStyles() GlobalCardStyles {
	return GlobalCardStyles{
		Color:      "#ffffff",
		TextColor:  "#000000",
		Opacity:    0.9,
		Shadow:     true,
		TextAlign:  AlignLeft,
		LineHeight: 1.5,
		FontFamily: "sans",
		FontSize:   14,
	}
}

// DefaultSettings 返回完整的默认设置。
func DefaultSettings() Settings {
	return Settings{
		PersonalInfo:     DefaultPersonalInfo(),
		GlobalCardStyles: DefaultGlobalCardStyles(),
	}
}

// NewCard 按全局样式构造一张新卡片，对应用户点击“添加卡片”。
func NewCard(id int, column Column, g GlobalCardStyles) Card {
	return Card{
		ID:             id,
		Column:         column,
		Color:          g.Color,
		TextColor:      g.TextColor,
		Opacity:        ClampOpacity(g.Opacity),
		BackgroundMode: BackgroundCover,
		TextAlign:      AlignDefault,
		OverlayColor:   "#000000",
		OverlayOpacity: 0,
	}
}

// ResolveAlign 把卡片自身的对齐方式与全局设置合并；default 跟随全局。
func ResolveAlign(cardAlign, global Align) Align {
	if cardAlign == AlignDefault || cardAlign == "" {
		if global == "" || global == AlignDefault {
			return AlignLeft
		}
		return global
	}
	return cardAlign
}

// Resolved 是一张卡片在渲染时的最终样式，由卡片记录与全局设置计算得出，不回写卡片。
type Resolved struct {
	Card       Card
	Align      Align
	LineHeight float64
	FontFamily string
	FontSize   float64
	Shadow     bool
}

// Resolve 计算卡片的派生样式。
func Resolve(c Card, g GlobalCardStyles) Resolved {
	lh := g.LineHeight
	if lh <= 0 {
		lh = DefaultGlobalCardStyles().LineHeight
	}
	size := g.FontSize
	if size <= 0 {
		size = DefaultGlobalCardStyles().FontSize
	}
	family := strings.TrimSpace(g.FontFamily)
	if family == "" {
		family = DefaultGlobalCardStyles().FontFamily
	}
	return Resolved{
		Card:       c,
		Align:      ResolveAlign(c.TextAlign, g.TextAlign),
		LineHeight: lh,
		FontFamily: family,
		FontSize:   size,
		Shadow:     g.Shadow,
	}
}
