package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// 该文件定义持久化文档的 JSON 记录。字段名与浏览器版本保存的 localStorage 内容保持一致，
// 因此旧数据（数值以字符串保存）也可以直接导入。

// StorageKey 是自动保存使用的槽位键名。
const StorageKey = "selfIntroGeneratorState"

// Schema 区分两种序列化格式。
type Schema int

const (
	// SchemaAutosave 用于自动保存：不含任何图片引用与卡片蒙版字段。
	SchemaAutosave Schema = iota
	// SchemaExport 用于导出文件：额外包含卡片蒙版与非上传来源的背景图引用。
	SchemaExport
)

func (s Schema) String() string {
	switch s {
	case SchemaAutosave:
		return "autosave"
	case SchemaExport:
		return "export"
	default:
		return fmt.Sprintf("schema(%d)", int(s))
	}
}

// Number 兼容 JSON 数字与数字字符串（例如 "0.9"）。
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			// 无法识别的字符串按缺失处理，由调用方回退到默认值。
			v = math.NaN()
		}
		*n = Number(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*n = Number(v)
	return nil
}

func (n Number) valid() bool {
	f := float64(n)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func num(v float64) *Number {
	n := Number(v)
	return &n
}

func str(v string) *string { return &v }

// Document 是一份完整的持久化文档。
type Document struct {
	PersonalInfo     *PersonalInfoRecord `json:"personalInfo"`
	Cards            []CardRecord        `json:"cards"`
	GlobalCardStyles *GlobalStylesRecord `json:"globalCardStyles"`
	CardIDCounter    *Number             `json:"cardIdCounter,omitempty"`
}

// PersonalInfoRecord 对应页面头部设置；头像与页面背景图从不写入。
type PersonalInfoRecord struct {
	Nickname         *string `json:"nickname,omitempty"`
	Bio              *string `json:"bio,omitempty"`
	BackgroundOption *string `json:"backgroundOption,omitempty"`
	OverlayColor     *string `json:"overlayColor,omitempty"`
	OverlayOpacity   *Number `json:"overlayOpacity,omitempty"`
	HeaderColor      *string `json:"headerColor,omitempty"`
	HeaderOpacity    *Number `json:"headerOpacity,omitempty"`
	HeaderTextColor  *string `json:"headerTextColor,omitempty"`
	PageBgColor      *string `json:"pageBgColor,omitempty"`
}

// GlobalStylesRecord 对应卡片全局样式。
type GlobalStylesRecord struct {
	Color      *string `json:"color,omitempty"`
	TextColor  *string `json:"textColor,omitempty"`
	Opacity    *Number `json:"opacity,omitempty"`
	Shadow     *bool   `json:"shadow,omitempty"`
	TextAlign  *string `json:"textAlign,omitempty"`
	LineHeight *Number `json:"lineHeight,omitempty"`
	FontFamily *string `json:"fontFamily,omitempty"`
	FontSize   *Number `json:"fontSize,omitempty"`
}

// CardRecord 对应单张卡片。id 在旧数据中以字符串保存。
type CardRecord struct {
	ID              *Number `json:"id,omitempty"`
	Type            *string `json:"type,omitempty"`
	Title           *string `json:"title,omitempty"`
	Content         *string `json:"content,omitempty"`
	Color           *string `json:"color,omitempty"`
	TextColor       *string `json:"textColor,omitempty"`
	Opacity         *Number `json:"opacity,omitempty"`
	BackgroundImage *string `json:"backgroundImage,omitempty"`
	BgOption        *string `json:"bgOption,omitempty"`
	TextAlign       *string `json:"textAlign,omitempty"`
	OverlayColor    *string `json:"overlayColor,omitempty"`
	OverlayOpacity  *Number `json:"overlayOpacity,omitempty"`
}

// 以下 UnmarshalJSON 逐个字段解码：某个字段类型不符时按缺失处理，不影响同一记录的其余字段。

func (r *PersonalInfoRecord) UnmarshalJSON(b []byte) error {
	fields, err := objectFields(b)
	if err != nil {
		return err
	}
	*r = PersonalInfoRecord{}
	field(fields, "nickname", &r.Nickname)
	field(fields, "bio", &r.Bio)
	field(fields, "backgroundOption", &r.BackgroundOption)
	field(fields, "overlayColor", &r.OverlayColor)
	field(fields, "overlayOpacity", &r.OverlayOpacity)
	field(fields, "headerColor", &r.HeaderColor)
	field(fields, "headerOpacity", &r.HeaderOpacity)
	field(fields, "headerTextColor", &r.HeaderTextColor)
	field(fields, "pageBgColor", &r.PageBgColor)
	return nil
}

func (r *GlobalStylesRecord) UnmarshalJSON(b []byte) error {
	fields, err := objectFields(b)
	if err != nil {
		return err
	}
	*r = GlobalStylesRecord{}
	field(fields, "color", &r.Color)
	field(fields, "textColor", &r.TextColor)
	field(fields, "opacity", &r.Opacity)
	field(fields, "shadow", &r.Shadow)
	field(fields, "textAlign", &r.TextAlign)
	field(fields, "lineHeight", &r.LineHeight)
	field(fields, "fontFamily", &r.FontFamily)
	field(fields, "fontSize", &r.FontSize)
	return nil
}

func (r *CardRecord) UnmarshalJSON(b []byte) error {
	fields, err := objectFields(b)
	if err != nil {
		return err
	}
	*r = CardRecord{}
	field(fields, "id", &r.ID)
	field(fields, "type", &r.Type)
	field(fields, "title", &r.Title)
	field(fields, "content", &r.Content)
	field(fields, "color", &r.Color)
	field(fields, "textColor", &r.TextColor)
	field(fields, "opacity", &r.Opacity)
	field(fields, "backgroundImage", &r.BackgroundImage)
	field(fields, "bgOption", &r.BgOption)
	field(fields, "textAlign", &r.TextAlign)
	field(fields, "overlayColor", &r.OverlayColor)
	field(fields, "overlayOpacity", &r.OverlayOpacity)
	return nil
}

func objectFields(b []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// field 解码 fields[key] 到 *dst；缺失、null 或类型不符时 *dst 保持 nil。
func field[T any](fields map[string]json.RawMessage, key string, dst **T) {
	raw, ok := fields[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return
	}
	*dst = &v
}

// decodeDocument 从顶层对象读取文档。cards 不是数组时视为零张卡片，
// 数组中不是对象的元素被跳过；counter 类型不符时按缺失处理。
func decodeDocument(raw map[string]json.RawMessage) (Document, error) {
	var doc Document
	if err := json.Unmarshal(raw["personalInfo"], &doc.PersonalInfo); err != nil {
		return Document{}, err
	}
	if err := json.Unmarshal(raw["globalCardStyles"], &doc.GlobalCardStyles); err != nil {
		return Document{}, err
	}
	field(raw, "cardIdCounter", &doc.CardIDCounter)
	var items *[]json.RawMessage
	field(raw, "cards", &items)
	if items == nil {
		return doc, nil
	}
	for _, item := range *items {
		var rec CardRecord
		if !isObject(item) {
			continue
		}
		if err := json.Unmarshal(item, &rec); err != nil {
			continue
		}
		doc.Cards = append(doc.Cards, rec)
	}
	return doc, nil
}
