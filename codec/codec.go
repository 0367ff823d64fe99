package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ByLCY/introcard/card"
	"github.com/ByLCY/introcard/dsl"
)

// ErrMalformedDocument 表示文档无法解析或缺少必需的对象（personalInfo / globalCardStyles）。
var ErrMalformedDocument = errors.New("codec: malformed document")

// State 是编辑器状态的可序列化快照：设置、按显示顺序排列的卡片与 ID 计数器。
type State struct {
	Settings card.Settings
	Cards    []card.Card
	Counter  int
}

// Target 接收 Apply 的结果。编辑器实现该接口，codec 不直接依赖编辑器。
type Target interface {
	ApplySettings(s card.Settings)
	ResetCounter(n int)
	ClearCards()
	RestoreCard(c card.Card) error
	Relayout()
}

// Serialize 把状态编码为指定格式的文档。卡片顺序即显示顺序：先单列容器，再双列容器。
func Serialize(st State, schema Schema) ([]byte, error) {
	doc := toDocument(st, schema)
	if schema == SchemaExport {
		return json.MarshalIndent(doc, "", "  ")
	}
	return json.Marshal(doc)
}

func toDocument(st State, schema Schema) Document {
	p := st.Settings.PersonalInfo
	g := st.Settings.GlobalCardStyles
	doc := Document{
		PersonalInfo: &PersonalInfoRecord{
			Nickname:         str(p.Nickname),
			Bio:              str(p.Bio),
			BackgroundOption: str(string(p.BackgroundOption)),
			OverlayColor:     str(p.OverlayColor),
			OverlayOpacity:   num(p.OverlayOpacity),
			HeaderColor:      str(p.HeaderColor),
			HeaderOpacity:    num(p.HeaderOpacity),
			HeaderTextColor:  str(p.HeaderTextColor),
			PageBgColor:      str(p.PageBgColor),
		},
		GlobalCardStyles: &GlobalStylesRecord{
			Color:      str(g.Color),
			TextColor:  str(g.TextColor),
			Opacity:    num(g.Opacity),
			Shadow:     &g.Shadow,
			TextAlign:  str(string(g.TextAlign)),
			LineHeight: num(g.LineHeight),
			FontFamily: str(g.FontFamily),
			FontSize:   num(g.FontSize),
		},
		CardIDCounter: num(float64(st.Counter)),
		Cards:         make([]CardRecord, 0, len(st.Cards)),
	}
	ordered := make([]card.Card, 0, len(st.Cards))
	for _, col := range []card.Column{card.ColumnSingle, card.ColumnDual} {
		for _, c := range st.Cards {
			if c.Column == col {
				ordered = append(ordered, c)
			}
		}
	}
	for _, c := range ordered {
		rec := CardRecord{
			ID:        num(float64(c.ID)),
			Type:      str(string(c.Column)),
			Title:     str(c.Title),
			Content:   str(c.Content),
			Color:     str(c.Color),
			TextColor: str(c.TextColor),
			Opacity:   num(c.Opacity),
			BgOption:  str(string(c.BackgroundMode)),
			TextAlign: str(string(c.TextAlign)),
		}
		if schema == SchemaExport {
			if c.HasBackground() && !dsl.IsInlineData(imageRef(c.BackgroundImage)) {
				rec.BackgroundImage = str(c.BackgroundImage)
			}
			rec.OverlayColor = str(c.OverlayColor)
			rec.OverlayOpacity = num(c.OverlayOpacity)
		}
		doc.Cards = append(doc.Cards, rec)
	}
	return doc
}

func imageRef(v string) string {
	if ref, ok := dsl.ParseImageRef(v); ok {
		return ref
	}
	return v
}

// Decode 解析并校验文档，返回可直接应用的状态。校验失败时返回 ErrMalformedDocument。
// 缺失的标量字段取默认值；缺失的 cards 视为零张卡片；没有合法 id 的卡片在其余 id 被观察之后分配新 id。
func Decode(data []byte) (State, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if raw == nil {
		return State{}, fmt.Errorf("%w: 文档不是对象", ErrMalformedDocument)
	}
	for _, key := range []string{"personalInfo", "globalCardStyles"} {
		if !isObject(raw[key]) {
			return State{}, fmt.Errorf("%w: 缺少 %s 对象", ErrMalformedDocument, key)
		}
	}
	doc, err := decodeDocument(raw)
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	st := State{Settings: card.Settings{
		PersonalInfo:     decodePersonalInfo(doc.PersonalInfo),
		GlobalCardStyles: decodeGlobalStyles(doc.GlobalCardStyles),
	}}
	if n, ok := counterValue(doc.CardIDCounter); ok {
		st.Counter = n
	}

	alloc := card.NewAllocator(st.Counter)
	seen := make(map[int]bool, len(doc.Cards))
	pending := make([]int, 0)
	for _, rec := range doc.Cards {
		c, ok := decodeCard(rec, st.Settings.GlobalCardStyles)
		if !ok {
			continue
		}
		if c.ID > 0 && !seen[c.ID] {
			seen[c.ID] = true
			alloc.Observe(c.ID)
		} else {
			c.ID = 0
			pending = append(pending, len(st.Cards))
		}
		st.Cards = append(st.Cards, c)
	}
	for _, i := range pending {
		st.Cards[i].ID = alloc.Allocate()
	}
	st.Counter = alloc.Counter()
	return st, nil
}

// Apply 解码文档并按顺序写入 target：设置、计数器、清空卡片、逐张恢复、最后一次重新布局。
// 校验在任何修改之前完成，文档非法时 target 保持不变。
func Apply(data []byte, t Target) error {
	st, err := Decode(data)
	if err != nil {
		return err
	}
	return ApplyState(st, t)
}

// ApplyState 把已校验的状态写入 target。
func ApplyState(st State, t Target) error {
	t.ApplySettings(st.Settings)
	t.ResetCounter(st.Counter)
	t.ClearCards()
	var errs []error
	for _, c := range st.Cards {
		if err := t.RestoreCard(c); err != nil {
			errs = append(errs, fmt.Errorf("恢复卡片 #%d 失败: %w", c.ID, err))
		}
	}
	t.Relayout()
	return errors.Join(errs...)
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func decodePersonalInfo(r *PersonalInfoRecord) card.PersonalInfo {
	p := card.DefaultPersonalInfo()
	if r == nil {
		return p
	}
	p.Nickname = stringOr(r.Nickname, p.Nickname)
	p.Bio = stringOr(r.Bio, p.Bio)
	if r.BackgroundOption != nil {
		if m, ok := card.ParseBackgroundMode(*r.BackgroundOption); ok {
			p.BackgroundOption = m
		}
	}
	p.OverlayColor = colorOr(r.OverlayColor, p.OverlayColor)
	p.OverlayOpacity = unitOr(r.OverlayOpacity, p.OverlayOpacity)
	p.HeaderColor = colorOr(r.HeaderColor, p.HeaderColor)
	p.HeaderOpacity = unitOr(r.HeaderOpacity, p.HeaderOpacity)
	p.HeaderTextColor = colorOr(r.HeaderTextColor, p.HeaderTextColor)
	p.PageBgColor = colorOr(r.PageBgColor, p.PageBgColor)
	return p
}

func decodeGlobalStyles(r *GlobalStylesRecord) card.GlobalCardStyles {
	g := card.DefaultGlobalCardStyles()
	if r == nil {
		return g
	}
	g.Color = colorOr(r.Color, g.Color)
	g.TextColor = colorOr(r.TextColor, g.TextColor)
	if r.Opacity != nil && r.Opacity.valid() {
		g.Opacity = card.ClampOpacity(float64(*r.Opacity))
	}
	if r.Shadow != nil {
		g.Shadow = *r.Shadow
	}
	if r.TextAlign != nil {
		if a, ok := card.ParseAlign(*r.TextAlign, false); ok {
			g.TextAlign = a
		}
	}
	g.LineHeight = positiveOr(r.LineHeight, g.LineHeight)
	if r.FontFamily != nil && strings.TrimSpace(*r.FontFamily) != "" {
		g.FontFamily = strings.TrimSpace(*r.FontFamily)
	}
	g.FontSize = positiveOr(r.FontSize, g.FontSize)
	return g
}

// decodeCard 把记录转换为卡片；未知的容器类型无法放置，返回 false。
func decodeCard(r CardRecord, g card.GlobalCardStyles) (card.Card, bool) {
	column := card.ColumnSingle
	if r.Type != nil {
		col, ok := card.ParseColumn(*r.Type)
		if !ok {
			return card.Card{}, false
		}
		column = col
	}
	id := 0
	if r.ID != nil && r.ID.valid() {
		f := float64(*r.ID)
		if f > 0 && f <= MaxCounter && f == math.Trunc(f) {
			id = int(f)
		}
	}
	c := card.NewCard(id, column, g)
	c.Title = stringOr(r.Title, "")
	c.Content = stringOr(r.Content, "")
	c.Color = colorOr(r.Color, c.Color)
	c.TextColor = colorOr(r.TextColor, c.TextColor)
	if r.Opacity != nil && r.Opacity.valid() {
		c.Opacity = card.ClampOpacity(float64(*r.Opacity))
	}
	if r.BgOption != nil {
		if m, ok := card.ParseBackgroundMode(*r.BgOption); ok {
			c.BackgroundMode = m
		}
	}
	if r.TextAlign != nil {
		if a, ok := card.ParseAlign(*r.TextAlign, true); ok {
			c.TextAlign = a
		}
	}
	if r.BackgroundImage != nil && !dsl.IsInlineData(imageRef(*r.BackgroundImage)) {
		if _, ok := dsl.ParseImageRef(*r.BackgroundImage); ok {
			c.BackgroundImage = *r.BackgroundImage
		}
	}
	c.OverlayColor = colorOr(r.OverlayColor, c.OverlayColor)
	c.OverlayOpacity = unitOr(r.OverlayOpacity, c.OverlayOpacity)
	return c, true
}

// MaxCounter 是可恢复的最大计数器与卡片 id（2^53，与浏览器中整数精确表示的上限一致）。
const MaxCounter = 1 << 53

// counterValue 读取计数器：非正数、非整数部分截断后的越界值按缺失处理。
func counterValue(v *Number) (int, bool) {
	if v == nil || !v.valid() {
		return 0, false
	}
	f := math.Trunc(float64(*v))
	if f <= 0 || f > MaxCounter {
		return 0, false
	}
	return int(f), true
}

func stringOr(v *string, fallback string) string {
	if v == nil {
		return fallback
	}
	return *v
}

func colorOr(v *string, fallback string) string {
	if v == nil {
		return fallback
	}
	s := strings.ToLower(strings.TrimSpace(*v))
	if !dsl.IsHexColor(s) {
		return fallback
	}
	return s
}

func unitOr(v *Number, fallback float64) float64 {
	if v == nil || !v.valid() {
		return fallback
	}
	return math.Min(math.Max(float64(*v), 0), 1)
}

func positiveOr(v *Number, fallback float64) float64 {
	if v == nil || !v.valid() || *v <= 0 {
		return fallback
	}
	return float64(*v)
}
