package layout

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/ByLCY/introcard/card"
)

// stubTypesetter 是测试用的最小实现：每个字符宽 fontSize/2，每行高 lineHeight，按宽度硬切。
type stubTypesetter struct{}

func (s *stubTypesetter) LayoutLines(content string, width float64, font FontResource, fontSize float64, lineHeight float64, wrap string) ([]TextLine, error) {
	var lines []TextLine
	charW := fontSize / 2
	perLine := int(width / charW)
	if perLine < 1 {
		perLine = 1
	}
	for _, para := range strings.Split(content, "\n") {
		n := utf8.RuneCountInString(para)
		count := (n + perLine - 1) / perLine
		if count == 0 {
			count = 1
		}
		for i := 0; i < count; i++ {
			lines = append(lines, TextLine{Content: para, Width: math.Min(float64(n)*charW, width), Height: lineHeight})
		}
	}
	return lines, nil
}

func samplePage() Page {
	g := card.DefaultGlobalCardStyles()
	single := card.NewCard(1, card.ColumnSingle, g)
	single.Title = "关于我"
	single.Content = "short"
	var dual []card.Card
	for i, content := range []string{"a", strings.Repeat("b", 120), "c\nc\nc", ""} {
		c := card.NewCard(i+2, card.ColumnDual, g)
		c.Title = "t"
		c.Content = content
		dual = append(dual, c)
	}
	return Page{Settings: card.DefaultSettings(), Single: []card.Card{single}, Dual: dual}
}

func TestComposeRequiresTypesetter(t *testing.T) {
	if _, err := Compose(samplePage(), 600, ComposeOptions{}); err == nil {
		t.Fatalf("expected error without typesetter")
	}
	if _, err := Compose(samplePage(), 0, ComposeOptions{Typesetter: &stubTypesetter{}}); err == nil {
		t.Fatalf("expected error for zero width")
	}
}

// TestComposeNarrowPageKeepsDualCards 页面宽度不超过两侧内边距时双列容器无法排布，必须报错而不是丢掉卡片。
func TestComposeNarrowPageKeepsDualCards(t *testing.T) {
	ts := &stubTypesetter{}
	for _, width := range []float64{40, 12} {
		res, err := Compose(samplePage(), width, ComposeOptions{Typesetter: ts})
		if !errors.Is(err, ErrNoContentWidth) || res != nil {
			t.Fatalf("width %g: want ErrNoContentWidth, got %v", width, err)
		}
	}
	p := samplePage()
	p.Dual = nil
	res, err := Compose(p, 40, ComposeOptions{Typesetter: ts})
	if err != nil {
		t.Fatalf("page without dual cards: %v", err)
	}
	if len(res.Cards) != 1 {
		t.Fatalf("want the single card, got %d", len(res.Cards))
	}
}

// TestComposeDualUsesMasonry 断言双列卡片的位置与 ArrangeDual 的结果一致，且容器高度为较高一列。
func TestComposeDualUsesMasonry(t *testing.T) {
	ts := &stubTypesetter{}
	p := samplePage()
	res, err := Compose(p, 600, ComposeOptions{Typesetter: ts})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if res.Dual.Masonry == nil {
		t.Fatalf("missing masonry result")
	}
	m := res.Dual.Masonry
	if math.Abs(m.ColumnWidth-(ContentWidth(600)-DefaultGap)/2) > 1e-9 {
		t.Fatalf("column width mismatch: %g", m.ColumnWidth)
	}
	if res.Dual.Height != math.Max(m.Columns[0], m.Columns[1]) {
		t.Fatalf("dual height must equal the taller column")
	}
	var duals []CardBox
	for _, cb := range res.Cards {
		if cb.Column == string(card.ColumnDual) {
			duals = append(duals, cb)
		}
	}
	if len(duals) != 4 {
		t.Fatalf("expected 4 dual cards, got %d", len(duals))
	}
	for i, cb := range duals {
		pl := m.Placements[i]
		if cb.ID != p.Dual[i].ID {
			t.Fatalf("order changed at %d: %d", i, cb.ID)
		}
		if cb.X != res.Dual.X+pl.X || cb.Y != res.Dual.Y+pl.Y {
			t.Fatalf("card %d position mismatch", cb.ID)
		}
	}
	if res.Height <= res.Dual.Y+res.Dual.Height {
		t.Fatalf("page height must include bottom padding")
	}
}

func TestComposeContainerMargins(t *testing.T) {
	ts := &stubTypesetter{}
	p := samplePage()
	p.Single = nil
	res, err := Compose(p, 600, ComposeOptions{Typesetter: ts})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	header := res.Blocks[1]
	if header.Kind != "header" {
		t.Fatalf("second block must be header, got %s", header.Kind)
	}
	headerBottom := header.Rects[0].Y + header.Rects[0].Height
	if math.Abs(res.Dual.Y-(headerBottom+DefaultGap)) > 1e-9 {
		t.Fatalf("dual container needs a top margin when single is empty: y=%g header=%g", res.Dual.Y, headerBottom)
	}

	empty := Page{Settings: card.DefaultSettings()}
	res, err = Compose(empty, 600, ComposeOptions{Typesetter: ts})
	if err != nil {
		t.Fatalf("compose empty: %v", err)
	}
	if len(res.Cards) != 0 || res.Dual.Masonry != nil {
		t.Fatalf("empty page must not have cards")
	}
}

func TestComposeResolvesDefaultAlignment(t *testing.T) {
	ts := &stubTypesetter{}
	p := samplePage()
	p.Settings.GlobalCardStyles.TextAlign = card.AlignCenter
	p.Dual[0].TextAlign = card.AlignLeft
	res, err := Compose(p, 600, ComposeOptions{Typesetter: ts})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	for _, cb := range res.Cards {
		want := string(card.AlignCenter)
		if cb.ID == p.Dual[0].ID {
			want = string(card.AlignLeft)
		}
		if cb.Align != want {
			t.Fatalf("card %d align %s want %s", cb.ID, cb.Align, want)
		}
	}
}

// TestTextBoxTotalHeightInvariant 断言：TextBox.Height == Σ(line.Height + line.GapBefore)。
func TestTextBoxTotalHeightInvariant(t *testing.T) {
	res, err := Compose(samplePage(), 600, ComposeOptions{Typesetter: &stubTypesetter{}})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	found := false
	for _, blk := range res.Blocks {
		for _, tb := range blk.Texts {
			total := 0.0
			for _, ln := range tb.Lines {
				total += ln.GapBefore + ln.Height
			}
			if diff := math.Abs(total - tb.Height); diff > 1e-6 {
				t.Fatalf("TextBox.Height 不变式不成立: got=%g want=%g", tb.Height, total)
			}
			found = true
		}
	}
	if !found {
		t.Fatalf("未找到文本框进行校验")
	}
}

func TestComposeCardImageAndOverlay(t *testing.T) {
	p := samplePage()
	p.Dual[0].BackgroundImage = `url("bg.png")`
	p.Dual[0].BackgroundMode = card.BackgroundTile
	p.Dual[0].OverlayOpacity = 0.4
	p.Settings.GlobalCardStyles.Shadow = false
	res, err := Compose(p, 600, ComposeOptions{Typesetter: &stubTypesetter{}})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	var blk *Block
	for i := range res.Blocks {
		if res.Blocks[i].Kind == "card-2" {
			blk = &res.Blocks[i]
		}
	}
	if blk == nil {
		t.Fatalf("card-2 block missing")
	}
	if len(blk.Images) != 1 || blk.Images[0].Path != "bg.png" || blk.Images[0].Fit != "tile" {
		t.Fatalf("image mismatch: %#v", blk.Images)
	}
	if len(blk.Overlays) != 1 || math.Abs(blk.Overlays[0].FillColor.A-0.4) > 1e-9 {
		t.Fatalf("overlay mismatch: %#v", blk.Overlays)
	}
	if blk.Shadow != nil {
		t.Fatalf("shadow must be off")
	}
}

func TestEncodeDebugJSON(t *testing.T) {
	res, err := Compose(samplePage(), 600, ComposeOptions{Typesetter: &stubTypesetter{}})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	var buf bytes.Buffer
	if err := EncodeDebugJSON(res, &buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("debug JSON invalid: %v", err)
	}
	if _, ok := decoded["dual"]; !ok {
		t.Fatalf("debug JSON missing dual container")
	}
}
