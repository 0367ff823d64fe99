package layout

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ByLCY/introcard/card"
	"github.com/ByLCY/introcard/dsl"
)

const (
	pagePadding     = 20.0
	headerPadding   = 20.0
	headerRadius    = 12.0
	avatarSize      = 80.0
	avatarGap       = 10.0
	nicknameSize    = 24.0
	bioSize         = 14.0
	bioGap          = 5.0
	cardPadding     = 15.0
	cardRadius      = 10.0
	titleSize       = 18.0
	titleGap        = 8.0
	shadowOffset    = 4.0
	headerLineRatio = 1.3
)

// Page 是一次合成的输入：设置与两个容器中按显示顺序排列的卡片。
type Page struct {
	Settings card.Settings
	Single   []card.Card
	Dual     []card.Card
}

// ErrNoContentWidth 表示页面宽度不足以放下双列容器。
var ErrNoContentWidth = errors.New("layout: no content width for dual cards")

// ContentWidth 返回给定页面宽度下容器的可用宽度。
func ContentWidth(pageWidth float64) float64 {
	return math.Max(pageWidth-2*pagePadding, 0)
}

// Compose 把页面合成为可直接渲染的布局结果。width 为页面宽度（px）。
func Compose(p Page, width float64, opts ComposeOptions) (*Result, error) {
	if opts.Typesetter == nil {
		return nil, fmt.Errorf("layout: 缺少排版后端 Typesetter")
	}
	if width <= 0 {
		return nil, fmt.Errorf("layout: 页面宽度必须为正数，实际 %g", width)
	}
	gap := opts.gap()
	contentW := ContentWidth(width)
	g := p.Settings.GlobalCardStyles

	res := &Result{Width: width}
	cursorY := pagePadding

	header, headerH, err := composeHeader(p.Settings.PersonalInfo, pagePadding, cursorY, contentW, g.FontFamily, opts.Typesetter)
	if err != nil {
		return nil, err
	}
	cursorY += headerH

	var cardBlocks []Block
	if len(p.Single) > 0 {
		cursorY += gap
		for _, c := range p.Single {
			r := card.Resolve(c, g)
			h, err := MeasureCard(r, contentW, opts.Typesetter)
			if err != nil {
				return nil, fmt.Errorf("测量单列卡片 #%d 失败: %w", c.ID, err)
			}
			blk, err := composeCard(r, pagePadding, cursorY, contentW, h, opts.Typesetter)
			if err != nil {
				return nil, err
			}
			cardBlocks = append(cardBlocks, blk)
			res.Cards = append(res.Cards, CardBox{ID: c.ID, Column: string(card.ColumnSingle), X: pagePadding, Y: cursorY, Width: contentW, Height: h, Align: string(r.Align)})
			cursorY += h + gap
		}
	}

	if len(p.Dual) > 0 {
		if len(p.Single) == 0 {
			cursorY += gap
		}
		resolved := make([]card.Resolved, len(p.Dual))
		for i, c := range p.Dual {
			resolved[i] = card.Resolve(c, g)
		}
		m, ok, err := ArrangeDual(resolved, contentW, gap, opts.Typesetter)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: page width %gpx", ErrNoContentWidth, width)
		}
		res.Dual = Container{X: pagePadding, Y: cursorY, Width: contentW, Height: m.Height, Masonry: &m}
		for _, pl := range m.Placements {
			r := resolved[pl.Index]
			x := pagePadding + pl.X
			y := cursorY + pl.Y
			blk, err := composeCard(r, x, y, pl.Width, pl.Height, opts.Typesetter)
			if err != nil {
				return nil, err
			}
			cardBlocks = append(cardBlocks, blk)
			res.Cards = append(res.Cards, CardBox{ID: r.Card.ID, Column: string(card.ColumnDual), X: x, Y: y, Width: pl.Width, Height: pl.Height, Align: string(r.Align)})
		}
		cursorY += m.Height
	}

	res.Height = cursorY + pagePadding
	res.Blocks = append(res.Blocks, composeBackground(p.Settings.PersonalInfo, width, res.Height))
	res.Blocks = append(res.Blocks, header)
	res.Blocks = append(res.Blocks, cardBlocks...)
	res.Meta = DocumentMeta{Title: strings.TrimSpace(p.Settings.PersonalInfo.Nickname), Creator: "introcard"}
	return res, nil
}

// ArrangeDual 在给定容器宽度下为双列卡片计算瀑布流位置。
func ArrangeDual(cards []card.Resolved, width, gap float64, ts Typesetter) (MasonryResult, bool, error) {
	return Masonry(width, gap, len(cards), func(i int, colWidth float64) (float64, error) {
		return MeasureCard(cards[i], colWidth, ts)
	})
}

// MeasureCard 在卡片宽度确定后计算其高度：内边距 + 标题 + 内容。
func MeasureCard(r card.Resolved, width float64, ts Typesetter) (float64, error) {
	inner := math.Max(width-2*cardPadding, 1)
	h := 2 * cardPadding
	hasTitle := r.Card.Title != ""
	if hasTitle {
		tb, err := composeText(r.Card.Title, 0, 0, inner, fontFor(r.FontFamily, "bold"), titleSize, titleSize*headerLineRatio, Color{}, "", ts)
		if err != nil {
			return 0, err
		}
		h += tb.Height
	}
	if r.Card.Content != "" {
		if hasTitle {
			h += titleGap
		}
		tb, err := composeText(r.Card.Content, 0, 0, inner, fontFor(r.FontFamily, "regular"), r.FontSize, LineHeightPX(r.FontSize, r.LineHeight), Color{}, "", ts)
		if err != nil {
			return 0, err
		}
		h += tb.Height
	}
	return h, nil
}

func composeCard(r card.Resolved, x, y, width, height float64, ts Typesetter) (Block, error) {
	c := r.Card
	blk := Block{Kind: fmt.Sprintf("card-%d", c.ID)}
	if r.Shadow {
		blk.Shadow = &Rect{X: x, Y: y + shadowOffset, Width: width, Height: height, Radius: cardRadius, FillColor: &Color{A: 0.1}}
	}
	fill := colorWithAlpha(c.Color, "#ffffff", card.ClampOpacity(c.Opacity))
	blk.Rects = append(blk.Rects, Rect{X: x, Y: y, Width: width, Height: height, Radius: cardRadius, FillColor: &fill})
	if ref, ok := dsl.ParseImageRef(c.BackgroundImage); ok {
		blk.Images = append(blk.Images, ImageBox{Path: ref, X: x, Y: y, Width: width, Height: height, Fit: string(c.BackgroundMode), Opacity: 1, Radius: cardRadius})
		if c.OverlayOpacity > 0 {
			ov := colorWithAlpha(c.OverlayColor, "#000000", c.OverlayOpacity)
			blk.Overlays = append(blk.Overlays, Rect{X: x, Y: y, Width: width, Height: height, Radius: cardRadius, FillColor: &ov})
		}
	}

	textColor := colorWithAlpha(c.TextColor, "#000000", 1)
	inner := math.Max(width-2*cardPadding, 1)
	cursor := y + cardPadding
	if c.Title != "" {
		tb, err := composeText(c.Title, x+cardPadding, cursor, inner, fontFor(r.FontFamily, "bold"), titleSize, titleSize*headerLineRatio, textColor, string(r.Align), ts)
		if err != nil {
			return Block{}, err
		}
		blk.Texts = append(blk.Texts, tb)
		cursor += tb.Height + titleGap
	}
	if c.Content != "" {
		tb, err := composeText(c.Content, x+cardPadding, cursor, inner, fontFor(r.FontFamily, "regular"), r.FontSize, LineHeightPX(r.FontSize, r.LineHeight), textColor, string(r.Align), ts)
		if err != nil {
			return Block{}, err
		}
		blk.Texts = append(blk.Texts, tb)
	}
	return blk, nil
}

func composeHeader(info card.PersonalInfo, x, y, width float64, family string, ts Typesetter) (Block, float64, error) {
	blk := Block{Kind: "header"}
	textColor := colorWithAlpha(info.HeaderTextColor, "#000000", 1)
	inner := math.Max(width-2*headerPadding, 1)

	cursor := y + headerPadding
	avatarX := x + (width-avatarSize)/2
	if ref, ok := dsl.ParseImageRef(info.AvatarImage); ok {
		blk.Images = append(blk.Images, ImageBox{Path: ref, X: avatarX, Y: cursor, Width: avatarSize, Height: avatarSize, Fit: string(card.BackgroundCover), Opacity: 1, Circle: true})
	} else {
		placeholder := Color{R: 224, G: 224, B: 224, A: 1}
		blk.Circles = append(blk.Circles, Circle{CX: avatarX + avatarSize/2, CY: cursor + avatarSize/2, R: avatarSize / 2, FillColor: &placeholder})
	}
	cursor += avatarSize + avatarGap

	nickname := info.Nickname
	if strings.TrimSpace(nickname) == "" {
		nickname = card.NicknamePlaceholder
	}
	nick, err := composeText(nickname, x+headerPadding, cursor, inner, fontFor(family, "bold"), nicknameSize, nicknameSize*headerLineRatio, textColor, "center", ts)
	if err != nil {
		return Block{}, 0, fmt.Errorf("排版昵称失败: %w", err)
	}
	blk.Texts = append(blk.Texts, nick)
	cursor += nick.Height + bioGap

	bio := info.Bio
	if strings.TrimSpace(bio) == "" {
		bio = card.BioPlaceholder
	}
	bt, err := composeText(bio, x+headerPadding, cursor, inner, fontFor(family, "regular"), bioSize, bioSize*1.5, textColor, "center", ts)
	if err != nil {
		return Block{}, 0, fmt.Errorf("排版简介失败: %w", err)
	}
	blk.Texts = append(blk.Texts, bt)
	cursor += bt.Height + headerPadding

	height := cursor - y
	fill := colorWithAlpha(info.HeaderColor, "#ffffff", info.HeaderOpacity)
	blk.Rects = append(blk.Rects, Rect{X: x, Y: y, Width: width, Height: height, Radius: headerRadius, FillColor: &fill})
	return blk, height, nil
}

func composeBackground(info card.PersonalInfo, width, height float64) Block {
	blk := Block{Kind: "background"}
	fill := colorWithAlpha(info.PageBgColor, "#ffffff", 1)
	blk.Rects = append(blk.Rects, Rect{Width: width, Height: height, FillColor: &fill})
	if ref, ok := dsl.ParseImageRef(info.BackgroundImage); ok {
		blk.Images = append(blk.Images, ImageBox{Path: ref, Width: width, Height: height, Fit: string(info.BackgroundOption), Opacity: 1})
		ov := colorWithAlpha(info.OverlayColor, "#000000", info.OverlayOpacity)
		blk.Overlays = append(blk.Overlays, Rect{Width: width, Height: height, FillColor: &ov})
	}
	return blk
}

// composeText 调用排版后端并计算文本块高度：Height == Σ(line.GapBefore + line.Height)。
func composeText(content string, x, y, width float64, font FontResource, fontSize, lineHeight float64, col Color, align string, ts Typesetter) (TextBox, error) {
	lines, err := ts.LayoutLines(content, width, font, fontSize, lineHeight, "anywhere")
	if err != nil {
		return TextBox{}, err
	}
	total := 0.0
	for i := range lines {
		if lines[i].Height <= 0 {
			lines[i].Height = lineHeight
		}
		total += lines[i].GapBefore + lines[i].Height
	}
	return TextBox{
		Content:    content,
		X:          x,
		Y:          y,
		Width:      width,
		LineHeight: lineHeight,
		Font:       font,
		FontSize:   fontSize,
		Color:      col,
		Lines:      lines,
		Height:     total,
		Align:      align,
	}, nil
}

func fontFor(family, style string) FontResource {
	family = strings.TrimSpace(family)
	if family == "" {
		family = "sans"
	}
	return FontResource{
		Name:   family + "-" + style,
		Src:    "embed:" + family,
		Style:  style,
		Family: family,
	}
}

// colorWithAlpha 对应 hexToRgba：把颜色与不透明度合成为带 alpha 的颜色。
func colorWithAlpha(value, fallback string, alpha float64) Color {
	c := dsl.MustColor(value, fallback)
	a := c.A * alpha
	if a < 0 {
		a = 0
	}
	if a > 1 {
		a = 1
	}
	return Color{R: int(c.R), G: int(c.G), B: int(c.B), A: a}
}
