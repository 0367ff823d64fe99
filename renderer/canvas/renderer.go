package canvasrenderer

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"

	"github.com/ByLCY/introcard/fonts"
	"github.com/ByLCY/introcard/layout"
	"github.com/ByLCY/introcard/renderer"
)

// DefaultScale 是导出图片的像素倍率。
const DefaultScale = 2.0

// Renderer draws layout results via github.com/tdewolff/canvas and rasterizes them to PNG.
// Canvas units are layout px; the raster resolution is Scale device pixels per px.
type Renderer struct {
	baseDir string
	scale   float64

	// injected resources
	fontBlobs  map[string][]byte // by family or family-style
	imageBlobs map[string][]byte // by unique name

	fontMu         sync.Mutex
	fontFamilies   map[string]*fontFamilyEntry
	fallbackFamily *canvas.FontFamily

	imageMu    sync.Mutex
	imageCache map[string]image.Image

	loadErrs []error
}

var (
	_ renderer.Renderer = (*Renderer)(nil)
	_ layout.Typesetter = (*Renderer)(nil)
)

type fontFamilyEntry struct {
	family *canvas.FontFamily
	style  canvas.FontStyle
}

// Options configures the canvas renderer.
type Options struct {
	BaseDir string
	// Scale 为 0 时使用 DefaultScale。
	Scale float64
	// Fonts 按字体族注册额外字体，键为 "family" 或 "family-bold"，可覆盖内置字体族。
	Fonts map[string]Resource
	// Images 可通过 built-in:<name> 引用。
	Images map[string]Resource
}

// Resource can be provided either by Bytes or by Path.
type Resource struct {
	Bytes []byte
	Path  string
}

// NewRenderer creates a renderer rooted at baseDir for resolving relative image paths.
func NewRenderer(baseDir string) *Renderer { return NewRendererWithOptions(Options{BaseDir: baseDir}) }

// NewRendererWithOptions creates a renderer with injected resources.
func NewRendererWithOptions(opts Options) *Renderer {
	scale := opts.Scale
	if scale <= 0 {
		scale = DefaultScale
	}
	r := &Renderer{
		baseDir:      opts.BaseDir,
		scale:        scale,
		fontBlobs:    map[string][]byte{},
		imageBlobs:   map[string][]byte{},
		fontFamilies: map[string]*fontFamilyEntry{},
		imageCache:   map[string]image.Image{},
	}
	r.loadErrs = append(r.loadErrs, ingest(r.fontBlobs, opts.Fonts, strings.ToLower)...)
	r.loadErrs = append(r.loadErrs, ingest(r.imageBlobs, opts.Images, func(s string) string { return s })...)
	return r
}

// ingest 登记资源；无法读取的文件不登记，错误按资源名返回。
func ingest(dst map[string][]byte, src map[string]Resource, key func(string) string) []error {
	var errs []error
	for name, res := range src {
		if name == "" {
			continue
		}
		if len(res.Bytes) > 0 {
			dst[key(name)] = res.Bytes
			continue
		}
		if res.Path == "" {
			continue
		}
		data, err := os.ReadFile(res.Path)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("resource %q: %w", name, err))
		case len(data) == 0:
			errs = append(errs, fmt.Errorf("resource %q: %s is empty", name, res.Path))
		default:
			dst[key(name)] = data
		}
	}
	return errs
}

// HasFont 判断是否为 family 登记了字体数据（不含内置字体族）。
func (r *Renderer) HasFont(family string) bool {
	_, ok := r.fontBlobs[strings.ToLower(family)]
	return ok
}

// LoadErrors 返回构造时无法读取的字体与图片资源。
func (r *Renderer) LoadErrors() []error { return r.loadErrs }

// Scale 返回光栅化倍率。
func (r *Renderer) Scale() float64 { return r.scale }

// Render 渲染并编码为 PNG。
func (r *Renderer) Render(result *layout.Result) ([]byte, error) {
	img, err := r.Rasterize(result)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: 编码 PNG 失败: %v", renderer.ErrRasterization, err)
	}
	return buf.Bytes(), nil
}

// Rasterize 把布局结果绘制为位图，尺寸为 (Width*Scale) x (Height*Scale)。
func (r *Renderer) Rasterize(result *layout.Result) (img *image.RGBA, err error) {
	if result == nil {
		return nil, fmt.Errorf("%w: 渲染结果为空", renderer.ErrRasterization)
	}
	if result.Width <= 0 || result.Height <= 0 {
		return nil, fmt.Errorf("%w: 页面尺寸无效 %gx%g", renderer.ErrRasterization, result.Width, result.Height)
	}
	scale := r.scale
	if result.Meta.Scale > 0 {
		scale = result.Meta.Scale
	}
	defer func() {
		// 光栅化库在极端输入下可能 panic，统一转为错误
		if p := recover(); p != nil {
			img = nil
			err = fmt.Errorf("%w: %v", renderer.ErrRasterization, p)
		}
	}()

	c := canvas.New(result.Width, result.Height)
	ctx := canvas.NewContext(c)
	ctx.SetCoordSystem(canvas.CartesianIV) // 使坐标与布局保持左上角为原点
	for _, blk := range result.Blocks {
		if err := r.drawBlock(ctx, blk, scale); err != nil {
			return nil, fmt.Errorf("%w: 绘制 %s 失败: %v", renderer.ErrRasterization, blk.Kind, err)
		}
	}
	return rasterizer.Draw(c, canvas.DPMM(scale), canvas.DefaultColorSpace), nil
}

// LayoutLines 实现 layout.Typesetter 接口，使用贪心换行算法。
// 约定：width/fontSize/lineHeight 均为 px。字体面以 pt 创建，换算后其度量值即为 px。
// 每行高度等于 lineHeight，字形在行内垂直居中。
func (r *Renderer) LayoutLines(content string, width float64, font layout.FontResource, fontSize, lineHeight float64, wrap string) ([]layout.TextLine, error) {
	face, err := r.fontFace(font, toPt(fontSize), layout.Color{A: 1})
	if err != nil {
		return nil, err
	}
	if wrap == "" {
		wrap = "anywhere"
	}
	lines := greedyWrapTokens(content, width, face, wrap)
	textHeight := face.Metrics().LineHeight
	if lineHeight <= 0 {
		lineHeight = textHeight
	}
	if len(lines) == 0 {
		lines = []layout.TextLine{{Content: ""}}
	}
	for i := range lines {
		lines[i].Height = lineHeight
		lines[i].GapBefore = 0
	}
	return lines, nil
}

func (r *Renderer) drawBlock(ctx *canvas.Context, blk layout.Block, scale float64) error {
	if blk.Shadow != nil {
		r.drawRect(ctx, *blk.Shadow)
	}
	for _, rc := range blk.Rects {
		r.drawRect(ctx, rc)
	}
	if err := r.drawImages(ctx, blk.Images, scale); err != nil {
		return err
	}
	for _, rc := range blk.Overlays {
		r.drawRect(ctx, rc)
	}
	r.drawCircles(ctx, blk.Circles)
	for _, tb := range blk.Texts {
		if err := r.drawTextBox(ctx, tb); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) drawTextBox(ctx *canvas.Context, tb layout.TextBox) error {
	face, err := r.fontFace(tb.Font, toPt(tb.FontSize), tb.Color)
	if err != nil {
		return err
	}

	lines := tb.Lines
	if len(lines) == 0 {
		lines = []layout.TextLine{{Content: tb.Content, Width: tb.Width, Height: tb.LineHeight}}
	}

	var textAlign canvas.TextAlign
	var anchorX float64
	switch strings.ToLower(tb.Align) {
	case "center":
		textAlign = canvas.Center
		anchorX = tb.X + tb.Width/2
	case "right", "end":
		textAlign = canvas.Right
		anchorX = tb.X + tb.Width
	default:
		textAlign = canvas.Left
		anchorX = tb.X
	}

	metrics := face.Metrics()
	cursorY := tb.Y
	for _, line := range lines {
		cursorY += line.GapBefore
		lineHeight := line.Height
		if lineHeight <= 0 {
			lineHeight = tb.LineHeight
		}
		if line.Content != "" {
			// 基线：行顶 + 半行距 + 上升部
			baseline := cursorY + (lineHeight-metrics.LineHeight)/2 + metrics.Ascent
			ctx.DrawText(anchorX, baseline, canvas.NewTextLine(face, line.Content, textAlign))
		}
		cursorY += lineHeight
	}
	return nil
}

func (r *Renderer) drawRect(ctx *canvas.Context, rc layout.Rect) {
	if rc.Width <= 0 || rc.Height <= 0 {
		return
	}
	setPaint(ctx, rc.FillColor, rc.StrokeColor, rc.StrokeWidth)
	var p *canvas.Path
	if rc.Radius > 0 {
		p = canvas.RoundedRectangle(rc.Width, rc.Height, math.Min(rc.Radius, math.Min(rc.Width, rc.Height)/2))
	} else {
		p = canvas.Rectangle(rc.Width, rc.Height)
	}
	ctx.DrawPath(rc.X, rc.Y, p)
}

func (r *Renderer) drawCircles(ctx *canvas.Context, circles []layout.Circle) {
	for _, c := range circles {
		if c.R <= 0 {
			continue
		}
		setPaint(ctx, c.FillColor, c.StrokeColor, c.StrokeWidth)
		ctx.DrawPath(c.CX, c.CY, canvas.Circle(c.R))
	}
}

func setPaint(ctx *canvas.Context, fill, stroke *layout.Color, strokeWidth float64) {
	if fill != nil {
		ctx.SetFillColor(colorFromLayout(*fill))
	} else {
		ctx.SetFillColor(color.RGBA{})
	}
	if stroke != nil && strokeWidth > 0 {
		ctx.SetStrokeColor(colorFromLayout(*stroke))
		ctx.SetStrokeWidth(strokeWidth)
	} else {
		ctx.SetStrokeColor(color.RGBA{})
		ctx.SetStrokeWidth(0)
	}
}

func (r *Renderer) drawImages(ctx *canvas.Context, images []layout.ImageBox, scale float64) error {
	for _, box := range images {
		if box.Path == "" || box.Width <= 0 || box.Height <= 0 {
			continue
		}
		src, err := r.loadImage(box.Path)
		if err != nil {
			return err
		}
		if src == nil {
			continue
		}
		fitted := fitImage(src, box, scale)
		ctx.DrawImage(box.X, box.Y, fitted, canvas.DPMM(scale))
	}
	return nil
}

func (r *Renderer) fontFace(font layout.FontResource, size float64, col layout.Color) (*canvas.FontFace, error) {
	family, style, err := r.ensureFontFamily(font)
	if err != nil {
		return nil, err
	}
	return family.Face(size, colorFromLayout(col), style, canvas.FontNormal), nil
}

func (r *Renderer) ensureFontFamily(font layout.FontResource) (*canvas.FontFamily, canvas.FontStyle, error) {
	key := fontCacheKey(font)
	r.fontMu.Lock()
	defer r.fontMu.Unlock()

	if entry, ok := r.fontFamilies[key]; ok {
		return entry.family, entry.style, nil
	}

	style := parseFontStyle(font.Style)
	familyName := font.Family
	if familyName == "" {
		familyName = font.Name
	}
	if familyName == "" {
		familyName = fonts.Default
	}
	family := canvas.NewFontFamily(familyName)

	data, err := r.loadFontBytes(font)
	if err == nil {
		err = family.LoadFont(data, 0, style)
	}
	if err != nil {
		fallback, fbStyle, fbErr := r.fallback(style)
		if fbErr != nil {
			return nil, canvas.FontRegular, err
		}
		r.fontFamilies[key] = &fontFamilyEntry{family: fallback, style: fbStyle}
		return fallback, fbStyle, nil
	}

	r.fontFamilies[key] = &fontFamilyEntry{family: family, style: style}
	return family, style, nil
}

func (r *Renderer) loadFontBytes(font layout.FontResource) ([]byte, error) {
	if font.Src == "" {
		return nil, fmt.Errorf("字体 %s 缺少 src", font.Name)
	}
	src := font.Src
	if strings.HasPrefix(src, "built-in:") || strings.HasPrefix(src, "builtin:") {
		name := strings.TrimPrefix(strings.TrimPrefix(src, "built-in:"), "builtin:")
		if blob, ok := r.lookupFontBlob(name, font.Style); ok {
			return blob, nil
		}
		return nil, fmt.Errorf("找不到内置字体资源 built-in:%s", name)
	}
	if strings.HasPrefix(src, "embed:") {
		name := strings.TrimPrefix(src, "embed:")
		if blob, ok := r.lookupFontBlob(name, font.Style); ok {
			return blob, nil
		}
		return fonts.Load(name, font.Style)
	}
	path := src
	if !filepath.IsAbs(path) {
		if r.baseDir == "" {
			return nil, fmt.Errorf("未指定资源目录时不允许直接使用字体路径：%s（请改用 built-in: 或 embed:）", src)
		}
		path = filepath.Join(r.baseDir, path)
	}
	return os.ReadFile(path)
}

// lookupFontBlob 先找 family-style，再找 family。
func (r *Renderer) lookupFontBlob(family, style string) ([]byte, bool) {
	family = strings.ToLower(strings.TrimSpace(family))
	if style != "" {
		if blob, ok := r.fontBlobs[family+"-"+strings.ToLower(style)]; ok {
			return blob, true
		}
	}
	blob, ok := r.fontBlobs[family]
	return blob, ok
}

func (r *Renderer) fallback(style canvas.FontStyle) (*canvas.FontFamily, canvas.FontStyle, error) {
	if r.fallbackFamily == nil {
		family := canvas.NewFontFamily("introcard-fallback")
		for _, st := range []struct {
			name  string
			style canvas.FontStyle
		}{{"regular", canvas.FontRegular}, {"bold", canvas.FontBold}} {
			data, err := fonts.Load(fonts.Default, st.name)
			if err != nil {
				return nil, canvas.FontRegular, err
			}
			if err := family.LoadFont(data, 0, st.style); err != nil {
				return nil, canvas.FontRegular, err
			}
		}
		r.fallbackFamily = family
	}
	if style&canvas.FontBold != 0 {
		return r.fallbackFamily, canvas.FontBold, nil
	}
	return r.fallbackFamily, canvas.FontRegular, nil
}

func parseFontStyle(style string) canvas.FontStyle {
	s := strings.ToLower(style)
	result := canvas.FontRegular
	switch {
	case strings.Contains(s, "black"):
		result = canvas.FontBlack
	case strings.Contains(s, "extrabold"):
		result = canvas.FontExtraBold
	case strings.Contains(s, "semibold"), strings.Contains(s, "demibold"):
		result = canvas.FontSemiBold
	case strings.Contains(s, "bold"):
		result = canvas.FontBold
	case strings.Contains(s, "medium"):
		result = canvas.FontMedium
	case strings.Contains(s, "light"):
		result = canvas.FontLight
	}
	if strings.Contains(s, "italic") || strings.Contains(s, "oblique") {
		result |= canvas.FontItalic
	}
	return result
}

func fontCacheKey(font layout.FontResource) string {
	return fmt.Sprintf("%s|%s|%s", font.Name, font.Src, font.Style)
}

func colorFromLayout(c layout.Color) color.Color {
	return canvas.RGBA(float64(c.R)/255.0, float64(c.G)/255.0, float64(c.B)/255.0, c.A)
}

// toPt 把 px 字号换算为创建字体面所需的 pt：画布单位即 px，canvas 内部按 mm 解释单位。
func toPt(px float64) float64 { return px * layout.MmToPt }
