package layout

// 该文件定义布局结果，供页面合成、渲染与调试 JSON 共用。坐标与尺寸单位均为 px。

// Result 保存合成后的整页布局。
type Result struct {
	Width  float64      `json:"width"`
	Height float64      `json:"height"`
	Blocks []Block      `json:"blocks"`
	Cards  []CardBox    `json:"cards"`
	Dual   Container    `json:"dual"`
	Meta   DocumentMeta `json:"meta"`
}

// Block 是一组按固定顺序绘制的元素：阴影、底色、图片、蒙版、圆形、文字。
type Block struct {
	Kind     string     `json:"kind"`
	Shadow   *Rect      `json:"shadow,omitempty"`
	Rects    []Rect     `json:"rects,omitempty"`
	Images   []ImageBox `json:"images,omitempty"`
	Overlays []Rect     `json:"overlays,omitempty"`
	Circles  []Circle   `json:"circles,omitempty"`
	Texts    []TextBox  `json:"texts,omitempty"`
}

// CardBox 记录卡片在页面上的最终位置，便于调试与测试。
type CardBox struct {
	ID     int     `json:"id"`
	Column string  `json:"column"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Align  string  `json:"align"`
}

// Container 描述双列容器的位置与瀑布流结果。
type Container struct {
	X       float64        `json:"x"`
	Y       float64        `json:"y"`
	Width   float64        `json:"width"`
	Height  float64        `json:"height"`
	Masonry *MasonryResult `json:"masonry,omitempty"`
}

// FontResource 描述字体资源，src 可以是文件路径、embed:<family> 或 built-in:<name>。
type FontResource struct {
	Name   string `json:"name"`
	Src    string `json:"src"`
	Style  string `json:"style"`
	Family string `json:"family"`
}

// Color 采用 0-255 的 RGB 数值与 0-1 的 alpha。
type Color struct {
	R int     `json:"r"`
	G int     `json:"g"`
	B int     `json:"b"`
	A float64 `json:"a"`
}

// TextBox 表示一个已经排好坐标的文本块。
type TextBox struct {
	Content    string       `json:"content"`
	X          float64      `json:"x"`
	Y          float64      `json:"y"`
	Width      float64      `json:"width"`
	LineHeight float64      `json:"lineHeight"`
	Font       FontResource `json:"font"`
	FontSize   float64      `json:"fontSize"`
	Color      Color        `json:"color"`
	Lines      []TextLine   `json:"lines"`
	Height     float64      `json:"height"`
	Align      string       `json:"align,omitempty"` // left/center
}

// TextLine 表示排版后的一行文本内容及其宽高。
type TextLine struct {
	Content   string  `json:"content"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	GapBefore float64 `json:"gapBefore,omitempty"`
}

// ImageBox 描述图片位置、尺寸与填充方式（cover/stretch/tile）。
type ImageBox struct {
	Path    string  `json:"path"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	Fit     string  `json:"fit"`
	Opacity float64 `json:"opacity"`
	Radius  float64 `json:"radius,omitempty"`
	Circle  bool    `json:"circle,omitempty"`
}

// Rect 表示一个可带圆角的矩形。
type Rect struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	Radius      float64 `json:"radius,omitempty"`
	StrokeColor *Color  `json:"strokeColor,omitempty"`
	StrokeWidth float64 `json:"strokeWidth,omitempty"`
	FillColor   *Color  `json:"fillColor,omitempty"` // 为空表示不填充
}

// Circle 表示一个圆。
type Circle struct {
	CX          float64 `json:"cx"`
	CY          float64 `json:"cy"`
	R           float64 `json:"r"`
	StrokeColor *Color  `json:"strokeColor,omitempty"`
	StrokeWidth float64 `json:"strokeWidth,omitempty"`
	FillColor   *Color  `json:"fillColor,omitempty"`
}

// DocumentMeta 保存导出图片的元信息。
type DocumentMeta struct {
	Title   string  `json:"title"`
	Creator string  `json:"creator"`
	Scale   float64 `json:"scale,omitempty"`
}
