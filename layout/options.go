package layout

// ComposeOptions 配置页面合成所需的依赖，例如排版后端。
type ComposeOptions struct {
	Typesetter Typesetter
	// Gap 是卡片之间的间距，<=0 时使用 DefaultGap。
	Gap float64
}

// Typesetter 负责根据字体与宽度约束将文本拆成可绘制的行。
// 所有长度（width/fontSize/lineHeight）都以 px 传入与返回。
type Typesetter interface {
	LayoutLines(content string, width float64, font FontResource, fontSize float64, lineHeight float64, wrap string) ([]TextLine, error)
}

func (o ComposeOptions) gap() float64 {
	if o.Gap > 0 {
		return o.Gap
	}
	return DefaultGap
}
