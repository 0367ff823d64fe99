package card

import (
	"fmt"

	"github.com/ByLCY/introcard/binding"
)

// ControlView 是卡片在编辑面板中的控件状态。
type ControlView struct {
	Heading         string
	TitleInput      string
	ContentInput    string
	AlignGroup      string
	BackgroundGroup string
}

// PreviewView 是卡片在预览区中的可编辑文本。
type PreviewView struct {
	Title   string
	Content string
}

// CardViews 是一张卡片的一对视图句柄，Title/Content 字段把两侧与卡片记录绑定在一起。
type CardViews struct {
	ID      int
	Column  Column
	Control *ControlView
	Preview *PreviewView
	Title   *binding.Field
	Content *binding.Field
}

// Views 按卡片 ID 保存视图句柄。
type Views struct {
	byID map[int]*CardViews
}

// NewViews 创建空的视图注册表。
func NewViews() *Views {
	return &Views{byID: map[int]*CardViews{}}
}

// Build 为卡片构造控件与预览两侧视图，并把字段变化回写到 onTitle/onContent。
func (v *Views) Build(c Card, onTitle, onContent func(string)) *CardViews {
	label := "单列"
	if c.Column == ColumnDual {
		label = "双列"
	}
	cv := &CardViews{
		ID:     c.ID,
		Column: c.Column,
		Control: &ControlView{
			Heading:         fmt.Sprintf("%s卡片 #%d", label, c.ID),
			AlignGroup:      fmt.Sprintf("card-align-option-%d", c.ID),
			BackgroundGroup: fmt.Sprintf("card-bg-option-%d", c.ID),
		},
		Preview: &PreviewView{},
	}
	cv.Title = binding.NewField(c.Title, onTitle)
	cv.Title.Bind(binding.SideControl, func(s string) { cv.Control.TitleInput = s })
	cv.Title.Bind(binding.SidePreview, func(s string) { cv.Preview.Title = s })
	cv.Content = binding.NewField(c.Content, onContent)
	cv.Content.Bind(binding.SideControl, func(s string) { cv.Control.ContentInput = s })
	cv.Content.Bind(binding.SidePreview, func(s string) { cv.Preview.Content = s })
	v.byID[c.ID] = cv
	return cv
}

// Get 返回卡片的视图句柄。
func (v *Views) Get(id int) (*CardViews, bool) {
	cv, ok := v.byID[id]
	return cv, ok
}

// Remove 删除卡片的视图句柄。
func (v *Views) Remove(id int) {
	delete(v.byID, id)
}

// Clear 删除全部视图。
func (v *Views) Clear() {
	v.byID = map[int]*CardViews{}
}

