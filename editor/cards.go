package editor

import (
	"fmt"
	"strings"

	"github.com/ByLCY/introcard/binding"
	"github.com/ByLCY/introcard/card"
	"github.com/ByLCY/introcard/dsl"
)

// AddCard 以全局样式创建一张空卡片并追加到容器末尾，立即保存。
func (e *Editor) AddCard(column card.Column) (card.Card, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := card.ParseColumn(string(column)); !ok {
		return card.Card{}, fmt.Errorf("%w: unknown column %q", ErrInvalidValue, column)
	}
	c := card.NewCard(e.alloc.Allocate(), column, e.settings.GlobalCardStyles)
	if err := e.addCardLocked(c); err != nil {
		return card.Card{}, err
	}
	if column == card.ColumnDual {
		e.relayoutLocked()
	}
	e.commitLocked(saveImmediate)
	e.logger.Debug("card added", "id", c.ID, "column", column)
	return c, nil
}

// addCardLocked 是“添加”与“恢复”共用的构造路径：写入仓库、登记 ID、生成两侧视图。
func (e *Editor) addCardLocked(c card.Card) error {
	if err := e.store.Add(c); err != nil {
		return err
	}
	e.alloc.Observe(c.ID)
	id := c.ID
	e.views.Build(c,
		func(v string) { _, _ = e.store.Update(id, func(c *card.Card) { c.Title = v }) },
		func(v string) { _, _ = e.store.Update(id, func(c *card.Card) { c.Content = v }) },
	)
	return nil
}

// DeleteCard 删除卡片及其视图，立即保存。
func (e *Editor) DeleteCard(id int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	removed, err := e.store.Delete(id)
	if err != nil {
		return err
	}
	e.views.Remove(id)
	if removed.Column == card.ColumnDual {
		e.relayoutLocked()
	}
	e.commitLocked(saveImmediate)
	e.logger.Debug("card deleted", "id", id)
	return nil
}

// ReorderCards 按拖拽后的顺序重排一个容器，立即保存。
func (e *Editor) ReorderCards(column card.Column, ids []int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reorderLocked(column, ids)
}

// MoveCard 把卡片移动到其容器内的 index 位置（越界时夹到两端）。
func (e *Editor) MoveCard(id, index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.store.Get(id)
	if !ok {
		return fmt.Errorf("%w: %d", card.ErrCardNotFound, id)
	}
	ids := e.store.IDs(c.Column)
	rest := make([]int, 0, len(ids))
	for _, v := range ids {
		if v != id {
			rest = append(rest, v)
		}
	}
	index = max(0, min(index, len(rest)))
	order := make([]int, 0, len(ids))
	order = append(order, rest[:index]...)
	order = append(order, id)
	order = append(order, rest[index:]...)
	return e.reorderLocked(c.Column, order)
}

func (e *Editor) reorderLocked(column card.Column, ids []int) error {
	if err := e.store.Reorder(column, ids); err != nil {
		return err
	}
	if column == card.ColumnDual {
		e.relayoutLocked()
	}
	e.commitLocked(saveImmediate)
	return nil
}

// EditTitle 处理来自控件或预览一侧的标题输入。
func (e *Editor) EditTitle(id int, from binding.Side, v string) error {
	return e.editText(id, from, v, true)
}

// EditContent 处理来自控件或预览一侧的内容输入。
func (e *Editor) EditContent(id int, from binding.Side, v string) error {
	return e.editText(id, from, v, false)
}

func (e *Editor) editText(id int, from binding.Side, v string, title bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	cv, ok := e.views.Get(id)
	if !ok {
		return fmt.Errorf("%w: %d", card.ErrCardNotFound, id)
	}
	field := cv.Content
	if title {
		field = cv.Title
	}
	// 输入发生在 from 一侧，该侧视图已经显示新值。
	switch {
	case from == binding.SideControl && title:
		cv.Control.TitleInput = v
	case from == binding.SideControl:
		cv.Control.ContentInput = v
	case title:
		cv.Preview.Title = v
	default:
		cv.Preview.Content = v
	}
	if !field.Set(from, v) {
		return nil
	}
	if cv.Column == card.ColumnDual {
		e.relayoutLocked()
	}
	e.commitLocked(saveDebounced)
	return nil
}

// SetCardColor 修改卡片背景色。
func (e *Editor) SetCardColor(id int, color string) error {
	color, err := normalizeColor(color)
	if err != nil {
		return err
	}
	return e.updateCard(id, false, func(c *card.Card) { c.Color = color })
}

// SetCardTextColor 修改卡片文字颜色。
func (e *Editor) SetCardTextColor(id int, color string) error {
	color, err := normalizeColor(color)
	if err != nil {
		return err
	}
	return e.updateCard(id, false, func(c *card.Card) { c.TextColor = color })
}

// SetCardOpacity 修改卡片不透明度，超出范围时夹到 [0.1, 1]。
func (e *Editor) SetCardOpacity(id int, opacity float64) error {
	return e.updateCard(id, false, func(c *card.Card) { c.Opacity = card.ClampOpacity(opacity) })
}

// SetCardBackground 设置卡片背景图；ref 为空或 none 时移除背景图与蒙版。
func (e *Editor) SetCardBackground(id int, ref string) error {
	ref, ok := dsl.ParseImageRef(ref)
	return e.updateCard(id, false, func(c *card.Card) {
		if !ok {
			c.BackgroundImage = ""
			c.OverlayOpacity = 0
			return
		}
		c.BackgroundImage = ref
	})
}

// SetCardBackgroundMode 修改卡片背景图的显示方式。
func (e *Editor) SetCardBackgroundMode(id int, mode string) error {
	m, ok := card.ParseBackgroundMode(mode)
	if !ok {
		return fmt.Errorf("%w: background mode %q", ErrInvalidValue, mode)
	}
	return e.updateCard(id, false, func(c *card.Card) { c.BackgroundMode = m })
}

// SetCardAlign 修改卡片对齐方式，default 表示跟随全局设置。
func (e *Editor) SetCardAlign(id int, align string) error {
	a, ok := card.ParseAlign(align, true)
	if !ok {
		return fmt.Errorf("%w: align %q", ErrInvalidValue, align)
	}
	return e.updateCard(id, true, func(c *card.Card) { c.TextAlign = a })
}

// SetCardOverlay 设置卡片背景图上的蒙版颜色与不透明度（0 表示无蒙版）。
func (e *Editor) SetCardOverlay(id int, color string, opacity float64) error {
	color, err := normalizeColor(color)
	if err != nil {
		return err
	}
	if opacity < 0 || opacity > 1 {
		return fmt.Errorf("%w: overlay opacity %g", ErrInvalidValue, opacity)
	}
	return e.updateCard(id, false, func(c *card.Card) {
		c.OverlayColor = color
		c.OverlayOpacity = opacity
	})
}

// updateCard 修改单张卡片的样式并防抖保存；affectsLayout 为真且卡片在双列容器时重新布局。
func (e *Editor) updateCard(id int, affectsLayout bool, fn func(*card.Card)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, err := e.store.Update(id, fn)
	if err != nil {
		return err
	}
	if affectsLayout && c.Column == card.ColumnDual {
		e.relayoutLocked()
	}
	e.commitLocked(saveDebounced)
	return nil
}

func normalizeColor(v string) (string, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	if !dsl.IsHexColor(v) {
		return "", fmt.Errorf("%w: color %q", ErrInvalidValue, v)
	}
	return v, nil
}
