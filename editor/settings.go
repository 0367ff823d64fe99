package editor

import (
	"fmt"
	"strings"

	"github.com/ByLCY/introcard/binding"
	"github.com/ByLCY/introcard/card"
	"github.com/ByLCY/introcard/dsl"
	"github.com/ByLCY/introcard/fonts"
)

// SetNickname 处理来自控件或预览一侧的昵称输入。
func (e *Editor) SetNickname(from binding.Side, v string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if from == binding.SideControl {
		e.header.NicknameInput = v
	} else {
		e.header.NicknamePreview = v
	}
	if e.nickname.Set(from, v) {
		e.commitLocked(saveDebounced)
	}
}

// SetBio 处理来自控件或预览一侧的简介输入。
func (e *Editor) SetBio(from binding.Side, v string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if from == binding.SideControl {
		e.header.BioInput = v
	} else {
		e.header.BioPreview = v
	}
	if e.bio.Set(from, v) {
		e.commitLocked(saveDebounced)
	}
}

// SetBackgroundImage 设置页面背景图。背景图属于上传内容，不会持久化，因此不触发保存。
func (e *Editor) SetBackgroundImage(ref string) {
	ref, ok := dsl.ParseImageRef(ref)
	if !ok {
		ref = ""
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settings.PersonalInfo.BackgroundImage = ref
}

// SetBackgroundOption 修改页面背景图的显示方式，立即保存。
func (e *Editor) SetBackgroundOption(mode string) error {
	m, ok := card.ParseBackgroundMode(mode)
	if !ok {
		return fmt.Errorf("%w: background mode %q", ErrInvalidValue, mode)
	}
	return e.updateSettings(saveImmediate, false, func(s *card.Settings) { s.PersonalInfo.BackgroundOption = m })
}

// SetOverlayColor 修改页面背景蒙版颜色。
func (e *Editor) SetOverlayColor(color string) error {
	return e.setColor(color, func(s *card.Settings, c string) { s.PersonalInfo.OverlayColor = c })
}

// SetOverlayOpacity 修改页面背景蒙版不透明度，取值 [0, 1]。
func (e *Editor) SetOverlayOpacity(v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%w: overlay opacity %g", ErrInvalidValue, v)
	}
	return e.updateSettings(saveDebounced, false, func(s *card.Settings) { s.PersonalInfo.OverlayOpacity = v })
}

// SetHeaderColor 修改头部背景色。
func (e *Editor) SetHeaderColor(color string) error {
	return e.setColor(color, func(s *card.Settings, c string) { s.PersonalInfo.HeaderColor = c })
}

// SetHeaderOpacity 修改头部不透明度，夹到 [0.1, 1]。
func (e *Editor) SetHeaderOpacity(v float64) error {
	return e.updateSettings(saveDebounced, false, func(s *card.Settings) { s.PersonalInfo.HeaderOpacity = card.ClampOpacity(v) })
}

// SetHeaderTextColor 修改头部文字颜色。
func (e *Editor) SetHeaderTextColor(color string) error {
	return e.setColor(color, func(s *card.Settings, c string) { s.PersonalInfo.HeaderTextColor = c })
}

// SetPageBgColor 修改页面背景色。
func (e *Editor) SetPageBgColor(color string) error {
	return e.setColor(color, func(s *card.Settings, c string) { s.PersonalInfo.PageBgColor = c })
}

// SetGlobalColor 修改卡片默认背景色，并应用到所有卡片。
func (e *Editor) SetGlobalColor(color string) error {
	color, err := normalizeColor(color)
	if err != nil {
		return err
	}
	return e.updateSettings(saveDebounced, false, func(s *card.Settings) {
		s.GlobalCardStyles.Color = color
		e.eachCardLocked(func(c *card.Card) { c.Color = color })
	})
}

// SetGlobalTextColor 修改卡片默认文字颜色，并应用到所有卡片。
func (e *Editor) SetGlobalTextColor(color string) error {
	color, err := normalizeColor(color)
	if err != nil {
		return err
	}
	return e.updateSettings(saveDebounced, false, func(s *card.Settings) {
		s.GlobalCardStyles.TextColor = color
		e.eachCardLocked(func(c *card.Card) { c.TextColor = color })
	})
}

// SetGlobalOpacity 修改卡片默认不透明度，并应用到所有卡片。
func (e *Editor) SetGlobalOpacity(v float64) error {
	v = card.ClampOpacity(v)
	return e.updateSettings(saveDebounced, false, func(s *card.Settings) {
		s.GlobalCardStyles.Opacity = v
		e.eachCardLocked(func(c *card.Card) { c.Opacity = v })
	})
}

// SetShadow 开关卡片阴影，立即保存。
func (e *Editor) SetShadow(on bool) error {
	return e.updateSettings(saveImmediate, false, func(s *card.Settings) { s.GlobalCardStyles.Shadow = on })
}

// SetGlobalAlign 修改默认对齐方式（left/center），立即保存。
func (e *Editor) SetGlobalAlign(align string) error {
	a, ok := card.ParseAlign(align, false)
	if !ok {
		return fmt.Errorf("%w: global align %q", ErrInvalidValue, align)
	}
	return e.updateSettings(saveImmediate, true, func(s *card.Settings) { s.GlobalCardStyles.TextAlign = a })
}

// SetLineHeight 修改内容行高倍数，立即保存。
func (e *Editor) SetLineHeight(v float64) error {
	if v < 1 || v > 3 {
		return fmt.Errorf("%w: line height %g", ErrInvalidValue, v)
	}
	return e.updateSettings(saveImmediate, true, func(s *card.Settings) { s.GlobalCardStyles.LineHeight = v })
}

// SetFont 修改卡片字体族与字号，立即保存。size<=0 时保持当前字号。
func (e *Editor) SetFont(family string, size float64) error {
	family = strings.TrimSpace(family)
	if family == "" {
		return fmt.Errorf("%w: empty font family", ErrInvalidValue)
	}
	if size > 72 {
		return fmt.Errorf("%w: font size %g", ErrInvalidValue, size)
	}
	if !fonts.Has(family) && !e.fonts[family] {
		e.logger.Warn("font family is not registered, renderer will fall back", "family", family)
	}
	return e.updateSettings(saveImmediate, true, func(s *card.Settings) {
		s.GlobalCardStyles.FontFamily = family
		if size > 0 {
			s.GlobalCardStyles.FontSize = size
		}
	})
}

func (e *Editor) setColor(color string, apply func(*card.Settings, string)) error {
	color, err := normalizeColor(color)
	if err != nil {
		return err
	}
	return e.updateSettings(saveDebounced, false, func(s *card.Settings) { apply(s, color) })
}

func (e *Editor) updateSettings(mode saveMode, affectsLayout bool, fn func(*card.Settings)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.settings)
	if affectsLayout {
		e.relayoutLocked()
	}
	e.commitLocked(mode)
	return nil
}

func (e *Editor) eachCardLocked(fn func(*card.Card)) {
	for _, c := range e.store.All() {
		_, _ = e.store.Update(c.ID, fn)
	}
}
