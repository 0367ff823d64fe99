// Package editor 持有编辑器的全部状态，并实现用户可以执行的每个操作。
//
// 所有状态由一个互斥锁保护；自动保存的防抖回调运行在计时器的 goroutine 中，
// 通过同一把锁读取快照。
package editor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ByLCY/introcard/binding"
	"github.com/ByLCY/introcard/card"
	"github.com/ByLCY/introcard/codec"
	"github.com/ByLCY/introcard/layout"
	"github.com/ByLCY/introcard/persist"
	"github.com/ByLCY/introcard/renderer"
)

// ErrInvalidValue 表示设置值不合法（颜色格式、取值范围等）。
var ErrInvalidValue = errors.New("invalid value")

// DefaultViewportWidth 是未指定时的预览区宽度（px）。
const DefaultViewportWidth = 600.0

// Options 配置编辑器的协作者。
type Options struct {
	// Typesetter 用于测量卡片高度，必填。
	Typesetter layout.Typesetter
	// Renderer 用于导出图片；为空时 ExportImage 返回 ErrRasterization。
	Renderer renderer.Renderer
	// Slot 为空时不做自动保存。
	Slot          persist.Slot
	AutosaveDelay time.Duration
	Gap           float64
	ViewportWidth float64
	// Fonts 是渲染器额外注册的字体族名称。
	Fonts  []string
	Logger *log.Logger
	Now    func() time.Time
}

// HeaderView 是页面头部昵称与简介在两侧视图中的文本。
type HeaderView struct {
	NicknameInput   string
	NicknamePreview string
	BioInput        string
	BioPreview      string
}

// Editor 是单一所有者的编辑器状态。
type Editor struct {
	mu sync.Mutex

	store    *card.Store
	alloc    *card.Allocator
	views    *card.Views
	settings card.Settings
	header   HeaderView
	nickname *binding.Field
	bio      *binding.Field

	viewport  float64
	gap       float64
	dual      layout.MasonryResult
	dualValid bool
	relayouts int

	rev    uint64
	fonts  map[string]bool
	ts     layout.Typesetter
	render renderer.Renderer
	saver  *persist.Autosaver
	slot   persist.Slot
	logger *log.Logger
	now    func() time.Time
}

// New 以默认设置创建编辑器。调用 Load 从槽位恢复之前保存的状态。
func New(opts Options) (*Editor, error) {
	if opts.Typesetter == nil {
		return nil, errors.New("editor: typesetter is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	viewport := opts.ViewportWidth
	if viewport <= 0 {
		viewport = DefaultViewportWidth
	}
	gap := opts.Gap
	if gap <= 0 {
		gap = layout.DefaultGap
	}
	e := &Editor{
		store:    card.NewStore(),
		alloc:    card.NewAllocator(0),
		views:    card.NewViews(),
		settings: card.DefaultSettings(),
		viewport: viewport,
		gap:      gap,
		ts:       opts.Typesetter,
		render:   opts.Renderer,
		slot:     opts.Slot,
		fonts:    map[string]bool{},
		logger:   logger,
		now:      now,
	}
	for _, f := range opts.Fonts {
		e.fonts[strings.TrimSpace(f)] = true
	}
	e.bindHeader()
	if opts.Slot != nil {
		e.saver = persist.NewAutosaver(opts.Slot, opts.AutosaveDelay, e.autosaveSnapshot, logger)
	}
	return e, nil
}

func (e *Editor) bindHeader() {
	e.nickname = binding.NewField(e.settings.PersonalInfo.Nickname, func(v string) {
		e.settings.PersonalInfo.Nickname = v
	})
	e.nickname.Bind(binding.SideControl, func(v string) { e.header.NicknameInput = v })
	e.nickname.Bind(binding.SidePreview, func(v string) { e.header.NicknamePreview = v })
	e.bio = binding.NewField(e.settings.PersonalInfo.Bio, func(v string) {
		e.settings.PersonalInfo.Bio = v
	})
	e.bio.Bind(binding.SideControl, func(v string) { e.header.BioInput = v })
	e.bio.Bind(binding.SidePreview, func(v string) { e.header.BioPreview = v })
}

// Load 从槽位恢复状态。槽位为空或内容损坏时保留默认状态并记录警告，只有读取失败才返回错误。
func (e *Editor) Load(ctx context.Context) error {
	if e.slot == nil {
		return nil
	}
	data, ok, err := e.slot.Load(ctx)
	if err != nil {
		return fmt.Errorf("读取保存的状态失败: %w", err)
	}
	if !ok {
		e.logger.Info("no saved state found")
		return nil
	}
	st, err := codec.Decode(data)
	if err != nil {
		e.logger.Warn("saved state is corrupt, starting from defaults", "err", err)
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := codec.ApplyState(st, applyTarget{e}); err != nil {
		e.logger.Warn("some cards could not be restored", "err", err)
	}
	e.logger.Info("state restored", "cards", e.store.Len(), "counter", e.alloc.Counter())
	return nil
}

// Close 立即写入尚未执行的防抖保存。
func (e *Editor) Close() error {
	if e.saver == nil {
		return nil
	}
	e.saver.Flush()
	return e.saver.LastError()
}

// Settings 返回当前设置的副本。
func (e *Editor) Settings() card.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// Header 返回页面头部两侧视图的文本。
func (e *Editor) Header() HeaderView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.header
}

// Cards 返回某个容器内按显示顺序排列的卡片。
func (e *Editor) Cards(column card.Column) []card.Card {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Cards(column)
}

// Card 返回单张卡片。
func (e *Editor) Card(id int) (card.Card, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Get(id)
}

// CardView 返回卡片控件与预览两侧视图的副本。
func (e *Editor) CardView(id int) (card.ControlView, card.PreviewView, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cv, ok := e.views.Get(id)
	if !ok {
		return card.ControlView{}, card.PreviewView{}, false
	}
	return *cv.Control, *cv.Preview, true
}

// Counter 返回 ID 分配器的高水位。
func (e *Editor) Counter() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.alloc.Counter()
}

// Layout 返回最近一次成功的双列瀑布流结果。
func (e *Editor) Layout() (layout.MasonryResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dual, e.dualValid
}

// Relayouts 返回瀑布流成功重算的次数。
func (e *Editor) Relayouts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.relayouts
}

// ViewportWidth 返回预览区宽度。
func (e *Editor) ViewportWidth() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewport
}

// SetViewportWidth 对应窗口尺寸变化：更新预览区宽度并重新布局。宽度为 0 时保留之前的位置。
func (e *Editor) SetViewportWidth(width float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if width < 0 {
		width = 0
	}
	e.viewport = width
	e.relayoutLocked()
}

// Preview 按当前预览区宽度合成整页布局。
func (e *Editor) Preview() (*layout.Result, error) {
	e.mu.Lock()
	page, width := e.pageLocked(), e.viewport
	e.mu.Unlock()
	return layout.Compose(page, width, layout.ComposeOptions{Typesetter: e.ts, Gap: e.gap})
}

// Snapshot 返回指定格式的序列化文档。
func (e *Editor) Snapshot(schema codec.Schema) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return codec.Serialize(e.stateLocked(), schema)
}

func (e *Editor) stateLocked() codec.State {
	return codec.State{Settings: e.settings, Cards: e.store.All(), Counter: e.alloc.Counter()}
}

func (e *Editor) pageLocked() layout.Page {
	return layout.Page{
		Settings: e.settings,
		Single:   e.store.Cards(card.ColumnSingle),
		Dual:     e.store.Cards(card.ColumnDual),
	}
}

func (e *Editor) autosaveSnapshot() ([]byte, uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	data, err := codec.Serialize(e.stateLocked(), codec.SchemaAutosave)
	return data, e.rev, err
}

type saveMode int

const (
	saveDebounced saveMode = iota
	saveImmediate
)

// commitLocked 记录一次修改并安排保存：文本类编辑防抖，结构性操作立即写入。
func (e *Editor) commitLocked(mode saveMode) {
	e.rev++
	if e.saver == nil {
		return
	}
	if mode == saveDebounced {
		e.saver.Touch()
		return
	}
	data, err := codec.Serialize(e.stateLocked(), codec.SchemaAutosave)
	if err != nil {
		e.logger.Error("serialize state failed", "err", err)
		return
	}
	// 写入失败已由 Autosaver 记录，编辑器继续工作。
	_ = e.saver.SaveNow(context.Background(), data, e.rev)
}

// relayoutLocked 在当前预览区宽度下重新计算双列瀑布流。
func (e *Editor) relayoutLocked() {
	cards := e.store.Cards(card.ColumnDual)
	resolved := make([]card.Resolved, len(cards))
	for i, c := range cards {
		resolved[i] = card.Resolve(c, e.settings.GlobalCardStyles)
	}
	m, ok, err := layout.ArrangeDual(resolved, layout.ContentWidth(e.viewport), e.gap, e.ts)
	if err != nil {
		e.logger.Warn("masonry layout failed, keeping previous positions", "err", err)
		return
	}
	if !ok {
		e.logger.Debug("dual container has no width, keeping previous positions")
		return
	}
	e.dual = m
	e.dualValid = true
	e.relayouts++
}

// applyTarget 把 codec.Apply 的步骤落到编辑器上，调用方持有锁。
type applyTarget struct{ e *Editor }

func (t applyTarget) ApplySettings(s card.Settings) {
	e := t.e
	// 图片从不持久化，恢复时保留当前显示的头像与背景图。
	s.PersonalInfo.AvatarImage = e.settings.PersonalInfo.AvatarImage
	s.PersonalInfo.BackgroundImage = e.settings.PersonalInfo.BackgroundImage
	e.settings = s
	e.nickname.Sync(s.PersonalInfo.Nickname)
	e.bio.Sync(s.PersonalInfo.Bio)
}

func (t applyTarget) ResetCounter(n int) { t.e.alloc.Reset(n) }

func (t applyTarget) ClearCards() {
	t.e.store.Clear()
	t.e.views.Clear()
}

func (t applyTarget) RestoreCard(c card.Card) error {
	return t.e.addCardLocked(c)
}

func (t applyTarget) Relayout() { t.e.relayoutLocked() }
