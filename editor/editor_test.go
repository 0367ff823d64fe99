package editor

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/ByLCY/introcard/binding"
	"github.com/ByLCY/introcard/card"
	"github.com/ByLCY/introcard/codec"
	"github.com/ByLCY/introcard/layout"
	"github.com/ByLCY/introcard/persist"
	"github.com/ByLCY/introcard/renderer"
)

// stubTypesetter：每个字符宽 fontSize/2，每行高 lineHeight。
type stubTypesetter struct{}

func (stubTypesetter) LayoutLines(content string, width float64, font layout.FontResource, fontSize, lineHeight float64, wrap string) ([]layout.TextLine, error) {
	charW := fontSize / 2
	perLine := max(int(width/charW), 1)
	var lines []layout.TextLine
	for _, para := range strings.Split(content, "\n") {
		n := utf8.RuneCountInString(para)
		count := max((n+perLine-1)/perLine, 1)
		for i := 0; i < count; i++ {
			lines = append(lines, layout.TextLine{Content: para, Width: math.Min(float64(n)*charW, width), Height: lineHeight})
		}
	}
	return lines, nil
}

type recordingRenderer struct {
	got *layout.Result
	err error
}

func (r *recordingRenderer) Render(res *layout.Result) ([]byte, error) {
	r.got = res
	if r.err != nil {
		return nil, r.err
	}
	return []byte("png"), nil
}

func newTestEditor(t *testing.T, slot persist.Slot, rend renderer.Renderer) *Editor {
	t.Helper()
	e, err := New(Options{
		Typesetter:    stubTypesetter{},
		Renderer:      rend,
		Slot:          slot,
		AutosaveDelay: time.Hour,
		Now:           func() time.Time { return time.Date(2026, 5, 4, 23, 30, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

func TestNewRequiresTypesetter(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatalf("expected error without typesetter")
	}
}

func TestAddCardSavesImmediately(t *testing.T) {
	slot := persist.NewMemorySlot(nil)
	e := newTestEditor(t, slot, nil)

	a, err := e.AddCard(card.ColumnSingle)
	if err != nil {
		t.Fatalf("AddCard() error = %v", err)
	}
	b, _ := e.AddCard(card.ColumnDual)
	if a.ID != 1 || b.ID != 2 || e.Counter() != 2 {
		t.Fatalf("ids = %d, %d counter %d", a.ID, b.ID, e.Counter())
	}
	if slot.Saves() != 2 {
		t.Fatalf("structural operations must save immediately, saves=%d", slot.Saves())
	}
	if a.TextAlign != card.AlignDefault || a.Color != "#ffffff" || a.Opacity != 0.9 {
		t.Fatalf("new card must take global styles: %#v", a)
	}
	ctrl, _, ok := e.CardView(b.ID)
	if !ok || ctrl.Heading != "双列卡片 #2" || ctrl.AlignGroup != "card-align-option-2" {
		t.Fatalf("unexpected views %#v", ctrl)
	}
	if _, err := e.AddCard("triple"); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("want ErrInvalidValue, got %v", err)
	}
}

func TestEditTitleSyncsBothViewsAndDebounces(t *testing.T) {
	slot := persist.NewMemorySlot(nil)
	e := newTestEditor(t, slot, nil)
	c, _ := e.AddCard(card.ColumnSingle)
	saves := slot.Saves()

	if err := e.EditTitle(c.ID, binding.SideControl, "爱好"); err != nil {
		t.Fatalf("EditTitle() error = %v", err)
	}
	if err := e.EditContent(c.ID, binding.SidePreview, "跑步"); err != nil {
		t.Fatalf("EditContent() error = %v", err)
	}
	ctrl, prev, _ := e.CardView(c.ID)
	if ctrl.TitleInput != "爱好" || prev.Title != "爱好" || ctrl.ContentInput != "跑步" || prev.Content != "跑步" {
		t.Fatalf("views out of sync: %#v %#v", ctrl, prev)
	}
	got, _ := e.Card(c.ID)
	if got.Title != "爱好" || got.Content != "跑步" {
		t.Fatalf("record not updated: %#v", got)
	}
	if slot.Saves() != saves {
		t.Fatalf("text edits must be debounced")
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	data, _, _ := slot.Load(context.Background())
	if slot.Saves() != saves+1 || !strings.Contains(string(data), "爱好") {
		t.Fatalf("Close must flush the pending save: saves=%d %s", slot.Saves(), data)
	}
	if err := e.EditTitle(99, binding.SideControl, "x"); !errors.Is(err, card.ErrCardNotFound) {
		t.Fatalf("want ErrCardNotFound, got %v", err)
	}
}

func TestRelayoutOnlyForDualCards(t *testing.T) {
	e := newTestEditor(t, nil, nil)
	single, _ := e.AddCard(card.ColumnSingle)
	if e.Relayouts() != 0 {
		t.Fatalf("single card add must not relayout")
	}
	dual, _ := e.AddCard(card.ColumnDual)
	if e.Relayouts() != 1 {
		t.Fatalf("dual card add must relayout once, got %d", e.Relayouts())
	}
	_ = e.EditContent(single.ID, binding.SideControl, "hello")
	if e.Relayouts() != 1 {
		t.Fatalf("single card edit must not relayout")
	}
	_ = e.EditContent(dual.ID, binding.SideControl, "hello")
	if e.Relayouts() != 2 {
		t.Fatalf("dual card edit must relayout, got %d", e.Relayouts())
	}
	_ = e.SetCardColor(dual.ID, "#123456")
	if e.Relayouts() != 2 {
		t.Fatalf("color change must not relayout")
	}
	_ = e.SetLineHeight(2)
	if e.Relayouts() != 3 {
		t.Fatalf("line height change must relayout")
	}
}

func TestViewportZeroKeepsPreviousLayout(t *testing.T) {
	e := newTestEditor(t, nil, nil)
	for i := 0; i < 3; i++ {
		_, _ = e.AddCard(card.ColumnDual)
	}
	before, ok := e.Layout()
	if !ok || len(before.Placements) != 3 {
		t.Fatalf("expected a valid layout, got %#v", before)
	}
	e.SetViewportWidth(0)
	after, _ := e.Layout()
	if after.ColumnWidth != before.ColumnWidth || after.Height != before.Height {
		t.Fatalf("zero width must keep previous positions")
	}
	e.SetViewportWidth(670)
	wide, _ := e.Layout()
	if wide.ColumnWidth != (630-15)/2.0 {
		t.Fatalf("column width = %g", wide.ColumnWidth)
	}
}

func TestDeleteReorderAndMove(t *testing.T) {
	slot := persist.NewMemorySlot(nil)
	e := newTestEditor(t, slot, nil)
	for i := 0; i < 4; i++ {
		_, _ = e.AddCard(card.ColumnDual)
	}
	if err := e.DeleteCard(2); err != nil {
		t.Fatalf("DeleteCard() error = %v", err)
	}
	if err := e.DeleteCard(2); !errors.Is(err, card.ErrCardNotFound) {
		t.Fatalf("want ErrCardNotFound, got %v", err)
	}
	if _, _, ok := e.CardView(2); ok {
		t.Fatalf("views must be removed with the card")
	}
	if err := e.ReorderCards(card.ColumnDual, []int{4, 1, 3}); err != nil {
		t.Fatalf("ReorderCards() error = %v", err)
	}
	if err := e.ReorderCards(card.ColumnDual, []int{4, 1}); !errors.Is(err, card.ErrInvalidOrder) {
		t.Fatalf("want ErrInvalidOrder, got %v", err)
	}
	if err := e.MoveCard(3, 0); err != nil {
		t.Fatalf("MoveCard() error = %v", err)
	}
	var ids []int
	for _, c := range e.Cards(card.ColumnDual) {
		ids = append(ids, c.ID)
	}
	if len(ids) != 3 || ids[0] != 3 || ids[1] != 4 || ids[2] != 1 {
		t.Fatalf("unexpected order %v", ids)
	}
	next, _ := e.AddCard(card.ColumnSingle)
	if next.ID != 5 {
		t.Fatalf("ids must never be reused, got %d", next.ID)
	}
	if slot.Saves() != 8 {
		t.Fatalf("every structural change saves immediately, saves=%d", slot.Saves())
	}
}

func TestGlobalStylesPropagate(t *testing.T) {
	e := newTestEditor(t, nil, nil)
	a, _ := e.AddCard(card.ColumnSingle)
	b, _ := e.AddCard(card.ColumnDual)
	if err := e.SetGlobalColor("#FFEEDD"); err != nil {
		t.Fatalf("SetGlobalColor() error = %v", err)
	}
	if err := e.SetGlobalOpacity(0); err != nil {
		t.Fatalf("SetGlobalOpacity() error = %v", err)
	}
	for _, id := range []int{a.ID, b.ID} {
		c, _ := e.Card(id)
		if c.Color != "#ffeedd" || c.Opacity != card.MinOpacity {
			t.Fatalf("card %d not updated: %#v", id, c)
		}
	}
	if err := e.SetGlobalColor("red"); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("want ErrInvalidValue, got %v", err)
	}
	if err := e.SetGlobalAlign("default"); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("global align cannot be default: %v", err)
	}
	if err := e.SetCardAlign(a.ID, "center"); err != nil {
		t.Fatalf("SetCardAlign() error = %v", err)
	}
	if got := e.Settings().GlobalCardStyles.Color; got != "#ffeedd" {
		t.Fatalf("global color = %q", got)
	}
}

func TestHeaderBinding(t *testing.T) {
	e := newTestEditor(t, nil, nil)
	e.SetNickname(binding.SidePreview, "小林")
	e.SetBio(binding.SideControl, "喜欢写代码")
	h := e.Header()
	if h.NicknameInput != "小林" || h.NicknamePreview != "小林" || h.BioPreview != "喜欢写代码" {
		t.Fatalf("header views out of sync: %#v", h)
	}
	if s := e.Settings(); s.PersonalInfo.Nickname != "小林" || s.PersonalInfo.Bio != "喜欢写代码" {
		t.Fatalf("settings not updated: %#v", s.PersonalInfo)
	}
}

func TestLoadRestoresSavedState(t *testing.T) {
	doc := `{"personalInfo":{"nickname":"阿青","bio":"hi"},"globalCardStyles":{"lineHeight":"2"},
"cards":[{"id":3,"type":"single","title":"a"},{"id":8,"type":"dual","title":"b","textAlign":"center"}],"cardIdCounter":8}`
	slot := persist.NewMemorySlot([]byte(doc))
	e := newTestEditor(t, slot, nil)
	if err := e.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if e.Counter() != 8 || len(e.Cards(card.ColumnSingle)) != 1 || len(e.Cards(card.ColumnDual)) != 1 {
		t.Fatalf("state not restored: counter=%d", e.Counter())
	}
	if h := e.Header(); h.NicknameInput != "阿青" || h.BioPreview != "hi" {
		t.Fatalf("header not synced: %#v", h)
	}
	if _, prev, ok := e.CardView(8); !ok || prev.Title != "b" {
		t.Fatalf("restored card views missing")
	}
	if e.Relayouts() != 1 {
		t.Fatalf("restore must relayout once, got %d", e.Relayouts())
	}
	if slot.Saves() != 0 {
		t.Fatalf("restore must not write back")
	}
	if c, _ := e.AddCard(card.ColumnDual); c.ID != 9 {
		t.Fatalf("allocation after restore = %d", c.ID)
	}
}

func TestLoadCorruptStateStartsFromDefaults(t *testing.T) {
	e := newTestEditor(t, persist.NewMemorySlot([]byte("{not json")), nil)
	if err := e.Load(context.Background()); err != nil {
		t.Fatalf("corrupt state must not fail: %v", err)
	}
	if e.Counter() != 0 || e.Settings() != card.DefaultSettings() {
		t.Fatalf("expected default state")
	}
}

func TestImportIsAllOrNothing(t *testing.T) {
	e := newTestEditor(t, nil, nil)
	_, _ = e.AddCard(card.ColumnSingle)
	e.SetNickname(binding.SideControl, "keep")

	err := e.ImportJSON([]byte(`{"cards":[],"globalCardStyles":{}}`))
	if !errors.Is(err, codec.ErrMalformedDocument) {
		t.Fatalf("want ErrMalformedDocument, got %v", err)
	}
	if len(e.Cards(card.ColumnSingle)) != 1 || e.Settings().PersonalInfo.Nickname != "keep" {
		t.Fatalf("failed import must not change state")
	}

	if err := e.ImportJSON([]byte(`{"personalInfo":{},"globalCardStyles":{}}`)); err != nil {
		t.Fatalf("ImportJSON() error = %v", err)
	}
	if len(e.Cards(card.ColumnSingle)) != 0 || e.Settings().PersonalInfo.Nickname != "" {
		t.Fatalf("missing cards must restore zero cards")
	}
}

func TestImportKeepsUploadedImages(t *testing.T) {
	e := newTestEditor(t, nil, nil)
	e.SetBackgroundImage(`url("bg.png")`)
	if err := e.SetAvatarImage(image.NewRGBA(image.Rect(0, 0, 10, 10)), nil); err != nil {
		t.Fatalf("SetAvatarImage() error = %v", err)
	}
	exported, err := e.ExportJSON()
	if err != nil {
		t.Fatalf("ExportJSON() error = %v", err)
	}
	if strings.Contains(string(exported), "data:") {
		t.Fatalf("uploads must never be serialized")
	}
	if err := e.ImportJSON(exported); err != nil {
		t.Fatalf("ImportJSON() error = %v", err)
	}
	info := e.Settings().PersonalInfo
	if info.BackgroundImage != "bg.png" || !strings.HasPrefix(info.AvatarImage, "data:image/png;base64,") {
		t.Fatalf("uploaded images lost on import: %#v", info)
	}
}

func TestExportImageUsesFixedWidth(t *testing.T) {
	rend := &recordingRenderer{}
	e := newTestEditor(t, nil, rend)
	e.SetViewportWidth(1200)
	for i := 0; i < 3; i++ {
		c, _ := e.AddCard(card.ColumnDual)
		_ = e.EditContent(c.ID, binding.SideControl, strings.Repeat("x", 40*(i+1)))
	}
	before, _ := e.Layout()

	png, err := e.ExportImage(context.Background(), DefaultExportOptions())
	if err != nil || string(png) != "png" {
		t.Fatalf("ExportImage() = %q, %v", png, err)
	}
	if rend.got.Width != 600 || rend.got.Meta.Scale != 2 {
		t.Fatalf("export must use width 600 scale 2, got %g x%g", rend.got.Width, rend.got.Meta.Scale)
	}
	if m := rend.got.Dual.Masonry; m == nil || m.ColumnWidth != (560-15)/2.0 {
		t.Fatalf("masonry must be re-run at the export width: %#v", m)
	}
	after, _ := e.Layout()
	if after.ColumnWidth != before.ColumnWidth || after.Height != before.Height {
		t.Fatalf("export must not touch the on-screen layout")
	}
	if got := e.ExportFilename(); got != "自我介绍_2026-05-04.png" {
		t.Fatalf("filename = %q", got)
	}
}

func TestExportImageFailures(t *testing.T) {
	e := newTestEditor(t, nil, nil)
	if _, err := e.ExportImage(context.Background(), DefaultExportOptions()); !errors.Is(err, renderer.ErrRasterization) {
		t.Fatalf("missing renderer: want ErrRasterization, got %v", err)
	}
	narrow := &recordingRenderer{}
	e = newTestEditor(t, nil, narrow)
	if _, err := e.AddCard(card.ColumnDual); err != nil {
		t.Fatalf("AddCard() error = %v", err)
	}
	png, err := e.ExportImage(context.Background(), ExportOptions{Width: 40, Scale: 1})
	if png != nil || !errors.Is(err, renderer.ErrRasterization) || !errors.Is(err, layout.ErrNoContentWidth) {
		t.Fatalf("narrow export: want ErrNoContentWidth, got %q %v", png, err)
	}
	if narrow.got != nil {
		t.Fatalf("narrow export must not reach the renderer")
	}

	boom := errors.New("boom")
	e = newTestEditor(t, nil, &recordingRenderer{err: boom})
	png, err = e.ExportImage(context.Background(), DefaultExportOptions())
	if png != nil || !errors.Is(err, renderer.ErrRasterization) || !errors.Is(err, boom) {
		t.Fatalf("want wrapped ErrRasterization and no bytes, got %q %v", png, err)
	}
}

type cancelCropper struct{}

func (cancelCropper) Open(image.Image, Constraints) (image.Image, error) { return nil, ErrCropCancelled }

func TestCenterCropper(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 300, 100))
	for x := 100; x < 200; x++ {
		for y := 0; y < 100; y++ {
			src.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	out, err := CenterCropper{}.Open(src, AvatarConstraints)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if b := out.Bounds(); b.Dx() != 200 || b.Dy() != 200 {
		t.Fatalf("unexpected size %v", b)
	}
	if r, _, _, _ := out.At(5, 100).RGBA(); r>>8 < 200 {
		t.Fatalf("crop must keep the center of the image, got r=%d", r>>8)
	}

	e := newTestEditor(t, nil, nil)
	if err := e.SetAvatarImage(src, cancelCropper{}); !errors.Is(err, ErrCropCancelled) {
		t.Fatalf("want ErrCropCancelled, got %v", err)
	}
	if e.Settings().PersonalInfo.AvatarImage != "" {
		t.Fatalf("cancelled crop must not change the avatar")
	}
}

func TestSQLiteBackedEditorRoundTrip(t *testing.T) {
	store, err := persist.OpenSQLiteInMemory()
	if err != nil {
		t.Fatalf("OpenSQLiteInMemory() error = %v", err)
	}
	defer store.Close()
	slot := store.Slot(codec.StorageKey)

	e := newTestEditor(t, slot, nil)
	c, _ := e.AddCard(card.ColumnDual)
	_ = e.EditTitle(c.ID, binding.SideControl, "标题")
	_ = e.SetShadow(false)

	reloaded := newTestEditor(t, slot, nil)
	if err := reloaded.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	got, ok := reloaded.Card(c.ID)
	if !ok || got.Title != "标题" || reloaded.Settings().GlobalCardStyles.Shadow {
		t.Fatalf("state not persisted: %#v shadow=%v", got, reloaded.Settings().GlobalCardStyles.Shadow)
	}
}
