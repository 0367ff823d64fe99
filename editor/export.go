package editor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ByLCY/introcard/codec"
	"github.com/ByLCY/introcard/layout"
	"github.com/ByLCY/introcard/renderer"
)

// ExportOptions 控制图片导出的固定宽度与分辨率倍数。
type ExportOptions struct {
	Width float64
	Scale float64
}

// DefaultExportOptions 返回 600px 宽、2 倍分辨率的导出设置。
func DefaultExportOptions() ExportOptions {
	return ExportOptions{Width: 600, Scale: 2}
}

// ExportImage 在页面的独立快照上按固定宽度重新合成（双列瀑布流按导出宽度重算），再光栅化为 PNG。
// 屏幕上的布局不受影响。
func (e *Editor) ExportImage(ctx context.Context, opts ExportOptions) ([]byte, error) {
	res, err := e.ComposeExport(opts)
	if err != nil {
		return nil, err
	}
	if e.render == nil {
		return nil, fmt.Errorf("%w: no renderer configured", renderer.ErrRasterization)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := e.now()
	png, err := e.render.Render(res)
	if err != nil {
		e.logger.Error("export image failed", "err", err)
		if errors.Is(err, renderer.ErrRasterization) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", renderer.ErrRasterization, err)
	}
	e.logger.Info("image exported", "width", res.Width, "height", res.Height, "scale", opts.Scale, "bytes", len(png), "took", e.now().Sub(start))
	return png, nil
}

// ComposeExport 返回导出图片所用的布局结果。
func (e *Editor) ComposeExport(opts ExportOptions) (*layout.Result, error) {
	def := DefaultExportOptions()
	if opts.Width <= 0 {
		opts.Width = def.Width
	}
	if opts.Scale <= 0 {
		opts.Scale = def.Scale
	}
	e.mu.Lock()
	page := e.pageLocked()
	e.mu.Unlock()

	res, err := layout.Compose(page, opts.Width, layout.ComposeOptions{Typesetter: e.ts, Gap: e.gap})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", renderer.ErrRasterization, err)
	}
	res.Meta.Scale = opts.Scale
	return res, nil
}

// ExportJSON 返回可下载的配置文件内容（导出格式）。
func (e *Editor) ExportJSON() ([]byte, error) {
	return e.Snapshot(codec.SchemaExport)
}

// ImportJSON 读取配置文件并整体恢复状态，随后立即保存。文档校验失败时状态保持不变。
func (e *Editor) ImportJSON(data []byte) error {
	st, err := codec.Decode(data)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	applyErr := codec.ApplyState(st, applyTarget{e})
	e.commitLocked(saveImmediate)
	e.logger.Info("configuration imported", "cards", e.store.Len(), "counter", e.alloc.Counter())
	return applyErr
}

// ExportFilename 返回导出图片的默认文件名，日期取 UTC。
func (e *Editor) ExportFilename() string {
	return FilenameFor(e.now())
}

// FilenameFor 按日期生成导出文件名。
func FilenameFor(t time.Time) string {
	return "自我介绍_" + t.UTC().Format(time.DateOnly) + ".png"
}
