package renderer

import (
	"errors"

	"github.com/ByLCY/introcard/layout"
)

// ErrRasterization 表示页面无法光栅化为图片，此时不产生任何输出。
var ErrRasterization = errors.New("rasterization failed")

// Renderer 将布局结果输出为 PNG 图片。
// Render 返回编码后的字节；失败时返回包装了 ErrRasterization 的错误。
type Renderer interface {
	Render(result *layout.Result) ([]byte, error)
}
