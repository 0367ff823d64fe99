package canvasrenderer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/ByLCY/introcard/layout"
)

// loadImage 解析图片引用。远程地址（http/https）不会被下载，返回 nil 表示跳过。
func (r *Renderer) loadImage(ref string) (image.Image, error) {
	r.imageMu.Lock()
	if img, ok := r.imageCache[ref]; ok {
		r.imageMu.Unlock()
		return img, nil
	}
	r.imageMu.Unlock()

	var (
		data []byte
		err  error
	)
	lower := strings.ToLower(ref)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return nil, nil
	case strings.HasPrefix(ref, "built-in:") || strings.HasPrefix(ref, "builtin:"):
		name := strings.TrimPrefix(strings.TrimPrefix(ref, "built-in:"), "builtin:")
		blob, ok := r.imageBlobs[name]
		if !ok {
			return nil, fmt.Errorf("找不到内置图片资源 built-in:%s", name)
		}
		data = blob
	case strings.HasPrefix(lower, "data:"):
		data, err = decodeDataURI(ref)
		if err != nil {
			return nil, err
		}
	default:
		path := strings.TrimPrefix(ref, "file://")
		if !filepath.IsAbs(path) {
			if r.baseDir == "" {
				return nil, fmt.Errorf("未指定资源目录时不允许直接使用路径：%s", ref)
			}
			path = filepath.Join(r.baseDir, path)
		}
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取图片 %s 失败: %w", ref, err)
		}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("解码图片失败: %w", err)
	}
	r.imageMu.Lock()
	r.imageCache[ref] = img
	r.imageMu.Unlock()
	return img, nil
}

// decodeDataURI 解析 data:[<mediatype>][;base64],<data>。
func decodeDataURI(uri string) ([]byte, error) {
	comma := strings.IndexByte(uri, ',')
	if comma < 0 {
		return nil, fmt.Errorf("data URI 缺少数据段")
	}
	meta, payload := uri[len("data:"):comma], uri[comma+1:]
	if strings.HasSuffix(strings.ToLower(meta), ";base64") {
		payload = strings.Map(func(r rune) rune {
			if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
				return -1
			}
			return r
		}, payload)
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		}
		if err != nil {
			return nil, fmt.Errorf("data URI base64 解码失败: %w", err)
		}
		return data, nil
	}
	s, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("data URI 解码失败: %w", err)
	}
	return []byte(s), nil
}

// fitImage 按 cover/stretch/tile 把图片填充到目标框（设备像素），并应用圆角/圆形遮罩与不透明度。
func fitImage(src image.Image, box layout.ImageBox, scale float64) image.Image {
	tw := int(math.Ceil(box.Width * scale))
	th := int(math.Ceil(box.Height * scale))
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	sb := src.Bounds()
	if sb.Empty() {
		return dst
	}

	switch box.Fit {
	case "stretch":
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, draw.Src, nil)
	case "tile":
		// 平铺时图片保持原始尺寸（1 图片像素 = 1 px）。
		cw := int(math.Max(math.Round(float64(sb.Dx())*scale), 1))
		ch := int(math.Max(math.Round(float64(sb.Dy())*scale), 1))
		cell := image.NewRGBA(image.Rect(0, 0, cw, ch))
		draw.CatmullRom.Scale(cell, cell.Bounds(), src, sb, draw.Src, nil)
		for y := 0; y < th; y += ch {
			for x := 0; x < tw; x += cw {
				draw.Draw(dst, image.Rect(x, y, x+cw, y+ch), cell, image.Point{}, draw.Src)
			}
		}
	default:
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, coverRect(sb, tw, th), draw.Src, nil)
	}

	radius := box.Radius * scale
	if box.Circle {
		radius = math.Min(float64(tw), float64(th)) / 2
	}
	opacity := box.Opacity
	if opacity <= 0 || opacity > 1 {
		opacity = 1
	}
	if radius <= 0 && opacity >= 1 {
		return dst
	}
	out := image.NewRGBA(dst.Bounds())
	draw.DrawMask(out, out.Bounds(), dst, image.Point{}, roundedMask{w: tw, h: th, r: radius, alpha: opacity}, image.Point{}, draw.Over)
	return out
}

// coverRect 返回源图中按目标宽高比居中裁剪的区域，与 CSS background-size: cover 一致。
func coverRect(src image.Rectangle, tw, th int) image.Rectangle {
	sw, sh := float64(src.Dx()), float64(src.Dy())
	if sw <= 0 || sh <= 0 || tw <= 0 || th <= 0 {
		return src
	}
	target := float64(tw) / float64(th)
	if sw/sh > target {
		w := int(math.Round(sh * target))
		x := src.Min.X + (src.Dx()-w)/2
		return image.Rect(x, src.Min.Y, x+w, src.Max.Y)
	}
	h := int(math.Round(sw / target))
	y := src.Min.Y + (src.Dy()-h)/2
	return image.Rect(src.Min.X, y, src.Max.X, y+h)
}

// roundedMask 是圆角矩形的 alpha 遮罩，边缘做 1 像素抗锯齿。
type roundedMask struct {
	w, h  int
	r     float64
	alpha float64
}

func (m roundedMask) ColorModel() color.Model { return color.AlphaModel }

func (m roundedMask) Bounds() image.Rectangle { return image.Rect(0, 0, m.w, m.h) }

func (m roundedMask) At(x, y int) color.Color {
	px, py := float64(x)+0.5, float64(y)+0.5
	cov := 1.0
	if m.r > 0 {
		cx := math.Min(math.Max(px, m.r), float64(m.w)-m.r)
		cy := math.Min(math.Max(py, m.r), float64(m.h)-m.r)
		d := math.Hypot(px-cx, py-cy)
		cov = math.Min(math.Max(m.r-d+0.5, 0), 1)
	}
	return color.Alpha{A: uint8(math.Round(cov * m.alpha * 255))}
}
