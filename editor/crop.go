package editor

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

// ErrCropCancelled 表示用户关闭了裁剪界面，没有产生新图片。
var ErrCropCancelled = errors.New("crop cancelled")

// Constraints 是裁剪约束：宽高比与输出尺寸（px）。
type Constraints struct {
	Aspect float64
	Width  int
	Height int
}

// AvatarConstraints 是头像的裁剪约束：正方形，输出 200×200。
var AvatarConstraints = Constraints{Aspect: 1, Width: 200, Height: 200}

// Cropper 是外部的图片裁剪界面。
type Cropper interface {
	Open(src image.Image, c Constraints) (image.Image, error)
}

// CenterCropper 按宽高比截取图片中央区域并缩放到目标尺寸，不需要交互。
type CenterCropper struct{}

func (CenterCropper) Open(src image.Image, c Constraints) (image.Image, error) {
	if src == nil {
		return nil, ErrCropCancelled
	}
	b := src.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("crop: empty source image")
	}
	aspect := c.Aspect
	if aspect <= 0 {
		aspect = float64(b.Dx()) / float64(b.Dy())
	}
	w, h := b.Dx(), b.Dy()
	if float64(w)/float64(h) > aspect {
		w = int(float64(h)*aspect + 0.5)
	} else {
		h = int(float64(w)/aspect + 0.5)
	}
	w, h = max(w, 1), max(h, 1)
	x0 := b.Min.X + (b.Dx()-w)/2
	y0 := b.Min.Y + (b.Dy()-h)/2
	region := image.Rect(x0, y0, x0+w, y0+h)

	outW, outH := c.Width, c.Height
	if outW <= 0 || outH <= 0 {
		outW, outH = w, h
	}
	dst := image.NewRGBA(image.Rect(0, 0, outW, outH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, region, draw.Src, nil)
	return dst, nil
}

// SetAvatarImage 把上传的图片交给裁剪界面，结果以 PNG data URI 保存为头像。
// 头像属于上传内容，不会持久化；取消裁剪时头像保持不变并返回 ErrCropCancelled。
func (e *Editor) SetAvatarImage(src image.Image, cropper Cropper) error {
	if cropper == nil {
		cropper = CenterCropper{}
	}
	out, err := cropper.Open(src, AvatarConstraints)
	if err != nil {
		return err
	}
	if out == nil {
		return ErrCropCancelled
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return fmt.Errorf("编码头像失败: %w", err)
	}
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())

	e.mu.Lock()
	defer e.mu.Unlock()
	e.settings.PersonalInfo.AvatarImage = uri
	e.logger.Debug("avatar updated", "width", out.Bounds().Dx(), "height", out.Bounds().Dy())
	return nil
}

// ClearAvatar 移除头像。
func (e *Editor) ClearAvatar() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settings.PersonalInfo.AvatarImage = ""
}
