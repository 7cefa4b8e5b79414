package rembg

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// Cutout 复制原图 RGB，把 mask 作为 alpha 通道，得到抠图结果
func Cutout(img image.Image, mask *image.Gray) (*image.NRGBA, error) {
	b := img.Bounds()
	if b.Dx() != mask.Rect.Dx() || b.Dy() != mask.Rect.Dy() {
		return nil, fmt.Errorf("mask size %v does not match image size %v", mask.Rect.Size(), b.Size())
	}

	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)

	w, h := b.Dx(), b.Dy()
	for y := 0; y < h; y++ {
		mrow := mask.Pix[y*mask.Stride : y*mask.Stride+w]
		orow := out.Pix[y*out.Stride : y*out.Stride+w*4]
		for x, a := range mrow {
			orow[x*4+3] = a
		}
	}
	return out, nil
}

// Composite 把前景按 over 规则叠加到背景上：out = fg*a + bg*(1-a)
// 背景必须和前景尺寸一致，结果丢弃 alpha（全部不透明）
func Composite(fg *image.NRGBA, bg image.Image) (*image.NRGBA, error) {
	fb, bb := fg.Bounds(), bg.Bounds()
	if fb.Dx() != bb.Dx() || fb.Dy() != bb.Dy() {
		return nil, fmt.Errorf("background size %v does not match foreground size %v", bb.Size(), fb.Size())
	}

	canvas := image.NewRGBA(image.Rect(0, 0, fb.Dx(), fb.Dy()))
	draw.Draw(canvas, canvas.Bounds(), bg, bb.Min, draw.Src)
	draw.Draw(canvas, canvas.Bounds(), fg, fb.Min, draw.Over)

	return flatten(canvas), nil
}

// flatten 去掉 alpha，保留非预乘的颜色值
func flatten(img *image.RGBA) *image.NRGBA {
	out := image.NewNRGBA(img.Rect)
	draw.Draw(out, out.Rect, img, img.Rect.Min, draw.Src)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xff
	}
	return out
}
