package rembg

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// 模型输入的归一化参数，每个通道相同
const (
	normMean = 0.5
	normStd  = 1.0
)

// Preprocess 把任意尺寸的图片变成模型输入张量
//
//	灰度图保留单通道，其余转为 RGB
//	HWC -> CHW，双线性缩放到 size
//	/255 映射到 [0,1]，再按 mean=0.5 std=1.0 归一化
//
// 输出形状恒为 (1, C, size.Y, size.X)
func Preprocess(img image.Image, size image.Point) (*Tensor, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("invalid model input size %v", size)
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	t := ToTensor(img).Resize(size.Y, size.X)
	for i, v := range t.Data {
		t.Data[i] = (v/255 - normMean) / normStd
	}
	return t, nil
}

// ToTensor 把图片转成 (1, C, H, W) 的 float32 张量，取值 0~255
func ToTensor(img image.Image) *Tensor {
	switch src := img.(type) {
	case *image.Gray:
		return grayToTensor(src)
	case *image.Gray16:
		g := image.NewGray(src.Bounds())
		draw.Draw(g, g.Bounds(), src, src.Bounds().Min, draw.Src)
		return grayToTensor(g)
	}

	rgba := toNRGBA(img)
	w, h := rgba.Rect.Dx(), rgba.Rect.Dy()
	t := NewTensor(1, 3, h, w)
	r, g, bl := t.Plane(0, 0), t.Plane(0, 1), t.Plane(0, 2)
	for y := 0; y < h; y++ {
		row := rgba.Pix[y*rgba.Stride : y*rgba.Stride+w*4]
		for x := 0; x < w; x++ {
			i := y*w + x
			r[i] = float32(row[x*4])
			g[i] = float32(row[x*4+1])
			bl[i] = float32(row[x*4+2])
		}
	}
	return t
}

func grayToTensor(src *image.Gray) *Tensor {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	t := NewTensor(1, 1, h, w)
	p := t.Plane(0, 0)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w]
		for x, v := range row {
			p[y*w+x] = float32(v)
		}
	}
	return t
}

// toNRGBA 转为非预乘的 NRGBA，原点移到 (0,0)
func toNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Rect.Min == (image.Point{}) {
		return nrgba
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
