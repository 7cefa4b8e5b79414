package rembg

import (
	"fmt"
	"image"
	"math"
)

// Postprocess 把模型输出还原成原图尺寸的 alpha 掩码
//
// 取第一个样本的第一个通道，双线性缩放到 size，再做全局 min-max 归一化到 0~255。
// max == min（例如纯色图）时不做缩放，整张掩码为 0；非有限值一律按 0 处理。
func Postprocess(t *Tensor, size image.Point) (*image.Gray, error) {
	if err := t.validate(); err != nil {
		return nil, fmt.Errorf("postprocess: %w", err)
	}
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("postprocess: invalid target size %v", size)
	}

	plane := make([]float32, size.X*size.Y)
	resizeBilinear(t.Plane(0, 0), t.Width(), t.Height(), plane, size.X, size.Y)

	mask := image.NewGray(image.Rect(0, 0, size.X, size.Y))
	lo, hi, ok := minMax(plane)
	if !ok || !(hi > lo) {
		return mask, nil
	}

	scale := hi - lo
	for i, v := range plane {
		if !finite(v) {
			continue
		}
		mask.Pix[i] = uint8((v - lo) / scale * 255)
	}
	return mask, nil
}

// minMax 忽略 NaN/Inf，ok=false 表示没有有限值
func minMax(data []float32) (lo, hi float32, ok bool) {
	lo = float32(math.Inf(1))
	hi = float32(math.Inf(-1))
	for _, v := range data {
		if !finite(v) {
			continue
		}
		ok = true
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi, ok
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
