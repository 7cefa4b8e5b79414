package rembg

import "image"

// ForegroundThreshold 掩码值大于该值的像素视为主体
const ForegroundThreshold = 204

// MaskBounds 返回 mask 中大于 threshold 的像素的外接矩形及其占比，
// 没有主体像素时 ok 为 false
func MaskBounds(mask *image.Gray, threshold uint8) (bounds image.Rectangle, coverage float64, ok bool) {
	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return image.Rectangle{}, 0, false
	}

	minX, minY := w, h
	maxX, maxY := -1, -1
	count := 0

	for y := 0; y < h; y++ {
		row := mask.Pix[y*mask.Stride : y*mask.Stride+w]
		for x, v := range row {
			if v <= threshold {
				continue
			}
			count++
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			maxY = y
		}
	}

	if count == 0 {
		return image.Rectangle{}, 0, false
	}

	bounds = image.Rect(minX, minY, maxX+1, maxY+1).Add(b.Min)
	return bounds, float64(count) / float64(w*h), true
}
