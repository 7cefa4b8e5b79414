package rembg

import "fmt"

// Tensor 4 维张量 (N, C, H, W)，行优先连续存储
type Tensor struct {
	Shape [4]int
	Data  []float32
}

func NewTensor(n, c, h, w int) *Tensor {
	return &Tensor{
		Shape: [4]int{n, c, h, w},
		Data:  make([]float32, n*c*h*w),
	}
}

func (t *Tensor) Channels() int { return t.Shape[1] }
func (t *Tensor) Height() int   { return t.Shape[2] }
func (t *Tensor) Width() int    { return t.Shape[3] }

// Plane 返回第 n 个样本第 c 个通道的 H*W 切片，与 Data 共享内存
func (t *Tensor) Plane(n, c int) []float32 {
	size := t.Shape[2] * t.Shape[3]
	off := (n*t.Shape[1] + c) * size
	return t.Data[off : off+size]
}

func (t *Tensor) validate() error {
	if t == nil {
		return fmt.Errorf("tensor is nil")
	}
	size := 1
	for _, d := range t.Shape {
		if d <= 0 {
			return fmt.Errorf("invalid tensor shape %v", t.Shape)
		}
		size *= d
	}
	if len(t.Data) != size {
		return fmt.Errorf("tensor data length %d does not match shape %v", len(t.Data), t.Shape)
	}
	return nil
}

// Resize 对每个平面做双线性插值，返回新张量
func (t *Tensor) Resize(h, w int) *Tensor {
	out := NewTensor(t.Shape[0], t.Shape[1], h, w)
	for n := 0; n < t.Shape[0]; n++ {
		for c := 0; c < t.Shape[1]; c++ {
			resizeBilinear(t.Plane(n, c), t.Width(), t.Height(), out.Plane(n, c), w, h)
		}
	}
	return out
}
