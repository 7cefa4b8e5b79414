package onnx

import (
	"context"
	"fmt"
	"image"

	"github.com/chaos-io/bgremover/rembg"
)

// Segmenter 用本地 onnx 会话池实现 rembg.Segmenter
type Segmenter struct {
	pool *Pool
	size int
}

func NewSegmenter(pool *Pool, inputSize int) *Segmenter {
	return &Segmenter{pool: pool, size: inputSize}
}

// SessionFactory 按配置创建会话的工厂函数
func SessionFactory(cfg SessionConfig) Factory {
	return func() (Runner, error) {
		return NewSession(cfg)
	}
}

func (s *Segmenter) InputSize() image.Point {
	return image.Pt(s.size, s.size)
}

func (s *Segmenter) Segment(ctx context.Context, input *rembg.Tensor) (*rembg.Tensor, error) {
	want := [4]int{1, 3, s.size, s.size}
	if input == nil || input.Shape != want {
		return nil, fmt.Errorf("unexpected input shape, want %v", want)
	}

	session, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}

	data, err := s.run(session, input.Data)
	if err != nil {
		return nil, err
	}

	if len(data) != s.size*s.size {
		return nil, fmt.Errorf("unexpected output length %d", len(data))
	}
	return &rembg.Tensor{Shape: [4]int{1, 1, s.size, s.size}, Data: data}, nil
}

// run 执行推理并归还会话，出错或 panic 时丢弃会话，池会补一个新的
func (s *Segmenter) run(session Runner, in []float32) (data []float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("session run panic: %v", r)
		}
		if err != nil {
			s.pool.Discard(session)
			return
		}
		s.pool.Release(session)
	}()
	return session.Run(in)
}

func (s *Segmenter) Pool() *Pool {
	return s.pool
}
