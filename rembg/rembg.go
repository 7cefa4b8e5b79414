package rembg

import (
	"context"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/chaos-io/bgremover/util"
)

// Segmenter 分割模型：固定分辨率的归一化张量 -> 同分辨率的显著性张量
type Segmenter interface {
	// InputSize 模型要求的输入宽高
	InputSize() image.Point
	Segment(ctx context.Context, input *Tensor) (*Tensor, error)
}

// Stage 流水线阶段名，用于耗时统计
type Stage string

const (
	StagePreprocess  Stage = "preprocess"
	StageInference   Stage = "inference"
	StagePostprocess Stage = "postprocess"
	StageComposite   Stage = "composite"
)

type StageObserver func(stage Stage, cost time.Duration)

type Remover struct {
	seg     Segmenter
	observe StageObserver
}

type Option func(*Remover)

func WithStageObserver(fn StageObserver) Option {
	return func(r *Remover) { r.observe = fn }
}

func NewRemover(seg Segmenter, opts ...Option) *Remover {
	r := &Remover{
		seg:     seg,
		observe: func(Stage, time.Duration) {},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Mask 预处理 -> 推理 -> 后处理，返回与原图同尺寸的 alpha 掩码
func (r *Remover) Mask(ctx context.Context, img image.Image) (*image.Gray, error) {
	size := img.Bounds().Size()

	start := time.Now()
	input, err := Preprocess(toNRGBA(img), r.seg.InputSize())
	if err != nil {
		return nil, fmt.Errorf("preprocess: %w", err)
	}
	r.observe(StagePreprocess, time.Since(start))

	start = time.Now()
	output, err := r.seg.Segment(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("segment: %w", err)
	}
	r.observe(StageInference, time.Since(start))

	start = time.Now()
	mask, err := Postprocess(output, size)
	if err != nil {
		return nil, err
	}
	r.observe(StagePostprocess, time.Since(start))

	if bounds, coverage, ok := MaskBounds(mask, ForegroundThreshold); ok {
		util.Logger.Debug("foreground detected", zap.Stringer("bounds", bounds), zap.Float64("coverage", coverage))
	} else {
		util.Logger.Debug("no foreground detected", zap.Stringer("size", size))
	}

	return mask, nil
}

// RemoveBackground 返回带透明背景的抠图
func (r *Remover) RemoveBackground(ctx context.Context, img image.Image) (*image.NRGBA, error) {
	mask, err := r.Mask(ctx, img)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := Cutout(img, mask)
	if err != nil {
		return nil, fmt.Errorf("cutout: %w", err)
	}
	r.observe(StageComposite, time.Since(start))
	return out, nil
}

// ReplaceBackground 抠图后叠加到 bg 上，bg 会被缩放到原图尺寸，结果不透明
func (r *Remover) ReplaceBackground(ctx context.Context, img, bg image.Image) (*image.NRGBA, error) {
	mask, err := r.Mask(ctx, img)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	fg, err := Cutout(img, mask)
	if err != nil {
		return nil, fmt.Errorf("cutout: %w", err)
	}
	out, err := Composite(fg, FitBackground(bg, fg.Rect.Size()))
	if err != nil {
		return nil, fmt.Errorf("composite: %w", err)
	}
	r.observe(StageComposite, time.Since(start))
	return out, nil
}
