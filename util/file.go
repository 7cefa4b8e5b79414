package util

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	nhttp "github.com/chaos-io/bgremover/util/http"
)

var (
	ErrNotImage = errors.New("content is not an image")
	ErrTooLarge = errors.New("content exceeds size limit")
)

// FetchedImage 下载并解码后的图片，Data 保留原始字节用于计算缓存 key
type FetchedImage struct {
	URL      string
	Data     []byte
	MIMEType string
	Image    image.Image
}

// DefaultMaxPixels 默认允许的最大像素数，解码前按图片头声明的宽高检查
const DefaultMaxPixels = 40_000_000

type ImageLoader struct {
	cli       nhttp.IClient
	maxBytes  int64
	maxPixels int64
}

type LoaderOption func(*ImageLoader)

// WithMaxPixels 限制宽*高，<= 0 时使用 DefaultMaxPixels
func WithMaxPixels(n int64) LoaderOption {
	return func(l *ImageLoader) {
		if n > 0 {
			l.maxPixels = n
		}
	}
}

func NewImageLoader(cli nhttp.IClient, maxBytes int64, opts ...LoaderOption) *ImageLoader {
	l := &ImageLoader{cli: cli, maxBytes: maxBytes, maxPixels: DefaultMaxPixels}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Fetch 下载图片并解码，按 EXIF 方向自动旋转
func (l *ImageLoader) Fetch(ctx context.Context, url string) (*FetchedImage, error) {
	var data []byte
	err := l.cli.DoHTTPRequest(ctx, &nhttp.RequestParam{
		RequestURI:       url,
		Method:           "GET",
		Response:         &data,
		MaxResponseBytes: l.maxBytes,
	})
	if errors.Is(err, nhttp.ErrBodyTooLarge) {
		return nil, fmt.Errorf("download image: %w (%d bytes max)", ErrTooLarge, l.maxBytes)
	}
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}

	if l.maxBytes > 0 && int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("download image: %w (%d > %d bytes)", ErrTooLarge, len(data), l.maxBytes)
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, fmt.Errorf("download image: %w (detected %s)", ErrNotImage, mt.String())
	}

	if err := l.checkDimensions(data); err != nil {
		return nil, err
	}

	img, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}

	Logger.Debug("image fetched",
		zap.String("url", url),
		zap.String("mime", mt.String()),
		zap.Int("bytes", len(data)),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()))

	return &FetchedImage{
		URL:      url,
		Data:     data,
		MIMEType: mt.String(),
		Image:    img,
	}, nil
}

// checkDimensions 只读图片头，像素数超限时拒绝，避免小文件声明巨大尺寸
func (l *ImageLoader) checkDimensions(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("decode image header: invalid size %dx%d", cfg.Width, cfg.Height)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > l.maxPixels {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, l.maxPixels)
	}
	return nil
}

// DecodeImage 解码图片字节
func DecodeImage(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}
