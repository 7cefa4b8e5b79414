// Package service 串起下载、抠图、合成、编码、上传
package service

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/chaos-io/bgremover/cache"
	"github.com/chaos-io/bgremover/rembg"
	"github.com/chaos-io/bgremover/storage"
	"github.com/chaos-io/bgremover/util"
)

const (
	OpRemoveBackground = "remove_background"
	OpChangeBackground = "change_background"

	DefaultJPEGQuality = 75
)

var (
	ErrMissingImageURL   = errors.New("No image_url provided")
	ErrMissingBackground = errors.New("Missing image_url or bg_url")
)

type Fetcher interface {
	Fetch(ctx context.Context, url string) (*util.FetchedImage, error)
}

// ResultCache 可选的结果缓存，未命中时 Get 返回空串
type ResultCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, url string) error
}

type CacheObserver func(hit bool)

type BackgroundService struct {
	fetcher     Fetcher
	remover     *rembg.Remover
	publisher   storage.Publisher
	cache       ResultCache
	onCache     CacheObserver
	jpegQuality int
}

type Option func(*BackgroundService)

func WithCache(c ResultCache) Option {
	return func(s *BackgroundService) { s.cache = c }
}

func WithCacheObserver(fn CacheObserver) Option {
	return func(s *BackgroundService) { s.onCache = fn }
}

func WithJPEGQuality(q int) Option {
	return func(s *BackgroundService) {
		if q >= 1 && q <= 100 {
			s.jpegQuality = q
		}
	}
}

func NewBackgroundService(fetcher Fetcher, remover *rembg.Remover, publisher storage.Publisher, opts ...Option) *BackgroundService {
	s := &BackgroundService{
		fetcher:     fetcher,
		remover:     remover,
		publisher:   publisher,
		onCache:     func(bool) {},
		jpegQuality: DefaultJPEGQuality,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RemoveBackground 抠图并上传 PNG 到 processed/，返回地址
func (s *BackgroundService) RemoveBackground(ctx context.Context, imageURL, requester string) (string, error) {
	defer util.Trace(OpRemoveBackground)()

	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		return "", ErrMissingImageURL
	}
	if err := rembg.ValidateImageURL(imageURL); err != nil {
		return "", err
	}

	src, err := s.fetcher.Fetch(ctx, imageURL)
	if err != nil {
		return "", err
	}

	cacheKey := cache.Key(OpRemoveBackground, requester, digest(src.Data))
	if url := s.lookup(ctx, cacheKey); url != "" {
		return url, nil
	}

	cutout, err := s.remover.RemoveBackground(ctx, src.Image)
	if err != nil {
		return "", err
	}

	data, err := encode(cutout, imaging.PNG)
	if err != nil {
		return "", err
	}

	url, err := s.publish(ctx, data, "image/png", storage.ObjectKey(storage.PrefixProcessed, requester, "png"))
	if err != nil {
		return "", err
	}
	s.store(ctx, cacheKey, url)
	return url, nil
}

// ChangeBackground 抠图后合成到 bgURL 指定的图片或纯色上，上传 JPEG 到 combined/
func (s *BackgroundService) ChangeBackground(ctx context.Context, imageURL, bgURL, requester string) (string, error) {
	defer util.Trace(OpChangeBackground)()

	imageURL, bgURL = strings.TrimSpace(imageURL), strings.TrimSpace(bgURL)
	if imageURL == "" || bgURL == "" {
		return "", ErrMissingBackground
	}
	if err := rembg.ValidateImageURL(imageURL); err != nil {
		return "", err
	}

	// 先解析背景，颜色写错时不必下载前景
	isColor := !rembg.IsImageURL(bgURL)
	var (
		bgColor  color.NRGBA
		bgDigest string
	)
	if isColor {
		c, err := rembg.ParseColor(bgURL)
		if err != nil {
			return "", err
		}
		bgColor = c
		bgDigest = fmt.Sprintf("color:%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
	} else if err := rembg.ValidateImageURL(bgURL); err != nil {
		return "", err
	}

	src, err := s.fetcher.Fetch(ctx, imageURL)
	if err != nil {
		return "", err
	}

	var bg image.Image
	if isColor {
		bg = rembg.SolidBackground(bgColor, src.Image.Bounds().Size())
	} else {
		fetched, err := s.fetcher.Fetch(ctx, bgURL)
		if err != nil {
			return "", fmt.Errorf("background: %w", err)
		}
		bg = fetched.Image
		bgDigest = digest(fetched.Data)
	}

	cacheKey := cache.Key(OpChangeBackground, requester, digest(src.Data), bgDigest)
	if url := s.lookup(ctx, cacheKey); url != "" {
		return url, nil
	}

	combined, err := s.remover.ReplaceBackground(ctx, src.Image, bg)
	if err != nil {
		return "", err
	}

	data, err := encode(combined, imaging.JPEG, imaging.JPEGQuality(s.jpegQuality))
	if err != nil {
		return "", err
	}

	url, err := s.publish(ctx, data, "image/jpeg", storage.ObjectKey(storage.PrefixCombined, requester, "jpg"))
	if err != nil {
		return "", err
	}
	s.store(ctx, cacheKey, url)
	return url, nil
}

func (s *BackgroundService) publish(ctx context.Context, data []byte, contentType, key string) (string, error) {
	url, err := s.publisher.Upload(ctx, data, contentType, key)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	util.Logger.Info("result uploaded", zap.String("key", key), zap.Int("bytes", len(data)))
	return url, nil
}

// lookup 缓存出错只记日志，按未命中处理
func (s *BackgroundService) lookup(ctx context.Context, key string) string {
	if s.cache == nil {
		return ""
	}
	url, err := s.cache.Get(ctx, key)
	if err != nil {
		util.Logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return ""
	}
	s.onCache(url != "")
	return url
}

func (s *BackgroundService) store(ctx context.Context, key, url string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, url); err != nil {
		util.Logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func encode(img image.Image, format imaging.Format, opts ...imaging.EncodeOption) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, opts...); err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

func digest(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
