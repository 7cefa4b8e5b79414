// Package storage 保存处理结果并返回可公开访问的地址
package storage

import (
	"context"
	"errors"
)

const (
	PrefixProcessed = "processed"
	PrefixCombined  = "combined"

	AnonymousRequester = "anon"
)

var ErrInvalidKey = errors.New("invalid object key")

// Publisher 上传一段字节并返回可访问的 URL
type Publisher interface {
	Upload(ctx context.Context, data []byte, contentType, key string) (string, error)
}
