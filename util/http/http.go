package http

import (
	"context"
	"errors"
	"time"
)

// ErrBodyTooLarge 响应体超过 RequestParam.MaxResponseBytes
var ErrBodyTooLarge = errors.New("response body too large")

//go:generate mockgen -destination=mocks/http.go -package=mocks . IClient
type IClient interface {
	DoHTTPRequest(ctx context.Context, requestParam *RequestParam) error
}

// RequestParam 描述一次 HTTP 调用
//
// Body 可以是 io.Reader、[]byte，其余类型按 JSON 序列化。
// Response 为 *[]byte 时写入原始响应体，否则按 JSON 反序列化。
type RequestParam struct {
	RequestURI string
	Method     string
	Header     map[string]string
	Body       interface{}
	Response   interface{}

	Timeout time.Duration
	// MaxResponseBytes 大于 0 时限制读取的响应体大小，超出时在读取过程中中止
	MaxResponseBytes int64
}
