package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultTimeout = 30 * time.Second

// maxErrorBody 错误信息里最多带上的响应体长度
const maxErrorBody = 512

type HTTPClient struct {
	client *resty.Client
}

func NewHTTPClient() IClient {
	return NewHTTPClientWithTimeout(defaultTimeout)
}

func NewHTTPClientWithTimeout(timeout time.Duration) IClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		client: resty.New().SetTimeout(timeout),
	}
}

func (c *HTTPClient) DoHTTPRequest(ctx context.Context, requestParam *RequestParam) error {
	if requestParam == nil {
		return errors.New("request param is nil")
	}

	if requestParam.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, requestParam.Timeout)
		defer cancel()
	}

	req := c.client.R().SetContext(ctx)
	if requestParam.MaxResponseBytes > 0 {
		req.SetResponseBodyLimit(int(requestParam.MaxResponseBytes))
	}
	if len(requestParam.Header) > 0 {
		req.SetHeaders(requestParam.Header)
	}

	switch body := requestParam.Body.(type) {
	case nil:
	case io.Reader:
		req.SetBody(body)
	case []byte:
		req.SetBody(body)
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		if _, ok := requestParam.Header["Content-Type"]; !ok {
			req.SetHeader("Content-Type", "application/json")
		}
		req.SetBody(data)
	}

	method := requestParam.Method
	if method == "" {
		method = resty.MethodGet
	}

	resp, err := req.Execute(method, requestParam.RequestURI)
	if errors.Is(err, resty.ErrResponseBodyTooLarge) {
		return fmt.Errorf("do request: %w (limit %d bytes)", ErrBodyTooLarge, requestParam.MaxResponseBytes)
	}
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}

	if resp.IsError() {
		body := resp.Body()
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return fmt.Errorf("HTTP request failed with status %d: %s", resp.StatusCode(), string(body))
	}

	switch out := requestParam.Response.(type) {
	case nil:
	case *[]byte:
		*out = resp.Body()
	default:
		if len(resp.Body()) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
