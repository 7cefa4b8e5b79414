package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chaos-io/bgremover/service"
	"github.com/chaos-io/bgremover/util"
)

// RequesterHeader 由上游网关写入的调用方标识
const RequesterHeader = "X-Requester-Id"

const (
	OpRemoveBackground = service.OpRemoveBackground
	OpChangeBackground = service.OpChangeBackground
)

type BackgroundService interface {
	RemoveBackground(ctx context.Context, imageURL, requester string) (string, error)
	ChangeBackground(ctx context.Context, imageURL, bgURL, requester string) (string, error)
}

// RequestObserver 记录每个请求的操作名与结果 ok / error
type RequestObserver func(operation, status string)

type removeRequest struct {
	Data struct {
		ImageURL string `json:"image_url"`
	} `json:"data"`
}

type changeRequest struct {
	Data struct {
		ImageURL string `json:"image_url"`
		BgURL    string `json:"bg_url"`
	} `json:"data"`
}

type Result struct {
	ProcessedURL string `json:"processed_url,omitempty"`
	Error        string `json:"error,omitempty"`
}

type callableResponse struct {
	Result Result `json:"result"`
}

type callableError struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type callableErrorResponse struct {
	Error callableError `json:"error"`
}

type CallableHandler struct {
	svc     BackgroundService
	observe RequestObserver
}

func NewCallableHandler(svc BackgroundService, observe RequestObserver) *CallableHandler {
	if observe == nil {
		observe = func(string, string) {}
	}
	return &CallableHandler{svc: svc, observe: observe}
}

// RemoveBackground POST /remove_background {"data":{"image_url":"..."}}
func (h *CallableHandler) RemoveBackground(c *gin.Context) {
	var req removeRequest
	if !bind(c, &req) {
		h.observe(OpRemoveBackground, "invalid")
		return
	}

	h.call(c, OpRemoveBackground, func(ctx context.Context, requester string) (string, error) {
		return h.svc.RemoveBackground(ctx, req.Data.ImageURL, requester)
	})
}

// ChangeBackground POST /change_background {"data":{"image_url":"...","bg_url":"..."}}
func (h *CallableHandler) ChangeBackground(c *gin.Context) {
	var req changeRequest
	if !bind(c, &req) {
		h.observe(OpChangeBackground, "invalid")
		return
	}

	h.call(c, OpChangeBackground, func(ctx context.Context, requester string) (string, error) {
		return h.svc.ChangeBackground(ctx, req.Data.ImageURL, req.Data.BgURL, requester)
	})
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, callableErrorResponse{Error: callableError{
			Status:  "INVALID_ARGUMENT",
			Message: "Bad Request: " + err.Error(),
		}})
		return false
	}
	return true
}

// call 处理过程中的任何错误（包括 panic）都以 result.error 返回，不会冒泡到框架
func (h *CallableHandler) call(c *gin.Context, op string, fn func(ctx context.Context, requester string) (string, error)) {
	requester := strings.TrimSpace(c.GetHeader(RequesterHeader))

	url, err := func() (url string, err error) {
		defer func() {
			if r := recover(); r != nil {
				util.Logger.Error("panic recovered", zap.String("operation", op), zap.Any("panic", r), zap.Stack("stack"))
				err = fmt.Errorf("internal error: %v", r)
			}
		}()
		return fn(c.Request.Context(), requester)
	}()

	if err != nil {
		util.Logger.Warn("request failed",
			zap.String("operation", op),
			zap.String("requester", requester),
			zap.Error(err))
		h.observe(op, "error")
		c.JSON(http.StatusOK, callableResponse{Result: Result{Error: err.Error()}})
		return
	}

	h.observe(op, "ok")
	c.JSON(http.StatusOK, callableResponse{Result: Result{ProcessedURL: url}})
}
