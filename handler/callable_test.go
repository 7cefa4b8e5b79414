package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type call struct {
	op        string
	imageURL  string
	bgURL     string
	requester string
}

type fakeService struct {
	mu    sync.Mutex
	calls []call
	url   string
	err   error
	panic bool
}

func (f *fakeService) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeService) RemoveBackground(_ context.Context, imageURL, requester string) (string, error) {
	f.record(call{op: OpRemoveBackground, imageURL: imageURL, requester: requester})
	if f.panic {
		panic("index out of range")
	}
	return f.url, f.err
}

func (f *fakeService) ChangeBackground(_ context.Context, imageURL, bgURL, requester string) (string, error) {
	f.record(call{op: OpChangeBackground, imageURL: imageURL, bgURL: bgURL, requester: requester})
	if f.panic {
		panic("nil map")
	}
	return f.url, f.err
}

type observed struct {
	mu     sync.Mutex
	events []string
}

func (o *observed) observe(op, status string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, op+":"+status)
}

func doPost(r http.Handler, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) Result {
	t.Helper()
	var resp callableResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Result
}

func TestCallableHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		body       string
		header     map[string]string
		svc        *fakeService
		wantCode   int
		wantResult Result
		wantCall   *call
		wantEvent  string
	}{
		{
			name:       "去背景成功",
			path:       "/remove_background",
			body:       `{"data":{"image_url":"http://x/a.png"}}`,
			header:     map[string]string{RequesterHeader: "user-1"},
			svc:        &fakeService{url: "http://files/processed/user-1_x.png"},
			wantCode:   http.StatusOK,
			wantResult: Result{ProcessedURL: "http://files/processed/user-1_x.png"},
			wantCall:   &call{op: OpRemoveBackground, imageURL: "http://x/a.png", requester: "user-1"},
			wantEvent:  "remove_background:ok",
		},
		{
			name:       "换背景成功",
			path:       "/change_background",
			body:       `{"data":{"image_url":"http://x/a.png","bg_url":"#FF0000"}}`,
			svc:        &fakeService{url: "http://files/combined/anon_x.jpg"},
			wantCode:   http.StatusOK,
			wantResult: Result{ProcessedURL: "http://files/combined/anon_x.jpg"},
			wantCall:   &call{op: OpChangeBackground, imageURL: "http://x/a.png", bgURL: "#FF0000"},
			wantEvent:  "change_background:ok",
		},
		{
			name:       "业务错误",
			path:       "/remove_background",
			body:       `{"data":{}}`,
			svc:        &fakeService{err: errors.New("No image_url provided")},
			wantCode:   http.StatusOK,
			wantResult: Result{Error: "No image_url provided"},
			wantCall:   &call{op: OpRemoveBackground},
			wantEvent:  "remove_background:error",
		},
		{
			name:       "缺少data字段",
			path:       "/change_background",
			body:       `{}`,
			svc:        &fakeService{err: errors.New("Missing image_url or bg_url")},
			wantCode:   http.StatusOK,
			wantResult: Result{Error: "Missing image_url or bg_url"},
			wantCall:   &call{op: OpChangeBackground},
			wantEvent:  "change_background:error",
		},
		{
			name:       "panic被恢复",
			path:       "/change_background",
			body:       `{"data":{"image_url":"http://x/a.png","bg_url":"red"}}`,
			svc:        &fakeService{panic: true},
			wantCode:   http.StatusOK,
			wantResult: Result{Error: "internal error: nil map"},
			wantCall:   &call{op: OpChangeBackground, imageURL: "http://x/a.png", bgURL: "red"},
			wantEvent:  "change_background:error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			obs := &observed{}
			r := NewRouter(NewCallableHandler(tt.svc, obs.observe), RouterOptions{})
			rec := doPost(r, tt.path, tt.body, tt.header)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantResult, decodeResult(t, rec))
			require.Len(t, tt.svc.calls, 1)
			assert.Equal(t, *tt.wantCall, tt.svc.calls[0])
			assert.Equal(t, []string{tt.wantEvent}, obs.events)
		})
	}
}

func TestCallableHandler_MalformedJSON(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	obs := &observed{}
	r := NewRouter(NewCallableHandler(svc, obs.observe), RouterOptions{})

	for _, path := range []string{"/remove_background", "/change_background"} {
		rec := doPost(r, path, `{"data":`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var resp callableErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "INVALID_ARGUMENT", resp.Error.Status)
		assert.NotEmpty(t, resp.Error.Message)
	}
	assert.Empty(t, svc.calls)
	assert.Equal(t, []string{"remove_background:invalid", "change_background:invalid"}, obs.events)
}

func TestRouter_Endpoints(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "processed"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "processed", "a.png"), []byte("png"), 0o644))

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("bgremover_requests_total 1"))
	})
	r := NewRouter(NewCallableHandler(&fakeService{}, nil), RouterOptions{
		Build:       BuildInfo{Version: "v1.2.3", GitCommit: "abc"},
		Metrics:     metrics,
		MetricsPath: "/metrics",
		FilesDir:    dir,
	})

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","version":"v1.2.3"}`, rec.Body.String())

	rec = get("/version")
	assert.Equal(t, http.StatusOK, rec.Code)
	var info BuildInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "abc", info.GitCommit)

	rec = get("/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bgremover_requests_total")

	rec = get("/files/processed/a.png")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png", rec.Body.String())
}
