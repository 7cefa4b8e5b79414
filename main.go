package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chaos-io/bgremover/cache"
	"github.com/chaos-io/bgremover/config"
	"github.com/chaos-io/bgremover/handler"
	"github.com/chaos-io/bgremover/jobs"
	"github.com/chaos-io/bgremover/metrics"
	"github.com/chaos-io/bgremover/rembg"
	"github.com/chaos-io/bgremover/rembg/kserve"
	"github.com/chaos-io/bgremover/rembg/onnx"
	"github.com/chaos-io/bgremover/service"
	"github.com/chaos-io/bgremover/storage"
	"github.com/chaos-io/bgremover/util"
	nhttp "github.com/chaos-io/bgremover/util/http"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

func main() {
	// 加载配置
	cfg := config.New()

	// 初始化日志
	if err := util.InitLogger(cfg.Server.Mode); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer util.Sync()

	util.Logger.Info("starting bgremover server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("git_branch", GitBranch))

	ctx := context.Background()
	scheduler := jobs.NewScheduler()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	// 分割模型
	segmenter, cleanup, err := newSegmenter(cfg, scheduler, m)
	if err != nil {
		util.Logger.Fatal("failed to initialize segmenter", zap.Error(err))
	}
	defer cleanup()

	// 结果存储
	publisher, filesDir, err := newPublisher(ctx, cfg, scheduler)
	if err != nil {
		util.Logger.Fatal("failed to initialize storage", zap.Error(err))
	}

	var removerOpts []rembg.Option
	var serviceOpts []service.Option
	if m != nil {
		removerOpts = append(removerOpts, rembg.WithStageObserver(func(s rembg.Stage, cost time.Duration) {
			m.ObserveStage(string(s), cost)
		}))
		serviceOpts = append(serviceOpts, service.WithCacheObserver(m.ObserveCache))
	}
	serviceOpts = append(serviceOpts, service.WithJPEGQuality(cfg.Output.JPEGQuality))

	// 初始化 Redis，连接失败时不启用缓存
	if cfg.Redis.Enabled {
		resultCache := cache.NewResultCache(&cfg.Redis)
		if err := resultCache.Ping(ctx); err != nil {
			util.Logger.Warn("redis connection failed, cache disabled", zap.Error(err))
			_ = resultCache.Close()
		} else {
			util.Logger.Info("redis connected successfully")
			serviceOpts = append(serviceOpts, service.WithCache(resultCache))
			defer resultCache.Close()
		}
	}

	loader := util.NewImageLoader(nhttp.NewHTTPClientWithTimeout(cfg.Fetch.Timeout), cfg.Fetch.MaxBytes,
		util.WithMaxPixels(cfg.Fetch.MaxPixels))
	svc := service.NewBackgroundService(loader, rembg.NewRemover(segmenter, removerOpts...), publisher, serviceOpts...)

	var observe handler.RequestObserver
	opts := handler.RouterOptions{
		Build: handler.BuildInfo{
			Version:   Version,
			BuildTime: BuildTime,
			GitCommit: GitCommit,
			GitBranch: GitBranch,
		},
		FilesDir: filesDir,
	}
	if m != nil {
		observe = m.ObserveRequest
		opts.Metrics = m.Handler()
		opts.MetricsPath = cfg.Metrics.Path
	}

	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(handler.NewCallableHandler(svc, observe), opts)

	scheduler.Start()
	defer scheduler.Stop()

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		util.Logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.Logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	util.Logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		util.Logger.Error("server shutdown failed", zap.Error(err))
	}
}

// newSegmenter 按配置选择本地 onnx 或远端 kserve
func newSegmenter(cfg *config.Config, scheduler *jobs.Scheduler, m *metrics.Metrics) (rembg.Segmenter, func(), error) {
	switch cfg.Segmenter.Backend {
	case "kserve":
		ks := cfg.Segmenter.KServe
		seg := kserve.NewSegmenter(kserve.Config{
			Endpoint:   ks.Endpoint,
			ModelName:  ks.ModelName,
			InputName:  cfg.Model.InputName,
			OutputName: cfg.Model.OutputName,
			InputSize:  cfg.Model.InputSize,
			Timeout:    ks.Timeout,
		}, nhttp.NewHTTPClientWithTimeout(ks.Timeout))
		return seg, func() {}, nil

	default:
		oc := cfg.Segmenter.ONNX
		done := util.Trace("load model")
		if err := onnx.InitRuntime(oc.LibraryPath); err != nil {
			return nil, nil, err
		}

		pool, err := onnx.NewPool(onnx.SessionFactory(onnx.SessionConfig{
			ModelPath:      cfg.Model.Path,
			InputName:      cfg.Model.InputName,
			OutputName:     cfg.Model.OutputName,
			InputSize:      cfg.Model.InputSize,
			IntraOpThreads: oc.IntraOpThreads,
		}), oc.PoolSize, oc.AcquireTimeout)
		if err != nil {
			onnx.DestroyRuntime()
			return nil, nil, err
		}
		done()

		if _, err := scheduler.Add(jobs.PoolHealthCheck(oc.HealthCheckSchedule, pool)); err != nil {
			pool.Close()
			onnx.DestroyRuntime()
			return nil, nil, err
		}
		if m != nil {
			m.RegisterPool(func() (int, int) {
				s := pool.Stats()
				return s.Idle, s.InUse
			})
		}

		return onnx.NewSegmenter(pool, cfg.Model.InputSize), func() {
			pool.Close()
			onnx.DestroyRuntime()
		}, nil
	}
}

// newPublisher 返回存储实现，本地存储时同时返回需要对外提供的目录
func newPublisher(ctx context.Context, cfg *config.Config, scheduler *jobs.Scheduler) (storage.Publisher, string, error) {
	switch cfg.Storage.Driver {
	case "minio":
		store, err := storage.NewMinioStore(ctx, &cfg.Storage.Minio)
		if err != nil {
			return nil, "", err
		}
		return store, "", nil

	default:
		lc := cfg.Storage.Local
		store, err := storage.NewLocalStore(lc.Dir, lc.BaseURL)
		if err != nil {
			return nil, "", err
		}
		if lc.Retention > 0 {
			if _, err := scheduler.Add(jobs.RetentionSweep(lc.SweepSchedule, store, lc.Retention)); err != nil {
				return nil, "", err
			}
		}
		return store, store.Dir(), nil
	}
}
