package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chaos-io/bgremover/middleware"
)

type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
	GitBranch string `json:"git_branch"`
}

type RouterOptions struct {
	Build BuildInfo
	// Metrics 为 nil 时不挂载指标路由
	Metrics     http.Handler
	MetricsPath string
	// FilesDir 本地存储目录，非空时通过 /files 对外提供
	FilesDir string
}

func NewRouter(callable *CallableHandler, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": opts.Build.Version,
		})
	})

	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, opts.Build)
	})

	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(opts.Metrics))
	}

	if opts.FilesDir != "" {
		r.Static("/files", opts.FilesDir)
	}

	r.POST("/remove_background", callable.RemoveBackground)
	r.POST("/change_background", callable.ChangeBackground)

	return r
}
