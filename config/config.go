package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "BGREMOVER"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Model     ModelConfig     `mapstructure:"model"`
	Segmenter SegmenterConfig `mapstructure:"segmenter"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Output    OutputConfig    `mapstructure:"output"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ModelConfig 模型的固定输入分辨率与输入输出张量名
type ModelConfig struct {
	Path       string `mapstructure:"path"`
	InputSize  int    `mapstructure:"input_size"`
	InputName  string `mapstructure:"input_name"`
	OutputName string `mapstructure:"output_name"`
}

type SegmenterConfig struct {
	// Backend 取值 onnx 或 kserve
	Backend string       `mapstructure:"backend"`
	ONNX    ONNXConfig   `mapstructure:"onnx"`
	KServe  KServeConfig `mapstructure:"kserve"`
}

type ONNXConfig struct {
	LibraryPath         string        `mapstructure:"library_path"`
	PoolSize            int           `mapstructure:"pool_size"`
	AcquireTimeout      time.Duration `mapstructure:"acquire_timeout"`
	IntraOpThreads      int           `mapstructure:"intra_op_threads"`
	HealthCheckSchedule string        `mapstructure:"health_check_schedule"`
}

type KServeConfig struct {
	Endpoint  string        `mapstructure:"endpoint"`
	ModelName string        `mapstructure:"model_name"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type FetchConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxBytes int64         `mapstructure:"max_bytes"`
	// MaxPixels 宽*高上限，按图片头检查，不解码像素
	MaxPixels int64 `mapstructure:"max_pixels"`
}

type OutputConfig struct {
	JPEGQuality int `mapstructure:"jpeg_quality"`
}

type StorageConfig struct {
	// Driver 取值 local 或 minio
	Driver string      `mapstructure:"driver"`
	Local  LocalConfig `mapstructure:"local"`
	Minio  MinioConfig `mapstructure:"minio"`
}

type LocalConfig struct {
	Dir           string        `mapstructure:"dir"`
	BaseURL       string        `mapstructure:"base_url"`
	Retention     time.Duration `mapstructure:"retention"`
	SweepSchedule string        `mapstructure:"sweep_schedule"`
}

type MinioConfig struct {
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	Bucket        string `mapstructure:"bucket"`
	Region        string `mapstructure:"region"`
	UseSSL        bool   `mapstructure:"use_ssl"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	MakePublic    bool   `mapstructure:"make_public"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load 从 YAML 文件加载配置，环境变量 BGREMOVER_* 可覆盖任意字段
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return unmarshal(v)
}

// New 使用默认配置路径加载配置，文件不存在时只使用默认值和环境变量
func New() *Config {
	path := os.Getenv(envPrefix + "_CONFIG")
	if path == "" {
		path = "config.yaml"
	}

	cfg, err := Load(path)
	if err == nil {
		return cfg
	}

	cfg, err = unmarshal(newViper())
	if err != nil {
		return getDefaultConfig()
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查互相依赖的配置项
func (c *Config) Validate() error {
	if c.Model.InputSize <= 0 {
		return fmt.Errorf("model.input_size must be positive, got %d", c.Model.InputSize)
	}
	switch c.Segmenter.Backend {
	case "onnx":
		if c.Model.Path == "" {
			return fmt.Errorf("model.path is required for the onnx backend")
		}
	case "kserve":
		if c.Segmenter.KServe.Endpoint == "" {
			return fmt.Errorf("segmenter.kserve.endpoint is required for the kserve backend")
		}
	default:
		return fmt.Errorf("unknown segmenter backend %q", c.Segmenter.Backend)
	}
	switch c.Storage.Driver {
	case "local", "minio":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	// 本地文件按 retention 清理，缓存不能比文件活得久
	if c.Redis.Enabled && c.Storage.Driver == "local" && c.Storage.Local.Retention > 0 &&
		c.Redis.TTL > c.Storage.Local.Retention {
		return fmt.Errorf("redis.ttl %s must not exceed storage.local.retention %s",
			c.Redis.TTL, c.Storage.Local.Retention)
	}
	if c.Fetch.MaxBytes <= 0 || c.Fetch.MaxPixels <= 0 {
		return fmt.Errorf("fetch.max_bytes and fetch.max_pixels must be positive")
	}
	if c.Output.JPEGQuality < 1 || c.Output.JPEGQuality > 100 {
		return fmt.Errorf("output.jpeg_quality must be within [1, 100], got %d", c.Output.JPEGQuality)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	d := getDefaultConfig()

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)

	v.SetDefault("model.path", d.Model.Path)
	v.SetDefault("model.input_size", d.Model.InputSize)
	v.SetDefault("model.input_name", d.Model.InputName)
	v.SetDefault("model.output_name", d.Model.OutputName)

	v.SetDefault("segmenter.backend", d.Segmenter.Backend)
	v.SetDefault("segmenter.onnx.library_path", d.Segmenter.ONNX.LibraryPath)
	v.SetDefault("segmenter.onnx.pool_size", d.Segmenter.ONNX.PoolSize)
	v.SetDefault("segmenter.onnx.acquire_timeout", d.Segmenter.ONNX.AcquireTimeout)
	v.SetDefault("segmenter.onnx.intra_op_threads", d.Segmenter.ONNX.IntraOpThreads)
	v.SetDefault("segmenter.onnx.health_check_schedule", d.Segmenter.ONNX.HealthCheckSchedule)
	v.SetDefault("segmenter.kserve.endpoint", d.Segmenter.KServe.Endpoint)
	v.SetDefault("segmenter.kserve.model_name", d.Segmenter.KServe.ModelName)
	v.SetDefault("segmenter.kserve.timeout", d.Segmenter.KServe.Timeout)

	v.SetDefault("fetch.timeout", d.Fetch.Timeout)
	v.SetDefault("fetch.max_bytes", d.Fetch.MaxBytes)
	v.SetDefault("fetch.max_pixels", d.Fetch.MaxPixels)

	v.SetDefault("output.jpeg_quality", d.Output.JPEGQuality)

	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.local.dir", d.Storage.Local.Dir)
	v.SetDefault("storage.local.base_url", d.Storage.Local.BaseURL)
	v.SetDefault("storage.local.retention", d.Storage.Local.Retention)
	v.SetDefault("storage.local.sweep_schedule", d.Storage.Local.SweepSchedule)
	v.SetDefault("storage.minio.endpoint", d.Storage.Minio.Endpoint)
	v.SetDefault("storage.minio.access_key", d.Storage.Minio.AccessKey)
	v.SetDefault("storage.minio.secret_key", d.Storage.Minio.SecretKey)
	v.SetDefault("storage.minio.bucket", d.Storage.Minio.Bucket)
	v.SetDefault("storage.minio.region", d.Storage.Minio.Region)
	v.SetDefault("storage.minio.use_ssl", d.Storage.Minio.UseSSL)
	v.SetDefault("storage.minio.public_base_url", d.Storage.Minio.PublicBaseURL)
	v.SetDefault("storage.minio.make_public", d.Storage.Minio.MakePublic)

	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.ttl", d.Redis.TTL)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
}

func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         ":8080",
			Mode:         "debug",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
		},
		Model: ModelConfig{
			Path:       "./models/model.onnx",
			InputSize:  1024,
			InputName:  "input",
			OutputName: "output",
		},
		Segmenter: SegmenterConfig{
			Backend: "onnx",
			ONNX: ONNXConfig{
				LibraryPath:         "/usr/lib/libonnxruntime.so",
				PoolSize:            1,
				AcquireTimeout:      30 * time.Second,
				IntraOpThreads:      0,
				HealthCheckSchedule: "@every 1m",
			},
			KServe: KServeConfig{
				Endpoint:  "",
				ModelName: "rmbg",
				Timeout:   60 * time.Second,
			},
		},
		Fetch: FetchConfig{
			Timeout:   30 * time.Second,
			MaxBytes:  20 * 1024 * 1024,
			MaxPixels: 40_000_000,
		},
		Output: OutputConfig{
			JPEGQuality: 75,
		},
		Storage: StorageConfig{
			Driver: "local",
			Local: LocalConfig{
				Dir:           "./output",
				BaseURL:       "http://localhost:8080/files",
				Retention:     24 * time.Hour,
				SweepSchedule: "@every 1h",
			},
			Minio: MinioConfig{
				Endpoint:   "localhost:9000",
				Bucket:     "bgremover",
				Region:     "us-east-1",
				MakePublic: true,
			},
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
			TTL:     24 * time.Hour,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
