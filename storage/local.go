package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chaos-io/bgremover/util"
)

// LocalStore 写入本地目录，由 HTTP 服务的静态路由对外提供
type LocalStore struct {
	dir     string
	baseURL string
}

func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) Upload(ctx context.Context, data []byte, _ string, key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}

	// 先写临时文件再改名，避免读到写了一半的文件
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("rename file: %w", err)
	}

	return s.baseURL + "/" + key, nil
}

// Sweep 删除修改时间早于 maxAge 的文件，返回删除的数量
func (s *LocalStore) Sweep(maxAge time.Duration) (int, error) {
	deadline := time.Now().Add(-maxAge)
	removed := 0

	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().Before(deadline) {
			if err := os.Remove(path); err != nil {
				util.Logger.Warn("remove expired file failed", zap.String("path", path), zap.Error(err))
				return nil
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("sweep %s: %w", s.dir, err)
	}
	return removed, nil
}
