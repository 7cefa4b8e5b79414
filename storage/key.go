package storage

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/segmentio/ksuid"
)

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// ObjectKey 生成 prefix/requester_ksuid.ext，requester 为空时使用 anon
func ObjectKey(prefix, requester, ext string) string {
	return fmt.Sprintf("%s/%s_%s.%s", prefix, sanitizeRequester(requester), ksuid.New().String(), strings.TrimPrefix(ext, "."))
}

func sanitizeRequester(requester string) string {
	requester = unsafeKeyChars.ReplaceAllString(strings.TrimSpace(requester), "_")
	if strings.Trim(requester, "_") == "" {
		return AnonymousRequester
	}
	if len(requester) > 128 {
		requester = requester[:128]
	}
	return requester
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}
