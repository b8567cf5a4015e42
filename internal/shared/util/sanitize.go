package util

import (
	"errors"
	"path"
	"strings"
)

var ErrInvalidKey = errors.New("invalid storage key")

// CleanKey normalizes a slash-separated storage key and rejects traversal and absolute keys.
func CleanKey(key string) (string, error) {
	s := strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if s == "" || strings.HasPrefix(s, "/") {
		return "", ErrInvalidKey
	}
	for _, part := range strings.Split(s, "/") {
		if part == ".." {
			return "", ErrInvalidKey
		}
	}
	clean := path.Clean(s)
	if clean == "." {
		return "", ErrInvalidKey
	}
	return clean, nil
}
