package domain

import "errors"

var (
	ErrNotFound    = errors.New("not found")
	ErrCacheMiss   = errors.New("cache miss")
	ErrRateLimited = errors.New("rate limited")
	ErrDecode      = errors.New("decode failed")
)
