package util

import "errors"

// 错误分类：按处置方式区分，而非按来源。
// InvalidInput 在编排开始前直接拒绝；QuotaExceeded 与一般的上游不可用
// 分开暴露，便于运维针对性处理；NotFound 指向配置错误而非瞬时故障。
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrEmptyQuestion       = errors.New("question must not be empty")
	ErrUnknownCollection   = errors.New("unknown collection tag")
	ErrUpstreamUnavailable = errors.New("upstream capability unavailable")
	ErrQuotaExceeded       = errors.New("generation quota exceeded, please retry later")
	ErrNotFound            = errors.New("record not found")
)
