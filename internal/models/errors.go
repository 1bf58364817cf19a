package models

import (
	"errors"
	"fmt"
)

// ErrorKind 是流水线错误分类。传播策略见各组件：ProviderTimeout 和
// ProviderRateLimited 由网关的降级循环就地恢复，从不上抛；
// ProviderExhausted 在补全调用上是唯一的致命路径；MemoryUnavailable 和
// ValidationInconclusive 优雅降级；InputRejected 立即返回，不触发任何下游阶段。
type ErrorKind string

const (
	ErrKindProviderTimeout        ErrorKind = "provider_timeout"
	ErrKindProviderRateLimited    ErrorKind = "provider_rate_limited"
	ErrKindProviderExhausted      ErrorKind = "provider_exhausted"
	ErrKindInputRejected          ErrorKind = "input_rejected"
	ErrKindMemoryUnavailable      ErrorKind = "memory_unavailable"
	ErrKindValidationInconclusive ErrorKind = "validation_inconclusive"
)

// PipelineError 是带分类的流水线错误。
type PipelineError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// NewPipelineError 创建一个指定分类的流水线错误。
func NewPipelineError(kind ErrorKind, message string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Message: message, Err: err}
}

// KindOf 返回错误的分类；非 PipelineError 返回空串。
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsKind 判断错误链中是否存在指定分类的流水线错误。
func IsKind(err error, kind ErrorKind) bool {
	var pe *PipelineError
	return errors.As(err, &pe) && pe.Kind == kind
}

// Retryable 报告错误是否对调用方可重试。只有 ProviderExhausted 会以
// 可重试的服务错误形式暴露给调用方。
func Retryable(err error) bool {
	return IsKind(err, ErrKindProviderExhausted)
}
