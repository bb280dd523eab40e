package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrOrderNotFound 订单不存在
	ErrOrderNotFound = errors.New("订单不存在")
	// ErrTxNotFound 链上未找到交易（继续轮询，不算失败）
	ErrTxNotFound = errors.New("链上未找到交易")
	// ErrUnsupportedCurrency 不支持的币种
	ErrUnsupportedCurrency = errors.New("不支持的币种")
	// ErrInvalidTxHash 交易哈希格式非法（永久性错误，订单直接置为失败）
	ErrInvalidTxHash = errors.New("交易哈希格式非法")
	// ErrCycleRunning 上一轮扫描尚未结束
	ErrCycleRunning = errors.New("上一轮扫描尚未结束")
)

// ValidationError 请求字段校验错误（HTTP 400）
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("字段 %s 无效: %s", e.Field, e.Reason)
}

// NewValidation 构造校验错误
func NewValidation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation 判断是否为校验错误
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// UpstreamError 链上浏览器不可达或响应异常（下个周期重试，不落订单失败）
type UpstreamError struct {
	Chain string
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("链 %s 上游异常: %v", e.Chain, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// NewUpstream 构造上游错误
func NewUpstream(chain string, err error) *UpstreamError {
	return &UpstreamError{Chain: chain, Err: err}
}

// IsUpstream 判断是否为上游错误
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

// PersistenceError 存储层错误（HTTP 500，无部分写入，可安全重试）
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("存储操作 %s 失败: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NewPersistence 构造存储层错误
func NewPersistence(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

// IsPersistence 判断是否为存储层错误
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
