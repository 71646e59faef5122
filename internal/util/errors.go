package util

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind 错误大类，决定 HTTP 状态码
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindExpired    ErrorKind = "expired"
	KindStore      ErrorKind = "store_failure"
)

// AppError 业务错误，Code 是对外稳定的机器码，Message 面向用户
type AppError struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

var (
	ErrSelfRequest = &AppError{Kind: KindConflict, Code: "self_request", Message: "不能与自己建立连接"}

	ErrTargetNotFound = &AppError{Kind: KindNotFound, Code: "target_not_found", Message: "目标用户不存在"}

	ErrAlreadyConnected = &AppError{Kind: KindConflict, Code: "already_connected", Message: "已经建立连接"}

	ErrRequestAlreadyPending = &AppError{Kind: KindConflict, Code: "request_already_pending", Message: "已有待处理的连接申请"}

	// ErrRequestNotFound 也用于"申请存在但不属于当前用户"，避免向非接收者泄露申请的存在
	ErrRequestNotFound = &AppError{Kind: KindNotFound, Code: "request_not_found", Message: "申请不存在"}

	ErrRequestExpired = &AppError{Kind: KindExpired, Code: "request_expired", Message: "申请已过期"}

	ErrEdgeNotFound = &AppError{Kind: KindNotFound, Code: "edge_not_found", Message: "连接不存在"}

	ErrMessageTooLong = &AppError{Kind: KindValidation, Code: "message_too_long", Message: "附言超过长度限制"}

	// ErrEdgeEstablishment 原子建边操作失败，内部细节只进日志
	ErrEdgeEstablishment = &AppError{Kind: KindStore, Code: "edge_establishment_failed", Message: "连接建立失败，请稍后重试"}

	ErrStoreFailure = &AppError{Kind: KindStore, Code: "store_failure", Message: "服务内部错误，请稍后重试"}
)

// CategoryNotEnabled 整个调用被拒绝，列出所有越界的分类 key
func CategoryNotEnabled(keys []string) *AppError {
	return &AppError{
		Kind:    KindValidation,
		Code:    "category_not_enabled",
		Message: fmt.Sprintf("以下分类未开启: %s", strings.Join(keys, ", ")),
	}
}

// AsAppError 解出 AppError，非业务错误返回 false
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HTTPStatus 错误大类到 HTTP 状态码的映射
func HTTPStatus(err error) int {
	appErr, ok := AsAppError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch appErr.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
