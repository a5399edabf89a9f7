// Package errors 提供统一的错误定义
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误 (1xxx)
	CodeSuccess            ErrorCode = "0"
	CodeUnknown            ErrorCode = "1000"
	CodeInvalidParam       ErrorCode = "1001"
	CodeUnauthorized       ErrorCode = "1002"
	CodeForbidden          ErrorCode = "1003"
	CodeNotFound           ErrorCode = "1004"
	CodeConflict           ErrorCode = "1005"
	CodeTooManyRequests    ErrorCode = "1006"
	CodeInternalError      ErrorCode = "1007"
	CodeServiceUnavailable ErrorCode = "1008"

	// 认证错误 (2xxx)
	CodeTokenExpired ErrorCode = "2001"
	CodeTokenInvalid ErrorCode = "2002"
	CodeTokenMissing ErrorCode = "2003"

	// 资源错误 (3xxx)
	CodeDocumentNotFound ErrorCode = "3001"
	CodeFileTooLarge     ErrorCode = "3002"

	// 检索与问答错误 (41xx)
	CodeEmptyKnowledgeBase   ErrorCode = "4101"
	CodeDimensionMismatch    ErrorCode = "4102"
	CodeNoRelevantContext    ErrorCode = "4103"
	CodeInsufficientEvidence ErrorCode = "4104"
	CodeUnsupportedFormat    ErrorCode = "4105"
	CodeExtractionFailed     ErrorCode = "4106"
	CodeQueryRefused         ErrorCode = "4107"
	CodeRetrievalFailed      ErrorCode = "4108"
	CodeEmbeddingFailed      ErrorCode = "4109"

	// 外部服务错误 (5xxx)
	CodeDatabaseError          ErrorCode = "5001"
	CodeCacheError             ErrorCode = "5002"
	CodeVectorDBError          ErrorCode = "5003"
	CodeExternalServiceFailure ErrorCode = "5004"
	CodeLLMProviderError       ErrorCode = "5005"
)

// AppError 应用错误
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail 添加详细信息（返回副本，预定义错误不会被修改）
func (e *AppError) WithDetail(detail string) *AppError {
	cp := *e
	cp.Detail = detail
	return &cp
}

// WithError 添加底层错误（返回副本）
func (e *AppError) WithError(err error) *AppError {
	cp := *e
	cp.Err = err
	return &cp
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

// codeToHTTPStatus 错误码转 HTTP 状态码
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeSuccess, CodeNoRelevantContext, CodeInsufficientEvidence, CodeQueryRefused:
		return http.StatusOK
	case CodeInvalidParam:
		return http.StatusBadRequest
	case CodeUnauthorized, CodeTokenExpired, CodeTokenInvalid, CodeTokenMissing:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound, CodeDocumentNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeEmptyKnowledgeBase:
		return http.StatusConflict
	case CodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case CodeExtractionFailed:
		return http.StatusUnprocessableEntity
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeExternalServiceFailure, CodeLLMProviderError:
		return http.StatusBadGateway
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// 预定义错误
var (
	ErrInvalidParam       = New(CodeInvalidParam, "invalid parameter")
	ErrUnauthorized       = New(CodeUnauthorized, "unauthorized")
	ErrForbidden          = New(CodeForbidden, "forbidden")
	ErrNotFound           = New(CodeNotFound, "resource not found")
	ErrConflict           = New(CodeConflict, "resource conflict")
	ErrTooManyRequests    = New(CodeTooManyRequests, "too many requests")
	ErrInternalError      = New(CodeInternalError, "internal server error")
	ErrServiceUnavailable = New(CodeServiceUnavailable, "service unavailable")

	ErrTokenExpired = New(CodeTokenExpired, "token expired")
	ErrTokenInvalid = New(CodeTokenInvalid, "token invalid")
	ErrTokenMissing = New(CodeTokenMissing, "token missing")

	ErrDocumentNotFound   = New(CodeDocumentNotFound, "document not found")
	ErrFileTooLarge       = New(CodeFileTooLarge, "file exceeds the upload size limit")
	ErrEmptyKnowledgeBase = New(CodeEmptyKnowledgeBase, "Knowledge base is empty. Please ingest PDFs first.")
	ErrDimensionMismatch  = New(CodeDimensionMismatch, "embedding dimension mismatch")
	ErrUnsupportedFormat  = New(CodeUnsupportedFormat, "unsupported document format")
	ErrExtractionFailed   = New(CodeExtractionFailed, "text extraction failed")
	ErrRetrievalFailed    = New(CodeRetrievalFailed, "retrieval failed")
	ErrExternalService    = New(CodeExternalServiceFailure, "external service failure")
)

// IsAppError 检查是否为 AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError 将错误转换为 AppError
func AsAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}
