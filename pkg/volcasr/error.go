package volcasr

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrNotConfigured 未配置访问凭证
	ErrNotConfigured = errors.New("volcasr: access key not configured")

	// ErrNotConnected 会话不在可发送状态
	ErrNotConnected = errors.New("volcasr: session not connected")

	// ErrTimeout 握手等待超时
	ErrTimeout = errors.New("volcasr: handshake timeout")

	// ErrCancelled 调用方中止
	ErrCancelled = errors.New("volcasr: cancelled")

	// ErrCompressionFailed 压缩失败，请求未发送
	ErrCompressionFailed = errors.New("volcasr: payload compression failed")
)

// Error 服务端错误
type Error struct {
	// Code 业务错误码
	Code uint32 `json:"code"`

	// Message 错误消息
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("volcasr: server error %d: %s", e.Code, e.Message)
}

// AsError 尝试将 error 转换为 *Error
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// ProtocolError 协议帧错误（帧损坏或类型不符，不重试）
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("volcasr: protocol error: %s: %v", e.Reason, e.Err)
	}
	return "volcasr: protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ConnectionError 传输层错误
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("volcasr: connection failed: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// wrapError 包装错误
func wrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
