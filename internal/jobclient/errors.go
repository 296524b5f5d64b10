package jobclient

import (
	"errors"
	"fmt"
)

// ErrUnknownJobType 创建客户端时传入了未注册的任务类型。
// 在任何网络活动之前即返回。
var ErrUnknownJobType = errors.New("invalid job type")

// ValidationError 输入缺少必需字段。编码阶段（发送请求之前）即失败，
// 属于致命错误，不参与重试。
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing '%s' key in input data", e.Field)
}

// TransportError 网络层失败：连接失败、超时或响应读取失败。可重试。
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ServerError 服务端返回非 200 状态码，携带从响应体中尽力解析出的
// 错误信息与服务端堆栈。可重试。
type ServerError struct {
	StatusCode int
	Message    string
	StackTrace string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

// DecodeError 成功响应中的 result 字段缺失、不是合法 base64 或不是
// 合法图片。服务端可能产生了瞬态的畸形响应，因此与传输失败同样重试。
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("failed to decode job result: %s", e.Reason)
	}
	return fmt.Sprintf("failed to decode job result: %s: %v", e.Reason, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
