package errors

import (
	stdErrors "errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
)

// Error 携带错误码、诊断字段和可选的底层原因。
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string
}

// Option 定义可选配置。
type Option func(*Error)

// WithMetadata 附加诊断字段，例如 job_id、last_phase。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string, 2)
		}
		e.metadata[key] = value
	}
}

// New 创建错误；message 为空时使用错误码注册的默认描述。
func New(code Code, message string, opts ...Option) *Error {
	e := &Error{code: code, message: message}
	if e.message == "" {
		e.message = AttributesOf(code).Message
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 为 cause 附加错误码与上下文描述。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause == nil:
		return e.message
	default:
		return e.message + ": " + e.cause.Error()
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 按错误码比较。target 可以是另一个 *Error，也可以直接是 Code。
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	switch t := target.(type) {
	case Code:
		return e.code == t
	case *Error:
		return t != nil && e.code == t.code
	default:
		return false
	}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message 返回不含底层原因的描述。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata 返回诊断字段的副本。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	return maps.Clone(e.metadata)
}

// LogValue 以结构化字段输出错误，诊断字段按键排序。
func (e *Error) LogValue() slog.Value {
	if e == nil {
		return slog.StringValue("")
	}
	attrs := []slog.Attr{
		slog.String("code", string(e.code)),
		slog.String("message", e.Error()),
	}
	for _, k := range slices.Sorted(maps.Keys(e.metadata)) {
		attrs = append(attrs, slog.String(k, e.metadata[k]))
	}
	return slog.GroupValue(attrs...)
}

// From 在错误链中查找 *Error。
func From(err error) (*Error, bool) {
	var target *Error
	if err != nil && stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回错误链中最外层 *Error 的错误码，没有时返回 UNKNOWN。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// HasCode 判断错误链中是否存在指定错误码。
func HasCode(err error, code Code) bool {
	return stdErrors.Is(err, code)
}

// ShouldAlert 判断错误是否需要告警。不带错误码的错误按 UNKNOWN 处理。
func ShouldAlert(err error) bool {
	return err != nil && AttributesOf(CodeOf(err)).Alert
}

// SeverityOf 返回错误严重程度，不带错误码的错误按 UNKNOWN 处理。
func SeverityOf(err error) Severity {
	if err == nil {
		return SeverityInfo
	}
	return AttributesOf(CodeOf(err)).Severity
}
