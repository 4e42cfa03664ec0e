package auth

import (
	"log/slog"
	"strings"
	"unicode"

	xerrors "AXR-Monitor/internal/errors"
)

// 访问控制子系统返回的统一错误，可通过 errors.Is 按错误码匹配。
var (
	ErrPermissionDenied  = xerrors.New(xerrors.CodePermissionDenied, "Permission Denied")
	ErrMissingCredential = xerrors.New(xerrors.CodeMissingCredential, "missing API credential")
)

// wildcardID 是被明确拒绝的通配调用方标识。
const wildcardID = "*"

// Caller 是调用方身份的标签联合：要么是单调用方模式（DefaultCaller），
// 要么是由调用环境提供的具体调用方 ID。
type Caller struct {
	id       string
	explicit bool
}

// DefaultCaller 表示未提供调用方 ID 的单调用方部署模式。
func DefaultCaller() Caller {
	return Caller{}
}

// CallerID 包装调用环境提供的调用方 ID（例如会话 ID）。
func CallerID(id string) Caller {
	return Caller{id: id, explicit: true}
}

// ID 返回调用方 ID；单调用方模式下第二个返回值为 false。
func (c Caller) ID() (string, bool) {
	return c.id, c.explicit
}

func (c Caller) String() string {
	if !c.explicit {
		return "default"
	}
	return c.id
}

// Credential 是绑定到单个调用方的不透明密钥。格式化和日志输出均不包含密钥本身。
type Credential struct {
	callerID string
	secret   string
}

// NewCredential 直接构造凭据，主要供测试和已通过访问控制的调用方使用。
func NewCredential(callerID, secret string) Credential {
	return Credential{callerID: callerID, secret: secret}
}

// Secret 返回用于 x-api-key 头的密钥。
func (c Credential) Secret() string { return c.secret }

// CallerID 返回该凭据对应的调用方 ID，单调用方模式下为空。
func (c Credential) CallerID() string { return c.callerID }

// IsZero 报告凭据是否为空。
func (c Credential) IsZero() bool { return c.secret == "" }

func (c Credential) String() string {
	if c.callerID == "" {
		return "credential(***)"
	}
	return "credential(" + c.callerID + ", ***)"
}

// LogValue 确保 slog 输出中不会出现密钥。
func (c Credential) LogValue() slog.Value {
	return slog.GroupValue(slog.String("caller_id", c.callerID), slog.Bool("present", !c.IsZero()))
}

// Entry 是白名单中的一项 (调用方 ID, 凭据)。
type Entry struct {
	CallerID   string
	Credential string
}

// valid 判断条目是否满足白名单不变式：ID 非空且不是通配符，凭据去除空白后非空。
func (e Entry) valid() bool {
	id := strings.TrimSpace(e.CallerID)
	return id != "" && id != wildcardID && strings.TrimSpace(e.Credential) != ""
}

// Legacy 描述单一的旧版调用方/凭据配置，字段保留原始（未裁剪）值。
type Legacy struct {
	CallerID   string
	Credential string
}

// present 报告两个旧版字段是否都已提供。
func (l Legacy) present() bool {
	return l.CallerID != "" && l.Credential != ""
}

// misconfigured 报告旧版配置是否使用了通配符或空白字段。
func (l Legacy) misconfigured() bool {
	id := strings.TrimSpace(l.CallerID)
	return id == wildcardID || id == "" || strings.TrimSpace(l.Credential) == ""
}

// validCallerID 拒绝空白、通配符以及包含控制字符的调用方 ID。
func validCallerID(id string) bool {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" || trimmed == wildcardID {
		return false
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}
