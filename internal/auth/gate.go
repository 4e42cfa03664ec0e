package auth

import (
	"log/slog"
	"strings"

	xerrors "AXR-Monitor/internal/errors"
	"AXR-Monitor/pkg/logger"
)

// 审计日志中记录的凭据来源。
const (
	sourceWhitelist = "whitelist"
	sourceLegacy    = "legacy"
	sourceSingle    = "single"
)

// Gate 将调用方解析为已授权的凭据。构造后配置只读，可并发使用。
type Gate struct {
	entries []Entry
	legacy  Legacy
	audit   *slog.Logger
}

// Option 定义 Gate 的可选配置。
type Option func(*Gate)

// WithAuditLogger 指定审计日志记录器，默认使用 logger.Audit()。
func WithAuditLogger(l *slog.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.audit = l
		}
	}
}

// NewGate 使用白名单条目和旧版单一凭据构造访问控制门。
func NewGate(entries []Entry, legacy Legacy, opts ...Option) *Gate {
	g := &Gate{
		entries: append([]Entry(nil), entries...),
		legacy:  legacy,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	if g.audit == nil {
		g.audit = logger.Audit()
	}
	return g
}

// Resolve 根据调用方的类型选择解析策略。
func (g *Gate) Resolve(caller Caller) (Credential, error) {
	if id, ok := caller.ID(); ok {
		return g.ResolveCaller(id)
	}
	return g.ResolveDefault()
}

// ResolveCaller 为指定的调用方 ID 解析凭据，未授权时返回 ErrPermissionDenied。
func (g *Gate) ResolveCaller(callerID string) (Credential, error) {
	if !validCallerID(callerID) {
		g.deny(callerID, "invalid_caller_id")
		return Credential{}, xerrors.Newf(xerrors.CodePermissionDenied,
			"Permission Denied: invalid caller id %q", callerID)
	}

	for _, entry := range g.entries {
		if entry.CallerID != callerID || !entry.valid() {
			continue
		}
		g.grant(callerID, sourceWhitelist)
		return Credential{callerID: callerID, secret: strings.TrimSpace(entry.Credential)}, nil
	}

	if g.legacy.present() {
		if g.legacy.misconfigured() {
			// 通配符或空白的旧版配置一律拒绝，与请求的调用方无关。
			g.deny(callerID, "legacy_misconfigured")
			return Credential{}, xerrors.Newf(xerrors.CodePermissionDenied,
				"Permission Denied: legacy caller configuration is invalid, refusing caller %q", callerID)
		}
		if strings.TrimSpace(g.legacy.CallerID) == callerID {
			g.grant(callerID, sourceLegacy)
			return Credential{callerID: callerID, secret: strings.TrimSpace(g.legacy.Credential)}, nil
		}
	}

	g.deny(callerID, "not_whitelisted")
	return Credential{}, xerrors.Newf(xerrors.CodePermissionDenied,
		"Permission Denied: caller %q is not authorized", callerID)
}

// ResolveDefault 在单调用方模式下返回旧版凭据。凭据缺失属于配置问题，
// 返回 ErrMissingCredential 而不是拒绝访问。
func (g *Gate) ResolveDefault() (Credential, error) {
	secret := strings.TrimSpace(g.legacy.Credential)
	if secret == "" {
		g.audit.Warn("access_denied",
			"caller_id", "",
			"source", sourceSingle,
			"reason", "missing_credential",
		)
		return Credential{}, xerrors.New(xerrors.CodeMissingCredential,
			"missing API credential for single-caller mode")
	}
	g.grant("", sourceSingle)
	return Credential{secret: secret}, nil
}

// Entries 返回白名单条目数量，用于启动日志。
func (g *Gate) Entries() int {
	return len(g.entries)
}

func (g *Gate) grant(callerID, source string) {
	g.audit.Info("access_granted",
		"caller_id", callerID,
		"source", source,
	)
}

func (g *Gate) deny(callerID, reason string) {
	g.audit.Warn("access_denied",
		"caller_id", callerID,
		"reason", reason,
	)
}
