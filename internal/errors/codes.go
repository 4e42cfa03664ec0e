package errors

// Code 表示系统内的统一错误码。
type Code string

// Error 使 Code 可以直接作为 errors.Is 的目标。
func (c Code) Error() string { return string(c) }

// Severity 描述错误的严重程度，用于告警和审计。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// 通用错误码。
const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
	CodeTimeout               Code = "TIMEOUT"
)

// 访问控制与市场 API 相关的错误码。
const (
	CodePermissionDenied  Code = "PERMISSION_DENIED"
	CodeMissingCredential Code = "MISSING_CREDENTIAL"
	CodeAgentNotFound     Code = "AGENT_NOT_FOUND"
	CodeUpstream          Code = "UPSTREAM_ERROR"
	CodeJobCreation       Code = "JOB_CREATION_FAILED"
	CodeJobQuery          Code = "JOB_QUERY_FAILED"
	CodeJobRejected       Code = "JOB_REJECTED"
	CodeJobExpired        Code = "JOB_EXPIRED"
	CodeJobTimeout        Code = "JOB_TIMEOUT"
)

// Attributes 为错误码提供默认描述、严重程度以及是否需要告警。
type Attributes struct {
	Message  string
	Severity Severity
	Alert    bool
}

var registry = map[Code]Attributes{
	CodeUnknown:               {Message: "unknown error", Severity: SeverityCritical, Alert: true},
	CodeInvalidArgument:       {Message: "invalid argument", Severity: SeverityInfo},
	CodeInitializationFailure: {Message: "service not initialized", Severity: SeverityWarning, Alert: true},
	CodeTimeout:               {Message: "operation timed out", Severity: SeverityWarning},

	CodePermissionDenied:  {Message: "Permission Denied", Severity: SeverityWarning},
	CodeMissingCredential: {Message: "missing API credential", Severity: SeverityCritical, Alert: true},

	// 市场接口故障需要告警；拒绝和过期是智能体的正常决定。
	CodeAgentNotFound: {Message: "agent not found", Severity: SeverityWarning},
	CodeUpstream:      {Message: "upstream request failed", Severity: SeverityWarning, Alert: true},
	CodeJobCreation:   {Message: "failed to create job", Severity: SeverityWarning, Alert: true},
	CodeJobQuery:      {Message: "failed to get job status", Severity: SeverityWarning, Alert: true},
	CodeJobRejected:   {Message: "job was rejected", Severity: SeverityInfo},
	CodeJobExpired:    {Message: "job expired", Severity: SeverityInfo},
	CodeJobTimeout:    {Message: "job polling timed out", Severity: SeverityWarning, Alert: true},
}

// AttributesOf 返回错误码对应的属性。若未注册则返回 UNKNOWN 的属性。
func AttributesOf(code Code) Attributes {
	if attr, ok := registry[code]; ok {
		return attr
	}
	return registry[CodeUnknown]
}
