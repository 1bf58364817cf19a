package models

// LogEntry 定义了用于结构化日志的统一数据格式，方便日志采集、传输与检索。
type LogEntry struct {
	// ServiceName 是产生这条日志的服务或组件的名称，例如 "orchestrator"。
	ServiceName string `json:"service_name"`

	// TraceID 用于将单个请求在各阶段的日志串联起来。
	TraceID string `json:"trace_id,omitempty"`

	// UserID 标识与此日志事件相关的用户（如果适用）。
	UserID string `json:"user_id,omitempty"`

	// RequestInfo 包含触发此日志的 HTTP 请求的详细信息。
	RequestInfo *RequestInfo `json:"request_info,omitempty"`

	// Error 包含详细的错误信息，通常在日志级别为 Error 或更高时填充。
	Error *ErrorInfo `json:"error,omitempty"`

	// Payload 用于存放其他与业务逻辑相关的结构化数据。
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// RequestInfo 存储了关于 HTTP 请求的上下文信息。
type RequestInfo struct {
	Method     string `json:"method"`
	Path       string `json:"path"`
	RemoteAddr string `json:"remote_addr"`
	UserAgent  string `json:"user_agent"`
}

// ErrorInfo 存储了关于错误的结构化信息。
type ErrorInfo struct {
	Message    string `json:"message"`
	Type       string `json:"type,omitempty"`        // 错误的类型，例如 "provider_exhausted"。
	StatusCode int    `json:"status_code,omitempty"` // 相关的 HTTP 状态码。
}
