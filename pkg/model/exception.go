package model

// MechanismType 异常归类
type MechanismType string

const (
	MechanismJS        MechanismType = "js"
	MechanismResource  MechanismType = "resource"
	MechanismRejection MechanismType = "unhandledrejection"
	MechanismHTTP      MechanismType = "http"
	MechanismCORS      MechanismType = "cors"
	MechanismFramework MechanismType = "framework"
)

// Mechanism 异常来源
type Mechanism struct {
	Type MechanismType `json:"type"`
}

// StackFrame 解析后的一帧堆栈，缺失的字段保持为空
type StackFrame struct {
	Filename     string `json:"filename,omitempty"`
	FunctionName string `json:"functionName,omitempty"`
	Lineno       int    `json:"lineno,omitempty"`
	Colno        int    `json:"colno,omitempty"`
}

// StackTrace 解析后的堆栈
type StackTrace struct {
	Frames []StackFrame `json:"frames"`
}

// ExceptionRecord 格式化后的异常数据
type ExceptionRecord struct {
	Mechanism       Mechanism        `json:"mechanism"`
	Value           string           `json:"value"`
	Type            string           `json:"type"`
	StackTrace      *StackTrace      `json:"stackTrace,omitempty"`
	PageInformation *PageInformation `json:"pageInformation,omitempty"`
	Breadcrumbs     []BehaviorEntry  `json:"breadcrumbs"`
	ErrorUID        string           `json:"errorUid"`
	Meta            map[string]any   `json:"meta"`
}
