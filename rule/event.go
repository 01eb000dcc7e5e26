package rule

import (
	"fmt"
	"strings"

	"github.com/CodMac/go-archcheck/model"
)

// ViolationEvent 是一次规则违反, 至少携带一个有源码行号的调用点
type ViolationEvent struct {
	Rule      *ArchRule
	Message   string
	CallSites []*model.CallSite
}

// NewViolationEvent 创建违规事件; 没有任何 Line > 0 的调用点时返回 ErrNoProvenance
func NewViolationEvent(r *ArchRule, message string, sites ...*model.CallSite) (*ViolationEvent, error) {
	for _, cs := range sites {
		if cs != nil && cs.Line > 0 {
			return &ViolationEvent{Rule: r, Message: message, CallSites: sites}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoProvenance, message)
}

// Primary 返回事件的主调用点
func (e *ViolationEvent) Primary() *model.CallSite {
	for _, cs := range e.CallSites {
		if cs != nil && cs.Line > 0 {
			return cs
		}
	}
	return nil
}

func (e *ViolationEvent) String() string { return e.Message }

// EvaluationResult 一条规则在一个代码模型上的求值结果
type EvaluationResult struct {
	Rule   *ArchRule
	Events []*ViolationEvent
	// Err 非空表示部分违规无法生成事件, Events 只包含可定位的部分
	Err error
}

// HasViolations 是否存在违规
func (r *EvaluationResult) HasViolations() bool { return len(r.Events) > 0 }

// FailureReport 生成报告文本:
//
//	Architecture Violation [Priority: MEDIUM] - Rule '...' was violated (2 times):
//	Method <...> calls method <...> in (File.java:24)
//
// 没有违规时返回空串。
func (r *EvaluationResult) FailureReport() string {
	if !r.HasViolations() {
		return ""
	}
	var sb strings.Builder
	times := "times"
	if len(r.Events) == 1 {
		times = "time"
	}
	fmt.Fprintf(&sb, "Architecture Violation [Priority: %s] - Rule '%s' was violated (%d %s):",
		r.Rule.Priority, r.Rule.Description, len(r.Events), times)
	for _, e := range r.Events {
		sb.WriteString("\n")
		sb.WriteString(e.Message)
	}
	return sb.String()
}
