package model

import (
	"fmt"
	"strings"
)

// --- 依赖关系类型 (Dependency Relation Types) ---

// DependencyType 是表示依赖关系的字符串常量
type DependencyType string

const (
	Call        DependencyType = "CALL"        // Call: Source calls Target method.
	Create      DependencyType = "CREATE"      // Create: Source calls Target constructor.
	Use         DependencyType = "USE"         // Use: Source reads or writes Target field.
	Extend      DependencyType = "EXTEND"      // Extend: Class inherits from another Base Class (Go: struct embedding).
	Implement   DependencyType = "IMPLEMENT"   // Implement: Class implements Interface.
	Declaration DependencyType = "DECLARATION" // Declaration: 类型声明本身, 用于类型级条件的出处
)

// IsAccess 判断是否为成员访问 (方法调用、构造器调用、字段访问)
func (d DependencyType) IsAccess() bool {
	return d == Call || d == Create || d == Use
}

// CallSite 是从一个成员到另一个成员的单个静态引用，携带源码行号出处。
// Line 必须是指令所在的精确源码行。
type CallSite struct {
	Kind         DependencyType `json:"Kind"`
	OriginType   string         `json:"OriginType"`
	OriginMember string         `json:"OriginMember,omitempty"`
	OriginParams []string       `json:"OriginParams,omitempty"`
	TargetType   string         `json:"TargetType"`
	TargetMember string         `json:"TargetMember,omitempty"`
	TargetParams []string       `json:"TargetParams,omitempty"`
	Line         int            `json:"Line"`
	SourceFile   string         `json:"SourceFile,omitempty"`

	// TargetInterface 标记 EXTEND 边的目标是接口 (接口继承接口、Go 嵌入接口)
	TargetInterface bool `json:"TargetInterface,omitempty"`

	// 源码解码器无法直接得到目标的形参签名，记录实参个数与已知的实参静态类型，
	// 由图构建阶段按静态目标类型解析重载后回填 TargetParams。
	ArgCount int      `json:"-"`
	ArgTypes []string `json:"-"`
	Resolved bool     `json:"-"`

	// Receiver 非空表示接收者的静态类型在单个源文件内无法确定, TargetType 为空,
	// 由图构建阶段在完整模型上沿访问链求出
	Receiver *ReceiverChain `json:"-"`
}

// ReceiverChain 描述接收者表达式: 从 Base 类型出发依次访问 Steps 得到接收者类型。
// Base 为空表示链首的类型未知 (e.g. 无类型声明的 lambda 参数)。
type ReceiverChain struct {
	Expr  string
	Base  string
	Steps []ReceiverStep
}

// ReceiverStep 是访问链中的一次字段读取或方法调用
type ReceiverStep struct {
	Name     string
	Field    bool
	ArgCount int
}

// Origin 渲染调用方描述, e.g. "Method <a.B.m(int)>"
func (c *CallSite) Origin() string {
	switch c.OriginMember {
	case "":
		return fmt.Sprintf("Class <%s>", c.OriginType)
	case ConstructorName:
		return fmt.Sprintf("Constructor <%s>", FormatMethod(c.OriginType, c.OriginMember, c.OriginParams))
	case StaticInitName:
		return fmt.Sprintf("Static Initializer <%s>", FormatMethod(c.OriginType, c.OriginMember, nil))
	default:
		return fmt.Sprintf("Method <%s>", FormatMethod(c.OriginType, c.OriginMember, c.OriginParams))
	}
}

// Target 渲染被调用方描述
func (c *CallSite) Target() string {
	switch c.Kind {
	case Use:
		return fmt.Sprintf("field <%s.%s>", c.TargetType, c.TargetMember)
	case Create:
		return fmt.Sprintf("constructor <%s>", FormatMethod(c.TargetType, ConstructorName, c.TargetParams))
	case Extend:
		if c.TargetInterface {
			return fmt.Sprintf("interface <%s>", c.TargetType)
		}
		return fmt.Sprintf("class <%s>", c.TargetType)
	case Implement:
		return fmt.Sprintf("interface <%s>", c.TargetType)
	case Declaration:
		return fmt.Sprintf("<%s>", c.TargetType)
	default:
		return fmt.Sprintf("method <%s>", FormatMethod(c.TargetType, c.TargetMember, c.TargetParams))
	}
}

// SourceLocation 渲染 "(File.java:24)"
func (c *CallSite) SourceLocation() string {
	file := c.SourceFile
	if file == "" {
		file = SimpleNameOf(c.OriginType)
	}
	return fmt.Sprintf("(%s:%d)", file, c.Line)
}

// Describe 生成单行描述, e.g.
// "Method <a.S.m()> calls method <b.E.persist(java.lang.Object)> in (S.java:24)"
func (c *CallSite) Describe() string {
	var verb string
	switch c.Kind {
	case Call, Create:
		verb = "calls"
	case Use:
		verb = "accesses"
	case Extend:
		verb = "extends"
	case Implement:
		verb = "implements"
	default:
		verb = "declares"
	}
	return fmt.Sprintf("%s %s %s in %s", c.Origin(), verb, c.Target(), c.SourceLocation())
}

// FormatMethod 渲染 "Owner.name(p1, p2)"
func FormatMethod(owner, name string, params []string) string {
	return fmt.Sprintf("%s.%s(%s)", owner, name, strings.Join(params, ", "))
}
