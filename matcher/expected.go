package matcher

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/CodMac/go-archcheck/model"
)

// Category 区分方法/构造器调用与字段访问
type Category string

const (
	ByCallCategory   Category = "call"
	ByAccessCategory Category = "access"
)

// Access 是用于比较的违规元组:
// (调用方类型, 调用方方法, 目标类型, 目标成员, 目标形参, 行号), 外加区分调用与字段访问的 Category。
// 形参为 nil 与空切片视为相同。
type Access struct {
	Category     Category
	OriginType   string
	OriginMember string
	TargetType   string
	TargetMember string
	TargetParams []string
	Line         int
}

// accessKey 是 Access 的可比较形式, 形参逐个加引号编码, 不同的形参列表不会得到相同的键
type accessKey struct {
	category     Category
	originType   string
	originMember string
	targetType   string
	targetMember string
	targetParams string
	line         int
}

func (a Access) key() accessKey {
	quoted := make([]string, len(a.TargetParams))
	for i, p := range a.TargetParams {
		quoted[i] = strconv.Quote(p)
	}
	return accessKey{
		category:     a.Category,
		originType:   a.OriginType,
		originMember: a.OriginMember,
		targetType:   a.TargetType,
		targetMember: a.TargetMember,
		targetParams: strings.Join(quoted, ","),
		line:         a.Line,
	}
}

func (a Access) String() string {
	origin := a.OriginType + "." + a.OriginMember
	if a.Category == ByAccessCategory {
		return fmt.Sprintf("%s accesses field <%s.%s> in line %d", origin, a.TargetType, a.TargetMember, a.Line)
	}
	return fmt.Sprintf("%s calls <%s> in line %d", origin, model.FormatMethod(a.TargetType, a.TargetMember, a.TargetParams), a.Line)
}

// FromCallSite 把调用点转换为比较元组
func FromCallSite(cs *model.CallSite) Access {
	cat := ByCallCategory
	if cs.Kind == model.Use {
		cat = ByAccessCategory
	}
	return Access{
		Category:     cat,
		OriginType:   cs.OriginType,
		OriginMember: cs.OriginMember,
		TargetType:   cs.TargetType,
		TargetMember: cs.TargetMember,
		TargetParams: cs.TargetParams,
		Line:         cs.Line,
	}
}

// Origin 是期望违规的调用方, 由 From 创建
type Origin struct {
	typ    string
	method string
}

// From 声明调用方类型与方法; 构造器用 "<init>"
func From(typeName, method string) *Origin {
	return &Origin{typ: typeName, method: method}
}

// ToMethod 目标为方法调用
func (o *Origin) ToMethod(typeName, method string, params ...string) *ExpectedAccess {
	return o.to(ByCallCategory, typeName, method, params)
}

// ToConstructor 目标为构造器调用
func (o *Origin) ToConstructor(typeName string, params ...string) *ExpectedAccess {
	return o.to(ByCallCategory, typeName, model.ConstructorName, params)
}

// ToField 目标为字段访问
func (o *Origin) ToField(typeName, field string) *ExpectedAccess {
	return o.to(ByAccessCategory, typeName, field, nil)
}

func (o *Origin) to(cat Category, typeName, member string, params []string) *ExpectedAccess {
	return &ExpectedAccess{access: Access{
		Category:     cat,
		OriginType:   o.typ,
		OriginMember: o.method,
		TargetType:   typeName,
		TargetMember: member,
		TargetParams: params,
	}}
}

// ExpectedAccess 是一个完整声明的期望元组, InLine 设置行号
type ExpectedAccess struct {
	access Access
}

// InLine 设置期望的源码行
func (e *ExpectedAccess) InLine(line int) *ExpectedAccess {
	cp := *e
	cp.access.Line = line
	return &cp
}

// Access 返回元组
func (e *ExpectedAccess) Access() Access { return e.access }

// ExpectedViolation 声明某条规则应当产生的全部违规
type ExpectedViolation struct {
	rule     string
	accesses []Access
}

// ExpectViolation 创建空的期望
func ExpectViolation() *ExpectedViolation {
	return &ExpectedViolation{}
}

// OfRule 按规则文本 (完全相等) 选择规则
func (e *ExpectedViolation) OfRule(text string) *ExpectedViolation {
	e.rule = text
	return e
}

// ByCall 追加一个方法或构造器调用违规
func (e *ExpectedViolation) ByCall(a *ExpectedAccess) *ExpectedViolation {
	acc := a.access
	acc.Category = ByCallCategory
	e.accesses = append(e.accesses, acc)
	return e
}

// ByAccess 追加一个字段访问违规
func (e *ExpectedViolation) ByAccess(a *ExpectedAccess) *ExpectedViolation {
	acc := a.access
	acc.Category = ByAccessCategory
	e.accesses = append(e.accesses, acc)
	return e
}

// Rule 返回期望的规则文本
func (e *ExpectedViolation) Rule() string { return e.rule }

// Accesses 返回期望的元组, 按声明顺序
func (e *ExpectedViolation) Accesses() []Access {
	return append([]Access(nil), e.accesses...)
}
