package rule

import (
	"fmt"
	"strings"

	"github.com/CodMac/go-archcheck/graph"
	"github.com/CodMac/go-archcheck/model"
)

type conditionOp int

const (
	opAccessClasses conditionOp = iota
	opCallMethod
	opAccessField
	opDependOn
	opExtendOrImplement
	opBeAnnotatedWith
	opBeInPackage
	opAndCondition
	opOrCondition
	opNotCondition
	opNever
)

// Condition 是规则的条件树。边条件作用于调用点 (以及继承边),
// 类型条件作用于范围内的类型本身; 两者不能在同一棵树中混用。
type Condition struct {
	op          conditionOp
	target      *TypePredicate
	name        string
	params      []string
	children    []*Condition
	description string
}

// AccessClassesThat 方法调用、构造器调用或字段访问的目标类型满足 p
func AccessClassesThat(p *TypePredicate) *Condition {
	return &Condition{op: opAccessClasses, target: p}
}

// CallMethod 调用 owner 满足谓词的类型上名为 name 的方法; 不给 params 时匹配任意重载。
// name 为 "<init>" 时匹配构造器调用。
func CallMethod(owner *TypePredicate, name string, params ...string) *Condition {
	c := &Condition{op: opCallMethod, target: owner, name: name}
	if params != nil {
		c.params = params
	}
	return c
}

// AccessField 访问目标类型满足 p 的字段; name 为空时匹配任意字段
func AccessField(p *TypePredicate, name string) *Condition {
	return &Condition{op: opAccessField, target: p, name: name}
}

// DependOnClassesThat 任意依赖边 (访问、继承、实现) 的目标类型满足 p
func DependOnClassesThat(p *TypePredicate) *Condition {
	return &Condition{op: opDependOn, target: p}
}

// ExtendOrImplement 父类或实现的接口满足 p
func ExtendOrImplement(p *TypePredicate) *Condition {
	return &Condition{op: opExtendOrImplement, target: p}
}

// BeAnnotatedWith 类型条件: 被注解
func BeAnnotatedWith(annotation string) *Condition {
	return &Condition{op: opBeAnnotatedWith, target: AnnotatedWith(annotation), name: annotation}
}

// BeInPackage 类型条件: 位于匹配模式的包中
func BeInPackage(pattern string) *Condition {
	return &Condition{op: opBeInPackage, target: ResideInPackage(pattern), name: pattern}
}

// AndCondition 所有子条件都满足
func AndCondition(cs ...*Condition) *Condition {
	return &Condition{op: opAndCondition, children: cs}
}

// OrCondition 任一子条件满足
func OrCondition(cs ...*Condition) *Condition {
	return &Condition{op: opOrCondition, children: cs}
}

// NotCondition 取反
func NotCondition(c *Condition) *Condition {
	return &Condition{op: opNotCondition, children: []*Condition{c}}
}

// Never 用于 Classes().Should(Never(c)), 语义同 NoClasses().Should(c); 只能位于条件树的最外层
func Never(c *Condition) *Condition {
	return &Condition{op: opNever, children: []*Condition{c}}
}

// As 返回带自定义描述的副本
func (c *Condition) As(description string) *Condition {
	cp := *c
	cp.description = description
	return &cp
}

// Description 返回条件的可读描述
func (c *Condition) Description() string {
	if c.description != "" {
		return c.description
	}
	switch c.op {
	case opAccessClasses:
		return "access classes that " + c.target.Description()
	case opCallMethod:
		what := "method"
		if c.name == model.ConstructorName {
			what = "constructor"
		}
		sig := c.name
		if c.params != nil {
			sig += "(" + strings.Join(c.params, ", ") + ")"
		}
		return fmt.Sprintf("call %s %s of classes that %s", what, sig, c.target.Description())
	case opAccessField:
		if c.name == "" {
			return "access fields of classes that " + c.target.Description()
		}
		return fmt.Sprintf("access field %s of classes that %s", c.name, c.target.Description())
	case opDependOn:
		return "depend on classes that " + c.target.Description()
	case opExtendOrImplement:
		return "extend or implement classes that " + c.target.Description()
	case opBeAnnotatedWith:
		return "be annotated with @" + model.SimpleNameOf(c.name)
	case opBeInPackage:
		return fmt.Sprintf("reside in a package '%s'", c.name)
	case opAndCondition, opOrCondition:
		sep := " and "
		if c.op == opOrCondition {
			sep = " or "
		}
		parts := make([]string, 0, len(c.children))
		for _, child := range c.children {
			if child != nil {
				parts = append(parts, child.Description())
			}
		}
		return strings.Join(parts, sep)
	case opNotCondition:
		if child := c.children[0]; child != nil {
			return "not " + child.Description()
		}
	case opNever:
		if child := c.children[0]; child != nil {
			return "never " + child.Description()
		}
	}
	return ""
}

// typeLevel 判断条件作用于类型而非依赖边; 调用前树已通过校验
func (c *Condition) typeLevel() bool {
	switch c.op {
	case opBeAnnotatedWith, opBeInPackage:
		return true
	case opAndCondition, opOrCondition, opNotCondition, opNever:
		return c.children[0].typeLevel()
	default:
		return false
	}
}

// validate 检查条件树; top 表示是否位于最外层
func (c *Condition) validate(top bool) error {
	if c == nil {
		return configErrorf("nil condition")
	}
	switch c.op {
	case opAndCondition, opOrCondition:
		if len(c.children) == 0 {
			return configErrorf("empty %s condition", condName(c.op))
		}
	case opNever:
		if !top {
			return configErrorf("never(...) must be the outermost condition")
		}
	case opCallMethod:
		if c.name == "" {
			return configErrorf("call method without a method name")
		}
	}
	if c.target != nil {
		if err := c.target.validate(); err != nil {
			return err
		}
	} else if len(c.children) == 0 {
		return configErrorf("%s without a target predicate", condName(c.op))
	}

	level := -1
	for _, child := range c.children {
		if child == nil {
			return configErrorf("nil operand in %s condition", condName(c.op))
		}
		if err := child.validate(false); err != nil {
			return err
		}
		l := 0
		if child.typeLevel() {
			l = 1
		}
		if level >= 0 && l != level {
			return configErrorf("cannot combine type conditions with dependency conditions: %s", c.Description())
		}
		level = l
	}
	return nil
}

// appliesTo 判断调用点是否属于条件关心的依赖种类。
// Classes().Should(...) 只检查这些边。
func (c *Condition) appliesTo(cs *model.CallSite) bool {
	switch c.op {
	case opAccessClasses:
		return cs.Kind.IsAccess()
	case opCallMethod:
		return cs.Kind == model.Call || cs.Kind == model.Create
	case opAccessField:
		return cs.Kind == model.Use
	case opDependOn:
		return true
	case opExtendOrImplement:
		return cs.Kind == model.Extend || cs.Kind == model.Implement
	default:
		for _, child := range c.children {
			if child.appliesTo(cs) {
				return true
			}
		}
		return false
	}
}

// matchEdge 判断依赖边是否满足条件
func (c *Condition) matchEdge(m *graph.CodeModel, cs *model.CallSite) bool {
	switch c.op {
	case opAccessClasses:
		return cs.Kind.IsAccess() && c.target.TestName(m, cs.TargetType)
	case opCallMethod:
		if !(cs.Kind == model.Call || cs.Kind == model.Create) || cs.TargetMember != c.name {
			return false
		}
		if c.params != nil && strings.Join(c.params, ",") != strings.Join(cs.TargetParams, ",") {
			return false
		}
		return c.target.TestName(m, cs.TargetType)
	case opAccessField:
		return cs.Kind == model.Use && (c.name == "" || cs.TargetMember == c.name) && c.target.TestName(m, cs.TargetType)
	case opDependOn:
		return c.target.TestName(m, cs.TargetType)
	case opExtendOrImplement:
		return (cs.Kind == model.Extend || cs.Kind == model.Implement) && c.target.TestName(m, cs.TargetType)
	case opAndCondition:
		for _, child := range c.children {
			if !child.matchEdge(m, cs) {
				return false
			}
		}
		return true
	case opOrCondition:
		for _, child := range c.children {
			if child.matchEdge(m, cs) {
				return true
			}
		}
		return false
	case opNotCondition:
		return !c.children[0].matchEdge(m, cs)
	case opNever:
		return c.children[0].matchEdge(m, cs)
	}
	return false
}

// matchType 判断类型是否满足类型条件
func (c *Condition) matchType(m *graph.CodeModel, t *model.ImportedType) bool {
	switch c.op {
	case opBeAnnotatedWith, opBeInPackage:
		return c.target.Test(m, t)
	case opAndCondition:
		for _, child := range c.children {
			if !child.matchType(m, t) {
				return false
			}
		}
		return true
	case opOrCondition:
		for _, child := range c.children {
			if child.matchType(m, t) {
				return true
			}
		}
		return false
	case opNotCondition:
		return !c.children[0].matchType(m, t)
	case opNever:
		return c.children[0].matchType(m, t)
	}
	return false
}

func condName(op conditionOp) string {
	switch op {
	case opAndCondition:
		return "and"
	case opOrCondition:
		return "or"
	case opNotCondition:
		return "not"
	case opNever:
		return "never"
	case opAccessClasses:
		return "access classes"
	case opCallMethod:
		return "call method"
	case opAccessField:
		return "access field"
	case opDependOn:
		return "depend on"
	case opExtendOrImplement:
		return "extend or implement"
	default:
		return "type condition"
	}
}
