package rule

import (
	"errors"
	"fmt"
	"strings"
)

// Priority 规则优先级, 出现在失败报告中
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// ParsePriority 解析优先级, 空串为 MEDIUM
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToUpper(strings.TrimSpace(s))); p {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, nil
	default:
		return "", configErrorf("unknown priority %q", s)
	}
}

// Quantifier 规则的量词
type Quantifier int

const (
	// QuantifierNo "范围内没有类型满足条件"
	QuantifierNo Quantifier = iota
	// QuantifierAll "范围内每个类型都满足条件"
	QuantifierAll
)

// ArchRule 是构建完成的不可变规则, 可在多个 goroutine 中并发求值
type ArchRule struct {
	Description string
	Priority    Priority

	quantifier Quantifier
	scope      *TypePredicate
	condition  *Condition
}

// Quantifier 返回规范化后的量词 (Classes().Should(Never(c)) 视为 NoClasses)
func (r *ArchRule) Quantifier() Quantifier { return r.quantifier }

// Scope 返回范围谓词
func (r *ArchRule) Scope() *TypePredicate { return r.scope }

// Condition 返回条件
func (r *ArchRule) Condition() *Condition { return r.condition }

func (r *ArchRule) String() string { return r.Description }

// New 校验并构建规则。scope 为 nil 表示所有类型, description 为空时自动生成。
func New(q Quantifier, scope *TypePredicate, cond *Condition, description string, priority Priority) (*ArchRule, error) {
	if scope == nil {
		scope = Any()
	}
	if err := scope.validate(); err != nil {
		return nil, withRule(err, description)
	}
	if err := cond.validate(true); err != nil {
		return nil, withRule(err, description)
	}
	priority, err := ParsePriority(string(priority))
	if err != nil {
		return nil, withRule(err, description)
	}

	if description == "" {
		description = describe(q, scope, cond)
	}

	// Classes().Should(Never(c)) 规范化为 NoClasses().Should(c)
	eval := cond
	if cond.op == opNever {
		eval = cond.children[0]
		if q == QuantifierAll {
			q = QuantifierNo
		} else {
			q = QuantifierAll
		}
	}

	return &ArchRule{
		Description: description,
		Priority:    priority,
		quantifier:  q,
		scope:       scope,
		condition:   eval,
	}, nil
}

func describe(q Quantifier, scope *TypePredicate, cond *Condition) string {
	var sb strings.Builder
	if q == QuantifierNo {
		sb.WriteString("no classes")
	} else {
		sb.WriteString("classes")
	}
	if scope.op != opAny || scope.description != "" {
		sb.WriteString(" that ")
		sb.WriteString(scope.Description())
	}
	sb.WriteString(" should ")
	sb.WriteString(cond.Description())
	return sb.String()
}

func withRule(err error, rule string) error {
	var ce *ConfigError
	if errors.As(err, &ce) && ce.Rule == "" {
		cp := *ce
		cp.Rule = rule
		return &cp
	}
	return err
}

// Builder 以链式调用声明规则:
//
//	rule.Classes().That(rule.Not(rule.AnnotatedWith("MyDao")).As("are no DAOs")).
//		Should(rule.Never(rule.AccessClassesThat(rule.AssignableTo("javax.persistence.EntityManager")))).
//		Build()
type Builder struct {
	quantifier  Quantifier
	scope       *TypePredicate
	condition   *Condition
	description string
	priority    Priority
}

// NoClasses 开始声明 "没有类型应当..." 的规则
func NoClasses() *Builder {
	return &Builder{quantifier: QuantifierNo}
}

// Classes 开始声明 "所有类型应当..." 的规则
func Classes() *Builder {
	return &Builder{quantifier: QuantifierAll}
}

// That 限定规则的范围
func (b *Builder) That(p *TypePredicate) *Builder {
	b.scope = p
	return b
}

// Should 设置条件
func (b *Builder) Should(c *Condition) *Builder {
	b.condition = c
	return b
}

// As 覆盖自动生成的规则文本
func (b *Builder) As(description string) *Builder {
	b.description = description
	return b
}

// WithPriority 设置优先级
func (b *Builder) WithPriority(p Priority) *Builder {
	b.priority = p
	return b
}

// Build 校验并返回规则
func (b *Builder) Build() (*ArchRule, error) {
	return New(b.quantifier, b.scope, b.condition, b.description, b.priority)
}

// MustBuild 同 Build, 配置错误时 panic; 用于包级变量声明规则
func (b *Builder) MustBuild() *ArchRule {
	r, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("rule: %v", err))
	}
	return r
}
