package rule

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/CodMac/go-archcheck/graph"
	"github.com/CodMac/go-archcheck/model"
)

type predicateOp int

const (
	opAny predicateOp = iota
	opResideInPackage
	opHaveNameMatching
	opHaveSimpleName
	opAnnotatedWith
	opAssignableTo
	opAreInterfaces
	opAndPredicate
	opOrPredicate
	opNotPredicate
)

// TypePredicate 是作用于类型的谓词树。构造函数不会返回错误,
// 不合法的参数 (空模式、非法正则、空的 And/Or) 在规则构建时以 *ConfigError 报告。
type TypePredicate struct {
	op          predicateOp
	arg         string
	re          *regexp.Regexp
	children    []*TypePredicate
	description string
	err         error
}

// Any 匹配所有类型
func Any() *TypePredicate {
	return &TypePredicate{op: opAny}
}

// ResideInPackage 类型所在包匹配包模式。
// 模式中 ".." 表示任意层级的包, "*" 表示一个包名中的任意字符, 例如 "..persistence..", "com.a.."。
// Go 的导入路径按 "/" 与 "." 同等分段。
func ResideInPackage(pattern string) *TypePredicate {
	p := &TypePredicate{op: opResideInPackage, arg: pattern}
	p.re, p.err = compilePackagePattern(pattern)
	return p
}

// ResideOutsideOfPackage 等价于 Not(ResideInPackage(pattern))
func ResideOutsideOfPackage(pattern string) *TypePredicate {
	return Not(ResideInPackage(pattern)).As(fmt.Sprintf("reside outside of package '%s'", pattern))
}

// HaveNameMatching 全限定名完整匹配正则
func HaveNameMatching(expr string) *TypePredicate {
	p := &TypePredicate{op: opHaveNameMatching, arg: expr}
	re, err := regexp.Compile("^(?:" + expr + ")$")
	if err != nil {
		p.err = configErrorf("invalid name pattern %q: %v", expr, err)
	}
	p.re = re
	return p
}

// HaveSimpleName 短名称相等
func HaveSimpleName(name string) *TypePredicate {
	p := &TypePredicate{op: opHaveSimpleName, arg: name}
	if name == "" {
		p.err = configErrorf("empty simple name")
	}
	return p
}

// AnnotatedWith 类型被注解 (全限定名或短名称)
func AnnotatedWith(annotation string) *TypePredicate {
	p := &TypePredicate{op: opAnnotatedWith, arg: annotation}
	if annotation == "" {
		p.err = configErrorf("empty annotation name")
	}
	return p
}

// AssignableTo 类型可赋值给 name (自身、子类或实现类)
func AssignableTo(name string) *TypePredicate {
	p := &TypePredicate{op: opAssignableTo, arg: name}
	if name == "" {
		p.err = configErrorf("empty type name")
	}
	return p
}

// AreInterfaces 类型是接口
func AreInterfaces() *TypePredicate {
	return &TypePredicate{op: opAreInterfaces}
}

// And 所有子谓词都满足
func And(ps ...*TypePredicate) *TypePredicate {
	return &TypePredicate{op: opAndPredicate, children: ps}
}

// Or 任一子谓词满足
func Or(ps ...*TypePredicate) *TypePredicate {
	return &TypePredicate{op: opOrPredicate, children: ps}
}

// Not 取反
func Not(p *TypePredicate) *TypePredicate {
	return &TypePredicate{op: opNotPredicate, children: []*TypePredicate{p}}
}

// As 返回带自定义描述的副本
func (p *TypePredicate) As(description string) *TypePredicate {
	cp := *p
	cp.description = description
	return &cp
}

// Description 返回谓词的可读描述, 用于拼接规则文本
func (p *TypePredicate) Description() string {
	if p.description != "" {
		return p.description
	}
	switch p.op {
	case opAny:
		return "are any classes"
	case opResideInPackage:
		return fmt.Sprintf("reside in a package '%s'", p.arg)
	case opHaveNameMatching:
		return fmt.Sprintf("have name matching '%s'", p.arg)
	case opHaveSimpleName:
		return fmt.Sprintf("have simple name '%s'", p.arg)
	case opAnnotatedWith:
		return "are annotated with @" + model.SimpleNameOf(p.arg)
	case opAssignableTo:
		return "are assignable to " + p.arg
	case opAreInterfaces:
		return "are interfaces"
	case opAndPredicate, opOrPredicate:
		sep := " and "
		if p.op == opOrPredicate {
			sep = " or "
		}
		parts := make([]string, 0, len(p.children))
		for _, c := range p.children {
			if c != nil {
				parts = append(parts, c.Description())
			}
		}
		return strings.Join(parts, sep)
	case opNotPredicate:
		if c := p.children[0]; c != nil {
			return "not " + c.Description()
		}
	}
	return ""
}

// Test 在代码模型上判断类型 t 是否满足谓词
func (p *TypePredicate) Test(m *graph.CodeModel, t *model.ImportedType) bool {
	switch p.op {
	case opAny:
		return true
	case opResideInPackage:
		return p.re.MatchString(packageText(t.Package()))
	case opHaveNameMatching:
		return p.re.MatchString(t.Name)
	case opHaveSimpleName:
		return t.SimpleName() == p.arg
	case opAnnotatedWith:
		return t.HasAnnotation(p.arg)
	case opAssignableTo:
		return m.IsAssignableTo(t.Name, p.arg)
	case opAreInterfaces:
		return t.IsInterface()
	case opAndPredicate:
		for _, c := range p.children {
			if !c.Test(m, t) {
				return false
			}
		}
		return true
	case opOrPredicate:
		for _, c := range p.children {
			if c.Test(m, t) {
				return true
			}
		}
		return false
	case opNotPredicate:
		return !p.children[0].Test(m, t)
	}
	return false
}

// TestName 对只知道名称的类型 (不在模型中) 求值
func (p *TypePredicate) TestName(m *graph.CodeModel, name string) bool {
	if t, ok := m.Type(name); ok {
		return p.Test(m, t)
	}
	return p.Test(m, &model.ImportedType{Name: name, Kind: model.Unknown, Stub: true})
}

// validate 检查整棵树, 返回第一个配置错误
func (p *TypePredicate) validate() error {
	if p == nil {
		return configErrorf("nil type predicate")
	}
	if p.err != nil {
		return p.err
	}
	switch p.op {
	case opAndPredicate, opOrPredicate:
		if len(p.children) == 0 {
			return configErrorf("empty %s", opName(p.op))
		}
	}
	for _, c := range p.children {
		if c == nil {
			return configErrorf("nil operand in %s", opName(p.op))
		}
		if err := c.validate(); err != nil {
			return err
		}
	}
	if p.op == opAndPredicate {
		keys := make(map[string]bool, len(p.children))
		for _, c := range p.children {
			keys[c.key()] = true
		}
		for _, c := range p.children {
			if c.op == opNotPredicate && keys[c.children[0].key()] {
				return configErrorf("contradictory predicate: %s", p.Description())
			}
		}
	}
	return nil
}

// key 是谓词的结构化标识, 忽略描述
func (p *TypePredicate) key() string {
	if len(p.children) == 0 {
		return fmt.Sprintf("%s(%s)", opName(p.op), p.arg)
	}
	parts := make([]string, 0, len(p.children))
	for _, c := range p.children {
		parts = append(parts, c.key())
	}
	return fmt.Sprintf("%s(%s)", opName(p.op), strings.Join(parts, ","))
}

func opName(op predicateOp) string {
	switch op {
	case opAny:
		return "any"
	case opResideInPackage:
		return "resideInPackage"
	case opHaveNameMatching:
		return "haveNameMatching"
	case opHaveSimpleName:
		return "haveSimpleName"
	case opAnnotatedWith:
		return "annotatedWith"
	case opAssignableTo:
		return "assignableTo"
	case opAreInterfaces:
		return "areInterfaces"
	case opAndPredicate:
		return "and"
	case opOrPredicate:
		return "or"
	default:
		return "not"
	}
}

// packageText 把包名规整为 ".a.b." 形式, Go 导入路径的 "/" 视为分段
func packageText(pkg string) string {
	return "." + strings.ReplaceAll(pkg, "/", ".") + "."
}

// compilePackagePattern 把包模式编译为匹配 packageText 的正则
func compilePackagePattern(pattern string) (*regexp.Regexp, error) {
	pat := strings.ReplaceAll(strings.TrimSpace(pattern), "/", ".")
	if pat == "" || strings.Contains(pat, "...") {
		return nil, configErrorf("invalid package pattern %q", pattern)
	}
	if !strings.HasPrefix(pat, "..") {
		pat = "." + pat
	}
	if !strings.HasSuffix(pat, "..") {
		pat += "."
	}

	var sb strings.Builder
	sb.WriteString("^")
	for i := 0; i < len(pat); {
		switch {
		case strings.HasPrefix(pat[i:], ".."):
			sb.WriteString(`\.(?:.*\.)?`)
			i += 2
		case pat[i] == '.':
			sb.WriteString(`\.`)
			i++
		case pat[i] == '*':
			sb.WriteString(`[^.]*`)
			i++
		default:
			j := i
			for j < len(pat) && pat[j] != '.' && pat[j] != '*' {
				j++
			}
			sb.WriteString(regexp.QuoteMeta(pat[i:j]))
			i = j
		}
	}
	sb.WriteString("$")

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, configErrorf("invalid package pattern %q: %v", pattern, err)
	}
	return re, nil
}
