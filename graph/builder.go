package graph

import (
	"fmt"
	"sort"

	"github.com/CodMac/go-archcheck/model"
)

// Builder 组装代码模型。导入阶段单线程按固定顺序调用 Add, 最后调用一次 Build。
// Build 会就地回填调用点的形参签名, 之后 Builder 不应再被使用。
type Builder struct {
	types    map[string]*model.ImportedType
	warnings []model.ImportWarning
}

// NewBuilder 创建空的 Builder
func NewBuilder() *Builder {
	return &Builder{types: make(map[string]*model.ImportedType)}
}

// Add 加入一个类型; 同名类型被替换
func (b *Builder) Add(t *model.ImportedType) {
	b.types[t.Name] = t
}

// Lookup 返回已加入的类型
func (b *Builder) Lookup(name string) (*model.ImportedType, bool) {
	t, ok := b.types[name]
	return t, ok
}

// Warn 记录一条导入期告警
func (b *Builder) Warn(w model.ImportWarning) {
	b.warnings = append(b.warnings, w)
}

// Build 补齐桩节点, 计算类型层级, 解析调用点重载并冻结为 CodeModel
func (b *Builder) Build() *CodeModel {
	b.resolveReceivers()
	b.addStubs()

	m := &CodeModel{
		types:  b.types,
		supers: make(map[string][]string, len(b.types)),
		subs:   make(map[string][]string),
	}
	for name := range b.types {
		m.names = append(m.names, name)
	}
	sort.Strings(m.names)

	for _, name := range m.names {
		supers := b.supertypes(name)
		m.supers[name] = supers
		for _, s := range supers {
			m.subs[s] = append(m.subs[s], name)
		}
	}
	for _, subs := range m.subs {
		sort.Strings(subs)
	}

	for _, name := range m.names {
		t := b.types[name]
		for _, mem := range t.Members {
			for _, cs := range mem.CallSites {
				if !cs.Resolved {
					b.resolve(m, cs)
				}
				m.sites = append(m.sites, cs)
			}
		}
		if !t.Stub {
			m.edges = append(m.edges, b.hierarchyEdges(t)...)
		}
	}
	sortSites(m.sites)
	sortSites(m.edges)

	m.warnings = b.warnings
	return m
}

// addStubs 为被引用但未定义的类型创建仅有名称的桩节点
func (b *Builder) addStubs() {
	var referenced []string
	for _, t := range b.types {
		referenced = append(referenced, t.SuperClass)
		referenced = append(referenced, t.Interfaces...)
		for _, mem := range t.Members {
			for _, cs := range mem.CallSites {
				referenced = append(referenced, cs.TargetType)
			}
		}
	}
	for _, name := range referenced {
		if name == "" || model.ElementTypeName(name) != name {
			continue
		}
		if _, ok := b.types[name]; !ok {
			b.types[name] = &model.ImportedType{Name: name, Kind: model.Unknown, Stub: true}
		}
	}
}

// resolveReceivers 在完整模型上沿访问链求出源码中推断不出的接收者类型。
// 求出的调用点按行号并入所在成员, 求不出的记为 UNRESOLVED_REFERENCE 告警。
func (b *Builder) resolveReceivers() {
	names := make([]string, 0, len(b.types))
	for name := range b.types {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, mem := range b.types[name].Members {
			for _, cs := range mem.Pending {
				target, ok := b.followChain(cs.Receiver)
				if !ok {
					var expr string
					if cs.Receiver != nil {
						expr = cs.Receiver.Expr
					}
					msg := fmt.Sprintf("cannot determine receiver type of '%s' for %s at line %d",
						expr, cs.TargetMember, cs.Line)
					b.Warn(model.ImportWarning{Kind: model.UnresolvedReference, Type: cs.OriginType, Message: msg})
					continue
				}
				cs.TargetType = target
				cs.Receiver = nil
				mem.CallSites = insertByLine(mem.CallSites, cs)
			}
			mem.Pending = nil
		}
	}
}

// followChain 从链首类型出发依次查找字段类型或方法返回类型, 成员沿父类型继承查找
func (b *Builder) followChain(c *model.ReceiverChain) (string, bool) {
	if c == nil {
		return "", false
	}
	cur := c.Base
	for _, step := range c.Steps {
		if !isClassName(cur) {
			return "", false
		}
		next := ""
		for _, owner := range append([]string{cur}, b.supertypes(cur)...) {
			t, ok := b.types[owner]
			if !ok {
				continue
			}
			if step.Field {
				if f := fieldNamed(t, step.Name); f != nil {
					next = f.ReturnType
				}
			} else if cands := candidates(t, step.Name, step.ArgCount); len(cands) > 0 {
				next = cands[0].ReturnType
			}
			if next != "" {
				break
			}
		}
		cur = next
	}
	return cur, isClassName(cur)
}

// insertByLine 把调用点插到第一个行号更大的调用点之前
func insertByLine(sites []*model.CallSite, cs *model.CallSite) []*model.CallSite {
	i := 0
	for i < len(sites) && sites[i].Line <= cs.Line {
		i++
	}
	return append(sites[:i], append([]*model.CallSite{cs}, sites[i:]...)...)
}

func fieldNamed(t *model.ImportedType, name string) *model.ImportedMember {
	for _, mem := range t.Members {
		if mem.Kind == model.Field && mem.Name == name {
			return mem
		}
	}
	return nil
}

func isClassName(t string) bool {
	return t != "" && model.ElementTypeName(t) == t
}

// supertypes 广度优先遍历父类与接口, 环安全
func (b *Builder) supertypes(name string) []string {
	var out []string
	seen := map[string]bool{name: true}
	queue := []string{name}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		t, ok := b.types[cur]
		if !ok {
			continue
		}
		next := append([]string{t.SuperClass}, t.Interfaces...)
		for _, s := range next {
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
			queue = append(queue, s)
		}
	}
	return out
}

// resolve 沿静态目标类型及其父类型按名称与实参个数选择重载, 回填 TargetParams
func (b *Builder) resolve(m *CodeModel, cs *model.CallSite) {
	cs.Resolved = true
	if cs.Kind == model.Use || cs.TargetMember == "" {
		return
	}

	owners := m.lineage(cs.TargetType)
	if cs.Kind == model.Create && len(owners) > 1 {
		owners = owners[:1]
	}
	for _, owner := range owners {
		cands := candidates(owner, cs.TargetMember, cs.ArgCount)
		if len(cands) == 0 {
			continue
		}
		best := b.pick(m, cands, cs.ArgTypes)
		cs.TargetParams = append([]string(nil), best.ParamTypes...)
		return
	}

	if cs.ArgCount == 0 {
		return
	}
	if known(cs.ArgTypes, cs.ArgCount) {
		cs.TargetParams = append([]string(nil), cs.ArgTypes...)
	}
	if hierarchyKnown(owners) && !(cs.Kind == model.Create && !hasConstructor(owners)) {
		b.Warn(model.ImportWarning{
			Kind:    model.UnresolvedReference,
			Type:    cs.OriginType,
			Message: fmt.Sprintf("no member %s/%d on %s at line %d", cs.TargetMember, cs.ArgCount, cs.TargetType, cs.Line),
		})
	}
}

// pick 在同名同元数的候选中选择与已知实参类型最匹配者, 平局取声明顺序靠前者
func (b *Builder) pick(m *CodeModel, cands []*model.ImportedMember, args []string) *model.ImportedMember {
	best, bestScore := cands[0], -1
	for _, c := range cands {
		score := 0
		for i, arg := range args {
			if arg == "" {
				continue
			}
			p := paramAt(c, i)
			if p == arg {
				score += 2
				continue
			}
			ep, ea := model.ElementTypeName(p), model.ElementTypeName(arg)
			if ep != "" && ea != "" && m.IsAssignableTo(ea, ep) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	return best
}

// hierarchyKnown 为 true 表示目标类型及所有父类型都是带成员信息的节点,
// 此时找不到成员才是真正的未解析引用。
func hierarchyKnown(owners []*model.ImportedType) bool {
	if len(owners) == 0 {
		return false
	}
	for _, o := range owners {
		if o.Stub && len(o.Members) == 0 {
			return false
		}
	}
	return true
}

// candidates 返回名称相同且形参个数与实参个数兼容的方法或构造器
func candidates(t *model.ImportedType, name string, arity int) []*model.ImportedMember {
	var out []*model.ImportedMember
	for _, mem := range t.MethodsNamed(name) {
		n := len(mem.ParamTypes)
		if n == arity || (mem.IsVarargs() && arity >= n-1) {
			out = append(out, mem)
		}
	}
	return out
}

// paramAt 返回第 i 个实参对应的形参类型, 可变参数展开为元素类型
func paramAt(mem *model.ImportedMember, i int) string {
	n := len(mem.ParamTypes)
	if n == 0 {
		return ""
	}
	if mem.IsVarargs() && i >= n-1 {
		last := mem.ParamTypes[n-1]
		if i == n-1 {
			return last
		}
		return model.ElementTypeName(last)
	}
	if i < n {
		return mem.ParamTypes[i]
	}
	return ""
}

func known(args []string, count int) bool {
	if len(args) != count {
		return false
	}
	for _, a := range args {
		if a == "" {
			return false
		}
	}
	return true
}

func hasConstructor(owners []*model.ImportedType) bool {
	return len(owners) > 0 && len(owners[0].MethodsNamed(model.ConstructorName)) > 0
}

// hierarchyEdges 把父类与接口声明转为出处为声明行的边。
// 接口之间以及 Go 的嵌入都视为 EXTEND, 目标已知是接口时加以标记。
func (b *Builder) hierarchyEdges(t *model.ImportedType) []*model.CallSite {
	var out []*model.CallSite
	edge := func(kind model.DependencyType, target string) *model.CallSite {
		cs := &model.CallSite{
			Kind:       kind,
			OriginType: t.Name,
			TargetType: target,
			Line:       t.DeclarationLine(),
			SourceFile: t.SourceFile,
			Resolved:   true,
		}
		out = append(out, cs)
		return cs
	}
	if t.SuperClass != "" {
		edge(model.Extend, t.SuperClass)
	}
	for _, i := range t.Interfaces {
		if !t.IsInterface() && !t.Partial {
			edge(model.Implement, i)
			continue
		}
		cs := edge(model.Extend, i)
		if target, ok := b.types[i]; ok && target.IsInterface() {
			cs.TargetInterface = true
		} else if !ok || target.Kind == model.Unknown {
			// Java 接口只能继承接口
			cs.TargetInterface = t.IsInterface() && !t.Partial
		}
	}
	return out
}
