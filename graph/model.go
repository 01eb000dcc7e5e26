package graph

import (
	"slices"
	"sort"

	"github.com/CodMac/go-archcheck/model"
)

// ObjectType 所有 JVM 类型的隐式根
const ObjectType = "java.lang.Object"

// CodeModel 是导入完成后的不可变代码模型。
// Build 之后不再有任何写入，因此可以被多个 goroutine 无锁并发读取。
type CodeModel struct {
	types    map[string]*model.ImportedType
	names    []string            // 排序后的类型名
	supers   map[string][]string // 传递父类型, BFS 顺序 (先父类后接口)
	subs     map[string][]string // 传递子类型, 排序
	sites    []*model.CallSite   // 成员级调用点, 排序
	edges    []*model.CallSite   // 继承/实现边, 排序
	warnings []model.ImportWarning
}

// Type 按全限定名查找类型 (包括桩节点)
func (m *CodeModel) Type(name string) (*model.ImportedType, bool) {
	t, ok := m.types[name]
	return t, ok
}

// Types 返回全部类型, 按名称排序
func (m *CodeModel) Types() []*model.ImportedType {
	out := make([]*model.ImportedType, 0, len(m.names))
	for _, n := range m.names {
		out = append(out, m.types[n])
	}
	return out
}

// Len 返回类型数量
func (m *CodeModel) Len() int { return len(m.names) }

// SupertypesOf 返回传递父类型, 按广度优先 (父类先于接口)
func (m *CodeModel) SupertypesOf(name string) []string {
	return append([]string(nil), m.supers[name]...)
}

// SubtypesOf 返回传递子类型, 按名称排序
func (m *CodeModel) SubtypesOf(name string) []string {
	return append([]string(nil), m.subs[name]...)
}

// IsAssignableTo 判断 name 的实例是否可赋值给 super (自反; 任何引用类型都可赋值给 java.lang.Object)
func (m *CodeModel) IsAssignableTo(name, super string) bool {
	if name == super {
		return true
	}
	if super == ObjectType && model.ElementTypeName(name) == name {
		return true
	}
	for _, s := range m.supers[name] {
		if s == super {
			return true
		}
	}
	return false
}

// CallSites 返回满足 pred 的成员级调用点; pred 为 nil 时返回全部。
// 结果按 (调用方类型, 调用方成员, 行号, 目标) 排序。
func (m *CodeModel) CallSites(pred func(*model.CallSite) bool) []*model.CallSite {
	return filter(m.sites, pred)
}

// HierarchyEdges 返回由父类与接口声明推导出的 EXTEND/IMPLEMENT 边
func (m *CodeModel) HierarchyEdges(pred func(*model.CallSite) bool) []*model.CallSite {
	return filter(m.edges, pred)
}

// Dependencies 返回调用点与继承边的并集, 排序规则同 CallSites
func (m *CodeModel) Dependencies(pred func(*model.CallSite) bool) []*model.CallSite {
	all := append(filter(m.sites, pred), filter(m.edges, pred)...)
	sortSites(all)
	return all
}

// TypesAnnotatedWith 返回被 annotation 注解的类型 (全限定名或短名称)
func (m *CodeModel) TypesAnnotatedWith(annotation string) []*model.ImportedType {
	var out []*model.ImportedType
	for _, t := range m.Types() {
		if t.HasAnnotation(annotation) {
			out = append(out, t)
		}
	}
	return out
}

// MembersAnnotatedWith 返回被 annotation 注解的成员, 按类型名与声明顺序
func (m *CodeModel) MembersAnnotatedWith(annotation string) []*model.ImportedMember {
	var out []*model.ImportedMember
	for _, t := range m.Types() {
		for _, mem := range t.Members {
			if mem.HasAnnotation(annotation) {
				out = append(out, mem)
			}
		}
	}
	return out
}

// FindMember 在类型及其父类型中按名称与形参查找成员
func (m *CodeModel) FindMember(typeName, name string, params []string) *model.ImportedMember {
	for _, owner := range m.lineage(typeName) {
		if mem := owner.Member(name, params); mem != nil {
			return mem
		}
	}
	return nil
}

// ResolveMethod 按名称与实参个数解析重载, 从静态类型开始沿父类型查找
func (m *CodeModel) ResolveMethod(typeName, name string, arity int) *model.ImportedMember {
	for _, owner := range m.lineage(typeName) {
		if cands := candidates(owner, name, arity); len(cands) > 0 {
			return cands[0]
		}
	}
	return nil
}

// Warnings 返回导入期告警
func (m *CodeModel) Warnings() []model.ImportWarning {
	return append([]model.ImportWarning(nil), m.warnings...)
}

// lineage 返回类型自身及其已知父类型
func (m *CodeModel) lineage(name string) []*model.ImportedType {
	var out []*model.ImportedType
	if t, ok := m.types[name]; ok {
		out = append(out, t)
	}
	for _, s := range m.supers[name] {
		if t, ok := m.types[s]; ok {
			out = append(out, t)
		}
	}
	return out
}

func filter(sites []*model.CallSite, pred func(*model.CallSite) bool) []*model.CallSite {
	out := make([]*model.CallSite, 0, len(sites))
	for _, cs := range sites {
		if pred == nil || pred(cs) {
			out = append(out, cs)
		}
	}
	return out
}

func sortSites(sites []*model.CallSite) {
	sort.SliceStable(sites, func(i, j int) bool {
		return lessSite(sites[i], sites[j])
	})
}

// lessSite 按 (调用方类型, 调用方成员名, 行号) 排序; 重载的形参与目标只用于打破平局
func lessSite(a, b *model.CallSite) bool {
	if a.OriginType != b.OriginType {
		return a.OriginType < b.OriginType
	}
	if a.OriginMember != b.OriginMember {
		return a.OriginMember < b.OriginMember
	}
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	if c := slices.Compare(a.OriginParams, b.OriginParams); c != 0 {
		return c < 0
	}
	if a.TargetType != b.TargetType {
		return a.TargetType < b.TargetType
	}
	if a.TargetMember != b.TargetMember {
		return a.TargetMember < b.TargetMember
	}
	if c := slices.Compare(a.TargetParams, b.TargetParams); c != 0 {
		return c < 0
	}
	return a.Kind < b.Kind
}
