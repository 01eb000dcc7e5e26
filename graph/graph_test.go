package graph_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodMac/go-archcheck/graph"
	"github.com/CodMac/go-archcheck/model"
)

const (
	object = "java.lang.Object"
	em     = "javax.persistence.EntityManager"
	myEM   = "com.example.service.Service$MyEntityManager"
	svc    = "com.example.service.Service"
)

func method(owner, name string, params ...string) *model.ImportedMember {
	return &model.ImportedMember{Owner: owner, Name: name, Kind: model.Method, ParamTypes: params}
}

func call(target, member string, line int, args ...string) *model.CallSite {
	return &model.CallSite{
		Kind:         model.Call,
		OriginType:   svc,
		OriginMember: "use",
		TargetType:   target,
		TargetMember: member,
		Line:         line,
		ArgCount:     len(args),
		ArgTypes:     args,
	}
}

// fixture 构造一个小型的类型层级:
// Service$MyEntityManager -> (extends Object, implements EntityManager)
func fixture(sites ...*model.CallSite) []*model.ImportedType {
	entityManager := &model.ImportedType{
		Name: em, Kind: model.Interface,
		Members: []*model.ImportedMember{
			method(em, "persist", object),
			method(em, "find", "java.lang.Class", object),
			method(em, "find", "java.lang.Class", object, "java.util.Map"),
		},
	}
	mine := &model.ImportedType{
		Name: myEM, Kind: model.Class, SuperClass: object, Interfaces: []string{em},
		Location: &model.Location{StartLine: 28},
		Members: []*model.ImportedMember{
			method(myEM, "log", "java.lang.String"),
			method(myEM, "log", "int"),
			func() *model.ImportedMember {
				m := method(myEM, "format", "java.lang.String", "java.lang.Object[]")
				m.Modifiers = []string{"varargs"}
				return m
			}(),
		},
	}
	use := method(svc, "use")
	use.CallSites = sites
	service := &model.ImportedType{
		Name: svc, Kind: model.Class, SuperClass: object,
		Location: &model.Location{StartLine: 10},
		Members:  []*model.ImportedMember{use},
	}
	return []*model.ImportedType{entityManager, mine, service}
}

func build(types []*model.ImportedType) *graph.CodeModel {
	b := graph.NewBuilder()
	for _, t := range types {
		b.Add(t)
	}
	return b.Build()
}

func TestBuild_ResolvesOverloadsThroughSupertypes(t *testing.T) {
	m := build(fixture(
		call(em, "persist", 24, ""),
		call(myEM, "persist", 25, ""),
		call(myEM, "log", 26, "int"),
		call(myEM, "log", 27, "java.lang.String"),
		call(myEM, "format", 28, "java.lang.String", "", ""),
		call(em, "find", 29, "java.lang.Class", ""),
	))

	got := map[int][]string{}
	for _, cs := range m.CallSites(nil) {
		assert.True(t, cs.Resolved)
		got[cs.Line] = cs.TargetParams
	}
	assert.Equal(t, []string{object}, got[24])
	assert.Equal(t, []string{object}, got[25], "inherited from the interface")
	assert.Equal(t, []string{"int"}, got[26])
	assert.Equal(t, []string{"java.lang.String"}, got[27])
	assert.Equal(t, []string{"java.lang.String", "java.lang.Object[]"}, got[28], "varargs")
	assert.Equal(t, []string{"java.lang.Class", object}, got[29])
	assert.Empty(t, m.Warnings())
}

func TestBuild_UnresolvedReferences(t *testing.T) {
	m := build(fixture(
		call("java.util.List", "add", 30, object),
		call(em, "detach", 31, object),
	))

	list, ok := m.Type("java.util.List")
	require.True(t, ok, "referenced types become stubs")
	assert.True(t, list.Stub)
	assert.Equal(t, model.Unknown, list.Kind)

	sites := m.CallSites(nil)
	require.Len(t, sites, 2)
	assert.Equal(t, []string{object}, sites[0].TargetParams, "known argument types are kept for stubs")

	warnings := m.Warnings()
	require.Len(t, warnings, 1, "only the fully known interface is reported")
	assert.Equal(t, model.UnresolvedReference, warnings[0].Kind)
	assert.Contains(t, warnings[0].Message, "detach")
}

func TestCodeModel_Hierarchy(t *testing.T) {
	m := build(fixture())

	assert.Equal(t, []string{object, em}, m.SupertypesOf(myEM))
	assert.Equal(t, []string{myEM}, m.SubtypesOf(em))
	assert.Equal(t, []string{svc, myEM}, m.SubtypesOf(object))

	assert.True(t, m.IsAssignableTo(myEM, em))
	assert.True(t, m.IsAssignableTo(myEM, myEM))
	assert.True(t, m.IsAssignableTo(em, object), "every reference type is an Object")
	assert.False(t, m.IsAssignableTo(em, myEM))
	assert.False(t, m.IsAssignableTo("int", object))

	edges := m.HierarchyEdges(nil)
	var kinds []string
	for _, e := range edges {
		kinds = append(kinds, string(e.Kind)+" "+e.OriginType+" -> "+e.TargetType)
	}
	assert.Equal(t, []string{
		"EXTEND " + svc + " -> " + object,
		"EXTEND " + myEM + " -> " + object,
		"IMPLEMENT " + myEM + " -> " + em,
	}, kinds)
	assert.Equal(t, 28, edges[1].Line)
}

func TestCodeModel_CyclicHierarchy(t *testing.T) {
	m := build([]*model.ImportedType{
		{Name: "a.A", Kind: model.Class, SuperClass: "a.B"},
		{Name: "a.B", Kind: model.Class, SuperClass: "a.A"},
	})
	assert.Equal(t, []string{"a.B"}, m.SupertypesOf("a.A"))
	assert.Equal(t, []string{"a.A"}, m.SupertypesOf("a.B"))
	assert.True(t, m.IsAssignableTo("a.A", "a.B"))
}

func TestCodeModel_Lookups(t *testing.T) {
	types := fixture()
	types[2].Annotations = []model.Annotation{{Name: "com.example.MyService"}}
	types[1].Members[0].Annotations = []model.Annotation{{Name: "java.lang.Deprecated"}}
	m := build(types)

	assert.Equal(t, 4, m.Len(), "java.lang.Object stub included")
	var names []string
	for _, typ := range m.Types() {
		names = append(names, typ.Name)
	}
	assert.Equal(t, []string{svc, myEM, object, em}, names)

	require.Len(t, m.TypesAnnotatedWith("MyService"), 1)
	require.Len(t, m.MembersAnnotatedWith("Deprecated"), 1)
	assert.Equal(t, "log", m.MembersAnnotatedWith("java.lang.Deprecated")[0].Name)

	assert.NotNil(t, m.FindMember(myEM, "persist", []string{object}), "inherited member")
	assert.Nil(t, m.FindMember(myEM, "persist", []string{"int"}))
	assert.NotNil(t, m.ResolveMethod(myEM, "find", 3))
	assert.Nil(t, m.ResolveMethod("missing.Type", "find", 3))

	_, ok := m.Type("missing.Type")
	assert.False(t, ok)
}

// 相同输入以不同顺序加入, 模型查询结果一致
func TestBuild_Deterministic(t *testing.T) {
	sites := func() []*model.CallSite {
		return []*model.CallSite{
			call(myEM, "persist", 25, ""),
			call(em, "persist", 24, ""),
			call(myEM, "log", 24, "int"),
		}
	}
	forward := fixture(sites()...)
	backward := fixture(sites()...)
	for i, j := 0, len(backward)-1; i < j; i, j = i+1, j-1 {
		backward[i], backward[j] = backward[j], backward[i]
	}

	a, b := build(forward), build(backward)
	if diff := cmp.Diff(a.CallSites(nil), b.CallSites(nil)); diff != "" {
		t.Errorf("call sites differ (-forward +backward):\n%s", diff)
	}
	if diff := cmp.Diff(a.Types(), b.Types()); diff != "" {
		t.Errorf("types differ (-forward +backward):\n%s", diff)
	}

	var order []int
	for _, cs := range a.CallSites(nil) {
		order = append(order, cs.Line)
	}
	assert.Equal(t, []int{24, 24, 25}, order)
	assert.Equal(t, myEM, a.CallSites(nil)[0].TargetType, "same line ordered by target")
}

func TestCodeModel_OverloadedCallersOrderedByLine(t *testing.T) {
	byInt := method(svc, "m", "int")
	byInt.CallSites = []*model.CallSite{call(em, "persist", 30, object)}
	byString := method(svc, "m", "java.lang.String")
	byString.CallSites = []*model.CallSite{call(em, "persist", 10, object)}
	twin := method(svc, "m", "long")
	twin.CallSites = []*model.CallSite{call(em, "persist", 10, object)}
	for _, mem := range []*model.ImportedMember{byInt, byString, twin} {
		for _, cs := range mem.CallSites {
			cs.OriginMember, cs.OriginParams = mem.Name, mem.ParamTypes
		}
	}
	types := fixture()
	types[2].Members = []*model.ImportedMember{byInt, byString, twin}

	var got [][]string
	var lines []int
	for _, cs := range build(types).CallSites(nil) {
		lines = append(lines, cs.Line)
		got = append(got, cs.OriginParams)
	}
	assert.Equal(t, []int{10, 10, 30}, lines)
	assert.Equal(t, [][]string{{"java.lang.String"}, {"long"}, {"int"}}, got, "parameters only break ties")
}

func TestBuild_ExtendEdgesNameInterfaces(t *testing.T) {
	const pkg = "example.com/shop/store"
	types := []*model.ImportedType{
		{Name: "a.Repo", Kind: model.Interface},
		{
			Name: "a.Svc", Kind: model.Interface, SuperClass: object, Interfaces: []string{"a.Repo", "b.Remote"},
			SourceFile: "Svc.java", Location: &model.Location{StartLine: 5},
		},
		{Name: pkg + ".Base", Kind: model.Struct, Partial: true},
		{Name: "io.Closer", Kind: model.Interface},
		{
			Name: pkg + ".DB", Kind: model.Struct, Partial: true, Interfaces: []string{pkg + ".Base", "io.Closer", "io.Reader"},
			SourceFile: "db.go", Location: &model.Location{StartLine: 8},
		},
	}

	got := map[string]string{}
	for _, cs := range build(types).HierarchyEdges(nil) {
		assert.Equal(t, model.Extend, cs.Kind)
		got[cs.TargetType] = cs.Describe()
	}
	assert.Equal(t, "Class <a.Svc> extends class <java.lang.Object> in (Svc.java:5)", got[object])
	assert.Equal(t, "Class <a.Svc> extends interface <a.Repo> in (Svc.java:5)", got["a.Repo"])
	assert.Equal(t, "Class <a.Svc> extends interface <b.Remote> in (Svc.java:5)", got["b.Remote"], "a java interface only extends interfaces")
	assert.Equal(t, "Class <"+pkg+".DB> extends class <"+pkg+".Base> in (db.go:8)", got[pkg+".Base"])
	assert.Equal(t, "Class <"+pkg+".DB> extends interface <io.Closer> in (db.go:8)", got["io.Closer"])
	assert.Equal(t, "Class <"+pkg+".DB> extends class <io.Reader> in (db.go:8)", got["io.Reader"], "unknown embedded type")
}
