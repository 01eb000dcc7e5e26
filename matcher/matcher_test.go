package matcher_test

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodMac/go-archcheck/graph"
	"github.com/CodMac/go-archcheck/matcher"
	"github.com/CodMac/go-archcheck/model"
	"github.com/CodMac/go-archcheck/rule"
	"github.com/CodMac/go-archcheck/x/classfile"
	"github.com/CodMac/go-archcheck/x/classfile/classfiletest"
)

const (
	serviceViolating = "com.tngtech.archunit.example.service.ServiceViolatingDaoRules"
	myEntityManager  = serviceViolating + "$MyEntityManager"
	entityManager    = "javax.persistence.EntityManager"
	object           = "java.lang.Object"
	ruleText         = "classes that are no DAOs should never access the EntityManager"
)

func scenarioResults(t *testing.T) []*rule.EvaluationResult {
	t.Helper()
	files := classfiletest.Scenario()
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	b := graph.NewBuilder()
	for _, name := range names {
		typ, err := classfile.Parse(files[name])
		require.NoError(t, err)
		b.Add(typ)
	}
	m := b.Build()

	r := rule.Classes().
		That(rule.Not(rule.AnnotatedWith("MyDao")).As("are no DAOs")).
		Should(rule.Never(rule.AccessClassesThat(rule.AssignableTo(entityManager)).As("access the EntityManager"))).
		MustBuild()
	res, err := rule.Evaluate(r, m)
	require.NoError(t, err)
	return []*rule.EvaluationResult{res}
}

func expectViolationByIllegalUseOfEntityManager(e *matcher.ExpectedViolation) *matcher.ExpectedViolation {
	return e.OfRule(ruleText).
		ByCall(matcher.From(serviceViolating, "illegallyUseEntityManager").
			ToMethod(entityManager, "persist", object).
			InLine(24)).
		ByCall(matcher.From(serviceViolating, "illegallyUseEntityManager").
			ToMethod(myEntityManager, "persist", object).
			InLine(25))
}

func TestMatch_ServiceViolatingDaoRules(t *testing.T) {
	results := scenarioResults(t)

	res := matcher.Match(expectViolationByIllegalUseOfEntityManager(matcher.ExpectViolation()), results)
	assert.True(t, res.OK(), res.String())
	assert.NoError(t, res.Err())

	// 声明顺序无关
	reversed := matcher.ExpectViolation().OfRule(ruleText).
		ByCall(matcher.From(serviceViolating, "illegallyUseEntityManager").ToMethod(myEntityManager, "persist", object).InLine(25)).
		ByCall(matcher.From(serviceViolating, "illegallyUseEntityManager").ToMethod(entityManager, "persist", object).InLine(24))
	assert.True(t, matcher.Match(reversed, results).OK())
}

func TestMatch_Mismatches(t *testing.T) {
	results := scenarioResults(t)
	from := matcher.From(serviceViolating, "illegallyUseEntityManager")

	t.Run("unexpected", func(t *testing.T) {
		e := matcher.ExpectViolation().OfRule(ruleText).ByCall(from.ToMethod(entityManager, "persist", object).InLine(24))
		res := matcher.Match(e, results)
		assert.False(t, res.OK())
		assert.Empty(t, res.Missing)
		require.Len(t, res.Unexpected, 1)
		assert.Equal(t, 25, res.Unexpected[0].Line)
		assert.ErrorIs(t, res.Err(), matcher.ErrMismatch)
		assert.Contains(t, res.String(), "unexpected: "+serviceViolating+".illegallyUseEntityManager calls <"+myEntityManager+".persist(java.lang.Object)> in line 25")
	})

	t.Run("wrong line", func(t *testing.T) {
		e := expectViolationByIllegalUseOfEntityManager(matcher.ExpectViolation())
		e.ByCall(from.ToMethod(entityManager, "persist", object).InLine(26))
		res := matcher.Match(e, results)
		require.Len(t, res.Missing, 1)
		assert.Equal(t, 26, res.Missing[0].Line)
		assert.Empty(t, res.Unexpected)
	})

	t.Run("wrong params", func(t *testing.T) {
		e := matcher.ExpectViolation().OfRule(ruleText).
			ByCall(from.ToMethod(entityManager, "persist", "java.lang.String").InLine(24)).
			ByCall(from.ToMethod(myEntityManager, "persist", object).InLine(25))
		res := matcher.Match(e, results)
		require.Len(t, res.Missing, 1)
		require.Len(t, res.Unexpected, 1)
		assert.Equal(t, []string{object}, res.Unexpected[0].TargetParams)
	})

	t.Run("multiset counts", func(t *testing.T) {
		e := expectViolationByIllegalUseOfEntityManager(matcher.ExpectViolation())
		e.ByCall(from.ToMethod(entityManager, "persist", object).InLine(24))
		res := matcher.Match(e, results)
		require.Len(t, res.Missing, 1, "each expected tuple pairs with exactly one event")
	})

	t.Run("rule not found", func(t *testing.T) {
		e := expectViolationByIllegalUseOfEntityManager(matcher.ExpectViolation()).OfRule("no classes should exist")
		res := matcher.Match(e, results)
		assert.False(t, res.RuleFound)
		assert.ErrorIs(t, res.Err(), matcher.ErrRuleNotFound)
	})
}

func TestMatch_Idempotent(t *testing.T) {
	results := scenarioResults(t)
	e := matcher.ExpectViolation().OfRule(ruleText).
		ByCall(matcher.From(serviceViolating, "illegallyUseEntityManager").ToMethod(entityManager, "persist", object).InLine(99))

	first, second := matcher.Match(e, results), matcher.Match(e, results)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("match is not idempotent:\n%s", diff)
	}
	assert.Len(t, e.Accesses(), 1, "matching does not consume the expectation")
}

func TestMatchEvents(t *testing.T) {
	r := rule.NoClasses().Should(rule.DependOnClassesThat(rule.Any())).As("anything").MustBuild()
	event := func(cs *model.CallSite) *rule.ViolationEvent {
		ev, err := rule.NewViolationEvent(r, cs.Describe(), cs)
		require.NoError(t, err)
		return ev
	}
	events := []*rule.ViolationEvent{
		event(&model.CallSite{Kind: model.Call, OriginType: "a.A", OriginMember: "run", TargetType: "b.B", TargetMember: "go", TargetParams: []string{}, Line: 7}),
		event(&model.CallSite{Kind: model.Create, OriginType: "a.A", OriginMember: "run", TargetType: "b.B", TargetMember: model.ConstructorName, TargetParams: []string{"int"}, Line: 8}),
		event(&model.CallSite{Kind: model.Use, OriginType: "a.A", OriginMember: model.ConstructorName, TargetType: "b.B", TargetMember: "count", Line: 3}),
	}

	e := matcher.ExpectViolation().OfRule("anything").
		ByAccess(matcher.From("a.A", model.ConstructorName).ToField("b.B", "count").InLine(3)).
		ByCall(matcher.From("a.A", "run").ToConstructor("b.B", "int").InLine(8)).
		ByCall(matcher.From("a.A", "run").ToMethod("b.B", "go").InLine(7))
	res := matcher.MatchEvents(e, events)
	assert.True(t, res.OK(), "nil and empty parameter lists are equal: %s", res)

	// 字段访问与方法调用不能互相匹配
	wrongKind := matcher.ExpectViolation().OfRule("anything").
		ByCall(matcher.From("a.A", model.ConstructorName).ToField("b.B", "count").InLine(3))
	res = matcher.MatchEvents(wrongKind, events[2:])
	assert.False(t, res.OK())

	assert.Equal(t, matcher.ByAccessCategory, matcher.FromCallSite(events[2].Primary()).Category)
}

func TestMatchEvents_ParameterListsCompareElementwise(t *testing.T) {
	r := rule.NoClasses().Should(rule.DependOnClassesThat(rule.Any())).As("anything").MustBuild()
	ev, err := rule.NewViolationEvent(r, "generic call", &model.CallSite{
		Kind: model.Call, OriginType: "a.A", OriginMember: "run",
		TargetType: "b.B", TargetMember: "go", TargetParams: []string{"a,b"}, Line: 7,
	})
	require.NoError(t, err)
	events := []*rule.ViolationEvent{ev}

	split := matcher.ExpectViolation().OfRule("anything").
		ByCall(matcher.From("a.A", "run").ToMethod("b.B", "go", "a", "b").InLine(7))
	res := matcher.MatchEvents(split, events)
	assert.False(t, res.OK(), "two parameters never match one parameter containing a comma")
	assert.Len(t, res.Missing, 1)
	assert.Len(t, res.Unexpected, 1)

	exact := matcher.ExpectViolation().OfRule("anything").
		ByCall(matcher.From("a.A", "run").ToMethod("b.B", "go", "a,b").InLine(7))
	assert.True(t, matcher.MatchEvents(exact, events).OK())
}
