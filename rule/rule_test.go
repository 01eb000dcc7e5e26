package rule_test

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodMac/go-archcheck/graph"
	"github.com/CodMac/go-archcheck/model"
	"github.com/CodMac/go-archcheck/rule"
	"github.com/CodMac/go-archcheck/x/classfile"
	"github.com/CodMac/go-archcheck/x/classfile/classfiletest"
)

const (
	examplePkg       = "com.tngtech.archunit.example"
	serviceViolating = examplePkg + ".service.ServiceViolatingDaoRules"
	myEntityManager  = serviceViolating + "$MyEntityManager"
	entityManager    = "javax.persistence.EntityManager"
	ruleText         = "classes that are no DAOs should never access the EntityManager"
)

// scenarioModel 由手工汇编的 class 文件构建代码模型
func scenarioModel(t *testing.T) *graph.CodeModel {
	t.Helper()
	return modelOf(t, classfiletest.Scenario())
}

func modelOf(t *testing.T, files map[string][]byte) *graph.CodeModel {
	t.Helper()
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	b := graph.NewBuilder()
	for _, name := range names {
		typ, err := classfile.Parse(files[name])
		require.NoError(t, err, name)
		b.Add(typ)
	}
	return b.Build()
}

func onlyDAOsMayUseTheEntityManager() *rule.ArchRule {
	return rule.Classes().
		That(rule.Not(rule.AnnotatedWith(examplePkg + ".MyDao")).As("are no DAOs")).
		Should(rule.Never(rule.AccessClassesThat(rule.AssignableTo(entityManager)).As("access the " + model.SimpleNameOf(entityManager)))).
		MustBuild()
}

func TestEvaluate_ServiceViolatingDaoRules(t *testing.T) {
	r := onlyDAOsMayUseTheEntityManager()
	assert.Equal(t, ruleText, r.Description)
	assert.Equal(t, rule.QuantifierNo, r.Quantifier(), "never(...) is normalized")

	res, err := rule.Evaluate(r, scenarioModel(t))
	require.NoError(t, err)
	require.Len(t, res.Events, 2)

	first, second := res.Events[0].Primary(), res.Events[1].Primary()
	assert.Equal(t, entityManager, first.TargetType)
	assert.Equal(t, 24, first.Line)
	assert.Equal(t, myEntityManager, second.TargetType)
	assert.Equal(t, 25, second.Line)
	for _, ev := range res.Events {
		cs := ev.Primary()
		assert.Equal(t, serviceViolating, cs.OriginType)
		assert.Equal(t, "illegallyUseEntityManager", cs.OriginMember)
		assert.Equal(t, "persist", cs.TargetMember)
		assert.Equal(t, []string{"java.lang.Object"}, cs.TargetParams)
		assert.Same(t, r, ev.Rule)
	}

	assert.Equal(t,
		"Architecture Violation [Priority: MEDIUM] - Rule '"+ruleText+"' was violated (2 times):\n"+
			"Method <"+serviceViolating+".illegallyUseEntityManager()> calls method <"+entityManager+".persist(java.lang.Object)> in (ServiceViolatingDaoRules.java:24)\n"+
			"Method <"+serviceViolating+".illegallyUseEntityManager()> calls method <"+myEntityManager+".persist(java.lang.Object)> in (ServiceViolatingDaoRules.java:25)",
		res.FailureReport())
}

func TestEvaluate_Deterministic(t *testing.T) {
	m := scenarioModel(t)
	r := onlyDAOsMayUseTheEntityManager()

	a, err := rule.Evaluate(r, m)
	require.NoError(t, err)
	b, err := rule.Evaluate(r, scenarioModel(t))
	require.NoError(t, err)
	if diff := cmp.Diff(a.FailureReport(), b.FailureReport()); diff != "" {
		t.Errorf("reports differ:\n%s", diff)
	}
}

func TestEvaluate_Quantifiers(t *testing.T) {
	m := scenarioModel(t)
	inService := rule.ResideInPackage("..service..")

	t.Run("no classes", func(t *testing.T) {
		r := rule.NoClasses().That(inService).
			Should(rule.CallMethod(rule.AssignableTo(entityManager), "persist", "java.lang.Object")).
			MustBuild()
		res, err := rule.Evaluate(r, m)
		require.NoError(t, err)
		assert.Len(t, res.Events, 2)
	})

	t.Run("classes should only access", func(t *testing.T) {
		r := rule.Classes().That(inService).
			Should(rule.AccessClassesThat(rule.ResideInPackage("java.."))).
			MustBuild()
		res, err := rule.Evaluate(r, m)
		require.NoError(t, err)

		var targets []string
		for _, ev := range res.Events {
			targets = append(targets, ev.Primary().TargetType)
		}
		// 访问自身字段不算违规
		assert.Equal(t, []string{entityManager, myEntityManager}, targets)
	})

	t.Run("extend or implement", func(t *testing.T) {
		r := rule.NoClasses().That(inService).Should(rule.ExtendOrImplement(rule.HaveSimpleName("EntityManager"))).MustBuild()
		res, err := rule.Evaluate(r, m)
		require.NoError(t, err)
		require.Len(t, res.Events, 1)
		cs := res.Events[0].Primary()
		assert.Equal(t, model.Implement, cs.Kind)
		assert.Equal(t, myEntityManager, cs.OriginType)
		assert.Equal(t, 15, cs.Line)
	})

	t.Run("type level condition", func(t *testing.T) {
		r := rule.Classes().That(inService).Should(rule.BeInPackage("..persistence..")).MustBuild()
		assert.Equal(t, "classes that reside in a package '..service..' should reside in a package '..persistence..'", r.Description)
		res, err := rule.Evaluate(r, m)
		require.NoError(t, err)
		require.Len(t, res.Events, 2)
		assert.Equal(t,
			"Class <"+serviceViolating+"> should reside in a package '..persistence..' in (ServiceViolatingDaoRules.java:12)",
			res.Events[0].Message)
		assert.Equal(t, myEntityManager, res.Events[1].Primary().OriginType)
	})

	t.Run("empty scope is not an error", func(t *testing.T) {
		r := rule.NoClasses().That(rule.ResideInPackage("..nothing..")).
			Should(rule.DependOnClassesThat(rule.Any())).MustBuild()
		res, err := rule.Evaluate(r, m)
		require.NoError(t, err)
		assert.False(t, res.HasViolations())
		assert.Empty(t, res.FailureReport())
	})
}

func TestEvaluate_NoProvenance(t *testing.T) {
	// 接口没有带行号表的方法, 无法定位声明行
	r := rule.Classes().That(rule.HaveSimpleName("EntityManager")).Should(rule.BeAnnotatedWith("Entity")).MustBuild()
	res, err := rule.Evaluate(r, scenarioModel(t))
	assert.ErrorIs(t, err, rule.ErrNoProvenance)
	require.NotNil(t, res)
	assert.ErrorIs(t, res.Err, rule.ErrNoProvenance)
	assert.Empty(t, res.Events)

	_, err = rule.NewViolationEvent(r, "somewhere", &model.CallSite{OriginType: "a.B"})
	assert.ErrorIs(t, err, rule.ErrNoProvenance)
	_, err = rule.NewViolationEvent(r, "nowhere")
	assert.ErrorIs(t, err, rule.ErrNoProvenance)
}

func TestEvaluateAll(t *testing.T) {
	m := scenarioModel(t)
	rules := []*rule.ArchRule{
		onlyDAOsMayUseTheEntityManager(),
		rule.NoClasses().That(rule.ResideInPackage("..persistence..")).
			Should(rule.AccessClassesThat(rule.ResideInPackage("..service.."))).MustBuild(),
		rule.Classes().That(rule.AnnotatedWith("MyDao")).Should(rule.BeInPackage("..persistence..")).
			WithPriority(rule.PriorityHigh).MustBuild(),
	}

	results, err := rule.EvaluateAll(context.Background(), rules, m, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, res := range results {
		assert.Same(t, rules[i], res.Rule, "results keep rule order")
	}
	assert.Len(t, results[0].Events, 2)
	assert.Empty(t, results[1].Events)
	assert.Empty(t, results[2].Events)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = rule.EvaluateAll(ctx, rules, m, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvaluateAll_RuleErrorKeepsOtherResults(t *testing.T) {
	files := classfiletest.Scenario()
	for name, data := range classfiletest.LinelessInterfaces() {
		files[name] = data
	}
	m := modelOf(t, files)
	layering := rule.NoClasses().That(rule.ResideInPackage("..service..")).
		Should(rule.DependOnClassesThat(rule.ResideInPackage("..persistence.."))).MustBuild()
	rules := []*rule.ArchRule{onlyDAOsMayUseTheEntityManager(), layering}

	results, err := rule.EvaluateAll(context.Background(), rules, m, 2)
	assert.ErrorIs(t, err, rule.ErrNoProvenance)
	require.Len(t, results, 2)

	assert.NoError(t, results[0].Err)
	assert.Len(t, results[0].Events, 2, "violations of other rules survive")

	require.Error(t, results[1].Err)
	assert.ErrorIs(t, results[1].Err, rule.ErrNoProvenance)
	assert.Contains(t, results[1].Err.Error(), "Class <a.service.Svc> extends interface <a.persistence.Repo> in (Svc.java:0)")
	assert.NotEmpty(t, results[1].Events, "located violations of the failing rule are kept")
	for _, ev := range results[1].Events {
		assert.NotEqual(t, "a.service.Svc", ev.Primary().OriginType)
	}
}

func TestBuild_ConfigurationErrors(t *testing.T) {
	access := rule.AccessClassesThat(rule.Any())
	cases := map[string]*rule.Builder{
		"empty and":         rule.NoClasses().That(rule.And()).Should(access),
		"empty or":          rule.NoClasses().Should(rule.AccessClassesThat(rule.Or())),
		"nil operand":       rule.NoClasses().That(rule.Not(nil)).Should(access),
		"nil condition":     rule.NoClasses(),
		"bad regex":         rule.NoClasses().That(rule.HaveNameMatching("a(b")).Should(access),
		"bad package":       rule.NoClasses().That(rule.ResideInPackage("a...b")).Should(access),
		"contradiction":     rule.NoClasses().That(rule.And(rule.ResideInPackage("..a.."), rule.Not(rule.ResideInPackage("..a..")))).Should(access),
		"mixed levels":      rule.Classes().Should(rule.AndCondition(access, rule.BeAnnotatedWith("X"))),
		"nested never":      rule.Classes().Should(rule.NotCondition(rule.Never(access))),
		"empty or cond":     rule.Classes().Should(rule.OrCondition()),
		"missing target":    rule.Classes().Should(rule.AccessClassesThat(nil)),
		"unknown priority":  rule.Classes().Should(access).WithPriority("URGENT"),
		"call without name": rule.Classes().Should(rule.CallMethod(rule.Any(), "")),
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			r, err := b.As(name).Build()
			assert.Nil(t, r)
			require.Error(t, err)
			assert.ErrorIs(t, err, rule.ErrConfiguration)
			var ce *rule.ConfigError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, name, ce.Rule)
		})
	}

	assert.Panics(t, func() { rule.NoClasses().MustBuild() })
}

func TestPredicates(t *testing.T) {
	b := graph.NewBuilder()
	b.Add(&model.ImportedType{Name: "com.a.service.S", Kind: model.Class, Annotations: []model.Annotation{{Name: "com.a.Svc"}}})
	b.Add(&model.ImportedType{Name: "com.a.myservice.T", Kind: model.Interface})
	b.Add(&model.ImportedType{Name: "example.com/shop/service.Order", Kind: model.Struct})
	m := b.Build()
	get := func(name string) *model.ImportedType {
		typ, ok := m.Type(name)
		require.True(t, ok)
		return typ
	}
	s, tt, order := get("com.a.service.S"), get("com.a.myservice.T"), get("example.com/shop/service.Order")

	cases := []struct {
		pred *rule.TypePredicate
		typ  *model.ImportedType
		want bool
	}{
		{rule.ResideInPackage("..service.."), s, true},
		{rule.ResideInPackage("..service.."), tt, false},
		{rule.ResideInPackage("..service.."), order, true},
		{rule.ResideInPackage("com.a.."), tt, true},
		{rule.ResideInPackage("com.a"), s, false},
		{rule.ResideInPackage("com.*.service"), s, true},
		{rule.ResideInPackage("example.com/shop.."), order, true},
		{rule.ResideOutsideOfPackage("..service.."), tt, true},
		{rule.HaveNameMatching(`.*\.S`), s, true},
		{rule.HaveNameMatching(`S`), s, false},
		{rule.HaveSimpleName("Order"), order, true},
		{rule.AnnotatedWith("Svc"), s, true},
		{rule.AreInterfaces(), tt, true},
		{rule.AssignableTo("java.lang.Object"), s, true},
		{rule.Or(rule.AreInterfaces(), rule.HaveSimpleName("S")), s, true},
		{rule.And(rule.AreInterfaces(), rule.HaveSimpleName("S")), s, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.pred.Test(m, c.typ), "%s on %s", c.pred.Description(), c.typ.Name)
	}

	assert.Equal(t, "reside outside of package '..x..'", rule.ResideOutsideOfPackage("..x..").Description())
	assert.Equal(t, "are interfaces or not have simple name 'S'",
		rule.Or(rule.AreInterfaces(), rule.Not(rule.HaveSimpleName("S"))).Description())
}
