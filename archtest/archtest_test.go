package archtest_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/CodMac/go-archcheck/archtest"
	"github.com/CodMac/go-archcheck/graph"
	"github.com/CodMac/go-archcheck/importer"
	"github.com/CodMac/go-archcheck/matcher"
	"github.com/CodMac/go-archcheck/rule"
)

const (
	examplePkg       = "com.tngtech.archunit.example"
	serviceViolating = examplePkg + ".service.ServiceViolatingDaoRules"
	myEntityManager  = serviceViolating + "$MyEntityManager"
	entityManager    = "javax.persistence.EntityManager"

	onlyDAOsMayAccessTheEntityManagerRuleText = "classes that are no DAOs should never access the EntityManager"
)

var onlyDAOsMayUseTheEntityManager = rule.Classes().
	That(rule.Not(rule.AnnotatedWith(examplePkg + ".MyDao")).As("are no DAOs")).
	Should(rule.Never(rule.AccessClassesThat(rule.AssignableTo(entityManager)).As("access the EntityManager"))).
	MustBuild()

var daosResideInPersistence = rule.Classes().
	That(rule.AnnotatedWith("MyDao")).
	Should(rule.BeInPackage("..persistence..")).
	MustBuild()

func expectViolationByIllegalUseOfEntityManager(e *matcher.ExpectedViolation) {
	e.OfRule(onlyDAOsMayAccessTheEntityManagerRuleText).
		ByCall(matcher.From(serviceViolating, "illegallyUseEntityManager").
			ToMethod(entityManager, "persist", "java.lang.Object").
			InLine(24)).
		ByCall(matcher.From(serviceViolating, "illegallyUseEntityManager").
			ToMethod(myEntityManager, "persist", "java.lang.Object").
			InLine(25))
}

func analyse(t archtest.TestingT) *graph.CodeModel {
	testdata := filepath.Join("..", "x", "java", "testdata")
	return archtest.Analyse(t, importer.PackageFilter{},
		filepath.Join(testdata, "com", "tngtech"),
		filepath.Join(testdata, "javax"))
}

func TestRun_ServiceViolatingDaoRules(t *testing.T) {
	archtest.Run(t, analyse(t),
		archtest.Case{Rule: onlyDAOsMayUseTheEntityManager, Expect: expectViolationByIllegalUseOfEntityManager},
		archtest.Case{Rule: daosResideInPersistence},
	)
}

// recorder 记录失败而不终止测试
type recorder struct {
	failures []string
}

func (r *recorder) Errorf(format string, args ...any) {
	r.failures = append(r.failures, fmt.Sprintf(format, args...))
}

func (r *recorder) FailNow() { r.failures = append(r.failures, "FailNow") }

func (r *recorder) Helper() {}

func TestCheck_Failures(t *testing.T) {
	m := analyse(t)

	t.Run("violations without expectation", func(t *testing.T) {
		rec := &recorder{}
		archtest.Check(rec, m, archtest.Case{Rule: onlyDAOsMayUseTheEntityManager})
		if assert.Len(t, rec.failures, 1) {
			assert.Contains(t, rec.failures[0], "was violated (2 times)")
		}
	})

	t.Run("missing expectation", func(t *testing.T) {
		rec := &recorder{}
		archtest.Check(rec, m, archtest.Case{
			Rule: onlyDAOsMayUseTheEntityManager,
			Expect: func(e *matcher.ExpectedViolation) {
				e.ByCall(matcher.From(serviceViolating, "illegallyUseEntityManager").
					ToMethod(entityManager, "persist", "java.lang.Object").
					InLine(24))
			},
		})
		if assert.Len(t, rec.failures, 1) {
			assert.Contains(t, rec.failures[0], "line 25")
		}
	})

	t.Run("expectation for another rule", func(t *testing.T) {
		rec := &recorder{}
		archtest.Check(rec, m, archtest.Case{
			Rule: daosResideInPersistence,
			Expect: func(e *matcher.ExpectedViolation) {
				e.OfRule(onlyDAOsMayAccessTheEntityManagerRuleText)
			},
		})
		assert.Len(t, rec.failures, 1)
	})

	t.Run("expected violation that does not occur", func(t *testing.T) {
		rec := &recorder{}
		archtest.Check(rec, m, archtest.Case{
			Rule: daosResideInPersistence,
			Expect: func(e *matcher.ExpectedViolation) {
				e.ByCall(matcher.From(serviceViolating, "doSomething").
					ToMethod(examplePkg+".persistence.OrderDao", "persistOrder", "java.lang.Object").
					InLine(20))
			},
		})
		assert.Len(t, rec.failures, 1)
	})
}

func TestAnalyse_CachesModel(t *testing.T) {
	first, second := analyse(t), analyse(t)
	assert.Same(t, first, second)

	other := archtest.Analyse(t, importer.PackageFilter{Include: []string{examplePkg}},
		filepath.Join("..", "x", "java", "testdata", "com", "tngtech"))
	assert.NotSame(t, first, other)
}
