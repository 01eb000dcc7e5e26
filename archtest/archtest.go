// Package archtest 把规则检查接入 go test:
// Analyse 导入并缓存代码模型, Run 为每条规则生成子测试并核对期望违规。
package archtest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodMac/go-archcheck/graph"
	"github.com/CodMac/go-archcheck/importer"
	"github.com/CodMac/go-archcheck/matcher"
	"github.com/CodMac/go-archcheck/rule"
)

// TestingT 是 Check 需要的 testing.TB 子集
type TestingT interface {
	Errorf(format string, args ...any)
	FailNow()
	Helper()
}

// Case 一条被检查的规则。Expect 为 nil 表示规则必须通过;
// 否则 Expect 声明的违规必须与实际违规一一对应。
type Case struct {
	Rule   *rule.ArchRule
	Expect func(*matcher.ExpectedViolation)
}

// 同一测试进程内最多缓存的模型数
const maxModels = 16

var models, _ = lru.New[string, *graph.CodeModel](maxModels)

// Analyse 导入 locations 并返回代码模型; 相同参数的模型按 LRU 缓存, 不会重复导入
func Analyse(t TestingT, filter importer.PackageFilter, locations ...string) *graph.CodeModel {
	t.Helper()
	key := fmt.Sprintf("%s|%v|%v", strings.Join(locations, "\x00"), filter.Include, filter.Exclude)
	if m, ok := models.Get(key); ok {
		return m
	}
	m, err := importer.ImportArtifacts(context.Background(), locations, filter)
	require.NoError(t, err)
	if prev, ok, _ := models.PeekOrAdd(key, m); ok {
		return prev
	}
	return m
}

// Run 为每个 Case 运行一个以规则文本命名的子测试
func Run(t *testing.T, m *graph.CodeModel, cases ...Case) {
	t.Helper()
	for _, c := range cases {
		t.Run(c.Rule.Description, func(t *testing.T) {
			Check(t, m, c)
		})
	}
}

// Check 求值一条规则并核对结果
func Check(t TestingT, m *graph.CodeModel, c Case) {
	t.Helper()
	res, err := rule.Evaluate(c.Rule, m)
	require.NoError(t, err)

	if c.Expect == nil {
		assert.False(t, res.HasViolations(), res.FailureReport())
		return
	}

	expected := matcher.ExpectViolation().OfRule(c.Rule.Description)
	c.Expect(expected)
	result := matcher.Match(expected, []*rule.EvaluationResult{res})
	assert.NoError(t, result.Err(), res.FailureReport())
}
