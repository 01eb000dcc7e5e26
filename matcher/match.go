package matcher

import (
	"errors"
	"fmt"
	"strings"

	"github.com/CodMac/go-archcheck/rule"
)

var (
	// ErrRuleNotFound 结果中没有文本完全相同的规则
	ErrRuleNotFound = errors.New("rule not found")
	// ErrMismatch 期望违规与实际违规不一致
	ErrMismatch = errors.New("violations do not match expectation")
)

// MatchResult 是一次比较的结果
type MatchResult struct {
	Rule       string
	RuleFound  bool
	Missing    []Access // 期望但未发生, 按声明顺序
	Unexpected []Access // 发生但未期望, 按事件顺序
}

// OK 规则存在且期望与实际构成一一对应
func (r MatchResult) OK() bool {
	return r.RuleFound && len(r.Missing) == 0 && len(r.Unexpected) == 0
}

// Err 在不匹配时返回描述差异的错误
func (r MatchResult) Err() error {
	switch {
	case !r.RuleFound:
		return fmt.Errorf("%w: '%s'", ErrRuleNotFound, r.Rule)
	case !r.OK():
		return fmt.Errorf("%w\n%s", ErrMismatch, r.String())
	}
	return nil
}

func (r MatchResult) String() string {
	if !r.RuleFound {
		return fmt.Sprintf("Rule '%s' was not evaluated", r.Rule)
	}
	if r.OK() {
		return fmt.Sprintf("Rule '%s' matches the expected violations", r.Rule)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Rule '%s' does not match the expected violations", r.Rule)
	for _, a := range r.Missing {
		sb.WriteString("\n  missing:    ")
		sb.WriteString(a.String())
	}
	for _, a := range r.Unexpected {
		sb.WriteString("\n  unexpected: ")
		sb.WriteString(a.String())
	}
	return sb.String()
}

// Match 在 results 中按规则文本选择结果, 并与期望做多重集比较。纯函数, 重复调用结果相同。
func Match(expected *ExpectedViolation, results []*rule.EvaluationResult) MatchResult {
	for _, res := range results {
		if res != nil && res.Rule != nil && res.Rule.Description == expected.rule {
			return MatchEvents(expected, res.Events)
		}
	}
	return MatchResult{Rule: expected.rule}
}

// MatchEvents 把已选定的事件与期望做多重集比较, 顺序无关
func MatchEvents(expected *ExpectedViolation, events []*rule.ViolationEvent) MatchResult {
	result := MatchResult{Rule: expected.rule, RuleFound: true}

	pending := make(map[accessKey]int, len(expected.accesses))
	for _, a := range expected.accesses {
		pending[a.key()]++
	}

	var actual []Access
	for _, ev := range events {
		if cs := ev.Primary(); cs != nil {
			actual = append(actual, FromCallSite(cs))
		}
	}
	for _, a := range actual {
		k := a.key()
		if pending[k] > 0 {
			pending[k]--
			continue
		}
		result.Unexpected = append(result.Unexpected, a)
	}
	for _, a := range expected.accesses {
		k := a.key()
		if pending[k] > 0 {
			pending[k]--
			result.Missing = append(result.Missing, a)
		}
	}
	return result
}
