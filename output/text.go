package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/CodMac/go-archcheck/rule"
)

// WriteReport 输出每条被违反规则的失败报告与求值错误, 最后一行是汇总; 返回违规事件总数
func WriteReport(w io.Writer, results []*rule.EvaluationResult) (int, error) {
	var sb strings.Builder
	violated, events := 0, 0
	for _, res := range results {
		if res.Err != nil {
			fmt.Fprintf(&sb, "Evaluation error: %v\n\n", res.Err)
		}
		if !res.HasViolations() {
			continue
		}
		violated++
		events += len(res.Events)
		sb.WriteString(res.FailureReport())
		sb.WriteString("\n\n")
	}
	fmt.Fprintf(&sb, "%d rules checked, %d violated, %d violations\n", len(results), violated, events)
	_, err := io.WriteString(w, sb.String())
	return events, err
}
