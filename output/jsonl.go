package output

import (
	"io"

	"github.com/goccy/go-json"

	"github.com/CodMac/go-archcheck/graph"
	"github.com/CodMac/go-archcheck/model"
	"github.com/CodMac/go-archcheck/rule"
)

type JSONLWriter struct {
	encoder *json.Encoder
}

func NewJSONLWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{
		encoder: json.NewEncoder(w),
	}
}

func (w *JSONLWriter) Write(v interface{}) error {
	return w.encoder.Encode(v)
}

// ViolationRecord 每个违规事件一行
type ViolationRecord struct {
	Rule     string          `json:"Rule"`
	Priority rule.Priority   `json:"Priority"`
	Message  string          `json:"Message"`
	Site     *model.CallSite `json:"Site"`
}

// ModelRecord 模型导出的一行: Record 为 "TYPE" / "DEPENDENCY" / "WARNING", 其余字段三选一
type ModelRecord struct {
	Record     string               `json:"Record"`
	Type       *model.ImportedType  `json:"Type,omitempty"`
	Dependency *model.CallSite      `json:"Dependency,omitempty"`
	Warning    *model.ImportWarning `json:"Warning,omitempty"`
}

// ExportViolations 按规则顺序、事件顺序导出所有违规
func ExportViolations(w io.Writer, results []*rule.EvaluationResult) (int, error) {
	writer := NewJSONLWriter(w)
	count := 0
	for _, res := range results {
		for _, ev := range res.Events {
			rec := ViolationRecord{
				Rule:     res.Rule.Description,
				Priority: res.Rule.Priority,
				Message:  ev.Message,
				Site:     ev.Primary(),
			}
			if err := writer.Write(rec); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

// ExportModel 导出分析范围内的类型 (不含成员体中的调用点)、全部依赖边与导入告警
func ExportModel(w io.Writer, m *graph.CodeModel) (int, error) {
	writer := NewJSONLWriter(w)
	count := 0

	// 1. 类型, 成员只保留签名
	for _, t := range m.Types() {
		if t.Stub {
			continue
		}
		if err := writer.Write(ModelRecord{Record: "TYPE", Type: withoutCallSites(t)}); err != nil {
			return count, err
		}
		count++
	}

	// 2. 依赖边, 已按出处排序
	for _, cs := range m.Dependencies(nil) {
		if err := writer.Write(ModelRecord{Record: "DEPENDENCY", Dependency: cs}); err != nil {
			return count, err
		}
		count++
	}

	// 3. 告警
	for _, warning := range m.Warnings() {
		warning := warning
		if err := writer.Write(ModelRecord{Record: "WARNING", Warning: &warning}); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func withoutCallSites(t *model.ImportedType) *model.ImportedType {
	cp := *t
	cp.Members = make([]*model.ImportedMember, 0, len(t.Members))
	for _, mem := range t.Members {
		mc := *mem
		mc.CallSites = nil
		cp.Members = append(cp.Members, &mc)
	}
	return &cp
}
