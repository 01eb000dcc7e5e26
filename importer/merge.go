package importer

import (
	"strings"

	"go.uber.org/zap"

	"github.com/CodMac/go-archcheck/graph"
	"github.com/CodMac/go-archcheck/model"
)

// merge 把一个解码得到的类型并入 Builder。只在合并阶段单线程调用。
func (im *Importer) merge(b *graph.Builder, artifact string, t *model.ImportedType, filter PackageFilter) {
	if !filter.InScope(t.Name) {
		stub(t)
	}

	existing, ok := b.Lookup(t.Name)
	switch {
	case !ok:
		b.Add(t)
	case existing.Partial && t.Partial:
		mergePartial(existing, t)
	default:
		im.log.Warn("Duplicate type, later artifact wins",
			zap.String("type", t.Name),
			zap.String("previous", existing.Artifact),
			zap.String("artifact", artifact))
		b.Warn(model.ImportWarning{
			Kind:     model.DuplicateType,
			Artifact: artifact,
			Type:     t.Name,
			Message:  "replaces definition from " + existing.Artifact,
		})
		b.Add(t)
	}
}

// stub 把范围之外的类型降级为桩节点: 保留签名, 丢弃调用点
func stub(t *model.ImportedType) {
	t.Stub = true
	for _, m := range t.Members {
		m.CallSites = nil
		m.Pending = nil
	}
}

// mergePartial 合并分布在多个文件中的同一类型 (Go 包与其方法集)。
// 声明类型的文件提供种类与位置, 成员按制品顺序追加并去重。
func mergePartial(dst, src *model.ImportedType) {
	if dst.Kind == model.Unknown && src.Kind != model.Unknown {
		dst.Kind = src.Kind
		dst.Location = src.Location
		dst.SourceFile = src.SourceFile
		dst.Modifiers = src.Modifiers
		dst.Annotations = src.Annotations
		dst.Artifact = src.Artifact
		dst.Digest = src.Digest
	}
	if dst.SuperClass == "" {
		dst.SuperClass = src.SuperClass
	}
	for _, i := range src.Interfaces {
		if !contains(dst.Interfaces, i) {
			dst.Interfaces = append(dst.Interfaces, i)
		}
	}

	keys := make(map[string]bool, len(dst.Members))
	for _, m := range dst.Members {
		keys[memberKey(m)] = true
	}
	for _, m := range src.Members {
		if k := memberKey(m); !keys[k] {
			keys[k] = true
			dst.Members = append(dst.Members, m)
		}
	}
	dst.Stub = dst.Stub && src.Stub
}

func memberKey(m *model.ImportedMember) string {
	return string(m.Kind) + " " + m.Name + "(" + strings.Join(m.ParamTypes, ",") + ")"
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
