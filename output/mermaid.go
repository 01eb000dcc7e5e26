package output

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/CodMac/go-archcheck/graph"
	"github.com/CodMac/go-archcheck/model"
	"github.com/CodMac/go-archcheck/rule"
)

type edgeKey struct {
	from, to  string
	hierarchy bool
}

// ExportMermaidHTML 生成包含 Mermaid.js 渲染逻辑的静态网页。
// 节点按包分组, 同一对类型之间的访问只画一条边; 违规的边标红, 违反类型级规则的节点标红。
func ExportMermaidHTML(w io.Writer, m *graph.CodeModel, results []*rule.EvaluationResult) error {
	var sb strings.Builder

	// 1. HTML 模板头部
	sb.WriteString(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Architecture Dependency Map</title>
    <script src="https://cdn.jsdelivr.net/npm/mermaid/dist/mermaid.min.js"></script>
    <style>
        body { font-family: -apple-system, sans-serif; background: #f0f2f5; margin: 20px; }
        .mermaid { background: white; padding: 20px; border-radius: 12px; box-shadow: 0 4px 15px rgba(0,0,0,0.1); }
        h1 { color: #1a1a1a; text-align: center; }
    </style>
</head>
<body>
    <h1>Architecture Visualization</h1>
    <div class="mermaid">
`)
	sb.WriteString(MermaidGraph(m, results))

	// 2. 脚本初始化和结尾
	sb.WriteString(`    </div>
    <script>
        mermaid.initialize({
            startOnLoad: true,
            maxTextSize: 100000,
            theme: 'default',
            flowchart: { useMaxWidth: false, htmlLabels: true }
        });
    </script>
</body>
</html>
`)
	_, err := io.WriteString(w, sb.String())
	return err
}

// MermaidGraph 只生成 "graph LR" 图定义, 输出确定
func MermaidGraph(m *graph.CodeModel, results []*rule.EvaluationResult) string {
	var sb strings.Builder
	sb.WriteString("    graph LR\n")

	// 违规出处
	badEdges := make(map[edgeKey]bool)
	badTypes := make(map[string]bool)
	for _, res := range results {
		for _, ev := range res.Events {
			cs := ev.Primary()
			if cs.Kind == model.Declaration {
				badTypes[cs.OriginType] = true
				continue
			}
			badEdges[keyOf(cs)] = true
		}
	}

	// 边去重, 忽略自引用
	edgeSet := make(map[edgeKey]bool)
	nodes := make(map[string]bool)
	for _, cs := range m.Dependencies(nil) {
		if cs.OriginType == cs.TargetType || cs.Kind == model.Declaration {
			continue
		}
		edgeSet[keyOf(cs)] = true
		nodes[cs.OriginType] = true
		nodes[cs.TargetType] = true
	}
	for _, t := range m.Types() {
		if !t.Stub {
			nodes[t.Name] = true
		}
	}

	// 1. 按包生成 subgraph
	packages := make(map[string][]string)
	for name := range nodes {
		pkg := model.PackageOf(name)
		if t, ok := m.Type(name); ok {
			pkg = t.Package()
		}
		packages[pkg] = append(packages[pkg], name)
	}
	pkgNames := make([]string, 0, len(packages))
	for pkg := range packages {
		pkgNames = append(pkgNames, pkg)
	}
	sort.Strings(pkgNames)

	for _, pkg := range pkgNames {
		names := packages[pkg]
		sort.Strings(names)
		indent := "    "
		if pkg != "" {
			fmt.Fprintf(&sb, "    subgraph \"📦 %s\"\n", pkg)
			indent = "        "
		}
		for _, name := range names {
			kind := model.Unknown
			stub := true
			if t, ok := m.Type(name); ok {
				kind, stub = t.Kind, t.Stub
			}
			class := ""
			switch {
			case badTypes[name]:
				class = ":::violation"
			case stub:
				class = ":::stub"
			}
			fmt.Fprintf(&sb, "%s%s[\"%s <small>(%s)</small>\"]%s\n", indent, safeID(name), label(name), kind, class)
		}
		if pkg != "" {
			sb.WriteString("    end\n")
		}
	}

	// 2. 依赖边
	edges := make([]edgeKey, 0, len(edgeSet))
	for e := range edgeSet {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].from != edges[j].from {
			return edges[i].from < edges[j].from
		}
		if edges[i].to != edges[j].to {
			return edges[i].to < edges[j].to
		}
		return !edges[i].hierarchy && edges[j].hierarchy
	})

	var red []string
	for i, e := range edges {
		arrow := "-->"
		if e.hierarchy {
			arrow = "==继承/实现==>"
		}
		fmt.Fprintf(&sb, "    %s %s %s\n", safeID(e.from), arrow, safeID(e.to))
		if badEdges[e] {
			red = append(red, fmt.Sprint(i))
		}
	}

	// 3. 样式
	sb.WriteString("    classDef stub stroke-dasharray: 5 5,fill:#fafafa\n")
	sb.WriteString("    classDef violation stroke:#d00,stroke-width:3px\n")
	if len(red) > 0 {
		fmt.Fprintf(&sb, "    linkStyle %s stroke:#d00,stroke-width:3px\n", strings.Join(red, ","))
	}
	return sb.String()
}

func keyOf(cs *model.CallSite) edgeKey {
	return edgeKey{
		from:      cs.OriginType,
		to:        cs.TargetType,
		hierarchy: cs.Kind == model.Extend || cs.Kind == model.Implement,
	}
}

// label 节点显示短名称
func label(name string) string {
	return strings.NewReplacer("\"", "'", "<", "&lt;", ">", "&gt;").Replace(model.SimpleNameOf(name))
}

// safeID 确保限定名符合 Mermaid 的 ID 命名规范
func safeID(id string) string {
	r := strings.NewReplacer(".", "_", "/", "_", "-", "_", "\\", "_", ":", "_", "@", "_", "$", "_", "[", "_", "]", "_")
	return "n_" + r.Replace(id)
}
