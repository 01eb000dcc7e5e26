package golang

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/CodMac/go-archcheck/model"
	"github.com/CodMac/go-archcheck/parser"
)

// Extractor 遍历函数体, 依据接收者的静态类型生成调用点
type Extractor struct {
	collector *Collector
}

func NewGoExtractor(c *Collector) *Extractor {
	return &Extractor{collector: c}
}

func (e *Extractor) Extract(fc *fileContext) {
	for _, body := range fc.bodies {
		w := &funcWalker{collector: e.collector, fc: fc, body: body}
		w.push()
		for _, p := range body.params {
			w.declare(p.name, p.typ)
		}
		w.walk(body.node)
		w.pop()
	}
}

type funcWalker struct {
	collector *Collector
	fc        *fileContext
	body      *funcBody
	scopes    []map[string]string
}

func (w *funcWalker) push() { w.scopes = append(w.scopes, make(map[string]string)) }
func (w *funcWalker) pop()  { w.scopes = w.scopes[:len(w.scopes)-1] }

func (w *funcWalker) declare(name, typ string) {
	if name == "" || name == "_" {
		return
	}
	w.scopes[len(w.scopes)-1][name] = typ
}

func (w *funcWalker) lookup(name string) (string, bool) {
	for i := len(w.scopes) - 1; i >= 0; i-- {
		if t, ok := w.scopes[i][name]; ok {
			return t, true
		}
	}
	return "", false
}

func (w *funcWalker) walkChildren(n *sitter.Node) {
	for _, child := range parser.NamedChildren(n) {
		w.walk(child)
	}
}

func (w *funcWalker) walk(n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Kind() {
	case "comment", "type_identifier", "qualified_type", "pointer_type", "slice_type", "map_type":
		return

	case "block", "if_statement", "for_statement", "expression_switch_statement",
		"type_switch_statement", "select_statement", "communication_case", "expression_case", "type_case":
		w.push()
		defer w.pop()
		w.walkChildren(n)
		return

	case "func_literal":
		w.push()
		defer w.pop()
		params, _ := w.collector.collectParams(n.ChildByFieldName("parameters"), w.fc, w.body.typeVars)
		for _, p := range params {
			w.declare(p.name, p.typ)
		}
		w.walk(n.ChildByFieldName("body"))
		return

	case "short_var_declaration":
		right := parser.NamedChildren(n.ChildByFieldName("right"))
		for _, r := range right {
			w.walk(r)
		}
		left := parser.NamedChildren(n.ChildByFieldName("left"))
		for i, l := range left {
			typ := ""
			if len(left) == len(right) {
				typ = w.typeOf(right[i])
			} else if i == 0 && len(right) == 1 {
				typ = w.typeOf(right[0])
			}
			w.declare(w.text(l), typ)
		}
		return

	case "var_spec":
		w.walk(n.ChildByFieldName("value"))
		typ := w.typeName(n.ChildByFieldName("type"))
		values := parser.NamedChildren(n.ChildByFieldName("value"))
		i := 0
		for _, child := range parser.NamedChildren(n) {
			if child.Kind() != "identifier" {
				continue
			}
			t := typ
			if t == "" && i < len(values) {
				t = w.typeOf(values[i])
			}
			w.declare(w.text(child), t)
			i++
		}
		return

	case "range_clause":
		w.walk(n.ChildByFieldName("right"))
		for _, l := range parser.NamedChildren(n.ChildByFieldName("left")) {
			w.declare(w.text(l), "")
		}
		return

	case "type_switch_header":
		w.walk(n.ChildByFieldName("value"))
		if alias := n.ChildByFieldName("alias"); alias != nil {
			for _, a := range parser.NamedChildren(alias) {
				w.declare(w.text(a), "")
			}
		}
		return
	}

	w.walkChildren(n)

	switch n.Kind() {
	case "call_expression":
		w.call(n)
	case "selector_expression":
		w.selector(n)
	case "composite_literal":
		w.composite(n)
	}
}

func (w *funcWalker) add(cs *model.CallSite) {
	cs.TargetType = strings.TrimPrefix(cs.TargetType, "*")
	if cs.TargetType == "" || model.ElementTypeName(cs.TargetType) != cs.TargetType {
		return
	}
	m := w.body.member
	cs.OriginType = m.Owner
	cs.OriginMember = m.Name
	cs.OriginParams = m.ParamTypes
	cs.SourceFile = w.fc.sourceFile
	m.CallSites = append(m.CallSites, cs)
}

func (w *funcWalker) call(n *sitter.Node) {
	fn := n.ChildByFieldName("function")
	count, types := w.arguments(n.ChildByFieldName("arguments"))
	cs := &model.CallSite{Kind: model.Call, ArgCount: count, ArgTypes: types}
	switch fn.Kind() {
	case "identifier":
		name := w.text(fn)
		if _, local := w.lookup(name); local || builtinFuncs[name] {
			return
		}
		if _, isType := w.fc.fields[w.fc.qualify(name)]; isType {
			return
		}
		cs.TargetType, cs.TargetMember, cs.Line = w.fc.importPath, name, parser.Line(fn)
	case "selector_expression":
		field := fn.ChildByFieldName("field")
		cs.TargetType, cs.TargetMember, cs.Line = w.ownerOf(fn.ChildByFieldName("operand")), w.text(field), parser.Line(field)
	default:
		return
	}
	w.add(cs)
}

// selector 记录字段访问; 作为调用函数的选择器由 call 处理
func (w *funcWalker) selector(n *sitter.Node) {
	if p := n.Parent(); p != nil && p.Kind() == "call_expression" && sameNode(p.ChildByFieldName("function"), n) {
		return
	}
	field := n.ChildByFieldName("field")
	w.add(&model.CallSite{
		Kind:         model.Use,
		TargetType:   w.ownerOf(n.ChildByFieldName("operand")),
		TargetMember: w.text(field),
		Line:         parser.Line(field),
		Resolved:     true,
	})
}

// composite 复合字面量视为对命名类型的构造
func (w *funcWalker) composite(n *sitter.Node) {
	typ := w.typeName(n.ChildByFieldName("type"))
	w.add(&model.CallSite{
		Kind:         model.Create,
		TargetType:   typ,
		TargetMember: model.ConstructorName,
		Line:         parser.Line(n),
		Resolved:     true,
	})
}

func (w *funcWalker) arguments(args *sitter.Node) (int, []string) {
	var types []string
	for _, a := range parser.NamedChildren(args) {
		if a.Kind() == "comment" {
			continue
		}
		types = append(types, w.typeOf(a))
	}
	return len(types), types
}

// ownerOf 返回选择器操作数的类型; 导入包别名返回包路径 (包级伪类型)
func (w *funcWalker) ownerOf(operand *sitter.Node) string {
	if operand.Kind() == "identifier" {
		name := w.text(operand)
		if _, local := w.lookup(name); !local {
			if path, ok := w.fc.imports[name]; ok {
				return path
			}
		}
	}
	return strings.TrimPrefix(w.typeOf(operand), "*")
}

func (w *funcWalker) typeOf(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	switch n.Kind() {
	case "identifier":
		name := w.text(n)
		if t, ok := w.lookup(name); ok {
			return t
		}
		return w.fc.vars[name]
	case "interpreted_string_literal", "raw_string_literal":
		return "string"
	case "int_literal":
		return "int"
	case "float_literal":
		return "float64"
	case "rune_literal":
		return "rune"
	case "true", "false":
		return "bool"
	case "composite_literal":
		return w.typeName(n.ChildByFieldName("type"))
	case "parenthesized_expression":
		if named := parser.NamedChildren(n); len(named) > 0 {
			return w.typeOf(named[0])
		}
	case "type_assertion_expression":
		return w.typeName(n.ChildByFieldName("type"))
	case "unary_expression":
		operand := w.typeOf(n.ChildByFieldName("operand"))
		switch w.text(n.ChildByFieldName("operator")) {
		case "&":
			if operand != "" {
				return "*" + operand
			}
		case "!":
			return "bool"
		default:
			return operand
		}
	case "binary_expression":
		switch w.text(n.ChildByFieldName("operator")) {
		case "==", "!=", "<", ">", "<=", ">=", "&&", "||":
			return "bool"
		}
		return w.typeOf(n.ChildByFieldName("left"))
	case "selector_expression":
		owner := w.ownerOf(n.ChildByFieldName("operand"))
		if fields, ok := w.fc.fields[owner]; ok {
			return fields[w.text(n.ChildByFieldName("field"))]
		}
	case "call_expression":
		fn := n.ChildByFieldName("function")
		switch fn.Kind() {
		case "identifier":
			name := w.text(fn)
			args := parser.NamedChildren(n.ChildByFieldName("arguments"))
			switch {
			case name == "new" && len(args) > 0:
				return "*" + w.typeName(args[0])
			case name == "make" && len(args) > 0:
				return w.typeName(args[0])
			}
			if _, isType := w.fc.fields[w.fc.qualify(name)]; isType {
				return w.fc.qualify(name)
			}
			return w.fc.results[w.fc.importPath+"."+name]
		case "selector_expression":
			owner := w.ownerOf(fn.ChildByFieldName("operand"))
			return w.fc.results[owner+"."+w.text(fn.ChildByFieldName("field"))]
		}
	}
	return ""
}

func (w *funcWalker) typeName(n *sitter.Node) string {
	return w.collector.typeName(n, w.fc, w.body.typeVars)
}

func (w *funcWalker) text(n *sitter.Node) string {
	return parser.Text(n, w.fc.source)
}

func sameNode(a, b *sitter.Node) bool {
	return a != nil && b != nil && a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte()
}
