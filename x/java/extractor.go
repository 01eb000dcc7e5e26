package java

import (
	"strings"
	"unicode"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/CodMac/go-archcheck/model"
	"github.com/CodMac/go-archcheck/parser"
)

// Extractor 遍历成员体, 依据静态类型生成调用点。
// 源码中无法得到目标方法的形参签名, 调用点记录实参个数与实参静态类型,
// 由图构建阶段完成重载解析。
type Extractor struct {
	collector *Collector
}

func NewJavaExtractor(c *Collector) *Extractor {
	return &Extractor{collector: c}
}

// Extract 为文件内所有成员体生成调用点
func (e *Extractor) Extract(fc *fileContext) {
	for _, decl := range fc.types {
		for _, body := range decl.bodies {
			w := &bodyWalker{collector: e.collector, fc: fc, decl: decl, body: body}
			w.run()
		}
	}
}

// maxHierarchyDepth 防止源码中的循环继承导致死循环
const maxHierarchyDepth = 64

type bodyWalker struct {
	collector *Collector
	fc        *fileContext
	decl      *typeDecl
	body      *memberBody
	scopes    []map[string]string
}

func (w *bodyWalker) run() {
	w.push()
	defer w.pop()
	for _, p := range w.body.params {
		w.declare(p.name, p.typ)
	}

	switch {
	case w.body.member.Name == model.StaticInitName:
		for _, n := range w.decl.staticInits {
			w.walk(n)
		}
	case w.body.ctor:
		var first *sitter.Node
		if w.body.explicitCall {
			first = firstStatement(w.body.node)
			w.walk(first)
		} else {
			w.implicitSuperCall()
		}
		if !w.body.delegating {
			for _, n := range w.decl.instanceInits {
				w.walk(n)
			}
		}
		w.push()
		for _, stmt := range parser.NamedChildren(w.body.node) {
			if first != nil && sameNode(stmt, first) {
				continue
			}
			w.walk(stmt)
		}
		w.pop()
	default:
		w.walk(w.body.node)
	}
}

// implicitSuperCall 编译器为未显式调用 this/super 的构造器插入的父类构造器调用
func (w *bodyWalker) implicitSuperCall() {
	t := w.decl.typ
	if t.SuperClass == "" || (t.Kind != model.Class && t.Kind != model.Enum) {
		return
	}
	var params []string
	if t.Kind == model.Enum {
		params = []string{"java.lang.String", "int"}
	}
	w.add(&model.CallSite{
		Kind:         model.Create,
		TargetType:   t.SuperClass,
		TargetMember: model.ConstructorName,
		TargetParams: params,
		Line:         w.body.line,
		Resolved:     true,
	})
}

func (w *bodyWalker) push() {
	w.scopes = append(w.scopes, make(map[string]string))
}

func (w *bodyWalker) pop() {
	w.scopes = w.scopes[:len(w.scopes)-1]
}

func (w *bodyWalker) declare(name, typ string) {
	if name == "" {
		return
	}
	w.scopes[len(w.scopes)-1][name] = typ
}

func (w *bodyWalker) walkChildren(n *sitter.Node) {
	for _, child := range parser.NamedChildren(n) {
		w.walk(child)
	}
}

// walk 后序遍历: 先处理接收者与实参, 再记录调用本身, 与字节码中的指令顺序一致
func (w *bodyWalker) walk(n *sitter.Node) {
	if n == nil {
		return
	}
	kind := n.Kind()
	switch kind {
	case "modifiers", "marker_annotation", "annotation", "line_comment", "block_comment",
		"type_identifier", "scoped_type_identifier", "generic_type", "array_type", "integral_type",
		"floating_point_type", "boolean_type", "void_type", "type_arguments", "type_parameters",
		"dimensions", "method_reference", "class_literal", "superclass", "super_interfaces":
		return

	case "block", "constructor_body", "switch_block", "for_statement", "class_body", "try_with_resources_statement":
		w.push()
		defer w.pop()
		w.walkChildren(n)
		return

	case "lambda_expression":
		w.push()
		defer w.pop()
		w.declareLambdaParams(n.ChildByFieldName("parameters"))
		w.walk(n.ChildByFieldName("body"))
		return

	case "method_declaration", "constructor_declaration":
		// 局部类或匿名类中的方法, 调用点归属于外层成员
		w.push()
		defer w.pop()
		for _, p := range w.collector.collectParams(n.ChildByFieldName("parameters"), w.fc, w.body.typeVars) {
			w.declare(p.name, p.typ)
		}
		w.walk(n.ChildByFieldName("body"))
		return

	case "local_variable_declaration", "field_declaration", "constant_declaration":
		typeNode := n.ChildByFieldName("type")
		for _, d := range parser.NamedChildren(n) {
			if d.Kind() != "variable_declarator" {
				continue
			}
			value := d.ChildByFieldName("value")
			w.walk(value)
			w.declare(w.text(d.ChildByFieldName("name")), w.declaredType(typeNode, d.ChildByFieldName("dimensions"), value))
		}
		return

	case "enhanced_for_statement":
		w.push()
		defer w.pop()
		value := n.ChildByFieldName("value")
		w.walk(value)
		typ := w.declaredType(n.ChildByFieldName("type"), n.ChildByFieldName("dimensions"), nil)
		if w.text(n.ChildByFieldName("type")) == "var" {
			typ = strings.TrimSuffix(w.typeOf(value), "[]")
		}
		w.declare(w.text(n.ChildByFieldName("name")), typ)
		w.walk(n.ChildByFieldName("body"))
		return

	case "catch_clause":
		w.push()
		defer w.pop()
		if p := parser.FirstChildOfKind(n, "catch_formal_parameter"); p != nil {
			w.declare(w.text(p.ChildByFieldName("name")), w.typeName(parser.FirstChildOfKind(p, "catch_type")))
		}
		w.walk(n.ChildByFieldName("body"))
		return

	case "resource":
		if name := n.ChildByFieldName("name"); name != nil {
			value := n.ChildByFieldName("value")
			w.walk(value)
			w.declare(w.text(name), w.declaredType(n.ChildByFieldName("type"), nil, value))
			return
		}

	case "identifier":
		w.identifier(n)
		return
	}

	w.walkChildren(n)

	switch kind {
	case "method_invocation":
		w.invocation(n)
	case "object_creation_expression":
		w.creation(n)
	case "explicit_constructor_invocation":
		w.constructorCall(n)
	case "field_access":
		w.fieldAccess(n)
	case "instanceof_expression":
		if name := n.ChildByFieldName("name"); name != nil {
			w.declare(w.text(name), w.typeName(n.ChildByFieldName("right")))
		}
	}
}

func (w *bodyWalker) declareLambdaParams(p *sitter.Node) {
	if p == nil {
		return
	}
	switch p.Kind() {
	case "identifier":
		w.declare(w.text(p), "")
	case "formal_parameters":
		for _, fp := range w.collector.collectParams(p, w.fc, w.body.typeVars) {
			w.declare(fp.name, fp.typ)
		}
	case "inferred_parameters":
		for _, id := range parser.NamedChildren(p) {
			w.declare(w.text(id), "")
		}
	}
}

// --- 调用点 ---

func (w *bodyWalker) add(cs *model.CallSite) {
	pending := cs.TargetType == "" && cs.Receiver != nil
	if !pending && !validTarget(cs.TargetType) {
		return
	}
	m := w.body.member
	cs.OriginType = w.decl.typ.Name
	cs.OriginMember = m.Name
	cs.OriginParams = m.ParamTypes
	cs.SourceFile = w.fc.sourceFile
	if pending {
		m.Pending = append(m.Pending, cs)
		return
	}
	m.CallSites = append(m.CallSites, cs)
}

func (w *bodyWalker) invocation(n *sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	count, types := w.arguments(n.ChildByFieldName("arguments"))
	cs := &model.CallSite{
		Kind:         model.Call,
		TargetType:   w.invocationTarget(n),
		TargetMember: w.text(nameNode),
		Line:         parser.Line(nameNode),
		ArgCount:     count,
		ArgTypes:     types,
	}
	if cs.TargetType == "" {
		cs.Receiver = w.receiverChain(n.ChildByFieldName("object"))
	}
	w.add(cs)
}

func (w *bodyWalker) creation(n *sitter.Node) {
	count, types := w.arguments(n.ChildByFieldName("arguments"))
	w.add(&model.CallSite{
		Kind:         model.Create,
		TargetType:   w.typeName(n.ChildByFieldName("type")),
		TargetMember: model.ConstructorName,
		Line:         parser.Line(n),
		ArgCount:     count,
		ArgTypes:     types,
	})
}

func (w *bodyWalker) constructorCall(n *sitter.Node) {
	target := w.decl.typ.SuperClass
	if w.text(n.ChildByFieldName("constructor")) == "this" {
		target = w.decl.typ.Name
	}
	count, types := w.arguments(n.ChildByFieldName("arguments"))
	w.add(&model.CallSite{
		Kind:         model.Create,
		TargetType:   target,
		TargetMember: model.ConstructorName,
		Line:         parser.Line(n),
		ArgCount:     count,
		ArgTypes:     types,
	})
}

func (w *bodyWalker) fieldAccess(n *sitter.Node) {
	field := n.ChildByFieldName("field")
	if field == nil || field.Kind() != "identifier" {
		return
	}
	obj := n.ChildByFieldName("object")
	cs := &model.CallSite{
		Kind:         model.Use,
		TargetType:   w.receiverType(obj),
		TargetMember: w.text(field),
		Line:         parser.Line(field),
		Resolved:     true,
	}
	if cs.TargetType == "" {
		cs.Receiver = w.receiverChain(obj)
	}
	w.add(cs)
}

// identifier 处理未限定的字段引用 (隐式 this 或静态导入)
func (w *bodyWalker) identifier(n *sitter.Node) {
	if !isExpressionIdentifier(n) {
		return
	}
	name := w.text(n)
	if _, ok := w.lookupLocal(name); ok {
		return
	}
	owner, _, ok := w.lookupField(name)
	if !ok {
		if owner, ok = w.fc.res.staticImports[name]; !ok {
			return
		}
	}
	w.add(&model.CallSite{
		Kind:         model.Use,
		TargetType:   owner,
		TargetMember: name,
		Line:         parser.Line(n),
		Resolved:     true,
	})
}

func (w *bodyWalker) arguments(args *sitter.Node) (int, []string) {
	nodes := parser.NamedChildren(args)
	var types []string
	for _, a := range nodes {
		if a.Kind() == "line_comment" || a.Kind() == "block_comment" {
			continue
		}
		types = append(types, w.typeOf(a))
	}
	return len(types), types
}

// --- 静态类型推断 ---

func (w *bodyWalker) invocationTarget(n *sitter.Node) string {
	obj := n.ChildByFieldName("object")
	if obj != nil {
		return w.receiverType(obj)
	}
	name := w.text(n.ChildByFieldName("name"))
	for d := w.decl; d != nil; d = d.outer {
		if len(d.typ.MethodsNamed(name)) > 0 {
			return d.typ.Name
		}
	}
	if owner, ok := w.fc.res.staticImports[name]; ok {
		return owner
	}
	if len(w.fc.res.staticWildcards) > 0 {
		return w.fc.res.staticWildcards[0]
	}
	// 继承自父类的方法, 字节码中以当前类为接收者
	return w.decl.typ.Name
}

func (w *bodyWalker) receiverType(obj *sitter.Node) string {
	if obj == nil {
		return ""
	}
	switch obj.Kind() {
	case "this":
		return w.decl.typ.Name
	case "super":
		return w.decl.typ.SuperClass
	}
	if t, ok := w.staticType(obj); ok {
		return t
	}
	return w.typeOf(obj)
}

// receiverChain 把文件内推断不出类型的接收者表达式展开为访问链。
// 链首是能确定的类型 (或未知), 其后每一步是字段读取或方法调用。
func (w *bodyWalker) receiverChain(obj *sitter.Node) *model.ReceiverChain {
	c := &model.ReceiverChain{}
	if obj != nil {
		c.Expr = strings.Join(strings.Fields(w.text(obj)), " ")
	}
	w.extendChain(c, obj)
	return c
}

func (w *bodyWalker) extendChain(c *model.ReceiverChain, n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Kind() {
	case "parenthesized_expression":
		if named := parser.NamedChildren(n); len(named) > 0 {
			w.extendChain(c, named[0])
		}
		return
	case "identifier":
		name := w.text(n)
		if _, ok := w.lookupLocal(name); ok {
			return
		}
		// 未在文件内声明的字段按继承字段处理
		c.Base = w.decl.typ.Name
		c.Steps = append(c.Steps, model.ReceiverStep{Name: name, Field: true})
		return
	case "field_access":
		field := n.ChildByFieldName("field")
		if field == nil || field.Kind() != "identifier" {
			return
		}
		obj := n.ChildByFieldName("object")
		if owner := w.receiverType(obj); owner != "" {
			c.Base = owner
		} else {
			w.extendChain(c, obj)
		}
		c.Steps = append(c.Steps, model.ReceiverStep{Name: w.text(field), Field: true})
		return
	case "method_invocation":
		obj := n.ChildByFieldName("object")
		if owner := w.invocationTarget(n); owner != "" {
			c.Base = owner
		} else {
			w.extendChain(c, obj)
		}
		count, _ := w.arguments(n.ChildByFieldName("arguments"))
		c.Steps = append(c.Steps, model.ReceiverStep{Name: w.text(n.ChildByFieldName("name")), ArgCount: count})
		return
	}
	if t := w.typeOf(n); t != "" {
		c.Base = t
	}
}

// staticType 判断表达式是否为类型引用 (静态成员访问的接收者)
func (w *bodyWalker) staticType(n *sitter.Node) (string, bool) {
	switch n.Kind() {
	case "identifier":
		name := w.text(n)
		if w.isVariable(name) {
			return "", false
		}
		if w.fc.res.known(name) || isTypeLike(name) {
			return w.typeName(n), true
		}
	case "field_access", "scoped_identifier":
		txt := strings.Join(strings.Fields(w.text(n)), "")
		segs := strings.Split(txt, ".")
		for _, s := range segs {
			if !isJavaIdentifier(s) {
				return "", false
			}
		}
		if w.isVariable(segs[0]) || !isTypeLike(segs[len(segs)-1]) {
			return "", false
		}
		return w.fc.res.resolve(txt), true
	}
	return "", false
}

func (w *bodyWalker) typeOf(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	switch n.Kind() {
	case "identifier":
		name := w.text(n)
		if t, ok := w.lookupLocal(name); ok {
			return t
		}
		if _, t, ok := w.lookupField(name); ok {
			return t
		}
	case "this":
		return w.decl.typ.Name
	case "super":
		return w.decl.typ.SuperClass
	case "string_literal", "text_block":
		return "java.lang.String"
	case "character_literal":
		return "char"
	case "true", "false":
		return "boolean"
	case "decimal_integer_literal", "hex_integer_literal", "octal_integer_literal", "binary_integer_literal":
		if strings.HasSuffix(strings.ToLower(w.text(n)), "l") {
			return "long"
		}
		return "int"
	case "decimal_floating_point_literal", "hex_floating_point_literal":
		if strings.HasSuffix(strings.ToLower(w.text(n)), "f") {
			return "float"
		}
		return "double"
	case "class_literal":
		return "java.lang.Class"
	case "parenthesized_expression":
		if named := parser.NamedChildren(n); len(named) > 0 {
			return w.typeOf(named[0])
		}
	case "cast_expression", "object_creation_expression":
		return w.typeName(n.ChildByFieldName("type"))
	case "array_creation_expression":
		depth := 0
		for _, child := range parser.NamedChildren(n) {
			switch child.Kind() {
			case "dimensions_expr":
				depth++
			case "dimensions":
				depth += strings.Count(w.text(child), "[")
			}
		}
		return w.typeName(n.ChildByFieldName("type")) + strings.Repeat("[]", depth)
	case "array_access":
		if t := w.typeOf(n.ChildByFieldName("array")); strings.HasSuffix(t, "[]") {
			return strings.TrimSuffix(t, "[]")
		}
	case "ternary_expression":
		if t := w.typeOf(n.ChildByFieldName("consequence")); t != "" {
			return t
		}
		return w.typeOf(n.ChildByFieldName("alternative"))
	case "assignment_expression":
		return w.typeOf(n.ChildByFieldName("left"))
	case "instanceof_expression":
		return "boolean"
	case "unary_expression":
		if w.text(n.ChildByFieldName("operator")) == "!" {
			return "boolean"
		}
		return w.typeOf(n.ChildByFieldName("operand"))
	case "update_expression":
		if named := parser.NamedChildren(n); len(named) > 0 {
			return w.typeOf(named[0])
		}
	case "binary_expression":
		left, right := n.ChildByFieldName("left"), n.ChildByFieldName("right")
		switch w.text(n.ChildByFieldName("operator")) {
		case "==", "!=", "<", ">", "<=", ">=", "&&", "||":
			return "boolean"
		case "+":
			if lt, rt := w.typeOf(left), w.typeOf(right); lt == "java.lang.String" || rt == "java.lang.String" {
				return "java.lang.String"
			}
		}
		return w.typeOf(left)
	case "field_access":
		field := n.ChildByFieldName("field")
		obj := n.ChildByFieldName("object")
		if field != nil && field.Kind() == "this" {
			t, _ := w.staticType(obj)
			return t
		}
		owner := w.receiverType(obj)
		name := w.text(field)
		if strings.HasSuffix(owner, "[]") && name == "length" {
			return "int"
		}
		return w.fieldType(owner, name)
	case "method_invocation":
		count, _ := w.arguments(n.ChildByFieldName("arguments"))
		return w.returnType(w.invocationTarget(n), w.text(n.ChildByFieldName("name")), count)
	}
	return ""
}

// fieldType 在文件内声明的类型及其父类链中查找字段类型
func (w *bodyWalker) fieldType(owner, name string) string {
	d := w.fc.byName[owner]
	for depth := 0; d != nil && depth < maxHierarchyDepth; depth++ {
		if t, ok := d.fields[name]; ok {
			return t
		}
		d = w.fc.byName[d.typ.SuperClass]
	}
	return ""
}

func (w *bodyWalker) returnType(owner, name string, argc int) string {
	d := w.fc.byName[owner]
	for depth := 0; d != nil && depth < maxHierarchyDepth; depth++ {
		for _, m := range d.typ.MethodsNamed(name) {
			if len(m.ParamTypes) == argc || (m.IsVarargs() && argc >= len(m.ParamTypes)-1) {
				return m.ReturnType
			}
		}
		d = w.fc.byName[d.typ.SuperClass]
	}
	return ""
}

func (w *bodyWalker) declaredType(typeNode, dimensions, value *sitter.Node) string {
	if w.text(typeNode) == "var" {
		return w.typeOf(value)
	}
	return w.typeName(typeNode) + dims(dimensions, w.fc)
}

func (w *bodyWalker) lookupLocal(name string) (string, bool) {
	for i := len(w.scopes) - 1; i >= 0; i-- {
		if t, ok := w.scopes[i][name]; ok {
			return t, true
		}
	}
	return "", false
}

func (w *bodyWalker) lookupField(name string) (owner, typ string, ok bool) {
	for d := w.decl; d != nil; d = d.outer {
		if t, found := d.fields[name]; found {
			return d.typ.Name, t, true
		}
	}
	return "", "", false
}

func (w *bodyWalker) isVariable(name string) bool {
	if _, ok := w.lookupLocal(name); ok {
		return true
	}
	if _, _, ok := w.lookupField(name); ok {
		return true
	}
	_, ok := w.fc.res.staticImports[name]
	return ok
}

func (w *bodyWalker) typeName(n *sitter.Node) string {
	return w.collector.typeName(n, w.fc, w.body.typeVars)
}

func (w *bodyWalker) text(n *sitter.Node) string {
	return parser.Text(n, w.fc.source)
}

// --- 节点辅助 ---

func validTarget(t string) bool {
	return t != "" && model.ElementTypeName(t) == t
}

func sameNode(a, b *sitter.Node) bool {
	return a != nil && b != nil && a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Kind() == b.Kind()
}

func isFieldChild(parent *sitter.Node, field string, n *sitter.Node) bool {
	return sameNode(parent.ChildByFieldName(field), n)
}

// isExpressionIdentifier 排除声明名、成员名、标签等非表达式位置的标识符
func isExpressionIdentifier(n *sitter.Node) bool {
	p := n.Parent()
	if p == nil {
		return false
	}
	for _, field := range []string{"name", "field", "key", "constructor"} {
		if isFieldChild(p, field, n) {
			return false
		}
	}
	switch p.Kind() {
	case "lambda_expression", "inferred_parameters", "method_reference", "scoped_identifier", "switch_label",
		"labeled_statement", "break_statement", "continue_statement", "marker_annotation", "annotation",
		"element_value_pair", "enum_constant", "formal_parameter", "catch_formal_parameter", "class_literal":
		return false
	}
	return true
}

func isJavaIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || r == '$' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}
