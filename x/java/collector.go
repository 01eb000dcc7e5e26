package java

import (
	"path/filepath"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/CodMac/go-archcheck/model"
	"github.com/CodMac/go-archcheck/parser"
)

// fileContext 单个源文件的收集结果
type fileContext struct {
	path       string
	sourceFile string
	source     []byte
	res        *typeResolver
	types      []*typeDecl
	byName     map[string]*typeDecl
}

// typeDecl 一个类型声明及其待分析的成员体
type typeDecl struct {
	typ      *model.ImportedType
	node     *sitter.Node
	outer    *typeDecl
	typeVars map[string]string // 类型变量 -> 擦除后的类型
	fields   map[string]string // 字段名 -> 类型
	bodies   []*memberBody

	instanceInits []*sitter.Node // 实例字段初始化与实例初始化块
	staticInits   []*sitter.Node
}

// memberBody 需要提取调用点的成员体
type memberBody struct {
	member   *model.ImportedMember
	node     *sitter.Node
	params   []param
	typeVars map[string]string

	// 构造器专用
	ctor         bool
	delegating   bool // 以 this(...) 开头
	explicitCall bool // 显式调用了 this(...) 或 super(...)
	line         int
}

type param struct {
	name string
	typ  string
}

type Collector struct{}

func NewJavaCollector() *Collector {
	return &Collector{}
}

// Collect 收集包、导入、类型与成员签名, 成员体留给 Extractor
func (c *Collector) Collect(root *sitter.Node, path string, source []byte) *fileContext {
	fc := &fileContext{
		path:       path,
		sourceFile: filepath.Base(path),
		source:     source,
		res:        newTypeResolver(),
		byName:     make(map[string]*typeDecl),
	}

	// 1. 处理顶级声明 (Package & Imports)
	c.processTopLevelDeclarations(root, fc)

	// 2. 预登记全部类型名, 成员签名可以引用文件内任意位置声明的类型
	for _, child := range parser.NamedChildren(root) {
		c.declareTypeNames(child, fc, "", "")
	}

	// 3. 收集类型与成员
	for _, child := range parser.NamedChildren(root) {
		if isTypeDeclaration(child.Kind()) {
			c.collectType(child, fc, nil)
		}
	}
	return fc
}

func (c *Collector) processTopLevelDeclarations(root *sitter.Node, fc *fileContext) {
	for _, child := range parser.NamedChildren(root) {
		switch child.Kind() {
		case "package_declaration":
			for _, sub := range parser.NamedChildren(child) {
				if sub.Kind() == "scoped_identifier" || sub.Kind() == "identifier" {
					fc.res.pkg = parser.Text(sub, fc.source)
					break
				}
			}
		case "import_declaration":
			c.handleImport(child, fc)
		}
	}
}

func (c *Collector) handleImport(node *sitter.Node, fc *fileContext) {
	isStatic, isWildcard := false, false
	path := ""
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "static":
			isStatic = true
		case "asterisk":
			isWildcard = true
		case "scoped_identifier", "identifier":
			path = parser.Text(child, fc.source)
		}
	}
	if path == "" {
		return
	}

	switch {
	case isStatic && isWildcard:
		fc.res.staticWildcards = append(fc.res.staticWildcards, qualifiedToBinary(path))
	case isStatic:
		i := strings.LastIndexByte(path, '.')
		if i < 0 {
			return
		}
		fc.res.staticImports[path[i+1:]] = qualifiedToBinary(path[:i])
	case isWildcard:
		fc.res.wildcards = append(fc.res.wildcards, path)
	default:
		parts := strings.Split(path, ".")
		fc.res.imports[parts[len(parts)-1]] = qualifiedToBinary(path)
	}
}

func isTypeDeclaration(kind string) bool {
	switch kind {
	case "class_declaration", "interface_declaration", "enum_declaration",
		"record_declaration", "annotation_type_declaration":
		return true
	}
	return false
}

// declareTypeNames 登记类型的二进制名, 嵌套类型同时以短名和 "Outer.Inner" 登记
func (c *Collector) declareTypeNames(node *sitter.Node, fc *fileContext, outerBinary, outerDotted string) {
	if !isTypeDeclaration(node.Kind()) {
		return
	}
	name := parser.Text(node.ChildByFieldName("name"), fc.source)
	if name == "" {
		return
	}
	binary, dotted := name, name
	switch {
	case outerBinary != "":
		binary = outerBinary + "$" + name
		dotted = outerDotted + "." + name
	case fc.res.pkg != "":
		binary = fc.res.pkg + "." + name
	}
	fc.res.declared[dotted] = binary
	if _, ok := fc.res.declared[name]; !ok {
		fc.res.declared[name] = binary
	}
	for _, member := range bodyMembers(node.ChildByFieldName("body")) {
		c.declareTypeNames(member, fc, binary, dotted)
	}
}

// bodyMembers 返回类型体的成员节点, 枚举体中的 enum_body_declarations 被展开
func bodyMembers(body *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for _, child := range parser.NamedChildren(body) {
		if child.Kind() == "enum_body_declarations" {
			out = append(out, parser.NamedChildren(child)...)
			continue
		}
		out = append(out, child)
	}
	return out
}

func (c *Collector) collectType(node *sitter.Node, fc *fileContext, outer *typeDecl) {
	nameNode := node.ChildByFieldName("name")
	name := parser.Text(nameNode, fc.source)
	if name == "" {
		return
	}
	qn := name
	switch {
	case outer != nil:
		qn = outer.typ.Name + "$" + name
	case fc.res.pkg != "":
		qn = fc.res.pkg + "." + name
	}

	modifiers, annotations := c.extractModifiersAndAnnotations(node, fc)
	decl := &typeDecl{
		node:     node,
		outer:    outer,
		typeVars: make(map[string]string),
		fields:   make(map[string]string),
		typ: &model.ImportedType{
			Name:        qn,
			Modifiers:   modifiers,
			Annotations: annotations,
			SourceFile:  fc.sourceFile,
			Location:    &model.Location{FilePath: fc.path, StartLine: parser.Line(nameNode)},
		},
	}
	// 非静态内部类可见外部类型变量
	if outer != nil && !model.HasModifier(modifiers, "static") {
		for k, v := range outer.typeVars {
			decl.typeVars[k] = v
		}
	}
	c.collectTypeParameters(node.ChildByFieldName("type_parameters"), fc, decl.typeVars)

	c.fillTypeHierarchy(node, fc, decl)
	fc.types = append(fc.types, decl)
	fc.byName[qn] = decl

	hasCtor := false
	for _, member := range bodyMembers(node.ChildByFieldName("body")) {
		if isTypeDeclaration(member.Kind()) {
			c.collectType(member, fc, decl)
			continue
		}
		if c.collectMember(member, fc, decl) {
			hasCtor = true
		}
	}
	c.addImplicitMembers(node, fc, decl, hasCtor)
}

func (c *Collector) fillTypeHierarchy(node *sitter.Node, fc *fileContext, decl *typeDecl) {
	t := decl.typ
	switch node.Kind() {
	case "class_declaration":
		t.Kind = model.Class
		t.SuperClass = "java.lang.Object"
		if sc := node.ChildByFieldName("superclass"); sc != nil {
			if named := parser.NamedChildren(sc); len(named) > 0 {
				t.SuperClass = c.typeName(named[0], fc, decl.typeVars)
			}
		}
	case "record_declaration":
		t.Kind = model.Class
		t.SuperClass = "java.lang.Record"
		t.Modifiers = appendMissing(t.Modifiers, "final")
	case "enum_declaration":
		t.Kind = model.Enum
		t.SuperClass = "java.lang.Enum"
	case "interface_declaration":
		t.Kind = model.Interface
	case "annotation_type_declaration":
		t.Kind = model.KAnnotation
		t.Interfaces = []string{"java.lang.annotation.Annotation"}
	}

	var iNode *sitter.Node
	if n := node.ChildByFieldName("interfaces"); n != nil {
		iNode = n
	} else {
		iNode = parser.FirstChildOfKind(node, "extends_interfaces")
	}
	if iNode == nil {
		return
	}
	if list := parser.FirstChildOfKind(iNode, "type_list"); list != nil {
		iNode = list
	}
	for _, tn := range parser.NamedChildren(iNode) {
		if name := c.typeName(tn, fc, decl.typeVars); name != "" {
			t.Interfaces = append(t.Interfaces, name)
		}
	}
}

// collectMember 收集单个成员, 返回是否为显式构造器
func (c *Collector) collectMember(node *sitter.Node, fc *fileContext, decl *typeDecl) bool {
	owner := decl.typ.Name
	switch node.Kind() {
	case "field_declaration", "constant_declaration":
		modifiers, annotations := c.extractModifiersAndAnnotations(node, fc)
		static := model.HasModifier(modifiers, "static") || decl.typ.IsInterface()
		typeNode := node.ChildByFieldName("type")
		for _, d := range parser.NamedChildren(node) {
			if d.Kind() != "variable_declarator" {
				continue
			}
			nameNode := d.ChildByFieldName("name")
			typ := c.typeName(typeNode, fc, decl.typeVars) + dims(d.ChildByFieldName("dimensions"), fc)
			name := parser.Text(nameNode, fc.source)
			decl.fields[name] = typ
			decl.typ.Members = append(decl.typ.Members, &model.ImportedMember{
				Owner:       owner,
				Name:        name,
				Kind:        model.Field,
				ReturnType:  typ,
				Modifiers:   modifiers,
				Annotations: annotations,
				Location:    &model.Location{FilePath: fc.path, StartLine: parser.Line(nameNode)},
			})
			if value := d.ChildByFieldName("value"); value != nil {
				if static {
					decl.staticInits = append(decl.staticInits, value)
				} else {
					decl.instanceInits = append(decl.instanceInits, value)
				}
			}
		}

	case "enum_constant":
		nameNode := node.ChildByFieldName("name")
		name := parser.Text(nameNode, fc.source)
		decl.fields[name] = owner
		decl.typ.Members = append(decl.typ.Members, &model.ImportedMember{
			Owner:      owner,
			Name:       name,
			Kind:       model.Field,
			ReturnType: owner,
			Modifiers:  []string{"public", "static", "final", "enum"},
			Location:   &model.Location{FilePath: fc.path, StartLine: parser.Line(nameNode)},
		})
		if args := node.ChildByFieldName("arguments"); args != nil {
			decl.staticInits = append(decl.staticInits, args)
		}
		if body := node.ChildByFieldName("body"); body != nil {
			decl.staticInits = append(decl.staticInits, body)
		}

	case "method_declaration", "annotation_type_element_declaration":
		modifiers, annotations := c.extractModifiersAndAnnotations(node, fc)
		typeVars := c.methodTypeVars(node, fc, decl)
		nameNode := node.ChildByFieldName("name")
		params := c.collectParams(node.ChildByFieldName("parameters"), fc, typeVars)
		if decl.typ.IsInterface() && node.ChildByFieldName("body") == nil && !model.HasModifier(modifiers, "static") {
			modifiers = appendMissing(modifiers, "abstract")
		}
		m := &model.ImportedMember{
			Owner:       owner,
			Name:        parser.Text(nameNode, fc.source),
			Kind:        model.Method,
			ParamTypes:  paramTypes(params),
			ReturnType:  c.typeName(node.ChildByFieldName("type"), fc, typeVars) + dims(node.ChildByFieldName("dimensions"), fc),
			Modifiers:   withVarargs(modifiers, node.ChildByFieldName("parameters")),
			Annotations: annotations,
			Location:    &model.Location{FilePath: fc.path, StartLine: parser.Line(nameNode)},
		}
		decl.typ.Members = append(decl.typ.Members, m)
		if body := node.ChildByFieldName("body"); body != nil {
			decl.bodies = append(decl.bodies, &memberBody{member: m, node: body, params: params, typeVars: typeVars})
		}

	case "constructor_declaration", "compact_constructor_declaration":
		modifiers, annotations := c.extractModifiersAndAnnotations(node, fc)
		typeVars := c.methodTypeVars(node, fc, decl)
		var params []param
		if node.Kind() == "compact_constructor_declaration" {
			params = c.collectParams(decl.node.ChildByFieldName("parameters"), fc, decl.typeVars)
		} else {
			params = c.collectParams(node.ChildByFieldName("parameters"), fc, typeVars)
		}
		m := &model.ImportedMember{
			Owner:       owner,
			Name:        model.ConstructorName,
			Kind:        model.Constructor,
			ParamTypes:  paramTypes(params),
			ReturnType:  "void",
			Modifiers:   withVarargs(modifiers, node.ChildByFieldName("parameters")),
			Annotations: annotations,
			Location:    &model.Location{FilePath: fc.path, StartLine: parser.Line(node.ChildByFieldName("name"))},
		}
		decl.typ.Members = append(decl.typ.Members, m)
		body := node.ChildByFieldName("body")
		mb := &memberBody{member: m, node: body, params: params, typeVars: typeVars, ctor: true, line: m.Location.StartLine}
		if first := firstStatement(body); first != nil && first.Kind() == "explicit_constructor_invocation" {
			mb.explicitCall = true
			mb.delegating = parser.Text(first.ChildByFieldName("constructor"), fc.source) == "this"
		}
		decl.bodies = append(decl.bodies, mb)
		return true

	case "static_initializer":
		if block := parser.FirstChildOfKind(node, "block"); block != nil {
			decl.staticInits = append(decl.staticInits, block)
		}

	case "block":
		decl.instanceInits = append(decl.instanceInits, node)
	}
	return false
}

// addImplicitMembers 补全编译器生成的成员: 默认构造器、记录组件、枚举方法与 <clinit>
func (c *Collector) addImplicitMembers(node *sitter.Node, fc *fileContext, decl *typeDecl, hasCtor bool) {
	t := decl.typ
	line := t.DeclarationLine()

	if node.Kind() == "record_declaration" {
		for _, p := range c.collectParams(node.ChildByFieldName("parameters"), fc, decl.typeVars) {
			decl.fields[p.name] = p.typ
			t.Members = append(t.Members,
				&model.ImportedMember{Owner: t.Name, Name: p.name, Kind: model.Field, ReturnType: p.typ,
					Modifiers: []string{"private", "final"}, Location: &model.Location{FilePath: fc.path, StartLine: line}},
				&model.ImportedMember{Owner: t.Name, Name: p.name, Kind: model.Method, ReturnType: p.typ,
					Modifiers: []string{"public"}, Location: &model.Location{FilePath: fc.path, StartLine: line}},
			)
		}
	}

	if t.Kind == model.Enum {
		t.Members = append(t.Members,
			&model.ImportedMember{Owner: t.Name, Name: "values", Kind: model.Method, ReturnType: t.Name + "[]",
				Modifiers: []string{"public", "static"}, Location: &model.Location{FilePath: fc.path, StartLine: line}},
			&model.ImportedMember{Owner: t.Name, Name: "valueOf", Kind: model.Method, ParamTypes: []string{"java.lang.String"},
				ReturnType: t.Name, Modifiers: []string{"public", "static"}, Location: &model.Location{FilePath: fc.path, StartLine: line}},
		)
	}

	if !hasCtor && (t.Kind == model.Class || t.Kind == model.Enum) {
		var params []param
		if node.Kind() == "record_declaration" {
			params = c.collectParams(node.ChildByFieldName("parameters"), fc, decl.typeVars)
		}
		m := &model.ImportedMember{
			Owner:      t.Name,
			Name:       model.ConstructorName,
			Kind:       model.Constructor,
			ParamTypes: paramTypes(params),
			ReturnType: "void",
			Modifiers:  defaultCtorModifiers(t),
			Location:   &model.Location{FilePath: fc.path, StartLine: line},
		}
		t.Members = append(t.Members, m)
		decl.bodies = append(decl.bodies, &memberBody{member: m, ctor: true, line: line, typeVars: decl.typeVars})
	}

	if len(decl.staticInits) > 0 {
		m := &model.ImportedMember{
			Owner:      t.Name,
			Name:       model.StaticInitName,
			Kind:       model.Method,
			ReturnType: "void",
			Modifiers:  []string{"static"},
			Location:   &model.Location{FilePath: fc.path, StartLine: parser.Line(decl.staticInits[0])},
		}
		t.Members = append(t.Members, m)
		decl.bodies = append(decl.bodies, &memberBody{member: m, typeVars: decl.typeVars})
	}
}

func defaultCtorModifiers(t *model.ImportedType) []string {
	switch {
	case t.Kind == model.Enum:
		return []string{"private"}
	case model.HasModifier(t.Modifiers, "public"):
		return []string{"public"}
	case model.HasModifier(t.Modifiers, "protected"):
		return []string{"protected"}
	case model.HasModifier(t.Modifiers, "private"):
		return []string{"private"}
	}
	return nil
}

func (c *Collector) collectTypeParameters(node *sitter.Node, fc *fileContext, vars map[string]string) {
	for _, tp := range parser.NamedChildren(node) {
		if tp.Kind() != "type_parameter" {
			continue
		}
		var name string
		erasure := "java.lang.Object"
		for _, child := range parser.NamedChildren(tp) {
			switch child.Kind() {
			case "type_identifier", "identifier":
				name = parser.Text(child, fc.source)
			case "type_bound":
				if bounds := parser.NamedChildren(child); len(bounds) > 0 {
					erasure = c.typeName(bounds[0], fc, vars)
				}
			}
		}
		if name != "" {
			vars[name] = erasure
		}
	}
}

func (c *Collector) methodTypeVars(node *sitter.Node, fc *fileContext, decl *typeDecl) map[string]string {
	tp := node.ChildByFieldName("type_parameters")
	if tp == nil {
		tp = parser.FirstChildOfKind(node, "type_parameters")
	}
	if tp == nil {
		return decl.typeVars
	}
	vars := make(map[string]string, len(decl.typeVars))
	for k, v := range decl.typeVars {
		vars[k] = v
	}
	c.collectTypeParameters(tp, fc, vars)
	return vars
}

func (c *Collector) collectParams(node *sitter.Node, fc *fileContext, typeVars map[string]string) []param {
	var params []param
	for _, p := range parser.NamedChildren(node) {
		switch p.Kind() {
		case "formal_parameter":
			params = append(params, param{
				name: parser.Text(p.ChildByFieldName("name"), fc.source),
				typ:  c.typeName(p.ChildByFieldName("type"), fc, typeVars) + dims(p.ChildByFieldName("dimensions"), fc),
			})
		case "spread_parameter":
			var typ, name string
			for _, child := range parser.NamedChildren(p) {
				switch child.Kind() {
				case "modifiers":
				case "variable_declarator":
					name = parser.Text(child.ChildByFieldName("name"), fc.source)
				default:
					if typ == "" {
						typ = c.typeName(child, fc, typeVars)
					}
				}
			}
			params = append(params, param{name: name, typ: typ + "[]"})
		}
	}
	return params
}

// typeName 把类型节点解析为擦除后的二进制名
func (c *Collector) typeName(node *sitter.Node, fc *fileContext, typeVars map[string]string) string {
	if node == nil {
		return ""
	}
	switch node.Kind() {
	case "integral_type", "floating_point_type", "boolean_type", "void_type":
		return parser.Text(node, fc.source)
	case "type_identifier", "identifier":
		name := parser.Text(node, fc.source)
		if erasure, ok := typeVars[name]; ok {
			return erasure
		}
		return fc.res.resolve(name)
	case "scoped_type_identifier", "scoped_identifier":
		var parts []string
		collectIdentifiers(node, fc.source, &parts)
		return fc.res.resolve(strings.Join(parts, "."))
	case "generic_type":
		for _, child := range parser.NamedChildren(node) {
			if child.Kind() != "type_arguments" {
				return c.typeName(child, fc, typeVars)
			}
		}
	case "array_type":
		return c.typeName(node.ChildByFieldName("element"), fc, typeVars) + dims(node.ChildByFieldName("dimensions"), fc)
	case "annotated_type":
		named := parser.NamedChildren(node)
		if len(named) > 0 {
			return c.typeName(named[len(named)-1], fc, typeVars)
		}
	case "catch_type":
		if named := parser.NamedChildren(node); len(named) > 0 {
			return c.typeName(named[0], fc, typeVars)
		}
	}
	return "java.lang.Object"
}

func collectIdentifiers(n *sitter.Node, source []byte, parts *[]string) {
	if n == nil {
		return
	}
	switch n.Kind() {
	case "type_identifier", "identifier":
		*parts = append(*parts, parser.Text(n, source))
		return
	case "annotation", "marker_annotation", "type_arguments":
		return
	}
	for _, child := range parser.NamedChildren(n) {
		collectIdentifiers(child, source, parts)
	}
}

func dims(node *sitter.Node, fc *fileContext) string {
	if node == nil {
		return ""
	}
	return strings.Repeat("[]", strings.Count(parser.Text(node, fc.source), "["))
}

func paramTypes(params []param) []string {
	if len(params) == 0 {
		return nil
	}
	out := make([]string, len(params))
	for i, p := range params {
		out[i] = p.typ
	}
	return out
}

func withVarargs(modifiers []string, params *sitter.Node) []string {
	if parser.FirstChildOfKind(params, "spread_parameter") != nil {
		return appendMissing(modifiers, "varargs")
	}
	return modifiers
}

func appendMissing(list []string, s string) []string {
	if model.HasModifier(list, s) {
		return list
	}
	return append(list, s)
}

func firstStatement(body *sitter.Node) *sitter.Node {
	for _, child := range parser.NamedChildren(body) {
		if child.Kind() != "line_comment" && child.Kind() != "block_comment" {
			return child
		}
	}
	return nil
}

func (c *Collector) extractModifiersAndAnnotations(n *sitter.Node, fc *fileContext) ([]string, []model.Annotation) {
	var mods []string
	var annos []model.Annotation
	mNode := n.ChildByFieldName("modifiers")
	if mNode == nil {
		mNode = parser.FirstChildOfKind(n, "modifiers")
	}
	if mNode == nil {
		return nil, nil
	}
	for i := uint(0); i < mNode.ChildCount(); i++ {
		child := mNode.Child(i)
		switch child.Kind() {
		case "marker_annotation", "annotation":
			annos = append(annos, c.annotation(child, fc))
		case "line_comment", "block_comment":
		default:
			if txt := parser.Text(child, fc.source); txt != "" {
				mods = append(mods, txt)
			}
		}
	}
	return mods, annos
}

func (c *Collector) annotation(n *sitter.Node, fc *fileContext) model.Annotation {
	var parts []string
	collectIdentifiers(n.ChildByFieldName("name"), fc.source, &parts)
	a := model.Annotation{Name: fc.res.resolve(strings.Join(parts, "."))}
	args := n.ChildByFieldName("arguments")
	for _, arg := range parser.NamedChildren(args) {
		if a.Attributes == nil {
			a.Attributes = make(map[string]string)
		}
		if arg.Kind() == "element_value_pair" {
			a.Attributes[parser.Text(arg.ChildByFieldName("key"), fc.source)] = annotationValue(arg.ChildByFieldName("value"), fc.source)
			continue
		}
		a.Attributes["value"] = annotationValue(arg, fc.source)
	}
	return a
}

func annotationValue(n *sitter.Node, source []byte) string {
	txt := parser.Text(n, source)
	if n != nil && n.Kind() == "string_literal" {
		return strings.Trim(txt, `"`)
	}
	return txt
}
