package golang

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/CodMac/go-archcheck/model"
	"github.com/CodMac/go-archcheck/parser"
)

// importComment 规范导入注释: package foo // import "example.com/foo"
var importComment = regexp.MustCompile(`^//\s*import\s+"([^"]+)"`)

var builtinFuncs = map[string]bool{
	"append": true, "cap": true, "clear": true, "close": true, "complex": true, "copy": true,
	"delete": true, "imag": true, "len": true, "make": true, "max": true, "min": true,
	"new": true, "panic": true, "print": true, "println": true, "real": true, "recover": true,
}

// fileContext 单个 Go 源文件的收集结果
type fileContext struct {
	path       string
	sourceFile string
	source     []byte
	pkgName    string
	importPath string
	imports    map[string]string // 别名 -> 导入路径
	types      map[string]*model.ImportedType
	order      []string
	fields     map[string]map[string]string // 类型名 -> 字段名 -> 类型
	results    map[string]string            // "类型名.成员" -> 首个返回值类型
	vars       map[string]string            // 包级变量 -> 类型
	bodies     []*funcBody
}

type funcBody struct {
	member   *model.ImportedMember
	node     *sitter.Node
	params   []param
	typeVars map[string]bool
}

type param struct {
	name string
	typ  string
}

type Collector struct{}

func NewGoCollector() *Collector {
	return &Collector{}
}

// Collect 收集包路径、导入、类型与函数签名
func (c *Collector) Collect(root *sitter.Node, path string, source []byte) *fileContext {
	fc := &fileContext{
		path:       path,
		sourceFile: filepath.Base(path),
		source:     source,
		imports:    make(map[string]string),
		types:      make(map[string]*model.ImportedType),
		fields:     make(map[string]map[string]string),
		results:    make(map[string]string),
		vars:       make(map[string]string),
	}

	children := parser.NamedChildren(root)
	for i, child := range children {
		switch child.Kind() {
		case "package_clause":
			if id := parser.FirstChildOfKind(child, "package_identifier"); id != nil {
				fc.pkgName = parser.Text(id, source)
			}
			fc.importPath = fc.pkgName
			if i+1 < len(children) && children[i+1].Kind() == "comment" && parser.Line(children[i+1]) == parser.Line(child) {
				if m := importComment.FindStringSubmatch(parser.Text(children[i+1], source)); m != nil {
					fc.importPath = m[1]
				}
			}
		case "import_declaration":
			c.handleImports(child, fc)
		}
	}

	// 先登记类型声明, 方法接收者与字段类型才能解析
	for _, child := range children {
		if child.Kind() == "type_declaration" {
			for _, spec := range parser.NamedChildren(child) {
				if spec.Kind() == "type_spec" {
					c.collectTypeSpec(spec, fc)
				}
			}
		}
	}
	for _, child := range children {
		switch child.Kind() {
		case "function_declaration", "method_declaration":
			c.collectFunc(child, fc)
		case "var_declaration":
			for _, spec := range parser.NamedChildren(child) {
				if spec.Kind() != "var_spec" {
					continue
				}
				typ := c.typeName(spec.ChildByFieldName("type"), fc, nil)
				for _, name := range parser.NamedChildren(spec) {
					if name.Kind() == "identifier" {
						fc.vars[parser.Text(name, source)] = typ
					}
				}
			}
		}
	}
	return fc
}

func (c *Collector) handleImports(node *sitter.Node, fc *fileContext) {
	var specs []*sitter.Node
	for _, child := range parser.NamedChildren(node) {
		switch child.Kind() {
		case "import_spec":
			specs = append(specs, child)
		case "import_spec_list":
			for _, s := range parser.NamedChildren(child) {
				if s.Kind() == "import_spec" {
					specs = append(specs, s)
				}
			}
		}
	}
	for _, spec := range specs {
		path, err := strconv.Unquote(parser.Text(spec.ChildByFieldName("path"), fc.source))
		if err != nil {
			continue
		}
		alias := path[strings.LastIndexByte(path, '/')+1:]
		if name := spec.ChildByFieldName("name"); name != nil {
			alias = parser.Text(name, fc.source)
		}
		if alias == "_" || alias == "." {
			continue
		}
		fc.imports[alias] = path
	}
}

// typeFor 返回名为 name 的类型; 未在本文件声明的类型 (仅出现方法) 以 Unknown 种类创建
func (fc *fileContext) typeFor(name string) *model.ImportedType {
	if t, ok := fc.types[name]; ok {
		return t
	}
	t := &model.ImportedType{Name: name, Kind: model.Unknown, SourceFile: fc.sourceFile, Partial: true}
	fc.types[name] = t
	fc.order = append(fc.order, name)
	return t
}

// packageType 包级函数所在的伪类型
func (fc *fileContext) packageType() *model.ImportedType {
	t := fc.typeFor(fc.importPath)
	t.Kind = model.Package
	return t
}

func (fc *fileContext) qualify(name string) string {
	return fc.importPath + "." + name
}

func (c *Collector) collectTypeSpec(spec *sitter.Node, fc *fileContext) {
	nameNode := spec.ChildByFieldName("name")
	name := parser.Text(nameNode, fc.source)
	if name == "" {
		return
	}
	t := fc.typeFor(fc.qualify(name))
	t.Location = &model.Location{FilePath: fc.path, StartLine: parser.Line(nameNode)}
	if isExported(name) {
		t.Modifiers = []string{"public"}
	}

	typeNode := spec.ChildByFieldName("type")
	switch typeNode.Kind() {
	case "struct_type":
		t.Kind = model.Struct
		fields := make(map[string]string)
		fc.fields[t.Name] = fields
		list := parser.FirstChildOfKind(typeNode, "field_declaration_list")
		for _, fd := range parser.NamedChildren(list) {
			if fd.Kind() != "field_declaration" {
				continue
			}
			typ := c.typeName(fd.ChildByFieldName("type"), fc, nil)
			var names []*sitter.Node
			for _, child := range parser.NamedChildren(fd) {
				if child.Kind() == "field_identifier" {
					names = append(names, child)
				}
			}
			if len(names) == 0 {
				// 嵌入字段: 提升其方法集
				embedded := strings.TrimPrefix(typ, "*")
				t.Interfaces = append(t.Interfaces, embedded)
				fields[model.SimpleNameOf(embedded)] = typ
				continue
			}
			for _, n := range names {
				fieldName := parser.Text(n, fc.source)
				fields[fieldName] = typ
				t.Members = append(t.Members, &model.ImportedMember{
					Owner:      t.Name,
					Name:       fieldName,
					Kind:       model.Field,
					ReturnType: typ,
					Modifiers:  visibility(fieldName),
					Location:   &model.Location{FilePath: fc.path, StartLine: parser.Line(n)},
				})
			}
		}
	case "interface_type":
		t.Kind = model.Interface
		for _, elem := range parser.NamedChildren(typeNode) {
			switch elem.Kind() {
			case "method_elem", "method_spec":
				mName := elem.ChildByFieldName("name")
				params, _ := c.collectParams(elem.ChildByFieldName("parameters"), fc, nil)
				result := c.resultType(elem.ChildByFieldName("result"), fc, nil)
				fc.results[t.Name+"."+parser.Text(mName, fc.source)] = result
				t.Members = append(t.Members, &model.ImportedMember{
					Owner:      t.Name,
					Name:       parser.Text(mName, fc.source),
					Kind:       model.Method,
					ParamTypes: paramTypes(params),
					ReturnType: result,
					Modifiers:  append(visibility(parser.Text(mName, fc.source)), "abstract"),
					Location:   &model.Location{FilePath: fc.path, StartLine: parser.Line(mName)},
				})
			case "type_elem", "constraint_elem", "interface_type_name":
				for _, tn := range parser.NamedChildren(elem) {
					if name := model.ElementTypeName(c.typeName(tn, fc, nil)); name != "" {
						t.Interfaces = append(t.Interfaces, name)
					}
				}
			}
		}
	default:
		t.Kind = model.Class
	}
}

func (c *Collector) collectFunc(node *sitter.Node, fc *fileContext) {
	nameNode := node.ChildByFieldName("name")
	name := parser.Text(nameNode, fc.source)
	typeVars := c.typeParams(node.ChildByFieldName("type_parameters"), fc)

	owner := fc.packageType()
	var receiver []param
	if recv := node.ChildByFieldName("receiver"); recv != nil {
		receiver, _ = c.collectParams(recv, fc, typeVars)
		if len(receiver) == 0 {
			return
		}
		owner = fc.typeFor(strings.TrimPrefix(receiver[0].typ, "*"))
	}

	params, variadic := c.collectParams(node.ChildByFieldName("parameters"), fc, typeVars)
	result := c.resultType(node.ChildByFieldName("result"), fc, typeVars)
	fc.results[owner.Name+"."+name] = result

	modifiers := visibility(name)
	if variadic {
		modifiers = append(modifiers, "varargs")
	}
	if node.Kind() == "function_declaration" {
		modifiers = append(modifiers, "static")
	}
	m := &model.ImportedMember{
		Owner:      owner.Name,
		Name:       name,
		Kind:       model.Method,
		ParamTypes: paramTypes(params),
		ReturnType: result,
		Modifiers:  modifiers,
		Location:   &model.Location{FilePath: fc.path, StartLine: parser.Line(nameNode)},
	}
	owner.Members = append(owner.Members, m)
	if body := node.ChildByFieldName("body"); body != nil {
		fc.bodies = append(fc.bodies, &funcBody{member: m, node: body, params: append(receiver, params...), typeVars: typeVars})
	}
}

func (c *Collector) typeParams(node *sitter.Node, fc *fileContext) map[string]bool {
	vars := make(map[string]bool)
	for _, decl := range parser.NamedChildren(node) {
		for _, child := range parser.NamedChildren(decl) {
			if child.Kind() == "identifier" {
				vars[parser.Text(child, fc.source)] = true
			}
		}
	}
	return vars
}

// collectParams 展开参数列表, 返回是否为可变参数
func (c *Collector) collectParams(list *sitter.Node, fc *fileContext, typeVars map[string]bool) ([]param, bool) {
	var params []param
	variadic := false
	for _, decl := range parser.NamedChildren(list) {
		typ := c.typeName(decl.ChildByFieldName("type"), fc, typeVars)
		if decl.Kind() == "variadic_parameter_declaration" {
			typ = "[]" + typ
			variadic = true
		} else if decl.Kind() != "parameter_declaration" {
			continue
		}
		var names []string
		for _, child := range parser.NamedChildren(decl) {
			if child.Kind() == "identifier" {
				names = append(names, parser.Text(child, fc.source))
			}
		}
		if len(names) == 0 {
			names = []string{""}
		}
		for _, n := range names {
			params = append(params, param{name: n, typ: typ})
		}
	}
	return params, variadic
}

func (c *Collector) resultType(node *sitter.Node, fc *fileContext, typeVars map[string]bool) string {
	if node == nil {
		return ""
	}
	if node.Kind() == "parameter_list" {
		params, _ := c.collectParams(node, fc, typeVars)
		if len(params) == 0 {
			return ""
		}
		return params[0].typ
	}
	return c.typeName(node, fc, typeVars)
}

// typeName 把类型节点渲染为限定名: "*example.com/x.T", "[]string", "map[string]int"
func (c *Collector) typeName(node *sitter.Node, fc *fileContext, typeVars map[string]bool) string {
	if node == nil {
		return ""
	}
	switch node.Kind() {
	case "type_identifier":
		name := parser.Text(node, fc.source)
		if typeVars[name] || name == "any" {
			return "any"
		}
		if model.IsPrimitive(name) {
			return name
		}
		return fc.qualify(name)
	case "qualified_type":
		pkg := parser.Text(node.ChildByFieldName("package"), fc.source)
		name := parser.Text(node.ChildByFieldName("name"), fc.source)
		if path, ok := fc.imports[pkg]; ok {
			return path + "." + name
		}
		return pkg + "." + name
	case "pointer_type":
		if named := parser.NamedChildren(node); len(named) > 0 {
			return "*" + c.typeName(named[0], fc, typeVars)
		}
	case "slice_type", "array_type":
		return "[]" + c.typeName(node.ChildByFieldName("element"), fc, typeVars)
	case "generic_type":
		return c.typeName(node.ChildByFieldName("type"), fc, typeVars)
	case "parenthesized_type":
		if named := parser.NamedChildren(node); len(named) > 0 {
			return c.typeName(named[0], fc, typeVars)
		}
	case "interface_type":
		if len(parser.NamedChildren(node)) == 0 {
			return "any"
		}
	}
	return strings.Join(strings.Fields(parser.Text(node, fc.source)), " ")
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

func isExported(name string) bool {
	return name != "" && name[0] >= 'A' && name[0] <= 'Z'
}

func visibility(name string) []string {
	if isExported(name) {
		return []string{"public"}
	}
	return nil
}
