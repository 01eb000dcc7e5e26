package model

import "strings"

// --- 代码元素类型 (Code Element Kinds) ---

// ElementKind 是表示代码实体类型的字符串常量
type ElementKind string

const (
	// 面向对象/复合类型
	Class       ElementKind = "CLASS"      // 对应类 (Java)
	Interface   ElementKind = "INTERFACE"  // 对应接口 (Java, Go)
	Struct      ElementKind = "STRUCT"     // 对应结构体 (Go)
	Enum        ElementKind = "ENUM"       // 对应枚举 (Java)
	KAnnotation ElementKind = "ANNOTATION" // 对应注解类型 (Java)
	Package     ElementKind = "PACKAGE"    // Go 包级函数的伪类型

	// 成员
	Method      ElementKind = "METHOD"
	Constructor ElementKind = "CONSTRUCTOR"
	Field       ElementKind = "FIELD"

	// 未知类型 (仅被引用的桩节点)
	Unknown ElementKind = "UNKNOWN"
)

const (
	// ConstructorName 构造器在字节码中的名称
	ConstructorName = "<init>"
	// StaticInitName 静态初始化块在字节码中的名称
	StaticInitName = "<clinit>"
)

// Location 描述了代码元素或依赖关系在源码中的位置
type Location struct {
	FilePath    string `json:"FilePath"`
	StartLine   int    `json:"StartLine"`
	EndLine     int    `json:"EndLine,omitempty"`
	StartColumn int    `json:"StartColumn,omitempty"`
	EndColumn   int    `json:"EndColumn,omitempty"`
}

// Annotation 描述一个注解: 仅名称 + 属性 (key -> 渲染后的值)
type Annotation struct {
	Name       string            `json:"Name"`
	Attributes map[string]string `json:"Attributes,omitempty"`
}

var primitives = map[string]bool{
	"boolean": true, "byte": true, "char": true, "short": true, "int": true,
	"long": true, "float": true, "double": true, "void": true,
	// Go 预声明类型
	"bool": true, "string": true, "error": true, "any": true, "rune": true,
	"int8": true, "int16": true, "int32": true, "int64": true,
	"uint": true, "uint8": true, "uint16": true, "uint32": true, "uint64": true, "uintptr": true,
	"float32": true, "float64": true, "complex64": true, "complex128": true,
}

// IsPrimitive 判断类型名是否为基本类型 (不会成为图中的节点)
func IsPrimitive(name string) bool {
	return primitives[name]
}

// ElementTypeName 去掉数组/切片/指针修饰，返回可作为图节点的类型名。
// 基本类型、map、func 等复合类型返回空串。
func ElementTypeName(name string) string {
	n := strings.TrimSpace(name)
	for {
		switch {
		case strings.HasSuffix(n, "[]"):
			n = strings.TrimSuffix(n, "[]")
		case strings.HasPrefix(n, "[]"):
			n = strings.TrimPrefix(n, "[]")
		case strings.HasPrefix(n, "*"):
			n = strings.TrimPrefix(n, "*")
		default:
			if n == "" || IsPrimitive(n) || strings.ContainsAny(n, "[]{}() ,") {
				return ""
			}
			return n
		}
	}
}

// PackageOf 返回限定名中的包部分 ("a.b.C$D" -> "a.b")
func PackageOf(qualifiedName string) string {
	name := qualifiedName
	if i := strings.LastIndex(name, "/"); i >= 0 {
		// Go: "example.com/x/pkg.Type"
		if j := strings.LastIndex(name[i:], "."); j >= 0 {
			return name[:i+j]
		}
		return name
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[:i]
	}
	return ""
}

// SimpleNameOf 返回短名称 ("a.b.Outer$Inner" -> "Inner")
func SimpleNameOf(qualifiedName string) string {
	name := qualifiedName
	if pkg := PackageOf(name); pkg != "" && pkg != name {
		name = name[len(pkg)+1:]
	}
	if i := strings.LastIndex(name, "$"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// HasModifier 判断修饰符列表中是否包含 mod
func HasModifier(modifiers []string, mod string) bool {
	for _, m := range modifiers {
		if m == mod {
			return true
		}
	}
	return false
}
