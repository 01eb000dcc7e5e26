package java

import (
	"strings"
	"unicode"
)

// javaLang 隐式导入的 java.lang 类型
var javaLang = map[string]bool{
	"Object": true, "String": true, "Class": true, "Enum": true, "Record": true, "System": true,
	"Math": true, "StrictMath": true, "Thread": true, "Runnable": true, "Iterable": true,
	"Comparable": true, "CharSequence": true, "AutoCloseable": true, "Cloneable": true,
	"StringBuilder": true, "StringBuffer": true, "Number": true, "Integer": true, "Long": true,
	"Short": true, "Byte": true, "Double": true, "Float": true, "Boolean": true, "Character": true,
	"Void": true, "Throwable": true, "Exception": true, "Error": true, "RuntimeException": true,
	"IllegalArgumentException": true, "IllegalStateException": true, "NullPointerException": true,
	"UnsupportedOperationException": true, "IndexOutOfBoundsException": true,
	"ClassCastException": true, "ArithmeticException": true, "InterruptedException": true,
	"CloneNotSupportedException": true, "ReflectiveOperationException": true,
	"Override": true, "Deprecated": true, "SuppressWarnings": true, "FunctionalInterface": true,
	"SafeVarargs": true, "ThreadLocal": true, "Process": true, "Runtime": true,
}

// typeResolver 把源码中的类型名解析为二进制全限定名。
// 顺序: 文件内声明 -> 单类型导入 -> java.lang -> 按需导入 (取第一个) -> 同包。
type typeResolver struct {
	pkg             string
	declared        map[string]string // 短名或 "Outer.Inner" -> 二进制名
	imports         map[string]string // 短名 -> 二进制名
	wildcards       []string
	staticImports   map[string]string // 静态成员名 -> 所属类型
	staticWildcards []string
}

func newTypeResolver() *typeResolver {
	return &typeResolver{
		declared:      make(map[string]string),
		imports:       make(map[string]string),
		staticImports: make(map[string]string),
	}
}

// known 判断短名是否可确定为一个类型
func (r *typeResolver) known(name string) bool {
	if _, ok := r.declared[name]; ok {
		return true
	}
	if _, ok := r.imports[name]; ok {
		return true
	}
	return javaLang[name]
}

// resolve 解析类型名 (不含泛型参数与数组维度)
func (r *typeResolver) resolve(name string) string {
	if name == "" {
		return ""
	}
	if b, ok := r.declared[name]; ok {
		return b
	}
	if i := strings.IndexByte(name, '.'); i >= 0 {
		first := name[:i]
		if r.known(first) {
			return r.resolve(first) + "$" + strings.ReplaceAll(name[i+1:], ".", "$")
		}
		return qualifiedToBinary(name)
	}
	if b, ok := r.imports[name]; ok {
		return b
	}
	if javaLang[name] {
		return "java.lang." + name
	}
	if len(r.wildcards) > 0 {
		return r.wildcards[0] + "." + name
	}
	if r.pkg == "" {
		return name
	}
	return r.pkg + "." + name
}

// qualifiedToBinary "a.b.Outer.Inner" -> "a.b.Outer$Inner", 以首个大写开头的段作为顶层类型
func qualifiedToBinary(name string) string {
	segs := strings.Split(name, ".")
	for i, s := range segs {
		if isTypeLike(s) {
			return strings.Join(segs[:i+1], ".") + joinNested(segs[i+1:])
		}
	}
	return name
}

func joinNested(segs []string) string {
	if len(segs) == 0 {
		return ""
	}
	return "$" + strings.Join(segs, "$")
}

func isTypeLike(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}
