package model

// ImportedType 是导入后的类型节点。导入完成后不可变。
// 对其他类型的引用 (父类、接口、调用目标) 一律以限定名存储，按需查表解析，
// 因此循环引用不会产生所有权环。
type ImportedType struct {
	Name        string            `json:"Name"` // 全限定名; JVM 嵌套类型使用二进制名 "pkg.Outer$Inner"
	Kind        ElementKind       `json:"Kind"`
	SuperClass  string            `json:"SuperClass,omitempty"`
	Interfaces  []string          `json:"Interfaces,omitempty"`
	Modifiers   []string          `json:"Modifiers,omitempty"`
	Annotations []Annotation      `json:"Annotations,omitempty"`
	Members     []*ImportedMember `json:"Members,omitempty"`
	SourceFile  string            `json:"SourceFile,omitempty"`
	Location    *Location         `json:"Location,omitempty"`

	// Stub 为 true 表示范围之外或仅被引用的类型: 名称与成员签名已知，成员体未分析。
	Stub bool `json:"Stub,omitempty"`

	// Partial 为 true 表示类型的成员分布在多个制品中 (Go 包的多个文件), 导入时合并而非覆盖
	Partial bool `json:"Partial,omitempty"`

	// 出处元数据, 不参与结构比较
	Artifact string `json:"Artifact,omitempty"`
	Digest   uint64 `json:"Digest,omitempty"`
}

// ImportedMember 描述方法、构造器或字段
type ImportedMember struct {
	Owner       string       `json:"Owner"` // 所属类型名 (非拥有的反向引用)
	Name        string       `json:"Name"`
	Kind        ElementKind  `json:"Kind"`
	ParamTypes  []string     `json:"ParamTypes,omitempty"`
	ReturnType  string       `json:"ReturnType,omitempty"`
	Modifiers   []string     `json:"Modifiers,omitempty"`
	Annotations []Annotation `json:"Annotations,omitempty"`
	CallSites   []*CallSite  `json:"CallSites,omitempty"`
	Location    *Location    `json:"Location,omitempty"`

	// Pending 是接收者类型待定的调用点, 图构建时解析后并入 CallSites 或转为告警
	Pending []*CallSite `json:"-"`
}

// Package 返回类型所在的包
func (t *ImportedType) Package() string {
	if t.Kind == Package {
		return t.Name
	}
	return PackageOf(t.Name)
}

// SimpleName 返回类型短名称
func (t *ImportedType) SimpleName() string {
	return SimpleNameOf(t.Name)
}

// IsInterface reports whether the type is an interface (annotation types included).
func (t *ImportedType) IsInterface() bool {
	return t.Kind == Interface || t.Kind == KAnnotation
}

// HasAnnotation 判断类型是否被 name 注解 (全限定名或短名称)
func (t *ImportedType) HasAnnotation(name string) bool {
	return hasAnnotation(t.Annotations, name)
}

// DeclarationLine 返回声明所在行, 未知时为 0
func (t *ImportedType) DeclarationLine() int {
	if t.Location == nil {
		return 0
	}
	return t.Location.StartLine
}

// Member 按名称与形参查找成员; params 为 nil 时只按名称匹配第一个。
func (t *ImportedType) Member(name string, params []string) *ImportedMember {
	for _, m := range t.Members {
		if m.Name != name {
			continue
		}
		if params == nil || equalStrings(m.ParamTypes, params) {
			return m
		}
	}
	return nil
}

// MethodsNamed 返回同名方法 (含重载)，按声明顺序
func (t *ImportedType) MethodsNamed(name string) []*ImportedMember {
	var out []*ImportedMember
	for _, m := range t.Members {
		if m.Name == name && m.Kind != Field {
			out = append(out, m)
		}
	}
	return out
}

// HasAnnotation 判断成员是否被 name 注解
func (m *ImportedMember) HasAnnotation(name string) bool {
	return hasAnnotation(m.Annotations, name)
}

// IsVarargs reports whether the last parameter is a variadic slot.
func (m *ImportedMember) IsVarargs() bool {
	return HasModifier(m.Modifiers, "varargs")
}

func hasAnnotation(annos []Annotation, name string) bool {
	for _, a := range annos {
		if a.Name == name || SimpleNameOf(a.Name) == name {
			return true
		}
	}
	return false
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
