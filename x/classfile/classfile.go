// Package classfile decodes compiled JVM class files into the code model.
// Only the structures needed for dependency analysis are interpreted: the constant
// pool, type hierarchy, member signatures, annotations and the member references of
// each method body together with their LineNumberTable lines.
package classfile

import (
	"fmt"

	"github.com/CodMac/go-archcheck/decoder"
	"github.com/CodMac/go-archcheck/model"
)

const magic = 0xCAFEBABE

const (
	accPublic       = 0x0001
	accPrivate      = 0x0002
	accProtected    = 0x0004
	accStatic       = 0x0008
	accFinal        = 0x0010
	accSynchronized = 0x0020
	accBridge       = 0x0040 // 方法; 字段上为 volatile
	accVarargs      = 0x0080 // 方法; 字段上为 transient
	accNative       = 0x0100
	accInterface    = 0x0200
	accAbstract     = 0x0400
	accSynthetic    = 0x1000
	accAnnotation   = 0x2000
	accEnum         = 0x4000
)

// Decoder 实现了 decoder.Decoder 接口
type Decoder struct{}

func NewClassFileDecoder() *Decoder {
	return &Decoder{}
}

// Decode 一个类文件恰好产生一个类型
func (d *Decoder) Decode(a *decoder.Artifact) ([]*model.ImportedType, error) {
	t, err := Parse(a.Data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.Name(), err)
	}
	t.Artifact = a.Name()
	return []*model.ImportedType{t}, nil
}

type rawMethod struct {
	member *model.ImportedMember
	access uint16
	code   []byte
	lines  lineTable
}

// Parse 解析类文件字节
func Parse(data []byte) (*model.ImportedType, error) {
	r := &reader{data: data}
	if r.u4() != magic {
		if r.err != nil {
			return nil, r.err
		}
		return nil, fmt.Errorf("%w: bad magic number", ErrMalformed)
	}
	r.u2() // minor_version
	r.u2() // major_version
	cp := readConstantPool(r)
	if r.err != nil {
		return nil, r.err
	}

	access := r.u2()
	thisIdx, superIdx := r.u2(), r.u2()
	if r.err != nil {
		return nil, r.err
	}
	name, err := cp.className(thisIdx)
	if err != nil {
		return nil, err
	}
	t := &model.ImportedType{
		Name:      name,
		Kind:      typeKind(access),
		Modifiers: typeModifiers(access),
	}
	// 接口在类文件中以 java.lang.Object 为父类, 模型中不记录
	if superIdx != 0 && !t.IsInterface() {
		if t.SuperClass, err = cp.className(superIdx); err != nil {
			return nil, err
		}
	}
	for i, n := 0, int(r.u2()); i < n && r.err == nil; i++ {
		iface, err := cp.className(r.u2())
		if err != nil {
			return nil, err
		}
		t.Interfaces = append(t.Interfaces, iface)
	}

	// 字段
	for i, n := 0, int(r.u2()); i < n && r.err == nil; i++ {
		f, err := readField(r, cp, name)
		if err != nil {
			return nil, err
		}
		t.Members = append(t.Members, f)
	}

	// 方法
	var methods []*rawMethod
	for i, n := 0, int(r.u2()); i < n && r.err == nil; i++ {
		m, err := readMethod(r, cp, name)
		if err != nil {
			return nil, err
		}
		methods = append(methods, m)
		t.Members = append(t.Members, m.member)
	}

	// 类属性
	err = readAttributes(r, cp, func(attr string, body *reader) error {
		switch attr {
		case "SourceFile":
			src, err := cp.utf8(body.u2())
			if err != nil {
				return err
			}
			t.SourceFile = src
		case "RuntimeVisibleAnnotations", "RuntimeInvisibleAnnotations":
			annos, err := readAnnotations(body, cp)
			if err != nil {
				return err
			}
			t.Annotations = append(t.Annotations, annos...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if r.off != len(r.data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(r.data)-r.off)
	}

	declLine := 0
	for _, m := range methods {
		if err := buildCallSites(t, m, cp); err != nil {
			return nil, fmt.Errorf("method %s: %w", m.member.Name, err)
		}
		if first := m.lines.firstLine(); first > 0 {
			m.member.Location = &model.Location{FilePath: t.SourceFile, StartLine: first}
			if declLine == 0 || first < declLine {
				declLine = first
			}
		}
	}
	if declLine > 0 {
		t.Location = &model.Location{FilePath: t.SourceFile, StartLine: declLine}
	}
	return t, nil
}

func readField(r *reader, cp constantPool, owner string) (*model.ImportedMember, error) {
	access := r.u2()
	name, err := cp.utf8(r.u2())
	if err != nil {
		return nil, err
	}
	desc, err := cp.utf8(r.u2())
	if err != nil {
		return nil, err
	}
	typ, _, err := parseFieldType(desc, 0)
	if err != nil {
		return nil, err
	}
	f := &model.ImportedMember{
		Owner:      owner,
		Name:       name,
		Kind:       model.Field,
		ReturnType: typ,
		Modifiers:  fieldModifiers(access),
	}
	err = readAttributes(r, cp, func(attr string, body *reader) error {
		if attr == "RuntimeVisibleAnnotations" || attr == "RuntimeInvisibleAnnotations" {
			annos, err := readAnnotations(body, cp)
			if err != nil {
				return err
			}
			f.Annotations = append(f.Annotations, annos...)
		}
		return nil
	})
	return f, err
}

func readMethod(r *reader, cp constantPool, owner string) (*rawMethod, error) {
	access := r.u2()
	name, err := cp.utf8(r.u2())
	if err != nil {
		return nil, err
	}
	desc, err := cp.utf8(r.u2())
	if err != nil {
		return nil, err
	}
	params, ret, err := parseMethodDescriptor(desc)
	if err != nil {
		return nil, err
	}
	kind := model.Method
	if name == model.ConstructorName {
		kind = model.Constructor
	}
	m := &rawMethod{
		access: access,
		member: &model.ImportedMember{
			Owner:      owner,
			Name:       name,
			Kind:       kind,
			ParamTypes: params,
			ReturnType: ret,
			Modifiers:  methodModifiers(access),
		},
	}
	err = readAttributes(r, cp, func(attr string, body *reader) error {
		switch attr {
		case "Code":
			return readCode(body, cp, m)
		case "RuntimeVisibleAnnotations", "RuntimeInvisibleAnnotations":
			annos, err := readAnnotations(body, cp)
			if err != nil {
				return err
			}
			m.member.Annotations = append(m.member.Annotations, annos...)
		}
		return nil
	})
	return m, err
}

func readCode(r *reader, cp constantPool, m *rawMethod) error {
	r.u2() // max_stack
	r.u2() // max_locals
	m.code = r.bytes(int(r.u4()))
	r.bytes(int(r.u2()) * 8) // exception_table
	if r.err != nil {
		return r.err
	}
	err := readAttributes(r, cp, func(attr string, body *reader) error {
		if attr != "LineNumberTable" {
			return nil
		}
		for i, n := 0, int(body.u2()); i < n && body.err == nil; i++ {
			m.lines = append(m.lines, lineEntry{startPC: int(body.u2()), line: int(body.u2())})
		}
		return body.err
	})
	m.lines = m.lines.sorted()
	return err
}

// readAttributes 遍历 attribute_info 列表, 对每个属性以独立 reader 回调
func readAttributes(r *reader, cp constantPool, handle func(name string, body *reader) error) error {
	n := int(r.u2())
	for i := 0; i < n; i++ {
		nameIdx := r.u2()
		length := int(r.u4())
		data := r.bytes(length)
		if r.err != nil {
			return r.err
		}
		name, err := cp.utf8(nameIdx)
		if err != nil {
			return err
		}
		body := &reader{data: data}
		if err := handle(name, body); err != nil {
			return err
		}
		if body.err != nil {
			return body.err
		}
	}
	return r.err
}

// buildCallSites 把方法体中的成员引用转换为 CallSite。
// 桥接方法与合成访问器不产生调用点, 否则同一源码调用会以邻近行号重复出现。
func buildCallSites(t *model.ImportedType, m *rawMethod, cp constantPool) error {
	if m.code == nil || m.access&accBridge != 0 || isSyntheticAccessor(m) {
		return nil
	}
	refs, err := scanMemberRefs(m.code)
	if err != nil {
		return err
	}
	for _, ins := range refs {
		owner, name, desc, err := cp.memberRef(ins.cpIndex)
		if err != nil {
			return err
		}
		cs := &model.CallSite{
			OriginType:   t.Name,
			OriginMember: m.member.Name,
			OriginParams: m.member.ParamTypes,
			TargetType:   owner,
			TargetMember: name,
			Line:         m.lines.lineFor(ins.pc),
			SourceFile:   t.SourceFile,
			Resolved:     true,
		}
		switch ins.opcode {
		case opGetField, opPutField, opGetStatic, opPutStatic:
			cs.Kind = model.Use
		default:
			params, _, err := parseMethodDescriptor(desc)
			if err != nil {
				return err
			}
			cs.Kind = model.Call
			if name == model.ConstructorName {
				cs.Kind = model.Create
			}
			cs.TargetParams = params
			cs.ArgCount = len(params)
		}
		m.member.CallSites = append(m.member.CallSites, cs)
	}
	return nil
}

func isSyntheticAccessor(m *rawMethod) bool {
	return m.access&accSynthetic != 0 && len(m.member.Name) > 7 && m.member.Name[:7] == "access$"
}

func typeKind(access uint16) model.ElementKind {
	switch {
	case access&accAnnotation != 0:
		return model.KAnnotation
	case access&accInterface != 0:
		return model.Interface
	case access&accEnum != 0:
		return model.Enum
	default:
		return model.Class
	}
}

func typeModifiers(access uint16) []string {
	return flagNames(access, []flagName{
		{accPublic, "public"}, {accFinal, "final"}, {accAbstract, "abstract"}, {accSynthetic, "synthetic"},
	})
}

func methodModifiers(access uint16) []string {
	return flagNames(access, []flagName{
		{accPublic, "public"}, {accPrivate, "private"}, {accProtected, "protected"},
		{accStatic, "static"}, {accFinal, "final"}, {accSynchronized, "synchronized"},
		{accBridge, "bridge"}, {accVarargs, "varargs"}, {accNative, "native"},
		{accAbstract, "abstract"}, {accSynthetic, "synthetic"},
	})
}

func fieldModifiers(access uint16) []string {
	return flagNames(access, []flagName{
		{accPublic, "public"}, {accPrivate, "private"}, {accProtected, "protected"},
		{accStatic, "static"}, {accFinal, "final"}, {accBridge, "volatile"},
		{accVarargs, "transient"}, {accSynthetic, "synthetic"}, {accEnum, "enum"},
	})
}

type flagName struct {
	flag uint16
	name string
}

func flagNames(access uint16, names []flagName) []string {
	var out []string
	for _, f := range names {
		if access&f.flag != 0 {
			out = append(out, f.name)
		}
	}
	return out
}
