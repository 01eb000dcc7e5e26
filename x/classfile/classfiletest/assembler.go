// Package classfiletest 提供一个最小的类文件汇编器, 供测试构造字节码制品。
package classfiletest

import (
	"bytes"
	"encoding/binary"
	"sort"
)

const (
	AccPublic     = 0x0001
	AccPrivate    = 0x0002
	AccStatic     = 0x0008
	AccFinal      = 0x0010
	AccSuper      = 0x0020
	AccBridge     = 0x0040
	AccInterface  = 0x0200
	AccAbstract   = 0x0400
	AccSynthetic  = 0x1000
	AccAnnotation = 0x2000
)

// Class 描述一个待汇编的类, 名称均为内部形式 "a/b/C"
type Class struct {
	Access      uint16
	Name        string
	Super       string
	Interfaces  []string
	SourceFile  string
	Annotations []Annotation
	Fields      []Field
	Methods     []Method
}

// Annotation 只支持字符串元素值
type Annotation struct {
	Desc   string
	Values map[string]string
}

type Field struct {
	Access      uint16
	Name        string
	Desc        string
	Annotations []Annotation
}

// Method 的 Code 为 nil 时不生成 Code 属性 (抽象方法)
type Method struct {
	Access      uint16
	Name        string
	Desc        string
	Annotations []Annotation
	Code        func(p *Pool) []byte
	Lines       [][2]int // {start_pc, line}
}

// Pool 是去重的常量池构建器
type Pool struct {
	buf   bytes.Buffer
	next  uint16
	index map[string]uint16
}

func newPool() *Pool {
	return &Pool{next: 1, index: make(map[string]uint16)}
}

func (p *Pool) add(key string, write func(b *bytes.Buffer)) uint16 {
	if idx, ok := p.index[key]; ok {
		return idx
	}
	write(&p.buf)
	idx := p.next
	p.next++
	p.index[key] = idx
	return idx
}

func (p *Pool) Utf8(s string) uint16 {
	return p.add("U"+s, func(b *bytes.Buffer) {
		b.WriteByte(1)
		b.Write(U2(uint16(len(s))))
		b.WriteString(s)
	})
}

func (p *Pool) Class(internal string) uint16 {
	n := p.Utf8(internal)
	return p.add("C"+internal, func(b *bytes.Buffer) {
		b.WriteByte(7)
		b.Write(U2(n))
	})
}

func (p *Pool) Field(owner, name, desc string) uint16 {
	return p.ref(9, owner, name, desc)
}

func (p *Pool) Method(owner, name, desc string) uint16 {
	return p.ref(10, owner, name, desc)
}

func (p *Pool) InterfaceMethod(owner, name, desc string) uint16 {
	return p.ref(11, owner, name, desc)
}

func (p *Pool) ref(tag byte, owner, name, desc string) uint16 {
	c := p.Class(owner)
	n, d := p.Utf8(name), p.Utf8(desc)
	nat := p.add("N"+name+":"+desc, func(b *bytes.Buffer) {
		b.WriteByte(12)
		b.Write(U2(n))
		b.Write(U2(d))
	})
	return p.add(string(rune('0'+tag))+owner+"."+name+":"+desc, func(b *bytes.Buffer) {
		b.WriteByte(tag)
		b.Write(U2(c))
		b.Write(U2(nat))
	})
}

// U2 大端编码
func U2(v uint16) []byte {
	return binary.BigEndian.AppendUint16(nil, v)
}

// U4 大端编码
func U4(v uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, v)
}

// Op 生成带 2 字节常量池索引的指令
func Op(opcode byte, idx uint16) []byte {
	return append([]byte{opcode}, U2(idx)...)
}

// Concat 拼接指令片段
func Concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Bytes 汇编出完整的类文件
func (c *Class) Bytes() []byte {
	p := newPool()
	var body bytes.Buffer

	body.Write(U2(c.Access))
	body.Write(U2(p.Class(c.Name)))
	if c.Super != "" {
		body.Write(U2(p.Class(c.Super)))
	} else {
		body.Write(U2(0))
	}
	body.Write(U2(uint16(len(c.Interfaces))))
	for _, i := range c.Interfaces {
		body.Write(U2(p.Class(i)))
	}

	body.Write(U2(uint16(len(c.Fields))))
	for _, f := range c.Fields {
		body.Write(U2(f.Access))
		body.Write(U2(p.Utf8(f.Name)))
		body.Write(U2(p.Utf8(f.Desc)))
		var attrs [][]byte
		if len(f.Annotations) > 0 {
			attrs = append(attrs, annotationsAttr(p, f.Annotations))
		}
		writeAttrs(&body, attrs)
	}

	body.Write(U2(uint16(len(c.Methods))))
	for _, m := range c.Methods {
		body.Write(U2(m.Access))
		body.Write(U2(p.Utf8(m.Name)))
		body.Write(U2(p.Utf8(m.Desc)))
		var attrs [][]byte
		if m.Code != nil {
			attrs = append(attrs, codeAttr(p, m))
		}
		if len(m.Annotations) > 0 {
			attrs = append(attrs, annotationsAttr(p, m.Annotations))
		}
		writeAttrs(&body, attrs)
	}

	var attrs [][]byte
	if c.SourceFile != "" {
		attrs = append(attrs, attribute(p, "SourceFile", U2(p.Utf8(c.SourceFile))))
	}
	if len(c.Annotations) > 0 {
		attrs = append(attrs, annotationsAttr(p, c.Annotations))
	}
	writeAttrs(&body, attrs)

	var out bytes.Buffer
	out.Write(U4(0xCAFEBABE))
	out.Write(U2(0))
	out.Write(U2(52))
	out.Write(U2(p.next))
	out.Write(p.buf.Bytes())
	out.Write(body.Bytes())
	return out.Bytes()
}

func writeAttrs(b *bytes.Buffer, attrs [][]byte) {
	b.Write(U2(uint16(len(attrs))))
	for _, a := range attrs {
		b.Write(a)
	}
}

func attribute(p *Pool, name string, data []byte) []byte {
	return Concat(U2(p.Utf8(name)), U4(uint32(len(data))), data)
}

func codeAttr(p *Pool, m Method) []byte {
	code := m.Code(p)
	var lnt []byte
	lnt = append(lnt, U2(uint16(len(m.Lines)))...)
	for _, l := range m.Lines {
		lnt = append(lnt, U2(uint16(l[0]))...)
		lnt = append(lnt, U2(uint16(l[1]))...)
	}
	data := Concat(
		U2(4), U2(4), // max_stack, max_locals
		U4(uint32(len(code))), code,
		U2(0), // exception_table_length
		U2(1), attribute(p, "LineNumberTable", lnt),
	)
	return attribute(p, "Code", data)
}

func annotationsAttr(p *Pool, annos []Annotation) []byte {
	data := U2(uint16(len(annos)))
	for _, a := range annos {
		data = append(data, U2(p.Utf8(a.Desc))...)
		keys := make([]string, 0, len(a.Values))
		for k := range a.Values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		data = append(data, U2(uint16(len(keys)))...)
		for _, k := range keys {
			data = append(data, U2(p.Utf8(k))...)
			data = append(data, 's')
			data = append(data, U2(p.Utf8(a.Values[k]))...)
		}
	}
	return attribute(p, "RuntimeVisibleAnnotations", data)
}
