package classfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrMalformed 类文件结构不合法
var ErrMalformed = errors.New("malformed class file")

// reader 是大端字节读取器, 首个越界错误会被记住, 之后的读取返回零值
type reader struct {
	data []byte
	off  int
	err  error
}

func (r *reader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s (offset %d)", ErrMalformed, fmt.Sprintf(format, args...), r.off)
	}
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.off+n > len(r.data) {
		r.fail("unexpected end of data, need %d bytes", n)
		return false
	}
	return true
}

func (r *reader) u1() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

func (r *reader) u2() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

func (r *reader) u4() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

func (r *reader) bytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	v := r.data[r.off : r.off+n]
	r.off += n
	return v
}

// --- 常量池 ---

const (
	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

type cpEntry struct {
	tag  uint8
	a, b uint16
	str  string
	num  uint64
}

type constantPool []cpEntry

func readConstantPool(r *reader) constantPool {
	count := int(r.u2())
	cp := make(constantPool, count)
	for i := 1; i < count && r.err == nil; i++ {
		e := cpEntry{tag: r.u1()}
		switch e.tag {
		case tagUtf8:
			n := int(r.u2())
			e.str = string(r.bytes(n))
		case tagInteger, tagFloat:
			e.num = uint64(r.u4())
		case tagLong, tagDouble:
			hi, lo := r.u4(), r.u4()
			e.num = uint64(hi)<<32 | uint64(lo)
		case tagClass, tagString, tagMethodType, tagModule, tagPackage:
			e.a = r.u2()
		case tagFieldref, tagMethodref, tagInterfaceMethodref, tagNameAndType, tagDynamic, tagInvokeDynamic:
			e.a, e.b = r.u2(), r.u2()
		case tagMethodHandle:
			e.a = uint16(r.u1())
			e.b = r.u2()
		default:
			r.fail("unknown constant pool tag %d at index %d", e.tag, i)
		}
		cp[i] = e
		if e.tag == tagLong || e.tag == tagDouble {
			// 8 字节常量占用两个槽位
			i++
		}
	}
	return cp
}

func (cp constantPool) entry(idx uint16, tags ...uint8) (cpEntry, error) {
	if idx == 0 || int(idx) >= len(cp) {
		return cpEntry{}, fmt.Errorf("%w: constant pool index %d out of range", ErrMalformed, idx)
	}
	e := cp[idx]
	for _, t := range tags {
		if e.tag == t {
			return e, nil
		}
	}
	return cpEntry{}, fmt.Errorf("%w: constant pool index %d has tag %d, want %v", ErrMalformed, idx, e.tag, tags)
}

func (cp constantPool) utf8(idx uint16) (string, error) {
	e, err := cp.entry(idx, tagUtf8)
	if err != nil {
		return "", err
	}
	return e.str, nil
}

// className 返回 Class 常量的点分名称; 数组类型以描述符形式存储, 转换为 "T[]"
func (cp constantPool) className(idx uint16) (string, error) {
	e, err := cp.entry(idx, tagClass)
	if err != nil {
		return "", err
	}
	raw, err := cp.utf8(e.a)
	if err != nil {
		return "", err
	}
	if len(raw) > 0 && raw[0] == '[' {
		name, _, err := parseFieldType(raw, 0)
		return name, err
	}
	return internalToName(raw), nil
}

// memberRef 解析 Fieldref/Methodref/InterfaceMethodref
func (cp constantPool) memberRef(idx uint16) (owner, name, descriptor string, err error) {
	e, err := cp.entry(idx, tagFieldref, tagMethodref, tagInterfaceMethodref)
	if err != nil {
		return "", "", "", err
	}
	if owner, err = cp.className(e.a); err != nil {
		return "", "", "", err
	}
	nat, err := cp.entry(e.b, tagNameAndType)
	if err != nil {
		return "", "", "", err
	}
	if name, err = cp.utf8(nat.a); err != nil {
		return "", "", "", err
	}
	if descriptor, err = cp.utf8(nat.b); err != nil {
		return "", "", "", err
	}
	return owner, name, descriptor, nil
}

// constant 把常量渲染为字符串 (注解属性值使用)
func (cp constantPool) constant(idx uint16, tag byte) (string, error) {
	e, err := cp.entry(idx, tagUtf8, tagInteger, tagFloat, tagLong, tagDouble, tagString)
	if err != nil {
		return "", err
	}
	switch e.tag {
	case tagUtf8:
		return e.str, nil
	case tagString:
		return cp.utf8(e.a)
	case tagInteger:
		v := int32(uint32(e.num))
		switch tag {
		case 'Z':
			return strconv.FormatBool(v != 0), nil
		case 'C':
			return string(rune(v)), nil
		}
		return strconv.FormatInt(int64(v), 10), nil
	case tagFloat:
		return strconv.FormatFloat(float64(math.Float32frombits(uint32(e.num))), 'g', -1, 32), nil
	case tagLong:
		return strconv.FormatInt(int64(e.num), 10), nil
	default:
		return strconv.FormatFloat(math.Float64frombits(e.num), 'g', -1, 64), nil
	}
}
