package classfile

import (
	"fmt"
	"strings"

	"github.com/CodMac/go-archcheck/model"
)

// readAnnotations 解析 Runtime(In)VisibleAnnotations 属性体
func readAnnotations(r *reader, cp constantPool) ([]model.Annotation, error) {
	n := int(r.u2())
	out := make([]model.Annotation, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		a, err := readAnnotation(r, cp)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, r.err
}

func readAnnotation(r *reader, cp constantPool) (model.Annotation, error) {
	typeDesc, err := cp.utf8(r.u2())
	if err != nil {
		return model.Annotation{}, err
	}
	name, _, err := parseFieldType(typeDesc, 0)
	if err != nil {
		return model.Annotation{}, err
	}
	a := model.Annotation{Name: name}
	pairs := int(r.u2())
	for i := 0; i < pairs && r.err == nil; i++ {
		key, err := cp.utf8(r.u2())
		if err != nil {
			return model.Annotation{}, err
		}
		val, err := readElementValue(r, cp)
		if err != nil {
			return model.Annotation{}, err
		}
		if a.Attributes == nil {
			a.Attributes = make(map[string]string, pairs)
		}
		a.Attributes[key] = val
	}
	return a, r.err
}

// readElementValue 把 element_value 渲染为字符串
func readElementValue(r *reader, cp constantPool) (string, error) {
	tag := r.u1()
	switch tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 's':
		return cp.constant(r.u2(), tag)
	case 'e':
		typeDesc, err := cp.utf8(r.u2())
		if err != nil {
			return "", err
		}
		constName, err := cp.utf8(r.u2())
		if err != nil {
			return "", err
		}
		typ, _, err := parseFieldType(typeDesc, 0)
		if err != nil {
			return "", err
		}
		return typ + "." + constName, nil
	case 'c':
		desc, err := cp.utf8(r.u2())
		if err != nil {
			return "", err
		}
		typ, _, err := parseFieldType(desc, 0)
		if err != nil {
			return "", err
		}
		return typ + ".class", nil
	case '@':
		a, err := readAnnotation(r, cp)
		if err != nil {
			return "", err
		}
		return "@" + a.Name, nil
	case '[':
		n := int(r.u2())
		vals := make([]string, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			v, err := readElementValue(r, cp)
			if err != nil {
				return "", err
			}
			vals = append(vals, v)
		}
		return "{" + strings.Join(vals, ", ") + "}", r.err
	default:
		if r.err != nil {
			return "", r.err
		}
		return "", fmt.Errorf("%w: unknown element_value tag %q", ErrMalformed, tag)
	}
}
