package classfile

import (
	"fmt"
	"strings"
)

var baseTypes = map[byte]string{
	'B': "byte", 'C': "char", 'D': "double", 'F': "float",
	'I': "int", 'J': "long", 'S': "short", 'Z': "boolean", 'V': "void",
}

// internalToName "java/lang/Object" -> "java.lang.Object"
func internalToName(internal string) string {
	return strings.ReplaceAll(internal, "/", ".")
}

// parseFieldType 解析 desc[pos:] 处的一个字段类型, 返回类型名与下一位置
func parseFieldType(desc string, pos int) (string, int, error) {
	dims := 0
	for pos < len(desc) && desc[pos] == '[' {
		dims++
		pos++
	}
	if pos >= len(desc) {
		return "", pos, fmt.Errorf("%w: truncated descriptor %q", ErrMalformed, desc)
	}
	var name string
	switch c := desc[pos]; c {
	case 'L':
		end := strings.IndexByte(desc[pos:], ';')
		if end < 0 {
			return "", pos, fmt.Errorf("%w: unterminated class type in descriptor %q", ErrMalformed, desc)
		}
		name = internalToName(desc[pos+1 : pos+end])
		pos += end + 1
	default:
		base, ok := baseTypes[c]
		if !ok {
			return "", pos, fmt.Errorf("%w: invalid descriptor %q", ErrMalformed, desc)
		}
		name = base
		pos++
	}
	return name + strings.Repeat("[]", dims), pos, nil
}

// parseMethodDescriptor "(Ljava/lang/Object;I)V" -> ([java.lang.Object int], void)
func parseMethodDescriptor(desc string) ([]string, string, error) {
	if !strings.HasPrefix(desc, "(") {
		return nil, "", fmt.Errorf("%w: method descriptor %q", ErrMalformed, desc)
	}
	var params []string
	pos := 1
	for pos < len(desc) && desc[pos] != ')' {
		name, next, err := parseFieldType(desc, pos)
		if err != nil {
			return nil, "", err
		}
		params = append(params, name)
		pos = next
	}
	if pos >= len(desc) {
		return nil, "", fmt.Errorf("%w: method descriptor %q", ErrMalformed, desc)
	}
	ret, end, err := parseFieldType(desc, pos+1)
	if err != nil {
		return nil, "", err
	}
	if end != len(desc) {
		return nil, "", fmt.Errorf("%w: trailing data in descriptor %q", ErrMalformed, desc)
	}
	return params, ret, nil
}
