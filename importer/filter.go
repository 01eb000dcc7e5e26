package importer

import "strings"

// PackageFilter 决定哪些类型属于分析范围。范围之外的类型仍会被解码,
// 但只保留名称与成员签名 (桩节点), 其调用点被丢弃。
type PackageFilter struct {
	Include []string `yaml:"include"` // 为空表示全部
	Exclude []string `yaml:"exclude"`
}

// InScope 判断类型名是否在分析范围内; Exclude 优先于 Include
func (f PackageFilter) InScope(typeName string) bool {
	if matchesAny(f.Exclude, typeName) {
		return false
	}
	return len(f.Include) == 0 || matchesAny(f.Include, typeName)
}

func matchesAny(prefixes []string, name string) bool {
	for _, p := range prefixes {
		if hasPackagePrefix(name, p) {
			return true
		}
	}
	return false
}

// hasPackagePrefix 按名称段匹配前缀: "com.a" 匹配 "com.a.B" 但不匹配 "com.ab.C"
func hasPackagePrefix(name, prefix string) bool {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || !strings.HasPrefix(name, prefix) {
		return false
	}
	if len(name) == len(prefix) || strings.ContainsAny(prefix[len(prefix)-1:], "./$") {
		return true
	}
	return strings.ContainsAny(name[len(prefix):len(prefix)+1], "./$")
}
