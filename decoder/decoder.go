package decoder

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/CodMac/go-archcheck/model"
)

// Artifact 是一个待解码的制品: 文件或归档中的条目
type Artifact struct {
	Path  string // 文件路径 (归档时为归档路径)
	Entry string // 归档内条目名, 普通文件为空
	Kind  model.ArtifactKind
	Data  []byte
}

// Name 返回制品的唯一标识, 归档条目形如 "lib.jar!a/B.class"
func (a *Artifact) Name() string {
	if a.Entry == "" {
		return a.Path
	}
	return a.Path + "!" + a.Entry
}

// Decoder 把制品字节解码为未解析的类型描述。
// 实现必须是纯函数: 不访问文件系统、不读取其他制品，并且可被并发调用。
type Decoder interface {
	Decode(a *Artifact) ([]*model.ImportedType, error)
}

// DecoderFunc 适配普通函数
type DecoderFunc func(a *Artifact) ([]*model.ImportedType, error)

func (f DecoderFunc) Decode(a *Artifact) ([]*model.ImportedType, error) { return f(a) }

var (
	mu         sync.RWMutex
	decoderMap = make(map[model.ArtifactKind]Decoder)
)

// RegisterDecoder 注册一种制品格式与其对应的 Decoder
func RegisterDecoder(kind model.ArtifactKind, d Decoder) {
	mu.Lock()
	defer mu.Unlock()
	decoderMap[kind] = d
}

// GetDecoder 根据制品格式获取对应的 Decoder 实例。
func GetDecoder(kind model.ArtifactKind) (Decoder, error) {
	mu.RLock()
	defer mu.RUnlock()
	d, ok := decoderMap[kind]
	if !ok {
		return nil, fmt.Errorf("no decoder registered for artifact kind: %s", kind)
	}
	return d, nil
}

// KindOf 根据文件名判断制品格式, 不支持的文件返回空串
func KindOf(path string) model.ArtifactKind {
	name := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".class":
		return model.KindClass
	case ".java":
		return model.KindJava
	case ".go":
		if strings.HasSuffix(name, "_test.go") {
			return ""
		}
		return model.KindGo
	case ".jar", ".zip":
		return model.KindJar
	default:
		return ""
	}
}
