package java

import (
	"fmt"

	"github.com/CodMac/go-archcheck/decoder"
	"github.com/CodMac/go-archcheck/model"
	"github.com/CodMac/go-archcheck/parser"
)

// Decoder 实现了 decoder.Decoder 接口: 收集定义 -> 提取调用点
type Decoder struct {
	collector *Collector
	extractor *Extractor
}

func NewJavaDecoder() *Decoder {
	c := NewJavaCollector()
	return &Decoder{collector: c, extractor: NewJavaExtractor(c)}
}

func (d *Decoder) Decode(a *decoder.Artifact) ([]*model.ImportedType, error) {
	// Tree-sitter 解析器非并发安全, 每次解码独立创建
	p, err := parser.NewParser(model.LangJava)
	if err != nil {
		return nil, err
	}
	defer p.Close()

	tree, err := p.Parse(a.Data, true)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.Name(), err)
	}
	defer tree.Close()

	fc := d.collector.Collect(tree.RootNode(), a.Name(), a.Data)
	d.extractor.Extract(fc)

	types := make([]*model.ImportedType, 0, len(fc.types))
	for _, decl := range fc.types {
		decl.typ.Artifact = a.Name()
		types = append(types, decl.typ)
	}
	return types, nil
}
