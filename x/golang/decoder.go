package golang

import (
	"fmt"

	"github.com/CodMac/go-archcheck/decoder"
	"github.com/CodMac/go-archcheck/model"
	"github.com/CodMac/go-archcheck/parser"
)

// Decoder 解析 Go 源码。类型以 "导入路径.类型名" 命名, 包级函数挂在以导入路径命名的伪类型上。
// 导入路径取自规范导入注释, 缺省为包名。
type Decoder struct {
	collector *Collector
	extractor *Extractor
}

func NewGoDecoder() *Decoder {
	c := NewGoCollector()
	return &Decoder{collector: c, extractor: NewGoExtractor(c)}
}

func (d *Decoder) Decode(a *decoder.Artifact) ([]*model.ImportedType, error) {
	p, err := parser.NewParser(model.LangGo)
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

	types := make([]*model.ImportedType, 0, len(fc.order))
	for _, name := range fc.order {
		t := fc.types[name]
		t.Partial = true
		t.Artifact = a.Name()
		types = append(types, t)
	}
	return types, nil
}
