package golang

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"

	"github.com/CodMac/go-archcheck/decoder"
	"github.com/CodMac/go-archcheck/model"
	"github.com/CodMac/go-archcheck/parser"
)

func init() {
	// 注册 Tree-sitter Go 语言对象
	parser.RegisterLanguage(model.LangGo, sitter.NewLanguage(tree_sitter_go.Language()))
	// 注册 Decoder
	decoder.RegisterDecoder(model.KindGo, NewGoDecoder())
}
