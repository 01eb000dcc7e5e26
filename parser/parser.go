package parser

import (
	"errors"
	"fmt"
	"os"

	"github.com/CodMac/go-archcheck/model"
	sitter "github.com/tree-sitter/go-tree-sitter"
)

// ErrSyntax 源码包含无法恢复的语法错误
var ErrSyntax = errors.New("syntax error")

// Parser 包装了某一语言的 Tree-sitter 解析器。非并发安全，每个 worker 持有自己的实例。
type Parser struct {
	Language model.Language
	tsParser *sitter.Parser
}

// NewParser 创建一个新的 Parser 实例
func NewParser(lang model.Language) (*Parser, error) {
	tsLang, err := GetLanguage(lang)
	if err != nil {
		return nil, err
	}

	tsParser := sitter.NewParser()
	if err := tsParser.SetLanguage(tsLang); err != nil {
		tsParser.Close()
		return nil, fmt.Errorf("set language %s: %w", lang, err)
	}

	return &Parser{Language: lang, tsParser: tsParser}, nil
}

// Parse 解析源码字节。调用方负责 Close 返回的语法树。
// strict 为 true 时，包含 ERROR/MISSING 节点的树被视为语法错误。
func (p *Parser) Parse(content []byte, strict bool) (*sitter.Tree, error) {
	tree := p.tsParser.Parse(content, nil)
	if tree == nil {
		return nil, fmt.Errorf("tree-sitter failed to parse %s source", p.Language)
	}
	if strict && tree.RootNode().HasError() {
		tree.Close()
		return nil, fmt.Errorf("%w: %s source contains error nodes", ErrSyntax, p.Language)
	}
	return tree, nil
}

// ParseFile 读取文件内容并解析
func (p *Parser) ParseFile(filePath string, strict bool) (*sitter.Tree, []byte, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
	}
	tree, err := p.Parse(content, strict)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", filePath, err)
	}
	return tree, content, nil
}

// Close 释放 Tree-sitter 内部资源
func (p *Parser) Close() {
	if p.tsParser != nil {
		p.tsParser.Close()
	}
}

// Text 返回节点对应的源码文本, nil 节点返回空串
func Text(n *sitter.Node, source []byte) string {
	if n == nil {
		return ""
	}
	return n.Utf8Text(source)
}

// Line 返回节点起始行 (1-based), nil 节点返回 0
func Line(n *sitter.Node) int {
	if n == nil {
		return 0
	}
	return int(n.StartPosition().Row) + 1
}

// NodeLocation 将节点转换为 model.Location
func NodeLocation(n *sitter.Node, filePath string) *model.Location {
	if n == nil {
		return nil
	}
	return &model.Location{
		FilePath:    filePath,
		StartLine:   int(n.StartPosition().Row) + 1,
		EndLine:     int(n.EndPosition().Row) + 1,
		StartColumn: int(n.StartPosition().Column),
		EndColumn:   int(n.EndPosition().Column),
	}
}

// NamedChildren 返回节点的具名子节点
func NamedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := uint(0); i < n.NamedChildCount(); i++ {
		if c := n.NamedChild(i); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// FirstChildOfKind 返回第一个指定类型的子节点 (含匿名节点)
func FirstChildOfKind(n *sitter.Node, kind string) *sitter.Node {
	if n == nil {
		return nil
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		if c := n.Child(i); c != nil && c.Kind() == kind {
			return c
		}
	}
	return nil
}
