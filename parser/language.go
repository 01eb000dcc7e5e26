package parser

import (
	"fmt"
	"sync"

	"github.com/CodMac/go-archcheck/model"
	sitter "github.com/tree-sitter/go-tree-sitter"
)

var (
	langMu  sync.RWMutex
	langMap = make(map[model.Language]*sitter.Language) // langMap 存储语言标识到 Tree-sitter 语言对象的映射
)

// RegisterLanguage 用于注册 Tree-sitter 语言库 (由各语言解码包的 init 调用)
func RegisterLanguage(lang model.Language, tsLang *sitter.Language) {
	langMu.Lock()
	defer langMu.Unlock()
	langMap[lang] = tsLang
}

// GetLanguage 获取已注册的 Tree-sitter 语言对象
func GetLanguage(lang model.Language) (*sitter.Language, error) {
	langMu.RLock()
	defer langMu.RUnlock()
	tsLang, ok := langMap[lang]
	if !ok {
		return nil, fmt.Errorf("language %s not registered", lang)
	}

	return tsLang, nil
}
