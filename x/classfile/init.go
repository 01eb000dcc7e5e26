package classfile

import (
	"github.com/CodMac/go-archcheck/decoder"
	"github.com/CodMac/go-archcheck/model"
)

func init() {
	// 注册 Decoder
	decoder.RegisterDecoder(model.KindClass, NewClassFileDecoder())
}
