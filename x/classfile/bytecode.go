package classfile

import (
	"encoding/binary"
	"fmt"
	"sort"
)

const (
	opTableSwitch     = 0xaa
	opLookupSwitch    = 0xab
	opGetStatic       = 0xb2
	opPutStatic       = 0xb3
	opGetField        = 0xb4
	opPutField        = 0xb5
	opInvokeVirtual   = 0xb6
	opInvokeSpecial   = 0xb7
	opInvokeStatic    = 0xb8
	opInvokeInterface = 0xb9
	opWide            = 0xc4
	opIinc            = 0x84
)

// opLength 定长指令的总长度 (含操作码); 0 表示非法操作码, -1 表示变长
var opLength [256]int8

func init() {
	for op := 0x00; op <= 0xc9; op++ {
		opLength[op] = 1
	}
	set := func(n int8, ops ...int) {
		for _, op := range ops {
			opLength[op] = n
		}
	}
	set(2, 0x10, 0x12, 0xa9, 0xbc)                         // bipush ldc ret newarray
	set(2, 0x15, 0x16, 0x17, 0x18, 0x19)                   // xload
	set(2, 0x36, 0x37, 0x38, 0x39, 0x3a)                   // xstore
	set(3, 0x11, 0x13, 0x14, opIinc)                       // sipush ldc_w ldc2_w iinc
	set(3, 0xa7, 0xa8, 0xc6, 0xc7)                         // goto jsr ifnull ifnonnull
	set(3, opGetStatic, opPutStatic, opGetField, opPutField)
	set(3, opInvokeVirtual, opInvokeSpecial, opInvokeStatic)
	set(3, 0xbb, 0xbd, 0xc0, 0xc1)                         // new anewarray checkcast instanceof
	set(4, 0xc5)                                           // multianewarray
	set(5, opInvokeInterface, 0xba, 0xc8, 0xc9)            // invokeinterface invokedynamic goto_w jsr_w
	set(-1, opTableSwitch, opLookupSwitch, opWide)
	for op := 0x99; op <= 0xa6; op++ { // if<cond>, if_icmp<cond>, if_acmp<cond>
		opLength[op] = 3
	}
	opLength[0xca] = 1 // breakpoint (保留)
}

// instruction 是一条引用成员的指令
type instruction struct {
	pc      int
	opcode  uint8
	cpIndex uint16
}

// scanMemberRefs 按顺序遍历字节码, 返回所有 invoke*/get*/put* 指令
func scanMemberRefs(code []byte) ([]instruction, error) {
	var out []instruction
	pc := 0
	for pc < len(code) {
		op := code[pc]
		n, err := instructionLength(code, pc)
		if err != nil {
			return nil, err
		}
		switch op {
		case opGetStatic, opPutStatic, opGetField, opPutField,
			opInvokeVirtual, opInvokeSpecial, opInvokeStatic, opInvokeInterface:
			out = append(out, instruction{pc: pc, opcode: op, cpIndex: binary.BigEndian.Uint16(code[pc+1:])})
		}
		pc += n
	}
	return out, nil
}

func instructionLength(code []byte, pc int) (int, error) {
	op := code[pc]
	n := int(opLength[op])
	switch {
	case n == 0:
		return 0, fmt.Errorf("%w: invalid opcode 0x%02x at pc %d", ErrMalformed, op, pc)
	case n > 0:
		if pc+n > len(code) {
			return 0, fmt.Errorf("%w: truncated instruction 0x%02x at pc %d", ErrMalformed, op, pc)
		}
		return n, nil
	}

	switch op {
	case opWide:
		if pc+1 >= len(code) {
			return 0, fmt.Errorf("%w: truncated wide at pc %d", ErrMalformed, pc)
		}
		if code[pc+1] == opIinc {
			n = 6
		} else {
			n = 4
		}
	case opTableSwitch, opLookupSwitch:
		// 操作数按方法起始 4 字节对齐
		base := pc + 1 + (4-(pc+1)%4)%4
		if base+12 > len(code) {
			return 0, fmt.Errorf("%w: truncated switch at pc %d", ErrMalformed, pc)
		}
		if op == opTableSwitch {
			low := int32(binary.BigEndian.Uint32(code[base+4:]))
			high := int32(binary.BigEndian.Uint32(code[base+8:]))
			if high < low {
				return 0, fmt.Errorf("%w: tableswitch high < low at pc %d", ErrMalformed, pc)
			}
			// 跳转表项数按 64 位计算, 超出剩余字节即为截断
			entries := int64(high) - int64(low) + 1
			if entries > int64(len(code)-base-12)/4 {
				return 0, fmt.Errorf("%w: tableswitch with %d entries exceeds code at pc %d", ErrMalformed, entries, pc)
			}
			n = base + 12 + int(entries)*4 - pc
		} else {
			npairs := int64(int32(binary.BigEndian.Uint32(code[base+4:])))
			if npairs < 0 {
				return 0, fmt.Errorf("%w: lookupswitch npairs < 0 at pc %d", ErrMalformed, pc)
			}
			if npairs > int64(len(code)-base-8)/8 {
				return 0, fmt.Errorf("%w: lookupswitch with %d pairs exceeds code at pc %d", ErrMalformed, npairs, pc)
			}
			n = base + 8 + int(npairs)*8 - pc
		}
	}
	if pc+n > len(code) {
		return 0, fmt.Errorf("%w: truncated instruction 0x%02x at pc %d", ErrMalformed, op, pc)
	}
	return n, nil
}

// lineTable 把字节码偏移映射到源码行
type lineTable []lineEntry

type lineEntry struct {
	startPC int
	line    int
}

func (t lineTable) sorted() lineTable {
	sort.SliceStable(t, func(i, j int) bool { return t[i].startPC < t[j].startPC })
	return t
}

// lineFor 返回 start_pc <= pc 的最后一项的行号, 无行号信息时为 0
func (t lineTable) lineFor(pc int) int {
	i := sort.Search(len(t), func(i int) bool { return t[i].startPC > pc })
	if i == 0 {
		return 0
	}
	return t[i-1].line
}

func (t lineTable) firstLine() int {
	line := 0
	for _, e := range t {
		if line == 0 || e.line < line {
			line = e.line
		}
	}
	return line
}
