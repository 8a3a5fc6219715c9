// Package code defines Ember's bytecode: the Opcode enum, each opcode's
// operand widths, and the big-endian encode/decode helpers the compiler and
// VM share.
package code

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Instructions is a flat byte-encoded instruction stream: one Opcode byte
// followed by its fixed-width big-endian operands, repeated.
type Instructions []byte

// Opcode identifies a single VM instruction.
type Opcode byte

const (
	OpConstant      Opcode = iota // u16: push constants[operand]
	OpAdd                         // pop two, push sum
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPop   // discard top of stack
	OpTrue  // push TRUE
	OpFalse // push FALSE
	OpNull  // push NULL
	OpEqual
	OpNotEqual
	OpGreaterThan
	OpMinus // pop one, push its arithmetic negation
	OpBang  // pop one, push its logical negation
	OpBitAnd
	OpBitOr
	OpBitXor
	OpBitNot
	OpShl
	OpShr
	OpJumpNotTruthy // u16: if not truthy(pop), ip = operand
	OpJump          // u16: ip = operand
	OpSetGlobal     // u16: globals[operand] = pop
	OpGetGlobal     // u16: push globals[operand]
	OpSetLocal      // u8: frame.stack[base+operand] = pop
	OpGetLocal      // u8: push frame.stack[base+operand]
	OpGetBuiltin    // u8: push Builtin(operand)
	OpGetFree       // u8: push currentClosure.Free[operand]
	OpArray         // u16: pop n=operand, push Array
	OpHash          // u16: pop n=operand (2*pairs), push Hash
	OpIndex         // pop index, pop collection, push element (or NULL if out of range)
	OpCall          // u8: call top-of-stack with next operand args
	OpReturnValue   // return top of stack to the caller
	OpReturnNone    // return NULL to the caller
	OpClosure       // u16,u8: wrap constants[op1] + top op2 free values as a Closure
	OpCurrentClosure
)

// Definition describes one opcode's mnemonic and the byte width of each of
// its operands, in order.
type Definition struct {
	Name          string
	OperandWidths []int
}

var definitions = map[Opcode]*Definition{
	OpConstant:       {"OpConstant", []int{2}},
	OpAdd:            {"OpAdd", nil},
	OpSub:            {"OpSub", nil},
	OpMul:            {"OpMul", nil},
	OpDiv:            {"OpDiv", nil},
	OpMod:            {"OpMod", nil},
	OpPop:            {"OpPop", nil},
	OpTrue:           {"OpTrue", nil},
	OpFalse:          {"OpFalse", nil},
	OpNull:           {"OpNull", nil},
	OpEqual:          {"OpEqual", nil},
	OpNotEqual:       {"OpNotEqual", nil},
	OpGreaterThan:    {"OpGreaterThan", nil},
	OpMinus:          {"OpMinus", nil},
	OpBang:           {"OpBang", nil},
	OpBitAnd:         {"OpBitAnd", nil},
	OpBitOr:          {"OpBitOr", nil},
	OpBitXor:         {"OpBitXor", nil},
	OpBitNot:         {"OpBitNot", nil},
	OpShl:            {"OpShl", nil},
	OpShr:            {"OpShr", nil},
	OpJumpNotTruthy:  {"OpJumpNotTruthy", []int{2}},
	OpJump:           {"OpJump", []int{2}},
	OpSetGlobal:      {"OpSetGlobal", []int{2}},
	OpGetGlobal:      {"OpGetGlobal", []int{2}},
	OpSetLocal:       {"OpSetLocal", []int{1}},
	OpGetLocal:       {"OpGetLocal", []int{1}},
	OpGetBuiltin:     {"OpGetBuiltin", []int{1}},
	OpGetFree:        {"OpGetFree", []int{1}},
	OpArray:          {"OpArray", []int{2}},
	OpHash:           {"OpHash", []int{2}},
	OpIndex:          {"OpIndex", nil},
	OpCall:           {"OpCall", []int{1}},
	OpReturnValue:    {"OpReturnValue", nil},
	OpReturnNone:     {"OpReturnNone", nil},
	OpClosure:        {"OpClosure", []int{2, 1}},
	OpCurrentClosure: {"OpCurrentClosure", nil},
}

// Lookup returns op's Definition, or an error if op is not a known opcode.
func Lookup(op Opcode) (*Definition, error) {
	def, ok := definitions[op]
	if !ok {
		return nil, fmt.Errorf("opcode %d undefined", op)
	}
	return def, nil
}

// Make encodes a single instruction: op followed by its operands, each
// padded/truncated to the width its Definition specifies.
func Make(op Opcode, operands ...int) Instructions {
	def, ok := definitions[op]
	if !ok {
		return Instructions{}
	}

	instructionLen := 1
	for _, w := range def.OperandWidths {
		instructionLen += w
	}

	instruction := make(Instructions, instructionLen)
	instruction[0] = byte(op)

	offset := 1
	for i, operand := range operands {
		width := def.OperandWidths[i]
		switch width {
		case 2:
			binary.BigEndian.PutUint16(instruction[offset:], uint16(operand))
		case 1:
			instruction[offset] = byte(operand)
		}
		offset += width
	}

	return instruction
}

// ReadOperands decodes every operand of def starting at ins[0], returning
// the decoded values and the number of bytes consumed (not including the
// opcode byte itself).
func ReadOperands(def *Definition, ins Instructions) ([]int, int) {
	operands := make([]int, len(def.OperandWidths))
	offset := 0

	for i, width := range def.OperandWidths {
		switch width {
		case 2:
			operands[i] = int(ReadUint16(ins[offset:]))
		case 1:
			operands[i] = int(ReadUint8(ins[offset:]))
		}
		offset += width
	}

	return operands, offset
}

// ReadUint16 decodes a big-endian uint16 from the front of ins.
func ReadUint16(ins Instructions) uint16 { return binary.BigEndian.Uint16(ins) }

// ReadUint8 decodes the single byte at the front of ins.
func ReadUint8(ins Instructions) uint8 { return uint8(ins[0]) }

// String disassembles the whole instruction stream, one "0xAAAA OpName
// [operand ...]" line per instruction (see spec.md §6).
func (ins Instructions) String() string {
	var out bytes.Buffer

	i := 0
	for i < len(ins) {
		def, err := Lookup(Opcode(ins[i]))
		if err != nil {
			fmt.Fprintf(&out, "ERROR: %s\n", err)
			i++
			continue
		}

		operands, read := ReadOperands(def, ins[i+1:])
		fmt.Fprintf(&out, "%04x %s\n", i, fmtInstruction(def, operands))

		i += 1 + read
	}

	return out.String()
}

func fmtInstruction(def *Definition, operands []int) string {
	operandCount := len(def.OperandWidths)
	if len(operands) != operandCount {
		return fmt.Sprintf("ERROR: operand len %d does not match defined %d\n", len(operands), operandCount)
	}

	switch operandCount {
	case 0:
		return def.Name
	case 1:
		return fmt.Sprintf("%s %d", def.Name, operands[0])
	case 2:
		return fmt.Sprintf("%s %d %d", def.Name, operands[0], operands[1])
	}
	return fmt.Sprintf("ERROR: unhandled operandCount for %s\n", def.Name)
}
