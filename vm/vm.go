// Package vm executes Ember bytecode on a stack machine: call frames,
// closures, globals, and the builtin registry (see spec.md §4.8).
package vm

import (
	"fmt"

	"github.com/ember-lang/ember/code"
	"github.com/ember-lang/ember/compiler"
	"github.com/ember-lang/ember/object"
)

const (
	StackSize   = 2048
	GlobalsSize = 65536
	MaxFrames   = 1024
)

// Metrics receives execution counters as the VM runs. Implementations must
// be safe to call from a single goroutine (the VM never calls these
// concurrently); the "metrics" package adapts this to Prometheus
// collectors for the CLI's --metrics-addr flag.
type Metrics interface {
	InstructionExecuted(op code.Opcode)
	CallMade()
	StackDepth(depth int)
}

// VM runs one compiled program to completion. It owns no state shared with
// any other VM instance (see spec.md §5's single-threaded, no-shared-memory
// execution model).
type VM struct {
	constants []object.Object

	stack []object.Object
	sp    int

	globals []object.Object

	frames      []*Frame
	framesIndex int

	metrics Metrics
}

// New creates a VM over bytecode with a fresh, zeroed global slot array.
func New(bytecode *compiler.Bytecode) *VM {
	mainFn := &object.CompiledFunction{Instructions: bytecode.Instructions}
	mainClosure := &object.Closure{Fn: mainFn}
	mainFrame := NewFrame(mainClosure, 0)

	frames := make([]*Frame, MaxFrames)
	frames[0] = mainFrame

	return &VM{
		constants:   bytecode.Constants,
		stack:       make([]object.Object, StackSize),
		sp:          0,
		globals:     make([]object.Object, GlobalsSize),
		frames:      frames,
		framesIndex: 1,
	}
}

// SetMetrics attaches an execution-counter sink; nil (the default)
// disables instrumentation entirely at a single nil-check per opcode.
func (vm *VM) SetMetrics(m Metrics) { vm.metrics = m }

// NewWithGlobalsStore creates a VM reusing an existing globals array, for
// REPL sessions that run one compiled chunk per input line.
func NewWithGlobalsStore(bytecode *compiler.Bytecode, globals []object.Object) *VM {
	v := New(bytecode)
	v.globals = globals
	return v
}

// Globals exposes the VM's global slot array, for a REPL to hand to the
// next line's VM via NewWithGlobalsStore.
func (vm *VM) Globals() []object.Object { return vm.globals }

// LastPoppedStackElem returns the value most recently popped off the stack:
// after Run returns, this is the value of the last top-level expression
// statement, which a REPL prints.
func (vm *VM) LastPoppedStackElem() object.Object {
	return vm.stack[vm.sp]
}

func (vm *VM) currentFrame() *Frame {
	return vm.frames[vm.framesIndex-1]
}

func (vm *VM) pushFrame(f *Frame) error {
	if vm.framesIndex >= MaxFrames {
		return fmt.Errorf("frames exhausted: max %d call frames", MaxFrames)
	}
	vm.frames[vm.framesIndex] = f
	vm.framesIndex++
	return nil
}

func (vm *VM) popFrame() *Frame {
	vm.framesIndex--
	return vm.frames[vm.framesIndex]
}

func (vm *VM) push(obj object.Object) error {
	if vm.sp >= StackSize {
		return fmt.Errorf("stack overflow")
	}
	vm.stack[vm.sp] = obj
	vm.sp++
	if vm.metrics != nil {
		vm.metrics.StackDepth(vm.sp)
	}
	return nil
}

func (vm *VM) pop() object.Object {
	obj := vm.stack[vm.sp-1]
	vm.sp--
	return obj
}

// Run executes the whole program, fetching and dispatching one opcode at a
// time from the current frame until every frame has returned.
func (vm *VM) Run() error {
	var ip int
	var ins code.Instructions
	var op code.Opcode

	for vm.currentFrame().ip < len(vm.currentFrame().Instructions())-1 {
		vm.currentFrame().ip++

		ip = vm.currentFrame().ip
		ins = vm.currentFrame().Instructions()
		op = code.Opcode(ins[ip])

		if vm.metrics != nil {
			vm.metrics.InstructionExecuted(op)
		}

		switch op {
		case code.OpConstant:
			constIndex := code.ReadUint16(ins[ip+1:])
			vm.currentFrame().ip += 2
			if err := vm.push(vm.constants[constIndex]); err != nil {
				return err
			}

		case code.OpAdd, code.OpSub, code.OpMul, code.OpDiv, code.OpMod,
			code.OpBitAnd, code.OpBitOr, code.OpBitXor, code.OpShl, code.OpShr:
			if err := vm.executeBinaryOperation(op); err != nil {
				return err
			}

		case code.OpPop:
			vm.pop()

		case code.OpTrue:
			if err := vm.push(object.TRUE); err != nil {
				return err
			}
		case code.OpFalse:
			if err := vm.push(object.FALSE); err != nil {
				return err
			}
		case code.OpNull:
			if err := vm.push(object.NULL); err != nil {
				return err
			}

		case code.OpEqual, code.OpNotEqual, code.OpGreaterThan:
			if err := vm.executeComparison(op); err != nil {
				return err
			}

		case code.OpBang:
			if err := vm.executeBangOperator(); err != nil {
				return err
			}
		case code.OpMinus:
			if err := vm.executeMinusOperator(); err != nil {
				return err
			}
		case code.OpBitNot:
			if err := vm.executeBitNotOperator(); err != nil {
				return err
			}

		case code.OpJump:
			pos := int(code.ReadUint16(ins[ip+1:]))
			vm.currentFrame().ip = pos - 1

		case code.OpJumpNotTruthy:
			pos := int(code.ReadUint16(ins[ip+1:]))
			vm.currentFrame().ip += 2
			condition := vm.pop()
			if !object.IsTruthy(condition) {
				vm.currentFrame().ip = pos - 1
			}

		case code.OpSetGlobal:
			globalIndex := code.ReadUint16(ins[ip+1:])
			vm.currentFrame().ip += 2
			vm.globals[globalIndex] = vm.pop()

		case code.OpGetGlobal:
			globalIndex := code.ReadUint16(ins[ip+1:])
			vm.currentFrame().ip += 2
			if err := vm.push(vm.globals[globalIndex]); err != nil {
				return err
			}

		case code.OpSetLocal:
			localIndex := code.ReadUint8(ins[ip+1:])
			vm.currentFrame().ip += 1
			frame := vm.currentFrame()
			vm.stack[frame.basePointer+int(localIndex)] = vm.pop()

		case code.OpGetLocal:
			localIndex := code.ReadUint8(ins[ip+1:])
			vm.currentFrame().ip += 1
			frame := vm.currentFrame()
			if err := vm.push(vm.stack[frame.basePointer+int(localIndex)]); err != nil {
				return err
			}

		case code.OpGetBuiltin:
			builtinIndex := code.ReadUint8(ins[ip+1:])
			vm.currentFrame().ip += 1
			builtin := object.Builtins[builtinIndex]
			if err := vm.push(builtin); err != nil {
				return err
			}

		case code.OpGetFree:
			freeIndex := code.ReadUint8(ins[ip+1:])
			vm.currentFrame().ip += 1
			currentClosure := vm.currentFrame().closure
			if err := vm.push(currentClosure.Free[freeIndex]); err != nil {
				return err
			}

		case code.OpCurrentClosure:
			currentClosure := vm.currentFrame().closure
			if err := vm.push(currentClosure); err != nil {
				return err
			}

		case code.OpArray:
			numElements := int(code.ReadUint16(ins[ip+1:]))
			vm.currentFrame().ip += 2

			array := vm.buildArray(vm.sp-numElements, vm.sp)
			vm.sp = vm.sp - numElements
			if err := vm.push(array); err != nil {
				return err
			}

		case code.OpHash:
			numElements := int(code.ReadUint16(ins[ip+1:]))
			vm.currentFrame().ip += 2

			hash, err := vm.buildHash(vm.sp-numElements, vm.sp)
			if err != nil {
				return err
			}
			vm.sp = vm.sp - numElements
			if err := vm.push(hash); err != nil {
				return err
			}

		case code.OpIndex:
			index := vm.pop()
			left := vm.pop()
			if err := vm.executeIndexExpression(left, index); err != nil {
				return err
			}

		case code.OpCall:
			numArgs := code.ReadUint8(ins[ip+1:])
			vm.currentFrame().ip += 1
			if err := vm.executeCall(int(numArgs)); err != nil {
				return err
			}

		case code.OpReturnValue:
			returnValue := vm.pop()
			frame := vm.popFrame()
			vm.sp = frame.basePointer - 1
			if err := vm.push(returnValue); err != nil {
				return err
			}

		case code.OpReturnNone:
			frame := vm.popFrame()
			vm.sp = frame.basePointer - 1
			if err := vm.push(object.NULL); err != nil {
				return err
			}

		case code.OpClosure:
			constIndex := code.ReadUint16(ins[ip+1:])
			numFree := code.ReadUint8(ins[ip+3:])
			vm.currentFrame().ip += 3
			if err := vm.pushClosure(int(constIndex), int(numFree)); err != nil {
				return err
			}

		default:
			return fmt.Errorf("unknown opcode %d", op)
		}
	}

	return nil
}

func (vm *VM) buildArray(startIndex, endIndex int) object.Object {
	elements := make([]object.Object, endIndex-startIndex)
	copy(elements, vm.stack[startIndex:endIndex])
	return &object.Array{Elements: elements}
}

func (vm *VM) buildHash(startIndex, endIndex int) (object.Object, error) {
	pairs := make(map[object.HashKey]object.HashPair)

	for i := startIndex; i < endIndex; i += 2 {
		key := vm.stack[i]
		value := vm.stack[i+1]

		hashable, ok := key.(object.Hashable)
		if !ok {
			return nil, fmt.Errorf("unusable as hash key: %s", key.Type())
		}
		pairs[hashable.HashKey()] = object.HashPair{Key: key, Value: value}
	}

	return &object.Hash{Pairs: pairs}, nil
}

// executeIndexExpression implements spec.md §4.8's Index semantics: 1-based
// array indexing with negative-from-end, out-of-range returning NULL rather
// than erroring (the tree-walk evaluator, by contrast, errors — see
// spec.md §9's documented divergence).
func (vm *VM) executeIndexExpression(left, index object.Object) error {
	switch {
	case left.Type() == object.ArrayObj:
		return vm.executeArrayIndex(left, index)
	case left.Type() == object.HashObj:
		return vm.executeHashIndex(left, index)
	default:
		return fmt.Errorf("index operator not supported: %s", left.Type())
	}
}

func (vm *VM) executeArrayIndex(array, index object.Object) error {
	arrayObject := array.(*object.Array)
	idxObj, ok := index.(*object.Integer)
	if !ok {
		return fmt.Errorf("array index must be an integer, got %s", index.Type())
	}

	length := int64(len(arrayObject.Elements))
	i := idxObj.Value

	var pos int64
	switch {
	case i > 0:
		pos = i - 1
	case i < 0:
		pos = length + i
	default:
		return vm.push(object.NULL)
	}

	if pos < 0 || pos >= length {
		return vm.push(object.NULL)
	}
	return vm.push(arrayObject.Elements[pos])
}

func (vm *VM) executeHashIndex(hash, index object.Object) error {
	hashObject := hash.(*object.Hash)

	key, ok := index.(object.Hashable)
	if !ok {
		return fmt.Errorf("unusable as hash key: %s", index.Type())
	}

	pair, ok := hashObject.Pairs[key.HashKey()]
	if !ok {
		return vm.push(object.NULL)
	}
	return vm.push(pair.Value)
}

func (vm *VM) executeCall(numArgs int) error {
	callee := vm.stack[vm.sp-1-numArgs]

	if vm.metrics != nil {
		vm.metrics.CallMade()
	}

	switch callee := callee.(type) {
	case *object.Closure:
		return vm.callClosure(callee, numArgs)
	case *object.Builtin:
		return vm.callBuiltin(callee, numArgs)
	default:
		return fmt.Errorf("calling non-function and non-built-in: %s", callee.Type())
	}
}

func (vm *VM) callClosure(cl *object.Closure, numArgs int) error {
	if numArgs != cl.Fn.NumParameters {
		return fmt.Errorf("wrong number of arguments: want=%d, got=%d", cl.Fn.NumParameters, numArgs)
	}

	frame := NewFrame(cl, vm.sp-numArgs)
	if err := vm.pushFrame(frame); err != nil {
		return err
	}
	vm.sp = frame.basePointer + cl.Fn.NumLocals
	return nil
}

func (vm *VM) callBuiltin(builtin *object.Builtin, numArgs int) error {
	args := vm.stack[vm.sp-numArgs : vm.sp]

	result := builtin.Fn(0, 0, args...)
	vm.sp = vm.sp - numArgs - 1

	if result != nil {
		return vm.push(result)
	}
	return vm.push(object.NULL)
}

func (vm *VM) pushClosure(constIndex, numFree int) error {
	constant := vm.constants[constIndex]
	function, ok := constant.(*object.CompiledFunction)
	if !ok {
		return fmt.Errorf("not a function: %+v", constant)
	}

	free := make([]object.Object, numFree)
	for i := 0; i < numFree; i++ {
		free[i] = vm.stack[vm.sp-numFree+i]
	}
	vm.sp = vm.sp - numFree

	closure := &object.Closure{Fn: function, Free: free}
	return vm.push(closure)
}

func (vm *VM) executeBangOperator() error {
	operand := vm.pop()
	return vm.push(object.NativeBool(!object.IsTruthy(operand)))
}

func (vm *VM) executeMinusOperator() error {
	operand := vm.pop()
	switch operand := operand.(type) {
	case *object.Integer:
		return vm.push(object.IntValue(-operand.Value))
	case *object.Float:
		return vm.push(&object.Float{Value: -operand.Value})
	default:
		return fmt.Errorf("unsupported type for negation: %s", operand.Type())
	}
}

func (vm *VM) executeBitNotOperator() error {
	operand := vm.pop()
	integer, ok := operand.(*object.Integer)
	if !ok {
		return fmt.Errorf("unsupported type for bitwise not: %s", operand.Type())
	}
	return vm.push(object.IntValue(^integer.Value))
}

func (vm *VM) executeComparison(op code.Opcode) error {
	right := vm.pop()
	left := vm.pop()

	if left.Type() == object.IntegerObj && right.Type() == object.IntegerObj {
		return vm.executeIntegerComparison(op, left, right)
	}
	if isNumeric(left) && isNumeric(right) {
		return vm.executeFloatComparison(op, left, right)
	}

	switch op {
	case code.OpEqual:
		return vm.push(object.NativeBool(left == right))
	case code.OpNotEqual:
		return vm.push(object.NativeBool(left != right))
	default:
		return fmt.Errorf("unknown operator for %s %s", left.Type(), right.Type())
	}
}

func (vm *VM) executeIntegerComparison(op code.Opcode, left, right object.Object) error {
	l := left.(*object.Integer).Value
	r := right.(*object.Integer).Value

	switch op {
	case code.OpEqual:
		return vm.push(object.NativeBool(l == r))
	case code.OpNotEqual:
		return vm.push(object.NativeBool(l != r))
	case code.OpGreaterThan:
		return vm.push(object.NativeBool(l > r))
	default:
		return fmt.Errorf("unknown operator: %d", op)
	}
}

func (vm *VM) executeFloatComparison(op code.Opcode, left, right object.Object) error {
	l := asFloat(left)
	r := asFloat(right)

	switch op {
	case code.OpEqual:
		return vm.push(object.NativeBool(l == r))
	case code.OpNotEqual:
		return vm.push(object.NativeBool(l != r))
	case code.OpGreaterThan:
		return vm.push(object.NativeBool(l > r))
	default:
		return fmt.Errorf("unknown operator: %d", op)
	}
}

func (vm *VM) executeBinaryOperation(op code.Opcode) error {
	right := vm.pop()
	left := vm.pop()

	leftType := left.Type()
	rightType := right.Type()

	switch {
	case leftType == object.IntegerObj && rightType == object.IntegerObj:
		return vm.executeBinaryIntegerOperation(op, left, right)
	case isNumeric(left) && isNumeric(right):
		return vm.executeBinaryFloatOperation(op, left, right)
	case leftType == object.StringObj && rightType == object.StringObj:
		return vm.executeBinaryStringOperation(op, left, right)
	case leftType == object.StringObj && rightType == object.IntegerObj:
		return vm.executeStringRepeat(op, left.(*object.String), right.(*object.Integer))
	case leftType == object.BooleanObj && rightType == object.BooleanObj:
		return vm.executeBinaryBooleanOperation(op, left, right)
	default:
		return fmt.Errorf("unsupported types for binary operation: %s %s", leftType, rightType)
	}
}

// executeBinaryBooleanOperation backs `&&`/`||` (compiled to OpBitAnd /
// OpBitOr, see compiler.compileInfixExpression): both operands are already
// on the stack by the time this runs, so evaluation is eager, not
// short-circuiting.
func (vm *VM) executeBinaryBooleanOperation(op code.Opcode, left, right object.Object) error {
	l := left.(*object.Boolean).Value
	r := right.(*object.Boolean).Value

	switch op {
	case code.OpBitAnd:
		return vm.push(object.NativeBool(l && r))
	case code.OpBitOr:
		return vm.push(object.NativeBool(l || r))
	default:
		return fmt.Errorf("unknown operator for BOOLEAN BOOLEAN: %d", op)
	}
}

func isNumeric(obj object.Object) bool {
	return obj.Type() == object.IntegerObj || obj.Type() == object.FloatObj
}

func asFloat(obj object.Object) float64 {
	switch obj := obj.(type) {
	case *object.Integer:
		return float64(obj.Value)
	case *object.Float:
		return obj.Value
	default:
		return 0
	}
}

func (vm *VM) executeBinaryIntegerOperation(op code.Opcode, left, right object.Object) error {
	l := left.(*object.Integer).Value
	r := right.(*object.Integer).Value

	var result int64
	switch op {
	case code.OpAdd:
		result = l + r
	case code.OpSub:
		result = l - r
	case code.OpMul:
		result = l * r
	case code.OpDiv:
		if r == 0 {
			return fmt.Errorf("division by zero")
		}
		result = l / r
	case code.OpMod:
		if r == 0 {
			return fmt.Errorf("division by zero")
		}
		result = l % r
	case code.OpBitAnd:
		result = l & r
	case code.OpBitOr:
		result = l | r
	case code.OpBitXor:
		result = l ^ r
	case code.OpShl:
		result = l << uint64(r)
	case code.OpShr:
		result = l >> uint64(r)
	default:
		return fmt.Errorf("unknown integer operator: %d", op)
	}
	return vm.push(object.IntValue(result))
}

func (vm *VM) executeBinaryFloatOperation(op code.Opcode, left, right object.Object) error {
	l := asFloat(left)
	r := asFloat(right)

	var result float64
	switch op {
	case code.OpAdd:
		result = l + r
	case code.OpSub:
		result = l - r
	case code.OpMul:
		result = l * r
	case code.OpDiv:
		if r == 0 {
			return fmt.Errorf("division by zero")
		}
		result = l / r
	default:
		return fmt.Errorf("unsupported operator for float operands: %d", op)
	}
	return vm.push(&object.Float{Value: result})
}

func (vm *VM) executeBinaryStringOperation(op code.Opcode, left, right object.Object) error {
	if op != code.OpAdd {
		return fmt.Errorf("unknown string operator: %d", op)
	}
	l := left.(*object.String).Value
	r := right.(*object.String).Value
	return vm.push(&object.String{Value: l + r})
}

// executeStringRepeat implements the string/int infix rules spec.md §4.5
// describes for the tree-walk evaluator and §4.8 says the VM mirrors:
// `+` concatenates the int's decimal form, `*` repeats the string.
func (vm *VM) executeStringRepeat(op code.Opcode, left *object.String, right *object.Integer) error {
	switch op {
	case code.OpAdd:
		return vm.push(&object.String{Value: left.Value + fmt.Sprintf("%d", right.Value)})
	case code.OpMul:
		if right.Value <= 0 {
			return vm.push(&object.String{Value: ""})
		}
		result := make([]byte, 0, len(left.Value)*int(right.Value))
		for i := int64(0); i < right.Value; i++ {
			result = append(result, left.Value...)
		}
		return vm.push(&object.String{Value: string(result)})
	default:
		return fmt.Errorf("unknown operator for STRING INTEGER")
	}
}
