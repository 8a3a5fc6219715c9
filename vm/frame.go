package vm

import (
	"github.com/ember-lang/ember/code"
	"github.com/ember-lang/ember/object"
)

// Frame is one call's worth of VM bookkeeping: the closure it is executing,
// its instruction pointer, and the stack index its locals start at (see
// spec.md §4.8).
type Frame struct {
	closure     *object.Closure
	ip          int
	basePointer int
}

// NewFrame starts a frame for closure with its locals area beginning at
// basePointer.
func NewFrame(closure *object.Closure, basePointer int) *Frame {
	return &Frame{closure: closure, ip: -1, basePointer: basePointer}
}

func (f *Frame) Instructions() code.Instructions {
	return f.closure.Fn.Instructions
}
