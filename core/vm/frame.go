package vm

import (
	"sync"

	"github.com/holiman/uint256"

	"github.com/lattice-evm/evmcore/core/types"
)

// Frame is the ephemeral execution state for one call: its operand stack,
// memory, return-data buffer, and remaining gas. Frames are created at
// call entry and released on every exit path (STOP, RETURN, REVERT, an
// execution error, or SELFDESTRUCT); the analysis artifact they execute
// against is immutable and may be shared by many frames concurrently.
type Frame struct {
	Analysis *Analysis
	Stack    *Stack
	Memory   *Memory

	Address  types.Address
	Caller   types.Address
	Value    uint256.Int
	Input    []byte
	IsStatic bool
	Depth    int

	Gas        uint64
	ReturnData []byte

	pc     uint64
	instrI uint32 // current index into Analysis.Stream().instructions
}

// PC returns the frame's current program counter into the analyzed
// runtime code.
func (f *Frame) PC() uint64 { return f.pc }

// framePool recycles Frame, Stack, and Memory allocations across calls.
type framePool struct {
	frames sync.Pool
	memory *MemoryPool
	maxMem uint64
}

func newFramePool(maxMem uint64) *framePool {
	p := &framePool{memory: NewMemoryPool(), maxMem: maxMem}
	p.frames.New = func() any {
		return &Frame{Stack: NewStack()}
	}
	return p
}

func (p *framePool) get(a *Analysis, addr, caller types.Address, value uint256.Int, input []byte, isStatic bool, depth int, gas uint64) *Frame {
	f := p.frames.Get().(*Frame)
	f.Memory = p.memory.Get(p.maxMem)
	f.Analysis = a
	f.Stack.Reset()
	f.Address = addr
	f.Caller = caller
	f.Value = value
	f.Input = input
	f.IsStatic = isStatic
	f.Depth = depth
	f.Gas = gas
	f.ReturnData = nil
	f.pc = 0
	f.instrI = 0
	return f
}

func (p *framePool) put(f *Frame) {
	p.memory.Put(f.Memory)
	f.Memory = nil
	f.Analysis = nil
	f.Input = nil
	f.ReturnData = nil
	p.frames.Put(f)
}
