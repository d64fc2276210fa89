package vm

import (
	"github.com/holiman/uint256"

	"github.com/lattice-evm/evmcore/core/types"
	"github.com/lattice-evm/evmcore/log"
)

// Interpreter runs a decoded instruction stream against a Host. One
// Interpreter may be reused across many calls; all per-call state lives in
// the Frame it is handed.
type Interpreter struct {
	cfg    Config
	pool   *framePool
	logger *log.Logger
}

func NewInterpreter(cfg Config) *Interpreter {
	return &Interpreter{
		cfg:    cfg,
		pool:   newFramePool(cfg.effectiveMaxMemory()),
		logger: cfg.Logger,
	}
}

// Call builds a pooled Frame for one top-level invocation of a's runtime
// code, runs it, and returns the Frame to the pool before returning. Nested
// calls are the Host's responsibility (via InnerCall); this is the entry
// point for a fresh, outermost call.
func (in *Interpreter) Call(a *Analysis, addr, caller types.Address, value uint256.Int, input []byte, isStatic bool, depth int, gas uint64, host Host) ([]byte, error) {
	f := in.pool.get(a, addr, caller, value, input, isStatic, depth, gas)
	defer in.pool.put(f)
	return in.Run(a, f, host)
}

// Run executes a's runtime code as one call, returning the output bytes
// (RETURN/REVERT data) and an error. STOP, RETURN and SELFDESTRUCT produce
// (data, nil); REVERT produces (data, ErrExecutionReverted); anything else
// is a genuine execution error with no meaningful output, and sets f.Gas
// to zero.
func (in *Interpreter) Run(a *Analysis, f *Frame, host Host) (out []byte, err error) {
	defer func() {
		if err != nil && err != ErrExecutionReverted {
			f.Gas = 0
		}
	}()
	stream := a.Stream()
	instrs := stream.instructions
	obs := in.cfg.Observer

	for {
		if f.instrI >= uint32(len(instrs)) {
			return nil, nil // fell off the end; appendImplicitStop should prevent this
		}
		instr := instrs[f.instrI]
		f.pc = stream.instructionToPC[f.instrI]

		switch instr.Tag {
		case TagBlockInfo:
			block := stream.blocks[instr.A]
			if f.Gas < block.GasCost {
				return nil, ErrOutOfGas
			}
			f.Gas -= block.GasCost
			if f.Stack.Len() < block.StackReq {
				return nil, ErrStackUnderflow
			}
			if f.Stack.Len()+block.StackMaxGrowth > StackLimit {
				return nil, ErrStackOverflow
			}
			f.instrI++

		case TagNoop:
			f.instrI = instr.B

		case TagWord:
			f.Stack.Push(stream.words[instr.A])
			f.instrI++

		case TagPC:
			var v uint256.Int
			v.SetUint64(stream.pcValues[instr.A])
			f.Stack.Push(v)
			f.instrI++

		case TagJumpPC:
			if obs != nil {
				obs.OnJumpResolved(true)
			}
			f.instrI = instr.A

		case TagCondJumpPC:
			cond := f.Stack.Pop()
			if obs != nil {
				obs.OnJumpResolved(true)
			}
			if !cond.IsZero() {
				f.instrI = instr.A
			} else {
				f.instrI = instr.B
			}

		case TagJumpUnresolved:
			target := f.Stack.Pop()
			if obs != nil {
				obs.OnJumpResolved(false)
			}
			idx, err := resolveRuntimeJump(a, &target)
			if err != nil {
				return nil, err
			}
			f.instrI = idx

		case TagCondJumpUnresolved:
			target := f.Stack.Pop()
			cond := f.Stack.Pop()
			if obs != nil {
				obs.OnJumpResolved(false)
			}
			if cond.IsZero() {
				f.instrI = instr.B
				continue
			}
			idx, err := resolveRuntimeJump(a, &target)
			if err != nil {
				return nil, err
			}
			f.instrI = idx

		case TagDynamicGas:
			handler, ok := dynamicGasHandlers[instr.Op]
			if !ok {
				return nil, errReachedUnreachableOp
			}
			out, done, err := handler(in, f, host)
			if err != nil {
				return nil, err
			}
			if done {
				return out, terminalErrorFor(instr.Op)
			}
			f.instrI++

		case TagExec:
			handler, ok := execHandlers[instr.Op]
			if !ok {
				return nil, errReachedUnreachableOp
			}
			out, done, err := handler(f, host)
			if err != nil {
				return nil, err
			}
			if done {
				return out, terminalErrorFor(instr.Op)
			}
			f.instrI++

		default:
			return nil, errReachedUnreachableOp
		}
	}
}

// resolveRuntimeJump validates a dynamically computed jump target against
// the jumpdest bitmap and returns the instruction index to resume at: the
// BLOCK_INFO record opening the JUMPDEST's block, not the JUMPDEST's own
// EXEC record past it, so jumping into a block always re-runs that
// block's gas charge and stack check, even on a loop back to the same
// JUMPDEST.
func resolveRuntimeJump(a *Analysis, target *uint256.Int) (uint32, error) {
	if !target.IsUint64() {
		return 0, ErrInvalidJump
	}
	t := target.Uint64()
	if !a.IsValidJumpdest(t) {
		return 0, ErrInvalidJump
	}
	idx := a.Stream().pcToBlockStart[t]
	if idx == sentinelIndex {
		return 0, ErrInvalidJump
	}
	return idx, nil
}

// terminalErrorFor maps a terminating opcode to the error Run should
// surface: nil for success (STOP/RETURN/SELFDESTRUCT), ErrExecutionReverted
// for REVERT.
func terminalErrorFor(op OpCode) error {
	if op == REVERT {
		return ErrExecutionReverted
	}
	return nil
}
