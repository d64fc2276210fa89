package vm

import (
	"time"

	"github.com/holiman/uint256"
)

// Analysis is the immutable artifact produced by Analyze: the stripped
// runtime code, its three per-byte bitmaps, and the detected metadata tail
// (if any). It owns all of its storage and may be shared read-only across
// concurrent interpreter invocations.
type Analysis struct {
	fullCode    []byte
	runtimeCode []byte
	bitmaps     codeBitmaps
	metadata    MetadataDescriptor
	hasMetadata bool
	fork        Hardfork
	stream      *instructionStream
}

// Hardfork returns the fork this artifact was analyzed against.
func (a *Analysis) Hardfork() Hardfork { return a.fork }

// Stream returns the decoded instruction stream built for this artifact.
func (a *Analysis) Stream() *instructionStream { return a.stream }

// RuntimeCode returns the analyzed region (full_code with any trailing
// Solidity metadata tail removed).
func (a *Analysis) RuntimeCode() []byte { return a.runtimeCode }

// Metadata returns the detected Solidity metadata descriptor, if any.
func (a *Analysis) Metadata() (MetadataDescriptor, bool) { return a.metadata, a.hasMetadata }

// IsValidJumpdest reports whether pc is a real JUMPDEST in O(1).
func (a *Analysis) IsValidJumpdest(pc uint64) bool {
	if pc >= uint64(len(a.runtimeCode)) {
		return false
	}
	return a.bitmaps.IsJumpdest(pc)
}

// InstructionLength returns the byte length of the instruction starting at
// pc: 1 for a plain opcode, 1+n for a PUSHn.
func (a *Analysis) InstructionLength(pc uint64) uint64 {
	op := OpCode(a.runtimeCode[pc])
	if n := op.PushSize(); n > 0 {
		return uint64(n) + 1
	}
	return 1
}

// NextPC returns pc + instruction_length(pc), and false if that falls
// outside runtime_code.
func (a *Analysis) NextPC(pc uint64) (uint64, bool) {
	if pc >= uint64(len(a.runtimeCode)) {
		return 0, false
	}
	next := pc + a.InstructionLength(pc)
	if next > uint64(len(a.runtimeCode)) {
		return 0, false
	}
	return next, true
}

// ReadPushValue decodes the n-byte big-endian immediate starting at pc+1.
func (a *Analysis) ReadPushValue(pc uint64, n int) (uint256.Int, bool) {
	start := pc + 1
	if start+uint64(n) > uint64(len(a.runtimeCode)) {
		return uint256.Int{}, false
	}
	var w uint256.Int
	w.SetBytes(a.runtimeCode[start : start+uint64(n)])
	return w, true
}

// CountSetBitsInRange and FindNextSetBit expose the op_start bitmap's
// popcount / next-set queries for callers outside this package that need
// to reason about instruction density over a byte range.
func (a *Analysis) CountSetBitsInRange(lo, hi uint64) uint64 { return a.bitmaps.CountOpStartInRange(lo, hi) }
func (a *Analysis) FindNextSetBit(from uint64) (uint64, bool)  { return a.bitmaps.NextOpStart(from) }

// Analyze validates full_code against the active opcode table for fork and
// produces its Analysis artifact, or one of the analysis-plane sentinel
// errors (ErrInvalidOpcode, ErrTruncatedPush, ErrInvalidJumpDestination,
// ErrBytecodeTooLarge / ErrInitcodeTooLarge, ErrTooManyInstructions).
func Analyze(fullCode []byte, fork Hardfork, cfg Config) (*Analysis, error) {
	start := time.Now()
	limit := cfg.effectiveRuntimeSizeLimit()
	if cfg.IsCreation {
		limit = cfg.effectiveInitcodeSizeLimit()
	}
	if len(fullCode) > limit {
		if cfg.IsCreation {
			return nil, ErrInitcodeTooLarge
		}
		return nil, ErrBytecodeTooLarge
	}

	runtime, desc, hasMeta := stripMetadata(fullCode)

	a := &Analysis{
		fullCode:    fullCode,
		runtimeCode: runtime,
		bitmaps:     newCodeBitmaps(len(runtime)),
		metadata:    desc,
		hasMetadata: hasMeta,
		fork:        fork,
	}

	table := OpTableFor(fork)

	if err := a.validateOpcodesAndPush(table, cfg.Observer); err != nil {
		return nil, err
	}
	a.markJumpdests()
	if err := a.validateStaticJumps(table); err != nil {
		return nil, err
	}

	stream, err := buildInstructionStream(a, table, cfg.effectiveMaxInstructions(), cfg.Observer)
	if err != nil {
		return nil, err
	}
	a.stream = stream

	if cfg.Observer != nil {
		cfg.Observer.OnAnalysisComplete(time.Since(start), len(stream.instructions))
	}
	if cfg.Logger != nil {
		cfg.Logger.Debug("analysis complete",
			"runtime_bytes", len(runtime),
			"instructions", len(stream.instructions),
			"hardfork", fork.String())
	}
	return a, nil
}

// validateOpcodesAndPush is analysis pass 1: walks runtime_code marking
// op_start and push_data, rejecting invalid opcodes and truncated PUSH
// immediates.
func (a *Analysis) validateOpcodesAndPush(table *opTable, obs Observer) error {
	code := a.runtimeCode
	i := uint64(0)
	n := uint64(len(code))
	for i < n {
		op := OpCode(code[i])
		info := table.info(op)
		if !info.Valid {
			return ErrInvalidOpcode
		}
		if obs != nil {
			obs.OnOpcodeValidated(op)
		}
		a.bitmaps.opStart.Set(uint(i))

		if size := op.PushSize(); size > 0 {
			if i+uint64(size) >= n {
				return ErrTruncatedPush
			}
			for k := uint64(1); k <= uint64(size); k++ {
				a.bitmaps.pushData.Set(uint(i + k))
			}
			i += uint64(size) + 1
			continue
		}
		i++
	}
	return nil
}

// markJumpdests is analysis pass 2.
func (a *Analysis) markJumpdests() {
	code := a.runtimeCode
	for i := uint64(0); i < uint64(len(code)); i++ {
		if code[i] == byte(JUMPDEST) && a.bitmaps.IsOpStart(i) && !a.bitmaps.IsPushData(i) {
			a.bitmaps.jumpdest.Set(uint(i))
		}
	}
}

// validateStaticJumps is analysis pass 3: for every JUMP/JUMPI preceded
// immediately by a PUSH, the pushed value must resolve to a real jumpdest.
// Jumps without a preceding PUSH are left for the interpreter to check at
// runtime.
func (a *Analysis) validateStaticJumps(table *opTable) error {
	code := a.runtimeCode
	for i := uint64(0); i < uint64(len(code)); i++ {
		if !a.bitmaps.IsOpStart(i) {
			continue
		}
		op := OpCode(code[i])
		if op != JUMP && op != JUMPI {
			continue
		}
		prevPC, prevOp, ok := a.precedingInstruction(i)
		if !ok {
			continue // no preceding instruction at all (jump is the first byte)
		}
		size := prevOp.PushSize()
		if size == 0 {
			continue // dynamic target, deferred to the interpreter
		}
		target, ok := a.ReadPushValue(prevPC, size)
		if !ok {
			continue
		}
		if !target.IsUint64() {
			return ErrInvalidJumpDestination
		}
		t := target.Uint64()
		if t >= uint64(len(code)) || !a.bitmaps.IsJumpdest(t) {
			return ErrInvalidJumpDestination
		}
	}
	_ = table
	return nil
}

// precedingInstruction returns the pc and opcode of the instruction whose
// bytes immediately precede pc, or false if pc is 0 or the nearest op_start
// before pc begins an instruction that does not end exactly at pc.
func (a *Analysis) precedingInstruction(pc uint64) (uint64, OpCode, bool) {
	if pc == 0 {
		return 0, 0, false
	}
	// Walk backward from the nearest op_start at or before pc-1. Runtime
	// code bitmaps make this an O(1) amortized scan in practice since PUSH
	// immediates are short; fall back to a bounded scan of 33 bytes (the
	// longest possible instruction, PUSH32) to stay linear overall.
	for back := uint64(1); back <= 33 && back <= pc; back++ {
		cand := pc - back
		if a.bitmaps.IsOpStart(cand) {
			op := OpCode(a.runtimeCode[cand])
			if cand+a.InstructionLength(cand) == pc {
				return cand, op, true
			}
			return 0, 0, false
		}
	}
	return 0, 0, false
}
