package vm

import "github.com/holiman/uint256"

// InstructionTag classifies one decoded instruction-stream record.
type InstructionTag uint8

const (
	TagBlockInfo InstructionTag = iota
	TagExec
	TagWord
	TagPC
	TagJumpPC
	TagCondJumpPC
	TagJumpUnresolved
	TagCondJumpUnresolved
	TagDynamicGas
	TagNoop
)

// sentinelIndex and sentinelPC mark "no instruction at this position" in
// pc_to_block_start and "no originating pc" in instruction_to_pc.
const (
	sentinelIndex = ^uint32(0)
	sentinelPC    = ^uint64(0)
)

// Instruction is one record of the decoded stream. Its interpretation
// depends on Tag:
//   - TagExec / TagDynamicGas: Op names the handler; A/B unused.
//   - TagWord: A indexes instructionStream.words.
//   - TagPC: A indexes instructionStream.pcValues.
//   - TagBlockInfo: A indexes instructionStream.blocks.
//   - TagJumpPC: A is the target instruction index.
//   - TagCondJumpPC: A is the taken-branch target index, B the fallthrough index.
//   - TagJumpUnresolved: resolved against the jumpdest bitmap at runtime.
//   - TagCondJumpUnresolved: B is the fallthrough index.
//   - TagNoop: B is the next instruction index (kept for symmetry; always idx+1).
type Instruction struct {
	Tag InstructionTag
	Op  OpCode
	A   uint32
	B   uint32
}

// instructionStream is the bounded, immutable decoded form of an Analysis
// artifact's runtime code, ready for tail-call dispatch.
type instructionStream struct {
	instructions []Instruction
	words        []uint256.Int
	blocks       []BlockInfo
	pcValues     []uint64

	pcToBlockStart  []uint32 // indexed by pc
	instructionToPC []uint64 // indexed by instruction index
}

// buildInstructionStream walks the validated runtime code of a and emits a
// bounded instruction stream, applying block-boundary insertion and the
// mandatory peephole rewrites.
func buildInstructionStream(a *Analysis, table *opTable, maxInstructions int, obs Observer) (*instructionStream, error) {
	code := a.runtimeCode
	s := &instructionStream{
		pcToBlockStart: make([]uint32, len(code)+1),
	}
	for i := range s.pcToBlockStart {
		s.pcToBlockStart[i] = sentinelIndex
	}

	acc := newBlockAccumulator()
	blockOpen := false
	openBlockInstrIdx := uint32(0)
	openBlockIdx := 0

	startNewBlock := func() {
		blockIdx := len(s.blocks)
		s.blocks = append(s.blocks, BlockInfo{})
		instrIdx := uint32(len(s.instructions))
		s.instructions = append(s.instructions, Instruction{Tag: TagBlockInfo, A: uint32(blockIdx)})
		s.instructionToPC = append(s.instructionToPC, sentinelPC)
		openBlockInstrIdx = instrIdx
		openBlockIdx = blockIdx
		blockOpen = true
		acc = newBlockAccumulator()
	}
	closeCurrentBlock := func() {
		info := acc.close()
		s.blocks[openBlockIdx] = info
		if obs != nil {
			obs.OnBlockClosed(info)
		}
		blockOpen = false
	}

	pc, ok := a.bitmaps.NextOpStart(0)
	for ok {
		op := OpCode(code[pc])
		info := table.info(op)
		dyn := info.Dynamic()
		atJumpdest := op == JUMPDEST

		if !blockOpen {
			startNewBlock()
		} else if atJumpdest || dyn {
			closeCurrentBlock()
			startNewBlock()
		}

		s.pcToBlockStart[pc] = openBlockInstrIdx

		acc.add(info.BaseGas, info.StackMin, info.StackDelta)

		instrIdx := uint32(len(s.instructions))
		var instr Instruction
		switch {
		case dyn:
			instr = Instruction{Tag: TagDynamicGas, Op: op}
		case op == PUSH0:
			widx := len(s.words)
			s.words = append(s.words, uint256.Int{})
			instr = Instruction{Tag: TagWord, Op: op, A: uint32(widx)}
		case op.PushSize() > 0:
			val, _ := a.ReadPushValue(pc, op.PushSize())
			widx := len(s.words)
			s.words = append(s.words, val)
			instr = Instruction{Tag: TagWord, Op: op, A: uint32(widx)}
		case op == PC:
			pidx := len(s.pcValues)
			s.pcValues = append(s.pcValues, pc)
			instr = Instruction{Tag: TagPC, A: uint32(pidx)}
		case op == JUMP:
			instr = Instruction{Tag: TagJumpUnresolved}
		case op == JUMPI:
			instr = Instruction{Tag: TagCondJumpUnresolved, B: instrIdx + 1}
		default:
			instr = Instruction{Tag: TagExec, Op: op}
		}
		s.instructions = append(s.instructions, instr)
		s.instructionToPC = append(s.instructionToPC, pc)

		if len(s.instructions) > maxInstructions {
			return nil, ErrTooManyInstructions
		}

		if info.Kind == KindTerminator || info.Kind == KindJump || op == JUMPI || dyn {
			closeCurrentBlock()
		}

		pc, ok = a.bitmaps.NextOpStart(pc + 1)
	}

	if blockOpen {
		closeCurrentBlock()
	}

	if len(s.instructions) == 0 || !lastInstructionTerminates(s, table) {
		if err := appendImplicitStop(s, maxInstructions, obs); err != nil {
			return nil, err
		}
	}

	applyPeepholeRewrites(s)

	return s, nil
}

// lastInstructionTerminates reports whether the final non-block-info
// instruction in the stream is a terminator.
func lastInstructionTerminates(s *instructionStream, table *opTable) bool {
	for i := len(s.instructions) - 1; i >= 0; i-- {
		instr := s.instructions[i]
		if instr.Tag == TagBlockInfo {
			continue
		}
		if instr.Tag == TagExec {
			return table.info(instr.Op).Kind == KindTerminator
		}
		return instr.Tag == TagJumpUnresolved
	}
	return false
}

// appendImplicitStop appends a fresh single-instruction block containing
// STOP, for code whose final instruction falls through without
// terminating. It closes no block: the caller has already closed any block
// left open.
func appendImplicitStop(s *instructionStream, maxInstructions int, obs Observer) error {
	blockIdx := len(s.blocks)
	s.blocks = append(s.blocks, BlockInfo{})
	s.instructions = append(s.instructions, Instruction{Tag: TagBlockInfo, A: uint32(blockIdx)})
	s.instructionToPC = append(s.instructionToPC, sentinelPC)

	s.instructions = append(s.instructions, Instruction{Tag: TagExec, Op: STOP})
	s.instructionToPC = append(s.instructionToPC, sentinelPC)

	info := BlockInfo{GasCost: GasZero}
	s.blocks[blockIdx] = info
	if obs != nil {
		obs.OnBlockClosed(info)
	}
	if len(s.instructions) > maxInstructions {
		return ErrTooManyInstructions
	}
	return nil
}

// applyPeepholeRewrites mutates the instruction array in place:
//   - PUSHn v ; JUMP        -> JUMP_PC{target}; PUSH neutralized to NOOP
//   - PUSHn v ; JUMPI       -> COND_JUMP_PC{target,next}; PUSH neutralized
//   - PUSHn v ; POP         -> both dropped (NOOP)
//   - DUP1 ; PUSH0 ; EQ     -> ISZERO, other two dropped (NOOP)
//   - DUP1 ; POP            -> both dropped (NOOP)
//
// All rewrites preserve index stability: a slot is replaced, never removed,
// so pc_to_block_start / instruction_to_pc and any jump target already
// resolved to an index remain valid.
func applyPeepholeRewrites(s *instructionStream) {
	n := len(s.instructions)
	i := 0
	for i < n {
		cur := s.instructions[i]

		if i+2 < n && isExec(cur, DUP1) && isPush0(s, s.instructions[i+1]) && isExec(s.instructions[i+2], EQ) {
			s.instructions[i] = Instruction{Tag: TagExec, Op: ISZERO}
			s.instructions[i+1] = noop(uint32(i + 2))
			s.instructions[i+2] = noop(uint32(i + 3))
			i += 3
			continue
		}

		if i+1 < n && isExec(cur, DUP1) && isExec(s.instructions[i+1], POP) {
			s.instructions[i] = noop(uint32(i + 1))
			s.instructions[i+1] = noop(uint32(i + 2))
			i += 2
			continue
		}

		if cur.Tag == TagWord && i+1 < n {
			next := s.instructions[i+1]
			if next.Tag == TagExec && next.Op == POP {
				s.instructions[i] = noop(uint32(i + 1))
				s.instructions[i+1] = noop(uint32(i + 2))
				i += 2
				continue
			}
			if next.Tag == TagJumpUnresolved || next.Tag == TagCondJumpUnresolved {
				if target, ok := resolvedJumpTarget(s, cur); ok {
					if next.Tag == TagJumpUnresolved {
						s.instructions[i+1] = Instruction{Tag: TagJumpPC, A: target}
					} else {
						s.instructions[i+1] = Instruction{Tag: TagCondJumpPC, A: target, B: uint32(i + 2)}
					}
					s.instructions[i] = noop(uint32(i + 1))
					i += 2
					continue
				}
			}
		}

		i++
	}
}

func noop(next uint32) Instruction { return Instruction{Tag: TagNoop, B: next} }

func isExec(instr Instruction, op OpCode) bool {
	return instr.Tag == TagExec && instr.Op == op
}

func isPush0(s *instructionStream, instr Instruction) bool {
	if instr.Tag != TagWord || instr.Op != PUSH0 {
		return false
	}
	return s.words[instr.A].IsZero()
}

// resolvedJumpTarget looks up the BLOCK_INFO instruction index of the
// block a pushed word's value would jump into. Every JUMPDEST opens a
// fresh block, so this always lands just before the JUMPDEST's own EXEC
// record — landing on the BLOCK_INFO itself, not past it, is what makes a
// loop back to the same JUMPDEST re-charge that block's gas and re-check
// its stack bounds on every iteration. Analysis pass 3 has already proven
// the value is a valid jumpdest whenever it precedes a JUMP or JUMPI, so a
// sentinel index here would indicate an analyzer defect rather than
// malformed bytecode.
func resolvedJumpTarget(s *instructionStream, word Instruction) (uint32, bool) {
	v := s.words[word.A]
	if !v.IsUint64() {
		return 0, false
	}
	pc := v.Uint64()
	if pc >= uint64(len(s.pcToBlockStart)) {
		return 0, false
	}
	idx := s.pcToBlockStart[pc]
	return idx, idx != sentinelIndex
}
