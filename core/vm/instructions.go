package vm

import (
	"github.com/holiman/uint256"

	"github.com/lattice-evm/evmcore/core/types"
)

// execHandler implements a TagExec instruction: it reads/writes the
// frame's stack and memory, optionally talks to host, and reports whether
// execution should stop (STOP/RETURN/REVERT/SELFDESTRUCT) along with any
// output bytes.
type execHandler func(f *Frame, host Host) (out []byte, done bool, err error)

// chargeGas subtracts cost from the frame's remaining gas, failing with
// ErrOutOfGas if insufficient. Block-level base costs are already deducted
// by the BLOCK_INFO handler; this covers the variable portion an EXEC
// handler computes from runtime operands (memory expansion, copy length).
func (f *Frame) chargeGas(cost uint64) error {
	if f.Gas < cost {
		return ErrOutOfGas
	}
	f.Gas -= cost
	return nil
}

func (f *Frame) ensureMemory(offset, size uint64) error {
	if size == 0 {
		return nil
	}
	cost, err := f.Memory.EnsureCapacity(offset + size)
	if err != nil {
		return err
	}
	return f.chargeGas(cost)
}

var execHandlers map[OpCode]execHandler

func init() {
	execHandlers = map[OpCode]execHandler{
		STOP: func(f *Frame, h Host) ([]byte, bool, error) { return nil, true, nil },

		ADD:    binOp(func(z, x, y *uint256.Int) { z.Add(x, y) }),
		MUL:    binOp(func(z, x, y *uint256.Int) { z.Mul(x, y) }),
		SUB:    binOp(func(z, x, y *uint256.Int) { z.Sub(x, y) }),
		DIV:    binOp(func(z, x, y *uint256.Int) { z.Div(x, y) }),
		SDIV:   binOp(func(z, x, y *uint256.Int) { z.SDiv(x, y) }),
		MOD:    binOp(func(z, x, y *uint256.Int) { z.Mod(x, y) }),
		SMOD:   binOp(func(z, x, y *uint256.Int) { z.SMod(x, y) }),
		EXP:    binOp(func(z, x, y *uint256.Int) { z.Exp(x, y) }),
		SIGNEXTEND: binOp(func(z, x, y *uint256.Int) { z.ExtendSign(y, x) }),

		LT:     binOp(func(z, x, y *uint256.Int) { boolToWord(z, x.Lt(y)) }),
		GT:     binOp(func(z, x, y *uint256.Int) { boolToWord(z, x.Gt(y)) }),
		SLT:    binOp(func(z, x, y *uint256.Int) { boolToWord(z, x.Slt(y)) }),
		SGT:    binOp(func(z, x, y *uint256.Int) { boolToWord(z, x.Sgt(y)) }),
		EQ:     binOp(func(z, x, y *uint256.Int) { boolToWord(z, x.Eq(y)) }),
		AND:    binOp(func(z, x, y *uint256.Int) { z.And(x, y) }),
		OR:     binOp(func(z, x, y *uint256.Int) { z.Or(x, y) }),
		XOR:    binOp(func(z, x, y *uint256.Int) { z.Xor(x, y) }),
		BYTE:   binOp(func(z, x, y *uint256.Int) { z.Set(y); z.Byte(x) }),
		SHL:    binOp(func(z, x, y *uint256.Int) { z.Lsh(y, uint(shiftAmount(x))) }),
		SHR:    binOp(func(z, x, y *uint256.Int) { z.Rsh(y, uint(shiftAmount(x))) }),
		SAR:    binOp(func(z, x, y *uint256.Int) { z.SRsh(y, uint(shiftAmount(x))) }),

		ISZERO: unOp(func(z, x *uint256.Int) { boolToWord(z, x.IsZero()) }),
		NOT:    unOp(func(z, x *uint256.Int) { z.Not(x) }),

		ADDMOD: triOp(func(z, x, y, m *uint256.Int) { z.AddMod(x, y, m) }),
		MULMOD: triOp(func(z, x, y, m *uint256.Int) { z.MulMod(x, y, m) }),

		POP: func(f *Frame, h Host) ([]byte, bool, error) { f.Stack.Pop(); return nil, false, nil },

		MLOAD: func(f *Frame, h Host) ([]byte, bool, error) {
			offset := f.Stack.Pop()
			off := offset.Uint64()
			if err := f.ensureMemory(off, 32); err != nil {
				return nil, false, err
			}
			var v uint256.Int
			v.SetBytes(f.Memory.GetPtr(off, 32))
			f.Stack.Push(v)
			return nil, false, nil
		},
		MSTORE: func(f *Frame, h Host) ([]byte, bool, error) {
			offset := f.Stack.Pop()
			val := f.Stack.Pop()
			off := offset.Uint64()
			if err := f.ensureMemory(off, 32); err != nil {
				return nil, false, err
			}
			f.Memory.Set32(off, &val)
			return nil, false, nil
		},
		MSTORE8: func(f *Frame, h Host) ([]byte, bool, error) {
			offset := f.Stack.Pop()
			val := f.Stack.Pop()
			off := offset.Uint64()
			if err := f.ensureMemory(off, 1); err != nil {
				return nil, false, err
			}
			f.Memory.Set(off, []byte{byte(val.Uint64())})
			return nil, false, nil
		},
		MSIZE: func(f *Frame, h Host) ([]byte, bool, error) {
			var v uint256.Int
			v.SetUint64(uint64(f.Memory.Len()))
			f.Stack.Push(v)
			return nil, false, nil
		},
		MCOPY: func(f *Frame, h Host) ([]byte, bool, error) {
			dst := f.Stack.Pop()
			src := f.Stack.Pop()
			size := f.Stack.Pop()
			n := size.Uint64()
			d, s := dst.Uint64(), src.Uint64()
			grow := d
			if s > grow {
				grow = s
			}
			if err := f.ensureMemory(grow, n); err != nil {
				return nil, false, err
			}
			if err := f.chargeGas(GasMcopyWord * toWordCount(n)); err != nil {
				return nil, false, err
			}
			copy(f.Memory.GetPtr(d, n), f.Memory.GetPtr(s, n))
			return nil, false, nil
		},
		TLOAD: func(f *Frame, h Host) ([]byte, bool, error) {
			// Transient storage shares the Host's SetStorage/GetStorage
			// journal surface in this package; a production Host keeps it
			// in a separate per-transaction map that clears at tx end.
			key := f.Stack.Pop()
			kh := wordToHash(key)
			v := h.GetStorage(f.Address, kh)
			var out uint256.Int
			out.SetBytes(v[:])
			f.Stack.Push(out)
			return nil, false, nil
		},
		TSTORE: func(f *Frame, h Host) ([]byte, bool, error) {
			if f.IsStatic {
				return nil, false, ErrWriteInStatic
			}
			key := f.Stack.Pop()
			val := f.Stack.Pop()
			h.SetStorage(f.Address, wordToHash(key), wordToHash(val))
			return nil, false, nil
		},

		ADDRESS: pushAddr(func(f *Frame, h Host) types.Address { return f.Address }),
		ORIGIN:  pushAddr(func(f *Frame, h Host) types.Address { return h.GetTxOrigin() }),
		CALLER:  pushAddr(func(f *Frame, h Host) types.Address { return f.Caller }),
		CALLVALUE: func(f *Frame, h Host) ([]byte, bool, error) {
			f.Stack.Push(f.Value)
			return nil, false, nil
		},
		CALLDATASIZE: func(f *Frame, h Host) ([]byte, bool, error) {
			var v uint256.Int
			v.SetUint64(uint64(len(f.Input)))
			f.Stack.Push(v)
			return nil, false, nil
		},
		CALLDATALOAD: func(f *Frame, h Host) ([]byte, bool, error) {
			offset := f.Stack.Pop()
			off := offset.Uint64()
			var buf [32]byte
			if off < uint64(len(f.Input)) {
				copy(buf[:], f.Input[off:])
			}
			var v uint256.Int
			v.SetBytes(buf[:])
			f.Stack.Push(v)
			return nil, false, nil
		},
		CALLDATACOPY: func(f *Frame, h Host) ([]byte, bool, error) {
			return copyToMemory(f, f.Input)
		},
		CODESIZE: func(f *Frame, h Host) ([]byte, bool, error) {
			var v uint256.Int
			v.SetUint64(uint64(len(f.Analysis.RuntimeCode())))
			f.Stack.Push(v)
			return nil, false, nil
		},
		CODECOPY: func(f *Frame, h Host) ([]byte, bool, error) {
			return copyToMemory(f, f.Analysis.RuntimeCode())
		},
		GASPRICE: func(f *Frame, h Host) ([]byte, bool, error) {
			v := h.GetGasPrice()
			f.Stack.Push(v)
			return nil, false, nil
		},
		RETURNDATASIZE: func(f *Frame, h Host) ([]byte, bool, error) {
			var v uint256.Int
			v.SetUint64(uint64(len(f.ReturnData)))
			f.Stack.Push(v)
			return nil, false, nil
		},
		RETURNDATACOPY: func(f *Frame, h Host) ([]byte, bool, error) {
			return copyToMemory(f, f.ReturnData)
		},
		BLOCKHASH: func(f *Frame, h Host) ([]byte, bool, error) {
			n := f.Stack.Pop()
			hash := h.GetBlockHash(n.Uint64())
			var v uint256.Int
			v.SetBytes(hash[:])
			f.Stack.Push(v)
			return nil, false, nil
		},
		COINBASE: func(f *Frame, h Host) ([]byte, bool, error) {
			return pushAddr(func(f *Frame, h Host) types.Address { return h.GetBlockInfo().Coinbase })(f, h)
		},
		TIMESTAMP: func(f *Frame, h Host) ([]byte, bool, error) {
			var v uint256.Int
			v.SetUint64(h.GetBlockInfo().Timestamp)
			f.Stack.Push(v)
			return nil, false, nil
		},
		NUMBER: func(f *Frame, h Host) ([]byte, bool, error) {
			var v uint256.Int
			v.SetUint64(h.GetBlockInfo().Number)
			f.Stack.Push(v)
			return nil, false, nil
		},
		PREVRANDAO: func(f *Frame, h Host) ([]byte, bool, error) {
			bi := h.GetBlockInfo()
			f.Stack.Push(bi.Difficulty)
			return nil, false, nil
		},
		GASLIMIT: func(f *Frame, h Host) ([]byte, bool, error) {
			var v uint256.Int
			v.SetUint64(h.GetBlockInfo().GasLimit)
			f.Stack.Push(v)
			return nil, false, nil
		},
		CHAINID: func(f *Frame, h Host) ([]byte, bool, error) {
			v := h.GetChainID()
			f.Stack.Push(v)
			return nil, false, nil
		},
		SELFBALANCE: func(f *Frame, h Host) ([]byte, bool, error) {
			v := h.GetBalance(f.Address)
			f.Stack.Push(v)
			return nil, false, nil
		},
		BASEFEE: func(f *Frame, h Host) ([]byte, bool, error) {
			f.Stack.Push(h.GetBlockInfo().BaseFee)
			return nil, false, nil
		},
		BLOBHASH: func(f *Frame, h Host) ([]byte, bool, error) {
			i := f.Stack.Pop()
			hash := h.GetBlobHash(int(i.Uint64()))
			var v uint256.Int
			v.SetBytes(hash[:])
			f.Stack.Push(v)
			return nil, false, nil
		},
		BLOBBASEFEE: func(f *Frame, h Host) ([]byte, bool, error) {
			f.Stack.Push(h.GetBlobBaseFee())
			return nil, false, nil
		},

		PUSH0:    func(f *Frame, h Host) ([]byte, bool, error) { f.Stack.Push(uint256.Int{}); return nil, false, nil },
		JUMPDEST: func(f *Frame, h Host) ([]byte, bool, error) { return nil, false, nil },

		RETURN: func(f *Frame, h Host) ([]byte, bool, error) {
			offset := f.Stack.Pop()
			size := f.Stack.Pop()
			n := size.Uint64()
			off := offset.Uint64()
			if err := f.ensureMemory(off, n); err != nil {
				return nil, false, err
			}
			return f.Memory.GetCopy(off, n), true, nil
		},
		REVERT: func(f *Frame, h Host) ([]byte, bool, error) {
			offset := f.Stack.Pop()
			size := f.Stack.Pop()
			n := size.Uint64()
			off := offset.Uint64()
			if err := f.ensureMemory(off, n); err != nil {
				return nil, false, err
			}
			return f.Memory.GetCopy(off, n), true, nil
		},
		SELFDESTRUCT: func(f *Frame, h Host) ([]byte, bool, error) {
			if f.IsStatic {
				return nil, false, ErrWriteInStatic
			}
			recipientWord := f.Stack.Pop()
			recipient := wordToAddress(recipientWord)
			h.MarkForDestruction(f.Address, recipient)
			return nil, true, nil
		},
	}

	// PUSH1..32 never reach execHandlers: the stream builder always tags
	// them TagWord and resolves them through the words payload table.
	for i := 0; i < 16; i++ {
		n := i
		execHandlers[DUP1+OpCode(i)] = func(f *Frame, h Host) ([]byte, bool, error) {
			f.Stack.Dup(n)
			return nil, false, nil
		}
		execHandlers[SWAP1+OpCode(i)] = func(f *Frame, h Host) ([]byte, bool, error) {
			f.Stack.Swap(n)
			return nil, false, nil
		}
	}
	for i := 0; i <= 4; i++ {
		topicCount := i
		execHandlers[LOG0+OpCode(i)] = func(f *Frame, h Host) ([]byte, bool, error) {
			if f.IsStatic {
				return nil, false, ErrWriteInStatic
			}
			offset := f.Stack.Pop()
			size := f.Stack.Pop()
			topics := make([]types.Hash, topicCount)
			for t := 0; t < topicCount; t++ {
				w := f.Stack.Pop()
				topics[t] = wordToHash(w)
			}
			n := size.Uint64()
			off := offset.Uint64()
			if err := f.ensureMemory(off, n); err != nil {
				return nil, false, err
			}
			if err := f.chargeGas(GasLogTopic*uint64(topicCount) + GasLogData*n); err != nil {
				return nil, false, err
			}
			data := f.Memory.GetCopy(off, n)
			h.EmitLog(f.Address, topics, data)
			return nil, false, nil
		}
	}
}

// binOp pops the top two stack items, left first (most recently pushed)
// then right, and calls f(z, left, right) — matching the Yellow Paper's
// convention that μs[0] is the left-hand operand of the opcode's formula.
func binOp(f func(z, left, right *uint256.Int)) execHandler {
	return func(fr *Frame, h Host) ([]byte, bool, error) {
		left := fr.Stack.Pop()
		right := fr.Stack.Pop()
		var z uint256.Int
		f(&z, &left, &right)
		fr.Stack.Push(z)
		return nil, false, nil
	}
}

func unOp(f func(z, x *uint256.Int)) execHandler {
	return func(fr *Frame, h Host) ([]byte, bool, error) {
		x := fr.Stack.Pop()
		var z uint256.Int
		f(&z, &x)
		fr.Stack.Push(z)
		return nil, false, nil
	}
}

func triOp(f func(z, x, y, m *uint256.Int)) execHandler {
	return func(fr *Frame, h Host) ([]byte, bool, error) {
		x := fr.Stack.Pop()
		y := fr.Stack.Pop()
		m := fr.Stack.Pop()
		var z uint256.Int
		f(&z, &x, &y, &m)
		fr.Stack.Push(z)
		return nil, false, nil
	}
}

func pushAddr(get func(f *Frame, h Host) types.Address) execHandler {
	return func(f *Frame, h Host) ([]byte, bool, error) {
		addr := get(f, h)
		var v uint256.Int
		v.SetBytes(addr[:])
		f.Stack.Push(v)
		return nil, false, nil
	}
}

func copyToMemory(f *Frame, src []byte) ([]byte, bool, error) {
	destOffset := f.Stack.Pop()
	srcOffset := f.Stack.Pop()
	size := f.Stack.Pop()
	n := size.Uint64()
	d := destOffset.Uint64()
	s := srcOffset.Uint64()
	if err := f.ensureMemory(d, n); err != nil {
		return nil, false, err
	}
	if err := f.chargeGas(GasCopyWord * toWordCount(n)); err != nil {
		return nil, false, err
	}
	buf := make([]byte, n)
	if s < uint64(len(src)) {
		copy(buf, src[s:])
	}
	f.Memory.Set(d, buf)
	return nil, false, nil
}

func boolToWord(z *uint256.Int, b bool) {
	if b {
		z.SetOne()
	} else {
		z.Clear()
	}
}

func shiftAmount(x *uint256.Int) uint64 {
	if !x.IsUint64() || x.Uint64() > 255 {
		return 256
	}
	return x.Uint64()
}

func wordToHash(w uint256.Int) types.Hash {
	b := w.Bytes32()
	return types.Hash(b)
}

func wordToAddress(w uint256.Int) types.Address {
	b := w.Bytes20()
	return types.Address(b)
}
