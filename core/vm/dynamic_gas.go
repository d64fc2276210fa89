package vm

import (
	"github.com/holiman/uint256"

	"github.com/lattice-evm/evmcore/core/types"
	"github.com/lattice-evm/evmcore/crypto"
)

// dynamicGasHandler implements a TagDynamicGas instruction: GAS, the CALL
// and CREATE families, SSTORE, SLOAD, KECCAK256, and the EIP-2929
// address-warmth opcodes (BALANCE/EXTCODESIZE/EXTCODECOPY/EXTCODEHASH).
// Each is responsible for computing and charging its own runtime-dependent
// gas on top of the block's already-deducted base cost.
type dynamicGasHandler func(in *Interpreter, f *Frame, host Host) (out []byte, done bool, err error)

var dynamicGasHandlers map[OpCode]dynamicGasHandler

func init() {
	dynamicGasHandlers = map[OpCode]dynamicGasHandler{
		GAS: func(in *Interpreter, f *Frame, h Host) ([]byte, bool, error) {
			var v uint256.Int
			v.SetUint64(f.Gas)
			f.Stack.Push(v)
			return nil, false, nil
		},

		KECCAK256: func(in *Interpreter, f *Frame, h Host) ([]byte, bool, error) {
			offset := f.Stack.Pop()
			size := f.Stack.Pop()
			off, n := offset.Uint64(), size.Uint64()
			if err := f.ensureMemory(off, n); err != nil {
				return nil, false, err
			}
			if err := f.chargeGas(GasKeccak256Word * toWordCount(n)); err != nil {
				return nil, false, err
			}
			hash := crypto.Keccak256(f.Memory.GetPtr(off, n))
			var v uint256.Int
			v.SetBytes(hash[:])
			f.Stack.Push(v)
			return nil, false, nil
		},

		BALANCE: func(in *Interpreter, f *Frame, h Host) ([]byte, bool, error) {
			addrWord := f.Stack.Pop()
			addr := wordToAddress(addrWord)
			if err := f.chargeGas(h.AccessAddress(addr)); err != nil {
				return nil, false, err
			}
			v := h.GetBalance(addr)
			f.Stack.Push(v)
			return nil, false, nil
		},
		EXTCODESIZE: func(in *Interpreter, f *Frame, h Host) ([]byte, bool, error) {
			addrWord := f.Stack.Pop()
			addr := wordToAddress(addrWord)
			if err := f.chargeGas(h.AccessAddress(addr)); err != nil {
				return nil, false, err
			}
			var v uint256.Int
			v.SetUint64(uint64(len(h.GetCode(addr))))
			f.Stack.Push(v)
			return nil, false, nil
		},
		EXTCODEHASH: func(in *Interpreter, f *Frame, h Host) ([]byte, bool, error) {
			addrWord := f.Stack.Pop()
			addr := wordToAddress(addrWord)
			if err := f.chargeGas(h.AccessAddress(addr)); err != nil {
				return nil, false, err
			}
			hash := h.GetCodeHash(addr)
			var v uint256.Int
			v.SetBytes(hash[:])
			f.Stack.Push(v)
			return nil, false, nil
		},
		EXTCODECOPY: func(in *Interpreter, f *Frame, h Host) ([]byte, bool, error) {
			addrWord := f.Stack.Pop()
			addr := wordToAddress(addrWord)
			if err := f.chargeGas(h.AccessAddress(addr)); err != nil {
				return nil, false, err
			}
			return copyToMemory(f, h.GetCode(addr))
		},

		SLOAD: func(in *Interpreter, f *Frame, h Host) ([]byte, bool, error) {
			key := f.Stack.Pop()
			kh := wordToHash(key)
			if err := f.chargeGas(h.AccessStorageSlot(f.Address, kh)); err != nil {
				return nil, false, err
			}
			v := h.GetStorage(f.Address, kh)
			var out uint256.Int
			out.SetBytes(v[:])
			f.Stack.Push(out)
			return nil, false, nil
		},
		SSTORE: func(in *Interpreter, f *Frame, h Host) ([]byte, bool, error) {
			if f.IsStatic {
				return nil, false, ErrWriteInStatic
			}
			key := f.Stack.Pop()
			val := f.Stack.Pop()
			kh := wordToHash(key)
			if err := f.chargeGas(h.AccessStorageSlot(f.Address, kh)); err != nil {
				return nil, false, err
			}
			current := h.GetStorage(f.Address, kh)
			vh := wordToHash(val)
			cost := sstoreCost(current, vh)
			if err := f.chargeGas(cost); err != nil {
				return nil, false, err
			}
			h.SetStorage(f.Address, kh, vh)
			return nil, false, nil
		},

		CALL:         makeCallHandler(CallKindCall),
		CALLCODE:     makeCallHandler(CallKindCallCode),
		DELEGATECALL: makeCallHandler(CallKindDelegateCall),
		STATICCALL:   makeCallHandler(CallKindStaticCall),

		CREATE:  makeCreateHandler(CallKindCreate),
		CREATE2: makeCreateHandler(CallKindCreate2),
	}
}

// sstoreCost implements the EIP-2200/3529 tri-state SSTORE schedule: a
// zero-to-nonzero write is the expensive "set" case, any other change is
// a cheaper "reset", and writing the existing value back is a no-op read.
// Refund accounting (clearing a slot to zero) is tracked by Host, which
// owns the per-transaction refund counter; this function only returns the
// upfront gas charge.
func sstoreCost(current, value types.Hash) uint64 {
	if current == value {
		return GasSloadWarmEIP2929
	}
	if current.IsZero() {
		return GasSstoreSet
	}
	return GasSstoreReset
}

// makeCallHandler builds the dynamic-gas handler for one CALL-family
// opcode. Stack layout mirrors the Yellow Paper: gas, address[, value],
// argsOffset, argsSize, retOffset, retSize (value is absent for
// DELEGATECALL/STATICCALL). STATICCALL forces IsStatic on the child; the
// other kinds pass the caller's IsStatic through unchanged.
func makeCallHandler(kind CallKind) dynamicGasHandler {
	hasValue := kind == CallKindCall || kind == CallKindCallCode
	return func(in *Interpreter, f *Frame, h Host) ([]byte, bool, error) {
		gasWord := f.Stack.Pop()
		addrWord := f.Stack.Pop()
		addr := wordToAddress(addrWord)

		var value uint256.Int
		if hasValue {
			value = f.Stack.Pop()
		}

		argsOffset := f.Stack.Pop()
		argsSize := f.Stack.Pop()
		retOffset := f.Stack.Pop()
		retSize := f.Stack.Pop()

		argOff, argN := argsOffset.Uint64(), argsSize.Uint64()
		retOff, retN := retOffset.Uint64(), retSize.Uint64()

		grow := argOff + argN
		if g := retOff + retN; g > grow {
			grow = g
		}
		if err := f.ensureMemory(0, grow); err != nil {
			return nil, false, err
		}

		accessCost := h.AccessAddress(addr)
		var transferCost uint64
		if hasValue && !value.IsZero() {
			transferCost = GasCallValue
			if !h.AccountExists(addr) {
				transferCost += GasCallNewAccount
			}
		}
		if err := f.chargeGas(accessCost + transferCost); err != nil {
			return nil, false, err
		}

		// EIP-150: at most all but one 64th of the gas remaining after the
		// access/transfer surcharge above may be forwarded to the child call.
		callGas := gasWord.Uint64()
		maxForwardable := f.Gas - f.Gas/64
		if callGas > maxForwardable {
			callGas = maxForwardable
		}
		stipend := uint64(0)
		if transferCost > 0 {
			stipend = GasCallStipend
		}
		if err := f.chargeGas(callGas); err != nil {
			return nil, false, err
		}

		caller := f.Address
		if kind == CallKindDelegateCall {
			caller = f.Caller
		}
		callValue := value
		if kind == CallKindDelegateCall {
			callValue = f.Value
		}
		isStatic := f.IsStatic || kind == CallKindStaticCall

		result := h.InnerCall(CallParams{
			Kind:     kind,
			Caller:   caller,
			Address:  addr,
			Value:    callValue,
			Input:    f.Memory.GetCopy(argOff, argN),
			Gas:      callGas + stipend,
			IsStatic: isStatic,
		})

		f.Gas += result.GasRemaining
		f.ReturnData = result.ReturnData
		if retN > 0 {
			n := retN
			if uint64(len(result.ReturnData)) < n {
				n = uint64(len(result.ReturnData))
			}
			f.Memory.Set(retOff, result.ReturnData[:n])
		}

		var success uint256.Int
		boolToWord(&success, result.Success)
		f.Stack.Push(success)
		return nil, false, nil
	}
}

// makeCreateHandler builds the dynamic-gas handler for CREATE/CREATE2.
func makeCreateHandler(kind CallKind) dynamicGasHandler {
	return func(in *Interpreter, f *Frame, h Host) ([]byte, bool, error) {
		if f.IsStatic {
			return nil, false, ErrWriteInStatic
		}
		value := f.Stack.Pop()
		offset := f.Stack.Pop()
		size := f.Stack.Pop()
		var salt uint256.Int
		if kind == CallKindCreate2 {
			salt = f.Stack.Pop()
		}

		off, n := offset.Uint64(), size.Uint64()
		if err := f.ensureMemory(off, n); err != nil {
			return nil, false, err
		}

		initcodeCost := CalculateInitcodeGas(int(n))
		extra := initcodeCost
		if kind == CallKindCreate2 {
			extra += GasCreate2Word * toWordCount(n)
		}
		if err := f.chargeGas(extra); err != nil {
			return nil, false, err
		}

		result := h.InnerCall(CallParams{
			Kind:    kind,
			Caller:  f.Address,
			Value:   value,
			Input:   f.Memory.GetCopy(off, n),
			Gas:     f.Gas,
			Salt:    salt,
		})

		f.Gas = result.GasRemaining
		f.ReturnData = result.ReturnData

		var pushed uint256.Int
		if result.Success {
			pushed.SetBytes(result.CreatedAddr[:])
		}
		f.Stack.Push(pushed)
		return nil, false, nil
	}
}
