package vm

import (
	"bytes"
	"testing"

	"github.com/holiman/uint256"

	"github.com/lattice-evm/evmcore/core/types"
)

func runCode(t *testing.T, code []byte, gas uint64) ([]byte, error) {
	t.Helper()
	cfg := Config{}
	a, err := Analyze(code, Latest, cfg)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	in := NewInterpreter(cfg)
	pool := newFramePool(cfg.effectiveMaxMemory())
	f := pool.get(a, types.Address{}, types.Address{}, uint256.Int{}, nil, false, 0, gas)
	defer pool.put(f)
	return in.Run(a, f, newTestHost())
}

func TestInterpreterMstoreReturn(t *testing.T) {
	// PUSH1 0x2a PUSH1 0x00 MSTORE PUSH1 0x20 PUSH1 0x00 RETURN
	code := []byte{
		byte(PUSH1), 0x2a,
		byte(PUSH1), 0x00,
		byte(MSTORE),
		byte(PUSH1), 0x20,
		byte(PUSH1), 0x00,
		byte(RETURN),
	}
	out, err := runCode(t, code, 100000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var want [32]byte
	want[31] = 0x2a
	if !bytes.Equal(out, want[:]) {
		t.Fatalf("output = %x, want %x", out, want)
	}
}

func TestInterpreterResolvedJump(t *testing.T) {
	// Jumps over an unreachable STOP straight to a JUMPDEST at pc 4.
	code := []byte{
		byte(PUSH1), 0x04, // pc0-1
		byte(JUMP), // pc2
		byte(STOP), // pc3 (skipped, proves the jump actually took effect)
		byte(JUMPDEST), // pc4
		byte(PUSH1), 0x01,
		byte(PUSH1), 0x00,
		byte(MSTORE),
		byte(PUSH1), 0x20,
		byte(PUSH1), 0x00,
		byte(RETURN),
	}
	out, err := runCode(t, code, 100000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var want [32]byte
	want[31] = 0x01
	if !bytes.Equal(out, want[:]) {
		t.Fatalf("output = %x, want %x", out, want)
	}
}

func TestInterpreterUnresolvedJumpToInvalidDestination(t *testing.T) {
	// PUSH1 0x00 CALLDATALOAD JUMP: target comes from calldata, so analysis
	// can't validate it — must fail at runtime instead.
	code := []byte{byte(PUSH1), 0x00, byte(CALLDATALOAD), byte(JUMP)}
	cfg := Config{}
	a, err := Analyze(code, Latest, cfg)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	in := NewInterpreter(cfg)
	pool := newFramePool(cfg.effectiveMaxMemory())
	// Calldata of all 0xff bytes decodes to a huge word, certainly not a
	// valid in-bounds jumpdest.
	input := bytes.Repeat([]byte{0xff}, 32)
	f := pool.get(a, types.Address{}, types.Address{}, uint256.Int{}, input, false, 0, 100000)
	defer pool.put(f)

	_, err = in.Run(a, f, newTestHost())
	if err != ErrInvalidJump {
		t.Fatalf("err = %v, want ErrInvalidJump", err)
	}
}

func TestInterpreterOutOfGasLoop(t *testing.T) {
	// JUMPDEST PUSH1 0x00 JUMP (infinite loop back to pc0), with just
	// enough gas for a handful of iterations before running out.
	code := []byte{
		byte(JUMPDEST),
		byte(PUSH1), 0x00,
		byte(JUMP),
	}
	_, err := runCode(t, code, 50)
	if err != ErrOutOfGas {
		t.Fatalf("err = %v, want ErrOutOfGas", err)
	}
}

func TestInterpreterRevertReturnsDataAndError(t *testing.T) {
	// PUSH1 0x01 PUSH1 0x00 MSTORE8 PUSH1 0x01 PUSH1 0x00 REVERT
	code := []byte{
		byte(PUSH1), 0x01,
		byte(PUSH1), 0x00,
		byte(MSTORE8),
		byte(PUSH1), 0x01,
		byte(PUSH1), 0x00,
		byte(REVERT),
	}
	out, err := runCode(t, code, 100000)
	if err != ErrExecutionReverted {
		t.Fatalf("err = %v, want ErrExecutionReverted", err)
	}
	if !bytes.Equal(out, []byte{0x01}) {
		t.Fatalf("revert data = %x, want 01", out)
	}
}

func TestInterpreterStackUnderflowCaughtAtBlockEntry(t *testing.T) {
	code := []byte{byte(ADD), byte(STOP)}
	_, err := runCode(t, code, 100000)
	if err != ErrStackUnderflow {
		t.Fatalf("err = %v, want ErrStackUnderflow", err)
	}
}

func TestInterpreterSstoreThroughHost(t *testing.T) {
	// PUSH1 0x2a PUSH1 0x00 SSTORE STOP
	code := []byte{
		byte(PUSH1), 0x2a,
		byte(PUSH1), 0x00,
		byte(SSTORE),
		byte(STOP),
	}
	cfg := Config{}
	a, err := Analyze(code, Latest, cfg)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	in := NewInterpreter(cfg)
	pool := newFramePool(cfg.effectiveMaxMemory())
	addr := types.Address{1}
	f := pool.get(a, addr, types.Address{}, uint256.Int{}, nil, false, 0, 100000)
	defer pool.put(f)

	host := newTestHost()
	if _, err := in.Run(a, f, host); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := host.GetStorage(addr, types.Hash{})
	want := types.BytesToHash([]byte{0x2a})
	if got != want {
		t.Fatalf("storage[0] = %x, want %x", got, want)
	}
}

func TestInterpreterSstoreRejectedInStaticContext(t *testing.T) {
	code := []byte{
		byte(PUSH1), 0x2a,
		byte(PUSH1), 0x00,
		byte(SSTORE),
		byte(STOP),
	}
	cfg := Config{}
	a, err := Analyze(code, Latest, cfg)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	in := NewInterpreter(cfg)
	pool := newFramePool(cfg.effectiveMaxMemory())
	f := pool.get(a, types.Address{}, types.Address{}, uint256.Int{}, nil, true, 0, 100000)
	defer pool.put(f)

	_, err = in.Run(a, f, newTestHost())
	if err != ErrWriteInStatic {
		t.Fatalf("err = %v, want ErrWriteInStatic", err)
	}
}
