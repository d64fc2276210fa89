package vm

import (
	"testing"
	"time"
)

func analyze(t *testing.T, code []byte) *Analysis {
	t.Helper()
	a, err := Analyze(code, Latest, Config{})
	if err != nil {
		t.Fatalf("Analyze: unexpected error: %v", err)
	}
	return a
}

func TestAnalyzeEmptyCode(t *testing.T) {
	a := analyze(t, nil)
	if len(a.RuntimeCode()) != 0 {
		t.Fatalf("expected empty runtime code")
	}
	stream := a.Stream()
	if len(stream.instructions) == 0 {
		t.Fatalf("expected an implicit STOP appended to empty code")
	}
}

func TestAnalyzeSingleStop(t *testing.T) {
	a := analyze(t, []byte{byte(STOP)})
	stream := a.Stream()
	// BLOCK_INFO, EXEC{STOP}
	if len(stream.instructions) != 2 {
		t.Fatalf("instruction count = %d, want 2", len(stream.instructions))
	}
	if stream.instructions[1].Tag != TagExec || stream.instructions[1].Op != STOP {
		t.Fatalf("expected trailing STOP exec instruction")
	}
}

func TestAnalyzeInvalidOpcode(t *testing.T) {
	_, err := Analyze([]byte{0x0c}, Latest, Config{}) // unassigned opcode
	if err != ErrInvalidOpcode {
		t.Fatalf("err = %v, want ErrInvalidOpcode", err)
	}
}

func TestAnalyzeTruncatedPush(t *testing.T) {
	code := []byte{byte(PUSH32), 0x01, 0x02} // far short of 32 immediate bytes
	_, err := Analyze(code, Latest, Config{})
	if err != ErrTruncatedPush {
		t.Fatalf("err = %v, want ErrTruncatedPush", err)
	}
}

func TestAnalyzePushDataNotJumpdest(t *testing.T) {
	// PUSH1 0x5b (JUMPDEST byte as push data) followed by a real JUMPDEST.
	code := []byte{byte(PUSH1), byte(JUMPDEST), byte(JUMPDEST)}
	a := analyze(t, code)
	if a.IsValidJumpdest(1) {
		t.Fatalf("push-immediate byte must never be treated as a jumpdest")
	}
	if !a.IsValidJumpdest(2) {
		t.Fatalf("real JUMPDEST byte must be recognized")
	}
}

func TestAnalyzeBytecodeTooLarge(t *testing.T) {
	code := make([]byte, DefaultRuntimeCodeSizeLimit+1)
	_, err := Analyze(code, Latest, Config{})
	if err != ErrBytecodeTooLarge {
		t.Fatalf("err = %v, want ErrBytecodeTooLarge", err)
	}
}

func TestAnalyzeInitcodeTooLarge(t *testing.T) {
	code := make([]byte, DefaultInitcodeSizeLimit+1)
	_, err := Analyze(code, Latest, Config{IsCreation: true})
	if err != ErrInitcodeTooLarge {
		t.Fatalf("err = %v, want ErrInitcodeTooLarge", err)
	}
	// The same length is within the (larger) initcode limit but over the
	// runtime limit, confirming the two caps are independent.
	code2 := make([]byte, DefaultRuntimeCodeSizeLimit+1)
	if _, err := Analyze(code2, Latest, Config{IsCreation: true}); err != nil {
		t.Fatalf("unexpected error under the initcode limit: %v", err)
	}
}

func TestAnalyzeStaticJumpToInvalidDestination(t *testing.T) {
	// PUSH1 0x05 JUMP ... byte 5 is not a JUMPDEST.
	code := []byte{byte(PUSH1), 0x05, byte(JUMP), byte(STOP), byte(STOP), byte(ADD)}
	_, err := Analyze(code, Latest, Config{})
	if err != ErrInvalidJumpDestination {
		t.Fatalf("err = %v, want ErrInvalidJumpDestination", err)
	}
}

func TestAnalyzeStaticJumpToValidDestination(t *testing.T) {
	// PUSH1 0x04 JUMP STOP JUMPDEST STOP
	code := []byte{byte(PUSH1), 0x04, byte(JUMP), byte(STOP), byte(JUMPDEST), byte(STOP)}
	a := analyze(t, code)
	if !a.IsValidJumpdest(4) {
		t.Fatalf("expected pc 4 to be a valid jumpdest")
	}
}

func TestAnalyzeDynamicJumpDeferredToRuntime(t *testing.T) {
	// CALLDATALOAD JUMP: target is not statically known, analysis must not
	// reject it.
	code := []byte{byte(CALLDATALOAD), byte(JUMP)}
	if _, err := Analyze(code, Latest, Config{}); err != nil {
		t.Fatalf("unexpected error for a dynamically targeted jump: %v", err)
	}
}

func TestAnalyzeSolidityMetadataStripped(t *testing.T) {
	var ipfs [34]byte
	solc := [3]byte{0, 8, 30}
	tail := buildMetadataTail(ipfs, solc)
	runtime := []byte{byte(PUSH1), 0x00, byte(STOP)}
	code := append(append([]byte{}, runtime...), tail...)

	a := analyze(t, code)
	if len(a.RuntimeCode()) != len(runtime) {
		t.Fatalf("runtime code length = %d, want %d (metadata should be stripped before analysis)",
			len(a.RuntimeCode()), len(runtime))
	}
	desc, ok := a.Metadata()
	if !ok {
		t.Fatalf("expected metadata descriptor to be reported")
	}
	if desc.SolcVersion != solc {
		t.Fatalf("solc version mismatch")
	}
}

func TestAnalysisObserverReceivesCallbacks(t *testing.T) {
	var opcodes int
	var blocks int
	obs := &countingObserver{
		onOp:    func(OpCode) { opcodes++ },
		onBlock: func(BlockInfo) { blocks++ },
	}
	code := []byte{byte(PUSH1), 0x00, byte(PUSH1), 0x00, byte(ADD), byte(STOP)}
	if _, err := Analyze(code, Latest, Config{Observer: obs}); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if opcodes != 4 {
		t.Fatalf("opcode callbacks = %d, want 4", opcodes)
	}
	if blocks == 0 {
		t.Fatalf("expected at least one OnBlockClosed callback")
	}
}

// countingObserver is a minimal vm.Observer double for assertions on
// callback counts; fields left nil are no-ops.
type countingObserver struct {
	onOp    func(OpCode)
	onBlock func(BlockInfo)
	onJump  func(bool)
	onDone  func()
}

func (o *countingObserver) OnOpcodeValidated(op OpCode) {
	if o.onOp != nil {
		o.onOp(op)
	}
}
func (o *countingObserver) OnBlockClosed(info BlockInfo) {
	if o.onBlock != nil {
		o.onBlock(info)
	}
}
func (o *countingObserver) OnJumpResolved(static bool) {
	if o.onJump != nil {
		o.onJump(static)
	}
}
func (o *countingObserver) OnAnalysisComplete(_ time.Duration, _ int) {
	if o.onDone != nil {
		o.onDone()
	}
}
