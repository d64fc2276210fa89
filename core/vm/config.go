package vm

import (
	"time"

	"github.com/lattice-evm/evmcore/log"
)

// Config bundles the tunables that shape analysis and execution. There is
// no global mutable configuration; every entry point takes a Config value
// explicitly so concurrent callers with different limits never interfere
// with each other.
type Config struct {
	// MaxCodeSize bounds full_code for ordinary message calls. Zero means
	// DefaultRuntimeCodeSizeLimit.
	MaxCodeSize int
	// MaxInitcodeSize bounds full_code for contract creation. Zero means
	// DefaultInitcodeSizeLimit.
	MaxInitcodeSize int
	// IsCreation selects which of the two size limits above applies.
	IsCreation bool
	// MaxInstructions caps the decoded instruction stream. Zero means
	// DefaultMaxInstructions.
	MaxInstructions int
	// MaxMemory caps a single frame's memory growth, in bytes. Zero means
	// DefaultMaxMemory.
	MaxMemory uint64
	// Hardfork records a fork for callers that carry one with the rest of
	// their configuration. Analyze takes the fork as its own argument and
	// does not read this field.
	Hardfork Hardfork
	// Observer receives analysis and execution telemetry. Nil disables it;
	// every call site checks before invoking it, so a nil Observer costs a
	// single branch rather than a virtual dispatch into a no-op.
	Observer Observer
	// Logger receives structured diagnostic output. Nil disables logging.
	Logger *log.Logger
}

func (c Config) effectiveRuntimeSizeLimit() int {
	if c.MaxCodeSize > 0 {
		return c.MaxCodeSize
	}
	return DefaultRuntimeCodeSizeLimit
}

func (c Config) effectiveInitcodeSizeLimit() int {
	if c.MaxInitcodeSize > 0 {
		return c.MaxInitcodeSize
	}
	return DefaultInitcodeSizeLimit
}

func (c Config) effectiveMaxInstructions() int {
	if c.MaxInstructions > 0 {
		return c.MaxInstructions
	}
	return DefaultMaxInstructions
}

func (c Config) effectiveMaxMemory() uint64 {
	if c.MaxMemory > 0 {
		return c.MaxMemory
	}
	return DefaultMaxMemory
}

// Observer receives telemetry from analysis and execution. Implementations
// must be safe for concurrent use: a single Analysis artifact and its
// Observer may be exercised by many interpreter invocations at once.
type Observer interface {
	// OnOpcodeValidated fires once per instruction during analysis pass 1.
	OnOpcodeValidated(op OpCode)
	// OnBlockClosed fires once per basic block emitted by the block
	// analyzer, after gas_cost/stack_req/stack_max_growth are finalized.
	OnBlockClosed(info BlockInfo)
	// OnJumpResolved fires once per JUMP/JUMPI encountered during
	// execution; static reports whether the target was resolved at
	// analysis time (true) or required a runtime jumpdest check (false).
	OnJumpResolved(static bool)
	// OnAnalysisComplete fires once, at the end of Analyze, with the wall
	// time spent and the number of instructions produced.
	OnAnalysisComplete(d time.Duration, instructionCount int)
}
