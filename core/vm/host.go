package vm

import (
	"github.com/holiman/uint256"

	"github.com/lattice-evm/evmcore/core/types"
)

// BlockContext carries the block-scoped values the interpreter reads but
// never mutates: block number, timestamp, coinbase, gas limit, and the
// post-Merge difficulty/prevrandao field.
type BlockContext struct {
	Number      uint64
	Timestamp   uint64
	Coinbase    types.Address
	GasLimit    uint64
	Difficulty  uint256.Int // prevrandao after the Merge
	BaseFee     uint256.Int
}

// CallKind distinguishes the flavors of nested call a frame can request.
type CallKind uint8

const (
	CallKindCall CallKind = iota
	CallKindCallCode
	CallKindDelegateCall
	CallKindStaticCall
	CallKindCreate
	CallKindCreate2
)

// CallParams describes one nested call or contract creation requested via
// Host.InnerCall.
type CallParams struct {
	Kind     CallKind
	Caller   types.Address
	Address  types.Address // callee for *CALL*, ignored for CREATE/CREATE2
	Value    uint256.Int
	Input    []byte
	Gas      uint64
	Salt     uint256.Int // CREATE2 only
	IsStatic bool
}

// CallResult is the outcome of a nested call or creation.
type CallResult struct {
	Success      bool
	ReturnData   []byte
	GasRemaining uint64
	CreatedAddr  types.Address // populated for CREATE/CREATE2
}

// Host is the collaborator contract the interpreter invokes for anything
// that crosses outside the current frame: state reads/writes, nested
// calls, logging, and journaling. The analyzer never touches it. A single
// implementation unifies account state, the log buffer, the journal, and
// transaction/block context behind one vtable.
type Host interface {
	GetBalance(addr types.Address) uint256.Int
	AccountExists(addr types.Address) bool
	GetCode(addr types.Address) []byte
	GetCodeHash(addr types.Address) types.Hash

	GetStorage(addr types.Address, key types.Hash) types.Hash
	SetStorage(addr types.Address, key, value types.Hash)

	GetBlockInfo() BlockContext

	EmitLog(addr types.Address, topics []types.Hash, data []byte)

	InnerCall(params CallParams) CallResult

	CreateSnapshot() int
	RevertToSnapshot(id int)

	AccessAddress(addr types.Address) uint64
	AccessStorageSlot(addr types.Address, key types.Hash) uint64

	RegisterCreatedContract(addr types.Address)
	WasCreatedInTx(addr types.Address) bool

	MarkForDestruction(contract, recipient types.Address)

	GetTxOrigin() types.Address
	GetCaller() types.Address
	GetCallValue() uint256.Int
	GetInput() []byte
	GetReturnData() []byte
	GetGasPrice() uint256.Int
	GetChainID() uint256.Int
	GetBlockHash(n uint64) types.Hash
	GetBlobHash(i int) types.Hash
	GetBlobBaseFee() uint256.Int
	GetIsStatic() bool
	GetDepth() int

	GetHardfork() Hardfork
	IsHardforkAtLeast(h Hardfork) bool
}
