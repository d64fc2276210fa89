package vm

import (
	"github.com/holiman/uint256"

	"github.com/lattice-evm/evmcore/core/types"
)

// testHost is a minimal in-memory Host double: enough state to drive
// interpreter tests end to end without a real account/state backend.
// Every accounting method (AccessAddress, AccessStorageSlot) returns a
// fixed warm-access cost so gas assertions in tests don't need to track
// EIP-2929 cold/warm sets.
type testHost struct {
	balances map[types.Address]uint256.Int
	codes    map[types.Address][]byte
	storage  map[types.Address]map[types.Hash]types.Hash
	logs     []types.Log
	block    BlockContext
	origin   types.Address
	caller   types.Address
	gasPrice uint256.Int
	chainID  uint256.Int
	destructed map[types.Address]types.Address
	innerCall  func(CallParams) CallResult
	snapshots  int
	hardfork   Hardfork
}

func newTestHost() *testHost {
	return &testHost{
		balances:   make(map[types.Address]uint256.Int),
		codes:      make(map[types.Address][]byte),
		storage:    make(map[types.Address]map[types.Hash]types.Hash),
		destructed: make(map[types.Address]types.Address),
		hardfork:   Latest,
	}
}

func (h *testHost) GetBalance(addr types.Address) uint256.Int { return h.balances[addr] }
func (h *testHost) AccountExists(addr types.Address) bool {
	_, ok := h.codes[addr]
	if ok {
		return true
	}
	_, ok = h.balances[addr]
	return ok
}
func (h *testHost) GetCode(addr types.Address) []byte { return h.codes[addr] }
func (h *testHost) GetCodeHash(addr types.Address) types.Hash {
	return types.BytesToHash(nil)
}

func (h *testHost) GetStorage(addr types.Address, key types.Hash) types.Hash {
	slots, ok := h.storage[addr]
	if !ok {
		return types.Hash{}
	}
	return slots[key]
}
func (h *testHost) SetStorage(addr types.Address, key, value types.Hash) {
	slots, ok := h.storage[addr]
	if !ok {
		slots = make(map[types.Hash]types.Hash)
		h.storage[addr] = slots
	}
	slots[key] = value
}

func (h *testHost) GetBlockInfo() BlockContext { return h.block }

func (h *testHost) EmitLog(addr types.Address, topics []types.Hash, data []byte) {
	h.logs = append(h.logs, types.Log{Address: addr, Topics: topics, Data: data})
}

func (h *testHost) InnerCall(params CallParams) CallResult {
	if h.innerCall != nil {
		return h.innerCall(params)
	}
	return CallResult{Success: true, GasRemaining: params.Gas}
}

func (h *testHost) CreateSnapshot() int { h.snapshots++; return h.snapshots }
func (h *testHost) RevertToSnapshot(id int) {}

func (h *testHost) AccessAddress(addr types.Address) uint64          { return GasWarmAccess }
func (h *testHost) AccessStorageSlot(addr types.Address, key types.Hash) uint64 {
	return GasWarmAccess
}

func (h *testHost) RegisterCreatedContract(addr types.Address) {}
func (h *testHost) WasCreatedInTx(addr types.Address) bool      { return false }

func (h *testHost) MarkForDestruction(contract, recipient types.Address) {
	h.destructed[contract] = recipient
}

func (h *testHost) GetTxOrigin() types.Address   { return h.origin }
func (h *testHost) GetCaller() types.Address     { return h.caller }
func (h *testHost) GetCallValue() uint256.Int    { return uint256.Int{} }
func (h *testHost) GetInput() []byte             { return nil }
func (h *testHost) GetReturnData() []byte        { return nil }
func (h *testHost) GetGasPrice() uint256.Int     { return h.gasPrice }
func (h *testHost) GetChainID() uint256.Int      { return h.chainID }
func (h *testHost) GetBlockHash(n uint64) types.Hash { return types.Hash{} }
func (h *testHost) GetBlobHash(i int) types.Hash     { return types.Hash{} }
func (h *testHost) GetBlobBaseFee() uint256.Int      { return uint256.Int{} }
func (h *testHost) GetIsStatic() bool                { return false }
func (h *testHost) GetDepth() int                    { return 0 }

func (h *testHost) GetHardfork() Hardfork              { return h.hardfork }
func (h *testHost) IsHardforkAtLeast(f Hardfork) bool  { return h.hardfork.AtLeast(f) }
