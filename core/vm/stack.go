package vm

import "github.com/holiman/uint256"

// Stack is the EVM operand stack: a fixed-capacity array of 256-bit words.
// Words are stored by value (uint256.Int is a [4]uint64 array), so pushing
// and popping never allocates, unlike a stack of *big.Int.
type Stack struct {
	data [StackLimit]uint256.Int
	sp   int // number of items currently on the stack
}

func NewStack() *Stack { return &Stack{} }

// Len returns the number of items currently on the stack.
func (s *Stack) Len() int { return s.sp }

// Push appends v to the top of the stack. Callers must have already
// validated capacity via the block's stack_req/stack_max_growth check; an
// overflow here indicates a block analysis defect, not malformed bytecode.
func (s *Stack) Push(v uint256.Int) {
	s.data[s.sp] = v
	s.sp++
}

// Pop removes and returns the top item.
func (s *Stack) Pop() uint256.Int {
	s.sp--
	return s.data[s.sp]
}

// Peek returns a pointer to the nth item from the top (0 = top), for
// handlers that mutate in place (e.g. SWAP, ADD writing back into an
// operand slot).
func (s *Stack) Peek(n int) *uint256.Int {
	return &s.data[s.sp-1-n]
}

// Dup pushes a copy of the nth item from the top (0-indexed: Dup(0)
// duplicates the current top, i.e. DUP1).
func (s *Stack) Dup(n int) {
	v := s.data[s.sp-1-n]
	s.Push(v)
}

// Swap exchanges the top item with the item n+1 positions below it
// (Swap(0) implements SWAP1).
func (s *Stack) Swap(n int) {
	top := s.sp - 1
	other := s.sp - 2 - n
	s.data[top], s.data[other] = s.data[other], s.data[top]
}

// Reset clears the stack for reuse from a pool without zeroing the backing
// array (stale words below sp are never read).
func (s *Stack) Reset() { s.sp = 0 }
