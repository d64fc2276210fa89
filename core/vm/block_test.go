package vm

import "testing"

func TestBlockAccumulatorSimpleRun(t *testing.T) {
	acc := newBlockAccumulator()
	// PUSH1 (0 in, 1 out), PUSH1 (0 in, 1 out), ADD (2 in, 1 out)
	acc.add(GasVerylow, 0, 1)
	acc.add(GasVerylow, 0, 1)
	acc.add(GasVerylow, 2, -1)
	info := acc.close()

	if info.GasCost != GasVerylow*3 {
		t.Fatalf("gas cost = %d, want %d", info.GasCost, GasVerylow*3)
	}
	if info.StackReq != 0 {
		t.Fatalf("stack req = %d, want 0 (block supplies its own operands)", info.StackReq)
	}
	if info.StackMaxGrowth != 2 {
		t.Fatalf("stack max growth = %d, want 2", info.StackMaxGrowth)
	}
}

func TestBlockAccumulatorRequiresIncomingStack(t *testing.T) {
	acc := newBlockAccumulator()
	// ADD consumes two items the block never produced itself.
	acc.add(GasVerylow, 2, -1)
	info := acc.close()

	if info.StackReq != 2 {
		t.Fatalf("stack req = %d, want 2", info.StackReq)
	}
	if info.StackMaxGrowth != 0 {
		t.Fatalf("stack max growth = %d, want 0", info.StackMaxGrowth)
	}
}

func TestBlockAccumulatorTracksPeakGrowth(t *testing.T) {
	acc := newBlockAccumulator()
	acc.add(GasVerylow, 0, 1) // net +1
	acc.add(GasVerylow, 0, 1) // net +2 (peak)
	acc.add(GasVerylow, 2, -2) // net 0
	info := acc.close()

	if info.StackMaxGrowth != 2 {
		t.Fatalf("stack max growth = %d, want 2 (peak, not final)", info.StackMaxGrowth)
	}
	if info.StackReq != 0 {
		t.Fatalf("stack req = %d, want 0", info.StackReq)
	}
}

func TestBlockAccumulatorResetsAfterClose(t *testing.T) {
	acc := newBlockAccumulator()
	acc.add(GasMid, 2, -1)
	acc.close()
	acc.add(GasVerylow, 0, 1)
	info := acc.close()

	if info.GasCost != GasVerylow {
		t.Fatalf("accumulator carried state across close(): gas cost = %d, want %d", info.GasCost, GasVerylow)
	}
}
