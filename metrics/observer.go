package metrics

import (
	"time"

	"github.com/lattice-evm/evmcore/core/vm"
)

// vmObserver implements vm.Observer by folding analysis and execution
// telemetry into a Registry. It is the metrics package's only dependency
// on core/vm; core/vm never imports metrics back, so callers that don't
// want instrumentation can pass a nil vm.Observer instead.
type vmObserver struct {
	opcodesValidated *Counter
	blocksClosed     *Counter
	blockGasCost     *Histogram
	jumpsResolved    *Counter
	jumpsUnresolved  *Counter
	analysisLatency  *Histogram
	instructionCount *Histogram
}

// NewObserver builds a vm.Observer backed by reg. Metric names are
// prefixed "vm." so they sit alongside any other subsystem registered in
// the same Registry.
func NewObserver(reg *Registry) vm.Observer {
	return &vmObserver{
		opcodesValidated: reg.Counter("vm.opcodes_validated"),
		blocksClosed:     reg.Counter("vm.blocks_closed"),
		blockGasCost:     reg.Histogram("vm.block_gas_cost"),
		jumpsResolved:    reg.Counter("vm.jumps_resolved_static"),
		jumpsUnresolved:  reg.Counter("vm.jumps_resolved_dynamic"),
		analysisLatency:  reg.Histogram("vm.analysis_latency_ns"),
		instructionCount: reg.Histogram("vm.analysis_instruction_count"),
	}
}

func (o *vmObserver) OnOpcodeValidated(op vm.OpCode) {
	o.opcodesValidated.Inc()
}

func (o *vmObserver) OnBlockClosed(info vm.BlockInfo) {
	o.blocksClosed.Inc()
	o.blockGasCost.Observe(float64(info.GasCost))
}

func (o *vmObserver) OnJumpResolved(static bool) {
	if static {
		o.jumpsResolved.Inc()
		return
	}
	o.jumpsUnresolved.Inc()
}

func (o *vmObserver) OnAnalysisComplete(d time.Duration, instructionCount int) {
	o.analysisLatency.Observe(float64(d.Nanoseconds()))
	o.instructionCount.Observe(float64(instructionCount))
}
