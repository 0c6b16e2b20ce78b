package pipeline

import (
	"context"
	"errors"

	"github.com/sarchlab/ev6sim/emu"
	"github.com/sarchlab/ev6sim/insts"
)

// pipeQueue returns the queue a pipe issues from.
func (p *Pipeline) pipeQueue(pipe Pipe) *Queue {
	if pipe == PipeFA || pipe == PipeFM {
		return p.fq
	}
	return p.iq
}

// pipeLoop runs one execution pipe until its queue is closed.
func (p *Pipeline) pipeLoop(ctx context.Context, pipe Pipe) error {
	q := p.pipeQueue(pipe)
	for {
		inst, err := q.Claim(ctx, pipe)
		if errors.Is(err, ErrQueueClosed) {
			return nil
		}
		if err != nil {
			return err
		}

		// A queue slot was released.
		p.ringResource()

		p.complete(inst, p.execute(inst))
	}
}

// execute computes the outcome of a claimed instruction.
func (p *Pipeline) execute(inst *Instruction) outcome {
	ops := emu.Operands(p.renamer.ReadOperands(inst))

	switch inst.Class() {
	case insts.ClassLoad, insts.ClassStore:
		return p.executeMemory(inst, ops)
	case insts.ClassMisc:
		// RPCC reads the retired instruction count.
		return outcome{Outcome: emu.Outcome{
			Result: p.retired.Load(),
			Next:   inst.PC.Address() + 4,
		}}
	}

	return outcome{Outcome: emu.Execute(inst.Inst, inst.PC.Address(), ops, emu.FPCR(p.fpcr.Load()))}
}

// complete publishes the outcome of inst. Aborted instructions are dropped.
func (p *Pipeline) complete(inst *Instruction, out outcome) {
	p.robMu.Lock()
	if inst.State() != StateExecuting {
		p.robMu.Unlock()
		return
	}

	inst.Result = out.Result
	inst.Next = out.Next
	inst.Taken = out.Taken
	inst.Exception = out.Exception
	inst.FaultVA = out.faultVA
	inst.VA, inst.PA, inst.Size = out.va, out.pa, out.size
	if inst.IsControl() {
		inst.Mispredicted = out.Next != inst.PredictedNext
	}

	// MF_FPCR reads the FPCR at retirement, after older instructions have
	// merged their status. Arithmetic faults may turn out not to trap, so
	// their result is still published.
	if out.Exception&^insts.ArithmeticMask == insts.ExcNone && inst.Inst.Op != insts.OpMFFPCR {
		p.renamer.WriteDest(inst, out.Result)
	}
	inst.Transition(EventComplete)
	p.robMu.Unlock()

	p.iq.Notify()
	p.fq.Notify()
	p.ringComplete()
}
