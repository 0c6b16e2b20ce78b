package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/ev6sim/emu"
	"github.com/sarchlab/ev6sim/insts"
)

// retireLoop commits instructions in program order each time an
// instruction completes.
func (p *Pipeline) retireLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.completeCh:
		}

		if err := p.retire(ctx); err != nil {
			return err
		}
	}
}

// retire commits from the head of the reorder buffer while the head is
// waiting for retirement. An older queued or executing instruction blocks
// everything younger.
func (p *Pipeline) retire(ctx context.Context) error {
	p.frontMu.Lock()
	defer p.frontMu.Unlock()
	p.robMu.Lock()
	defer p.robMu.Unlock()

	// Retirement freed resources, or a flush redirected fetch.
	defer p.ringResource()

	for {
		head, ok := p.rob.Front()
		if !ok || head.State() != StateWaitingRetirement {
			return nil
		}

		if err := p.retireHead(ctx, head); err != nil {
			return err
		}
	}
}

// retireHead commits or faults the oldest instruction.
func (p *Pipeline) retireHead(ctx context.Context, inst *Instruction) error {
	exc := inst.Exception
	if inst.Inst != nil && exc != insts.ExcNone && exc&^insts.ArithmeticMask == insts.ExcNone {
		fpcr, trap := emu.Trap(inst.Inst, exc, emu.FPCR(p.fpcr.Load()))
		p.fpcr.Store(uint64(fpcr))
		exc = trap
	}
	if exc != insts.ExcNone {
		return p.deliverException(ctx, inst, exc)
	}

	if inst.Class() == insts.ClassPAL {
		return p.retireCallPAL(ctx, inst)
	}

	switch {
	case insts.IsConditionalBranch(inst.Inst.Op):
		p.predictor.Resolve(inst.Pred, inst.Taken)
		p.count(func(s *Statistics) { s.BranchPredictions++ })
	case inst.Class() == insts.ClassJump:
		p.predictor.UpdateTarget(inst.PC.Address(), inst.Next)
	}

	switch inst.Inst.Op {
	case insts.OpMTFPCR:
		p.fpcr.Store(inst.Result)
	case insts.OpMFFPCR:
		p.renamer.WriteDest(inst, p.fpcr.Load())
		defer p.iq.Notify()
		defer p.fq.Notify()
	}

	p.commit(inst)

	switch {
	case inst.Mispredicted:
		p.count(func(s *Statistics) { s.BranchMispredictions++ })
		p.flush("mispredict", inst)
		p.redirect(insts.NewPC(inst.Next, inst.PC.PALMode()))
	case inst.Inst.Op == insts.OpMTFPCR:
		// Younger instructions may have read the old rounding mode.
		p.flush("fpcr", inst)
		p.redirect(inst.PC.Next())
	}

	if p.maxInstructions > 0 && p.retired.Load() >= p.maxInstructions {
		return ErrMaxInstructions
	}
	return nil
}

// commit makes the head architectural and removes it from the reorder
// buffer. Callers hold robMu.
func (p *Pipeline) commit(inst *Instruction) {
	if inst.IsStore() {
		p.sq.Commit(inst, p.dcache)
	}
	if inst.Inst != nil {
		p.renamer.Commit(inst)
	}
	if !inst.Transition(EventRetire) {
		panic(fmt.Sprintf("pipeline: cannot retire %s", inst))
	}
	p.rob.PopFront()
	p.retired.Add(1)
	p.count(func(s *Statistics) { s.Instructions++ })
}

// flush squashes every instruction in the reorder buffer, youngest first.
// Callers hold frontMu and robMu.
func (p *Pipeline) flush(reason string, cause *Instruction) {
	squashed := 0
	for {
		inst, ok := p.rob.PopBack()
		if !ok {
			break
		}

		inst.Transition(EventAbort)
		if inst.queue != nil {
			inst.queue.Remove(inst)
		}
		if inst.IsStore() && inst.store != nil {
			p.sq.Squash(inst)
		}
		if inst.Inst != nil {
			p.renamer.Rollback(inst)
		}
		squashed++
	}

	p.count(func(s *Statistics) {
		s.Flushes++
		s.Squashed += uint64(squashed)
	})
	p.log.WithFields(logrus.Fields{
		"reason":   reason,
		"pc":       cause.PC.Address(),
		"squashed": squashed,
	}).Debug("flush")
}

// redirect restarts fetch at pc. Callers hold frontMu.
func (p *Pipeline) redirect(pc insts.PC) {
	p.fetchPC = pc
	p.fetchStopped = false
}

// deliverException squashes the faulting instruction with everything
// younger and enters PALcode at the fault's vector.
func (p *Pipeline) deliverException(ctx context.Context, inst *Instruction, exc insts.Exception) error {
	p.flush("exception", inst)
	p.count(func(s *Statistics) { s.Exceptions++ })

	vec := exc.Vector()
	call := PALCall{
		Vector:    vec,
		Entry:     p.palBase + uint64(vec),
		Exception: exc,
		PC:        inst.PC,
		ReturnPC:  inst.PC,
		VA:        inst.FaultVA,
		Context:   inst.Context,
		Regs:      p.Registers(),
	}

	dtbMiss := exc.Has(insts.ExcDTBMissSingle)
	if dtbMiss {
		p.translator.BeginDTBMiss()
	}
	err := p.enterPAL(ctx, call)
	if dtbMiss {
		p.translator.EndDTBMiss()
	}
	return err
}

// retireCallPAL commits a CALL_PAL and enters PALcode at its entry point.
// Invalid functions, and privileged ones outside kernel mode, raise OPCDEC.
func (p *Pipeline) retireCallPAL(ctx context.Context, inst *Instruction) error {
	fn := inst.Inst.PALFunction
	vec, privileged, ok := insts.CallPALVector(fn)
	if !ok || (privileged && inst.Context.Mode != insts.ModeKernel && !inst.Context.PAL) {
		return p.deliverException(ctx, inst, insts.ExcOPCDEC)
	}

	p.commit(inst)
	p.flush("call_pal", inst)
	p.count(func(s *Statistics) { s.PALCalls++ })

	return p.enterPAL(ctx, PALCall{
		Vector:   vec,
		Entry:    p.palBase + uint64(vec),
		Function: fn,
		PC:       inst.PC,
		ReturnPC: inst.PC.Next(),
		Context:  inst.Context,
		Regs:     p.Registers(),
	})
}

// enterPAL runs the PAL handler with the pipeline drained and redirects
// fetch to the PC it returns.
func (p *Pipeline) enterPAL(ctx context.Context, call PALCall) error {
	log := p.log.WithFields(logrus.Fields{
		"vector": fmt.Sprintf("%#x", uint64(call.Vector)),
		"pc":     call.PC.Address(),
	})
	if call.Exception != insts.ExcNone {
		log = log.WithField("exception", call.Exception.String())
	}
	log.Debug("enter PAL")

	resume, err := p.pal.EnterPAL(ctx, call)
	if errors.Is(err, ErrHalted) {
		p.statsMu.Lock()
		p.exitCode = int64(call.Regs.ReadReg(0))
		p.statsMu.Unlock()
		p.fetchStopped = true
		return ErrHalted
	}
	if err != nil {
		return fmt.Errorf("PAL entry %#x at %#x: %w", uint64(call.Vector), call.PC.Address(), err)
	}

	p.redirect(insts.NewPC(resume, resume&1 != 0))
	return nil
}
