package pipeline

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/ev6sim/emu"
	"github.com/sarchlab/ev6sim/insts"
	"github.com/sarchlab/ev6sim/timing/cache"
	"github.com/sarchlab/ev6sim/timing/tlb"
)

// fetchLoop drives fetch, decode and rename. It sleeps on the resource
// doorbell while stalled or stopped.
func (p *Pipeline) fetchLoop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.fetchGroup() {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.resourceCh:
		}
	}
}

// fetchContext returns the translation context for a fetch at pc. Callers
// hold frontMu.
func (p *Pipeline) fetchContext(pc insts.PC) tlb.Context {
	return tlb.Context{Mode: p.mode, ASN: p.asn, PAL: pc.PALMode()}
}

// fetchGroup fetches and dispatches one group. It reports whether it made
// progress.
func (p *Pipeline) fetchGroup() bool {
	p.frontMu.Lock()
	defer p.frontMu.Unlock()

	if p.fetchStopped {
		return false
	}

	pc := p.fetchPC
	ctx := p.fetchContext(pc)

	res := p.icache.FetchLine(pc, ctx)
	switch res.Status {
	case cache.FetchMiss:
		if exc := p.icache.Fill(pc, ctx); exc != insts.ExcNone {
			return p.dispatchFault(pc, ctx, exc)
		}
		return true
	case cache.FetchWayMiss:
		return p.dispatchFault(pc, ctx, res.Exception)
	}

	words := res.Instructions
	if len(words) > p.fetchWidth {
		words = words[:p.fetchWidth]
	}

	group := p.decodeGroup(pc, ctx, words)
	n := p.fit(group)
	if n == 0 {
		p.count(func(s *Statistics) { s.Stalls++ })
		return false
	}
	group = group[:n]

	next := p.predict(group[n-1])
	p.dispatch(group)

	last := group[n-1]
	switch {
	case last.Class() == insts.ClassPAL, last.Class() == insts.ClassIllegal:
		// Nothing younger is fetched until retirement redirects.
		p.fetchStopped = true
	default:
		p.fetchPC = insts.NewPC(next, pc.PALMode())
	}
	return true
}

// decodeGroup decodes a fetch block. The group ends after the first
// instruction that can change the instruction stream.
func (p *Pipeline) decodeGroup(pc insts.PC, ctx tlb.Context, words []uint32) []*Instruction {
	group := make([]*Instruction, 0, len(words))
	for i, w := range words {
		inst := &Instruction{
			PC:       pc.Offset(int64(4 * i)),
			Inst:     p.decoder.Decode(w),
			Context:  ctx,
			PhysDest: NoReg,
			PrevPhys: NoReg,
		}
		group = append(group, inst)

		switch inst.Class() {
		case insts.ClassBranch, insts.ClassFPBranch, insts.ClassJump,
			insts.ClassPAL, insts.ClassIllegal:
			return group
		}
	}
	return group
}

// groupNeeds is the capacity a prefix of a fetch group consumes.
type groupNeeds struct {
	rob, iq, fq, sq int
	regs            [2]int
}

func (g *groupNeeds) add(inst *Instruction) {
	g.rob++
	class := inst.Class()
	switch {
	case PipesFor(class) == 0:
	case UsesFloatQueue(class):
		g.fq++
	default:
		g.iq++
	}
	if class == insts.ClassStore {
		g.sq++
	}
	if dest, ok := inst.Inst.Dest(); ok {
		g.regs[dest.File]++
	}
}

// fit returns how many instructions of the group may be dispatched: the
// whole group when every resource has room, nothing otherwise. With an
// empty reorder buffer the longest prefix that fits is accepted so that a
// group larger than a resource cannot stall forever.
func (p *Pipeline) fit(group []*Instruction) int {
	p.robMu.Lock()
	robFree := p.rob.Cap() - p.rob.Len()
	robEmpty := p.rob.Empty()
	p.robMu.Unlock()

	iqFree, fqFree, sqFree := p.iq.Free(), p.fq.Free(), p.sq.Free()
	regsFree := [2]int{
		p.renamer.Free(insts.IntRegs),
		p.renamer.Free(insts.FloatRegs),
	}

	var needs groupNeeds
	for i, inst := range group {
		needs.add(inst)
		if needs.rob > robFree || needs.iq > iqFree || needs.fq > fqFree || needs.sq > sqFree ||
			needs.regs[0] > regsFree[0] || needs.regs[1] > regsFree[1] {
			if robEmpty {
				return i
			}
			return 0
		}
	}
	return len(group)
}

// predict fills in the predicted successor of a group's last instruction
// and returns it.
func (p *Pipeline) predict(inst *Instruction) uint64 {
	addr := inst.PC.Address()
	next := addr + 4
	in := inst.Inst

	switch inst.Class() {
	case insts.ClassBranch, insts.ClassFPBranch:
		target := emu.BranchTarget(addr, in.Displacement)
		switch {
		case insts.IsConditionalBranch(in.Op):
			inst.Pred = p.predictor.Predict(addr)
			if inst.Pred.Taken {
				next = target
			}
		default:
			// BR and BSR
			next = target
			if in.Op == insts.OpBSR {
				p.predictor.PushReturn(addr + 4)
			}
		}

	case insts.ClassJump:
		var ok bool
		target := uint64(0)
		if in.Op == insts.OpRET || in.Op == insts.OpJSRCoroutine {
			target, ok = p.predictor.PopReturn()
		}
		if !ok {
			target, ok = p.predictor.PredictTarget(addr)
		}
		if ok {
			next = target
		}
		if in.Op == insts.OpJSR || in.Op == insts.OpJSRCoroutine {
			p.predictor.PushReturn(addr + 4)
		}
	}

	inst.PredictedNext = next
	return next
}

// dispatch renames the group and hands it to the reorder buffer and the
// issue queues. fit has reserved every resource.
func (p *Pipeline) dispatch(group []*Instruction) {
	for _, inst := range group {
		if err := p.renamer.Rename(inst); err != nil {
			panic(fmt.Sprintf("pipeline: rename of %s after capacity check: %v", inst, err))
		}
		if inst.IsStore() {
			if err := p.sq.Allocate(inst); err != nil {
				panic(fmt.Sprintf("pipeline: store queue allocation of %s: %v", inst, err))
			}
		}

		class := inst.Class()
		if class == insts.ClassIllegal {
			inst.Exception = insts.ExcOPCDEC
		}

		p.robMu.Lock()
		p.nextID++
		inst.ID = p.nextID
		p.rob.PushBack(inst)
		p.robMu.Unlock()

		switch {
		case PipesFor(class) == 0:
			inst.Transition(EventBypass)
			p.ringComplete()
		case UsesFloatQueue(class):
			p.insert(p.fq, inst)
		default:
			p.insert(p.iq, inst)
		}
	}

	p.count(func(s *Statistics) { s.Fetched += uint64(len(group)) })
}

func (p *Pipeline) insert(q *Queue, inst *Instruction) {
	if _, err := q.Insert(inst); err != nil {
		panic(fmt.Sprintf("pipeline: %s insert of %s: %v", q.Name(), inst, err))
	}
}

// dispatchFault enters a fetch fault record into the reorder buffer and
// stops fetch until retirement redirects it.
func (p *Pipeline) dispatchFault(pc insts.PC, ctx tlb.Context, exc insts.Exception) bool {
	p.robMu.Lock()
	if p.rob.Full() {
		p.robMu.Unlock()
		p.count(func(s *Statistics) { s.Stalls++ })
		return false
	}

	p.nextID++
	inst := &Instruction{
		ID:        p.nextID,
		PC:        pc,
		Context:   ctx,
		PhysDest:  NoReg,
		PrevPhys:  NoReg,
		Exception: exc,
		FaultVA:   pc.Address(),
	}
	inst.Transition(EventBypass)
	p.rob.PushBack(inst)
	p.robMu.Unlock()

	p.fetchStopped = true
	p.log.WithFields(logrus.Fields{
		"pc":        pc.Address(),
		"exception": exc.String(),
	}).Debug("fetch fault")

	p.ringComplete()
	return true
}
