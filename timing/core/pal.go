package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/sarchlab/akita/v4/mem/vm"
	"github.com/sirupsen/logrus"

	"github.com/sarchlab/ev6sim/emu"
	"github.com/sarchlab/ev6sim/insts"
	"github.com/sarchlab/ev6sim/timing/pipeline"
	"github.com/sarchlab/ev6sim/timing/tlb"
)

// PAL errors.
var (
	// ErrPageFault is returned when a translation miss hits an unmapped
	// page under strict paging.
	ErrPageFault = errors.New("page fault")
	// ErrAccessViolation is returned for IACV and DFAULT.
	ErrAccessViolation = errors.New("access violation")
)

// DefaultPAL is the PALcode the core runs when no other handler is
// installed. It refills the translation buffers from the core's page table,
// services system calls and instruction memory barriers, and halts on
// CALL_PAL HALT. Faults a user program cannot recover from stop the core
// with an error.
type DefaultPAL struct {
	core *Core
	pipe *pipeline.Pipeline
	log  *logrus.Entry
}

func newDefaultPAL(c *Core) *DefaultPAL {
	return &DefaultPAL{core: c, log: c.log.WithField("component", "pal")}
}

func (h *DefaultPAL) attach(p *pipeline.Pipeline) {
	h.pipe = p
}

// EnterPAL services one PAL entry.
func (h *DefaultPAL) EnterPAL(_ context.Context, call pipeline.PALCall) (uint64, error) {
	if call.IsCallPAL() {
		return h.callPAL(call)
	}

	exc := call.Exception
	switch {
	case exc&insts.ExcITBMiss != 0:
		return h.refill(call, tlb.AccessExecute)
	case exc&(insts.ExcDTBMissSingle|insts.ExcDTBMissDouble3|insts.ExcDTBMissDouble4) != 0:
		return h.refill(call, tlb.AccessRead)
	case exc&(insts.ExcIACV|insts.ExcDFault) != 0:
		return 0, fmt.Errorf("%w: %s at VA %#x, PC %#x", ErrAccessViolation, exc, call.VA, call.PC.Address())
	case exc&insts.ExcUnalign != 0:
		return 0, fmt.Errorf("%w: VA %#x at PC %#x", emu.ErrUnaligned, call.VA, call.PC.Address())
	case exc&insts.ExcOPCDEC != 0:
		return 0, fmt.Errorf("%w at PC %#x", emu.ErrIllegal, call.PC.Address())
	case exc&insts.ArithmeticMask != 0:
		return 0, fmt.Errorf("%w: %s at PC %#x", emu.ErrArithmeticTrap, exc.Arithmetic(), call.PC.Address())
	}
	return 0, fmt.Errorf("%s: %w", exc, pipeline.ErrUnhandledPAL)
}

func (h *DefaultPAL) callPAL(call pipeline.PALCall) (uint64, error) {
	switch call.Function {
	case insts.PALHalt:
		return 0, pipeline.ErrHalted

	case insts.PALCallSys:
		result := h.syscall(call)
		if result.Exited {
			call.Regs.WriteReg(0, uint64(result.ExitCode))
			return 0, pipeline.ErrHalted
		}

	case insts.PALImb:
		h.pipe.DCache().Flush()
		h.pipe.ICache().Flush()

	default:
		h.log.WithField("function", fmt.Sprintf("%#x", call.Function)).Debug("ignored CALL_PAL")
	}
	return uint64(call.ReturnPC), nil
}

// syscall runs a system call against memory as the program sees it. Dirty
// data cache lines are written back first so the handler reads current
// data, and the cache is emptied again afterwards so the program reads what
// the handler wrote.
func (h *DefaultPAL) syscall(call pipeline.PALCall) emu.SyscallResult {
	h.pipe.DCache().Flush()
	defer h.pipe.DCache().Flush()

	handler := h.core.syscalls
	if handler == nil {
		space := &addressSpace{
			memory: h.core.memory,
			pages:  h.core.pages,
			pid:    vm.PID(call.Context.ASN),
		}
		def := emu.NewDefaultSyscallHandler(space, h.core.stdout, h.core.stderr)
		if h.core.stdin != nil {
			def.SetStdin(h.core.stdin)
		}
		handler = def
	}

	h.log.WithField("number", call.Regs.ReadReg(0)).Debug("syscall")
	return handler.Handle(call.Regs)
}

// refill installs the mapping of the faulting page and retries the
// faulting instruction.
func (h *DefaultPAL) refill(call pipeline.PALCall, access tlb.Access) (uint64, error) {
	asn := call.Context.ASN
	pa, ok := h.lookup(asn, call.VA)
	if !ok {
		if h.core.strict {
			return 0, fmt.Errorf("%w: VA %#x at PC %#x", ErrPageFault, call.VA, call.PC.Address())
		}
		pa = call.VA
	}

	tr := h.pipe.Translator()
	if access == tlb.AccessExecute {
		tr.RefillITB(call.VA, pa, tlb.AllAccess, asn, false, 0)
	} else {
		tr.RefillDTB(call.VA, pa, tlb.AllAccess, asn, false, 0)
	}

	h.log.WithFields(logrus.Fields{
		"va": fmt.Sprintf("%#x", call.VA),
		"pa": fmt.Sprintf("%#x", pa),
	}).Trace("translation refill")
	return uint64(call.PC), nil
}

func (h *DefaultPAL) lookup(asn uint8, va uint64) (uint64, bool) {
	page, ok := h.core.pages.Find(vm.PID(asn), va)
	if !ok || !page.Valid {
		return 0, false
	}
	return page.PAddr + (va - page.VAddr), true
}

// addressSpace is memory as seen through the page table. Unmapped pages
// are identity mapped.
type addressSpace struct {
	memory *emu.Memory
	pages  vm.PageTable
	pid    vm.PID
}

func (a *addressSpace) translate(va uint64) uint64 {
	page, ok := a.pages.Find(a.pid, va)
	if !ok || !page.Valid {
		return va
	}
	return page.PAddr + (va - page.VAddr)
}

// chunks calls f for each piece of [va, va+n) that lies within one page.
func (a *addressSpace) chunks(va uint64, n int, f func(pa uint64, lo, hi int)) {
	for lo := 0; lo < n; {
		addr := va + uint64(lo)
		hi := min(n, lo+int(tlb.PageSize-addr%tlb.PageSize))
		f(a.translate(addr), lo, hi)
		lo = hi
	}
}

// ReadBytes reads len(buf) bytes starting at virtual address va.
func (a *addressSpace) ReadBytes(va uint64, buf []byte) {
	a.chunks(va, len(buf), func(pa uint64, lo, hi int) {
		a.memory.ReadBytes(pa, buf[lo:hi])
	})
}

// WriteBytes writes data starting at virtual address va.
func (a *addressSpace) WriteBytes(va uint64, data []byte) {
	a.chunks(va, len(data), func(pa uint64, lo, hi int) {
		a.memory.WriteBytes(pa, data[lo:hi])
	})
}
