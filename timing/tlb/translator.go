package tlb

import (
	"sync"

	"github.com/sarchlab/ev6sim/insts"
)

// Access is the kind of memory reference being translated.
type Access uint8

// Access kinds.
const (
	AccessRead Access = iota
	AccessWrite
	AccessExecute
)

// Super page enable bits.
const (
	SuperPage0 uint8 = 1 << iota // VA[top:top-17] == 0x3FFFE
	SuperPage1                   // VA[top:top-6] == 0x7E
	SuperPage2                   // VA[top:top-1] == 2
)

// Config selects the translation modes.
type Config struct {
	// SuperPages enables the kernel super page windows (SuperPageN bits).
	SuperPages uint8
	// VA48 selects 48-bit virtual addresses; otherwise 43-bit.
	VA48 bool
}

// Context is the processor state a translation depends on.
type Context struct {
	Mode insts.Mode
	ASN  uint8
	PAL  bool
}

// Translator applies the translation policy: PALcode runs with VA == PA,
// kernel mode may use super pages, and everything else goes through the
// translation buffers.
type Translator struct {
	itb *TB
	dtb *TB
	cfg Config

	mu             sync.Mutex
	dtbMissPending bool
}

// NewTranslator creates a translator over the given buffers.
func NewTranslator(itb, dtb *TB, cfg Config) *Translator {
	return &Translator{itb: itb, dtb: dtb, cfg: cfg}
}

// ITB returns the instruction translation buffer.
func (t *Translator) ITB() *TB { return t.itb }

// DTB returns the data translation buffer.
func (t *Translator) DTB() *TB { return t.dtb }

func (t *Translator) vaBits() uint {
	if t.cfg.VA48 {
		return 48
	}
	return 43
}

// superPage maps va through an enabled super page window.
func (t *Translator) superPage(va uint64) (uint64, bool) {
	top := t.vaBits() - 1
	field := func(hi, lo uint) uint64 {
		return (va >> lo) & (1<<(hi-lo+1) - 1)
	}
	low := func(hi uint) uint64 {
		return va & (1<<(hi+1) - 1)
	}

	switch {
	case t.cfg.SuperPages&SuperPage2 != 0 && field(top, top-1) == 0x2:
		return low(top - 4), true
	case t.cfg.SuperPages&SuperPage1 != 0 && field(top, top-6) == 0x7E:
		return low(top - 7), true
	case t.cfg.SuperPages&SuperPage0 != 0 && field(top, top-17) == 0x3FFFE:
		return low(top - 18), true
	}
	return 0, false
}

// Mapping is the result of an instruction-side translation, carrying what
// the Icache records with a line.
type Mapping struct {
	PA     uint64
	Prot   Protection
	Global bool // valid in every address space
}

// InstructionMapping translates an instruction fetch address without
// checking permissions. A missing mapping yields ExcITBMiss.
func (t *Translator) InstructionMapping(va uint64, ctx Context) (Mapping, insts.Exception) {
	if ctx.PAL {
		return Mapping{PA: va, Prot: AllAccess, Global: true}, insts.ExcNone
	}
	if ctx.Mode == insts.ModeKernel {
		if pa, ok := t.superPage(va); ok {
			return Mapping{PA: pa, Prot: KRE, Global: true}, insts.ExcNone
		}
	}

	e, ok := t.itb.Lookup(va, ctx.ASN)
	if !ok {
		return Mapping{}, insts.ExcITBMiss
	}
	return Mapping{PA: e.Translate(va), Prot: e.Prot, Global: e.ASM}, insts.ExcNone
}

// CanExecute reports whether mode may fetch from a page with prot.
func CanExecute(prot Protection, mode insts.Mode) bool {
	return prot.CanRead(mode) && prot&FOE == 0
}

// Translate translates va for the given access kind through the ITB for
// AccessExecute and the DTB otherwise.
func (t *Translator) Translate(va uint64, access Access, ctx Context) (uint64, insts.Exception) {
	if access == AccessExecute {
		return t.TranslateInstruction(va, ctx)
	}
	return t.TranslateData(va, access, ctx)
}

// TranslateInstruction translates an instruction fetch address. A missing
// mapping yields ExcITBMiss; a mapping without read permission for the
// current mode, or with fault-on-execute, yields ExcIACV.
func (t *Translator) TranslateInstruction(va uint64, ctx Context) (uint64, insts.Exception) {
	m, exc := t.InstructionMapping(va, ctx)
	if exc != insts.ExcNone {
		return 0, exc
	}
	if !ctx.PAL && !CanExecute(m.Prot, ctx.Mode) {
		return 0, insts.ExcIACV
	}
	return m.PA, insts.ExcNone
}

// TranslateData translates a load or store address. A miss raised while
// PALcode is servicing an earlier DTB miss is a double miss.
func (t *Translator) TranslateData(va uint64, access Access, ctx Context) (uint64, insts.Exception) {
	if ctx.PAL {
		return va, insts.ExcNone
	}
	if ctx.Mode == insts.ModeKernel {
		if pa, ok := t.superPage(va); ok {
			return pa, insts.ExcNone
		}
	}

	e, ok := t.dtb.Lookup(va, ctx.ASN)
	if !ok {
		return 0, t.dataMiss()
	}

	switch access {
	case AccessWrite:
		if !e.Prot.CanWrite(ctx.Mode) || e.Prot&FOW != 0 {
			return 0, insts.ExcDFault
		}
	default:
		if !e.Prot.CanRead(ctx.Mode) || e.Prot&FOR != 0 {
			return 0, insts.ExcDFault
		}
	}
	return e.Translate(va), insts.ExcNone
}

func (t *Translator) dataMiss() insts.Exception {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.dtbMissPending {
		return insts.ExcDTBMissSingle
	}
	if t.cfg.VA48 {
		return insts.ExcDTBMissDouble4
	}
	return insts.ExcDTBMissDouble3
}

// BeginDTBMiss marks a DTB miss as being serviced by PALcode.
func (t *Translator) BeginDTBMiss() {
	t.mu.Lock()
	t.dtbMissPending = true
	t.mu.Unlock()
}

// EndDTBMiss clears the pending DTB miss.
func (t *Translator) EndDTBMiss() {
	t.mu.Lock()
	t.dtbMissPending = false
	t.mu.Unlock()
}

// DTBMissPending reports whether a DTB miss is being serviced.
func (t *Translator) DTBMissPending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dtbMissPending
}

// RefillDTB installs a DTB mapping and ends any pending DTB miss.
func (t *Translator) RefillDTB(va, pa uint64, prot Protection, asn uint8, asm bool, gh uint8) {
	t.dtb.Allocate(va, pa, prot, asn, asm, gh)
	t.EndDTBMiss()
}

// RefillITB installs an ITB mapping.
func (t *Translator) RefillITB(va, pa uint64, prot Protection, asn uint8, asm bool, gh uint8) {
	t.itb.Allocate(va, pa, prot, asn, asm, gh)
}
