package insts

// PC is an Alpha program counter. Bit 0 is set while executing PALcode;
// instructions are longword aligned, so the fetch address is PC with the low
// two bits cleared.
type PC uint64

// NewPC packs an instruction address and the PAL mode bit.
func NewPC(addr uint64, pal bool) PC {
	pc := PC(addr &^ 0x3)
	if pal {
		pc |= 1
	}
	return pc
}

// Address returns the instruction address.
func (p PC) Address() uint64 {
	return uint64(p) &^ 0x3
}

// PALMode reports whether the PC is executing PALcode.
func (p PC) PALMode() bool {
	return p&0x1 != 0
}

// Next returns the PC of the following instruction, keeping the PAL bit.
func (p PC) Next() PC {
	return NewPC(p.Address()+4, p.PALMode())
}

// Offset returns the PC displaced by a signed byte offset, keeping the PAL bit.
func (p PC) Offset(bytes int64) PC {
	return NewPC(uint64(int64(p.Address())+bytes), p.PALMode())
}

// BlockSlot returns the position of the instruction within its aligned
// four-instruction fetch block.
func (p PC) BlockSlot() int {
	return int(p.Address()>>2) & 0x3
}

// BlockBase returns the address of the first instruction of the fetch block.
func (p PC) BlockBase() uint64 {
	return p.Address() &^ 0xF
}

// Mode is the processor privilege mode.
type Mode uint8

// Processor modes, most privileged first.
const (
	ModeKernel Mode = iota
	ModeExecutive
	ModeSupervisor
	ModeUser
)

var modeNames = [...]string{"kernel", "executive", "supervisor", "user"}

// String returns the mode name.
func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "invalid"
}
