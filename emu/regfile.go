package emu

// RegFile is the architectural register state of an Alpha processor:
// 32 integer registers, 32 floating-point registers, the PC and the FPCR.
// R31 and F31 always read as zero and ignore writes.
type RegFile struct {
	R    [32]uint64
	F    [32]uint64
	PC   uint64
	FPCR FPCR
}

// ReadReg reads an integer register.
func (r *RegFile) ReadReg(reg uint8) uint64 {
	if reg >= 31 {
		return 0
	}
	return r.R[reg]
}

// WriteReg writes an integer register. Writes to R31 are discarded.
func (r *RegFile) WriteReg(reg uint8, value uint64) {
	if reg >= 31 {
		return
	}
	r.R[reg] = value
}

// ReadFP reads a floating-point register as raw T-format bits.
func (r *RegFile) ReadFP(reg uint8) uint64 {
	if reg >= 31 {
		return 0
	}
	return r.F[reg]
}

// WriteFP writes a floating-point register. Writes to F31 are discarded.
func (r *RegFile) WriteFP(reg uint8, value uint64) {
	if reg >= 31 {
		return
	}
	r.F[reg] = value
}
