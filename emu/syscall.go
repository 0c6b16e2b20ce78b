package emu

import "io"

// Alpha Linux system call numbers.
const (
	SyscallExit      uint64 = 1   // exit(status)
	SyscallRead      uint64 = 3   // read(fd, buf, count)
	SyscallWrite     uint64 = 4   // write(fd, buf, count)
	SyscallExitGroup uint64 = 405 // exit_group(status)
)

// Linux error codes.
const (
	EBADF  = 9  // Bad file descriptor
	ENOSYS = 38 // Function not implemented
	EIO    = 5  // I/O error
)

// Registers gives a system call handler access to the integer registers.
type Registers interface {
	ReadReg(reg uint8) uint64
	WriteReg(reg uint8, value uint64)
}

// ByteMemory is the memory a system call handler reads and writes buffers in.
type ByteMemory interface {
	ReadBytes(addr uint64, buf []byte)
	WriteBytes(addr uint64, data []byte)
}

// Alpha calling convention registers.
const (
	regV0 uint8 = 0  // syscall number in, result out
	regA0 uint8 = 16 // first argument
	regA1 uint8 = 17
	regA2 uint8 = 18
	regA3 uint8 = 19 // error flag out
)

// SyscallResult represents the result of a syscall execution.
type SyscallResult struct {
	// Exited is true if the syscall caused program termination.
	Exited bool

	// ExitCode is the exit status if Exited is true.
	ExitCode int64
}

// SyscallHandler services CALL_PAL callsys.
type SyscallHandler interface {
	// Handle executes the syscall indicated by the register state.
	// Alpha Linux convention:
	//   - Syscall number in v0 (R0)
	//   - Arguments in a0-a5 (R16-R21)
	//   - Result in v0, error flag in a3 (R19)
	Handle(regs Registers) SyscallResult
}

// DefaultSyscallHandler supports exit, read from stdin and write to
// stdout/stderr.
type DefaultSyscallHandler struct {
	memory ByteMemory
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// NewDefaultSyscallHandler creates a default syscall handler.
func NewDefaultSyscallHandler(memory ByteMemory, stdout, stderr io.Writer) *DefaultSyscallHandler {
	return &DefaultSyscallHandler{
		memory: memory,
		stdout: stdout,
		stderr: stderr,
	}
}

// SetStdin sets the stdin reader for the syscall handler.
func (h *DefaultSyscallHandler) SetStdin(stdin io.Reader) {
	h.stdin = stdin
}

// Handle executes the syscall indicated by the register state.
func (h *DefaultSyscallHandler) Handle(regs Registers) SyscallResult {
	switch regs.ReadReg(regV0) {
	case SyscallExit, SyscallExitGroup:
		return SyscallResult{Exited: true, ExitCode: int64(regs.ReadReg(regA0))}
	case SyscallRead:
		h.handleRead(regs)
	case SyscallWrite:
		h.handleWrite(regs)
	default:
		setError(regs, ENOSYS)
	}
	return SyscallResult{}
}

func (h *DefaultSyscallHandler) handleRead(regs Registers) {
	fd := regs.ReadReg(regA0)
	bufPtr := regs.ReadReg(regA1)
	count := regs.ReadReg(regA2)

	if fd != 0 {
		setError(regs, EBADF)
		return
	}
	if h.stdin == nil {
		setResult(regs, 0)
		return
	}

	buf := make([]byte, count)
	n, err := h.stdin.Read(buf)
	if err != nil && n == 0 {
		setResult(regs, 0)
		return
	}

	h.memory.WriteBytes(bufPtr, buf[:n])
	setResult(regs, uint64(n))
}

func (h *DefaultSyscallHandler) handleWrite(regs Registers) {
	fd := regs.ReadReg(regA0)
	bufPtr := regs.ReadReg(regA1)
	count := regs.ReadReg(regA2)

	var writer io.Writer
	switch fd {
	case 1:
		writer = h.stdout
	case 2:
		writer = h.stderr
	default:
		setError(regs, EBADF)
		return
	}

	buf := make([]byte, count)
	h.memory.ReadBytes(bufPtr, buf)

	n, err := writer.Write(buf)
	if err != nil {
		setError(regs, EIO)
		return
	}
	setResult(regs, uint64(n))
}

func setResult(regs Registers, v uint64) {
	regs.WriteReg(regV0, v)
	regs.WriteReg(regA3, 0)
}

func setError(regs Registers, errno int) {
	regs.WriteReg(regV0, uint64(errno))
	regs.WriteReg(regA3, 1)
}
