package core_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/sarchlab/ev6sim/emu"
	"github.com/sarchlab/ev6sim/insts"
	"github.com/sarchlab/ev6sim/loader"
	"github.com/sarchlab/ev6sim/timing/config"
	"github.com/sarchlab/ev6sim/timing/core"
	"github.com/sarchlab/ev6sim/timing/pipeline"
)

const (
	codeVA = uint64(0x10000)
	dataVA = uint64(0x40000)
)

var sumLoop = []uint32{
	insts.EncodeLDA(1, insts.ZeroReg, 10),
	insts.EncodeBIS(insts.ZeroReg, insts.ZeroReg, 2),
	insts.EncodeADDQ(2, 1, 2),
	insts.EncodeSUBQLit(1, 1, 1),
	insts.EncodeBNE(1, -3),
	insts.EncodeSTQ(2, 16, 0),
	insts.EncodeLDQ(0, 16, 0),
	insts.EncodeHALT(),
}

// writeExit writes three bytes from dataVA to stdout and exits with the
// number of bytes written.
var writeExit = []uint32{
	insts.EncodeLDA(0, insts.ZeroReg, int16(emu.SyscallWrite)),
	insts.EncodeLDA(16, insts.ZeroReg, 1),
	insts.EncodeLDAH(17, insts.ZeroReg, int16(dataVA>>16)),
	insts.EncodeLDA(18, insts.ZeroReg, 3),
	insts.EncodeCallPAL(insts.PALCallSys),
	insts.EncodeLDA(16, 0, 0),
	insts.EncodeLDA(0, insts.ZeroReg, int16(emu.SyscallExit)),
	insts.EncodeCallPAL(insts.PALCallSys),
}

func wordBytes(words []uint32) []byte {
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[4*i:], w)
	}
	return buf
}

var _ = Describe("Core", func() {
	var (
		cfg    *config.BootConfig
		memory *emu.Memory
		c      *core.Core
	)

	build := func(program []uint32, opts ...core.Option) {
		memory.LoadWords(codeVA, program)

		var err error
		c, err = core.New(cfg, memory, opts...)
		Expect(err).NotTo(HaveOccurred())
		c.SetPC(codeVA)
		c.Registers().WriteReg(16, dataVA)
	}

	run := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return c.Run(ctx)
	}

	BeforeEach(func() {
		cfg = config.DefaultBootConfig()
		memory = emu.NewMemory()
	})

	It("should reject an invalid boot configuration", func() {
		cfg.IQSize = 0
		_, err := core.New(cfg, memory)
		Expect(err).To(MatchError(ContainSubstring("iq_size")))
	})

	It("should give every core its own ID", func() {
		a, err := core.New(cfg, memory)
		Expect(err).NotTo(HaveOccurred())
		b, err := core.New(cfg, memory)
		Expect(err).NotTo(HaveOccurred())
		Expect(a.ID()).NotTo(Equal(b.ID()))
	})

	It("should run until halt and report the exit code", func() {
		build(sumLoop)

		Expect(run()).To(Succeed())
		Expect(c.Halted()).To(BeTrue())
		Expect(c.ExitCode()).To(Equal(int64(55)))
		Expect(memory.Read64(dataVA)).To(Equal(uint64(55)))
	})

	It("should collect statistics from every structure", func() {
		build(sumLoop)
		Expect(run()).To(Succeed())

		stats := c.Stats()
		Expect(stats.Pipeline.Instructions).To(Equal(uint64(35)))
		Expect(stats.Predictor.Predictions).To(Equal(uint64(10)))
		Expect(stats.ICache.Misses).To(BeNumerically(">=", 1))
		Expect(stats.DCache.Writes).To(Equal(uint64(1)))
		Expect(stats.ITB.Allocations).To(Equal(uint64(1)))
		Expect(stats.DTB.Allocations).To(Equal(uint64(1)))
		Expect(stats.Elapsed).To(BeNumerically(">", 0))
	})

	It("should refuse to run again after halting until reset", func() {
		build(sumLoop)
		Expect(run()).To(Succeed())
		Expect(run()).To(MatchError(core.ErrHalted))

		Expect(c.Reset()).To(Succeed())
		Expect(c.Halted()).To(BeFalse())
		Expect(c.Stats().Pipeline.Instructions).To(BeZero())
		Expect(c.Registers().ReadReg(0)).To(BeZero())

		c.SetPC(codeVA)
		c.Registers().WriteReg(16, dataVA)
		Expect(run()).To(Succeed())
		Expect(c.ExitCode()).To(Equal(int64(55)))
	})

	It("should refuse to run or reset while running", func() {
		build([]uint32{insts.EncodeBR(insts.ZeroReg, -1)})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		done := make(chan error, 1)
		go func() { done <- c.Run(ctx) }()

		Eventually(c.Running).Should(BeTrue())
		Expect(c.Run(context.Background())).To(MatchError(core.ErrRunning))
		Expect(c.Reset()).To(MatchError(core.ErrRunning))

		cancel()
		Eventually(done, 5*time.Second).Should(Receive(MatchError(context.Canceled)))
		Expect(c.Running()).To(BeFalse())
		Expect(c.Halted()).To(BeFalse())
	})

	It("should translate through the page table", func() {
		const physData = uint64(0x80000)
		build([]uint32{
			insts.EncodeLDQ(0, 16, 0),
			insts.EncodeSTQ(0, 16, 8),
			insts.EncodeHALT(),
		})
		c.MapPage(dataVA, physData)
		memory.Write64(physData, 1234)

		Expect(run()).To(Succeed())
		Expect(c.ExitCode()).To(Equal(int64(1234)))
		Expect(memory.Read64(physData + 8)).To(Equal(uint64(1234)))
		Expect(memory.Read64(dataVA + 8)).To(BeZero())
	})

	It("should fail on unmapped pages under strict paging", func() {
		build([]uint32{
			insts.EncodeLDQ(0, 16, 0),
			insts.EncodeHALT(),
		}, core.WithStrictPaging())
		c.MapPage(codeVA, codeVA)

		Expect(run()).To(MatchError(core.ErrPageFault))
	})

	It("should load a program with its stack and registers", func() {
		program := []uint32{
			insts.EncodeLDA(30, 30, -16),
			insts.EncodeSTQ(27, 30, 0),
			insts.EncodeLDQ(0, 30, 0),
			insts.EncodeHALT(),
		}
		data := wordBytes(program)

		var err error
		c, err = core.New(cfg, memory, core.WithStrictPaging())
		Expect(err).NotTo(HaveOccurred())
		c.LoadProgram(&loader.Program{
			EntryPoint: codeVA,
			InitialSP:  loader.DefaultStackTop,
			GP:         0x50000,
			Segments: []loader.Segment{
				{VirtAddr: codeVA, Data: data, MemSize: uint64(len(data))},
			},
		})

		Expect(run()).To(Succeed())
		Expect(c.ExitCode()).To(Equal(int64(codeVA)))
		Expect(c.Registers().ReadReg(29)).To(Equal(uint64(0x50000)))
		Expect(c.Registers().ReadReg(30)).To(Equal(uint64(loader.DefaultStackTop - 16)))

		_, found := c.PageTable().Find(0, loader.DefaultStackTop-16)
		Expect(found).To(BeTrue())
	})

	It("should service system calls against translated buffers", func() {
		var stdout bytes.Buffer
		build(writeExit,
			core.WithProcessContext(insts.ModeUser, 0),
			core.WithOutput(&stdout, io.Discard))
		c.MapPage(dataVA, 0x80000)
		memory.WriteBytes(0x80000, []byte("ok\n"))

		Expect(run()).To(Succeed())
		Expect(stdout.String()).To(Equal("ok\n"))
		Expect(c.ExitCode()).To(Equal(int64(3)))
	})

	It("should use a custom system call handler", func() {
		var numbers []uint64
		handler := syscallFunc(func(regs emu.Registers) emu.SyscallResult {
			numbers = append(numbers, regs.ReadReg(0))
			if regs.ReadReg(0) == emu.SyscallExit {
				return emu.SyscallResult{Exited: true, ExitCode: 9}
			}
			regs.WriteReg(0, 0)
			return emu.SyscallResult{}
		})
		build(writeExit, core.WithSyscallHandler(handler))

		Expect(run()).To(Succeed())
		Expect(numbers).To(Equal([]uint64{emu.SyscallWrite, emu.SyscallExit}))
		Expect(c.ExitCode()).To(Equal(int64(9)))
	})

	It("should let a custom PAL handler delegate to the default one", func() {
		var entries []pipeline.PALCall
		build([]uint32{
			insts.EncodeLDA(0, insts.ZeroReg, 3),
			insts.EncodeHALT(),
		}, core.WithPALHandler(pipeline.PALHandlerFunc(
			func(ctx context.Context, call pipeline.PALCall) (uint64, error) {
				entries = append(entries, call)
				return c.PAL().EnterPAL(ctx, call)
			})))

		Expect(run()).To(Succeed())
		Expect(c.ExitCode()).To(Equal(int64(3)))
		Expect(entries).To(HaveLen(2))
		Expect(entries[0].Exception).To(Equal(insts.ExcITBMiss))
		Expect(entries[1].Function).To(Equal(insts.PALHalt))
	})

	DescribeTable("unrecoverable faults",
		func(program []uint32, mode insts.Mode, want error) {
			build(program, core.WithProcessContext(mode, 0))
			Expect(run()).To(MatchError(want))
			Expect(c.Halted()).To(BeFalse())
		},
		Entry("unaligned access", []uint32{insts.EncodeLDQ(0, 16, 4)}, insts.ModeKernel, emu.ErrUnaligned),
		Entry("reserved opcode", []uint32{0x04000000}, insts.ModeKernel, emu.ErrIllegal),
		Entry("integer overflow", []uint32{
			insts.EncodeLDA(1, insts.ZeroReg, -1),
			insts.EncodeSLLLit(1, 63, 1),
			insts.EncodeADDQV(1, 1, 2),
		}, insts.ModeKernel, emu.ErrArithmeticTrap),
		Entry("HALT in user mode", []uint32{insts.EncodeHALT()}, insts.ModeUser, emu.ErrIllegal),
	)

	It("should log with the core ID", func() {
		logger, hook := test.NewNullLogger()
		logger.SetLevel(logrus.DebugLevel)
		build(sumLoop, core.WithLogger(logger))

		Expect(run()).To(Succeed())

		var palEntries int
		for _, entry := range hook.AllEntries() {
			Expect(entry.Data).To(HaveKeyWithValue("core", c.ID().String()))
			if entry.Message == "enter PAL" {
				palEntries++
			}
		}
		Expect(palEntries).To(Equal(3))
	})

	DescribeTable("matching the reference emulator",
		func(program []uint32, setup func(m *emu.Memory), user bool) {
			var coreOut, emuOut bytes.Buffer

			opts := []core.Option{core.WithOutput(&coreOut, io.Discard)}
			if user {
				opts = append(opts, core.WithProcessContext(insts.ModeUser, 0))
			}
			setup(memory)
			build(program, opts...)
			Expect(run()).To(Succeed())

			refMemory := emu.NewMemory()
			setup(refMemory)
			refMemory.LoadWords(codeVA, program)
			ref := emu.NewEmulator(
				emu.WithMemory(refMemory),
				emu.WithStdout(&emuOut),
				emu.WithStderr(io.Discard),
			)
			ref.RegFile().PC = codeVA
			ref.RegFile().WriteReg(16, dataVA)
			exit := ref.Run()

			Expect(c.ExitCode()).To(Equal(exit))
			Expect(coreOut.String()).To(Equal(emuOut.String()))
			Expect(c.Stats().Pipeline.Instructions).To(Equal(ref.InstructionCount()))

			regs := c.Registers()
			for r := uint8(0); r < insts.ZeroReg; r++ {
				Expect(regs.ReadReg(r)).To(Equal(ref.RegFile().ReadReg(r)), "R%d", r)
				Expect(regs.ReadFP(r)).To(Equal(ref.RegFile().ReadFP(r)), "F%d", r)
			}
			for off := uint64(0); off < 128; off += 8 {
				Expect(memory.Read64(dataVA+off)).To(Equal(refMemory.Read64(dataVA+off)), "data+%d", off)
			}
		},
		Entry("a counted loop", sumLoop, func(*emu.Memory) {}, false),
		Entry("loads and stores", []uint32{
			insts.EncodeLDQ(1, 16, 0),
			insts.EncodeLDQ(2, 16, 8),
			insts.EncodeLDQ(3, 16, 16),
			insts.EncodeLDQ(4, 16, 24),
			insts.EncodeSTQ(4, 16, 32),
			insts.EncodeSTQ(3, 16, 40),
			insts.EncodeSTQ(2, 16, 48),
			insts.EncodeSTQ(1, 16, 56),
			insts.EncodeLDQ(5, 16, 32),
			insts.EncodeMULQ(5, 2, 6),
			insts.EncodeSTL(6, 16, 64),
			insts.EncodeLDL(7, 16, 64),
			insts.EncodeADDQ(7, 3, 0),
			insts.EncodeHALT(),
		}, func(m *emu.Memory) {
			for i := uint64(0); i < 4; i++ {
				m.Write64(dataVA+8*i, i+1)
			}
		}, false),
		Entry("floating point", []uint32{
			insts.EncodeLDT(1, 16, 0),
			insts.EncodeADDT(1, 1, 2),
			insts.EncodeMULT(2, 1, 3),
			insts.EncodeDIVT(3, 1, 4),
			insts.EncodeSUBT(4, 1, 5),
			insts.EncodeSTT(5, 16, 8),
			insts.EncodeFTOIT(4, 6),
			insts.EncodeLDQ(0, 16, 8),
			insts.EncodeHALT(),
		}, func(m *emu.Memory) {
			m.Write64(dataVA, math.Float64bits(1.5))
		}, false),
		Entry("calls and returns", []uint32{
			insts.EncodeLDA(0, insts.ZeroReg, 0),
			insts.EncodeBSR(26, 4),
			insts.EncodeBSR(26, 3),
			insts.EncodeHALT(),
			insts.EncodeNOP(),
			insts.EncodeNOP(),
			insts.EncodeADDQLit(0, 5, 0),
			insts.EncodeRET(insts.ZeroReg, 26),
		}, func(*emu.Memory) {}, false),
		Entry("conditional moves and logic", []uint32{
			insts.EncodeLDA(1, insts.ZeroReg, 3),
			insts.EncodeLDA(2, insts.ZeroReg, 7),
			insts.EncodeLDA(0, insts.ZeroReg, 1),
			insts.EncodeCMOVEQ(4, 2, 0),
			insts.EncodeXOR(0, 1, 0),
			insts.EncodeAND(0, 2, 5),
			insts.EncodeCMPLTLit(1, 5, 6),
			insts.EncodeADDQ(0, 6, 0),
			insts.EncodeHALT(),
		}, func(*emu.Memory) {}, false),
		Entry("code patched before an IMB", []uint32{
			insts.EncodeLDAH(2, insts.ZeroReg, int16(codeVA>>16)),
			insts.EncodeLDAH(1, insts.ZeroReg, 0x201F),
			insts.EncodeLDA(1, 1, 9),
			insts.EncodeSTL(1, 2, 0x20),
			insts.EncodeCallPAL(insts.PALImb),
			insts.EncodeNOP(),
			insts.EncodeNOP(),
			insts.EncodeNOP(),
			insts.EncodeLDA(0, insts.ZeroReg, 1),
			insts.EncodeHALT(),
		}, func(*emu.Memory) {}, false),
	)

	It("should match the reference emulator on system calls", func() {
		var coreOut, emuOut bytes.Buffer
		memory.WriteBytes(dataVA, []byte("hi\n"))
		build(writeExit,
			core.WithProcessContext(insts.ModeUser, 0),
			core.WithOutput(&coreOut, io.Discard))
		Expect(run()).To(Succeed())

		ref := emu.NewEmulator(emu.WithStdout(&emuOut), emu.WithStderr(io.Discard))
		ref.Memory().WriteBytes(dataVA, []byte("hi\n"))
		ref.LoadProgram(codeVA, wordBytes(writeExit))

		Expect(c.ExitCode()).To(Equal(ref.Run()))
		Expect(coreOut.String()).To(Equal("hi\n"))
		Expect(emuOut.String()).To(Equal("hi\n"))
	})
})

type syscallFunc func(regs emu.Registers) emu.SyscallResult

func (f syscallFunc) Handle(regs emu.Registers) emu.SyscallResult { return f(regs) }
