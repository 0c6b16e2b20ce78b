package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ev6sim/timing/config"
)

var _ = Describe("BootConfig", func() {
	var cfg *config.BootConfig

	BeforeEach(func() {
		cfg = config.DefaultBootConfig()
	})

	Describe("DefaultBootConfig", func() {
		It("should describe the 21264", func() {
			Expect(cfg.IntPhysRegs).To(Equal(80))
			Expect(cfg.FloatPhysRegs).To(Equal(72))
			Expect(cfg.IQSize).To(Equal(20))
			Expect(cfg.FQSize).To(Equal(15))
			Expect(cfg.ICache.Size).To(Equal(64 * 1024))
			Expect(cfg.DCache.Associativity).To(Equal(2))
		})

		It("should validate", func() {
			Expect(cfg.Validate()).To(Succeed())
		})

		It("should reserve shadow registers only when enabled", func() {
			Expect(cfg.MappedIntRegs()).To(Equal(39))
			cfg.PALShadow = false
			Expect(cfg.MappedIntRegs()).To(Equal(31))
		})
	})

	Describe("Validate", func() {
		It("should reject a register file with no rename registers", func() {
			cfg.IntPhysRegs = 39
			Expect(cfg.Validate()).To(MatchError(ContainSubstring("int_phys_regs")))
		})

		It("should reject an empty queue", func() {
			cfg.FQSize = 0
			Expect(cfg.Validate()).To(MatchError(ContainSubstring("fq_size")))
		})

		It("should reject a fetch width above four", func() {
			cfg.FetchWidth = 5
			Expect(cfg.Validate()).To(MatchError(ContainSubstring("fetch_width")))
		})

		It("should reject more enabled ways than the cache has", func() {
			cfg.ICache.EnabledWays = 3
			Expect(cfg.Validate()).To(MatchError(ContainSubstring("icache enabled_ways")))
		})

		It("should reject an odd line size", func() {
			cfg.DCache.BlockSize = 32
			Expect(cfg.Validate()).To(MatchError(ContainSubstring("dcache block_size")))
		})

		It("should reject an unaligned PAL base", func() {
			cfg.PALBase = 0x1234
			Expect(cfg.Validate()).To(MatchError(ContainSubstring("pal_base")))
		})
	})

	Describe("Save and load", func() {
		It("should round-trip through a file", func() {
			path := filepath.Join(GinkgoT().TempDir(), "boot.json")
			cfg.IQSize = 8
			cfg.StaticPrediction = true
			Expect(cfg.SaveConfig(path)).To(Succeed())

			loaded, err := config.LoadConfig(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(cfg))
		})

		It("should keep defaults for missing fields", func() {
			path := filepath.Join(GinkgoT().TempDir(), "partial.json")
			Expect(os.WriteFile(path, []byte(`{"fq_size": 4}`), 0644)).To(Succeed())

			loaded, err := config.LoadConfig(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.FQSize).To(Equal(4))
			Expect(loaded.IQSize).To(Equal(20))
		})

		It("should wrap read errors", func() {
			_, err := config.LoadConfig("/nonexistent/boot.json")
			Expect(err).To(MatchError(ContainSubstring("failed to read boot config file")))
		})

		It("should wrap parse errors", func() {
			path := filepath.Join(GinkgoT().TempDir(), "bad.json")
			Expect(os.WriteFile(path, []byte(`{`), 0644)).To(Succeed())

			_, err := config.LoadConfig(path)
			Expect(err).To(MatchError(ContainSubstring("failed to parse boot config")))
		})
	})

	Describe("ApplyEnv", func() {
		It("should override fields from the environment", func() {
			GinkgoT().Setenv(config.EnvIQSize, "12")
			GinkgoT().Setenv(config.EnvStaticPrediction, "true")
			GinkgoT().Setenv(config.EnvPALBase, "0x10000")
			GinkgoT().Setenv(config.EnvDCacheWays, "1")

			Expect(cfg.ApplyEnv()).To(Succeed())
			Expect(cfg.IQSize).To(Equal(12))
			Expect(cfg.StaticPrediction).To(BeTrue())
			Expect(cfg.PALBase).To(Equal(uint64(0x10000)))
			Expect(cfg.DCache.EnabledWays).To(Equal(1))
			Expect(cfg.FQSize).To(Equal(15))
		})

		It("should reject a malformed number", func() {
			GinkgoT().Setenv(config.EnvMaxInstructions, "lots")
			Expect(cfg.ApplyEnv()).To(MatchError(ContainSubstring(config.EnvMaxInstructions)))
		})
	})

	Describe("Clone", func() {
		It("should not share state with the original", func() {
			clone := cfg.Clone()
			clone.ICache.EnabledWays = 1
			Expect(cfg.ICache.EnabledWays).To(Equal(2))
			Expect(clone).NotTo(BeIdenticalTo(cfg))
		})
	})
})
