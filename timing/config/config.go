// Package config holds the boot-time configuration of the simulated core.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/xyproto/env/v2"

	"github.com/sarchlab/ev6sim/timing/cache"
)

// Architectural register slots that are mapped at reset. R31 and F31 are
// never renamed.
const (
	archIntRegs    = 31
	archFloatRegs  = 31
	palShadowRegs  = 8
	maxFetchWidth  = 4
	cacheBlockSize = 64
)

// BootConfig is read once when a core is constructed.
type BootConfig struct {
	// IntPhysRegs is the size of the integer physical register file.
	// Default: 80.
	IntPhysRegs int `json:"int_phys_regs"`

	// FloatPhysRegs is the size of the floating-point physical register
	// file. Default: 72.
	FloatPhysRegs int `json:"float_phys_regs"`

	// IQSize is the integer issue queue capacity. Default: 20.
	IQSize int `json:"iq_size"`

	// FQSize is the floating-point issue queue capacity. Default: 15.
	FQSize int `json:"fq_size"`

	// ROBSize bounds the instructions in flight. Default: 80.
	ROBSize int `json:"rob_size"`

	// StoreQueueSize bounds the stores waiting to retire. Default: 32.
	StoreQueueSize int `json:"store_queue_size"`

	// FetchWidth is the maximum fetch group. Default: 4.
	FetchWidth int `json:"fetch_width"`

	// ITBSize and DTBSize are the translation buffer entry counts.
	// Default: 128 each.
	ITBSize int `json:"itb_size"`
	DTBSize int `json:"dtb_size"`

	ICache cache.Config `json:"icache"`
	DCache cache.Config `json:"dcache"`

	// SuperPages enables the kernel super page windows (tlb.SuperPageN
	// bits).
	SuperPages uint8 `json:"super_pages"`

	// VA48 selects 48-bit virtual addresses instead of 43-bit.
	VA48 bool `json:"va48"`

	// StaticPrediction predicts every branch not taken.
	StaticPrediction bool `json:"static_prediction"`

	// ReturnStackDepth is the return-address stack size. Default: 32.
	ReturnStackDepth int `json:"return_stack_depth"`

	// PALShadow maps R8-R11 and R24-R27 to shadow registers in PAL mode.
	PALShadow bool `json:"pal_shadow"`

	// PALBase is the physical address of the PALcode entry table.
	PALBase uint64 `json:"pal_base"`

	// MaxInstructions stops the core after this many retirements.
	// Zero means no limit.
	MaxInstructions uint64 `json:"max_instructions"`
}

// DefaultBootConfig returns the 21264 configuration.
func DefaultBootConfig() *BootConfig {
	return &BootConfig{
		IntPhysRegs:      80,
		FloatPhysRegs:    72,
		IQSize:           20,
		FQSize:           15,
		ROBSize:          80,
		StoreQueueSize:   32,
		FetchWidth:       4,
		ITBSize:          128,
		DTBSize:          128,
		ICache:           cache.DefaultICacheConfig(),
		DCache:           cache.DefaultDCacheConfig(),
		ReturnStackDepth: 32,
		PALShadow:        true,
		PALBase:          0x8000,
	}
}

// LoadConfig loads a BootConfig from a JSON file. Fields missing from the
// file keep their defaults.
func LoadConfig(path string) (*BootConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read boot config file: %w", err)
	}

	config := DefaultBootConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse boot config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a BootConfig to a JSON file.
func (c *BootConfig) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize boot config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write boot config file: %w", err)
	}

	return nil
}

// Environment variables read by ApplyEnv.
const (
	EnvIntRegs          = "EV6SIM_INT_REGS"
	EnvFloatRegs        = "EV6SIM_FP_REGS"
	EnvIQSize           = "EV6SIM_IQ_SIZE"
	EnvFQSize           = "EV6SIM_FQ_SIZE"
	EnvROBSize          = "EV6SIM_ROB_SIZE"
	EnvFetchWidth       = "EV6SIM_FETCH_WIDTH"
	EnvICacheWays       = "EV6SIM_ICACHE_WAYS"
	EnvDCacheWays       = "EV6SIM_DCACHE_WAYS"
	EnvStaticPrediction = "EV6SIM_STATIC_PREDICTION"
	EnvPALShadow        = "EV6SIM_PAL_SHADOW"
	EnvVA48             = "EV6SIM_VA48"
	EnvPALBase          = "EV6SIM_PAL_BASE"
	EnvMaxInstructions  = "EV6SIM_MAX_INSTRUCTIONS"
)

// ApplyEnv overrides fields from EV6SIM_* environment variables. Unset
// variables leave the field alone.
func (c *BootConfig) ApplyEnv() error {
	env.Load()

	c.IntPhysRegs = env.Int(EnvIntRegs, c.IntPhysRegs)
	c.FloatPhysRegs = env.Int(EnvFloatRegs, c.FloatPhysRegs)
	c.IQSize = env.Int(EnvIQSize, c.IQSize)
	c.FQSize = env.Int(EnvFQSize, c.FQSize)
	c.ROBSize = env.Int(EnvROBSize, c.ROBSize)
	c.FetchWidth = env.Int(EnvFetchWidth, c.FetchWidth)
	c.ICache.EnabledWays = env.Int(EnvICacheWays, c.ICache.EnabledWays)
	c.DCache.EnabledWays = env.Int(EnvDCacheWays, c.DCache.EnabledWays)

	if env.Has(EnvStaticPrediction) {
		c.StaticPrediction = env.Bool(EnvStaticPrediction)
	}
	if env.Has(EnvPALShadow) {
		c.PALShadow = env.Bool(EnvPALShadow)
	}
	if env.Has(EnvVA48) {
		c.VA48 = env.Bool(EnvVA48)
	}

	var err error
	if c.PALBase, err = envUint(EnvPALBase, c.PALBase); err != nil {
		return err
	}
	if c.MaxInstructions, err = envUint(EnvMaxInstructions, c.MaxInstructions); err != nil {
		return err
	}

	return nil
}

func envUint(name string, current uint64) (uint64, error) {
	if !env.Has(name) {
		return current, nil
	}
	v, err := strconv.ParseUint(env.Str(name), 0, 64)
	if err != nil {
		return current, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}

// MappedIntRegs returns how many integer physical registers hold
// architectural state at reset.
func (c *BootConfig) MappedIntRegs() int {
	if c.PALShadow {
		return archIntRegs + palShadowRegs
	}
	return archIntRegs
}

// MappedFloatRegs returns how many floating-point physical registers hold
// architectural state at reset.
func (c *BootConfig) MappedFloatRegs() int {
	return archFloatRegs
}

// Validate checks that the configuration describes a buildable core.
func (c *BootConfig) Validate() error {
	if c.IntPhysRegs <= c.MappedIntRegs() {
		return fmt.Errorf("int_phys_regs must be > %d", c.MappedIntRegs())
	}
	if c.FloatPhysRegs <= c.MappedFloatRegs() {
		return fmt.Errorf("float_phys_regs must be > %d", c.MappedFloatRegs())
	}
	if c.IQSize <= 0 {
		return fmt.Errorf("iq_size must be > 0")
	}
	if c.FQSize <= 0 {
		return fmt.Errorf("fq_size must be > 0")
	}
	if c.ROBSize <= 0 {
		return fmt.Errorf("rob_size must be > 0")
	}
	if c.StoreQueueSize <= 0 {
		return fmt.Errorf("store_queue_size must be > 0")
	}
	if c.FetchWidth <= 0 || c.FetchWidth > maxFetchWidth {
		return fmt.Errorf("fetch_width must be in 1..%d", maxFetchWidth)
	}
	if c.ITBSize <= 0 || c.DTBSize <= 0 {
		return fmt.Errorf("itb_size and dtb_size must be > 0")
	}
	if c.ReturnStackDepth <= 0 {
		return fmt.Errorf("return_stack_depth must be > 0")
	}
	if c.SuperPages > 7 {
		return fmt.Errorf("super_pages must be a 3-bit mask")
	}
	if c.PALBase&0x7FFF != 0 {
		return fmt.Errorf("pal_base must be 32KB aligned")
	}
	if err := validateCache("icache", c.ICache); err != nil {
		return err
	}
	if err := validateCache("dcache", c.DCache); err != nil {
		return err
	}
	return nil
}

func validateCache(name string, c cache.Config) error {
	if c.BlockSize != cacheBlockSize {
		return fmt.Errorf("%s block_size must be %d", name, cacheBlockSize)
	}
	if c.Associativity <= 0 {
		return fmt.Errorf("%s associativity must be > 0", name)
	}
	if c.EnabledWays < 0 || c.EnabledWays > c.Associativity {
		return fmt.Errorf("%s enabled_ways must be in 0..%d", name, c.Associativity)
	}
	if c.Size <= 0 || c.Size%(c.Associativity*c.BlockSize) != 0 {
		return fmt.Errorf("%s size must be a multiple of associativity * block_size", name)
	}
	if sets := c.NumSets(); sets&(sets-1) != 0 {
		return fmt.Errorf("%s set count must be a power of two", name)
	}
	return nil
}

// Clone returns a deep copy of the BootConfig.
func (c *BootConfig) Clone() *BootConfig {
	clone := *c
	return &clone
}
