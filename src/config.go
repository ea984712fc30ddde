package r2span

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SpanConfig is the validated form of a span's on-disk YAML options,
// decoded with strict key checking so a typo'd option name fails
// configure instead of silently being ignored.
type SpanConfig struct {
	Variant               string `yaml:"variant"`
	Category              string `yaml:"category"`
	LogDir                string `yaml:"logdir"`
	Logging               string `yaml:"logging"`
	AdvancedProtocolFile  string `yaml:"advanced_protocol_file"`
	MaxANI                int    `yaml:"max_ani"`
	MaxDNIS               int    `yaml:"max_dnis"`
	MFBackTimeoutMS       int    `yaml:"mfback_timeout"`
	MeteringPulseTimeoutMS int   `yaml:"metering_pulse_timeout"`
	MFDumpSize            int    `yaml:"mf_dump_size"`
	ImmediateAccept       bool   `yaml:"immediate_accept"`
	SkipCategory          bool   `yaml:"skip_category"`
	GetANIFirst           bool   `yaml:"get_ani_first"`
	CallFiles             bool   `yaml:"call_files"`
	DoubleAnswer          bool   `yaml:"double_answer"`
	ChargeCalls           bool   `yaml:"charge_calls"`
	ForcedRelease         bool   `yaml:"forced_release"`
	AllowCollectCalls     bool   `yaml:"allow_collect_calls"`

	// Channels lists the timeslots to open.
	Channels []ChannelID `yaml:"channels"`

	// DumpDirPattern is an strftime prefix for diagnostic dump rotation
	// directories, empty by default.
	DumpDirPattern string `yaml:"dump_dir_pattern"`
}

// knownOptions backs the unknown-option-fails-configure rule when
// decoding YAML with strict key checking.
var knownOptions = map[string]bool{
	"variant": true, "category": true, "logdir": true, "logging": true,
	"advanced_protocol_file": true, "max_ani": true, "max_dnis": true,
	"mfback_timeout": true, "metering_pulse_timeout": true, "mf_dump_size": true,
	"immediate_accept": true, "skip_category": true, "get_ani_first": true,
	"call_files": true, "double_answer": true, "charge_calls": true,
	"forced_release": true, "allow_collect_calls": true, "channels": true,
	"dump_dir_pattern": true,
}

const MaxChannelsPerSpan = 31 // E1: 32 timeslots, minus the framing slot

// DefaultSpanConfig returns the baseline option values a span starts
// from before its on-disk YAML is applied.
func DefaultSpanConfig() SpanConfig {
	return SpanConfig{
		Variant:  "ITU",
		Category: "national_subscriber",
		LogDir:   os.TempDir(),
		Logging:  "notice,warning,error",
		MaxANI:   10,
		MaxDNIS:  4,
	}
}

// LoadSpanConfig reads and validates a span configuration file.
func LoadSpanConfig(path string) (SpanConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return SpanConfig{}, fmt.Errorf("r2span: read config: %w", err)
	}
	return ParseSpanConfig(raw)
}

// ParseSpanConfig validates option keys then decodes into SpanConfig,
// starting from DefaultSpanConfig.
func ParseSpanConfig(raw []byte) (SpanConfig, error) {
	var generic map[string]any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return SpanConfig{}, fmt.Errorf("r2span: parse config: %w", err)
	}
	for key := range generic {
		if !knownOptions[key] {
			return SpanConfig{}, &ErrUnknownOption{Option: key}
		}
	}
	cfg := DefaultSpanConfig()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return SpanConfig{}, fmt.Errorf("r2span: decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return SpanConfig{}, err
	}
	return cfg, nil
}

// knownVariants lists the variants this module's bundled PE bindings
// claim to support; a real PE binding's own PEContext.Variants() is the
// authority once a span is configured, but Validate rejects obviously
// unknown names early.
var knownVariants = map[string]bool{
	"ITU": true, "ARGENTINA": true, "BRAZIL": true, "CHINA": true,
	"COLOMBIA": true, "MEXICO": true, "VENEZUELA": true, "ITU_R24": true,
	"ITU_R25": true,
}

// Validate checks the option set required to gate Configure.
func (c SpanConfig) Validate() error {
	if !knownVariants[c.Variant] {
		return &ErrUnknownVariant{Variant: c.Variant}
	}
	if c.MaxANI <= 0 || c.MaxDNIS <= 0 {
		return fmt.Errorf("r2span: max_ani and max_dnis must be positive")
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("r2span: at least one channel must be configured")
	}
	if len(c.Channels) > MaxChannelsPerSpan {
		return fmt.Errorf("r2span: too many channels (%d > %d)", len(c.Channels), MaxChannelsPerSpan)
	}
	for _, ch := range c.Channels {
		if ch <= 0 {
			return fmt.Errorf("r2span: channel ids must be positive, got %d", ch)
		}
	}
	return nil
}

func (c SpanConfig) peContextConfig() PEContextConfig {
	return PEContextConfig{
		Variant:                c.Variant,
		DefaultCategory:        c.Category,
		MaxANI:                 c.MaxANI,
		MaxDNIS:                c.MaxDNIS,
		LogDir:                 c.LogDir,
		AdvancedProtocolFile:   c.AdvancedProtocolFile,
		MFBackTimeoutMS:        c.MFBackTimeoutMS,
		MeteringPulseTimeoutMS: c.MeteringPulseTimeoutMS,
		ImmediateAccept:        c.ImmediateAccept,
		SkipCategory:           c.SkipCategory,
		GetANIFirst:            c.GetANIFirst,
		DoubleAnswer:           c.DoubleAnswer,
		ChargeCalls:            c.ChargeCalls,
		ForcedRelease:          c.ForcedRelease,
		AllowCollectCalls:      c.AllowCollectCalls,
	}
}
