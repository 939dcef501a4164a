// Package bridge wires together the capture source, mode arbiter, and the
// two adaptive playback sinks that make up the S/PDIF loopback bridge.
package bridge

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	defaultChunkBytes        = 512
	defaultDetectionWindow   = 64
	defaultPCMRingCapacity   = 2048
	defaultAC3RingCapacity   = 32768
	defaultPCMTargetFill     = 128
	defaultAC3TargetFill     = 384
	defaultPCMLoopGain       = 4e-6
	defaultAC3LoopGain       = 1.33e-6
	defaultHistorySize       = 16
	defaultPCMConsumerBlock  = 32
	defaultAC3ConsumerBlock  = 96
	defaultPCMDefaultBufSize = 2048
	defaultAC3DefaultBufSize = 6144
	defaultSampleRate        = 48000
)

// Config holds every tunable parameter that would otherwise be a magic
// number: ring sizes, target fills, loop gains, consumer block sizes, and
// the detection window. Both sinks share the
// same HistorySize so their control loops stay structurally identical.
type Config struct {
	ChunkBytes      int
	DetectionWindow int

	PCMRingCapacity int
	AC3RingCapacity int

	PCMTargetFill int
	AC3TargetFill int

	PCMLoopGain float64
	AC3LoopGain float64

	HistorySize int

	PCMConsumerBlock int
	AC3ConsumerBlock int

	LatencyMicros int

	PCMDefaultBufBytes int
	AC3DefaultBufBytes int

	SampleRate int
}

// DefaultConfig returns the configuration implied by spec.md, with no
// overrides applied.
func DefaultConfig() Config {
	return Config{
		ChunkBytes:      defaultChunkBytes,
		DetectionWindow: defaultDetectionWindow,

		PCMRingCapacity: defaultPCMRingCapacity,
		AC3RingCapacity: defaultAC3RingCapacity,

		PCMTargetFill: defaultPCMTargetFill,
		AC3TargetFill: defaultAC3TargetFill,

		PCMLoopGain: defaultPCMLoopGain,
		AC3LoopGain: defaultAC3LoopGain,

		HistorySize: defaultHistorySize,

		PCMConsumerBlock: defaultPCMConsumerBlock,
		AC3ConsumerBlock: defaultAC3ConsumerBlock,

		PCMDefaultBufBytes: defaultPCMDefaultBufSize,
		AC3DefaultBufBytes: defaultAC3DefaultBufSize,

		SampleRate: defaultSampleRate,
	}
}

// yamlConfig mirrors the on-disk override file. Only a subset of Config is
// exposed for tuning; structural values (chunk size, sample rate) are not
// overridable because the rest of the core assumes them fixed.
type yamlConfig struct {
	Ring struct {
		PCMCapacity int `yaml:"pcm_capacity"`
		AC3Capacity int `yaml:"ac3_capacity"`
	} `yaml:"ring"`
	Control struct {
		PCMTargetFill int     `yaml:"pcm_target_fill"`
		AC3TargetFill int     `yaml:"ac3_target_fill"`
		PCMLoopGain   float64 `yaml:"pcm_loop_gain"`
		AC3LoopGain   float64 `yaml:"ac3_loop_gain"`
		HistorySize   int     `yaml:"history_size"`
	} `yaml:"control"`
	Sink struct {
		PCMConsumerBlock   int `yaml:"pcm_consumer_block"`
		AC3ConsumerBlock   int `yaml:"ac3_consumer_block"`
		PCMDefaultBufBytes int `yaml:"pcm_default_buf_bytes"`
		AC3DefaultBufBytes int `yaml:"ac3_default_buf_bytes"`
	} `yaml:"sink"`
	Detect struct {
		Window int `yaml:"window"`
	} `yaml:"detect"`
}

// LoadConfigOverrides reads a YAML override file and applies any non-zero
// fields on top of DefaultConfig. A missing path is not an error: this
// bridge runs fine with built-in defaults, unlike configs that require
// mandatory credentials.
func LoadConfigOverrides(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	if yc.Ring.PCMCapacity > 0 {
		cfg.PCMRingCapacity = yc.Ring.PCMCapacity
	}
	if yc.Ring.AC3Capacity > 0 {
		cfg.AC3RingCapacity = yc.Ring.AC3Capacity
	}
	if yc.Control.PCMTargetFill > 0 {
		cfg.PCMTargetFill = yc.Control.PCMTargetFill
	}
	if yc.Control.AC3TargetFill > 0 {
		cfg.AC3TargetFill = yc.Control.AC3TargetFill
	}
	if yc.Control.PCMLoopGain > 0 {
		cfg.PCMLoopGain = yc.Control.PCMLoopGain
	}
	if yc.Control.AC3LoopGain > 0 {
		cfg.AC3LoopGain = yc.Control.AC3LoopGain
	}
	if yc.Control.HistorySize > 0 {
		cfg.HistorySize = yc.Control.HistorySize
	}
	if yc.Sink.PCMConsumerBlock > 0 {
		cfg.PCMConsumerBlock = yc.Sink.PCMConsumerBlock
	}
	if yc.Sink.AC3ConsumerBlock > 0 {
		cfg.AC3ConsumerBlock = yc.Sink.AC3ConsumerBlock
	}
	if yc.Sink.PCMDefaultBufBytes > 0 {
		cfg.PCMDefaultBufBytes = yc.Sink.PCMDefaultBufBytes
	}
	if yc.Sink.AC3DefaultBufBytes > 0 {
		cfg.AC3DefaultBufBytes = yc.Sink.AC3DefaultBufBytes
	}
	if yc.Detect.Window > 0 {
		cfg.DetectionWindow = yc.Detect.Window
	}

	if cfg.HistorySize&(cfg.HistorySize-1) != 0 {
		return Config{}, fmt.Errorf("control.history_size must be a power of two, got %d", cfg.HistorySize)
	}
	if cfg.PCMRingCapacity&(cfg.PCMRingCapacity-1) != 0 {
		return Config{}, fmt.Errorf("ring.pcm_capacity must be a power of two, got %d", cfg.PCMRingCapacity)
	}
	if cfg.AC3RingCapacity&(cfg.AC3RingCapacity-1) != 0 {
		return Config{}, fmt.Errorf("ring.ac3_capacity must be a power of two, got %d", cfg.AC3RingCapacity)
	}

	return cfg, nil
}
