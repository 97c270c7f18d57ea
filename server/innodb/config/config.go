// Package config holds the core's own tuning knobs, distinct from the
// user-facing server/CLI configuration (out of scope).
package config

import (
	"os"
	"reflect"

	"github.com/pelletier/go-toml"
)

// EngineConfig tunes the L0-L9 layers. Default returns the reference-design
// value of every field, and Load fills any field a config file leaves at
// zero from it; a zero-value EngineConfig itself carries no defaults.
type EngineConfig struct {
	PageSize int `toml:"page_size"`

	// OnlineLogBlockSize is the size in bytes of one online-build-log block
	// (spec §4.4: "default 1 MiB").
	OnlineLogBlockSize int64 `toml:"online_log_block_size"`
	// OnlineLogMaxSize bounds the total log size before ONLINE_LOG_TOO_BIG.
	OnlineLogMaxSize int64 `toml:"online_log_max_size"`

	// BulkBuildBufferSize bounds the bulk builder's in-memory sort buffer.
	BulkBuildBufferSize int64 `toml:"bulk_build_buffer_size"`

	// FKMaxCascadeDepth caps foreign-key cascade chains (spec §4.3).
	FKMaxCascadeDepth int `toml:"fk_max_cascade_depth"`

	// ScrubDictWaitSliceMillis is how long the scrubber yields between dictionary
	// latch acquisition retries (spec §5: "yields in 250 ms slices").
	ScrubDictWaitSliceMillis int `toml:"scrub_dict_wait_slice_millis"`
	// ScrubDictWaitDiagnosticSeconds is the stall window after which a
	// diagnostic warning fires (spec §4.6: "30-second diagnostic").
	ScrubDictWaitDiagnosticSeconds int `toml:"scrub_dict_wait_diagnostic_seconds"`
}

// Default returns the reference-design configuration.
func Default() *EngineConfig {
	return &EngineConfig{
		PageSize:                       16 * 1024,
		OnlineLogBlockSize:             1 << 20,
		OnlineLogMaxSize:               512 << 20,
		BulkBuildBufferSize:            8 << 20,
		FKMaxCascadeDepth:              15,
		ScrubDictWaitSliceMillis:       250,
		ScrubDictWaitDiagnosticSeconds: 30,
	}
}

// Load reads a toml engine-config file, filling any field left at its zero
// value with the reference default.
func Load(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	def := reflect.ValueOf(Default()).Elem()
	got := reflect.ValueOf(cfg).Elem()
	for i := 0; i < got.NumField(); i++ {
		if got.Field(i).IsZero() {
			got.Field(i).Set(def.Field(i))
		}
	}
	return cfg, nil
}
