package memorymodel

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Options configures a Session and every snapshot created from it.
type Options struct {
	// Values per entry before CommitTransaction collapses scalars of one
	// kind to its "any" value (default: 5). Zero disables simplification.
	SimplifyLimit int `yaml:"simplifyLimit"`

	// Widening level controls how aggressively WidenAndCommitTransaction
	// generalises grown entries
	// 0 = none (rely on SimplifyLimit alone)
	// 1 = per kind (grown ints become anyint, ...)
	// 2 = aggressive (any grown scalar set becomes anyscalar)
	WideningLevel int `yaml:"wideningLevel"` // default: 1

	// Max alias hops the collector follows from one resolved location
	// (default: 64).
	MaxAliasDepth int `yaml:"maxAliasDepth"`

	// Logging configuration
	LogLevel      string `yaml:"logLevel"`      // "error", "warn", "info", "debug" (default: "warn")
	DumpMaxValues int    `yaml:"dumpMaxValues"` // Max values per entry in logs and dumps (default: 8)

	// Logger overrides the logger built from LogLevel.
	Logger Logger `yaml:"-"`
}

// DefaultOptions returns the default configuration.
func DefaultOptions() Options {
	return Options{
		SimplifyLimit: 5,
		WideningLevel: 1,
		MaxAliasDepth: 64,
		LogLevel:      "warn",
		DumpMaxValues: 8,
	}
}

// LoadOptions decodes YAML options from r over DefaultOptions. Keys that
// are absent keep their defaults.
func LoadOptions(r io.Reader) (Options, error) {
	opts := DefaultOptions()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil && err != io.EOF {
		return Options{}, fmt.Errorf("failed to decode options: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// withDefaults fills the settings whose zero value cannot be meant: an alias
// depth of zero would follow no alias at all.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxAliasDepth == 0 {
		o.MaxAliasDepth = def.MaxAliasDepth
	}
	if o.LogLevel == "" {
		o.LogLevel = def.LogLevel
	}
	return o
}

// Validate reports out-of-range settings.
func (o Options) Validate() error {
	if o.SimplifyLimit < 0 {
		return fmt.Errorf("simplifyLimit must not be negative, got %d", o.SimplifyLimit)
	}
	if o.WideningLevel < 0 || o.WideningLevel > 2 {
		return fmt.Errorf("wideningLevel must be 0, 1 or 2, got %d", o.WideningLevel)
	}
	if o.MaxAliasDepth <= 0 {
		return fmt.Errorf("maxAliasDepth must be positive, got %d", o.MaxAliasDepth)
	}
	return nil
}
