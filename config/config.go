// Package config provides configuration loading and access for shipyard.
package config

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"runtime"

	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/shipyard/itemlink"
	"github.com/pthm-cable/shipyard/mutate"
	"github.com/pthm-cable/shipyard/search"
	"github.com/pthm-cable/shipyard/ship"
	"github.com/pthm-cable/shipyard/thrust"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all configuration parameters.
type Config struct {
	Linker    LinkerConfig    `yaml:"linker"`
	Mutation  MutationConfig  `yaml:"mutation"`
	Search    SearchConfig    `yaml:"search"`
	Thrust    ThrustConfig    `yaml:"thrust"`
	Workers   WorkersConfig   `yaml:"workers"`
	Ship      ShipConfig      `yaml:"ship"`
	Hull      HullConfig      `yaml:"hull"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// LinkerConfig holds item linker tuning.
type LinkerConfig struct {
	Combine  CombineConfig  `yaml:"combine"`
	Overflow OverflowConfig `yaml:"overflow"`
	Extra    ExtraConfig    `yaml:"extra"`
	Fuzzy    FuzzyConfig    `yaml:"fuzzy"`
}

// CombineConfig holds the Delaunay triangle pruning thresholds.
type CombineConfig struct {
	RatioSkinny float64 `yaml:"ratio_skinny"` // short/long below this is skinny
	RatioWide   float64 `yaml:"ratio_wide"`   // long/(short+mid) above this is wide
	MergeChance float64 `yaml:"merge_chance"` // skinny triangles merge instead of dropping an edge
}

// OverflowConfig enables burden balanced sensor linking.
type OverflowConfig struct {
	Enabled            bool    `yaml:"enabled"`
	LinkResistanceMult float64 `yaml:"link_resistance_mult"`
}

// ExtraConfig adds links beyond one per sensor.
type ExtraConfig struct {
	Percent          float64 `yaml:"percent"` // 0 disables
	BySize           bool    `yaml:"by_size"`
	EvenlyDistribute bool    `yaml:"evenly_distribute"`
}

// FuzzyConfig bounds link re-projection after remutation.
type FuzzyConfig struct {
	MaxFinal        int `yaml:"max_final"` // 0 keeps the current link count
	MaxIntermediate int `yaml:"max_intermediate"`
}

// MutationConfig holds mutation factors.
type MutationConfig struct {
	Position mutate.Factor `yaml:"position"`
	Thrust   mutate.Factor `yaml:"thrust"`
}

// SearchConfig holds discovery loop bounds.
type SearchConfig struct {
	PoolSize        int     `yaml:"pool_size"`
	Survivors       int     `yaml:"survivors"`
	FreshFraction   float64 `yaml:"fresh_fraction"`
	MaxIterations   int     `yaml:"max_iterations"`
	StallIterations int     `yaml:"stall_iterations"`
	Parallelism     int     `yaml:"parallelism"`
}

// ThrustConfig holds thrust solver parameters.
type ThrustConfig struct {
	Directions      int          `yaml:"directions"`       // linear directions sampled on the unit sphere
	IncludeRotation bool         `yaml:"include_rotation"` // also solve pure torque about each axis
	Polish          PolishConfig `yaml:"polish"`
}

// PolishConfig holds CMA-ES refinement parameters.
type PolishConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Evaluations  int     `yaml:"evaluations"`
	InitStepSize float64 `yaml:"init_step_size"`
	Population   int     `yaml:"population"` // 0 = CMA-ES default
}

// WorkersConfig holds worker pool parameters.
type WorkersConfig struct {
	Count      int `yaml:"count"` // 0 = GOMAXPROCS
	QueueDepth int `yaml:"queue_depth"`
}

// ShipConfig holds per-step ship parameters.
type ShipConfig struct {
	BurnRate        float64 `yaml:"burn_rate"`        // fuel per second per unit force
	ResourceDensity float64 `yaml:"resource_density"` // mass per unit of stored resource
	StepDT          float64 `yaml:"step_dt"`
}

// HullConfig shapes the procedural demo ship.
type HullConfig struct {
	Length    float64 `yaml:"length"`
	Radius    float64 `yaml:"radius"`
	Tanks     int     `yaml:"tanks"`
	Thrusters int     `yaml:"thrusters"`
	Sensors   int     `yaml:"sensors"`
	Brains    int     `yaml:"brains"`
}

// TelemetryConfig holds output parameters.
type TelemetryConfig struct {
	SolverCSV     bool `yaml:"solver_csv"`
	ContainerCSV  bool `yaml:"container_csv"`
	LinkCSV       bool `yaml:"link_csv"`
	ContainerStep int  `yaml:"container_step"` // log containers every N steps
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	Workers    int      // Workers.Count, or GOMAXPROCS when 0
	Directions []r3.Vec // Thrust.Directions unit vectors spread over the sphere
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.computeDerived()

	return cfg, nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.Workers = c.Workers.Count
	if c.Derived.Workers <= 0 {
		c.Derived.Workers = runtime.GOMAXPROCS(0)
	}
	c.Derived.Directions = sphereDirections(c.Thrust.Directions)
}

// sphereDirections spreads n unit vectors evenly over the sphere on a
// Fibonacci spiral.
func sphereDirections(n int) []r3.Vec {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []r3.Vec{{Z: 1}}
	}
	golden := math.Pi * (3 - math.Sqrt(5))
	out := make([]r3.Vec, n)
	for i := range out {
		z := 1 - 2*float64(i)/float64(n-1)
		r := math.Sqrt(math.Max(0, 1-z*z))
		theta := golden * float64(i)
		out[i] = r3.Vec{X: math.Cos(theta) * r, Y: math.Sin(theta) * r, Z: z}
	}
	return out
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// CombineArgs returns the LinkSelf arguments.
func (c LinkerConfig) CombineArgs() itemlink.CombineArgs {
	return itemlink.CombineArgs{
		RatioSkinny: c.Combine.RatioSkinny,
		RatioWide:   c.Combine.RatioWide,
		MergeChance: c.Combine.MergeChance,
	}
}

// OverflowArgs returns the Link12 burden arguments, nil when disabled.
func (c LinkerConfig) OverflowArgs() *itemlink.OverflowArgs {
	if !c.Overflow.Enabled {
		return nil
	}
	return &itemlink.OverflowArgs{LinkResistanceMult: c.Overflow.LinkResistanceMult}
}

// ExtraArgs returns the Link12 extra link arguments, nil when disabled.
func (c LinkerConfig) ExtraArgs() *itemlink.ExtraArgs {
	if c.Extra.Percent <= 0 {
		return nil
	}
	return &itemlink.ExtraArgs{
		Percent:          c.Extra.Percent,
		BySize:           c.Extra.BySize,
		EvenlyDistribute: c.Extra.EvenlyDistribute,
	}
}

// SearchOptions returns discovery loop options for sample type S.
func SearchOptions[S any](c SearchConfig) search.Options[S] {
	return search.Options[S]{
		PoolSize:        c.PoolSize,
		Survivors:       c.Survivors,
		FreshFraction:   c.FreshFraction,
		MaxIterations:   c.MaxIterations,
		StallIterations: c.StallIterations,
		Parallelism:     c.Parallelism,
	}
}

// ThrustOptions returns the thrust solver options.
func (c *Config) ThrustOptions() thrust.Options {
	return thrust.Options{
		Search:   SearchOptions[thrust.Map](c.Search),
		Mutation: c.Mutation.Thrust,
	}
}

// PolishSettings returns the CMA-ES settings.
func (c *Config) PolishSettings() thrust.PolishSettings {
	return thrust.PolishSettings{
		Evaluations:  c.Thrust.Polish.Evaluations,
		InitStepSize: c.Thrust.Polish.InitStepSize,
		Population:   c.Thrust.Polish.Population,
	}
}

// ThrustRequests returns one linear request per sampled direction, plus one
// torque request per axis when rotation is enabled.
func (c *Config) ThrustRequests() []thrust.Request {
	var out []thrust.Request
	for i, d := range c.Derived.Directions {
		d := d
		out = append(out, thrust.Request{Name: fmt.Sprintf("linear-%d", i), Linear: &d})
	}
	if c.Thrust.IncludeRotation {
		for _, axis := range []struct {
			name string
			v    r3.Vec
		}{{"roll", r3.Vec{Z: 1}}, {"pitch", r3.Vec{X: 1}}, {"yaw", r3.Vec{Y: 1}}} {
			v := axis.v
			out = append(out, thrust.Request{Name: axis.name, Rotation: &v})
		}
	}
	return out
}

// ShipSettings returns the ship assembly settings.
func (c *Config) ShipSettings() ship.Settings {
	return ship.Settings{
		BurnRate:         c.Ship.BurnRate,
		ResourceDensity:  c.Ship.ResourceDensity,
		Combine:          c.Linker.CombineArgs(),
		Overflow:         c.Linker.OverflowArgs(),
		Extra:            c.Linker.ExtraArgs(),
		PositionMutation: c.Mutation.Position,
		MaxSynapses:      c.Linker.Fuzzy.MaxFinal,
		MaxIntermediate:  c.Linker.Fuzzy.MaxIntermediate,
	}
}

// HullOptions returns the procedural hull shape.
func (c *Config) HullOptions() ship.HullOptions {
	return ship.HullOptions{
		Length:    c.Hull.Length,
		Radius:    c.Hull.Radius,
		Tanks:     c.Hull.Tanks,
		Thrusters: c.Hull.Thrusters,
		Sensors:   c.Hull.Sensors,
		Brains:    c.Hull.Brains,
	}
}
