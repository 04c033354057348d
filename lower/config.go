package lower

// Features names optional instruction families. A Config stores it, but the
// engine does not read it: every family the engine has a lowering for
// (including SIMD, atomics, GC and exceptions) is accepted whatever
// Features holds.
type Features struct {
	SIMD    bool
	Atomics bool
	GC      bool
	Exceptions bool
}

// defaultMaxPromotedConstants is the promotion budget used when
// WithMaxPromotedConstants is not supplied. §9's Open Question — whether this
// is a tuning parameter or a fixed implementation constant — is resolved here
// as a tuning parameter: it is a Config field with this default, not a
// compile-time constant, so callers profiling a specific workload can raise
// or lower it without touching the engine.
const defaultMaxPromotedConstants = 6

// Config controls the lowering engine's tunable behavior. Construct with
// NewConfig and zero or more Options.
type Config struct {
	maxPromotedConstants int
	packing              bool
	features             Features
}

// Option configures a Config.
type Option func(*Config)

// NewConfig builds a Config from the given options, starting from the
// engine's defaults (promotion budget 6, frame packing enabled, baseline
// features only).
func NewConfig(opts ...Option) Config {
	c := Config{
		maxPromotedConstants: defaultMaxPromotedConstants,
		packing:              true,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithMaxPromotedConstants overrides the constant-promotion budget (§4.C.7).
// A negative value disables the cap entirely.
func WithMaxPromotedConstants(n int) Option {
	return func(c *Config) { c.maxPromotedConstants = n }
}

// WithPacking toggles the frame's two-sweep local-packing rearrangement
// (§4.B). Disabling it allocates locals strictly in declaration order.
func WithPacking(enabled bool) Option {
	return func(c *Config) { c.packing = enabled }
}

// WithFeatures stores f in the Config; it does not change which instruction
// families the engine accepts.
func WithFeatures(f Features) Option {
	return func(c *Config) { c.features = f }
}
