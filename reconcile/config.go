package reconcile

// minGuardedSpanMs is the least a window must keep after both edge guards for
// the guard to apply at all.
const minGuardedSpanMs = 500

// Thresholds control where the token stream is cut into segments.
type Thresholds struct {
	GapMs  int64 `yaml:"gap_ms"`  // split on a pause longer than this ...
	MaxLen int   `yaml:"max_len"` // ... or when the segment reaches this many runes
}

type Config struct {
	EdgeGuardMs       int64 `yaml:"edge_guard_ms"`
	DedupMs           int64 `yaml:"dedup_ms"`
	ExtrapolateStepMs int64 `yaml:"extrapolate_step_ms"`
	MinSplitLen       int   `yaml:"min_split_len"`

	// Space-delimited languages lose more to boundary deletions, so they get
	// tighter thresholds than dense scripts.
	Spaced Thresholds `yaml:"spaced"`
	Dense  Thresholds `yaml:"dense"`
	// SpacedLanguages lists hints that select the Spaced thresholds.
	SpacedLanguages []string `yaml:"spaced_languages"`

	LockInShare     float64 `yaml:"lock_in_share"`
	LockInMinWeight int     `yaml:"lock_in_min_weight"`
}

func DefaultConfig() Config {
	return Config{
		EdgeGuardMs:       2500,
		DedupMs:           120,
		ExtrapolateStepMs: 50,
		MinSplitLen:       16,
		Spaced:            Thresholds{GapMs: 700, MaxLen: 110},
		Dense:             Thresholds{GapMs: 1200, MaxLen: 140},
		SpacedLanguages:   []string{"en"},
		LockInShare:       0.80,
		LockInMinWeight:   80,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.EdgeGuardMs <= 0 {
		c.EdgeGuardMs = d.EdgeGuardMs
	}
	if c.DedupMs <= 0 {
		c.DedupMs = d.DedupMs
	}
	if c.ExtrapolateStepMs <= 0 {
		c.ExtrapolateStepMs = d.ExtrapolateStepMs
	}
	if c.MinSplitLen <= 0 {
		c.MinSplitLen = d.MinSplitLen
	}
	if c.Spaced.GapMs <= 0 || c.Spaced.MaxLen <= 0 {
		c.Spaced = d.Spaced
	}
	if c.Dense.GapMs <= 0 || c.Dense.MaxLen <= 0 {
		c.Dense = d.Dense
	}
	if len(c.SpacedLanguages) == 0 {
		c.SpacedLanguages = d.SpacedLanguages
	}
	if c.LockInShare <= 0 || c.LockInShare > 1 {
		c.LockInShare = d.LockInShare
	}
	if c.LockInMinWeight <= 0 {
		c.LockInMinWeight = d.LockInMinWeight
	}
	return c
}
