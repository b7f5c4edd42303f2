package aggregator

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Tuning is the set of thresholds and weights driving stream decisions.
type Tuning struct {
	// Gap boundaries. StrongMergeMs < SoftGapMs < HardGapMs.
	StrongMergeMs int64 `yaml:"strongMergeMs"`
	ShortGapMs    int64 `yaml:"shortGapMs"`
	SoftGapMs     int64 `yaml:"softGapMs"`
	HardGapMs     int64 `yaml:"hardGapMs"`

	LangStableP        float64 `yaml:"langStableP"`
	LangSwitchMargin   float64 `yaml:"langSwitchMargin"`
	LangSwitchMinGapMs int64   `yaml:"langSwitchMinGapMs"`

	ScoreThreshold        int     `yaml:"scoreThreshold"`
	WeightVeryShort       int     `yaml:"weightVeryShort"`
	WeightShort           int     `yaml:"weightShort"`
	WeightShortGap        int     `yaml:"weightShortGap"`
	WeightNoTerminalPunct int     `yaml:"weightNoTerminalPunct"`
	WeightConnectiveTail  int     `yaml:"weightConnectiveTail"`
	WeightLowQuality      int     `yaml:"weightLowQuality"`
	WeightPrevOpen        int     `yaml:"weightPrevOpen"`
	QualityThreshold      float64 `yaml:"qualityThreshold"`

	ShortCjkChars     int `yaml:"shortCjkChars"`
	VeryShortCjkChars int `yaml:"veryShortCjkChars"`
	ShortWords        int `yaml:"shortWords"`
	VeryShortWords    int `yaml:"veryShortWords"`

	// Pending text at or above these sizes is committed even without a boundary.
	CommitLenCjk        int   `yaml:"commitLenCjk"`
	CommitLenWords      int   `yaml:"commitLenWords"`
	MergeGroupTimeoutMs int64 `yaml:"mergeGroupTimeoutMs"`

	TailCarryCjkChars int `yaml:"tailCarryCjkChars"`
	TailCarryWords    int `yaml:"tailCarryWords"`

	DedupMinOverlap int `yaml:"dedupMinOverlap"`
	DedupMaxOverlap int `yaml:"dedupMaxOverlap"`
}

// TuningSet maps each mode to its tuning.
type TuningSet map[Mode]Tuning

// DefaultTuning returns the built-in tuning for a mode. Unknown modes get the
// offline profile.
func DefaultTuning(mode Mode) Tuning {
	t := Tuning{
		StrongMergeMs: 700,
		ShortGapMs:    1000,
		SoftGapMs:     1500,
		HardGapMs:     2000,

		LangStableP:        0.8,
		LangSwitchMargin:   0.15,
		LangSwitchMinGapMs: 600,

		ScoreThreshold:        3,
		WeightVeryShort:       3,
		WeightShort:           2,
		WeightShortGap:        1,
		WeightNoTerminalPunct: 1,
		WeightConnectiveTail:  1,
		WeightLowQuality:      1,
		WeightPrevOpen:        1,
		QualityThreshold:      0.5,

		ShortCjkChars:     10,
		VeryShortCjkChars: 4,
		ShortWords:        6,
		VeryShortWords:    3,

		CommitLenCjk:        120,
		CommitLenWords:      60,
		MergeGroupTimeoutMs: 10000,

		TailCarryCjkChars: 3,
		TailCarryWords:    2,

		DedupMinOverlap: 3,
		DedupMaxOverlap: 15,
	}
	if mode == ModeRoom {
		t.StrongMergeMs = 600
		t.ShortGapMs = 800
		t.SoftGapMs = 1000
		t.HardGapMs = 1500
		t.CommitLenCjk = 80
		t.CommitLenWords = 40
	}
	return t
}

// DefaultTuningSet returns the built-in tuning for every known mode.
func DefaultTuningSet() TuningSet {
	return TuningSet{
		ModeOffline: DefaultTuning(ModeOffline),
		ModeRoom:    DefaultTuning(ModeRoom),
	}
}

// For returns the tuning of a mode, falling back to the built-in default.
func (s TuningSet) For(mode Mode) Tuning {
	if t, ok := s[mode]; ok {
		return t
	}
	return DefaultTuning(mode)
}

// Validate checks the gap ordering and non-negativity invariants.
func (t Tuning) Validate() error {
	if t.StrongMergeMs < 0 || t.ShortGapMs < 0 || t.SoftGapMs < 0 || t.HardGapMs < 0 || t.LangSwitchMinGapMs < 0 {
		return fmt.Errorf("tuning: gap thresholds must be non-negative")
	}
	if !(t.StrongMergeMs < t.SoftGapMs && t.SoftGapMs < t.HardGapMs) {
		return fmt.Errorf("tuning: need strongMergeMs < softGapMs < hardGapMs, got %d/%d/%d",
			t.StrongMergeMs, t.SoftGapMs, t.HardGapMs)
	}
	if t.MergeGroupTimeoutMs <= 0 {
		return fmt.Errorf("tuning: mergeGroupTimeoutMs must be > 0, got %d", t.MergeGroupTimeoutMs)
	}
	if t.DedupMinOverlap < 1 || t.DedupMaxOverlap < t.DedupMinOverlap {
		return fmt.Errorf("tuning: need 1 <= dedupMinOverlap <= dedupMaxOverlap, got %d/%d",
			t.DedupMinOverlap, t.DedupMaxOverlap)
	}
	if t.TailCarryCjkChars < 0 || t.TailCarryWords < 0 {
		return fmt.Errorf("tuning: tail carry sizes must be non-negative")
	}
	return nil
}

// ParseTuningProfile applies a YAML profile of per-mode partial overrides on
// top of base. Fields absent from the profile keep their base value.
//
//	room:
//	  hardGapMs: 1400
//	  scoreThreshold: 4
func ParseTuningProfile(data []byte, base TuningSet) (TuningSet, error) {
	var doc map[Mode]yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("tuning: decode profile: %w", err)
	}

	out := make(TuningSet, len(base)+len(doc))
	for mode, t := range base {
		out[mode] = t
	}
	for mode, node := range doc {
		t := out.For(mode)
		if err := node.Decode(&t); err != nil {
			return nil, fmt.Errorf("tuning: decode mode %q: %w", mode, err)
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("tuning: mode %q: %w", mode, err)
		}
		out[mode] = t
	}
	return out, nil
}
