package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type NormalizerCfg struct {
	CacheCapacity int     `yaml:"cache_capacity" json:"cache_capacity"`
	EvictFraction float64 `yaml:"evict_fraction" json:"evict_fraction"`
}

type ReconcileCfg struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold" json:"confidence_threshold"`
	// Weight of a value borrowed from a sibling section
	SiblingWeight float64 `yaml:"sibling_weight" json:"sibling_weight"`
}

type ScoringCfg struct {
	RequiredWeight     float64            `yaml:"required_weight" json:"required_weight"`
	OptionalWeight     float64            `yaml:"optional_weight" json:"optional_weight"`
	LowConfidenceFloor float64            `yaml:"low_confidence_floor" json:"low_confidence_floor"`
	FieldImportance    map[string]float64 `yaml:"field_importance" json:"field_importance"`
}

type OperatorCfg struct {
	FuzzyThreshold float64 `yaml:"fuzzy_threshold" json:"fuzzy_threshold"`
	// Normalized names shorter than this never go to fuzzy matching
	FuzzyMinLength int `yaml:"fuzzy_min_length" json:"fuzzy_min_length"`
}

type Thresholds struct {
	High      float64 `yaml:"high" json:"high"`
	ReviewLow float64 `yaml:"review_low" json:"review_low"`
}

type EngineCfg struct {
	Normalizer NormalizerCfg `yaml:"normalizer" json:"normalizer"`
	Reconcile  ReconcileCfg  `yaml:"reconcile" json:"reconcile"`
	Scoring    ScoringCfg    `yaml:"scoring" json:"scoring"`
	Operator   OperatorCfg   `yaml:"operator" json:"operator"`
	Thresholds Thresholds    `yaml:"thresholds" json:"thresholds"`
	// UseLibpostal enables the libpostal fallback when the binary was built with it
	UseLibpostal bool `yaml:"use_libpostal" json:"use_libpostal"`
}

var C = Default()

// Default returns the engine tuning used when no file is loaded
func Default() EngineCfg {
	return EngineCfg{
		Normalizer: NormalizerCfg{CacheCapacity: 1000, EvictFraction: 0.1},
		Reconcile:  ReconcileCfg{ConfidenceThreshold: 0.3, SiblingWeight: 0.9},
		Scoring: ScoringCfg{
			RequiredWeight:     0.7,
			OptionalWeight:     0.3,
			LowConfidenceFloor: 0.35,
		},
		Operator:   OperatorCfg{FuzzyThreshold: 0.88, FuzzyMinLength: 5},
		Thresholds: Thresholds{High: 0.75, ReviewLow: 0.5},
	}
}

// Load reads the engine config at path into C. A missing file still
// returns its error, but C is reset to the defaults with env overrides.
func Load(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if isNotExist(err) {
			cfg := Default()
			applyEnv(&cfg)
			C = cfg
		}
		return err
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return err
	}
	applyEnv(&cfg)
	C = cfg
	return nil
}

// ENV overrides
func applyEnv(cfg *EngineCfg) {
	if v := os.Getenv("ENGINE_CACHE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Normalizer.CacheCapacity = n
		}
	}
	if v := os.Getenv("ENGINE_LOW_CONFIDENCE_FLOOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Scoring.LowConfidenceFloor = f
		}
	}
	switch os.Getenv("USE_LIBPOSTAL") {
	case "0":
		cfg.UseLibpostal = false
	case "1":
		cfg.UseLibpostal = true
	}
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
