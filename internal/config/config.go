package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Weights are the per-category maxima of Phase 1. They must sum to 100.
type Weights struct {
	OSM         int `json:"osm" yaml:"osm"`
	Website     int `json:"website" yaml:"website"`
	Social      int `json:"social" yaml:"social"`
	CrossRef    int `json:"crossref" yaml:"crossref"`
	Consistency int `json:"consistency" yaml:"consistency"`
}

// Sum returns the total of all five weights.
func (w Weights) Sum() int {
	return w.OSM + w.Website + w.Social + w.CrossRef + w.Consistency
}

// Phase2Weights are the bonuses awarded for a confirmed outreach per channel.
type Phase2Weights struct {
	Email    int `json:"email" yaml:"email"`
	SocialDM int `json:"social_dm" yaml:"social_dm"`
}

// Thresholds are the inclusive lower bounds of the HIGH, MEDIUM and LOW levels.
type Thresholds struct {
	High   int `json:"high" yaml:"high"`
	Medium int `json:"medium" yaml:"medium"`
	Low    int `json:"low" yaml:"low"`
}

// Retry bounds provider retries.
type Retry struct {
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay" yaml:"base_delay"`
}

// Config is the immutable scoring and workflow configuration of a triage run.
type Config struct {
	Weights             Weights       `json:"weights"`
	Phase2Weights       Phase2Weights `json:"phase2_weights"`
	Thresholds          Thresholds    `json:"thresholds"`
	Phase1Threshold     int           `json:"phase1_threshold"`
	TrustedSourceLabels []string      `json:"trusted_source_labels"`
	TrustedSourceFloor  int           `json:"trusted_source_floor"`
	ConflictPenalty     int           `json:"conflict_penalty"`
	DenialPenalty       int           `json:"denial_penalty"`
	OSMAbsentMin        int           `json:"osm_absent_min"`
	OutreachTimeout     time.Duration `json:"outreach_timeout"`
	SocialRecencyWindow time.Duration `json:"social_recency_window"`
	DuplicateRadius     float64       `json:"duplicate_radius_m"`
	Retry               Retry         `json:"retry"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Weights: Weights{
			OSM:         30,
			Website:     25,
			Social:      20,
			CrossRef:    15,
			Consistency: 10,
		},
		Phase2Weights: Phase2Weights{
			Email:    20,
			SocialDM: 15,
		},
		Thresholds: Thresholds{
			High:   90,
			Medium: 70,
			Low:    50,
		},
		Phase1Threshold:     70,
		TrustedSourceLabels: []string{"trusted-import", "square"},
		TrustedSourceFloor:  30,
		ConflictPenalty:     20,
		DenialPenalty:       50,
		OSMAbsentMin:        5,
		OutreachTimeout:     24 * time.Hour,
		SocialRecencyWindow: 183 * 24 * time.Hour,
		DuplicateRadius:     100,
		Retry: Retry{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
		},
	}
}

// Validate checks the structural invariants of a configuration.
func (c Config) Validate() error {
	var errs []error

	w := c.Weights
	for name, v := range map[string]int{
		"osm": w.OSM, "website": w.Website, "social": w.Social,
		"crossref": w.CrossRef, "consistency": w.Consistency,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("weights.%s must be positive (got %d)", name, v))
		}
	}
	if w.Sum() != 100 {
		errs = append(errs, fmt.Errorf("weights must sum to 100 (got %d)", w.Sum()))
	}

	t := c.Thresholds
	if !(t.High > t.Medium && t.Medium > t.Low && t.Low > 0 && t.High <= 100) {
		errs = append(errs, fmt.Errorf("thresholds must be strictly decreasing within (0,100] (got %d/%d/%d)", t.High, t.Medium, t.Low))
	}
	if c.Phase1Threshold < 0 || c.Phase1Threshold > 100 {
		errs = append(errs, fmt.Errorf("phase1_threshold must be within [0,100] (got %d)", c.Phase1Threshold))
	}
	if c.Phase2Weights.Email < 0 || c.Phase2Weights.SocialDM < 0 {
		errs = append(errs, errors.New("phase2_weights must not be negative"))
	}
	if c.TrustedSourceFloor < 0 || c.TrustedSourceFloor > 100 {
		errs = append(errs, fmt.Errorf("trusted_source_floor must be within [0,100] (got %d)", c.TrustedSourceFloor))
	}
	if c.ConflictPenalty < 0 || c.DenialPenalty < 0 {
		errs = append(errs, errors.New("penalties must not be negative"))
	}
	if c.OutreachTimeout <= 0 {
		errs = append(errs, errors.New("outreach_timeout must be positive"))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be at least 1 (got %d)", c.Retry.MaxAttempts))
	}
	if c.Retry.BaseDelay <= 0 {
		errs = append(errs, fmt.Errorf("retry.base_delay must be positive (got %s)", c.Retry.BaseDelay))
	}

	return errors.Join(errs...)
}

// IsTrustedLabel reports whether label is one of the configured trusted-source labels.
func (c Config) IsTrustedLabel(label string) bool {
	for _, l := range c.TrustedSourceLabels {
		if strings.EqualFold(l, label) {
			return true
		}
	}
	return false
}

// SetDefaults registers every scoring key on v with its stock value.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("weights.osm", d.Weights.OSM)
	v.SetDefault("weights.website", d.Weights.Website)
	v.SetDefault("weights.social", d.Weights.Social)
	v.SetDefault("weights.crossref", d.Weights.CrossRef)
	v.SetDefault("weights.consistency", d.Weights.Consistency)
	v.SetDefault("phase2_weights.email", d.Phase2Weights.Email)
	v.SetDefault("phase2_weights.social_dm", d.Phase2Weights.SocialDM)
	v.SetDefault("thresholds.high", d.Thresholds.High)
	v.SetDefault("thresholds.medium", d.Thresholds.Medium)
	v.SetDefault("thresholds.low", d.Thresholds.Low)
	v.SetDefault("phase1_threshold", d.Phase1Threshold)
	v.SetDefault("trusted_source_labels", d.TrustedSourceLabels)
	v.SetDefault("trusted_source_floor", d.TrustedSourceFloor)
	v.SetDefault("conflict_penalty", d.ConflictPenalty)
	v.SetDefault("denial_penalty", d.DenialPenalty)
	v.SetDefault("osm_absent_min", d.OSMAbsentMin)
	v.SetDefault("outreach_timeout", d.OutreachTimeout)
	v.SetDefault("social_recency_window", d.SocialRecencyWindow)
	v.SetDefault("duplicate_radius_m", d.DuplicateRadius)
	v.SetDefault("retry.max_attempts", d.Retry.MaxAttempts)
	v.SetDefault("retry.base_delay", d.Retry.BaseDelay)
}

// FromViper builds a validated Config from v. Unset keys fall back to Default.
func FromViper(v *viper.Viper) (Config, error) {
	SetDefaults(v)
	cfg := Config{
		Weights: Weights{
			OSM:         v.GetInt("weights.osm"),
			Website:     v.GetInt("weights.website"),
			Social:      v.GetInt("weights.social"),
			CrossRef:    v.GetInt("weights.crossref"),
			Consistency: v.GetInt("weights.consistency"),
		},
		Phase2Weights: Phase2Weights{
			Email:    v.GetInt("phase2_weights.email"),
			SocialDM: v.GetInt("phase2_weights.social_dm"),
		},
		Thresholds: Thresholds{
			High:   v.GetInt("thresholds.high"),
			Medium: v.GetInt("thresholds.medium"),
			Low:    v.GetInt("thresholds.low"),
		},
		Phase1Threshold:     v.GetInt("phase1_threshold"),
		TrustedSourceLabels: v.GetStringSlice("trusted_source_labels"),
		TrustedSourceFloor:  v.GetInt("trusted_source_floor"),
		ConflictPenalty:     v.GetInt("conflict_penalty"),
		DenialPenalty:       v.GetInt("denial_penalty"),
		OSMAbsentMin:        v.GetInt("osm_absent_min"),
		OutreachTimeout:     v.GetDuration("outreach_timeout"),
		SocialRecencyWindow: v.GetDuration("social_recency_window"),
		DuplicateRadius:     v.GetFloat64("duplicate_radius_m"),
		Retry: Retry{
			MaxAttempts: v.GetInt("retry.max_attempts"),
			BaseDelay:   v.GetDuration("retry.base_delay"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
