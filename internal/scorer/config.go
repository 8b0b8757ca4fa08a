// Package scorer detects integrity and consistency conflicts in a
// consolidated analysis document and turns them into a 0-100 confidence
// score.
package scorer

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Config holds the penalty weights for each conflict family.
type Config struct {
	// Completeness penalties.
	MissingSummary      int `yaml:"missing_summary" mapstructure:"missing_summary"`
	MissingSentiment    int `yaml:"missing_sentiment" mapstructure:"missing_sentiment"`
	NoEntities          int `yaml:"no_entities" mapstructure:"no_entities"`
	MissingStakeholders int `yaml:"missing_stakeholders" mapstructure:"missing_stakeholders"`
	MissingNeedsImpact  int `yaml:"missing_needs_impact" mapstructure:"missing_needs_impact"`

	// Consistency penalties.
	IntensityMismatch     int `yaml:"intensity_mismatch" mapstructure:"intensity_mismatch"`
	ImpactContradiction   int `yaml:"impact_contradiction" mapstructure:"impact_contradiction"`
	BasicStabilityTension int `yaml:"basic_stability_tension" mapstructure:"basic_stability_tension"`
	AdvisoryFlag          int `yaml:"advisory_flag" mapstructure:"advisory_flag"`
	LowRelevanceTension   int `yaml:"low_relevance_tension" mapstructure:"low_relevance_tension"`
}

// DefaultConfig returns the standard penalty weights.
func DefaultConfig() Config {
	return Config{
		MissingSummary:      30,
		MissingSentiment:    30,
		NoEntities:          20,
		MissingStakeholders: 15,
		MissingNeedsImpact:  10,

		IntensityMismatch:     15,
		ImpactContradiction:   20,
		BasicStabilityTension: 15,
		AdvisoryFlag:          25,
		LowRelevanceTension:   10,
	}
}

// Validate checks that a Config is internally consistent.
func Validate(c Config) error {
	var errs []string

	penalties := map[string]int{
		"missing_summary":         c.MissingSummary,
		"missing_sentiment":       c.MissingSentiment,
		"no_entities":             c.NoEntities,
		"missing_stakeholders":    c.MissingStakeholders,
		"missing_needs_impact":    c.MissingNeedsImpact,
		"intensity_mismatch":      c.IntensityMismatch,
		"impact_contradiction":    c.ImpactContradiction,
		"basic_stability_tension": c.BasicStabilityTension,
		"advisory_flag":           c.AdvisoryFlag,
		"low_relevance_tension":   c.LowRelevanceTension,
	}
	for name, p := range penalties {
		if p < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
		if p > 100 {
			errs = append(errs, fmt.Sprintf("%s must be <= 100", name))
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
