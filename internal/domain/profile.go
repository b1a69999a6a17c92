package domain

import (
	"fmt"
	"math"
	"sort"
)

// Built-in profile names.
const (
	ProfileDefault            = "default"
	ProfileSecurityCritical   = "security-critical"
	ProfileCoreInfrastructure = "core-infrastructure"
	ProfileExperimental       = "experimental"
)

// DefaultConfidence is used when a profile does not set one.
const DefaultConfidence = 0.85

const weightTolerance = 1e-6

// TierThresholds map a weighted total onto a RiskTier. A total at or below
// High, or a risk dimension at or below RiskFloor, is HIGH.
type TierThresholds struct {
	High      float64 `yaml:"high"       json:"high"`
	Medium    float64 `yaml:"medium"     json:"medium"`
	Low       float64 `yaml:"low"        json:"low"`
	RiskFloor int     `yaml:"risk_floor" json:"risk_floor"`
}

// DefaultTierThresholds returns the stock tier table.
func DefaultTierThresholds() TierThresholds {
	return TierThresholds{High: 4, Medium: 6, Low: 8, RiskFloor: 3}
}

// Tier classifies a weighted total.
func (t TierThresholds) Tier(total float64, riskScore int) RiskTier {
	switch {
	case total <= t.High || (riskScore > 0 && riskScore <= t.RiskFloor):
		return TierHigh
	case total <= t.Medium:
		return TierMedium
	case total <= t.Low:
		return TierLow
	default:
		return TierVeryLow
	}
}

// EvaluationProfile is a named set of dimension weights used by the evaluator.
type EvaluationProfile struct {
	Name       string                `json:"name"`
	Weights    map[Dimension]float64 `json:"weights"`
	Confidence float64               `json:"confidence"`
	Thresholds TierThresholds        `json:"thresholds"`
}

// Weight returns the weight of a dimension; absent dimensions weigh zero.
func (p EvaluationProfile) Weight(d Dimension) float64 {
	return p.Weights[d]
}

// Validate checks that weights cover only known dimensions, are
// non-negative and sum to 1.
func (p EvaluationProfile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name is empty: %w", ErrInvalidProfile)
	}
	if len(p.Weights) == 0 {
		return fmt.Errorf("profile %q has no weights: %w", p.Name, ErrInvalidProfile)
	}
	sum := 0.0
	for d, w := range p.Weights {
		if !IsKnownDimension(d) {
			return fmt.Errorf("profile %q: unknown dimension %q: %w", p.Name, d, ErrInvalidProfile)
		}
		if w < 0 {
			return fmt.Errorf("profile %q: weight for %s is negative: %w", p.Name, d, ErrInvalidProfile)
		}
		sum += w
	}
	if math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("profile %q: weights sum to %.4f, want 1.0: %w", p.Name, sum, ErrInvalidProfile)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("profile %q: confidence %.2f out of range: %w", p.Name, p.Confidence, ErrInvalidProfile)
	}
	t := p.Thresholds
	if !(t.High < t.Medium && t.Medium < t.Low) {
		return fmt.Errorf("profile %q: tier thresholds must increase (high < medium < low): %w", p.Name, ErrInvalidProfile)
	}
	return nil
}

// IsKnownDimension reports whether d is one of the canonical dimensions.
func IsKnownDimension(d Dimension) bool {
	for _, k := range Dimensions {
		if k == d {
			return true
		}
	}
	return false
}

// BuiltinProfiles returns the stock evaluation profiles keyed by name.
func BuiltinProfiles() map[string]EvaluationProfile {
	mk := func(name string, risk, technical, operational, strategic, financial float64) EvaluationProfile {
		return EvaluationProfile{
			Name: name,
			Weights: map[Dimension]float64{
				DimensionRisk:        risk,
				DimensionTechnical:   technical,
				DimensionOperational: operational,
				DimensionStrategic:   strategic,
				DimensionFinancial:   financial,
			},
			Confidence: DefaultConfidence,
			Thresholds: DefaultTierThresholds(),
		}
	}
	return map[string]EvaluationProfile{
		ProfileDefault:            mk(ProfileDefault, 0.30, 0.30, 0.25, 0.10, 0.05),
		ProfileSecurityCritical:   mk(ProfileSecurityCritical, 0.45, 0.20, 0.20, 0.10, 0.05),
		ProfileCoreInfrastructure: mk(ProfileCoreInfrastructure, 0.30, 0.25, 0.35, 0.05, 0.05),
		ProfileExperimental:       mk(ProfileExperimental, 0.20, 0.35, 0.15, 0.20, 0.10),
	}
}

// ProfileSet resolves profile names, falling back to the default profile.
type ProfileSet map[string]EvaluationProfile

// NewProfileSet merges custom profiles over the built-ins and validates all of them.
func NewProfileSet(custom map[string]ProfileConfig) (ProfileSet, error) {
	set := ProfileSet(BuiltinProfiles())
	for name, pc := range custom {
		p := pc.toProfile(name, set[name])
		if err := p.Validate(); err != nil {
			return nil, err
		}
		set[name] = p
	}
	return set, nil
}

// Resolve returns the named profile, or the default one when name is empty
// or unknown. The second result is false when a fallback happened.
func (s ProfileSet) Resolve(name string) (EvaluationProfile, bool) {
	if p, ok := s[name]; ok {
		return p, true
	}
	if p, ok := s[ProfileDefault]; ok {
		return p, name == ""
	}
	return BuiltinProfiles()[ProfileDefault], name == ""
}

// Names lists profile names in sorted order.
func (s ProfileSet) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
