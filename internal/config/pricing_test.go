package config

import (
	"math"
	"testing"
)

func TestMatchTierPricing(t *testing.T) {
	tests := []struct {
		model     string
		wantInput float64
	}{
		{"claude-sonnet-4-5-20250929", 3.00},
		{"claude-opus-4-1", 15.00},
		{"Claude-OPUS-4", 15.00},
		{"claude-haiku-3-5", 0.25},
		{"", 3.00},          // default tier
		{"gpt-4o", 3.00},    // unknown model falls back
		{"sonnet", 3.00},    // bare tier name
	}

	for _, tt := range tests {
		got := MatchTierPricing(tt.model, PricingOverrides{})
		if got.InputPerMTok != tt.wantInput {
			t.Errorf("MatchTierPricing(%q).InputPerMTok = %v, want %v",
				tt.model, got.InputPerMTok, tt.wantInput)
		}
	}
}

func TestMatchTierPricingOverride(t *testing.T) {
	in := 5.0
	out := 20.0
	overrides := PricingOverrides{
		Overrides: map[string]TierPricingOverride{
			"sonnet": {InputPerMTok: &in, OutputPerMTok: &out},
		},
	}

	got := MatchTierPricing("claude-sonnet-4-5", overrides)
	if got.InputPerMTok != 5.0 || got.OutputPerMTok != 20.0 {
		t.Errorf("override not applied: got %+v", got)
	}

	// Overrides for one tier must not leak into another.
	opus := MatchTierPricing("claude-opus-4", overrides)
	if opus.InputPerMTok != 15.0 {
		t.Errorf("opus pricing changed by sonnet override: %+v", opus)
	}
}

func TestCalculateCost(t *testing.T) {
	pricing := TierPricing{InputPerMTok: 3.0, OutputPerMTok: 15.0}

	// 1M input + 1M output + 1M cache read + 1M cache write:
	// 3 + 15 + 3*0.1 + 3*1.25 = 22.05
	got := CalculateCost(pricing, 1_000_000, 1_000_000, 1_000_000, 1_000_000)
	if math.Abs(got-22.05) > 1e-9 {
		t.Errorf("CalculateCost = %v, want 22.05", got)
	}

	if got := CalculateCost(pricing, 0, 0, 0, 0); got != 0 {
		t.Errorf("zero tokens should cost 0, got %v", got)
	}
}
