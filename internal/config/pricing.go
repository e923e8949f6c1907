package config

import "strings"

// TierPricing holds per-million-token prices for a model tier (USD).
type TierPricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// DefaultPricing maps model tier substrings to their pricing. Matching
// is case-insensitive substring over the raw model identifier, so
// "claude-sonnet-4-5-20250929" hits the "sonnet" tier.
var DefaultPricing = map[string]TierPricing{
	"sonnet": {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"opus":   {InputPerMTok: 15.00, OutputPerMTok: 75.00},
	"haiku":  {InputPerMTok: 0.25, OutputPerMTok: 1.25},
}

// DefaultTier is used when no tier substring matches the model.
const DefaultTier = "sonnet"

// Cache reads are billed at a tenth of the input price, cache writes
// at 1.25x the input price.
const (
	cacheReadMultiplier  = 0.10
	cacheWriteMultiplier = 1.25
)

// MatchTierPricing returns the pricing tier for a model identifier,
// applying any user overrides. Falls back to the default tier when
// nothing matches.
func MatchTierPricing(model string, overrides PricingOverrides) TierPricing {
	lower := strings.ToLower(model)

	for tier, pricing := range DefaultPricing {
		if strings.Contains(lower, tier) {
			return applyOverride(tier, pricing, overrides)
		}
	}
	return applyOverride(DefaultTier, DefaultPricing[DefaultTier], overrides)
}

func applyOverride(tier string, pricing TierPricing, overrides PricingOverrides) TierPricing {
	o, ok := overrides.Overrides[tier]
	if !ok {
		return pricing
	}
	if o.InputPerMTok != nil {
		pricing.InputPerMTok = *o.InputPerMTok
	}
	if o.OutputPerMTok != nil {
		pricing.OutputPerMTok = *o.OutputPerMTok
	}
	return pricing
}

// CalculateCost computes the estimated cost in USD for cumulative
// token totals under the given tier pricing.
func CalculateCost(pricing TierPricing, inputTokens, outputTokens, cacheReadTokens, cacheWriteTokens int64) float64 {
	cost := float64(inputTokens) * pricing.InputPerMTok / 1_000_000
	cost += float64(outputTokens) * pricing.OutputPerMTok / 1_000_000
	cost += float64(cacheReadTokens) * pricing.InputPerMTok * cacheReadMultiplier / 1_000_000
	cost += float64(cacheWriteTokens) * pricing.InputPerMTok * cacheWriteMultiplier / 1_000_000
	return cost
}
