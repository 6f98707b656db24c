package llm

// ModelPricing holds per-token USD prices.
type ModelPricing struct {
	Input  float64
	Output float64
}

// defaultPricing applies when the model is missing from the map.
var defaultPricing = ModelPricing{
	Input:  0.000003, // $3.00 per million tokens
	Output: 0.000015, // $15.00 per million tokens
}

// modelPricingMap maps model identifiers to their pricing.
var modelPricingMap = map[string]ModelPricing{
	"claude-3-5-haiku-latest": {
		Input:  0.0000008, // $0.80 per million tokens
		Output: 0.000004,  // $4.00 per million tokens
	},
	"claude-3-5-haiku-20241022": {
		Input:  0.0000008,
		Output: 0.000004,
	},
	"claude-3-5-sonnet-latest": {
		Input:  0.000003,
		Output: 0.000015,
	},
	"claude-sonnet-4-0": {
		Input:  0.000003,
		Output: 0.000015,
	},
	"claude-opus-4-0": {
		Input:  0.000015, // $15.00 per million tokens
		Output: 0.000075, // $75.00 per million tokens
	},
}

// PricingFor returns the price table for a model, falling back to Sonnet
// class pricing for unknown identifiers.
func PricingFor(model string) ModelPricing {
	if p, ok := modelPricingMap[model]; ok {
		return p
	}
	return defaultPricing
}

// CostUSD computes the dollar cost of a completion.
func CostUSD(model string, inputTokens, outputTokens int) float64 {
	p := PricingFor(model)
	return float64(inputTokens)*p.Input + float64(outputTokens)*p.Output
}
