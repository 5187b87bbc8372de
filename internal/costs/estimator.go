// Package costs projects token usage and dollar cost for a generation job
// before it runs. Estimates are pure functions of the request: they are
// computed once at enqueue time, stored on the job for audit, and consulted
// by the budget gate. They are independent of actual spend incurred.
package costs

import "math"

// Estimate is the projected token and cost envelope for one generation job.
type Estimate struct {
	PricingModel              string  `json:"pricing_model"`
	EstimatedInputTokens      int64   `json:"estimated_input_tokens"`
	EstimatedOutputTokensLow  int64   `json:"estimated_output_tokens_low"`
	EstimatedOutputTokensHigh int64   `json:"estimated_output_tokens_high"`
	EstimatedCostUSDLow       float64 `json:"estimated_cost_usd_low"`
	EstimatedCostUSDHigh      float64 `json:"estimated_cost_usd_high"`
}

// Estimate projects tokens and cost for drafting the given sections from the
// notes context with the named model. An empty section list falls back to the
// canonical default section list. Deterministic, no side effects.
func EstimateJob(sections []string, notesContext string, model string) Estimate {
	if len(sections) == 0 {
		sections = DefaultSections
	}

	// Crude 4-chars-per-token heuristic with a floor: the notes are resent
	// with every section call.
	notesTokens := int64(math.Round(float64(len(notesContext)) / 4))
	if notesTokens < minNotesTokens {
		notesTokens = minNotesTokens
	}

	inputTokens := (notesTokens + sectionPromptOverheadTokens) * int64(len(sections))

	var outLow, outHigh int64
	for _, name := range sections {
		r, ok := sectionOutputTokens[name]
		if !ok {
			r = defaultOutputTokens
		}
		outLow += r.Low
		outHigh += r.High
	}

	price, ok := modelPrices[model]
	if !ok {
		price = defaultModelPrice
	}

	return Estimate{
		PricingModel:              model,
		EstimatedInputTokens:      inputTokens,
		EstimatedOutputTokensLow:  outLow,
		EstimatedOutputTokensHigh: outHigh,
		EstimatedCostUSDLow:       costUSD(inputTokens, outLow, price),
		EstimatedCostUSDHigh:      costUSD(inputTokens, outHigh, price),
	}
}

func costUSD(inputTokens, outputTokens int64, price modelPrice) float64 {
	return float64(inputTokens)/1e6*price.InputUSD + float64(outputTokens)/1e6*price.OutputUSD
}
