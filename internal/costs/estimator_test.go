package costs

import (
	"math"
	"strings"
	"testing"
)

func TestEstimateJobNotesFloor(t *testing.T) {
	// Short notes hit the token floor
	est := EstimateJob([]string{"introduction"}, "brief notes", "gpt-4o")

	wantInput := int64((minNotesTokens + sectionPromptOverheadTokens) * 1)
	if est.EstimatedInputTokens != wantInput {
		t.Errorf("expected input tokens %d, got %d", wantInput, est.EstimatedInputTokens)
	}
}

func TestEstimateJobInputScalesWithSections(t *testing.T) {
	notes := strings.Repeat("x", 4000) // 1000 tokens, above the floor

	one := EstimateJob([]string{"introduction"}, notes, "gpt-4o")
	three := EstimateJob([]string{"introduction", "methods", "results"}, notes, "gpt-4o")

	if three.EstimatedInputTokens != 3*one.EstimatedInputTokens {
		t.Errorf("expected input tokens to scale with section count: 1 section=%d, 3 sections=%d",
			one.EstimatedInputTokens, three.EstimatedInputTokens)
	}

	wantPerSection := int64(1000 + sectionPromptOverheadTokens)
	if one.EstimatedInputTokens != wantPerSection {
		t.Errorf("expected %d input tokens for one section, got %d", wantPerSection, one.EstimatedInputTokens)
	}
}

func TestEstimateJobOutputRanges(t *testing.T) {
	est := EstimateJob([]string{"introduction", "conclusion"}, "notes", "gpt-4o")

	wantLow := sectionOutputTokens["introduction"].Low + sectionOutputTokens["conclusion"].Low
	wantHigh := sectionOutputTokens["introduction"].High + sectionOutputTokens["conclusion"].High

	if est.EstimatedOutputTokensLow != wantLow {
		t.Errorf("expected output low %d, got %d", wantLow, est.EstimatedOutputTokensLow)
	}
	if est.EstimatedOutputTokensHigh != wantHigh {
		t.Errorf("expected output high %d, got %d", wantHigh, est.EstimatedOutputTokensHigh)
	}
}

func TestEstimateJobUnknownSectionUsesDefaultRange(t *testing.T) {
	est := EstimateJob([]string{"acknowledgements"}, "notes", "gpt-4o")

	if est.EstimatedOutputTokensLow != defaultOutputTokens.Low {
		t.Errorf("expected default low %d, got %d", defaultOutputTokens.Low, est.EstimatedOutputTokensLow)
	}
	if est.EstimatedOutputTokensHigh != defaultOutputTokens.High {
		t.Errorf("expected default high %d, got %d", defaultOutputTokens.High, est.EstimatedOutputTokensHigh)
	}
}

func TestEstimateJobEmptySectionsFallsBackToDefaults(t *testing.T) {
	est := EstimateJob(nil, "notes", "gpt-4o")

	var wantLow int64
	for _, name := range DefaultSections {
		wantLow += sectionOutputTokens[name].Low
	}
	if est.EstimatedOutputTokensLow != wantLow {
		t.Errorf("expected canonical-list output low %d, got %d", wantLow, est.EstimatedOutputTokensLow)
	}
}

func TestEstimateJobCostComputation(t *testing.T) {
	est := EstimateJob([]string{"methods"}, "notes", "gpt-4o-mini")

	price := modelPrices["gpt-4o-mini"]
	wantLow := float64(est.EstimatedInputTokens)/1e6*price.InputUSD +
		float64(est.EstimatedOutputTokensLow)/1e6*price.OutputUSD
	wantHigh := float64(est.EstimatedInputTokens)/1e6*price.InputUSD +
		float64(est.EstimatedOutputTokensHigh)/1e6*price.OutputUSD

	if math.Abs(est.EstimatedCostUSDLow-wantLow) > 1e-12 {
		t.Errorf("expected cost low %f, got %f", wantLow, est.EstimatedCostUSDLow)
	}
	if math.Abs(est.EstimatedCostUSDHigh-wantHigh) > 1e-12 {
		t.Errorf("expected cost high %f, got %f", wantHigh, est.EstimatedCostUSDHigh)
	}
	if est.EstimatedCostUSDHigh < est.EstimatedCostUSDLow {
		t.Error("cost high must not be below cost low")
	}
}

func TestEstimateJobUnknownModelUsesFallbackPrice(t *testing.T) {
	known := EstimateJob([]string{"methods"}, "notes", "gpt-4o")
	unknown := EstimateJob([]string{"methods"}, "notes", "some-future-model")

	// gpt-4o happens to share the fallback price table entry
	if unknown.EstimatedCostUSDHigh != known.EstimatedCostUSDHigh {
		t.Errorf("expected fallback pricing %f, got %f", known.EstimatedCostUSDHigh, unknown.EstimatedCostUSDHigh)
	}
	if unknown.PricingModel != "some-future-model" {
		t.Errorf("pricing model should echo the requested model, got %q", unknown.PricingModel)
	}
}

func TestEstimateJobDeterministic(t *testing.T) {
	a := EstimateJob([]string{"results", "discussion"}, "same notes", "gpt-4o")
	b := EstimateJob([]string{"results", "discussion"}, "same notes", "gpt-4o")

	if a != b {
		t.Errorf("estimates for identical inputs differ: %+v vs %+v", a, b)
	}
}
