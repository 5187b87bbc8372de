package costs

// Static configuration tables for the estimator. These are owned here rather
// than living in mutable global state so estimates stay deterministic.

// minNotesTokens is the floor applied to the notes-context token estimate.
const minNotesTokens = 200

// sectionPromptOverheadTokens is the fixed prompt overhead added per section
// call (system prompt, section instructions, formatting scaffold).
const sectionPromptOverheadTokens = 350

// DefaultSections is the canonical IMRaD section list used when a request
// names no sections and the manuscript has none.
var DefaultSections = []string{
	"introduction",
	"methods",
	"results",
	"discussion",
	"conclusion",
}

// tokenRange is an expected output-token band for one drafted section.
type tokenRange struct {
	Low  int64
	High int64
}

// sectionOutputTokens maps canonical section names to expected output bands.
// Unknown section names fall back to defaultOutputTokens.
var sectionOutputTokens = map[string]tokenRange{
	"abstract":     {Low: 250, High: 450},
	"introduction": {Low: 600, High: 1200},
	"methods":      {Low: 700, High: 1400},
	"results":      {Low: 600, High: 1300},
	"discussion":   {Low: 800, High: 1600},
	"conclusion":   {Low: 300, High: 700},
}

var defaultOutputTokens = tokenRange{Low: 500, High: 1000}

// modelPrice is USD per one million tokens.
type modelPrice struct {
	InputUSD  float64
	OutputUSD float64
}

// modelPrices maps model names to per-million-token prices. Unknown models
// fall back to defaultModelPrice.
var modelPrices = map[string]modelPrice{
	"gpt-4o":            {InputUSD: 2.50, OutputUSD: 10.00},
	"gpt-4o-mini":       {InputUSD: 0.15, OutputUSD: 0.60},
	"gpt-4.1":           {InputUSD: 2.00, OutputUSD: 8.00},
	"claude-3-5-sonnet": {InputUSD: 3.00, OutputUSD: 15.00},
	"claude-3-5-haiku":  {InputUSD: 0.80, OutputUSD: 4.00},
}

var defaultModelPrice = modelPrice{InputUSD: 2.50, OutputUSD: 10.00}
