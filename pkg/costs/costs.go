package costs

import (
	"github.com/samber/lo"

	"github.com/benthamhq/bentham/pkg/types"
)

// Currency is the single currency all costs are reported in
const Currency = "USD"

// Output size assumptions for admission-time estimates. Actual spend is
// accrued from real token counts as cells execute.
const (
	estMinOutputTokens = 100
	estMaxOutputTokens = 1200
)

// Pricing is the cost model for one surface
type Pricing struct {
	InputPer1K  float64 `json:"inputPer1k" yaml:"inputPer1k"`
	OutputPer1K float64 `json:"outputPer1k" yaml:"outputPer1k"`
	PerQuery    float64 `json:"perQuery" yaml:"perQuery"`
}

// Table maps surface ids to pricing. Surfaces without an entry cost
// nothing, which is what local and self-hosted surfaces want.
type Table map[string]Pricing

// Estimate computes the admission-time cost band for a manifest's
// matrix. The lower bound assumes every cell succeeds first try with a
// short response; the upper bound assumes every cell burns all retries
// and returns long responses.
func Estimate(table Table, m *types.Manifest) types.CostReport {
	attempts := float64(1 + m.Completion.MaxRetriesPerCell)

	var minTotal, maxTotal float64
	for _, ref := range m.Surfaces {
		p := table[ref.SurfaceID]

		perSurfaceMin := lo.SumBy(m.Queries, func(q types.Query) float64 {
			return callPrice(p, tokensForText(q.Text), estMinOutputTokens)
		})
		perSurfaceMax := lo.SumBy(m.Queries, func(q types.Query) float64 {
			return callPrice(p, tokensForText(q.Text), estMaxOutputTokens)
		})

		locations := float64(len(m.Locations))
		minTotal += perSurfaceMin * locations
		maxTotal += perSurfaceMax * locations * attempts
	}

	return types.CostReport{
		EstimatedMin: minTotal,
		EstimatedMax: maxTotal,
		Currency:     Currency,
	}
}

// CallCost computes the spend for one executed call from its real
// token usage
func CallCost(table Table, surfaceID string, usage types.TokenUsage) float64 {
	return callPrice(table[surfaceID], usage.InputTokens, usage.OutputTokens)
}

func callPrice(p Pricing, inputTokens, outputTokens int) float64 {
	return p.PerQuery +
		float64(inputTokens)/1000.0*p.InputPer1K +
		float64(outputTokens)/1000.0*p.OutputPer1K
}

// tokensForText approximates the token count of a prompt. Four
// characters per token is close enough for a cost band.
func tokensForText(s string) int {
	tokens := len(s) / 4
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
