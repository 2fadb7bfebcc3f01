package pipeline

import "github.com/ballotbase/api/internal/client"

// promptCharsPerToken is the rough prompt-size heuristic used for
// admission control. Estimates gate batch submission against the
// active-token ceiling; they are not billing-exact.
const promptCharsPerToken = 4

// EstimateTokens returns the estimated total token cost of a batch and
// the per-request breakdown, input plus reserved output budget.
func EstimateTokens(requests []client.BatchRequest) (int64, []int64) {
	per := make([]int64, len(requests))
	var total int64

	for i, r := range requests {
		chars := len(r.SystemPrompt) + len(r.Contents)
		estimate := int64(chars / promptCharsPerToken)
		if r.Config != nil {
			estimate += int64(len(r.Config.ResponseSchema) / promptCharsPerToken)
			estimate += int64(r.Config.MaxOutputTokens)
			estimate += int64(r.Config.ThinkingBudget)
		}
		per[i] = estimate
		total += estimate
	}

	return total, per
}
