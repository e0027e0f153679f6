package store

import "github.com/sells-group/microarea-cli/internal/model"

// Merge applies the consolidation rule: incoming replaces existing when its
// confidence is at least as high. Ties replace so re-runs refresh
// provenance. It returns the result to keep and whether incoming won.
func Merge(existing *model.ResolutionResult, incoming model.ResolutionResult) (model.ResolutionResult, bool) {
	if existing == nil || incoming.Confidence >= existing.Confidence {
		return incoming, true
	}
	return *existing, false
}
