package suggest

import "github.com/veridata/veridata/internal/quality"

// timePenaltyCap bounds the time penalty so a slow-but-safe repair can still
// win over a fast risky one.
const timePenaltyCap = 0.2

// riskPenalty taxes each candidate by its risk tier. Unknown tiers get a
// penalty between medium and high rather than a free pass.
var riskPenalty = map[quality.RiskLevel]float64{
	quality.RiskLow:    0,
	quality.RiskMedium: 0.1,
	quality.RiskHigh:   0.3,
}

const unknownRiskPenalty = 0.2

// Score computes a suggestion's selection score:
// confidence − risk penalty − min(estimated_time/300, 0.2).
func Score(s *quality.RepairSuggestion) float64 {
	penalty, ok := riskPenalty[s.RiskLevel]
	if !ok {
		penalty = unknownRiskPenalty
	}
	timePenalty := s.EstimatedTime / 300
	if timePenalty > timePenaltyCap {
		timePenalty = timePenaltyCap
	}
	return s.Confidence - penalty - timePenalty
}

// SelectBest returns the highest-scoring auto-applicable suggestion for the
// record, or nil when none qualifies. Ranking only: the repair confidence
// gate is applied separately at dispatch time.
func SelectBest(rec *quality.AnomalyRecord) *quality.RepairSuggestion {
	var best *quality.RepairSuggestion
	bestScore := 0.0

	for _, s := range rec.Suggestions {
		if !s.Action.AutoApplicable() {
			continue
		}
		sc := Score(s)
		if best == nil || sc > bestScore {
			best = s
			bestScore = sc
		}
	}
	return best
}
