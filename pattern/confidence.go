package pattern

import (
	"math"
	"time"
)

// Confidence blend weights: historical success rate dominates, cost
// predictability refines.
const (
	successWeight     = 0.7
	reliabilityWeight = 0.3
)

// decayPeriod is the reference interval for staleness decay: a decay
// factor f applied to a pattern unused for d days multiplies its
// confidence by f^(d/30).
const decayPeriod = 30 * 24 * time.Hour

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

// costReliability maps cost variance to [0,1]: 1 when actual costs
// never deviate from the mean, falling toward 0 as the standard
// deviation approaches the mean itself.
func costReliability(avgCost, variance float64) float64 {
	if avgCost <= 0 {
		return 1
	}
	return math.Max(0, 1-math.Sqrt(variance)/avgCost)
}

// Observe folds one execution into the metrics using streaming
// mean/variance updates weighted by 1/times_used, then recomputes
// confidence as a blend of success rate and cost reliability.
func (m *LearningMetrics) Observe(success bool, actualCost float64) {
	m.TimesUsed++
	if success {
		m.SuccessCount++
	}

	w := 1.0 / float64(m.TimesUsed)
	delta := actualCost - m.AverageCost
	m.AverageCost += w * delta
	// Blend the squared deviation from the old mean into the running
	// variance with the same inverse-count weight.
	m.CostVariance = (1-w)*m.CostVariance + w*delta*delta

	m.recompute()
}

// Decay multiplies confidence by factor^(age/30d). Patterns used
// within the period decay only fractionally; a factor of 1, a zero
// lastUsed, or a non-positive age leave confidence untouched.
func (m *LearningMetrics) Decay(factor float64, lastUsed, now time.Time) {
	if factor <= 0 || factor >= 1 || lastUsed.IsZero() {
		return
	}
	age := now.Sub(lastUsed)
	if age <= 0 {
		return
	}
	periods := float64(age) / float64(decayPeriod)
	m.Confidence = clamp01(m.Confidence * math.Pow(factor, periods))
}

// recompute derives confidence from the accumulated counters.
func (m *LearningMetrics) recompute() {
	m.Confidence = clamp01(successWeight*m.SuccessRate() + reliabilityWeight*costReliability(m.AverageCost, m.CostVariance))
}
