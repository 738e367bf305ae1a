package advisor

// RewardWeights combines the signals that make up a run's scalar reward
// (spec.md §4.6: "success, duration-vs-baseline, chunk failure rate,
// repair success rate").
type RewardWeights struct {
	SuccessWeight       float64
	DurationWeight      float64
	ChunkFailureWeight  float64
	RepairSuccessWeight float64
}

// DefaultRewardWeights weights success highest, then duration improvement,
// then penalizes chunk failures, then rewards successful repairs.
func DefaultRewardWeights() RewardWeights {
	return RewardWeights{
		SuccessWeight:       0.5,
		DurationWeight:      0.2,
		ChunkFailureWeight:  0.2,
		RepairSuccessWeight: 0.1,
	}
}

// RunMetrics is the per-run input to Reward.
type RunMetrics struct {
	Success            bool
	DurationRatio      float64 // actual / baseline; 1.0 means on target, <1.0 faster
	ChunkFailureRate   float64 // failed chunks / total chunks for the run
	RepairSuccessRate  float64 // repaired chunks that met threshold / repair attempts
}

// Reward combines a run's outcome into the scalar signal the advisor uses
// to judge whether its recommendations are improving outcomes over time.
// Higher is better; the result is not bounded below, since a duration
// ratio above 1.0 subtracts from the reward without a floor.
func Reward(w RewardWeights, m RunMetrics) float64 {
	success := 0.0
	if m.Success {
		success = 1.0
	}

	durationScore := 1.0 - m.DurationRatio
	chunkPenalty := m.ChunkFailureRate

	return w.SuccessWeight*success +
		w.DurationWeight*durationScore -
		w.ChunkFailureWeight*chunkPenalty +
		w.RepairSuccessWeight*m.RepairSuccessRate
}
