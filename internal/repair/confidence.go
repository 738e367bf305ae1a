package repair

// ConfidenceWeights configures how repair confidence is computed from
// validation metrics (spec.md §9 Open Question 3: "the numeric weights in
// the source are not authoritative and should be treated as
// configuration"). pipelinectl uses DefaultConfidenceWeights; the weights
// are not read from the layered config.
type ConfidenceWeights struct {
	DurationRatioWeight float64 // weight for how close output duration is to expected
	SpectralScoreWeight float64 // weight for basic spectral/quality checks
}

// DefaultConfidenceWeights gives duration ratio and spectral score equal
// standing absent configuration.
func DefaultConfidenceWeights() ConfidenceWeights {
	return ConfidenceWeights{DurationRatioWeight: 0.5, SpectralScoreWeight: 0.5}
}

// DefaultThreshold is the minimum confidence a repair manifest must reach
// to be eligible for substitution (spec.md §4.5, S4 example uses 0.85).
const DefaultThreshold = 0.85

// Score computes a confidence in [0, 1] from a repair attempt's validation
// metrics (spec.md §4.5: "duration-to-expected ratio, basic spectral
// checks"). durationRatio is actual/expected duration (1.0 is ideal);
// spectralScore is already normalized to [0, 1] by the synthesis phase.
func Score(weights ConfidenceWeights, durationRatio, spectralScore float64) float64 {
	durationScore := 1 - absFloat(1-durationRatio)
	if durationScore < 0 {
		durationScore = 0
	}
	total := weights.DurationRatioWeight + weights.SpectralScoreWeight
	if total == 0 {
		return 0
	}
	score := (weights.DurationRatioWeight*durationScore + weights.SpectralScoreWeight*spectralScore) / total
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
