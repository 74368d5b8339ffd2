package storage

// NormalizeScores min-max scales raw relevance scores into [0,1] so keyword
// hits compare with vector hits. The best score maps to 1 and the worst to 0.
// When every score is equal they all map to 1.
func NormalizeScores(raw []float64) []float64 {
	out := make([]float64, len(raw))
	if len(raw) == 0 {
		return out
	}

	lo, hi := raw[0], raw[0]
	for _, s := range raw[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}

	span := hi - lo
	for i, s := range raw {
		if span == 0 {
			out[i] = 1
			continue
		}
		out[i] = (s - lo) / span
	}
	return out
}
