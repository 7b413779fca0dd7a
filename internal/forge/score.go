package forge

// Composite blend weights. The visual dimension carries the admission
// decision; accuracy and DNA comparison split the rest.
const (
	visualWeight   = 0.4
	accuracyWeight = 0.3
	dnaWeight      = 0.3
)

// Penalty ceilings. Both are ceilings, never multipliers; when both trigger,
// the tighter one wins.
const (
	// A candidate that ignored the custom style and produced a generic
	// rendering is re-blended with accuracy dominating, then capped.
	fallbackCeiling        = 35.0
	fallbackVisualWeight   = 0.2
	fallbackAccuracyWeight = 0.4
	fallbackDNAWeight      = 0.1

	// A candidate that rendered the wrong text (or subject) cannot score
	// well no matter how pretty it is.
	lowAccuracyCutoff  = 50.0
	lowAccuracyCeiling = 40.0
)

// clamp100 bounds a score to [0,100].
func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Composite combines the three evaluation dimensions into the single 0-100
// admission score.
//
// Without penalties the blend is visual*0.4 + accuracy*0.3 + dna*0.3, which
// is non-decreasing in every dimension. When the evaluator flagged a generic
// fallback, the score is recomputed as visual*0.2 + accuracy*0.4 + dna*0.1
// and capped at 35. Independently, accuracy below 50 caps the (possibly
// already penalized) score at 40.
func Composite(visual, accuracy, dnaScore float64, fallback bool) float64 {
	visual = clamp100(visual)
	accuracy = clamp100(accuracy)
	dnaScore = clamp100(dnaScore)

	score := visual*visualWeight + accuracy*accuracyWeight + dnaScore*dnaWeight

	if fallback {
		score = visual*fallbackVisualWeight + accuracy*fallbackAccuracyWeight + dnaScore*fallbackDNAWeight
		if score > fallbackCeiling {
			score = fallbackCeiling
		}
	}
	if accuracy < lowAccuracyCutoff && score > lowAccuracyCeiling {
		score = lowAccuracyCeiling
	}

	return clamp100(score)
}
