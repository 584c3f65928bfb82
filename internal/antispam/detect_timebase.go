package antispam

import (
	"github.com/guardbot-dev/guardbot/internal/platform"
)

const (
	// timebaseMinArrivals is how many arrivals are needed before the
	// timing signal is trusted.
	timebaseMinArrivals = 8

	// timebaseVarianceLimit is the inter-arrival variance below which
	// posting is considered machine-timed.
	timebaseVarianceLimit = 0.15

	// timebaseStreakRequired makes the detector fire only on the second
	// consecutive positive scan, filtering one-off periodic bursts.
	timebaseStreakRequired = 2
)

// timebaseDetector flags authors posting with near-constant intervals.
// Periodicity alone is not enough: at least half of the recent text
// buffer must also match the current content, since humans can type
// rhythmically but rarely repeat themselves while doing so.
type timebaseDetector struct{}

func (timebaseDetector) Kind() Kind { return KindTimebase }

func (timebaseDetector) Inspect(_ int64, msg *platform.Message, state *userState) (Verdict, bool) {
	state.pushArrival(msg.CreatedAt.Unix())

	if len(state.intervals) < timebaseMinArrivals {
		state.timebaseStreak = 0
		return Verdict{}, false
	}

	gaps := state.gaps()
	if len(gaps) == 0 {
		state.timebaseStreak = 0
		return Verdict{}, false
	}

	variance := gapVariance(gaps)
	if variance >= timebaseVarianceLimit || !repeatsRecentContent(msg.Content, state) {
		state.timebaseStreak = 0
		return Verdict{}, false
	}

	state.timebaseStreak++
	if state.timebaseStreak < timebaseStreakRequired {
		return Verdict{}, false
	}

	state.timebaseStreak = 0

	return Verdict{Kind: KindTimebase, Score: 1.0 - variance}, true
}

// gapVariance computes the population variance of the inter-arrival gaps.
func gapVariance(gaps []int64) float64 {
	mean := 0.0
	for _, gap := range gaps {
		mean += float64(gap)
	}

	mean /= float64(len(gaps))

	variance := 0.0

	for _, gap := range gaps {
		diff := float64(gap) - mean
		variance += diff * diff
	}

	return variance / float64(len(gaps))
}

// repeatsRecentContent reports whether at least half of the buffered texts
// match the current content at the similarity threshold.
func repeatsRecentContent(content string, state *userState) bool {
	texts := state.nonEmptyTexts()
	if len(texts) == 0 {
		return false
	}

	matches := 0

	for _, text := range texts {
		if Similarity(text, content) >= SimilarityThreshold {
			matches++
		}
	}

	return matches*2 >= len(texts)
}
