package antispam

import (
	"github.com/guardbot-dev/guardbot/internal/platform"
)

// textScoring holds the weights of the composite text-spam score. The
// values come from long-run tuning against real raids; treat them as a
// set, not as independent knobs.
var textScoring = struct {
	BaseThreshold float64

	HighSimilarityThreshold float64
	HighSimilarityScore     float64
	MedSimilarityThreshold  float64
	MedSimilarityScore      float64
	LowSimilarityThreshold  float64
	LowSimilarityScore      float64

	RapidPostGap   int64
	RapidPostScore float64
	FastPostGap    int64
	FastPostScore  float64

	HighSymbolThreshold float64
	HighSymbolScore     float64
	MedSymbolThreshold  float64
	MedSymbolScore      float64

	RepeatedCharScore float64
	TwoUUIDScore      float64
	OneUUIDScore      float64
	DottedScore       float64

	VeryLongThreshold  int
	VeryLongScore      float64
	LongThreshold      int
	LongScore          float64
	VeryShortThreshold int
	VeryShortScore     float64

	CJKReduction        float64
	RepeatedPhraseScore float64
	SymbolRunScore      float64
}{
	BaseThreshold: 0.8,

	HighSimilarityThreshold: 0.9,
	HighSimilarityScore:     0.6,
	MedSimilarityThreshold:  0.75,
	MedSimilarityScore:      0.35,
	LowSimilarityThreshold:  0.6,
	LowSimilarityScore:      0.15,

	RapidPostGap:   1,
	RapidPostScore: 0.4,
	FastPostGap:    2,
	FastPostScore:  0.2,

	HighSymbolThreshold: 0.7,
	HighSymbolScore:     0.3,
	MedSymbolThreshold:  0.5,
	MedSymbolScore:      0.15,

	RepeatedCharScore: 0.4,
	TwoUUIDScore:      0.5,
	OneUUIDScore:      0.25,
	DottedScore:       0.3,

	VeryLongThreshold:  500,
	VeryLongScore:      0.3,
	LongThreshold:      300,
	LongScore:          0.15,
	VeryShortThreshold: 2,
	VeryShortScore:     0.25,

	CJKReduction:        0.2,
	RepeatedPhraseScore: 0.4,
	SymbolRunScore:      0.3,
}

// textDetector scores each message against the author's recent history
// plus a set of structural heuristics, and fires once the composite score
// crosses the base threshold.
type textDetector struct{}

func (textDetector) Kind() Kind { return KindText }

func (textDetector) Inspect(now int64, msg *platform.Message, state *userState) (Verdict, bool) {
	state.pushText(now, msg.Content)

	texts := state.nonEmptyTexts()
	if len(texts) < 2 {
		return Verdict{}, false
	}

	score := 0.0
	latest := texts[len(texts)-1]

	// Similarity of every prior buffered text to the latest one.
	for _, prior := range texts[:len(texts)-1] {
		switch ratio := Similarity(prior, latest); {
		case ratio > textScoring.HighSimilarityThreshold:
			score += textScoring.HighSimilarityScore
		case ratio > textScoring.MedSimilarityThreshold:
			score += textScoring.MedSimilarityScore
		case ratio > textScoring.LowSimilarityThreshold:
			score += textScoring.LowSimilarityScore
		}
	}

	// Posting cadence between the last two buffer entries.
	if len(state.recent) >= 2 {
		gap := now - state.recent[len(state.recent)-2].At

		switch {
		case gap < textScoring.RapidPostGap:
			score += textScoring.RapidPostScore
		case gap < textScoring.FastPostGap:
			score += textScoring.FastPostScore
		}
	}

	content := msg.Content

	switch ratio := SymbolRatio(content); {
	case ratio > textScoring.HighSymbolThreshold:
		score += textScoring.HighSymbolScore
	case ratio > textScoring.MedSymbolThreshold:
		score += textScoring.MedSymbolScore
	}

	if HasRepeatedChar(content) {
		score += textScoring.RepeatedCharScore
	}

	switch uuids := CountUUIDs(content); {
	case uuids >= 2:
		score += textScoring.TwoUUIDScore
	case uuids == 1:
		score += textScoring.OneUUIDScore
	}

	if CountDottedIdentifiers(content) >= 1 {
		score += textScoring.DottedScore
	}

	switch length := len([]rune(content)); {
	case length > textScoring.VeryLongThreshold:
		score += textScoring.VeryLongScore
	case length > textScoring.LongThreshold:
		score += textScoring.LongScore
	case length <= textScoring.VeryShortThreshold:
		score += textScoring.VeryShortScore
	}

	if ContainsCJK(content) {
		score -= textScoring.CJKReduction
	}

	if HasRepeatedPhrase(content, 5, 3) {
		score += textScoring.RepeatedPhraseScore
	}

	if HasLongSymbolRun(content, 10) {
		score += textScoring.SymbolRunScore
	}

	if score < textScoring.BaseThreshold {
		return Verdict{}, false
	}

	return Verdict{Kind: KindText, Score: score}, true
}
