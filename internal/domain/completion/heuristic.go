// Package completion estimates how likely a partial transcript is a finished
// utterance. The session controller uses the estimate to shorten or extend
// the natural pause it waits for before finalizing.
package completion

import "strings"

const (
	scoreWeight      = 0.7
	confidenceWeight = 0.3
)

var closingPhrases = []string{
	"that's all",
	"that's it",
	"thank you",
	"thanks",
	"done",
	"got it",
	"please",
	"okay",
	"ok",
}

var auxiliaries = map[string]bool{
	"is": true, "are": true, "was": true, "were": true,
	"am": true, "be": true, "been": true,
	"do": true, "does": true, "did": true,
	"have": true, "has": true, "had": true,
	"will": true, "would": true, "can": true, "could": true,
	"should": true, "shall": true, "may": true, "might": true, "must": true,
}

var subjects = map[string]bool{
	"i": true, "you": true, "he": true, "she": true, "it": true,
	"we": true, "they": true, "this": true, "that": true,
}

// Score rates transcript completeness in [0, 1] from surface features alone.
func Score(transcript string) float64 {
	text := strings.TrimSpace(transcript)
	if text == "" {
		return 0
	}
	words := strings.Fields(text)

	var score float64
	if len(words) >= 5 {
		score += 0.3
	}
	if len(words) >= 10 {
		score += 0.2
	}
	if strings.ContainsAny(text[len(text)-1:], ".!?") {
		score += 0.4
	}
	if hasClosingPhrase(text) {
		score += 0.3
	}
	if hasSubjectAuxiliary(lastFragment(text)) {
		score += 0.2
	}
	if score > 1 {
		score = 1
	}
	return score
}

// Confidence blends the surface score with the transcription engine's own
// confidence in the text.
func Confidence(transcript string, transcriptionConfidence float64) float64 {
	blended := scoreWeight*Score(transcript) + confidenceWeight*transcriptionConfidence
	if blended < 0 {
		return 0
	}
	if blended > 1 {
		return 1
	}
	return blended
}

func hasClosingPhrase(text string) bool {
	lower := strings.ToLower(strings.TrimRight(text, ".!?, "))
	for _, phrase := range closingPhrases {
		if strings.HasSuffix(lower, phrase) {
			return true
		}
	}
	return false
}

// lastFragment returns the text after the last sentence-final punctuation
// mark, or the whole text when there is none.
func lastFragment(text string) string {
	trimmed := strings.TrimRight(text, ".!? ")
	if i := strings.LastIndexAny(trimmed, ".!?"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// hasSubjectAuxiliary checks for a pronoun followed by an auxiliary verb in
// the fragment, a word-level heuristic for a grammatically formed clause.
func hasSubjectAuxiliary(fragment string) bool {
	words := strings.Fields(fragment)
	for i := 0; i < len(words)-1; i++ {
		if subjects[normalizeWord(words[i])] && auxiliaries[normalizeWord(words[i+1])] {
			return true
		}
	}
	return false
}

func normalizeWord(w string) string {
	return strings.ToLower(strings.Trim(w, ".,!?;:'\""))
}
