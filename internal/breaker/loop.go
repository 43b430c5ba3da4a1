// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package breaker

import "strings"

const (
	// minSentenceLength filters fragments out of the sentence diversity check
	minSentenceLength = 10
	// minSentencesForCheck is how many substantial sentences the buffer needs
	// before diversity is judged at all
	minSentencesForCheck = 4
	// uniqueRatioFloor marks the buffer stuck when fewer than this fraction
	// of its sentences are distinct
	uniqueRatioFloor = 0.30
	// maxPhraseLength bounds the repeated-phrase scan window
	maxPhraseLength = 15
)

// DetectStuckLoop reports whether the text is circling: either most of its
// sentences are duplicates, or some phrase repeats back to back.
func DetectStuckLoop(text string) bool {
	return lowSentenceDiversity(text) || hasRepeatedPhrase(text)
}

func lowSentenceDiversity(text string) bool {
	sentences := splitSentences(text)
	if len(sentences) < minSentencesForCheck {
		return false
	}

	unique := make(map[string]struct{}, len(sentences))
	for _, s := range sentences {
		unique[strings.ToLower(s)] = struct{}{}
	}

	ratio := float64(len(unique)) / float64(len(sentences))
	return ratio < uniqueRatioFloor
}

// splitSentences breaks text on terminal punctuation, keeping only trimmed
// sentences longer than minSentenceLength
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		s := strings.TrimSpace(current.String())
		current.Reset()
		if len(s) > minSentenceLength {
			sentences = append(sentences, s)
		}
	}

	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			flush()
		}
	}
	flush()

	return sentences
}

// hasRepeatedPhrase scans for a phrase of L words repeating back to back.
// Short phrases need three consecutive occurrences; phrases of four words
// or more need only two.
func hasRepeatedPhrase(text string) bool {
	words := strings.Fields(strings.ToLower(stripPunctuation(text)))
	if len(words) < 2 {
		return false
	}

	maxL := len(words) / 3
	if maxL > maxPhraseLength {
		maxL = maxPhraseLength
	}

	for length := 1; length <= maxL; length++ {
		needed := 3
		if length >= 4 {
			needed = 2
		}
		if hasConsecutiveChunks(words, length, needed) {
			return true
		}
	}
	return false
}

// hasConsecutiveChunks reports whether any L-word chunk occurs at least
// needed times in immediate succession, checking every alignment
func hasConsecutiveChunks(words []string, length, needed int) bool {
	for start := 0; start < length; start++ {
		run := 1
		for i := start; i+2*length <= len(words); i += length {
			if chunksEqual(words, i, i+length, length) {
				run++
				if run >= needed {
					return true
				}
			} else {
				run = 1
			}
		}
	}
	return false
}

func chunksEqual(words []string, a, b, length int) bool {
	for i := 0; i < length; i++ {
		if words[a+i] != words[b+i] {
			return false
		}
	}
	return true
}

func stripPunctuation(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch r {
		case '.', ',', '!', '?', ';', ':', '"', '\'', '(', ')', '[', ']':
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
