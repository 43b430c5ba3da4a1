// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package monologue

import "strings"

// maxThemes bounds how many themes one cycle hands to the next
const maxThemes = 5

// suppressedThemes are poetic metaphors and meta-process phrases. Marking
// them as already-explored stops the model from free-associating back into
// them every idle cycle.
var suppressedThemes = []string{
	"the nature of",
	"what it means to",
	"the texture of",
	"the shape of",
	"the space between",
	"liminal",
	"my own existence",
	"consciousness itself",
	"the silence",
	"the quiet hum",
	"the hum of",
	"digital",
}

// questionStarters mark open-ended questions worth carrying as themes
var questionStarters = []string{
	"what", "how", "why", "i wonder", "could", "is there", "where",
}

// ExtractThemes tags a finished cycle with what it explored: suppressed
// phrases that appeared, plus the first few distinct open-ended questions.
// The next cycle's prompt lists these with an instruction not to repeat.
func ExtractThemes(buffer string) []string {
	lower := strings.ToLower(buffer)
	var themes []string
	seen := make(map[string]struct{})

	add := func(t string) bool {
		t = strings.TrimSpace(t)
		if t == "" {
			return false
		}
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			return false
		}
		seen[key] = struct{}{}
		themes = append(themes, t)
		return len(themes) >= maxThemes
	}

	for _, phrase := range suppressedThemes {
		if strings.Contains(lower, phrase) {
			if add(phrase) {
				return themes
			}
		}
	}

	for _, q := range extractQuestions(buffer) {
		if add(q) {
			return themes
		}
	}

	return themes
}

// extractQuestions returns distinct open-ended questions from the buffer
func extractQuestions(buffer string) []string {
	var questions []string
	start := 0
	for i, r := range buffer {
		switch r {
		case '?':
			q := strings.TrimSpace(buffer[start : i+1])
			start = i + 1
			if isOpenEnded(q) {
				questions = append(questions, q)
			}
		case '.', '!', '\n':
			start = i + 1
		}
	}
	return questions
}

func isOpenEnded(q string) bool {
	if len(q) < 10 || len(q) > 200 {
		return false
	}
	lower := strings.ToLower(q)
	for _, starter := range questionStarters {
		if strings.HasPrefix(lower, starter) {
			return true
		}
	}
	return false
}
