// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package consolidation

import (
	"encoding/json"
	"strings"

	"github.com/reveries-sh/reveries/internal/selfmodel"
)

// candidateExemplar is a verbatim quote in the abstraction reply
type candidateExemplar struct {
	Quote        string `json:"quote"`
	Significance string `json:"significance"`
}

// candidateEpisode is one episode proposed by the abstraction model
type candidateEpisode struct {
	Summary    string              `json:"summary"`
	Topics     []string            `json:"topics"`
	Salience   float64             `json:"salience"`
	Confidence float64             `json:"confidence"`
	Exemplars  []candidateExemplar `json:"exemplars"`
	Patterns   []string            `json:"patterns"`
}

// abstractionResult is the full structured reply
type abstractionResult struct {
	Episodes         []candidateEpisode `json:"episodes"`
	SelfModelUpdates selfmodel.Updates  `json:"self_model_updates"`
}

// parseAbstraction tolerates the usual model fragility: code fences around
// the JSON get stripped and parsing retried once. A second failure yields an
// empty result rather than an error; the pass still decays and checkpoints.
func parseAbstraction(reply string) abstractionResult {
	var result abstractionResult
	if err := json.Unmarshal([]byte(reply), &result); err == nil {
		return result
	}

	stripped := stripCodeFences(reply)
	result = abstractionResult{}
	if err := json.Unmarshal([]byte(stripped), &result); err != nil {
		return abstractionResult{}
	}
	return result
}

// stripCodeFences removes a surrounding Markdown code fence, with or
// without a language tag
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		// drop the language tag line ("json", "JSON", or empty)
		first := strings.TrimSpace(s[:idx])
		if len(first) <= 10 && !strings.ContainsAny(first, "{}[]") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
