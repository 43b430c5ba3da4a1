// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package consolidation

import (
	"fmt"
	"strings"

	"github.com/reveries-sh/reveries/internal/database"
)

const abstractionSystem = `You are a memory consolidation process. You read raw experiences and abstract them into durable episodic memories. You reply with JSON only, no prose, no code fences.`

// buildAbstractionPrompt embeds the current narrative and the drained
// experiences. Summaries must be past tense so situational details stay
// events instead of leaking into current state on later retrieval.
func buildAbstractionPrompt(narrative string, raws []database.RawExperience) string {
	var b strings.Builder

	b.WriteString("Current self-narrative:\n")
	if narrative == "" {
		b.WriteString("(none yet)\n")
	} else {
		b.WriteString(narrative)
		b.WriteString("\n")
	}

	b.WriteString("\nRaw experiences to consolidate:\n")
	for i, raw := range raws {
		fmt.Fprintf(&b, "\n[%d] kind=%s at %s\n%s\n",
			i+1, raw.Kind, raw.Timestamp.Format("2006-01-02 15:04"), raw.Content)
	}

	b.WriteString(`
Abstract these into episodes. Write every summary in PAST TENSE, describing
what happened, never current state ("talked about being at an airport", not
"is at an airport"). Group related experiences into one episode where natural.
Preserve short verbatim quotes as exemplars.

Reply with exactly this JSON shape:
{
  "episodes": [
    {
      "summary": "past-tense prose",
      "topics": ["..."],
      "salience": 0.0,
      "confidence": 0.0,
      "exemplars": [{"quote": "...", "significance": "..."}],
      "patterns": ["..."]
    }
  ],
  "self_model_updates": {
    "current_focus": "",
    "new_tendency": "",
    "new_value": "",
    "narrative_update": ""
  }
}`)

	return b.String()
}
