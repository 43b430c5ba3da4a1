// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package consolidation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAbstractionPlainJSON(t *testing.T) {
	result := parseAbstraction(`{"episodes": [{"summary": "a talk about the move", "salience": 0.6}]}`)
	require.Len(t, result.Episodes, 1)
	assert.Equal(t, "a talk about the move", result.Episodes[0].Summary)
	assert.True(t, result.SelfModelUpdates.IsEmpty())
}

func TestParseAbstractionStripsCodeFences(t *testing.T) {
	fenced := "```json\n{\"episodes\": [{\"summary\": \"fenced episode\", \"salience\": 0.5}]}\n```"
	result := parseAbstraction(fenced)
	require.Len(t, result.Episodes, 1)
	assert.Equal(t, "fenced episode", result.Episodes[0].Summary)

	bare := "```\n{\"episodes\": []}\n```"
	assert.Empty(t, parseAbstraction(bare).Episodes)
}

func TestParseAbstractionGarbageYieldsEmpty(t *testing.T) {
	result := parseAbstraction("I couldn't produce JSON this time, sorry.")
	assert.Empty(t, result.Episodes)
	assert.True(t, result.SelfModelUpdates.IsEmpty())
}

func TestParseAbstractionSelfModelUpdates(t *testing.T) {
	result := parseAbstraction(`{
		"episodes": [],
		"self_model_updates": {
			"current_focus": "the move",
			"new_value": "patience",
			"new_tendency": "checks in after hard days",
			"narrative_update": "I notice the rhythm of her weeks."
		}
	}`)
	u := result.SelfModelUpdates
	assert.False(t, u.IsEmpty())
	assert.Equal(t, "the move", u.CurrentFocus)
	assert.Equal(t, "patience", u.NewValue)
	assert.Equal(t, "checks in after hard days", u.NewTendency)
	assert.Equal(t, "I notice the rhythm of her weeks.", u.NarrativeUpdate)
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", `{"a": 1}`, `{"a": 1}`},
		{"json tag", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"no tag", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding whitespace", "  ```json\n{\"a\": 1}\n```  ", `{"a": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripCodeFences(tt.in))
		})
	}
}
