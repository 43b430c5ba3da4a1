// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectPartnerName(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
		ok      bool
	}{
		{"my name is", "Hi! My name is Sarah, nice to meet you.", "Sarah", true},
		{"i go by", "Most people use my full name but I go by Sam.", "Sam", true},
		{"people call me", "People call me Ace around here.", "Ace", true},
		{"call me", "You can call me ishmael.", "Ishmael", true},
		{"this is", "Hey, this is Marcus checking in.", "Marcus", true},
		{"im contraction", "I'm Priya, we talked last week.", "Priya", true},
		{"im without apostrophe", "im dave", "Dave", true},
		{"hyphenated", "My name is Mary-Jane.", "Mary-Jane", true},
		{"apostrophe", "My name is D'Arcy.", "D'Arcy", true},
		{"just checking in", "I'm just checking in before bed.", "", false},
		{"this is great", "Wow, this is great news!", "", false},
		{"im back", "I'm back from the store.", "", false},
		{"im sorry", "I'm sorry about yesterday.", "", false},
		{"no introduction", "What should we cook tonight?", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DetectPartnerName(tt.message)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
