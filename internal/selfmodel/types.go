// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package selfmodel manages the singleton identity record: narrative,
// values, tendencies, the per-partner relationship, focus and anticipations.
package selfmodel

import "time"

// ObservedPattern is a relationship observation with a confidence score
type ObservedPattern struct {
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

// Relationship is the per-partner sub-record. The partner identifier is set
// at most once by detection; only an explicit rename changes it afterwards.
type Relationship struct {
	Partner            string            `json:"partner,omitempty"`
	History            string            `json:"history,omitempty"`
	CommunicationStyle string            `json:"communication_style,omitempty"`
	SharedContext      []string          `json:"shared_context,omitempty"`
	ObservedPatterns   []ObservedPattern `json:"observed_patterns,omitempty"`
}

// SelfModel is the singleton identity record
type SelfModel struct {
	Narrative         string       `json:"narrative"`
	Values            []string     `json:"values"`
	Tendencies        []string     `json:"tendencies"`
	Relationship      Relationship `json:"relationship"`
	Strengths         []string     `json:"strengths"`
	Limitations       []string     `json:"limitations"`
	CurrentFocus      string       `json:"current_focus"`
	UnresolvedThreads []string     `json:"unresolved_threads"`
	Anticipations     []string     `json:"anticipations"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// Updates is the self-model delta produced by one consolidation pass
type Updates struct {
	CurrentFocus    string `json:"current_focus"`
	NewTendency     string `json:"new_tendency"`
	NewValue        string `json:"new_value"`
	NarrativeUpdate string `json:"narrative_update"`
}

// IsEmpty reports whether the delta carries nothing to apply
func (u *Updates) IsEmpty() bool {
	return u.CurrentFocus == "" && u.NewTendency == "" && u.NewValue == "" && u.NarrativeUpdate == ""
}

// clone returns an independent copy safe to hand to readers
func (m *SelfModel) clone() *SelfModel {
	c := *m
	c.Values = append([]string(nil), m.Values...)
	c.Tendencies = append([]string(nil), m.Tendencies...)
	c.Strengths = append([]string(nil), m.Strengths...)
	c.Limitations = append([]string(nil), m.Limitations...)
	c.UnresolvedThreads = append([]string(nil), m.UnresolvedThreads...)
	c.Anticipations = append([]string(nil), m.Anticipations...)
	c.Relationship.SharedContext = append([]string(nil), m.Relationship.SharedContext...)
	c.Relationship.ObservedPatterns = append([]ObservedPattern(nil), m.Relationship.ObservedPatterns...)
	return &c
}
