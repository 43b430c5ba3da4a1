// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package selfmodel

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// identityFrontmatter is the YAML header of the exported identity file
type identityFrontmatter struct {
	Partner      string    `yaml:"partner,omitempty"`
	Values       []string  `yaml:"values,omitempty"`
	Tendencies   []string  `yaml:"tendencies,omitempty"`
	CurrentFocus string    `yaml:"current_focus,omitempty"`
	UpdatedAt    time.Time `yaml:"updated_at"`
}

// ToMarkdown renders the self-model as Markdown with YAML frontmatter.
// The narrative prose is the body; structured fields go in the header.
func (m *SelfModel) ToMarkdown() (string, error) {
	var buf bytes.Buffer

	buf.WriteString("---\n")
	fm := identityFrontmatter{
		Partner:      m.Relationship.Partner,
		Values:       m.Values,
		Tendencies:   m.Tendencies,
		CurrentFocus: m.CurrentFocus,
		UpdatedAt:    m.UpdatedAt,
	}
	data, err := yaml.Marshal(&fm)
	if err != nil {
		return "", fmt.Errorf("failed to marshal frontmatter: %w", err)
	}
	buf.Write(data)
	buf.WriteString("---\n\n")

	if m.Narrative != "" {
		buf.WriteString(m.Narrative)
		buf.WriteString("\n")
	}

	return buf.String(), nil
}

// ExportIdentity writes the human-readable identity snapshot beside the
// store. Called on sleep, after the final consolidation pass.
func ExportIdentity(model *SelfModel, path string) error {
	content, err := model.ToMarkdown()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write identity file: %w", err)
	}
	return nil
}
