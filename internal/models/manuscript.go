package models

import (
	"encoding/json"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Manuscript status constants. The status is advisory (display only): it
// reflects whether a generation job is actively writing to the manuscript
// and must never be used as a concurrency guard.
const (
	ManuscriptStatusDraft      = "draft"
	ManuscriptStatusGenerating = "generating"
)

// Manuscript represents a single paper within a project. Drafted section
// text lives in the Sections JSONB column as a flat name-to-text map.
type Manuscript struct {
	gorm.Model
	ProjectID uint           `gorm:"not null;index"`
	Project   Project        `gorm:"constraint:OnDelete:CASCADE;"`
	Title     string         `gorm:"not null"`
	Sections  datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"`
	Status    string         `gorm:"not null;default:'draft'"`
}

// SectionMap decodes the Sections column. A nil or empty column decodes to
// an empty, non-nil map.
func (m *Manuscript) SectionMap() (map[string]string, error) {
	sections := make(map[string]string)
	if len(m.Sections) == 0 {
		return sections, nil
	}
	if err := json.Unmarshal(m.Sections, &sections); err != nil {
		return nil, err
	}
	return sections, nil
}

// SetSectionMap encodes the given map into the Sections column.
func (m *Manuscript) SetSectionMap(sections map[string]string) error {
	data, err := json.Marshal(sections)
	if err != nil {
		return err
	}
	m.Sections = datatypes.JSON(data)
	return nil
}

// SectionNames returns the section names currently present on the manuscript.
// Order is not significant.
func (m *Manuscript) SectionNames() ([]string, error) {
	sections, err := m.SectionMap()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}
	return names, nil
}
