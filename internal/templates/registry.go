// Package templates manages manuscript section templates: small YAML
// manifests describing each canonical section (drafting guidance, expected
// length band, display position). Templates are discovered from a directory
// at startup, validated, synced to the database, and served from an
// in-memory registry.
package templates

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"gorm.io/gorm"
)

// SectionTemplate is the persisted form of a discovered template.
type SectionTemplate struct {
	gorm.Model
	Name               string `gorm:"uniqueIndex:idx_section_templates_name,where:deleted_at IS NULL;not null"`
	Description        string `gorm:"type:text"`
	Guidance           string `gorm:"type:text"`
	ExpectedTokensLow  int64  `gorm:"column:expected_tokens_low;not null;default:0"`
	ExpectedTokensHigh int64  `gorm:"column:expected_tokens_high;not null;default:0"`
	Position           int    `gorm:"not null;default:0"`
}

// Registry holds discovered section templates in memory, indexed by name.
type Registry struct {
	templates map[string]*TemplateMetadata
}

// NewRegistry creates a new empty template registry.
func NewRegistry() *Registry {
	return &Registry{
		templates: make(map[string]*TemplateMetadata),
	}
}

// Register adds a template to the registry.
// Returns an error if a template with the same name is already registered.
func (r *Registry) Register(meta *TemplateMetadata) error {
	if _, exists := r.templates[meta.Name]; exists {
		return fmt.Errorf("template already registered: %s", meta.Name)
	}
	r.templates[meta.Name] = meta
	return nil
}

// Get retrieves a template by section name.
func (r *Registry) Get(name string) (*TemplateMetadata, bool) {
	meta, ok := r.templates[name]
	return meta, ok
}

// Guidance returns the drafting guidance for a section, or "" when the
// section has no template.
func (r *Registry) Guidance(name string) string {
	if meta, ok := r.templates[name]; ok {
		return meta.Guidance
	}
	return ""
}

// List returns all registered templates sorted by position, then name,
// for deterministic ordering.
func (r *Registry) List() []*TemplateMetadata {
	all := make([]*TemplateMetadata, 0, len(r.templates))
	for _, meta := range r.templates {
		all = append(all, meta)
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Position != all[j].Position {
			return all[i].Position < all[j].Position
		}
		return all[i].Name < all[j].Name
	})

	return all
}

// Count returns the number of registered templates.
func (r *Registry) Count() int {
	return len(r.templates)
}

// DiscoverTemplates scans the specified directory for template.yaml manifest
// files, one per subdirectory. Invalid templates are logged and skipped (not
// fatal) to allow partial discovery.
func DiscoverTemplates(templateDir string) ([]*TemplateMetadata, error) {
	var discovered []*TemplateMetadata

	entries, err := os.ReadDir(templateDir)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		manifestPath := filepath.Join(templateDir, entry.Name(), "template.yaml")
		if _, err := os.Stat(manifestPath); os.IsNotExist(err) {
			continue
		}

		meta, err := LoadTemplateMetadata(manifestPath)
		if err != nil {
			log.Printf("Warning: failed to load template from %s: %v", entry.Name(), err)
			continue
		}

		discovered = append(discovered, meta)
	}

	return discovered, nil
}

// LoadRegistry discovers templates from the specified directory and registers
// them in a new Registry. Duplicate names are logged and skipped. An empty
// registry is not an error.
func LoadRegistry(templateDir string) (*Registry, error) {
	discovered, err := DiscoverTemplates(templateDir)
	if err != nil {
		return nil, err
	}

	registry := NewRegistry()
	for _, meta := range discovered {
		if err := registry.Register(meta); err != nil {
			log.Printf("Warning: duplicate template name, skipping %s: %v", meta.Name, err)
			continue
		}
	}

	return registry, nil
}

// InitTemplates discovers section templates, syncs their metadata to the
// database, and returns the populated registry. Called at application
// startup. Non-fatal on individual template issues.
func InitTemplates(db *gorm.DB, templateDir string) (*Registry, error) {
	registry, err := LoadRegistry(templateDir)
	if err != nil {
		return nil, err
	}

	log.Printf("Discovered %d section template(s) from %s", registry.Count(), templateDir)

	for _, meta := range registry.List() {
		if err := syncTemplateToDB(db, meta); err != nil {
			log.Printf("Warning: failed to sync template %s to database: %v", meta.Name, err)
			continue
		}
	}

	return registry, nil
}

// syncTemplateToDB persists or updates a template's metadata in the database.
// Uses an upsert pattern: creates if new, updates if already exists.
func syncTemplateToDB(db *gorm.DB, meta *TemplateMetadata) error {
	var row SectionTemplate
	result := db.Where("name = ?", meta.Name).First(&row)

	if result.Error == gorm.ErrRecordNotFound {
		row = SectionTemplate{
			Name:               meta.Name,
			Description:        meta.Description,
			Guidance:           meta.Guidance,
			ExpectedTokensLow:  meta.ExpectedTokensLow,
			ExpectedTokensHigh: meta.ExpectedTokensHigh,
			Position:           meta.Position,
		}
		return db.Create(&row).Error
	} else if result.Error != nil {
		return result.Error
	}

	updates := map[string]interface{}{
		"description":          meta.Description,
		"guidance":             meta.Guidance,
		"expected_tokens_low":  meta.ExpectedTokensLow,
		"expected_tokens_high": meta.ExpectedTokensHigh,
		"position":             meta.Position,
	}

	return db.Model(&row).Updates(updates).Error
}
