package database

import (
	"log"
	"time"

	"github.com/ciaranpgc-a11y/research-os-api-sub000/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SeedDevData populates the database with development test data.
// Idempotent: skips if data already exists.
func SeedDevData(db *gorm.DB) error {
	// Check if seed data already exists
	var existingUser models.User
	result := db.Where("email = ?", "dev@researchos.local").First(&existingUser)
	if result.Error == nil {
		log.Println("Seed data already exists, skipping")
		return nil
	}

	// Create test user
	user := models.User{
		Email:   "dev@researchos.local",
		Name:    "Dev User",
		OrcidID: "0000-0002-1825-0097",
		Role:    "author",
	}

	if err := db.Create(&user).Error; err != nil {
		return err
	}

	// Create sample AuthIdentity for the test user
	identity := models.AuthIdentity{
		UserID:         user.ID,
		Provider:       "orcid",
		ProviderUserID: "0000-0002-1825-0097",
		AccessToken:    "dev-access-token-placeholder",
		RefreshToken:   "dev-refresh-token-placeholder",
	}

	if err := db.Create(&identity).Error; err != nil {
		return err
	}

	// Create a sample project with one manuscript
	project := models.Project{
		UserID:      user.ID,
		Title:       "Thermal Tolerance in Reef Fish",
		Description: "Field study of temperature adaptation across reef populations.",
	}

	if err := db.Create(&project).Error; err != nil {
		return err
	}

	manuscript := models.Manuscript{
		ProjectID: project.ID,
		Title:     "Thermal Tolerance in Reef Fish: A Comparative Study",
		Status:    models.ManuscriptStatusDraft,
		Sections: datatypes.JSON([]byte(`{
			"introduction": "Reef fish populations face increasing thermal stress.",
			"methods": "",
			"results": "",
			"discussion": "",
			"conclusion": ""
		}`)),
	}

	if err := db.Create(&manuscript).Error; err != nil {
		return err
	}

	// Create a sample completed generation job so the history endpoint has data
	now := time.Now()
	started := now.Add(-10 * time.Minute)
	job := models.GenerationJob{
		ProjectID:                 project.ID,
		ManuscriptID:              manuscript.ID,
		Status:                    models.JobStatusCompleted,
		Sections:                  datatypes.JSON([]byte(`["introduction","methods","results","discussion","conclusion"]`)),
		NotesContext:              "Field notes: temperature loggers deployed at five reef sites over two seasons.",
		ProgressPercent:           100,
		PricingModel:              "gpt-4o",
		EstimatedInputTokens:      2750,
		EstimatedOutputTokensLow:  3000,
		EstimatedOutputTokensHigh: 6200,
		EstimatedCostUSDLow:       0.0369,
		EstimatedCostUSDHigh:      0.0689,
		RunCount:                  1,
		StartedAt:                 &started,
		CompletedAt:               &now,
	}

	if err := db.Create(&job).Error; err != nil {
		return err
	}

	log.Println("Seed data created successfully")
	return nil
}
