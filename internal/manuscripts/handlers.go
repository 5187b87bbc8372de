// Package manuscripts exposes the project/manuscript CRUD surface and the
// markdown exporter. Generation jobs write into the manuscript section map
// through their own subsystem; these handlers only read and shape it.
package manuscripts

import (
	"net/http"
	"strconv"

	"github.com/ciaranpgc-a11y/research-os-api-sub000/internal/models"
	"github.com/ciaranpgc-a11y/research-os-api-sub000/internal/templates"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type createProjectRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
}

type createManuscriptRequest struct {
	Title    string            `json:"title" binding:"required"`
	Sections map[string]string `json:"sections"`
}

// currentUser resolves the session user set by the auth middleware.
func currentUser(c *gin.Context, db *gorm.DB) (*models.User, bool) {
	email, exists := c.Get("user_email")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return nil, false
	}

	var user models.User
	if err := db.Where("email = ?", email.(string)).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return nil, false
	}
	return &user, true
}

// CreateProjectHandler creates a project owned by the session user
func CreateProjectHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c, db)
		if !ok {
			return
		}

		var req createProjectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
			return
		}

		project := models.Project{
			UserID:      user.ID,
			Title:       req.Title,
			Description: req.Description,
		}
		if err := db.Create(&project).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create project"})
			return
		}

		c.JSON(http.StatusCreated, project)
	}
}

// ListProjectsHandler lists the session user's projects with manuscripts preloaded
func ListProjectsHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c, db)
		if !ok {
			return
		}

		var projects []models.Project
		if err := db.Preload("Manuscripts").Where("user_id = ?", user.ID).Order("created_at DESC").Find(&projects).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list projects"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"projects": projects})
	}
}

// CreateManuscriptHandler creates a manuscript under a project
func CreateManuscriptHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID, err := strconv.ParseUint(c.Param("projectID"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid projectID"})
			return
		}

		var project models.Project
		if err := db.First(&project, projectID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
			return
		}

		var req createManuscriptRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
			return
		}

		manuscript := models.Manuscript{
			ProjectID: project.ID,
			Title:     req.Title,
			Status:    models.ManuscriptStatusDraft,
		}
		sections := req.Sections
		if sections == nil {
			sections = map[string]string{}
		}
		if err := manuscript.SetSectionMap(sections); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sections"})
			return
		}

		if err := db.Create(&manuscript).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create manuscript"})
			return
		}

		c.JSON(http.StatusCreated, manuscript)
	}
}

// GetManuscriptHandler returns a manuscript by id
func GetManuscriptHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var manuscript models.Manuscript
		if err := db.First(&manuscript, c.Param("manuscriptID")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "manuscript not found"})
			return
		}
		c.JSON(http.StatusOK, manuscript)
	}
}

// ExportMarkdownHandler renders a manuscript's drafted sections as a
// markdown document, ordered by section-template position.
func ExportMarkdownHandler(db *gorm.DB, registry *templates.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var manuscript models.Manuscript
		if err := db.First(&manuscript, c.Param("manuscriptID")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "manuscript not found"})
			return
		}

		sections, err := manuscript.SectionMap()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid manuscript sections"})
			return
		}

		doc := RenderMarkdown(manuscript.Title, sections, registry)
		c.Header("Content-Disposition", `attachment; filename="manuscript.md"`)
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(doc))
	}
}
